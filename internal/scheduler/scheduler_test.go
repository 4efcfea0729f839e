package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alpinn/mirrorbot/internal/apiclient"
	"github.com/alpinn/mirrorbot/internal/chat"
	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/cooldown"
	"github.com/alpinn/mirrorbot/internal/differ"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/alpinn/mirrorbot/internal/syncer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	mu       sync.Mutex
	nextID   int
	messages map[string]chat.Message
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{messages: make(map[string]chat.Message)}
}

func (f *fakeSurface) Post(ctx context.Context, channelID string, msg chat.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.messages[id] = msg
	return id, nil
}

func (f *fakeSurface) Edit(ctx context.Context, channelID, messageID string, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[messageID]; !ok {
		return chat.ErrMessageNotFound
	}
	f.messages[messageID] = msg
	return nil
}

func (f *fakeSurface) Delete(ctx context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
	return nil
}

func (f *fakeSurface) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type testHarness struct {
	scheduler *Scheduler
	store     store.Store
	surface   *fakeSurface
}

func newTestHarness(t *testing.T, gateInterval time.Duration, handler http.HandlerFunc) *testHarness {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	surface := newFakeSurface()
	gate := cooldown.NewGate(gateInterval, zerolog.Nop())
	client := apiclient.NewClient(config.APIConfig{BaseURL: server.URL, TimeoutSecs: 5}, zerolog.Nop())
	d := differ.NewDiffer(zerolog.Nop())
	synchronizer := syncer.NewSynchronizer(st, surface, zerolog.Nop())
	sched := NewScheduler(st, gate, client, d, synchronizer, config.SchedulerConfig{IdleSleepSecs: 1}, zerolog.Nop())

	return &testHarness{scheduler: sched, store: st, surface: surface}
}

func statutsPayload(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(`{"success": true, "data": {"title": "Statuts", "content": "Article 1"}}`))
}

func TestRefreshJobPostsMessages(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, statutsPayload)
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	jobs, err := h.store.GetJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, h.scheduler.RefreshJob(ctx, jobs[0]))
	assert.Equal(t, 1, h.surface.count())
}

func TestRefreshJobCooldownRefusal(t *testing.T) {
	h := newTestHarness(t, time.Hour, statutsPayload)
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	jobs, err := h.store.GetJobs(ctx)
	require.NoError(t, err)

	require.NoError(t, h.scheduler.RefreshJob(ctx, jobs[0]))

	err = h.scheduler.RefreshJob(ctx, jobs[0])
	require.Error(t, err)

	var cooldownErr *CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Greater(t, cooldownErr.Remaining, time.Duration(0))
}

func TestRefreshJobBusyRejection(t *testing.T) {
	release := make(chan struct{})
	h := newTestHarness(t, time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		<-release
		statutsPayload(w, r)
	})
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	jobs, err := h.store.GetJobs(ctx)
	require.NoError(t, err)
	job := jobs[0]

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- h.scheduler.RefreshJob(ctx, job)
	}()

	// Wait until the first refresh holds the job's flight slot.
	require.Eventually(t, func() bool {
		h.scheduler.mu.Lock()
		defer h.scheduler.mu.Unlock()
		_, busy := h.scheduler.inFlight[jobKey{endpoint: job.Endpoint, channelID: job.ChannelID}]
		return busy
	}, time.Second, time.Millisecond)

	time.Sleep(5 * time.Millisecond) // let the gate refill
	err = h.scheduler.RefreshJob(ctx, job)
	assert.ErrorIs(t, err, ErrJobBusy)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestRefreshAllSweepsEveryJob(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/news.php":
			w.Write([]byte(`{"data": [{"id": 1, "title": "One", "content": "a"}]}`))
		default:
			statutsPayload(w, r)
		}
	})
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	require.NoError(t, h.store.BindChannel(ctx, "news", "chan-2"))

	require.NoError(t, h.scheduler.RefreshAll(ctx))
	assert.Equal(t, 2, h.surface.count())
}

func TestRefreshAllContinuesAfterFailure(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/statuts.php" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data": [{"id": 1, "title": "One", "content": "a"}]}`))
	})
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	require.NoError(t, h.store.BindChannel(ctx, "news", "chan-2"))

	require.NoError(t, h.scheduler.RefreshAll(ctx))
	assert.Equal(t, 1, h.surface.count())
}

func TestFetchOnceReturnsPayloadWithoutTracking(t *testing.T) {
	var gotPage string
	h := newTestHarness(t, time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		statutsPayload(w, r)
	})
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	jobs, err := h.store.GetJobs(ctx)
	require.NoError(t, err)

	value, err := h.scheduler.FetchOnce(ctx, "statuts", map[string]string{"page": "3"})
	require.NoError(t, err)
	assert.Equal(t, "3", gotPage)

	obj, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, obj["success"])

	// A one-shot fetch posts nothing and leaves tracking alone.
	assert.Equal(t, 0, h.surface.count())
	tracked, err := h.store.GetTrackedMessages(ctx, jobs[0])
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestFetchOnceSharesCooldownGate(t *testing.T) {
	h := newTestHarness(t, time.Hour, statutsPayload)
	ctx := context.Background()

	_, err := h.scheduler.FetchOnce(ctx, "statuts", nil)
	require.NoError(t, err)

	_, err = h.scheduler.FetchOnce(ctx, "statuts", nil)
	require.Error(t, err)

	var cooldownErr *CooldownError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Greater(t, cooldownErr.Remaining, time.Duration(0))
}

func TestFetchOnceUnknownEndpoint(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, statutsPayload)

	_, err := h.scheduler.FetchOnce(context.Background(), "nonsense", nil)
	assert.Error(t, err)
}

func TestFetchFailureLeavesStateUntouched(t *testing.T) {
	healthy := true
	var mu sync.Mutex
	h := newTestHarness(t, time.Millisecond, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		statutsPayload(w, r)
	})
	ctx := context.Background()

	require.NoError(t, h.store.BindChannel(ctx, "statuts", "chan-1"))
	jobs, err := h.store.GetJobs(ctx)
	require.NoError(t, err)
	job := jobs[0]

	require.NoError(t, h.scheduler.RefreshJob(ctx, job))
	tracked, err := h.store.GetTrackedMessages(ctx, job)
	require.NoError(t, err)
	require.Len(t, tracked, 1)

	mu.Lock()
	healthy = false
	mu.Unlock()

	err = h.scheduler.RefreshJob(ctx, job)
	require.Error(t, err)

	// The previous pass's records survive the failed turn.
	trackedAfter, err := h.store.GetTrackedMessages(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, tracked, trackedAfter)
	assert.Equal(t, 1, h.surface.count())
}

func TestNextJobRotatesRoundRobin(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, statutsPayload)

	jobs := []store.Job{
		{Endpoint: "statuts", ChannelID: "chan-1"},
		{Endpoint: "news", ChannelID: "chan-2"},
		{Endpoint: "events", ChannelID: "chan-3"},
	}

	var order []string
	for i := 0; i < 6; i++ {
		order = append(order, h.scheduler.nextJob(jobs).Endpoint)
	}
	assert.Equal(t, []string{"statuts", "news", "events", "statuts", "news", "events"}, order)
}

func TestSchedulerStartStop(t *testing.T) {
	h := newTestHarness(t, time.Millisecond, statutsPayload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.scheduler.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	h.scheduler.Stop()
	// Stop is idempotent.
	h.scheduler.Stop()
}
