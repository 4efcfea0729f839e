package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBindAndListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))
	require.NoError(t, s.BindChannel(ctx, "statuts", "chan-2"))
	require.NoError(t, s.BindChannel(ctx, "news", "chan-3"))

	jobs, err := s.GetJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Insertion order is preserved.
	assert.Equal(t, "news", jobs[0].Endpoint)
	assert.Equal(t, "chan-1", jobs[0].ChannelID)
	assert.Equal(t, "statuts", jobs[1].Endpoint)
	assert.Equal(t, "news", jobs[2].Endpoint)
}

func TestBindChannelIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))
	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))

	jobs, err := s.GetJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSetEndpointEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))
	require.NoError(t, s.BindChannel(ctx, "news", "chan-2"))
	require.NoError(t, s.BindChannel(ctx, "events", "chan-1"))

	require.NoError(t, s.SetEndpointEnabled(ctx, "news", false))

	jobs, err := s.GetJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "events", jobs[0].Endpoint)

	// ListBindings still shows the disabled ones.
	bindings, err := s.ListBindings(ctx)
	require.NoError(t, err)
	assert.Len(t, bindings, 3)

	require.NoError(t, s.SetEndpointEnabled(ctx, "news", true))
	jobs, err = s.GetJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)

	// Re-enabling preserves the original order.
	assert.Equal(t, "chan-1", jobs[0].ChannelID)
	assert.Equal(t, "news", jobs[0].Endpoint)
}

func TestTrackedMessagesRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := Job{Endpoint: "news", ChannelID: "chan-1"}

	msgs := []TrackedMessage{
		{Endpoint: "news", ChannelID: "chan-1", ItemKey: "id:1", MessageID: "m1", Signature: "sig1", Content: "one"},
		{Endpoint: "news", ChannelID: "chan-1", ItemKey: "id:2", MessageID: "m2", Signature: "sig2", Content: "two"},
	}
	require.NoError(t, s.PutTrackedMessages(ctx, job, msgs))

	loaded, err := s.GetTrackedMessages(ctx, job)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "id:1", loaded[0].ItemKey)
	assert.Equal(t, "m1", loaded[0].MessageID)
	assert.Equal(t, "sig1", loaded[0].Signature)
	assert.Equal(t, "one", loaded[0].Content)
	assert.False(t, loaded[0].UpdatedAt.IsZero())
}

func TestPutTrackedMessagesReplacesSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := Job{Endpoint: "news", ChannelID: "chan-1"}

	require.NoError(t, s.PutTrackedMessages(ctx, job, []TrackedMessage{
		{ItemKey: "id:1", MessageID: "m1", Signature: "sig1"},
		{ItemKey: "id:2", MessageID: "m2", Signature: "sig2"},
	}))
	require.NoError(t, s.PutTrackedMessages(ctx, job, []TrackedMessage{
		{ItemKey: "id:3", MessageID: "m3", Signature: "sig3"},
	}))

	loaded, err := s.GetTrackedMessages(ctx, job)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "id:3", loaded[0].ItemKey)
}

func TestTrackedMessagesScopedByJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobA := Job{Endpoint: "news", ChannelID: "chan-1"}
	jobB := Job{Endpoint: "news", ChannelID: "chan-2"}

	require.NoError(t, s.PutTrackedMessages(ctx, jobA, []TrackedMessage{{ItemKey: "id:1", MessageID: "m1", Signature: "s"}}))
	require.NoError(t, s.PutTrackedMessages(ctx, jobB, []TrackedMessage{{ItemKey: "id:1", MessageID: "m2", Signature: "s"}}))

	loadedA, err := s.GetTrackedMessages(ctx, jobA)
	require.NoError(t, err)
	require.Len(t, loadedA, 1)
	assert.Equal(t, "m1", loadedA[0].MessageID)
}

func TestClearTrackedMessagesByChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobA := Job{Endpoint: "news", ChannelID: "chan-1"}
	jobB := Job{Endpoint: "events", ChannelID: "chan-2"}

	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))
	require.NoError(t, s.BindChannel(ctx, "events", "chan-2"))
	require.NoError(t, s.PutTrackedMessages(ctx, jobA, []TrackedMessage{{ItemKey: "a", MessageID: "m1", Signature: "s"}}))
	require.NoError(t, s.PutTrackedMessages(ctx, jobB, []TrackedMessage{{ItemKey: "b", MessageID: "m2", Signature: "s"}}))

	require.NoError(t, s.ClearTrackedMessages(ctx, ClearScope{ChannelID: "chan-1"}))

	loadedA, err := s.GetTrackedMessages(ctx, jobA)
	require.NoError(t, err)
	assert.Empty(t, loadedA)

	loadedB, err := s.GetTrackedMessages(ctx, jobB)
	require.NoError(t, err)
	assert.Len(t, loadedB, 1)

	// Job rows are untouched by a clear.
	jobs, err := s.GetJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestClearTrackedMessagesAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	jobA := Job{Endpoint: "news", ChannelID: "chan-1"}
	jobB := Job{Endpoint: "events", ChannelID: "chan-2"}

	require.NoError(t, s.PutTrackedMessages(ctx, jobA, []TrackedMessage{{ItemKey: "a", MessageID: "m1", Signature: "s"}}))
	require.NoError(t, s.PutTrackedMessages(ctx, jobB, []TrackedMessage{{ItemKey: "b", MessageID: "m2", Signature: "s"}}))

	require.NoError(t, s.ClearTrackedMessages(ctx, ClearScope{}))

	loadedA, err := s.GetTrackedMessages(ctx, jobA)
	require.NoError(t, err)
	loadedB, err := s.GetTrackedMessages(ctx, jobB)
	require.NoError(t, err)
	assert.Empty(t, loadedA)
	assert.Empty(t, loadedB)
}

func TestUnbindChannelDropsTrackedMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	job := Job{Endpoint: "news", ChannelID: "chan-1"}

	require.NoError(t, s.BindChannel(ctx, "news", "chan-1"))
	require.NoError(t, s.PutTrackedMessages(ctx, job, []TrackedMessage{{ItemKey: "a", MessageID: "m1", Signature: "s"}}))

	require.NoError(t, s.UnbindChannel(ctx, "news", "chan-1"))

	jobs, err := s.GetJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	loaded, err := s.GetTrackedMessages(ctx, job)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
