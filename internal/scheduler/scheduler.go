// Package scheduler drives the polling loop: one job per cadence grant,
// round-robin over the bound jobs, single-flight per job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alpinn/mirrorbot/internal/apiclient"
	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/cooldown"
	"github.com/alpinn/mirrorbot/internal/differ"
	"github.com/alpinn/mirrorbot/internal/payload"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/alpinn/mirrorbot/internal/syncer"
	"github.com/rs/zerolog"
)

// ErrJobBusy indicates the job is already being refreshed.
var ErrJobBusy = errors.New("job refresh already in flight")

// CooldownError indicates the shared cadence gate refused a manual refresh.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %s", e.Remaining.Round(time.Second))
}

// Scheduler owns the polling loop and the manual refresh entry points.
type Scheduler struct {
	store     store.Store
	gate      *cooldown.Gate
	client    *apiclient.Client
	differ    *differ.Differ
	syncer    *syncer.Synchronizer
	idleSleep time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	cursor   int
	inFlight map[jobKey]struct{}

	stopChan  chan struct{}
	waitGroup sync.WaitGroup
	started   bool
}

type jobKey struct {
	endpoint  string
	channelID string
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	st store.Store,
	gate *cooldown.Gate,
	client *apiclient.Client,
	d *differ.Differ,
	synchronizer *syncer.Synchronizer,
	cfg config.SchedulerConfig,
	logger zerolog.Logger,
) *Scheduler {
	idleSleep := time.Duration(cfg.IdleSleepSecs) * time.Second
	if idleSleep <= 0 {
		idleSleep = time.Duration(config.DefaultSchedulerIdleSleepSecs) * time.Second
	}
	return &Scheduler{
		store:     st,
		gate:      gate,
		client:    client,
		differ:    d,
		syncer:    synchronizer,
		idleSleep: idleSleep,
		logger:    logger.With().Str("component", "Scheduler").Logger(),
		inFlight:  make(map[jobKey]struct{}),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		s.runLoop(ctx)
	}()
	s.logger.Info().Msg("Scheduler started")
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopChan)
	s.mu.Unlock()

	s.waitGroup.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		// The job list is rebuilt every pass so binding changes take
		// effect on the next turn without a restart.
		jobs, err := s.store.GetJobs(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to load jobs")
			if !s.sleep(ctx, s.idleSleep) {
				return
			}
			continue
		}
		if len(jobs) == 0 {
			if !s.sleep(ctx, s.idleSleep) {
				return
			}
			continue
		}

		job := s.nextJob(jobs)

		if err := s.gate.Acquire(ctx); err != nil {
			return
		}
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.runJob(ctx, job); err != nil {
			if errors.Is(err, ErrJobBusy) {
				s.logger.Debug().
					Str("endpoint", job.Endpoint).
					Str("channel_id", job.ChannelID).
					Msg("Job busy, skipping turn")
			} else {
				// Failure isolation: the turn ends, state stays as the
				// last successful pass left it.
				s.logger.Error().Err(err).
					Str("endpoint", job.Endpoint).
					Str("channel_id", job.ChannelID).
					Msg("Job turn failed")
			}
		}
	}
}

// nextJob picks the job under the cursor and advances it. The cursor moves
// every tick regardless of outcome, so a failing job cannot starve the rest.
func (s *Scheduler) nextJob(jobs []store.Job) store.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := jobs[s.cursor%len(jobs)]
	s.cursor++
	return job
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stopChan:
		return false
	case <-timer.C:
		return true
	}
}

// runJob executes one full turn for the job: fetch, reduce, reconcile.
func (s *Scheduler) runJob(ctx context.Context, job store.Job) error {
	key := jobKey{endpoint: job.Endpoint, channelID: job.ChannelID}
	if !s.tryBegin(key) {
		return ErrJobBusy
	}
	defer s.end(key)

	spec, err := config.EndpointByName(job.Endpoint)
	if err != nil {
		return err
	}

	payloadValue, err := s.client.Fetch(ctx, job.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	items, err := s.differ.Reduce(job.Endpoint, differ.Mode(spec.ItemMode), payloadValue)
	if err != nil {
		return fmt.Errorf("reduce failed: %w", err)
	}

	return s.syncer.Reconcile(ctx, job, items)
}

func (s *Scheduler) tryBegin(key jobKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) end(key jobKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// RefreshJob runs one manual turn for the job. The cadence gate is probed
// without blocking so the caller can report the remaining wait; a job
// already in flight is rejected with ErrJobBusy.
func (s *Scheduler) RefreshJob(ctx context.Context, job store.Job) error {
	granted, remaining := s.gate.TryAcquire()
	if !granted {
		return &CooldownError{Remaining: remaining}
	}
	return s.runJob(ctx, job)
}

// FetchOnce performs a single gated fetch of an endpoint and returns the raw
// payload without touching bindings or tracked messages. It shares the cadence
// gate with the polling loop, probed without blocking so the caller can report
// the remaining wait.
func (s *Scheduler) FetchOnce(ctx context.Context, endpoint string, params map[string]string) (payload.Value, error) {
	if _, err := config.EndpointByName(endpoint); err != nil {
		return nil, err
	}
	granted, remaining := s.gate.TryAcquire()
	if !granted {
		return nil, &CooldownError{Remaining: remaining}
	}
	return s.client.Fetch(ctx, endpoint, params)
}

// RefreshAll sweeps every enabled job front to back, blocking on the gate
// before each one. Failures are logged per job and do not stop the sweep.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	jobs, err := s.store.GetJobs(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := s.gate.Acquire(ctx); err != nil {
			return err
		}
		if err := s.runJob(ctx, job); err != nil {
			s.logger.Error().Err(err).
				Str("endpoint", job.Endpoint).
				Str("channel_id", job.ChannelID).
				Msg("Refresh-all turn failed")
		}
	}
	return nil
}
