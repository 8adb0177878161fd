package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/internal/update"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// Scheduler owns the periodic trigger timers for both tracks and
// serializes orchestrator invocations so at most one update job per kind
// is in flight. The two kinds run concurrently with each other; a tick
// arriving while that kind's job is still running is coalesced (skipped,
// not queued). Progress and results are exposed on an event channel that
// never blocks the workers.
type Scheduler struct {
	startupDelay time.Duration
	events       chan models.Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	tracks  map[models.Kind]*trackRunner
}

type trackRunner struct {
	orch        *update.Orchestrator
	interval    time.Duration
	reconfigure chan time.Duration

	mu        sync.Mutex
	running   bool
	cancelJob context.CancelFunc
}

// NewScheduler creates a scheduler. Orchestrators are attached with
// Register before Start.
func NewScheduler(startupDelay time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		startupDelay: startupDelay,
		events:       make(chan models.Event, 64),
		ctx:          ctx,
		cancel:       cancel,
		tracks:       make(map[models.Kind]*trackRunner),
	}
}

// Register attaches one orchestrator with its polling interval.
func (s *Scheduler) Register(orch *update.Orchestrator, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[orch.Kind()] = &trackRunner{
		orch:        orch,
		interval:    interval,
		reconfigure: make(chan time.Duration, 1),
	}
}

// Events returns the notification channel consumed by the UI collaborator.
func (s *Scheduler) Events() <-chan models.Event {
	return s.events
}

// Notify delivers an event without ever blocking the sender. When the UI
// is not draining the channel, the oldest pending event is dropped.
func (s *Scheduler) Notify(ev models.Event) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
		}
	}
}

// Start launches one timer loop per registered track.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, r := range s.tracks {
		log.Printf("[Scheduler] starting %s track (interval: %v)", kind, r.interval)
		s.wg.Add(1)
		go s.runTrack(kind, r)
	}
}

// Stop stops the timer loops and waits for in-flight jobs to finish or
// reach a cancellation boundary.
func (s *Scheduler) Stop() {
	log.Printf("[Scheduler] stopping...")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	close(s.events)
	log.Printf("[Scheduler] stopped")
}

// CheckNow triggers an immediate check for one kind, subject to the same
// single-job-per-kind rule as scheduled ticks.
func (s *Scheduler) CheckNow(kind models.Kind) bool {
	s.mu.Lock()
	r, ok := s.tracks[kind]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.trigger(kind, r, "manual request")
}

// Cancel requests cancellation of the in-flight job for one kind. The
// job stops at the next phase boundary; an apply in progress is never
// interrupted.
func (s *Scheduler) Cancel(kind models.Kind) {
	s.mu.Lock()
	r, ok := s.tracks[kind]
	s.mu.Unlock()
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelJob != nil {
		log.Printf("[Scheduler] cancel requested for %s", kind)
		r.cancelJob()
	}
}

// Configure adjusts polling intervals and backup retention at runtime.
// Zero values leave the current setting unchanged.
func (s *Scheduler) Configure(appInterval, modelInterval time.Duration, retention int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(kind models.Kind, interval time.Duration) {
		r, ok := s.tracks[kind]
		if !ok || interval <= 0 {
			return
		}
		r.interval = interval
		select {
		case r.reconfigure <- interval:
		default:
		}
	}
	apply(models.KindApplication, appInterval)
	apply(models.KindModelSet, modelInterval)

	if retention >= 1 {
		for _, r := range s.tracks {
			r.orch.SetRetention(retention)
		}
	}
}

// runTrack is the timer loop for one track. It waits out the startup
// delay, checks once immediately, then polls on the configured interval.
func (s *Scheduler) runTrack(kind models.Kind, r *trackRunner) {
	defer s.wg.Done()

	if s.startupDelay > 0 {
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.startupDelay):
		}
	}

	s.trigger(kind, r, "startup")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.trigger(kind, r, "scheduled tick")
		case interval := <-r.reconfigure:
			log.Printf("[Scheduler] %s interval changed to %v", kind, interval)
			ticker.Reset(interval)
		}
	}
}

// trigger starts one update cycle unless a job for this kind is already
// in flight, in which case the trigger is coalesced. The stopped check
// and wg.Add share one critical section so a trigger racing Stop either
// lands before the WaitGroup drains or is refused outright, never adding
// a job after the event channel closed.
func (s *Scheduler) trigger(kind models.Kind, r *trackRunner, reason string) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		s.mu.Unlock()
		log.Printf("[Scheduler] %s job already in flight, skipping %s", kind, reason)
		return false
	}
	jobCtx, cancelJob := context.WithCancel(s.ctx)
	r.running = true
	r.cancelJob = cancelJob
	r.mu.Unlock()

	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		defer func() {
			cancelJob()
			r.mu.Lock()
			r.running = false
			r.cancelJob = nil
			r.mu.Unlock()
		}()

		// Failures are logged and reported by the orchestrator; the
		// next tick retries from scratch.
		_ = r.orch.RunOnce(jobCtx)
	}()
	return true
}
