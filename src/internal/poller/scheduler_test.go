package poller_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/internal/backup"
	"github.com/vnvoice-dev/govoxsync/src/internal/poller"
	"github.com/vnvoice-dev/govoxsync/src/internal/remote"
	"github.com/vnvoice-dev/govoxsync/src/internal/update"
	"github.com/vnvoice-dev/govoxsync/src/internal/version"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// blockingTrack parks Plan until it is fed a token, so tests control
// exactly when a cycle completes. The returned job is always up to date,
// keeping cycles free of staging side effects.
type blockingTrack struct {
	kind    models.Kind
	proceed chan struct{}
}

func (t *blockingTrack) Kind() models.Kind { return t.kind }
func (t *blockingTrack) LivePath() string  { return "" }

func (t *blockingTrack) Plan(ctx context.Context) (update.Job, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.proceed:
		return idleJob{}, nil
	}
}

type idleJob struct{}

func (idleJob) TargetVersion() models.Version                          { return models.Version{} }
func (idleJob) Stage(ctx context.Context, p remote.ProgressFunc) error { return nil }
func (idleJob) Verify() error                                          { return nil }
func (idleJob) Apply() error                                           { return nil }
func (idleJob) Undo()                                                  {}
func (idleJob) Discard()                                               {}

func newTestOrchestrator(t *testing.T, track update.Track, runs *int64) *update.Orchestrator {
	t.Helper()

	store, err := version.NewStore(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	vault, err := backup.NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return update.NewOrchestrator(track, store, vault, 1, func(ev models.Event) {
		if ev.Phase == models.PhaseIdle && ev.Err == nil {
			atomic.AddInt64(runs, 1)
		}
	})
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSingleJobPerKind(t *testing.T) {
	t.Parallel()

	track := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{})}
	var runs int64
	orch := newTestOrchestrator(t, track, &runs)

	// Startup delay far in the future keeps the timer loop out of the way.
	sched := poller.NewScheduler(time.Hour)
	sched.Register(orch, time.Hour)
	sched.Start()
	defer sched.Stop()

	var started int64
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sched.CheckNow(models.KindApplication) {
				atomic.AddInt64(&started, 1)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&started); got != 1 {
		t.Fatalf("concurrent triggers started %d jobs, want 1", got)
	}

	// Finishing the cycle frees the kind for the next trigger.
	track.proceed <- struct{}{}
	waitUntil(t, func() bool { return atomic.LoadInt64(&runs) == 1 })
	waitUntil(t, func() bool { return sched.CheckNow(models.KindApplication) })

	track.proceed <- struct{}{}
	waitUntil(t, func() bool { return atomic.LoadInt64(&runs) == 2 })
}

func TestKindsRunIndependently(t *testing.T) {
	t.Parallel()

	appTrack := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{})}
	modelTrack := &blockingTrack{kind: models.KindModelSet, proceed: make(chan struct{})}
	var appRuns, modelRuns int64

	sched := poller.NewScheduler(time.Hour)
	sched.Register(newTestOrchestrator(t, appTrack, &appRuns), time.Hour)
	sched.Register(newTestOrchestrator(t, modelTrack, &modelRuns), time.Hour)
	sched.Start()
	defer sched.Stop()

	// An in-flight app job must not block a model trigger.
	if !sched.CheckNow(models.KindApplication) {
		t.Fatal("app trigger refused")
	}
	if !sched.CheckNow(models.KindModelSet) {
		t.Fatal("model trigger refused while app job in flight")
	}

	modelTrack.proceed <- struct{}{}
	waitUntil(t, func() bool { return atomic.LoadInt64(&modelRuns) == 1 })
	if got := atomic.LoadInt64(&appRuns); got != 0 {
		t.Fatalf("app job finished unexpectedly, runs = %d", got)
	}
	appTrack.proceed <- struct{}{}
	waitUntil(t, func() bool { return atomic.LoadInt64(&appRuns) == 1 })
}

func TestCancelFreesTheKind(t *testing.T) {
	t.Parallel()

	track := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{})}
	var runs int64
	orch := newTestOrchestrator(t, track, &runs)

	sched := poller.NewScheduler(time.Hour)
	sched.Register(orch, time.Hour)
	sched.Start()
	defer sched.Stop()

	if !sched.CheckNow(models.KindApplication) {
		t.Fatal("trigger refused")
	}
	sched.Cancel(models.KindApplication)

	// The canceled job unwinds and a fresh trigger is accepted.
	waitUntil(t, func() bool { return sched.CheckNow(models.KindApplication) })
}

func TestStopUnblocksInFlightJob(t *testing.T) {
	t.Parallel()

	track := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{})}
	var runs int64
	orch := newTestOrchestrator(t, track, &runs)

	sched := poller.NewScheduler(time.Hour)
	sched.Register(orch, time.Hour)
	sched.Start()

	if !sched.CheckNow(models.KindApplication) {
		t.Fatal("trigger refused")
	}

	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not unblock the in-flight job")
	}

	// The event channel is closed once everything stopped.
	for range sched.Events() {
	}
}

func TestCheckNowAfterStopRefused(t *testing.T) {
	t.Parallel()

	track := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{})}
	var runs int64
	orch := newTestOrchestrator(t, track, &runs)

	sched := poller.NewScheduler(time.Hour)
	sched.Register(orch, time.Hour)
	sched.Start()
	sched.Stop()

	// The event channel is closed; a late trigger (e.g. a tray click
	// racing quit) must be refused rather than start a job that would
	// publish into it.
	if sched.CheckNow(models.KindApplication) {
		t.Fatal("trigger accepted after Stop")
	}
}

func TestStartupTriggerAfterDelay(t *testing.T) {
	t.Parallel()

	track := &blockingTrack{kind: models.KindApplication, proceed: make(chan struct{}, 1)}
	track.proceed <- struct{}{}
	var runs int64
	orch := newTestOrchestrator(t, track, &runs)

	sched := poller.NewScheduler(20 * time.Millisecond)
	sched.Register(orch, time.Hour)
	sched.Start()
	defer sched.Stop()

	waitUntil(t, func() bool { return atomic.LoadInt64(&runs) == 1 })
}

func TestNotifyNeverBlocks(t *testing.T) {
	t.Parallel()

	sched := poller.NewScheduler(time.Hour)

	// Well past the channel capacity; the oldest events are dropped.
	for i := 0; i < 200; i++ {
		sched.Notify(models.Event{Kind: models.KindApplication, Phase: models.PhaseDownloading, Progress: float64(i)})
	}

	drained := 0
	for {
		select {
		case <-sched.Events():
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 || drained > 64 {
		t.Fatalf("drained %d events, want between 1 and 64", drained)
	}
}
