package update

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/vnvoice-dev/govoxsync/src/internal/backup"
	"github.com/vnvoice-dev/govoxsync/src/internal/version"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// Notifier receives asynchronous progress and result events. Delivery
// must not block the orchestrator.
type Notifier func(models.Event)

// Orchestrator drives one track through the update state machine:
// Checking, Downloading, Verifying, BackingUp, Applying, Committing,
// with RollingBack on failure. Verification happens before backup so a
// bad download never triggers a backup/restore cycle, and backup happens
// before apply so rollback from any later point is a pure restore.
type Orchestrator struct {
	track     Track
	store     *version.Store
	vault     *backup.Vault
	retention int
	notify    Notifier

	mu  sync.RWMutex
	job *models.UpdateJob
}

// NewOrchestrator creates an orchestrator for one track.
func NewOrchestrator(track Track, store *version.Store, vault *backup.Vault, retention int, notify Notifier) *Orchestrator {
	if notify == nil {
		notify = func(models.Event) {}
	}
	return &Orchestrator{
		track:     track,
		store:     store,
		vault:     vault,
		retention: retention,
		notify:    notify,
	}
}

// Kind returns the track this orchestrator manages.
func (o *Orchestrator) Kind() models.Kind { return o.track.Kind() }

// CurrentJob returns the in-flight job, if any.
func (o *Orchestrator) CurrentJob() (models.UpdateJob, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.job == nil {
		return models.UpdateJob{}, false
	}
	return *o.job, true
}

// SetRetention adjusts how many backups are kept after a successful apply.
func (o *Orchestrator) SetRetention(keep int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if keep >= 1 {
		o.retention = keep
	}
}

// RunOnce executes one full update cycle. Remote and verification
// failures are recoverable: the cycle reports failure and the next
// scheduled tick retries from scratch. Cancellation is honored at phase
// boundaries only; once Applying starts the cycle finishes or rolls back.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	kind := o.track.Kind()

	state, err := o.store.Load()
	if errors.Is(err, models.ErrStorageCorrupt) {
		// Self-healing: continue from 0.0.0 and force a full resync.
		log.Printf("[%s] installed state unreadable, forcing full resync: %v", kind, err)
	} else if err != nil {
		return o.fail(kind, models.PhaseChecking, err)
	}
	current := state.VersionFor(kind)

	o.emit(models.Event{Kind: kind, Phase: models.PhaseChecking, Version: current})
	log.Printf("[%s] checking for updates (installed: %s)", kind, current)

	job, err := o.track.Plan(ctx)
	if err != nil {
		return o.fail(kind, models.PhaseChecking, err)
	}
	if err := o.store.TouchChecked(kind, time.Now()); err != nil {
		log.Printf("[%s] warning: failed to record check time: %v", kind, err)
	}

	target := job.TargetVersion()
	if !target.NewerThan(current) {
		log.Printf("[%s] already up to date (remote: %s)", kind, target)
		o.emit(models.Event{Kind: kind, Phase: models.PhaseIdle, Version: current, Message: "up to date"})
		return nil
	}

	o.setJob(&models.UpdateJob{
		ID:             uuid.NewString(),
		Kind:           kind,
		CurrentVersion: current,
		TargetVersion:  target,
		Phase:          models.PhaseDownloading,
		StartedAt:      time.Now(),
	})
	defer o.setJob(nil)

	log.Printf("[%s] update available: %s -> %s", kind, current, target)

	// Downloading
	o.setPhase(models.PhaseDownloading)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseDownloading, Version: target})
	if err := job.Stage(ctx, o.progressFunc(kind, target)); err != nil {
		job.Discard()
		return o.fail(kind, models.PhaseDownloading, err)
	}
	if err := o.checkpoint(ctx, job, kind); err != nil {
		return err
	}

	// Verifying
	o.setPhase(models.PhaseVerifying)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseVerifying, Version: target})
	if err := job.Verify(); err != nil {
		// Nothing live was touched; rollback is just discarding staged files.
		job.Discard()
		return o.fail(kind, models.PhaseVerifying, err)
	}
	if err := o.checkpoint(ctx, job, kind); err != nil {
		return err
	}

	// BackingUp: snapshot of the currently installed asset, strictly
	// before the live asset is touched.
	o.setPhase(models.PhaseBackingUp)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseBackingUp, Version: current})
	if _, err := o.vault.Snapshot(kind, o.track.LivePath(), current); err != nil {
		job.Discard()
		return o.fail(kind, models.PhaseBackingUp, err)
	}

	// Applying: no cancellation from here until the swap finished or was
	// rolled back.
	o.setPhase(models.PhaseApplying)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseApplying, Version: target})
	log.Printf("[%s] applying version %s", kind, target)
	if err := job.Apply(); err != nil {
		o.rollback(kind, job)
		return err
	}

	// Committing: the point of no return.
	o.setPhase(models.PhaseCommitting)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseCommitting, Version: target})
	if err := o.store.Commit(kind, target); err != nil {
		o.rollback(kind, job)
		return fmt.Errorf("%w: commit: %v", models.ErrApplyFailed, err)
	}

	if err := o.vault.Prune(kind, o.keep()); err != nil {
		log.Printf("[%s] warning: failed to prune backups: %v", kind, err)
	}
	job.Discard()

	log.Printf("[%s] successfully updated to %s", kind, target)
	o.emit(models.Event{
		Kind:    kind,
		Phase:   models.PhaseIdle,
		Version: target,
		Message: fmt.Sprintf("updated to %s", target),
	})
	return nil
}

// checkpoint honors cancellation between phases.
func (o *Orchestrator) checkpoint(ctx context.Context, job Job, kind models.Kind) error {
	if err := ctx.Err(); err != nil {
		job.Discard()
		log.Printf("[%s] cycle canceled", kind)
		o.emit(models.Event{Kind: kind, Phase: models.PhaseIdle, Message: "canceled"})
		return err
	}
	return nil
}

// rollback restores the previous asset from the most recent backup.
// A failed restore is the one severe, user-actionable condition.
func (o *Orchestrator) rollback(kind models.Kind, job Job) {
	o.setPhase(models.PhaseRollingBack)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseRollingBack})
	log.Printf("[%s] apply failed, restoring previous version", kind)

	job.Undo()
	job.Discard()

	if _, err := o.vault.Restore(kind); err != nil {
		log.Printf("[%s] SEVERE: restore after failed apply also failed: %v", kind, err)
		o.emit(models.Event{
			Kind:    kind,
			Phase:   models.PhaseIdle,
			Err:     err,
			Severe:  true,
			Message: "update failed and the previous version could not be restored",
		})
		return
	}

	log.Printf("[%s] previous version restored", kind)
	o.emit(models.Event{
		Kind:    kind,
		Phase:   models.PhaseIdle,
		Message: "update failed, previous version restored",
	})
}

// fail logs and reports a routine, will-retry-later failure.
func (o *Orchestrator) fail(kind models.Kind, phase models.Phase, err error) error {
	log.Printf("[%s] %s failed: %v", kind, phase, err)
	o.emit(models.Event{Kind: kind, Phase: models.PhaseIdle, Err: err, Message: "update check failed, will retry"})
	return err
}

func (o *Orchestrator) keep() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.retention
}

func (o *Orchestrator) progressFunc(kind models.Kind, target models.Version) func(downloaded, total int64) {
	return func(downloaded, total int64) {
		ev := models.Event{
			Kind:    kind,
			Phase:   models.PhaseDownloading,
			Version: target,
		}
		if total > 0 {
			ev.Progress = float64(downloaded) / float64(total) * 100
			ev.Message = fmt.Sprintf("downloading %s / %s",
				humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)))
		} else {
			ev.Message = fmt.Sprintf("downloading %s", humanize.Bytes(uint64(downloaded)))
		}
		o.emit(ev)
	}
}

func (o *Orchestrator) setJob(job *models.UpdateJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.job = job
}

func (o *Orchestrator) setPhase(phase models.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.job != nil {
		o.job.Phase = phase
	}
}

func (o *Orchestrator) emit(ev models.Event) {
	o.notify(ev)
}
