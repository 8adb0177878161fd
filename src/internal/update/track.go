package update

import (
	"context"

	"github.com/vnvoice-dev/govoxsync/src/internal/remote"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// Track prepares and applies updates for one managed asset kind. The
// application binary and the model set implement the same contract so a
// single orchestrator drives both.
type Track interface {
	Kind() models.Kind

	// LivePath is the asset location snapshotted before and replaced
	// during apply.
	LivePath() string

	// Plan queries the remote source and returns a job targeting the
	// newest available version. The job has not staged anything yet.
	Plan(ctx context.Context) (Job, error)
}

// Job covers one target version from staging through apply. Jobs are
// single-use and discarded when the cycle ends.
type Job interface {
	TargetVersion() models.Version

	// Stage downloads, and for encrypted model entries decrypts, every
	// artifact into the staging area. Nothing live is touched.
	Stage(ctx context.Context, progress remote.ProgressFunc) error

	// Verify checks the integrity of every staged artifact against the
	// remote declaration. Runs only after Stage completed fully.
	Verify() error

	// Apply swaps the staged, verified artifacts into the live location.
	Apply() error

	// Undo reverts any side effects Apply left outside the live asset,
	// ahead of the vault restore during rollback. A no-op when Apply has
	// no such effects or never ran.
	Undo()

	// Discard removes all staged files. Safe to call at any point.
	Discard()
}
