package models

import "time"

// Kind identifies one of the two independently versioned tracks.
type Kind string

const (
	KindApplication Kind = "application"
	KindModelSet    Kind = "models"
)

// InstalledState is the single persisted source of truth for what is
// currently installed. Owned exclusively by the version store and only
// mutated after a successful apply.
type InstalledState struct {
	AppVersion           Version    `json:"app_version"`
	ModelManifestVersion Version    `json:"model_manifest_version"`
	LastAppCheck         *time.Time `json:"last_app_check,omitempty"`
	LastModelCheck       *time.Time `json:"last_model_check,omitempty"`
}

// VersionFor returns the installed version for one track.
func (s *InstalledState) VersionFor(kind Kind) Version {
	if kind == KindApplication {
		return s.AppVersion
	}
	return s.ModelManifestVersion
}

// Backup records one retained point-in-time snapshot of a replaceable asset.
type Backup struct {
	Kind      Kind      `json:"kind"`
	Version   Version   `json:"version"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// Phase is one state of the update state machine.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseDownloading Phase = "downloading"
	PhaseVerifying   Phase = "verifying"
	PhaseBackingUp   Phase = "backing_up"
	PhaseApplying    Phase = "applying"
	PhaseCommitting  Phase = "committing"
	PhaseRollingBack Phase = "rolling_back"
)

// UpdateJob is the transient in-memory record of one in-flight update.
// At most one live job exists per kind at any time.
type UpdateJob struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	CurrentVersion Version   `json:"current_version"`
	TargetVersion  Version   `json:"target_version"`
	Phase          Phase     `json:"phase"`
	StartedAt      time.Time `json:"started_at"`
}

// Event is an asynchronous progress or result notification delivered to
// the UI collaborator. Severe marks the apply-then-restore double failure
// that requires manual intervention; everything else is routine.
type Event struct {
	Kind     Kind    `json:"kind"`
	Phase    Phase   `json:"phase"`
	Version  Version `json:"version,omitempty"`
	Progress float64 `json:"progress,omitempty"`
	Message  string  `json:"message,omitempty"`
	Err      error   `json:"-"`
	Severe   bool    `json:"severe,omitempty"`
}
