package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/internal/integrity"
	"github.com/vnvoice-dev/govoxsync/src/internal/remote"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// relaunchMarkerName is written next to the live binary after a
// successful apply. The host process reads it on next start and
// re-launches into the staged binary; a running executable cannot
// overwrite its own image.
const relaunchMarkerName = "relaunch.json"

// relaunchMarker tells the launcher which binary to switch to.
type relaunchMarker struct {
	Binary    string         `json:"binary"`
	Version   models.Version `json:"version"`
	StagedAt  time.Time      `json:"staged_at"`
	Checksum  string         `json:"checksum"`
}

// AppTrack manages the application binary.
type AppTrack struct {
	catalog    *remote.Client
	verifier   *integrity.Verifier
	binaryPath string
	stagingDir string
}

// NewAppTrack creates the application-binary track. binaryPath is the
// live executable location.
func NewAppTrack(catalog *remote.Client, verifier *integrity.Verifier, binaryPath, stagingDir string) *AppTrack {
	return &AppTrack{
		catalog:    catalog,
		verifier:   verifier,
		binaryPath: binaryPath,
		stagingDir: filepath.Join(stagingDir, string(models.KindApplication)),
	}
}

func (t *AppTrack) Kind() models.Kind { return models.KindApplication }

func (t *AppTrack) LivePath() string { return t.binaryPath }

// Plan asks the release feed for the latest descriptor.
func (t *AppTrack) Plan(ctx context.Context) (Job, error) {
	desc, err := t.catalog.FetchLatestRelease(ctx)
	if err != nil {
		return nil, err
	}

	return &appJob{
		track:      t,
		descriptor: desc,
		stagedPath: filepath.Join(t.stagingDir, desc.Version.String(), filepath.Base(t.binaryPath)),
	}, nil
}

// appJob stages and applies one application release.
type appJob struct {
	track      *AppTrack
	descriptor *models.ReleaseDescriptor
	stagedPath string
}

func (j *appJob) TargetVersion() models.Version { return j.descriptor.Version }

func (j *appJob) Stage(ctx context.Context, progress remote.ProgressFunc) error {
	return j.track.catalog.Download(ctx, j.descriptor.ArtifactURL, j.stagedPath, j.descriptor.Size, progress)
}

func (j *appJob) Verify() error {
	ok, err := j.track.verifier.Verify(j.stagedPath, j.descriptor.Checksum)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrChecksumMismatch, err)
	}
	if !ok {
		return fmt.Errorf("%w: staged binary does not match release checksum", models.ErrChecksumMismatch)
	}
	return nil
}

// Apply installs the verified binary next to the live one under a .new
// suffix and writes the relaunch marker. The live binary itself stays in
// place until the host relaunches.
func (j *appJob) Apply() error {
	newPath := j.track.binaryPath + ".new"

	if err := os.Rename(j.stagedPath, newPath); err != nil {
		// Staging may live on another volume; fall back to a copy.
		if copyErr := copyFile(j.stagedPath, newPath); copyErr != nil {
			return fmt.Errorf("%w: install new binary: %v", models.ErrApplyFailed, copyErr)
		}
	}

	// Post-install sanity check: the installed file must be complete.
	fi, err := os.Stat(newPath)
	if err != nil || fi.Size() == 0 || (j.descriptor.Size > 0 && fi.Size() != j.descriptor.Size) {
		os.Remove(newPath)
		return fmt.Errorf("%w: installed binary failed sanity check", models.ErrApplyFailed)
	}

	marker := relaunchMarker{
		Binary:   newPath,
		Version:  j.descriptor.Version,
		StagedAt: time.Now(),
		Checksum: j.descriptor.Checksum,
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		os.Remove(newPath)
		return fmt.Errorf("%w: encode relaunch marker: %v", models.ErrApplyFailed, err)
	}

	markerPath := filepath.Join(filepath.Dir(j.track.binaryPath), relaunchMarkerName)
	if err := os.WriteFile(markerPath, data, 0644); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("%w: write relaunch marker: %v", models.ErrApplyFailed, err)
	}

	return nil
}

// Undo removes the installed .new binary and the relaunch marker, so a
// rolled-back update can never be picked up by the host on relaunch.
func (j *appJob) Undo() {
	os.Remove(j.track.binaryPath + ".new")
	os.Remove(filepath.Join(filepath.Dir(j.track.binaryPath), relaunchMarkerName))
}

func (j *appJob) Discard() {
	os.RemoveAll(filepath.Dir(j.stagedPath))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
