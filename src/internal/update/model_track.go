package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vnvoice-dev/govoxsync/src/internal/integrity"
	"github.com/vnvoice-dev/govoxsync/src/internal/remote"
	"github.com/vnvoice-dev/govoxsync/src/internal/secrets"
	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// ModelTrack manages the model asset directory consumed by the synthesis
// engine. Encrypted entries are decrypted during staging with the
// injected decryption capability; the engine never handles keys itself.
type ModelTrack struct {
	catalog    *remote.Client
	verifier   *integrity.Verifier
	decryptor  secrets.Decryptor
	modelsDir  string
	stagingDir string
}

// NewModelTrack creates the model-set track. modelsDir is the live
// directory the synthesis engine reads from.
func NewModelTrack(catalog *remote.Client, verifier *integrity.Verifier, decryptor secrets.Decryptor, modelsDir, stagingDir string) *ModelTrack {
	return &ModelTrack{
		catalog:    catalog,
		verifier:   verifier,
		decryptor:  decryptor,
		modelsDir:  modelsDir,
		stagingDir: filepath.Join(stagingDir, string(models.KindModelSet)),
	}
}

func (t *ModelTrack) Kind() models.Kind { return models.KindModelSet }

func (t *ModelTrack) LivePath() string { return t.modelsDir }

// Plan asks the manifest source for the current desired model set.
func (t *ModelTrack) Plan(ctx context.Context) (Job, error) {
	manifest, err := t.catalog.FetchManifest(ctx)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(t.stagingDir, manifest.Version.String())
	return &modelJob{
		track:    t,
		manifest: manifest,
		root:     root,
		treeDir:  filepath.Join(root, "tree"),
	}, nil
}

// modelJob stages and applies one complete manifest version. The staged
// tree mirrors the final model directory so apply is a directory rename.
type modelJob struct {
	track    *ModelTrack
	manifest *models.ModelManifest
	root     string
	treeDir  string
}

func (j *modelJob) TargetVersion() models.Version { return j.manifest.Version }

// Stage downloads every entry and decrypts the ones marked encrypted
// into the staged tree. A decryption failure surfaces as
// ErrDecryptionFailed, which the orchestrator treats exactly like a
// verification failure: staged files discarded, live tree untouched.
func (j *modelJob) Stage(ctx context.Context, progress remote.ProgressFunc) error {
	downloadDir := filepath.Join(j.root, "download")

	for _, entry := range j.manifest.Entries {
		rawPath := filepath.Join(downloadDir, entry.Name)
		if err := j.track.catalog.Download(ctx, entry.URL, rawPath, entry.Size, progress); err != nil {
			return err
		}

		finalPath := filepath.Join(j.treeDir, entry.Name)
		if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
			return fmt.Errorf("failed to create staging tree: %w", err)
		}

		if !entry.Encrypted {
			if err := os.Rename(rawPath, finalPath); err != nil {
				return fmt.Errorf("failed to stage %s: %w", entry.Name, err)
			}
			continue
		}

		if j.track.decryptor == nil {
			return fmt.Errorf("%w: no decryption capability for %s", models.ErrDecryptionFailed, entry.Name)
		}

		sealed, err := os.ReadFile(rawPath)
		if err != nil {
			return fmt.Errorf("%w: read sealed %s: %v", models.ErrDecryptionFailed, entry.Name, err)
		}
		plain, err := j.track.decryptor.Decrypt(sealed)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrDecryptionFailed, entry.Name, err)
		}
		if err := os.WriteFile(finalPath, plain, 0644); err != nil {
			return fmt.Errorf("failed to stage %s: %w", entry.Name, err)
		}
		os.Remove(rawPath)
	}

	return nil
}

// Verify checks every staged entry against the manifest checksum. The
// manifest declares checksums of the plaintext content.
func (j *modelJob) Verify() error {
	for _, entry := range j.manifest.Entries {
		ok, err := j.track.verifier.Verify(filepath.Join(j.treeDir, entry.Name), entry.Checksum)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", models.ErrChecksumMismatch, entry.Name, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s does not match manifest", models.ErrChecksumMismatch, entry.Name)
		}
	}
	return nil
}

// Apply swaps the staged tree into the live location with directory
// renames, so a concurrent reader sees either the fully-old or fully-new
// tree and never a partial mix.
func (j *modelJob) Apply() error {
	retired := j.track.modelsDir + ".old"
	os.RemoveAll(retired)

	hadLive := true
	if err := os.Rename(j.track.modelsDir, retired); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("%w: retire live models: %v", models.ErrApplyFailed, err)
		}
		hadLive = false
	}

	if err := os.Rename(j.treeDir, j.track.modelsDir); err != nil {
		// Put the previous tree back before reporting failure.
		if hadLive {
			if restoreErr := os.Rename(retired, j.track.modelsDir); restoreErr != nil {
				return fmt.Errorf("%w: swap failed and old tree not restored: %v (restore: %v)",
					models.ErrApplyFailed, err, restoreErr)
			}
		}
		return fmt.Errorf("%w: install staged models: %v", models.ErrApplyFailed, err)
	}

	os.RemoveAll(retired)
	return nil
}

// Undo has nothing to revert: a model apply touches only the live
// directory, which the vault restore rewrites wholesale.
func (j *modelJob) Undo() {}

func (j *modelJob) Discard() {
	os.RemoveAll(j.root)
}
