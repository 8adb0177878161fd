package backup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

func TestSnapshotRestoreRoundTripFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	asset := filepath.Join(root, "voxstudio.bin")
	original := []byte("binary v1.0.0")
	if err := os.WriteFile(asset, original, 0755); err != nil {
		t.Fatalf("seed asset: %v", err)
	}

	vault, err := NewVault(filepath.Join(root, ".backup"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	b, err := vault.Snapshot(models.KindApplication, asset, models.Version{Major: 1})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if b == nil {
		t.Fatalf("expected a backup record")
	}

	// The original asset is untouched by snapshotting.
	data, err := os.ReadFile(asset)
	if err != nil || string(data) != string(original) {
		t.Fatalf("snapshot must not disturb the live asset: %q %v", data, err)
	}

	// Clobber the live asset, then restore.
	if err := os.WriteFile(asset, []byte("half-written v1.0.1"), 0755); err != nil {
		t.Fatalf("clobber asset: %v", err)
	}
	restored, err := vault.Restore(models.KindApplication)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Version != (models.Version{Major: 1}) {
		t.Errorf("restored version = %v, want 1.0.0", restored.Version)
	}

	data, err = os.ReadFile(asset)
	if err != nil {
		t.Fatalf("read restored asset: %v", err)
	}
	if string(data) != string(original) {
		t.Fatalf("restore must reproduce the asset byte-for-byte, got %q", data)
	}
}

func TestSnapshotRestoreRoundTripDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	modelsDir := filepath.Join(root, "models")
	if err := os.MkdirAll(filepath.Join(modelsDir, "vocoder"), 0755); err != nil {
		t.Fatalf("seed models dir: %v", err)
	}
	files := map[string]string{
		filepath.Join(modelsDir, "config.yaml"):          "rate: 22050",
		filepath.Join(modelsDir, "vocoder", "m.weights"): "weights-old",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}

	vault, err := NewVault(filepath.Join(root, ".backup"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if _, err := vault.Snapshot(models.KindModelSet, modelsDir, models.Version{Major: 1}); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	// Simulate a partially applied new tree.
	os.RemoveAll(modelsDir)
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		t.Fatalf("recreate dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelsDir, "junk"), []byte("partial"), 0644); err != nil {
		t.Fatalf("seed junk: %v", err)
	}

	if _, err := vault.Restore(models.KindModelSet); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for path, content := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("restored tree missing %s: %v", path, err)
		}
		if string(data) != content {
			t.Errorf("%s = %q, want %q", path, data, content)
		}
	}
	if _, err := os.Stat(filepath.Join(modelsDir, "junk")); !os.IsNotExist(err) {
		t.Errorf("restore must remove files that were not in the snapshot")
	}
}

func TestRestoreUnavailable(t *testing.T) {
	t.Parallel()

	vault, err := NewVault(t.TempDir())
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	if _, err := vault.Restore(models.KindApplication); !errors.Is(err, models.ErrRestoreUnavailable) {
		t.Fatalf("expected ErrRestoreUnavailable, got %v", err)
	}
}

func TestSnapshotMissingAssetIsNoOp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	vault, err := NewVault(filepath.Join(root, ".backup"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	b, err := vault.Snapshot(models.KindApplication, filepath.Join(root, "missing"), models.Version{})
	if err != nil {
		t.Fatalf("Snapshot of a missing asset must not fail: %v", err)
	}
	if b != nil {
		t.Fatalf("nothing should be recorded for a missing asset")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	asset := filepath.Join(root, "asset.bin")
	vault, err := NewVault(filepath.Join(root, ".backup"))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := os.WriteFile(asset, []byte{byte(i)}, 0644); err != nil {
			t.Fatalf("seed asset: %v", err)
		}
		if _, err := vault.Snapshot(models.KindApplication, asset, models.Version{Major: i}); err != nil {
			t.Fatalf("Snapshot %d: %v", i, err)
		}
	}

	if err := vault.Prune(models.KindApplication, 1); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	latest, err := vault.Latest(models.KindApplication)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Version != (models.Version{Major: 3}) {
		t.Errorf("latest after prune = %v, want 3.0.0", latest.Version)
	}

	entries, err := os.ReadDir(filepath.Join(root, ".backup", string(models.KindApplication)))
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 retained backup, found %d", len(entries))
	}
}
