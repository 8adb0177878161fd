package backup

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

const infoFileName = "backup_info.json"

// backupInfo is the metadata file written next to each snapshot.
type backupInfo struct {
	Kind      models.Kind    `json:"kind"`
	Version   models.Version `json:"version"`
	Origin    string         `json:"origin"`
	CreatedAt time.Time      `json:"created_at"`
}

// Vault creates, retains, and restores point-in-time backups of the
// replaceable assets. Snapshots are copies, never destructive moves, so a
// failed snapshot leaves the live asset untouched.
type Vault struct {
	dir string
	mu  sync.Mutex
}

// NewVault creates a vault rooted at dir.
func NewVault(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Vault{dir: dir}, nil
}

// Snapshot copies the asset at assetPath into a new versioned backup
// location. A missing asset is not an error: there is simply nothing to
// back up yet (fresh install), and restore will report no backup exists.
func (v *Vault) Snapshot(kind models.Kind, assetPath string, version models.Version) (*models.Backup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := os.Stat(assetPath); os.IsNotExist(err) {
		return nil, nil
	}

	now := time.Now()
	name := fmt.Sprintf("backup_%s_%s", version, now.Format("20060102_150405.000"))
	location := filepath.Join(v.dir, string(kind), name)

	if err := os.MkdirAll(location, 0755); err != nil {
		return nil, fmt.Errorf("%w: create backup dir: %v", models.ErrBackupFailed, err)
	}

	if err := copyTree(assetPath, filepath.Join(location, filepath.Base(assetPath))); err != nil {
		os.RemoveAll(location)
		return nil, fmt.Errorf("%w: %v", models.ErrBackupFailed, err)
	}

	info := backupInfo{Kind: kind, Version: version, Origin: assetPath, CreatedAt: now}
	if err := writeInfo(filepath.Join(location, infoFileName), info); err != nil {
		os.RemoveAll(location)
		return nil, fmt.Errorf("%w: %v", models.ErrBackupFailed, err)
	}

	return &models.Backup{Kind: kind, Version: version, Location: location, CreatedAt: now}, nil
}

// Restore replaces the live asset with the most recent backup of that
// kind. Returns ErrRestoreUnavailable if no backup exists.
func (v *Vault) Restore(kind models.Kind) (*models.Backup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	backups, err := v.listLocked(kind)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, models.ErrRestoreUnavailable
	}

	latest := backups[0]
	info, err := readInfo(filepath.Join(latest.Location, infoFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup metadata: %w", err)
	}

	src := filepath.Join(latest.Location, filepath.Base(info.Origin))

	// Clear whatever half-state the failed apply left behind, then copy
	// the snapshot back over the live location.
	if err := os.RemoveAll(info.Origin); err != nil {
		return nil, fmt.Errorf("failed to clear live asset: %w", err)
	}
	if err := copyTree(src, info.Origin); err != nil {
		return nil, fmt.Errorf("failed to restore backup: %w", err)
	}

	return &latest, nil
}

// Latest returns the most recent backup of a kind without restoring it.
func (v *Vault) Latest(kind models.Kind) (*models.Backup, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	backups, err := v.listLocked(kind)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, models.ErrRestoreUnavailable
	}
	return &backups[0], nil
}

// Prune removes backups beyond the retention count, oldest first.
func (v *Vault) Prune(kind models.Kind, keep int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if keep < 1 {
		keep = 1
	}

	backups, err := v.listLocked(kind)
	if err != nil {
		return err
	}

	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.RemoveAll(b.Location); err != nil {
			return fmt.Errorf("failed to prune backup %s: %w", b.Location, err)
		}
	}
	return nil
}

// listLocked returns all backups of a kind, newest first.
func (v *Vault) listLocked(kind models.Kind) ([]models.Backup, error) {
	kindDir := filepath.Join(v.dir, string(kind))
	entries, err := os.ReadDir(kindDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var backups []models.Backup
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		location := filepath.Join(kindDir, e.Name())
		info, err := readInfo(filepath.Join(location, infoFileName))
		if err != nil {
			// Skip directories without readable metadata
			continue
		}
		backups = append(backups, models.Backup{
			Kind:      kind,
			Version:   info.Version,
			Location:  location,
			CreatedAt: info.CreatedAt,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func writeInfo(path string, info backupInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readInfo(path string) (*backupInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info backupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// copyTree copies a file or directory tree from src to dst.
func copyTree(src, dst string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return copyFile(src, dst, fi.Mode())
	}

	if err := os.MkdirAll(dst, fi.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := copyTree(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
