package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/drvig/updns/pkg/types"
)

const manifestName = "manifest.yaml"

// Manager takes and restores point-in-time snapshots of the stack's
// mutable state: the configuration file and every declared stateful
// volume. Snapshots are all-or-nothing; a capture that cannot archive
// every target is destroyed and reported, never handed to a rollback.
type Manager struct {
	fs         afero.Fs
	baseDir    string
	configPath string
	targets    []types.VolumeRef
	logger     zerolog.Logger
}

// manifest is the on-disk snapshot descriptor
type manifest struct {
	ID             string            `yaml:"id"`
	Timestamp      time.Time         `yaml:"timestamp"`
	ConfigCopy     string            `yaml:"config_copy"`
	VolumeArchives map[string]string `yaml:"volume_archives"`
}

// NewManager creates a backup manager. fs is the filesystem snapshots
// live on; tests pass an in-memory one.
func NewManager(fs afero.Fs, baseDir, configPath string, targets []types.VolumeRef, logger zerolog.Logger) *Manager {
	return &Manager{
		fs:         fs,
		baseDir:    baseDir,
		configPath: configPath,
		targets:    targets,
		logger:     logger,
	}
}

// Snapshot captures the configuration file and every declared volume
// under a fresh timestamped directory. Any failure destroys the partial
// capture and returns ErrBackupIncomplete; the caller must abort before
// mutating anything.
func (m *Manager) Snapshot() (*types.BackupSnapshot, error) {
	id := uuid.New().String()[:8]
	now := time.Now().UTC()
	dir := filepath.Join(m.baseDir, fmt.Sprintf("%s-%s", now.Format("20060102T150405Z"), id))

	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", types.ErrBackupIncomplete, dir, err)
	}

	snapshot := &types.BackupSnapshot{
		ID:             id,
		Timestamp:      now,
		Dir:            dir,
		VolumeArchives: make(map[string]string),
	}

	fail := func(err error) (*types.BackupSnapshot, error) {
		_ = m.fs.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %v", types.ErrBackupIncomplete, err)
	}

	configCopy := filepath.Join(dir, "config.yaml")
	if err := m.copyFile(m.configPath, configCopy); err != nil {
		return fail(fmt.Errorf("archiving config %s: %v", m.configPath, err))
	}
	snapshot.ConfigCopy = configCopy

	for _, target := range m.targets {
		archive := filepath.Join(dir, target.Name+".tar.gz")
		if err := m.archiveDir(target.Path, archive); err != nil {
			return fail(fmt.Errorf("archiving volume %s: %v", target.Name, err))
		}
		snapshot.VolumeArchives[target.Name] = archive

		m.logger.Info().
			Str("volume", target.Name).
			Str("archive", archive).
			Msg("volume archived")
	}

	if err := m.writeManifest(snapshot); err != nil {
		return fail(fmt.Errorf("writing manifest: %v", err))
	}

	m.logger.Info().
		Str("snapshot", snapshot.ID).
		Str("dir", dir).
		Int("volumes", len(snapshot.VolumeArchives)).
		Msg("backup snapshot complete")

	return snapshot, nil
}

// Restore re-applies a snapshot: the config copy over the live config and
// every volume archive over its volume path. A missing archive or failed
// extraction returns ErrRestoreIncomplete and leaves the system in an
// indeterminate state; the caller must surface that, not retry.
func (m *Manager) Restore(snapshot *types.BackupSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: no snapshot", types.ErrRestoreIncomplete)
	}

	for _, target := range m.targets {
		archive, ok := snapshot.VolumeArchives[target.Name]
		if !ok {
			return fmt.Errorf("%w: snapshot has no archive for volume %s", types.ErrRestoreIncomplete, target.Name)
		}
		if _, err := m.fs.Stat(archive); err != nil {
			return fmt.Errorf("%w: archive %s missing: %v", types.ErrRestoreIncomplete, archive, err)
		}
	}

	if err := m.copyFile(snapshot.ConfigCopy, m.configPath); err != nil {
		return fmt.Errorf("%w: restoring config: %v", types.ErrRestoreIncomplete, err)
	}

	for _, target := range m.targets {
		archive := snapshot.VolumeArchives[target.Name]
		if err := m.extractDir(archive, target.Path); err != nil {
			return fmt.Errorf("%w: restoring volume %s: %v", types.ErrRestoreIncomplete, target.Name, err)
		}

		m.logger.Info().
			Str("volume", target.Name).
			Str("archive", archive).
			Msg("volume restored")
	}

	return nil
}

// List returns metadata for every snapshot on disk, newest first
func (m *Manager) List() ([]types.BackupSnapshot, error) {
	infos, err := afero.ReadDir(m.fs, m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var snapshots []types.BackupSnapshot
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}

		snapshot, err := m.readManifest(filepath.Join(m.baseDir, info.Name()))
		if err != nil {
			// Incomplete captures have no manifest; never offer them
			continue
		}
		snapshots = append(snapshots, *snapshot)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})

	return snapshots, nil
}

func (m *Manager) writeManifest(snapshot *types.BackupSnapshot) error {
	data, err := yaml.Marshal(manifest{
		ID:             snapshot.ID,
		Timestamp:      snapshot.Timestamp,
		ConfigCopy:     snapshot.ConfigCopy,
		VolumeArchives: snapshot.VolumeArchives,
	})
	if err != nil {
		return err
	}
	return afero.WriteFile(m.fs, filepath.Join(snapshot.Dir, manifestName), data, 0644)
}

func (m *Manager) readManifest(dir string) (*types.BackupSnapshot, error) {
	data, err := afero.ReadFile(m.fs, filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}

	var mf manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, err
	}

	return &types.BackupSnapshot{
		ID:             mf.ID,
		Timestamp:      mf.Timestamp,
		Dir:            dir,
		ConfigCopy:     mf.ConfigCopy,
		VolumeArchives: mf.VolumeArchives,
	}, nil
}

func (m *Manager) copyFile(src, dst string) error {
	in, err := m.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := m.fs.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// archiveDir writes a gzipped tar of dir to archivePath
func (m *Manager) archiveDir(dir, archivePath string) error {
	if _, err := m.fs.Stat(dir); err != nil {
		return err
	}

	out, err := m.fs.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	err = afero.Walk(m.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header := &tar.Header{
			Name:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Mode:    int64(info.Mode().Perm()),
		}

		if info.IsDir() {
			header.Typeflag = tar.TypeDir
			header.Name += "/"
			return tw.WriteHeader(header)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header.Typeflag = tar.TypeReg
		header.Size = info.Size()
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := m.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// extractDir replaces dir's contents with the archive's
func (m *Manager) extractDir(archivePath, dir string) error {
	in, err := m.fs.Open(archivePath)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	if err := m.fs.RemoveAll(dir); err != nil {
		return err
	}
	if err := m.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(header.Name)
		if strings.Contains(name, "..") {
			return fmt.Errorf("archive entry %q escapes volume root", header.Name)
		}
		path := filepath.Join(dir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := m.fs.MkdirAll(path, os.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := m.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			f, err := m.fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}
