// Package backup writes zip snapshots of the storage directory and runs
// them on a cron schedule.
package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	docerrors "github.com/Aman-CERP/docmemory/internal/errors"
	"github.com/Aman-CERP/docmemory/internal/memory"
)

const (
	// DirName is the backups subdirectory of the storage directory.
	DirName = "backups"
	// FilePrefix starts every backup file name.
	FilePrefix = "docmemory_backup_"
	// DefaultKeep is the number of backups Prune keeps by default.
	DefaultKeep = 5

	timeLayout = "20060102_150405"
)

// Info describes one backup file.
type Info struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Manager creates and prunes backups of one storage directory.
type Manager struct {
	dir  string
	keep int
	now  func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager returns a Manager for dir. keep <= 0 uses DefaultKeep.
func NewManager(dir string, keep int, opts ...Option) *Manager {
	if keep <= 0 {
		keep = DefaultKeep
	}
	m := &Manager{dir: dir, keep: keep, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BackupDir returns the directory backups are written to.
func (m *Manager) BackupDir() string {
	return filepath.Join(m.dir, DirName)
}

// Create zips the storage directory. SQLite databases are copied as
// VACUUM INTO snapshots, so each archived database is a single consistent
// file even while writers are active. The backups directory, the lock
// file and SQLite -wal and -shm files are left out.
func (m *Manager) Create(ctx context.Context) (*Info, error) {
	if m.dir == "" {
		return nil, docerrors.New(docerrors.ErrCodeBackupFailed, "in-memory store has nothing to back up", nil)
	}

	backupDir := m.BackupDir()
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeBackupFailed, "create backup directory", err)
	}

	path := m.nextPath()
	tmp := path + ".tmp"
	if err := m.writeZip(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return nil, docerrors.New(docerrors.ErrCodeBackupFailed, "write backup", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, docerrors.New(docerrors.ErrCodeBackupFailed, "finalize backup", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeBackupFailed, "stat backup", err)
	}

	slog.Info("backup_created", slog.String("path", path), slog.Int64("size", fi.Size()))
	return &Info{Name: fi.Name(), Path: path, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// nextPath picks a name that does not exist yet.
func (m *Manager) nextPath() string {
	base := FilePrefix + m.now().Format(timeLayout)
	path := filepath.Join(m.BackupDir(), base+".zip")
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(m.BackupDir(), fmt.Sprintf("%s_%d.zip", base, n))
	}
}

func (m *Manager) writeZip(ctx context.Context, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(f)

	snapDir, err := os.MkdirTemp(m.BackupDir(), ".snapshot-")
	if err != nil {
		_ = f.Close()
		return err
	}
	defer func() { _ = os.RemoveAll(snapDir) }()

	walkErr := filepath.WalkDir(m.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(m.dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rel == DirName {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(d.Name()) || !d.Type().IsRegular() {
			return nil
		}
		name := filepath.ToSlash(rel)
		if isSQLite(path) {
			snap := filepath.Join(snapDir, strings.ReplaceAll(name, "/", "_"))
			if err := snapshotSQLite(ctx, path, snap); err != nil {
				return fmt.Errorf("snapshot %s: %w", name, err)
			}
			return addFile(zw, snap, name)
		}
		return addFile(zw, path, name)
	})

	closeErr := zw.Close()
	fileErr := f.Close()
	if walkErr != nil {
		return walkErr
	}
	if closeErr != nil {
		return closeErr
	}
	return fileErr
}

func excluded(name string) bool {
	return name == memory.LockFileName || strings.HasSuffix(name, "-shm") || strings.HasSuffix(name, "-wal")
}

var sqliteHeader = []byte("SQLite format 3\x00")

// isSQLite reports whether path starts with the SQLite file header.
func isSQLite(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	return bytes.Equal(buf, sqliteHeader)
}

// snapshotSQLite writes a transactionally consistent copy of the database
// at src, including committed WAL frames, to dest.
func snapshotSQLite(ctx context.Context, src, dest string) error {
	db, err := sql.Open("sqlite", src+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, "VACUUM INTO '"+strings.ReplaceAll(dest, "'", "''")+"'")
	return err
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	fi, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// List returns existing backups, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.BackupDir())
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, err
	}

	backups := make([]Info, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FilePrefix) || filepath.Ext(name) != ".zip" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Name:    name,
			Path:    filepath.Join(m.BackupDir(), name),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ModTime.Equal(backups[j].ModTime) {
			return backups[i].ModTime.After(backups[j].ModTime)
		}
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// Prune removes all but the newest backups and returns how many it deleted.
func (m *Manager) Prune() (int, error) {
	backups, err := m.List()
	if err != nil {
		return 0, err
	}
	if len(backups) <= m.keep {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[m.keep:] {
		if err := os.Remove(b.Path); err != nil {
			return removed, docerrors.New(docerrors.ErrCodeBackupFailed, "remove old backup "+b.Name, err)
		}
		removed++
	}
	slog.Debug("backups_pruned", slog.Int("removed", removed), slog.Int("kept", m.keep))
	return removed, nil
}
