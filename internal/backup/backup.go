// Package backup takes point-in-time copies of a SQLite slot database.
// Snapshots are written next to the database before schema changes and
// rotated so only the newest MaxSnapshots are kept.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/bayslots/internal/logger"
)

const (
	MaxSnapshots = 14
	DirName      = "snapshots"
	FilePrefix   = "bayslots-"
	FileSuffix   = ".db"

	stampFormat = "20060102-150405"
)

// Snapshot describes one snapshot file on disk
type Snapshot struct {
	Path    string
	TakenAt time.Time
	Size    int64

	seq int // collision counter within one second
}

type Manager struct {
	dbPath string
	dir    string
	keep   int
	now    func() time.Time
}

func NewManager(dbPath string) *Manager {
	return &Manager{
		dbPath: dbPath,
		dir:    filepath.Join(filepath.Dir(dbPath), DirName),
		keep:   MaxSnapshots,
		now:    time.Now,
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Create copies the database with VACUUM INTO and rotates old snapshots.
// A rotation failure is logged; the new snapshot is still returned.
func (m *Manager) Create(ctx context.Context) (string, error) {
	if _, err := os.Stat(m.dbPath); err != nil {
		return "", fmt.Errorf("database %s is not readable: %w", m.dbPath, err)
	}
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	dest, err := m.nextPath()
	if err != nil {
		return "", err
	}

	src, err := sql.Open("sqlite", "file:"+m.dbPath+"?mode=ro")
	if err != nil {
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer src.Close()

	if _, err := src.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return "", fmt.Errorf("failed to snapshot database: %w", err)
	}

	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate snapshots", "dir", m.dir, "error", err)
	}
	return dest, nil
}

func (m *Manager) nextPath() (string, error) {
	stamp := m.now().UTC().Format(stampFormat)
	path := filepath.Join(m.dir, FilePrefix+stamp+FileSuffix)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		if n > 100 {
			return "", fmt.Errorf("failed to find a free snapshot name for %s", stamp)
		}
		path = filepath.Join(m.dir, fmt.Sprintf("%s%s-%d%s", FilePrefix, stamp, n, FileSuffix))
	}
}

// List returns snapshots newest first. Files that do not follow the naming
// scheme are ignored.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
		seq := 0
		if len(stamp) > len(stampFormat) {
			if _, err := fmt.Sscanf(stamp[len(stampFormat):], "-%d", &seq); err != nil {
				continue
			}
			stamp = stamp[:len(stampFormat)]
		}
		taken, err := time.Parse(stampFormat, stamp)
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snaps = append(snaps, Snapshot{Path: filepath.Join(m.dir, name), TakenAt: taken, Size: info.Size(), seq: seq})
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].TakenAt.Equal(snaps[j].TakenAt) {
			return snaps[i].seq > snaps[j].seq
		}
		return snaps[i].TakenAt.After(snaps[j].TakenAt)
	})
	return snaps, nil
}

func (m *Manager) rotate() error {
	snaps, err := m.List()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(snaps); i++ {
		if err := os.Remove(snaps[i].Path); err != nil {
			return fmt.Errorf("failed to remove old snapshot %s: %w", snaps[i].Path, err)
		}
	}
	return nil
}
