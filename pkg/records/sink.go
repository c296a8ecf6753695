// Package records persists detection and disk records produced by the pipeline.
//
// Two sinks are available: CSV files under <output>/data (one per tier plus the
// disk statistics and run metadata) and a single SQLite database. Each tier is
// written by exactly one pipeline worker, so every stream receives its records
// in frame order.
package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"birdtracker/pkg/birdtracker"
)

// Sink names accepted by Open.
const (
	SinkCSV    = "csv"
	SinkSQLite = "sqlite"

	lockFileName = ".birdtracker.lock"
	databaseName = "birdtracker.db"
)

// Sink is a RecordSink that also stores run metadata and owns open files.
type Sink interface {
	birdtracker.RecordSink
	WriteMetadata(meta Metadata) error
	Close() error
}

// Metadata describes one run.
type Metadata struct {
	RunID     string
	Input     string
	Version   string
	StartedAt time.Time
	Frames    int
	Rejected  int
	Extra     map[string]string
}

// pairs flattens the metadata in a stable order.
func (m Metadata) pairs() [][2]string {
	out := [][2]string{
		{"run_id", m.RunID},
		{"input", m.Input},
		{"version", m.Version},
		{"started_at", m.StartedAt.UTC().Format(time.RFC3339)},
		{"frames", fmt.Sprint(m.Frames)},
		{"rejected_reference_frames", fmt.Sprint(m.Rejected)},
	}
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, [2]string{k, m.Extra[k]})
	}
	return out
}

// Open creates the sink named kind rooted at dir.
func Open(kind, dir string) (Sink, error) {
	switch kind {
	case SinkCSV:
		return OpenCSV(filepath.Join(dir, "data"))
	case SinkSQLite:
		return OpenSQLite(filepath.Join(dir, databaseName))
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("output directory is in use by another birdtracker run")

// Lock holds an exclusive advisory lock on an output directory.
type Lock struct {
	path string
	fl   *flock.Flock
}

// AcquireLock takes the output directory lock without blocking.
func AcquireLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
	}
	return &Lock{path: path, fl: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// CheckWritableDir verifies that path is an existing directory the process can
// list and write to.
func CheckWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: stat: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: is not a directory", path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s: insufficient permissions: %w", path, err)
	}
	return nil
}
