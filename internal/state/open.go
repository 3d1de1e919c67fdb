package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"

	"go.abhg.dev/but/internal/silog"
)

// maxRotations bounds how many "…maybe-broken-NN" files Open will
// create before giving up on a corrupt metadata file.
const maxRotations = 255

// Open loads the metadata store from path, creating an empty store if
// the file does not exist.
//
// If the file exists but cannot be deserialized, it is renamed aside to
// "<path>.maybe-broken-NN" (the first free NN in [01,255]) and a
// [*CorruptError] is returned alongside a fresh, empty store so callers
// can continue operating.
func Open(path string, log *silog.Logger) (*Store, error) {
	if log == nil {
		log = silog.Nop()
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Store{path: path, doc: newDocument()}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc document
	if _, err := toml.Decode(string(bs), &doc); err != nil {
		rotated, rerr := rotateAside(path)
		if rerr != nil {
			return nil, fmt.Errorf("rotate corrupt metadata: %w", rerr)
		}

		return &Store{path: path, doc: newDocument()},
			&CorruptError{Path: rotated, Err: err}
	}

	if doc.Stacks == nil {
		doc.Stacks = make(map[StackID]*StackRecord)
	}
	if doc.Branches == nil {
		doc.Branches = make(map[string]*BranchRecord)
	}

	return &Store{path: path, doc: doc}, nil
}

func rotateAside(path string) (string, error) {
	for n := 1; n <= maxRotations; n++ {
		candidate := fmt.Sprintf("%s.maybe-broken-%02d", path, n)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			if err := os.Rename(path, candidate); err != nil {
				return "", err
			}
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%d rotated copies of %s already exist", maxRotations, path)
}

// Save writes the store to disk atomically: the new contents are
// written to a temporary file in the same directory, then renamed over
// the destination.
func (s *Store) Save() error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.doc); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Lock is the project's exclusive write-permission lock: an OS file
// lock (flock) on a lockfile on disk. Only one [Lock] may be held per
// project at a time. No PID is written to the file, and no liveness
// check or stale-lock reclaim is done beyond what the OS lock gives.
type Lock struct {
	fl *flock.Flock
}

// NewLock returns a lock handle for the project's lockfile at path.
// path is typically "<project>.lock" inside the repository's internal
// storage directory.
func NewLock(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// ErrLocked indicates that the project's write permission is held by
// another live process.
var ErrLocked = errors.New("project is locked by another process")

// TryAcquire attempts to acquire the write permission without
// blocking. It returns [ErrLocked] if the lock is already held.
func (l *Lock) TryAcquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release gives up the write permission.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
