package engstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Version is the current state file format version.
const Version = "1"

// persistedState is the on-disk JSON shape. Packages are stored with
// their canonical names as map keys, matching TransientState's shape so
// that load/save is a straight field-for-field projection: a package is
// installed iff its entry is flushed here.
type persistedState struct {
	FormatVersion  string             `json:"version"`
	Installed      map[string]pkgset.Package `json:"installed"`
	InstalledRoots map[string]bool    `json:"installedRoots,omitempty"`
	Reinstall      map[string]bool    `json:"reinstall,omitempty"`
}

// Store persists TransientState to a JSON file guarded by an exclusive
// file lock. The file is the ultimate source of truth: a `kill -9`
// mid-apply must never corrupt it.
type Store struct {
	statePath string
	lockPath  string
	fileLock  *flock.Flock
	locked    bool
}

// NewStore creates a Store rooted at dir (created if missing).
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	statePath := filepath.Join(dir, "state.json")
	lockPath := filepath.Join(dir, "state.lock")
	return &Store{
		statePath: statePath,
		lockPath:  lockPath,
		fileLock:  flock.New(lockPath),
	}, nil
}

// Lock acquires an exclusive lock, recording our PID so a concurrent
// invocation can report who holds it.
func (s *Store) Lock() error {
	if s.locked {
		return nil
	}
	ok, err := s.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire state lock: %w", err)
	}
	if !ok {
		if pid, perr := s.readLockPID(); perr == nil && pid > 0 {
			return fmt.Errorf("another apply process (PID %d) is running", pid)
		}
		return errors.New("another apply process is running")
	}
	if err := os.WriteFile(s.lockPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = s.fileLock.Unlock()
		return fmt.Errorf("failed to write lock PID: %w", err)
	}
	s.locked = true
	return nil
}

// Unlock releases the lock.
func (s *Store) Unlock() error {
	if !s.locked {
		return nil
	}
	if err := s.fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	s.locked = false
	return nil
}

// Load reads TransientState from disk. Must be called after Lock.
// Returns an empty TransientState if the file does not yet exist.
func (s *Store) Load() (*TransientState, error) {
	if !s.locked {
		return nil, errors.New("must acquire lock before loading state")
	}
	ps, err := s.readState()
	if err != nil {
		return nil, err
	}
	return fromPersisted(ps), nil
}

// Save atomically writes TransientState to disk (write to temp file,
// then rename), so partial writes can never be observed. Must be called
// after Lock.
func (s *Store) Save(st *TransientState) error {
	if !s.locked {
		return errors.New("must acquire lock before saving state")
	}
	ps := toPersisted(st)
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

// StatePath returns the path to the state file, exposed for tests that
// assert byte-for-byte idempotence.
func (s *Store) StatePath() string {
	return s.statePath
}

func (s *Store) readState() (*persistedState, error) {
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &persistedState{FormatVersion: Version}, nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &ps, nil
}

func (s *Store) readLockPID() (int, error) {
	data, err := os.ReadFile(s.lockPath)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

func toPersisted(st *TransientState) *persistedState {
	return &persistedState{
		FormatVersion:  Version,
		Installed:      st.Installed,
		InstalledRoots: st.InstalledRoots,
		Reinstall:      st.Reinstall,
	}
}

func fromPersisted(ps *persistedState) *TransientState {
	st := New()
	if ps.Installed != nil {
		st.Installed = ps.Installed
	}
	if ps.InstalledRoots != nil {
		st.InstalledRoots = ps.InstalledRoots
	}
	if ps.Reinstall != nil {
		st.Reinstall = ps.Reinstall
	}
	return st
}
