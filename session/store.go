// ABOUTME: File-backed recovery (24h) and snapshot (1h) storage keyed by session ID.
// ABOUTME: Writes are atomic via temp-file rename; async variants log and swallow errors.

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/2389-research/buildr/build"
	"github.com/2389-research/buildr/buildctx"
	"github.com/2389-research/buildr/history"
	"github.com/rs/zerolog"
)

const (
	RecoveryTTL = 24 * time.Hour
	SnapshotTTL = time.Hour

	recoveryFile = "recovery.json"
	snapshotFile = "snapshot.json"
)

// ErrNotFound is returned when nothing is stored or the stored state expired.
var ErrNotFound = errors.New("session state not found")

// Recovery is the last committed document of a session, kept so an
// accidental tab close does not lose work.
type Recovery struct {
	ProjectID string          `json:"projectId,omitempty"`
	Document  string          `json:"document"`
	Messages  []build.Message `json:"messages,omitempty"`
	SavedAt   time.Time       `json:"savedAt"`
}

// Snapshot is the short-lived editing state restored on reload.
type Snapshot struct {
	ProjectID string           `json:"projectId,omitempty"`
	History   history.State    `json:"history"`
	Context   buildctx.Context `json:"context"`
	Messages  []build.Message  `json:"messages,omitempty"`
	SavedAt   time.Time        `json:"savedAt"`
}

// Store keeps per-session state under dir/<session-id>/.
type Store struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     map[string]uint64
	written map[string]uint64
	locks   map[string]*sync.Mutex
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{
		dir:     dir,
		now:     time.Now,
		logger:  logger,
		seq:     make(map[string]uint64),
		written: make(map[string]uint64),
		locks:   make(map[string]*sync.Mutex),
	}
}

// SaveRecovery writes rec for sid, stamping SavedAt.
func (s *Store) SaveRecovery(sid string, rec Recovery) error {
	rec.SavedAt = s.now()
	return s.write(sid, recoveryFile, rec)
}

// LoadRecovery returns the session's recovery state if younger than RecoveryTTL.
func (s *Store) LoadRecovery(sid string) (Recovery, error) {
	var rec Recovery
	if err := s.read(sid, recoveryFile, &rec); err != nil {
		return Recovery{}, err
	}
	if s.now().Sub(rec.SavedAt) > RecoveryTTL {
		_ = os.Remove(s.path(sid, recoveryFile))
		return Recovery{}, ErrNotFound
	}
	return rec, nil
}

// SaveSnapshot writes snap for sid, stamping SavedAt.
func (s *Store) SaveSnapshot(sid string, snap Snapshot) error {
	snap.SavedAt = s.now()
	return s.write(sid, snapshotFile, snap)
}

// LoadSnapshot returns the session's snapshot if younger than SnapshotTTL.
func (s *Store) LoadSnapshot(sid string) (Snapshot, error) {
	var snap Snapshot
	if err := s.read(sid, snapshotFile, &snap); err != nil {
		return Snapshot{}, err
	}
	if s.now().Sub(snap.SavedAt) > SnapshotTTL {
		_ = os.Remove(s.path(sid, snapshotFile))
		return Snapshot{}, ErrNotFound
	}
	return snap, nil
}

// SaveRecoveryAsync saves in the background. Failures are logged only.
func (s *Store) SaveRecoveryAsync(sid string, rec Recovery) {
	s.async(sid, "recovery", func() error { return s.SaveRecovery(sid, rec) })
}

// SaveSnapshotAsync saves in the background. Failures are logged only.
func (s *Store) SaveSnapshotAsync(sid string, snap Snapshot) {
	s.async(sid, "snapshot", func() error { return s.SaveSnapshot(sid, snap) })
}

// async runs fn in the background. Writes for the same sid and kind are
// ordered: a write that finishes after a newer one is skipped.
func (s *Store) async(sid, kind string, fn func() error) {
	key := sid + "/" + kind
	s.mu.Lock()
	s.seq[key]++
	n := s.seq[key]
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		lock.Lock()
		defer lock.Unlock()

		s.mu.Lock()
		stale := n < s.written[key]
		s.mu.Unlock()
		if stale {
			return
		}
		if err := fn(); err != nil {
			s.logger.Warn().Err(err).Str("session", sid).Str("kind", kind).Msg("session state write failed")
			return
		}
		s.mu.Lock()
		s.written[key] = n
		s.mu.Unlock()
	}()
}

// Wait blocks until background writes finish.
func (s *Store) Wait() { s.wg.Wait() }

// Delete removes everything stored for sid.
func (s *Store) Delete(sid string) error {
	if err := ValidateID(sid); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dir, sid)); err != nil {
		return fmt.Errorf("delete session %s: %w", sid, err)
	}
	return nil
}

// Sweep deletes sessions whose newest state is older than RecoveryTTL and
// returns how many were removed.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read session dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || ValidateID(e.Name()) != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest := s.newestWrite(e.Name(), info.ModTime()); s.now().Sub(newest) > RecoveryTTL {
			if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *Store) newestWrite(sid string, fallback time.Time) time.Time {
	newest := fallback
	for _, name := range []string{recoveryFile, snapshotFile} {
		if info, err := os.Stat(s.path(sid, name)); err == nil && info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest
}

func (s *Store) path(sid, name string) string {
	return filepath.Join(s.dir, sid, name)
}

func (s *Store) write(sid, name string, v any) error {
	if err := ValidateID(sid); err != nil {
		return err
	}
	dir := filepath.Join(s.dir, sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("fsync %s: %w", name, err)
	}
	_ = tmp.Close()
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *Store) read(sid, name string, v any) error {
	if err := ValidateID(sid); err != nil {
		return err
	}
	data, err := os.ReadFile(s.path(sid, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
