// Package manifest tracks per-run fetch outcomes on disk. The manifest
// is the single source of truth for resumption: a CIK with a recorded
// terminal outcome is never scheduled again within the same run date.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/edgar-fetcher/internal/domain"
	"github.com/user/edgar-fetcher/internal/fsutil"
)

const FileName = "manifest.json"

// ErrAlreadyRecorded is returned when a terminal outcome is recorded
// twice for the same CIK. The pool's IsDone filtering makes this a
// logic error, not an operational one.
var ErrAlreadyRecorded = errors.New("outcome already recorded for cik")

// Store owns the run manifest. All mutation goes through Record* and
// Finalize, serialized by an internal mutex; every mutation rewrites
// the manifest file atomically so a kill at any point leaves a
// parseable file that reflects every completed task.
type Store struct {
	mu     sync.Mutex
	path   string
	m      domain.Manifest
	logger *zap.Logger
}

// Open loads the manifest for runDate under dir, or creates a fresh one
// if none exists. Loading an existing manifest is what makes a rerun of
// an interrupted run resume instead of starting over.
func Open(dir, runDate string, logger *zap.Logger) (*Store, error) {
	path := filepath.Join(dir, runDate, FileName)
	s := &Store{path: path, logger: logger}

	if _, err := os.Stat(path); err == nil {
		if err := fsutil.ReadJSON(path, &s.m); err != nil {
			return nil, fmt.Errorf("load manifest: %w", err)
		}
		// A resumed run counts skips from zero.
		s.m.Skipped = 0
		logger.Info("resuming existing manifest",
			zap.String("path", path),
			zap.Int("completed", len(s.m.Completed)),
			zap.Int("failed", len(s.m.Failed)))
	} else if os.IsNotExist(err) {
		s.m = domain.Manifest{
			RunDate:   runDate,
			StartedAt: time.Now().UTC(),
			Completed: map[string]domain.CompletedEntry{},
			Failed:    map[string]domain.FailedEntry{},
		}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("stat manifest: %w", err)
	}

	if s.m.Completed == nil {
		s.m.Completed = map[string]domain.CompletedEntry{}
	}
	if s.m.Failed == nil {
		s.m.Failed = map[string]domain.FailedEntry{}
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// SetTotal records how many identifiers this run covers.
func (s *Store) SetTotal(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Total = n
	return s.persistLocked()
}

// IsDone reports whether the CIK already has a terminal outcome in this
// run. Both success and terminal failure short-circuit re-fetching.
func (s *Store) IsDone(cik string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m.Completed[cik]; ok {
		return true
	}
	_, ok := s.m.Failed[cik]
	return ok
}

// RecordSuccess marks a CIK completed and persists the manifest. An
// error here is fatal to the run: progress that cannot be durably
// recorded must not be claimed.
func (s *Store) RecordSuccess(out domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnrecordedLocked(out.CIK); err != nil {
		return err
	}
	s.m.Completed[out.CIK] = domain.CompletedEntry{
		FetchedAt: out.FetchedAt,
		Attempts:  out.Attempts,
		Company:   out.Company,
	}
	return s.persistLocked()
}

// RecordFailure marks a CIK terminally failed and persists the manifest.
func (s *Store) RecordFailure(out domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnrecordedLocked(out.CIK); err != nil {
		return err
	}
	s.m.Failed[out.CIK] = domain.FailedEntry{
		Reason:   out.Reason,
		Attempts: out.Attempts,
		FailedAt: time.Now().UTC(),
	}
	return s.persistLocked()
}

// RecordSkipped counts a CIK that was filtered out because a previous
// (interrupted) pass of this run already finished it. Persisted like
// every other record so a crash does not lose the count.
func (s *Store) RecordSkipped(cik string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Skipped++
	return s.persistLocked()
}

// Finalize closes the run timestamps and persists one last time. The
// manifest is an immutable historical record afterwards.
func (s *Store) Finalize() (domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.m.FinishedAt = &now
	if err := s.persistLocked(); err != nil {
		return domain.Manifest{}, err
	}
	return s.copyLocked(), nil
}

// Snapshot returns a consistent copy for progress polling.
func (s *Store) Snapshot() domain.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) checkUnrecordedLocked(cik string) error {
	if _, ok := s.m.Completed[cik]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, cik)
	}
	if _, ok := s.m.Failed[cik]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, cik)
	}
	return nil
}

func (s *Store) persistLocked() error {
	if err := fsutil.WriteJSON(s.path, &s.m); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}

func (s *Store) copyLocked() domain.Manifest {
	c := s.m
	c.Completed = make(map[string]domain.CompletedEntry, len(s.m.Completed))
	for k, v := range s.m.Completed {
		c.Completed[k] = v
	}
	c.Failed = make(map[string]domain.FailedEntry, len(s.m.Failed))
	for k, v := range s.m.Failed {
		c.Failed[k] = v
	}
	if s.m.FinishedAt != nil {
		t := *s.m.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
