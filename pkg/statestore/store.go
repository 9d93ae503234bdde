// Package statestore implements C1, the agent's persistent scratch space:
// each invocation is a short-lived CLI process (spec.md §2), so the
// failure-beginning timestamps the decision procedure needs across
// invocations, along with a member's last-known status, live as small
// files under a state directory rather than in memory.
package statestore

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status is a member's last-recorded lifecycle state, spec.md §3's
// absent/replaced/started classification.
type Status string

const (
	StatusAbsent   Status = "absent"
	StatusReplaced Status = "replaced"
	StatusStarted  Status = "started"
)

// Store persists a single member's state under Dir: one file per failure
// timer, plus a status file.
type Store struct {
	Dir   string
	Clock Clock
}

// New returns a Store rooted at dir, using the real wall clock.
func New(dir string) *Store {
	return &Store{Dir: dir, Clock: RealClock{}}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.Dir, name)
}

func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "cannot create state directory: %#v", s.Dir)
	}
	return nil
}

// ReadStatus returns the member's last-recorded status, defaulting to
// StatusAbsent when no status file has been written yet.
func (s *Store) ReadStatus() (Status, error) {
	data, err := ioutil.ReadFile(s.path("status"))
	if err != nil {
		if os.IsNotExist(err) {
			return StatusAbsent, nil
		}
		return "", errors.Wrap(err, "cannot read status file")
	}
	return Status(strings.TrimSpace(string(data))), nil
}

// WriteStatus persists the member's status for future invocations.
func (s *Store) WriteStatus(status Status) error {
	if err := s.ensureDir(); err != nil {
		return err
	}
	if err := ioutil.WriteFile(s.path("status"), []byte(status), 0600); err != nil {
		return errors.Wrap(err, "cannot write status file")
	}
	return nil
}

func failureFileName(key string) string {
	return key + "-failure-beginning-time"
}

// RecordFailureSince persists the moment a failure condition identified by
// key (e.g. "cluster" or "member") began, unless one is already recorded —
// it is idempotent across repeated invocations that keep observing the
// same ongoing failure.
func (s *Store) RecordFailureSince(key string) error {
	if _, ok, err := s.FailureSince(key); err != nil {
		return err
	} else if ok {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	now := s.Clock.Now()
	data := strconv.FormatInt(now.Unix(), 10)
	if err := ioutil.WriteFile(s.path(failureFileName(key)), []byte(data), 0600); err != nil {
		return errors.Wrapf(err, "cannot record failure-since timestamp for %#v", key)
	}
	return nil
}

// ClearFailureSince removes a previously recorded failure timestamp, once
// the condition it tracked has resolved.
func (s *Store) ClearFailureSince(key string) error {
	err := os.Remove(s.path(failureFileName(key)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot clear failure-since timestamp for %#v", key)
	}
	return nil
}

// FailureSince returns the recorded failure-beginning time for key, and
// whether one is recorded at all.
func (s *Store) FailureSince(key string) (time.Time, bool, error) {
	data, err := ioutil.ReadFile(s.path(failureFileName(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.Wrapf(err, "cannot read failure-since timestamp for %#v", key)
	}
	sec, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "cannot parse failure-since timestamp for %#v", key)
	}
	return time.Unix(sec, 0), true, nil
}

// FailureDuration returns how long the failure condition identified by key
// has been continuously observed, or zero and false if none is recorded.
func (s *Store) FailureDuration(key string) (time.Duration, bool, error) {
	since, ok, err := s.FailureSince(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return s.Clock.Now().Sub(since), true, nil
}
