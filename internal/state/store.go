// Package state persists takops runtime state as flat files under the state
// directory: one role marker per scheduling backend (containing the literal
// string "primary" or "fallback"), one heartbeat JSON per backend, and a
// failover counters file. There is deliberately no database here.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/takops/takops/internal/config"
)

// Store reads and writes state files. All writes are atomic (temp + rename)
// so a run killed mid-write never leaves a torn marker behind.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the state directory layout if needed.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"scheduler", "heartbeat"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	return &Store{dir: dir}, nil
}

// Dir returns the state directory root.
func (s *Store) Dir() string { return s.dir }

func (s *Store) rolePath(b config.BackendName) string {
	return filepath.Join(s.dir, "scheduler", string(b)+".role")
}

func (s *Store) heartbeatPath(b config.BackendName) string {
	return filepath.Join(s.dir, "heartbeat", string(b)+".json")
}

func (s *Store) failoverPath() string {
	return filepath.Join(s.dir, "failover.json")
}

// Role returns the persisted role for a backend, RoleNone if no marker exists.
func (s *Store) Role(b config.BackendName) (Role, error) {
	data, err := os.ReadFile(s.rolePath(b))
	if err != nil {
		if os.IsNotExist(err) {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("read role marker: %w", err)
	}
	switch r := Role(strings.TrimSpace(string(data))); r {
	case RolePrimary, RoleFallback:
		return r, nil
	default:
		return RoleNone, fmt.Errorf("role marker %s contains unexpected value %q", s.rolePath(b), strings.TrimSpace(string(data)))
	}
}

// SetRole writes a backend's role marker atomically.
func (s *Store) SetRole(b config.BackendName, r Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicWrite(s.rolePath(b), []byte(string(r)+"\n"), 0o644)
}

// ClearRoles removes all role markers (schedule remove).
func (s *Store) ClearRoles() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range []config.BackendName{config.BackendCron, config.BackendSystemd} {
		if err := os.Remove(s.rolePath(b)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove role marker: %w", err)
		}
	}
	return nil
}

// Heartbeat returns the last recorded run for a backend, nil if none exists.
func (s *Store) Heartbeat(b config.BackendName) (*Heartbeat, error) {
	data, err := os.ReadFile(s.heartbeatPath(b))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read heartbeat: %w", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("parse heartbeat %s: %w", s.heartbeatPath(b), err)
	}
	return &hb, nil
}

// WriteHeartbeat persists a run record, carrying the consecutive-failure
// counter forward from the previous heartbeat.
func (s *Store) WriteHeartbeat(hb *Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.Heartbeat(hb.Backend)
	if err != nil {
		return err
	}
	if hb.Outcome == OutcomeFailed {
		hb.ConsecutiveFailures = 1
		if prev != nil {
			hb.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		}
	} else if hb.Outcome == OutcomeSkippedStandby && prev != nil {
		// Standing down neither fails nor clears a failure streak.
		hb.ConsecutiveFailures = prev.ConsecutiveFailures
	} else {
		hb.ConsecutiveFailures = 0
	}

	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	return atomicWrite(s.heartbeatPath(hb.Backend), data, 0o644)
}

// Failover returns persisted failover counters, a zero value if none exist.
func (s *Store) Failover() (*FailoverState, error) {
	data, err := os.ReadFile(s.failoverPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &FailoverState{}, nil
		}
		return nil, fmt.Errorf("read failover state: %w", err)
	}
	var fs FailoverState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse failover state: %w", err)
	}
	return &fs, nil
}

// WriteFailover persists failover counters atomically.
func (s *Store) WriteFailover(fs *FailoverState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(fs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal failover state: %w", err)
	}
	return atomicWrite(s.failoverPath(), data, 0o644)
}

// HeartbeatAge returns the age of a backend's heartbeat at now, and whether a
// heartbeat exists at all.
func (s *Store) HeartbeatAge(b config.BackendName, now time.Time) (time.Duration, bool, error) {
	hb, err := s.Heartbeat(b)
	if err != nil || hb == nil {
		return 0, false, err
	}
	return now.Sub(hb.FinishedAt), true, nil
}

func atomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
