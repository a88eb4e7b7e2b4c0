package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoSession is returned when no operator is logged in.
	ErrNoSession = errors.New("no active session")
	// ErrEmptyEmployee is returned when starting a session without a name.
	ErrEmptyEmployee = errors.New("employee name cannot be empty")
)

// CompletedException is one acknowledgement written by the operator.
type CompletedException struct {
	RobotID   string    `json:"robot_id"`
	RobotType string    `json:"robot_type"`
	Error     string    `json:"error"`
	OpenedAt  time.Time `json:"opened_at"`
	ClosedAt  time.Time `json:"closed_at"`
	Category  string    `json:"category"`
	Employee  string    `json:"employee"`
}

// Session is the operator's shift as persisted on disk.
type Session struct {
	ID                  string               `json:"id"`
	Employee            string               `json:"employee"`
	StartTime           time.Time            `json:"start_time"`
	CompletedExceptions []CompletedException `json:"completed_exceptions"`
}

// localLayout is the start_time format of session files written by the
// desktop tool.
const localLayout = "2006-01-02 15:04:05"

// UnmarshalJSON accepts start_time as RFC 3339 or in the desktop tool's
// local "YYYY-MM-DD HH:MM:SS" form.
func (s *Session) UnmarshalJSON(b []byte) error {
	type plain Session
	aux := struct {
		*plain
		StartTime string `json:"start_time"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	s.StartTime = time.Time{}
	if aux.StartTime == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, aux.StartTime); err == nil {
		s.StartTime = t
		return nil
	}
	t, err := time.ParseInLocation(localLayout, aux.StartTime, time.Local)
	if err != nil {
		return fmt.Errorf("unrecognised start_time %q", aux.StartTime)
	}
	s.StartTime = t
	return nil
}

// Manager serialises access to the session file.
type Manager struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewManager returns a manager for the session file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path, now: time.Now}
}

// Start begins a new session, replacing any existing one.
func (m *Manager) Start(employee string) (Session, error) {
	employee = strings.TrimSpace(employee)
	if employee == "" {
		return Session{}, ErrEmptyEmployee
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{
		ID:                  uuid.NewString(),
		Employee:            employee,
		StartTime:           m.now(),
		CompletedExceptions: []CompletedException{},
	}
	if err := m.write(s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Current returns the active session or ErrNoSession.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

// AppendCompleted records an acknowledgement in the active session.
func (m *Manager) AppendCompleted(rec CompletedException) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.read()
	if err != nil {
		return err
	}
	s.CompletedExceptions = append(s.CompletedExceptions, rec)
	return m.write(s)
}

// Clear ends the active session. Clearing when none exists is not an error.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (m *Manager) read() (Session, error) {
	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session file: %w", err)
	}
	return s, nil
}

func (m *Manager) write(s Session) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return os.Rename(tmp, m.path)
}
