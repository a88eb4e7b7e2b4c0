package poller

import "time"

// Category classifies an exception transition.
type Category string

const (
	CategoryDevice   Category = "DeviceException"
	CategorySystem   Category = "SystemException"
	CategoryResolved Category = "Resolved"
)

// CommandTimeoutDetail is the detail recorded for system exceptions.
const CommandTimeoutDetail = "Command Timeout"

// EventKind says whether an exception opened or closed.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventResolved EventKind = "resolved"
)

// RobotStatus is one row of a snapshot.
type RobotStatus struct {
	ID            string `json:"robot_id"`
	DisplayType   string `json:"robot_type"`
	HardwareState string `json:"hardware_state"`
}

// Snapshot is the full view produced by one successful cycle.
type Snapshot struct {
	At     time.Time     `json:"observed_at"`
	Robots []RobotStatus `json:"robots"`
}

// Event is a single exception transition.
type Event struct {
	Kind        EventKind
	RobotID     string
	DisplayType string
	Category    Category
	Detail      string
	Errors      []string
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// Listener receives cycle output on the poll goroutine, in order. It must not
// block for long; a slow listener delays the next cycle.
type Listener interface {
	SnapshotUpdated(Snapshot)
	ExceptionTransition(Event)
}

// ExceptionRecord is an open exception held in the poller's log.
type ExceptionRecord struct {
	RobotID     string
	DisplayType string
	Category    Category
	Detail      string
	Errors      []string
	OpenedAt    time.Time
}
