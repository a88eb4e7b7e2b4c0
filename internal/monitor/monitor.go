package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"fleet-monitor-backend/internal/model"
	"fleet-monitor-backend/internal/poller"
	"fleet-monitor-backend/internal/session"
	"fleet-monitor-backend/internal/store"
)

// Acknowledger is the poller side of an acknowledgement.
type Acknowledger interface {
	Acknowledge(robotID string)
}

// Dispatcher queues push notifications.
type Dispatcher interface {
	Dispatch(exc model.ExceptionOpen) bool
}

// Invalidator drops views derived from the exception tables.
type Invalidator interface {
	Invalidate()
}

// Monitor consumes poller output: it keeps the exception tables in the store
// current and routes operator acknowledgements back to the poller.
type Monitor struct {
	store    store.Store
	sessions *session.Manager
	notifier Dispatcher
	poller   Acknowledger
	views    Invalidator
	now      func() time.Time

	lastCycle atomic.Int64
	robots    atomic.Int32
}

// New creates a monitor. notifier may be nil when push is not configured.
func New(st store.Store, sessions *session.Manager, notifier Dispatcher) *Monitor {
	return &Monitor{
		store:    st,
		sessions: sessions,
		notifier: notifier,
		now:      time.Now,
	}
}

// Bind sets the poller that acknowledgements are forwarded to. The poller
// takes the monitor as its listener, so the two are wired in two steps.
func (m *Monitor) Bind(p Acknowledger) {
	m.poller = p
}

// SetInvalidator registers what to invalidate after the exception tables
// change. Call it before the poller starts.
func (m *Monitor) SetInvalidator(inv Invalidator) {
	m.views = inv
}

func (m *Monitor) invalidate() {
	if m.views != nil {
		m.views.Invalidate()
	}
}

// Recover archives open rows left by a previous run. The poller's open log
// is not persisted, so those rows can never be resolved by it.
func (m *Monitor) Recover(ctx context.Context) error {
	_, err := m.store.ArchiveAllOpen(ctx, m.now(), model.OutcomeInterrupted)
	return err
}

// SnapshotUpdated implements poller.Listener.
func (m *Monitor) SnapshotUpdated(s poller.Snapshot) {
	m.lastCycle.Store(s.At.UnixNano())
	m.robots.Store(int32(len(s.Robots)))
}

// ExceptionTransition implements poller.Listener. Store failures are logged
// and never propagate back into the poll cycle.
func (m *Monitor) ExceptionTransition(e poller.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch e.Kind {
	case poller.EventOpened:
		rec := model.ExceptionOpen{
			RobotID:   e.RobotID,
			RobotType: e.DisplayType,
			Category:  string(e.Category),
			Detail:    e.Detail,
			OpenedAt:  e.OpenedAt,
		}
		if err := m.store.OpenException(ctx, rec); err != nil {
			log.Error().Err(err).Str("robot", e.RobotID).Msg("failed to record opened exception")
			return
		}
		m.invalidate()
		if m.notifier != nil {
			m.notifier.Dispatch(rec)
		}
	case poller.EventResolved:
		_, err := m.store.CloseException(ctx, e.RobotID, e.ClosedAt, model.OutcomeResolved, "")
		if errors.Is(err, store.ErrNotOpen) {
			log.Debug().Str("robot", e.RobotID).Msg("resolved exception was already closed")
			return
		}
		if err != nil {
			log.Error().Err(err).Str("robot", e.RobotID).Msg("failed to record resolved exception")
			return
		}
		m.invalidate()
	}
}

// Acknowledge closes robotID's open exception on behalf of the logged-in
// operator, records it in the session, and suppresses it in the poller.
func (m *Monitor) Acknowledge(ctx context.Context, robotID string) (model.ExceptionHistory, error) {
	if m.poller == nil {
		return model.ExceptionHistory{}, fmt.Errorf("monitor is not bound to a poller")
	}
	sess, err := m.sessions.Current()
	if err != nil {
		return model.ExceptionHistory{}, err
	}

	hist, err := m.store.CloseException(ctx, robotID, m.now(), model.OutcomeAcknowledged, sess.Employee)
	if err != nil {
		return model.ExceptionHistory{}, err
	}
	m.invalidate()

	if err := m.sessions.AppendCompleted(session.CompletedException{
		RobotID:   hist.RobotID,
		RobotType: hist.RobotType,
		Error:     hist.Detail,
		OpenedAt:  hist.OpenedAt,
		ClosedAt:  hist.ClosedAt,
		Category:  hist.Category,
		Employee:  hist.Employee,
	}); err != nil {
		log.Error().Err(err).Str("robot", robotID).Msg("failed to append to session log")
	}

	m.poller.Acknowledge(robotID)
	log.Info().Str("robot", robotID).Str("employee", sess.Employee).Msg("exception acknowledged")
	return hist, nil
}

// Health describes the freshness of the poller's view.
type Health struct {
	LastCycle time.Time `json:"last_cycle,omitempty"`
	Robots    int       `json:"robots"`
	Stale     bool      `json:"stale"`
}

// Health reports when the last good cycle happened. The view is stale when no
// good cycle has landed within maxAge.
func (m *Monitor) Health(maxAge time.Duration) Health {
	ns := m.lastCycle.Load()
	if ns == 0 {
		return Health{Stale: true}
	}
	last := time.Unix(0, ns)
	return Health{
		LastCycle: last,
		Robots:    int(m.robots.Load()),
		Stale:     m.now().Sub(last) > maxAge,
	}
}
