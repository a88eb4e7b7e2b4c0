package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"fleet-monitor-backend/internal/blacklist"
	"fleet-monitor-backend/internal/model"
	"fleet-monitor-backend/internal/monitor"
	"fleet-monitor-backend/internal/mw"
	"fleet-monitor-backend/internal/poller"
	"fleet-monitor-backend/internal/session"
	"fleet-monitor-backend/internal/store"
)

// SnapshotSource serves the poller's last good snapshot.
type SnapshotSource interface {
	Snapshot() (poller.Snapshot, bool)
}

// BlacklistReloader accepts new blacklist ranges.
type BlacklistReloader interface {
	SetBlacklist(ranges []blacklist.Range)
}

// ExceptionHandler closes exceptions on behalf of operators.
type ExceptionHandler interface {
	Acknowledge(ctx context.Context, robotID string) (model.ExceptionHistory, error)
	Health(maxAge time.Duration) monitor.Health
}

// Deps bundles what the handlers need.
type Deps struct {
	Store         store.Store
	Snapshots     SnapshotSource
	Exceptions    ExceptionHandler
	Blacklist     BlacklistReloader
	BlacklistPath string
	Sessions      *session.Manager
	Webpush       *webpush.Options
	StaleAfter    time.Duration
	// Cache fronts the history endpoint. The monitor shares it so that
	// poller-driven changes invalidate it too.
	Cache *mw.ResponseCache
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.StaleAfter <= 0 {
		deps.StaleAfter = 5 * time.Second
	}
	if deps.Cache == nil {
		deps.Cache = mw.NewResponseCache(0)
	}
	return &Handler{Deps: deps}
}
