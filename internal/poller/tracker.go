package poller

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fleet-monitor-backend/internal/blacklist"
	"fleet-monitor-backend/internal/parse"
)

// tracker holds the open-exception log and the suppression set. It is only
// ever touched by the goroutine running cycles.
type tracker struct {
	open       map[string]ExceptionRecord
	suppressed map[string]struct{}
	ranges     []blacklist.Range
}

func newTracker(ranges []blacklist.Range) *tracker {
	return &tracker{
		open:       make(map[string]ExceptionRecord),
		suppressed: make(map[string]struct{}),
		ranges:     ranges,
	}
}

// apply reconciles one cycle's records against the open log. Device
// exceptions take precedence over command timeouts, which take precedence
// over resolution; at most one event fires per robot.
func (t *tracker) apply(now time.Time, records []RobotRecord) (Snapshot, []Event) {
	snap := Snapshot{At: now, Robots: make([]RobotStatus, 0, len(records))}
	var events []Event
	seen := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if blacklist.IsBlacklisted(rec.ID, t.ranges) {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			log.Debug().Str("robot", rec.ID).Msg("duplicate robot entry in payload; ignoring")
			continue
		}
		seen[rec.ID] = struct{}{}

		displayType := parse.DisplayType(rec.RobotType)
		snap.Robots = append(snap.Robots, RobotStatus{
			ID:            rec.ID,
			DisplayType:   displayType,
			HardwareState: rec.HardwareState,
		})

		if _, ok := t.suppressed[rec.ID]; ok {
			if rec.Abnormal() {
				continue
			}
			delete(t.suppressed, rec.ID)
		}

		current, isOpen := t.open[rec.ID]
		switch {
		case rec.Abnormal() && len(rec.RawErrors) > 0:
			if !isOpen {
				events = append(events, t.openException(rec, displayType, CategoryDevice, strings.Join(rec.RawErrors, "; "), now))
			}
		case rec.CommandTimeout:
			if !isOpen {
				events = append(events, t.openException(rec, displayType, CategorySystem, CommandTimeoutDetail, now))
			}
		case isOpen:
			delete(t.open, rec.ID)
			events = append(events, Event{
				Kind:        EventResolved,
				RobotID:     rec.ID,
				DisplayType: displayType,
				Category:    CategoryResolved,
				Detail:      current.Detail,
				Errors:      current.Errors,
				OpenedAt:    current.OpenedAt,
				ClosedAt:    now,
			})
		}
	}
	return snap, events
}

func (t *tracker) openException(rec RobotRecord, displayType string, category Category, detail string, now time.Time) Event {
	var errs []string
	if category == CategoryDevice {
		errs = append(errs, rec.RawErrors...)
	}
	t.open[rec.ID] = ExceptionRecord{
		RobotID:     rec.ID,
		DisplayType: displayType,
		Category:    category,
		Detail:      detail,
		Errors:      errs,
		OpenedAt:    now,
	}
	return Event{
		Kind:        EventOpened,
		RobotID:     rec.ID,
		DisplayType: displayType,
		Category:    category,
		Detail:      detail,
		Errors:      errs,
		OpenedAt:    now,
	}
}

// acknowledge drops any open exception for robotID and suppresses it until
// the hardware reports a non-abnormal state.
func (t *tracker) acknowledge(robotID string) {
	delete(t.open, robotID)
	t.suppressed[robotID] = struct{}{}
}

func (t *tracker) setBlacklist(ranges []blacklist.Range) {
	t.ranges = ranges
}
