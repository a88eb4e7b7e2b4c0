package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor-backend/config"
	"fleet-monitor-backend/internal/blacklist"
)

// recorder is a Listener that keeps everything it receives.
type recorder struct {
	mu        sync.Mutex
	events    []Event
	snapshots []Snapshot
}

func (r *recorder) SnapshotUpdated(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recorder) ExceptionTransition(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) takeEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recorder) snapshotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

// fleetServer serves the queued payloads in order, repeating the last one.
type fleetServer struct {
	*httptest.Server
	mu       sync.Mutex
	payloads []string
	status   int
	requests atomic.Int32
	lastReq  *http.Request
}

func newFleetServer(t *testing.T, payloads ...string) *fleetServer {
	fs := &fleetServer{payloads: payloads, status: http.StatusOK}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.requests.Add(1)
		fs.mu.Lock()
		defer fs.mu.Unlock()
		fs.lastReq = r
		if fs.status != http.StatusOK {
			w.WriteHeader(fs.status)
			return
		}
		body := `{"data":{"robot":[]}}`
		if len(fs.payloads) > 0 {
			body = fs.payloads[0]
			if len(fs.payloads) > 1 {
				fs.payloads = fs.payloads[1:]
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fleetServer) lastRequest() *http.Request {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.lastReq
}

func testConfig(baseURL string) config.PollerConfig {
	cfg := config.Config{Poller: config.PollerConfig{BaseURL: baseURL, IntervalSeconds: 1}}
	cfg.ApplyDefaults()
	return cfg.Poller
}

// steppedClock returns t0, t0+1s, t0+2s, ... on successive calls.
func steppedClock(t0 time.Time) func() time.Time {
	var n int
	var mu sync.Mutex
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		ts := t0.Add(time.Duration(n) * time.Second)
		n++
		return ts
	}
}

const (
	r100Normal   = `{"data":{"robot":[{"code":"R-100","hardwareState":"NORMAL","robotTypeCode":"RT_KUBOT"}]}}`
	r100Abnormal = `{"data":{"robot":[{"code":"R-100","hardwareState":"ROBOT_ABNORMAL","robotTypeCode":"RT_KUBOT","otherHardwareInfo":{"errorState":[{"info":"motor_fault"}]}}]}}`
)

func TestPoller_RoundTrip(t *testing.T) {
	srv := newFleetServer(t, r100Normal, r100Abnormal, r100Normal)
	rec := &recorder{}
	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	p := New(testConfig(srv.URL), nil, rec, WithClock(steppedClock(t0)))
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	assert.Empty(t, rec.takeEvents())

	require.NoError(t, p.PollOnce(ctx))
	t2 := t0.Add(time.Second)
	assert.Equal(t, []Event{{
		Kind: EventOpened, RobotID: "R-100", DisplayType: "Big Robot",
		Category: CategoryDevice, Detail: "motor_fault", Errors: []string{"motor_fault"}, OpenedAt: t2,
	}}, rec.takeEvents())

	require.NoError(t, p.PollOnce(ctx))
	t3 := t0.Add(2 * time.Second)
	events := rec.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventResolved, events[0].Kind)
	assert.Equal(t, "R-100", events[0].RobotID)
	assert.Equal(t, t2, events[0].OpenedAt)
	assert.Equal(t, t3, events[0].ClosedAt)

	assert.Equal(t, 3, rec.snapshotCount())
	req := srv.lastRequest()
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "robot", req.URL.Query().Get("modelType"))
}

func TestPoller_MalformedPayloadKeepsState(t *testing.T) {
	srv := newFleetServer(t, r100Abnormal, `{"data":{}}`, r100Abnormal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	require.Len(t, rec.takeEvents(), 1)
	before, ok := p.Snapshot()
	require.True(t, ok)

	err := p.PollOnce(ctx)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
	assert.Empty(t, rec.takeEvents())
	after, _ := p.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, 1, rec.snapshotCount())

	// The open exception survived the bad cycle, so nothing re-opens.
	require.NoError(t, p.PollOnce(ctx))
	assert.Empty(t, rec.takeEvents())
}

func TestPoller_NonOKStatus(t *testing.T) {
	srv := newFleetServer(t)
	srv.mu.Lock()
	srv.status = http.StatusBadGateway
	srv.mu.Unlock()
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)

	err := p.PollOnce(context.Background())
	assert.True(t, errors.Is(err, ErrUnexpectedStatus))
	_, ok := p.Snapshot()
	assert.False(t, ok)
	assert.Equal(t, 0, rec.snapshotCount())
}

func TestPoller_TransportError(t *testing.T) {
	srv := newFleetServer(t)
	url := srv.URL
	srv.Close()

	p := New(testConfig(url), nil, nil)
	assert.Error(t, p.PollOnce(context.Background()))
}

func TestPoller_LenientEntries(t *testing.T) {
	srv := newFleetServer(t, `{"data":{"robot":[
		"garbage",
		{"hardwareState":"ROBOT_ABNORMAL","otherHardwareInfo":{"errorState":[{"info":"x"},{"code":7}]}},
		{"code":"R-9","isCommandTimeout":"yes","otherHardwareInfo":null}
	]}}`)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)

	require.NoError(t, p.PollOnce(context.Background()))
	snap, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, []RobotStatus{
		{ID: "Unknown Robot", DisplayType: "Unknown Type", HardwareState: "ROBOT_ABNORMAL"},
		{ID: "R-9", DisplayType: "Unknown Type", HardwareState: "UNKNOWN"},
	}, snap.Robots)

	events := rec.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"x", `{"code":7}`}, events[0].Errors)
}

func TestPoller_AcknowledgeIsAppliedBeforeNextCycle(t *testing.T) {
	srv := newFleetServer(t, r100Abnormal, r100Abnormal, r100Normal, r100Abnormal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	require.Len(t, rec.takeEvents(), 1)

	p.Acknowledge("R-100")
	require.NoError(t, p.PollOnce(ctx))
	assert.Empty(t, rec.takeEvents(), "acknowledged robot must stay quiet while abnormal")

	require.NoError(t, p.PollOnce(ctx))
	assert.Empty(t, rec.takeEvents(), "clearing suppression emits nothing")

	require.NoError(t, p.PollOnce(ctx))
	events := rec.takeEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventOpened, events[0].Kind)
}

func TestPoller_SetBlacklist(t *testing.T) {
	srv := newFleetServer(t, r100Abnormal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), []blacklist.Range{blacklist.From(100)}, rec)
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	snap, _ := p.Snapshot()
	assert.Empty(t, snap.Robots)
	assert.Empty(t, rec.takeEvents())

	p.SetBlacklist(nil)
	require.NoError(t, p.PollOnce(ctx))
	snap, _ = p.Snapshot()
	assert.Len(t, snap.Robots, 1)
	assert.Len(t, rec.takeEvents(), 1)
}

func TestPoller_StartStop(t *testing.T) {
	srv := newFleetServer(t, r100Normal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)

	ctx := context.Background()
	p.Start(ctx)
	p.Start(ctx) // no-op while running

	require.Eventually(t, func() bool { return rec.snapshotCount() >= 1 }, 2*time.Second, 10*time.Millisecond)

	p.Stop()
	count := rec.snapshotCount()
	requests := srv.requests.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, count, rec.snapshotCount(), "no emission after Stop returns")
	assert.Equal(t, requests, srv.requests.Load())

	p.Stop() // idempotent
}

func TestPoller_AcknowledgeWakesRunningLoop(t *testing.T) {
	srv := newFleetServer(t, r100Abnormal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return len(rec.takeEvents()) == 1 }, 2*time.Second, 10*time.Millisecond)
	p.Acknowledge("R-100")

	time.Sleep(2500 * time.Millisecond)
	assert.Empty(t, rec.takeEvents())
}

func TestPoller_QueuedChangesCoalesce(t *testing.T) {
	srv := newFleetServer(t, r100Abnormal, r100Abnormal)
	rec := &recorder{}
	p := New(testConfig(srv.URL), nil, rec)
	ctx := context.Background()

	require.NoError(t, p.PollOnce(ctx))
	require.Len(t, rec.takeEvents(), 1)

	for i := 0; i < 10000; i++ {
		p.Acknowledge("R-100")
		p.SetBlacklist([]blacklist.Range{blacklist.Closed(1, 2)})
	}
	assert.Equal(t, 2, p.pendingChanges(), "one ack per robot plus the latest blacklist")

	p.SetBlacklist(nil)
	require.NoError(t, p.PollOnce(ctx))
	assert.Zero(t, p.pendingChanges())
	assert.Empty(t, rec.takeEvents(), "acknowledged robot stays quiet")
	snap, _ := p.Snapshot()
	assert.Len(t, snap.Robots, 1, "only the latest blacklist applies")
}
