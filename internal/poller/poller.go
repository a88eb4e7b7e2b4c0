package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"fleet-monitor-backend/config"
	"fleet-monitor-backend/internal/blacklist"
)

// Poller periodically queries the fleet-status endpoint and turns each
// response into a snapshot plus exception transitions.
type Poller struct {
	endpoint string
	headers  map[string]string
	interval time.Duration
	client   *http.Client
	listener Listener
	now      func() time.Time

	// state belongs to whichever goroutine is running cycles.
	state *tracker

	// Changes requested by other goroutines. Repeats coalesce, so the
	// backlog stays bounded even when no loop is draining it.
	mu         sync.Mutex
	pendingAck map[string]struct{}
	pendingBL  *[]blacklist.Range
	wake       chan struct{}

	last atomic.Pointer[Snapshot]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Poller.
type Option func(*Poller)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) { p.client = c }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New creates a poller. listener may be nil.
func New(cfg config.PollerConfig, ranges []blacklist.Range, listener Listener, opts ...Option) *Poller {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid proxy URL; poller will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}

	p := &Poller{
		endpoint: cfg.Endpoint(),
		headers:  cfg.Headers,
		interval: interval,
		client:   &http.Client{Transport: transport, Timeout: timeout},
		listener: listener,
		now:      time.Now,
		state:    newTracker(ranges),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the poll loop. Calling it while running is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	log.Info().Str("endpoint", p.endpoint).Dur("interval", p.interval).Msg("fleet poller started")
}

// Stop ends the poll loop and waits for an in-flight cycle to finish. No
// listener call happens after Stop returns.
func (p *Poller) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.done == nil {
		return
	}

	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
	log.Info().Msg("fleet poller stopped")
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	_ = p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
			p.drain()
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_ = p.PollOnce(ctx)
		}
	}
}

// Acknowledge marks robotID's open exception as handled by an operator. The
// change is applied on the poll goroutine before the next cycle.
func (p *Poller) Acknowledge(robotID string) {
	p.mu.Lock()
	if p.pendingAck == nil {
		p.pendingAck = make(map[string]struct{})
	}
	p.pendingAck[robotID] = struct{}{}
	p.mu.Unlock()
	p.signal()
}

// SetBlacklist replaces the blacklist ranges between cycles. Only the latest
// call before a cycle takes effect.
func (p *Poller) SetBlacklist(ranges []blacklist.Range) {
	cp := append([]blacklist.Range(nil), ranges...)
	p.mu.Lock()
	p.pendingBL = &cp
	p.mu.Unlock()
	p.signal()
}

func (p *Poller) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// pendingChanges reports how many queued changes await the next drain.
func (p *Poller) pendingChanges() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.pendingAck)
	if p.pendingBL != nil {
		n++
	}
	return n
}

func (p *Poller) drain() {
	p.mu.Lock()
	acks, ranges := p.pendingAck, p.pendingBL
	p.pendingAck, p.pendingBL = nil, nil
	p.mu.Unlock()

	if ranges != nil {
		p.state.setBlacklist(*ranges)
	}
	for id := range acks {
		p.state.acknowledge(id)
	}
}

// Snapshot returns a copy of the last successful snapshot. ok is false until
// the first good cycle.
func (p *Poller) Snapshot() (Snapshot, bool) {
	s := p.last.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return Snapshot{At: s.At, Robots: append([]RobotStatus(nil), s.Robots...)}, true
}

// PollOnce runs a single cycle. It must not be called concurrently with
// Start; the CLI and tests use it directly. A failed fetch leaves all state
// untouched and is only logged.
func (p *Poller) PollOnce(ctx context.Context) error {
	p.drain()

	records, err := p.fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", p.endpoint).Msg("fleet poll failed; keeping previous snapshot")
		return err
	}

	snap, events := p.state.apply(p.now(), records)
	p.last.Store(&snap)

	for _, evt := range events {
		log.Info().
			Str("robot", evt.RobotID).
			Str("kind", string(evt.Kind)).
			Str("category", string(evt.Category)).
			Msg("exception transition")
		if p.listener != nil {
			p.listener.ExceptionTransition(evt)
		}
	}
	if p.listener != nil {
		p.listener.SnapshotUpdated(snap)
	}
	log.Debug().Int("robots", len(snap.Robots)).Int("events", len(events)).Msg("fleet poll cycle finished")
	return nil
}

// fetch issues one GET. The in-flight request is bounded by the client
// timeout only; cancelling ctx does not abort it.
func (p *Poller) fetch(ctx context.Context) ([]RobotRecord, error) {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range p.headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return decodePayload(body)
}
