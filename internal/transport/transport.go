// Package transport maintains line-oriented TCP links to a fixed roster of
// peers. One dispatch goroutine owns every connection; a second goroutine
// redials peers that are not connected, backing off between passes.
//
// Lines passed to Broadcast go to every connected socket, inbound and
// outbound. Lines received from any socket accumulate until DrainReceived.
// Nothing is acknowledged, ordered across peers or persisted.
package transport

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/rovernav/internal/monitoring"
)

var (
	// ErrUnknownPeer is returned when dialing a peer id missing from the roster.
	ErrUnknownPeer = errors.New("transport: peer not in roster")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("transport: already running")
)

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config describes one transport endpoint.
type Config struct {
	// Self is this endpoint's peer id. It is removed from the dial set.
	Self string
	// Host is the address every roster port lives on.
	Host string
	// Roster maps peer id to TCP port.
	Roster map[string]int
	// ListenAddr overrides Host:Roster[Self] for the listener.
	ListenAddr string

	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	Backoff        Backoff
	ReadBufferSize int

	Logger *slog.Logger
	Dialer Dialer
}

func (c Config) normalize() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 50 * time.Millisecond
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 64
	}
	c.Backoff = c.Backoff.normalize()
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: c.DialTimeout}
	}
	return c
}

type eventKind int

const (
	eventAccept eventKind = iota
	eventData
	eventClosed
)

// event is what the acceptor and per-connection readers hand to dispatch.
type event struct {
	kind eventKind
	conn *peerConn
	raw  net.Conn
	data []byte
	err  error
}

// Stats counts transport activity since New.
type Stats struct {
	Accepted      int64 `json:"accepted"`
	Dialed        int64 `json:"dialed"`
	DialFailures  int64 `json:"dial_failures"`
	Closed        int64 `json:"closed"`
	LinesIn       int64 `json:"lines_in"`
	LinesOut      int64 `json:"lines_out"`
	PartialWrites int64 `json:"partial_writes"`
	Drains        int64 `json:"drains"`
	Pending       int   `json:"pending"`
}

type counters struct {
	accepted, dialed, dialFailures, closed atomic.Int64
	linesIn, linesOut, partialWrites       atomic.Int64
	drains                                 atomic.Int64
}

// Transport is a peer endpoint. Broadcast, DrainReceived, Peers and Stats are
// safe to call from any goroutine.
type Transport struct {
	cfg   Config
	log   *slog.Logger
	ln    net.Listener
	peers []string

	events chan event
	wake   chan struct{}

	// peers waiting for a dial; notify wakes the retry loop
	pendingMu sync.Mutex
	pending   map[string]struct{}
	notify    chan struct{}

	registerMu sync.Mutex
	registerQ  []*peerConn

	switchMu sync.Mutex
	switchQ  []*peerConn

	connMu sync.RWMutex
	conns  map[string]*peerConn

	receivedMu sync.Mutex
	received   []string

	stats   counters
	running atomic.Bool

	sleep func(context.Context, time.Duration) error
}

// New binds the listener and seeds the dial set with every roster peer other
// than Self. No goroutines start until Run.
func New(cfg Config) (*Transport, error) {
	cfg = cfg.normalize()

	addr := cfg.ListenAddr
	if addr == "" {
		port, ok := cfg.Roster[cfg.Self]
		if !ok {
			return nil, fmt.Errorf("listen address for %q: %w", cfg.Self, ErrUnknownPeer)
		}
		addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	t := &Transport{
		cfg:     cfg,
		log:     monitoring.Or(cfg.Logger).With("component", "transport", "self", cfg.Self),
		ln:      ln,
		events:  make(chan event, 64),
		wake:    make(chan struct{}, 1),
		pending: make(map[string]struct{}),
		notify:  make(chan struct{}, 1),
		conns:   make(map[string]*peerConn),
		sleep:   sleepContext,
	}
	for id := range cfg.Roster {
		if id == cfg.Self {
			continue
		}
		t.peers = append(t.peers, id)
		t.pending[id] = struct{}{}
	}
	slices.Sort(t.peers)

	t.log.Info("listening", "addr", ln.Addr().String(), "peers", t.peers)
	return t, nil
}

// Addr is the bound listener address.
func (t *Transport) Addr() net.Addr { return t.ln.Addr() }

// Run serves until ctx is cancelled, then closes every socket. It returns nil
// on cancellation.
func (t *Transport) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.acceptLoop(ctx) })
	g.Go(func() error { return t.dispatchLoop(ctx) })
	g.Go(func() error { return t.retryLoop(ctx) })

	err := g.Wait()
	t.closeQueued()
	t.log.Info("stopped")
	return err
}

func (t *Transport) acceptLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { t.ln.Close() })
	defer stop()

	for {
		conn, err := t.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.log.Warn("accept failed", "error", err)
			continue
		}
		select {
		case t.events <- event{kind: eventAccept, raw: conn}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}

// Broadcast queues text plus a newline on every registered connection. It
// never blocks on the network.
func (t *Transport) Broadcast(text string) {
	line := []byte(text + "\n")

	t.connMu.RLock()
	targets := make([]*peerConn, 0, len(t.conns))
	for _, c := range t.conns {
		targets = append(targets, c)
	}
	t.connMu.RUnlock()

	if len(targets) == 0 {
		t.log.Debug("broadcast with no connections", "line", text)
		return
	}

	t.switchMu.Lock()
	for _, c := range targets {
		c.enqueue(line)
		t.switchQ = append(t.switchQ, c)
	}
	t.switchMu.Unlock()

	t.wakeDispatch()
}

// DrainReceived returns every complete line received since the last call and
// clears the buffer. Duplicate lines are kept.
func (t *Transport) DrainReceived() []string {
	t.receivedMu.Lock()
	out := make([]string, len(t.received))
	copy(out, t.received)
	clear(t.received)
	t.received = t.received[:0]
	t.receivedMu.Unlock()

	t.stats.drains.Add(1)
	return out
}

// Peers lists registered connections sorted by peer id then connection id.
func (t *Transport) Peers() []PeerStatus {
	t.connMu.RLock()
	out := make([]PeerStatus, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c.status())
	}
	t.connMu.RUnlock()

	slices.SortFunc(out, func(a, b PeerStatus) int {
		return cmp.Or(strings.Compare(a.PeerID, b.PeerID), strings.Compare(a.ConnID, b.ConnID))
	})
	return out
}

// Pending lists roster peers not currently connected.
func (t *Transport) Pending() []string {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	out := make([]string, 0, len(t.pending))
	for id := range t.pending {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Stats returns a snapshot of the activity counters.
func (t *Transport) Stats() Stats {
	t.pendingMu.Lock()
	pending := len(t.pending)
	t.pendingMu.Unlock()
	return Stats{
		Accepted:      t.stats.accepted.Load(),
		Dialed:        t.stats.dialed.Load(),
		DialFailures:  t.stats.dialFailures.Load(),
		Closed:        t.stats.closed.Load(),
		LinesIn:       t.stats.linesIn.Load(),
		LinesOut:      t.stats.linesOut.Load(),
		PartialWrites: t.stats.partialWrites.Load(),
		Drains:        t.stats.drains.Load(),
		Pending:       pending,
	}
}

func (t *Transport) wakeDispatch() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Transport) wakeRetry() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *Transport) queueRegistration(c *peerConn) {
	t.registerMu.Lock()
	t.registerQ = append(t.registerQ, c)
	t.registerMu.Unlock()
	t.wakeDispatch()
}

// requeue puts a roster peer back in the dial set.
func (t *Transport) requeue(peerID string) {
	if _, ok := t.cfg.Roster[peerID]; !ok || peerID == t.cfg.Self {
		return
	}
	t.pendingMu.Lock()
	t.pending[peerID] = struct{}{}
	t.pendingMu.Unlock()
	t.wakeRetry()
}

// closeQueued closes sockets dialed after dispatch stopped.
func (t *Transport) closeQueued() {
	t.registerMu.Lock()
	q := t.registerQ
	t.registerQ = nil
	t.registerMu.Unlock()
	for _, c := range q {
		c.setState(StateClosed)
		c.conn.Close()
	}
}
