package transport

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the I/O interest of a peer connection.
type State int32

const (
	StateConnecting State = iota
	StateReading
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReading:
		return "reading"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON debug output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateConnecting, StateReading, StateWriting, StateClosed} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}

// peerConn is one socket registered with the dispatch loop. Everything except
// the outbound queue and state is touched only by the dispatch goroutine.
type peerConn struct {
	id      string
	peerID  string // empty for inbound connections
	inbound bool
	conn    net.Conn

	state atomic.Int32

	in []byte // bytes received after the last newline

	outMu sync.Mutex
	out   [][]byte
}

func newPeerConn(conn net.Conn, peerID string, inbound bool) *peerConn {
	c := &peerConn{
		id:      uuid.NewString(),
		peerID:  peerID,
		inbound: inbound,
		conn:    conn,
	}
	c.state.Store(int32(StateConnecting))
	return c
}

func (c *peerConn) State() State { return State(c.state.Load()) }

func (c *peerConn) setState(s State) { c.state.Store(int32(s)) }

// enqueue appends a line to the outbound queue. Each connection gets its own
// copy so partial writes on one socket never affect another.
func (c *peerConn) enqueue(line []byte) {
	buf := make([]byte, len(line))
	copy(buf, line)
	c.outMu.Lock()
	c.out = append(c.out, buf)
	c.outMu.Unlock()
}

func (c *peerConn) head() []byte {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if len(c.out) == 0 {
		return nil
	}
	return c.out[0]
}

// advance records that n bytes of the head chunk were written and reports
// whether the chunk is now complete.
func (c *peerConn) advance(n int) bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if len(c.out) == 0 {
		return false
	}
	if n < len(c.out[0]) {
		c.out[0] = c.out[0][n:]
		return false
	}
	c.out[0] = nil
	c.out = c.out[1:]
	return true
}

func (c *peerConn) queued() int {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return len(c.out)
}

func (c *peerConn) remote() string {
	if c.conn == nil || c.conn.RemoteAddr() == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// PeerStatus describes one live connection for debug output.
type PeerStatus struct {
	ConnID  string `json:"conn_id"`
	PeerID  string `json:"peer_id,omitempty"`
	Remote  string `json:"remote"`
	Inbound bool   `json:"inbound"`
	State   State  `json:"state"`
	Queued  int    `json:"queued"`
}

func (c *peerConn) status() PeerStatus {
	return PeerStatus{
		ConnID:  c.id,
		PeerID:  c.peerID,
		Remote:  c.remote(),
		Inbound: c.inbound,
		State:   c.State(),
		Queued:  c.queued(),
	}
}
