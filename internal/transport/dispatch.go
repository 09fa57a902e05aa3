package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// dispatchLoop is the single owner of connection state. Each pass registers
// freshly dialed sockets, applies queued write switches, waits for I/O events
// (without waiting while writes are outstanding), flushes writers and pokes
// the retry loop when peers are still missing.
func (t *Transport) dispatchLoop(ctx context.Context) error {
	defer t.closeAll()

	for {
		t.registerQueued(ctx)
		t.applyWriteSwitches()

		if t.writersPending() {
			select {
			case ev := <-t.events:
				t.handle(ctx, ev)
			case <-ctx.Done():
				return nil
			default:
			}
		} else {
			select {
			case ev := <-t.events:
				t.handle(ctx, ev)
			case <-t.wake:
			case <-ctx.Done():
				return nil
			}
		}
		t.handleReady(ctx)

		t.flushWriters()

		t.pendingMu.Lock()
		missing := len(t.pending) > 0
		t.pendingMu.Unlock()
		if missing {
			t.wakeRetry()
		}
	}
}

// handleReady processes events that are already queued without blocking.
func (t *Transport) handleReady(ctx context.Context) {
	for n := len(t.events); n > 0; n-- {
		select {
		case ev := <-t.events:
			t.handle(ctx, ev)
		default:
			return
		}
	}
}

func (t *Transport) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventAccept:
		c := newPeerConn(ev.raw, "", true)
		t.stats.accepted.Add(1)
		t.log.Info("accepted connection", "conn", c.id, "remote", c.remote())
		t.register(ctx, c)

	case eventData:
		if ev.conn.State() == StateClosed {
			return
		}
		t.receive(ev.conn, ev.data)

	case eventClosed:
		if ev.conn.State() == StateClosed {
			return
		}
		t.closeConn(ev.conn, ev.err)
	}
}

func (t *Transport) registerQueued(ctx context.Context) {
	t.registerMu.Lock()
	q := t.registerQ
	t.registerQ = nil
	t.registerMu.Unlock()

	for _, c := range q {
		t.log.Info("connected", "peer", c.peerID, "conn", c.id, "remote", c.remote())
		t.register(ctx, c)
	}
}

// register moves c to Reading and starts its reader.
func (t *Transport) register(ctx context.Context, c *peerConn) {
	c.setState(StateReading)
	t.connMu.Lock()
	t.conns[c.id] = c
	t.connMu.Unlock()
	go t.readLoop(ctx, c)
}

// readLoop forwards raw chunks from one socket to dispatch. It holds no
// connection state of its own.
func (t *Transport) readLoop(ctx context.Context, c *peerConn) {
	buf := make([]byte, t.cfg.ReadBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case t.events <- event{kind: eventData, conn: c, data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case t.events <- event{kind: eventClosed, conn: c, err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// receive appends data to the connection's accumulator and moves every
// complete line into the received buffer.
func (t *Transport) receive(c *peerConn, data []byte) {
	c.in = append(c.in, data...)

	var lines []string
	for {
		eol := bytes.IndexByte(c.in, '\n')
		if eol < 0 {
			break
		}
		lines = append(lines, string(c.in[:eol]))
		c.in = c.in[eol+1:]
	}
	if len(c.in) == 0 {
		c.in = nil
	}
	if len(lines) == 0 {
		return
	}

	t.receivedMu.Lock()
	t.received = append(t.received, lines...)
	t.receivedMu.Unlock()
	t.stats.linesIn.Add(int64(len(lines)))

	for _, line := range lines {
		t.log.Debug("received line", "conn", c.id, "peer", c.peerID, "line", line)
	}
}

func (t *Transport) applyWriteSwitches() {
	t.switchMu.Lock()
	q := t.switchQ
	t.switchQ = nil
	t.switchMu.Unlock()

	for _, c := range q {
		if c.State() == StateReading {
			c.setState(StateWriting)
		}
	}
}

func (t *Transport) writers() []*peerConn {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	var out []*peerConn
	for _, c := range t.conns {
		if c.State() == StateWriting {
			out = append(out, c)
		}
	}
	return out
}

func (t *Transport) writersPending() bool {
	return len(t.writers()) > 0
}

func (t *Transport) flushWriters() {
	for _, c := range t.writers() {
		t.flush(c)
	}
}

// flush writes queued chunks in order. A write that times out part way keeps
// the unwritten tail at the head of the queue for the next pass.
func (t *Transport) flush(c *peerConn) {
	for {
		buf := c.head()
		if buf == nil {
			c.setState(StateReading)
			return
		}

		if err := c.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
			t.closeConn(c, err)
			return
		}
		n, err := c.conn.Write(buf)
		done := c.advance(n)
		if err != nil {
			if isTimeout(err) {
				t.stats.partialWrites.Add(1)
				return
			}
			t.closeConn(c, err)
			return
		}
		if done {
			t.stats.linesOut.Add(1)
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// closeConn tears c down. Outbound peers go back to the retry loop; inbound
// connections are forgotten.
func (t *Transport) closeConn(c *peerConn, cause error) {
	c.setState(StateClosed)
	c.conn.Close()

	t.connMu.Lock()
	delete(t.conns, c.id)
	t.connMu.Unlock()
	t.stats.closed.Add(1)

	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, net.ErrClosed) {
		t.log.Warn("closing connection", "conn", c.id, "peer", c.peerID, "error", cause)
	} else {
		t.log.Info("connection closed", "conn", c.id, "peer", c.peerID)
	}

	if c.peerID != "" {
		t.requeue(c.peerID)
	}
}

func (t *Transport) closeAll() {
	t.connMu.Lock()
	conns := t.conns
	t.conns = make(map[string]*peerConn)
	t.connMu.Unlock()

	for _, c := range conns {
		c.setState(StateClosed)
		c.conn.Close()
	}
	t.closeQueued()
}
