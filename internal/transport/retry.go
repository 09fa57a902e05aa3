package transport

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strconv"
)

// retryLoop dials every pending peer, hands successes to dispatch and sleeps
// for the backoff delay before the next pass. It blocks while every peer is
// connected. The backoff pass counter is never reset.
func (t *Transport) retryLoop(ctx context.Context) error {
	pass := 0
	for {
		ids, err := t.waitPending(ctx)
		if err != nil {
			return nil
		}

		for _, id := range ids {
			c, err := t.dial(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.stats.dialFailures.Add(1)
				t.log.Debug("dial failed", "peer", id, "error", err)
				continue
			}
			t.pendingMu.Lock()
			delete(t.pending, id)
			t.pendingMu.Unlock()
			t.stats.dialed.Add(1)
			t.queueRegistration(c)
		}

		delay := t.cfg.Backoff.Delay(pass)
		if pass < t.cfg.Backoff.Doublings {
			pass++
		}
		t.log.Debug("retry pass done", "delay", delay)
		if err := t.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// waitPending blocks until at least one peer needs dialing.
func (t *Transport) waitPending(ctx context.Context) ([]string, error) {
	for {
		t.pendingMu.Lock()
		ids := make([]string, 0, len(t.pending))
		for id := range t.pending {
			ids = append(ids, id)
		}
		t.pendingMu.Unlock()

		if len(ids) > 0 {
			slices.Sort(ids)
			return ids, nil
		}

		select {
		case <-t.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *Transport) dial(ctx context.Context, peerID string) (*peerConn, error) {
	port, ok := t.cfg.Roster[peerID]
	if !ok {
		return nil, fmt.Errorf("dial %q: %w", peerID, ErrUnknownPeer)
	}
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(port))

	dctx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	conn, err := t.cfg.Dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s at %s: %w", peerID, addr, err)
	}
	return newPeerConn(conn, peerID, false), nil
}
