package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func newTestTransport(t *testing.T, cfg Config) *Transport {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	tr, err := New(cfg)
	require.NoError(t, err)
	return tr
}

// start runs tr in the background and returns a func that stops it and waits.
func start(t *testing.T, tr *Transport) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(waitFor):
				t.Error("transport did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func port(tr *Transport) int { return tr.Addr().(*net.TCPAddr).Port }

func connectedTo(tr *Transport, peer string) func() bool {
	return func() bool {
		for _, p := range tr.Peers() {
			if p.PeerID == peer && p.State != StateClosed {
				return true
			}
		}
		return false
	}
}

type dialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

func fastBackoff() Backoff {
	return Backoff{Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond, Doublings: 2}
}

func TestNew_RequiresListenAddress(t *testing.T) {
	_, err := New(Config{Self: "ROVER_07", Roster: map[string]int{"ROVER_01": 1}})
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

func TestNew_PendingExcludesSelf(t *testing.T) {
	tr := newTestTransport(t, Config{
		Self:   "ROVER_07",
		Roster: map[string]int{"ROVER_07": 1, "ROVER_02": 2, "ROVER_01": 3},
	})
	defer tr.ln.Close()

	assert.Equal(t, []string{"ROVER_01", "ROVER_02"}, tr.Pending())
	assert.Equal(t, 2, tr.Stats().Pending)
}

func TestBroadcast_DeliversOneLine(t *testing.T) {
	b := newTestTransport(t, Config{Self: "B"})
	start(t, b)

	a := newTestTransport(t, Config{
		Self:    "A",
		Roster:  map[string]int{"B": port(b)},
		Backoff: fastBackoff(),
	})
	start(t, a)

	require.Eventually(t, connectedTo(a, "B"), waitFor, 10*time.Millisecond)
	assert.Empty(t, a.Pending())

	a.Broadcast("SOIL CRYSTAL 5 3")

	var got []string
	require.Eventually(t, func() bool {
		got = append(got, b.DrainReceived()...)
		return len(got) > 0
	}, waitFor, 10*time.Millisecond)

	assert.Equal(t, []string{"SOIL CRYSTAL 5 3"}, got)
	assert.Empty(t, b.DrainReceived())
}

func TestBroadcast_ReachesInboundConnections(t *testing.T) {
	a := newTestTransport(t, Config{Self: "A"})
	start(t, a)

	client, err := net.Dial("tcp", a.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return len(a.Peers()) == 1 }, waitFor, 10*time.Millisecond)
	assert.True(t, a.Peers()[0].Inbound)

	a.Broadcast("SAND MINERAL -1 4")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "SAND MINERAL -1 4\n", string(buf[:n]))
}

func TestReceive_ReassemblesAndKeepsDuplicates(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A", ReadBufferSize: 4})
	start(t, tr)

	client, err := net.Dial("tcp", tr.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("SOIL CRYSTAL 5 3\nSOIL CRYSTAL 5 3\nGRAVEL"))
	require.NoError(t, err)

	var got []string
	require.Eventually(t, func() bool {
		got = append(got, tr.DrainReceived()...)
		return len(got) >= 2
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"SOIL CRYSTAL 5 3", "SOIL CRYSTAL 5 3"}, got)

	_, err = client.Write([]byte(" ORGANIC 0 0\n"))
	require.NoError(t, err)

	got = nil
	require.Eventually(t, func() bool {
		got = append(got, tr.DrainReceived()...)
		return len(got) >= 1
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, []string{"GRAVEL ORGANIC 0 0"}, got)
	assert.EqualValues(t, 3, tr.Stats().LinesIn)
}

func TestInboundCloseIsNotRetried(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A"})
	start(t, tr)

	client, err := net.Dial("tcp", tr.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.Peers()) == 1 }, waitFor, 10*time.Millisecond)

	client.Close()

	require.Eventually(t, func() bool { return len(tr.Peers()) == 0 }, waitFor, 10*time.Millisecond)
	assert.Empty(t, tr.Pending())
	assert.EqualValues(t, 1, tr.Stats().Closed)
}

func TestReconnectAfterPeerRestart(t *testing.T) {
	b1 := newTestTransport(t, Config{Self: "B"})
	stopB1 := start(t, b1)
	p := port(b1)

	a := newTestTransport(t, Config{
		Self:    "A",
		Roster:  map[string]int{"B": p},
		Backoff: fastBackoff(),
	})
	start(t, a)
	require.Eventually(t, connectedTo(a, "B"), waitFor, 10*time.Millisecond)

	stopB1()
	require.Eventually(t, func() bool { return len(a.Pending()) == 1 }, waitFor, 10*time.Millisecond)

	b2 := newTestTransport(t, Config{Self: "B", ListenAddr: b1.Addr().String()})
	start(t, b2)

	require.Eventually(t, func() bool {
		a.Broadcast("ROCK NONE 1 1")
		for _, line := range b2.DrainReceived() {
			if line == "ROCK NONE 1 1" {
				return true
			}
		}
		return false
	}, waitFor, 20*time.Millisecond)

	assert.GreaterOrEqual(t, a.Stats().Dialed, int64(2))
}

func TestFlush_ResumesAfterPartialWrite(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A", WriteTimeout: 5 * time.Millisecond})
	start(t, tr)

	local, remote := net.Pipe()
	defer remote.Close()
	tr.queueRegistration(newPeerConn(local, "", true))
	require.Eventually(t, func() bool { return len(tr.Peers()) == 1 }, waitFor, 5*time.Millisecond)

	var want strings.Builder
	for i := 0; i < 20; i++ {
		line := strings.Repeat(string(rune('a'+i)), 200)
		tr.Broadcast(line)
		want.WriteString(line + "\n")
	}

	var got bytes.Buffer
	buf := make([]byte, 32)
	for got.Len() < want.Len() {
		require.NoError(t, remote.SetReadDeadline(time.Now().Add(waitFor)))
		n, err := remote.Read(buf)
		require.NoError(t, err)
		got.Write(buf[:n])
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, want.String(), got.String())
	assert.Positive(t, tr.Stats().PartialWrites)
	require.Eventually(t, func() bool {
		peers := tr.Peers()
		return len(peers) == 1 && peers[0].State == StateReading && peers[0].Queued == 0
	}, waitFor, 5*time.Millisecond)
	assert.EqualValues(t, 20, tr.Stats().LinesOut)
}

func TestRetryLoop_BackoffSchedule(t *testing.T) {
	var attempts atomic.Int32
	tr := newTestTransport(t, Config{
		Self:   "A",
		Roster: map[string]int{"B": 1},
		Dialer: dialerFunc(func(ctx context.Context, network, address string) (net.Conn, error) {
			attempts.Add(1)
			return nil, errors.New("connection refused")
		}),
	})
	defer tr.ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 6 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, tr.retryLoop(ctx))

	assert.EqualValues(t, 6, attempts.Load())
	assert.Equal(t, []time.Duration{
		250 * time.Millisecond,
		500 * time.Millisecond,
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		4000 * time.Millisecond,
	}, delays)
	assert.EqualValues(t, 6, tr.Stats().DialFailures)
	assert.Equal(t, []string{"B"}, tr.Pending())
}

func TestRetryLoop_BlocksWhenNothingPending(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A"})
	defer tr.ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.retryLoop(ctx) }()

	select {
	case <-done:
		t.Fatal("retry loop returned with nothing to do")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("retry loop ignored cancellation")
	}
}

func TestRun_Twice(t *testing.T) {
	tr := newTestTransport(t, Config{Self: "A"})
	start(t, tr)

	require.Eventually(t, func() bool { return tr.running.Load() }, waitFor, time.Millisecond)
	assert.ErrorIs(t, tr.Run(context.Background()), ErrAlreadyRunning)
}
