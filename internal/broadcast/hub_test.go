package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/alert-relay/internal/broadcast"
	"github.com/notifyhub/alert-relay/internal/domain"
)

// fakeConn records every payload it was sent.
type fakeConn struct {
	mu         sync.Mutex
	sent       [][]byte
	closed     string
	terminated bool
	sendErr    error
	pingErr    error

	firstSendDelay time.Duration // stalls only the first Send
	closeDelay     time.Duration // simulates a peer slow to answer the close handshake
}

func (f *fakeConn) Send(_ context.Context, payload []byte) error {
	f.mu.Lock()
	delay := f.firstSendDelay
	f.firstSendDelay = 0
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeConn) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeConn) Close(reason string) error {
	time.Sleep(f.closeDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = reason
	return nil
}

func (f *fakeConn) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = true
	return nil
}

func (f *fakeConn) wasTerminated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

func (f *fakeConn) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, p := range f.sent {
		var m map[string]any
		_ = json.Unmarshal(p, &m)
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) closeReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newHub(failures *int) *broadcast.Hub {
	hooks := broadcast.Hooks{}
	if failures != nil {
		hooks.OnSendFailed = func() { *failures++ }
	}
	return broadcast.NewHub(time.Hour, zap.NewNop(), hooks)
}

func followAlert(recipient string) *domain.Alert {
	return domain.NewAlert("a-1", recipient, time.Now(), domain.Follow{Username: "nova", OriginID: 77})
}

func TestHub_RegisterSendsAck(t *testing.T) {
	h := newHub(nil)
	c := &fakeConn{}

	require.NoError(t, h.Register(context.Background(), c, domain.RecipientID(1)))

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]any{"kind": "connection", "status": "connected"}, msgs[0])
	assert.Equal(t, 1, h.Len())
}

func TestHub_RegisterAckFailureDropsConnection(t *testing.T) {
	h := newHub(nil)
	c := &fakeConn{sendErr: errors.New("broken pipe")}

	err := h.Register(context.Background(), c, domain.RecipientID(1))
	assert.ErrorIs(t, err, domain.ErrDelivery)
	assert.Equal(t, 0, h.Len())
}

func TestHub_DeliverOnlyToMatchingRecipient(t *testing.T) {
	h := newHub(nil)
	ctx := context.Background()
	ra, rb := domain.RecipientID(1), domain.RecipientID(2)

	a1, a2, b1 := &fakeConn{}, &fakeConn{}, &fakeConn{}
	require.NoError(t, h.Register(ctx, a1, ra))
	require.NoError(t, h.Register(ctx, a2, ra))
	require.NoError(t, h.Register(ctx, b1, rb))

	n := h.Deliver(ctx, followAlert(ra))
	assert.Equal(t, 2, n)

	for _, c := range []*fakeConn{a1, a2} {
		msgs := c.messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, "follow", msgs[1]["type"])
		assert.Equal(t, "nova", msgs[1]["username"])
		assert.Equal(t, ra, msgs[1]["recipientId"])
	}
	assert.Len(t, b1.messages(), 1, "other recipients only see their ack")
}

func TestHub_DeliverWithoutConnections(t *testing.T) {
	h := newHub(nil)
	assert.Equal(t, 0, h.Deliver(context.Background(), followAlert(domain.RecipientID(9))))
}

func TestHub_SendFailureIsIsolated(t *testing.T) {
	failures := 0
	h := newHub(&failures)
	ctx := context.Background()
	rid := domain.RecipientID(3)

	good, bad := &fakeConn{}, &fakeConn{}
	require.NoError(t, h.Register(ctx, good, rid))
	require.NoError(t, h.Register(ctx, bad, rid))
	bad.mu.Lock()
	bad.sendErr = errors.New("write timeout")
	bad.mu.Unlock()

	assert.Equal(t, 1, h.Deliver(ctx, followAlert(rid)))
	assert.Equal(t, 1, failures)
	assert.Len(t, good.messages(), 2)
	assert.Equal(t, 2, h.Len(), "a transient failure keeps the connection registered")
}

func TestHub_ClosedConnectionIsRemovedOnSend(t *testing.T) {
	h := newHub(nil)
	ctx := context.Background()
	rid := domain.RecipientID(4)

	c := &fakeConn{}
	require.NoError(t, h.Register(ctx, c, rid))
	c.mu.Lock()
	c.sendErr = domain.ErrConnectionClosed
	c.mu.Unlock()

	assert.Equal(t, 0, h.Deliver(ctx, followAlert(rid)))
	assert.Equal(t, 0, h.Len())
}

func TestHub_SweepTerminatesUnresponsive(t *testing.T) {
	h := newHub(nil)
	ctx := context.Background()

	healthy := &fakeConn{}
	silent := &fakeConn{pingErr: context.DeadlineExceeded}
	require.NoError(t, h.Register(ctx, healthy, domain.RecipientID(5)))
	require.NoError(t, h.Register(ctx, silent, domain.RecipientID(5)))

	// first round: both were alive at registration, both get pinged
	h.Sweep(ctx)
	assert.Equal(t, 2, h.Len())

	// second round: silent never answered
	h.Sweep(ctx)
	assert.Equal(t, 1, h.Len())
	assert.True(t, silent.wasTerminated())
	assert.Empty(t, silent.closeReason(), "dead peers are dropped without a close handshake")
	assert.False(t, healthy.wasTerminated())

	h.Sweep(ctx)
	assert.Equal(t, 1, h.Len())
}

func TestHub_RunClosesConnectionsOnShutdown(t *testing.T) {
	h := newHub(nil)
	c := &fakeConn{}
	require.NoError(t, h.Register(context.Background(), c, domain.RecipientID(6)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "server shutting down", c.closeReason())
	assert.Equal(t, 0, h.Len())
}

func TestHub_UnregisterUnknownIsNoop(t *testing.T) {
	h := newHub(nil)
	h.Unregister(&fakeConn{})
	assert.Equal(t, 0, h.Len())
}

func TestHub_AckPrecedesConcurrentDelivery(t *testing.T) {
	h := newHub(nil)
	ctx := context.Background()
	rid := domain.RecipientID(7)
	c := &fakeConn{firstSendDelay: 100 * time.Millisecond}

	errc := make(chan error, 1)
	go func() { errc <- h.Register(ctx, c, rid) }()

	// a consumer delivers while the ack write is still in flight
	time.Sleep(20 * time.Millisecond)
	delivered := h.Deliver(ctx, followAlert(rid))
	require.NoError(t, <-errc)

	assert.Equal(t, 0, delivered)
	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "connection", msgs[0]["kind"])

	assert.Equal(t, 1, h.Deliver(ctx, followAlert(rid)))
	msgs = c.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "follow", msgs[1]["type"])
}

func TestHub_ShutdownClosesConcurrently(t *testing.T) {
	h := newHub(nil)
	var conns []*fakeConn
	for i := 0; i < 5; i++ {
		c := &fakeConn{closeDelay: 200 * time.Millisecond}
		require.NoError(t, h.Register(context.Background(), c, domain.RecipientID(8)))
		conns = append(conns, c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	h.Run(ctx)

	assert.Less(t, time.Since(start), 600*time.Millisecond, "close handshakes must not run one after another")
	for _, c := range conns {
		assert.Equal(t, "server shutting down", c.closeReason())
	}
}
