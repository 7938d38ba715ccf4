package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatengine/server/internal/config"
)

var testGateway = config.GatewayConfig{
	PingInterval: 30 * time.Second,
	PongWait:     10 * time.Second,
	SendBuffer:   16,
	TypingRate:   100,
	TypingBurst:  100,
}

type frame struct {
	Type    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type allowList map[int64]bool

func (a allowList) CanJoinThread(ctx context.Context, tenantID, userID, threadID int64) bool {
	return a[userID]
}

func startHub(t *testing.T, cfg config.GatewayConfig, opts ...HubOption) *Hub {
	t.Helper()
	h := NewHub(cfg, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func connect(t *testing.T, h *Hub, tenantID, userID int64) *Client {
	t.Helper()
	c := NewClient(nil, h, tenantID, userID, "user")
	before := h.Stats().Sessions
	h.Register(c)
	require.Eventually(t, func() bool { return h.Stats().Sessions == before+1 }, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send queue closed")
		var f frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return frame{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected frame: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestToUsersReachesEverySessionOfTheUser(t *testing.T) {
	h := startHub(t, testGateway)
	laptop := connect(t, h, 1, 10)
	phone := connect(t, h, 1, 10)
	other := connect(t, h, 1, 11)

	h.ToUsers([]int64{10}, ReadEvent{ThreadID: 5, UserID: 11})

	for _, c := range []*Client{laptop, phone} {
		f := receive(t, c)
		assert.Equal(t, EventRead, f.Type)
		var ev ReadEvent
		require.NoError(t, json.Unmarshal(f.Payload, &ev))
		assert.Equal(t, int64(5), ev.ThreadID)
	}
	assertSilent(t, other)

	assert.Equal(t, 2, listeners(h, UserChannel(10)))
	assert.Equal(t, Stats{Sessions: 3, Users: 2, Channels: 3}, h.Stats())
}

func TestToUsersDeliversOncePerSession(t *testing.T) {
	h := startHub(t, testGateway)
	c := connect(t, h, 1, 10)

	h.ToUsers([]int64{10, 10}, PresenceEvent{UserID: 10})
	receive(t, c)
	assertSilent(t, c)
}

func TestTenantChannelIsIsolated(t *testing.T) {
	h := startHub(t, testGateway)
	mine := connect(t, h, 1, 10)
	theirs := connect(t, h, 2, 20)

	h.ToTenant(1, PresenceEvent{UserID: 10, Status: "ACTIVE"})

	assert.Equal(t, EventPresence, receive(t, mine).Type)
	assertSilent(t, theirs)
}

func TestJoinThreadIsGuarded(t *testing.T) {
	h := startHub(t, testGateway, WithThreadGuard(allowList{10: true}))
	member := connect(t, h, 1, 10)
	outsider := connect(t, h, 1, 11)

	member.handleIncomingMessage([]byte(`{"type":"joinThread","payload":{"threadId":7}}`))
	outsider.handleIncomingMessage([]byte(`{"type":"joinThread","payload":{"threadId":7}}`))

	assert.True(t, h.InChannel(member, ThreadChannel(7)))
	assert.False(t, h.InChannel(outsider, ThreadChannel(7)))

	h.ToThread(7, ReadEvent{ThreadID: 7, UserID: 10})
	assert.Equal(t, EventRead, receive(t, member).Type)
	assertSilent(t, outsider)

	member.handleIncomingMessage([]byte(`{"type":"leaveThread","payload":{"threadId":7}}`))
	assert.False(t, h.InChannel(member, ThreadChannel(7)))
}

func TestTypingSkipsTheSender(t *testing.T) {
	h := startHub(t, testGateway)
	alice := connect(t, h, 1, 10)
	aliceTab := connect(t, h, 1, 10)
	bob := connect(t, h, 1, 11)
	carol := connect(t, h, 1, 12)

	for _, c := range []*Client{alice, aliceTab, bob} {
		require.True(t, h.JoinThread(context.Background(), c, 3))
	}

	alice.handleIncomingMessage([]byte(`{"type":"typing","payload":{"threadId":3,"isTyping":true}}`))

	f := receive(t, bob)
	assert.Equal(t, EventTyping, f.Type)
	var ev TypingEvent
	require.NoError(t, json.Unmarshal(f.Payload, &ev))
	assert.Equal(t, TypingEvent{ThreadID: 3, UserID: 10, Username: "user", IsTyping: true}, ev)

	assertSilent(t, alice)
	assertSilent(t, aliceTab)
	assertSilent(t, carol)

	// not joined to the thread
	carol.handleIncomingMessage([]byte(`{"type":"typing","payload":{"threadId":3,"isTyping":true}}`))
	assertSilent(t, bob)
}

func TestTypingIsRateLimited(t *testing.T) {
	cfg := testGateway
	cfg.TypingRate = 0.001
	cfg.TypingBurst = 2
	h := startHub(t, cfg)
	alice := connect(t, h, 1, 10)
	bob := connect(t, h, 1, 11)
	require.True(t, h.JoinThread(context.Background(), alice, 3))
	require.True(t, h.JoinThread(context.Background(), bob, 3))

	for i := 0; i < 5; i++ {
		alice.handleIncomingMessage([]byte(`{"type":"typing","payload":{"threadId":3,"isTyping":true}}`))
	}

	receive(t, bob)
	receive(t, bob)
	assertSilent(t, bob)
}

func TestMalformedSignalsAreIgnored(t *testing.T) {
	h := startHub(t, testGateway)
	c := connect(t, h, 1, 10)

	for _, raw := range []string{
		`not json`,
		`{"type":"joinThread","payload":"7"}`,
		`{"type":"joinThread","payload":{"threadId":-1}}`,
		`{"type":"selfDestruct","payload":{}}`,
	} {
		c.handleIncomingMessage([]byte(raw))
	}
	assert.False(t, h.InChannel(c, ThreadChannel(7)))
}

func TestSlowSessionIsDropped(t *testing.T) {
	cfg := testGateway
	cfg.SendBuffer = 1
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	h := startHub(t, cfg, WithMetrics(metrics))
	slow := connect(t, h, 1, 10)

	h.ToUsers([]int64{10}, ReadEvent{ThreadID: 1})
	h.ToUsers([]int64{10}, ReadEvent{ThreadID: 2})

	require.Eventually(t, func() bool { return h.Stats().Sessions == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Dropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Events.WithLabelValues(string(EventRead))))

	// the buffered frame is still flushed before the close
	_, ok := <-slow.Send
	assert.True(t, ok)
	_, ok = <-slow.Send
	assert.False(t, ok)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := startHub(t, testGateway)
	c := connect(t, h, 1, 10)

	h.Unregister(c)
	h.Unregister(c)
	require.Eventually(t, func() bool { return h.Stats().Sessions == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, listeners(h, UserChannel(10)))
	assert.False(t, h.JoinThread(context.Background(), c, 1), "closed sessions cannot join")
}

func TestShutdownClosesSessions(t *testing.T) {
	h := NewHub(testGateway)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := connect(t, h, 1, 10)
	cancel()
	<-stopped

	_, ok := <-c.Send
	assert.False(t, ok)

	// late calls return instead of blocking
	h.Register(NewClient(nil, h, 1, 11, "late"))
	h.Unregister(c)
}

func listeners(h *Hub, channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}
