package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHistory(t *testing.T) (*History, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewHistory(rdb), mr
}

func testClient(h *Hub) *client {
	c := &client{hub: h, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func recvFrame(t *testing.T, c *client) envelope {
	t.Helper()
	select {
	case raw := <-c.send:
		var e envelope
		require.NoError(t, json.Unmarshal(raw, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return envelope{}
	}
}

func resData(id int64) map[string]any {
	return map[string]any{
		"reservation_id": id,
		"wa_id":          "966500000001",
		"gregorian_date": "2025-01-08",
		"time_slot_24h":  "11:00",
	}
}

func TestSuppressorDropsCancelRightAfterCreate(t *testing.T) {
	s := newSuppressor()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.True(t, s.Allow("created", resData(7)))
	now = now.Add(200 * time.Millisecond)
	assert.False(t, s.Allow("cancelled", resData(7)))

	// Outside the window the cancel is a real state change again.
	now = now.Add(2 * time.Second)
	assert.True(t, s.Allow("cancelled", resData(7)))
}

func TestSuppressorPriorities(t *testing.T) {
	s := newSuppressor()
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	assert.True(t, s.Allow("cancelled", resData(1)))
	now = now.Add(100 * time.Millisecond)
	// Higher priority always passes.
	assert.True(t, s.Allow("created", resData(1)))
	now = now.Add(100 * time.Millisecond)
	// Equal priority passes too.
	assert.True(t, s.Allow("reinstated", resData(1)))
	now = now.Add(100 * time.Millisecond)
	assert.False(t, s.Allow("updated", resData(1)))
}

func TestSuppressorKeyFallsBackToSlotTriple(t *testing.T) {
	s := newSuppressor()
	data := map[string]any{
		"wa_id":          "966500000001",
		"gregorian_date": "2025-01-08",
		"time_slot_24h":  "11:00",
	}
	assert.True(t, s.Allow("created", data))
	assert.False(t, s.Allow("cancelled", data))
	// Different reservation ids never collide.
	assert.True(t, s.Allow("created", resData(1)))
	assert.True(t, s.Allow("cancelled", resData(2)))
}

func TestBroadcastSuppressedEventLeavesNoTrace(t *testing.T) {
	history, mr := testHistory(t)
	h := NewHub(nil, history, nil, nil)
	c := testClient(h)

	h.Broadcast("created", resData(9), nil)
	h.Broadcast("cancelled", resData(9), nil)

	frame := recvFrame(t, c)
	assert.Equal(t, "created", frame.Type)
	select {
	case raw := <-c.send:
		t.Fatalf("suppressed event delivered: %s", raw)
	default:
	}

	rows, err := mr.List(historyKey)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], `"created"`)
}

func TestBroadcastTimestampIsUTCZulu(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)
	c := testClient(h)

	h.Broadcast("created", resData(3), nil)

	frame := recvFrame(t, c)
	assert.True(t, strings.HasSuffix(frame.Timestamp, "Z"))
	_, err := time.Parse("2006-01-02T15:04:05.000Z", frame.Timestamp)
	assert.NoError(t, err)
}

func TestBroadcastHonorsFilters(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)

	onlyCancels := testClient(h)
	onlyCancels.setFilter([]string{"cancelled"}, nil)
	oneCustomer := testClient(h)
	oneCustomer.setFilter(nil, []string{"966500000002"})
	everything := testClient(h)

	h.Broadcast("created", resData(5), []string{"966500000001"})

	assert.Equal(t, "created", recvFrame(t, everything).Type)
	assert.Empty(t, onlyCancels.send)
	assert.Empty(t, oneCustomer.send)

	data := resData(6)
	data["wa_id"] = "966500000002"
	h.Broadcast("cancelled", data, []string{"966500000002"})

	assert.Equal(t, "cancelled", recvFrame(t, onlyCancels).Type)
	assert.Equal(t, "cancelled", recvFrame(t, oneCustomer).Type)
	assert.Equal(t, "cancelled", recvFrame(t, everything).Type)
}

func TestMetricsUpdatedSkipsHistory(t *testing.T) {
	history, mr := testHistory(t)
	h := NewHub(nil, history, nil, nil)
	c := testClient(h)

	h.Broadcast("metrics_updated", map[string]any{"queue_length": 0}, nil)

	assert.Equal(t, "metrics_updated", recvFrame(t, c).Type)
	assert.False(t, mr.Exists(historyKey))
}

func TestHistoryTrimsToCap(t *testing.T) {
	history, mr := testHistory(t)
	ctx := context.Background()

	for i := 0; i < historyMax+5; i++ {
		require.NoError(t, history.Add(ctx, []byte(`{"type":"created"}`)))
	}

	rows, err := mr.List(historyKey)
	require.NoError(t, err)
	assert.Len(t, rows, historyMax)

	recent, err := history.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 10)
}

func TestSystemCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := NewSystemCache(rdb)
	ctx := context.Background()

	_, _, err := cache.Load(ctx)
	require.Error(t, err)

	require.NoError(t, cache.Store(ctx, 12.5, 1024))
	cpu, rss, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12.5, cpu)
	assert.Equal(t, float64(1024), rss)
}

func TestHandleClientMessagePingAndFilter(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)
	c := testClient(h)
	ctx := context.Background()

	h.handleClientMessage(ctx, c, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", recvFrame(t, c).Type)

	h.handleClientMessage(ctx, c, []byte(`{"type":"set_filter","data":{"update_types":["created"],"entity_ids":["966500000001"]}}`))
	assert.Equal(t, "set_filter_ack", recvFrame(t, c).Type)
	assert.True(t, c.accepts("created", []string{"966500000001"}))
	assert.False(t, c.accepts("cancelled", []string{"966500000001"}))

	h.handleClientMessage(ctx, c, []byte(`{"type":"time_travel"}`))
	frame := recvFrame(t, c)
	assert.Equal(t, "time_travel_nack", frame.Type)

	h.handleClientMessage(ctx, c, []byte(`not json`))
	assert.Equal(t, "error", recvFrame(t, c).Type)
}

func TestTabTakeoverClosesPreviousSocket(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?tab=tab-1"
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = first.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	// The replacement socket still receives broadcasts.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)
	h.Broadcast("created", resData(11), nil)
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"created"`)
}

func TestServeWSAcceptsLegacyTabParam(t *testing.T) {
	h := NewHub(nil, nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"?tab_id=tab-9", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		_, ok := h.byTab["tab-9"]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

// liveBackend fails any operation whose context is already dead, the way a
// real pgx or redis call would.
type liveBackend struct{}

func (liveBackend) Snapshot(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"reservations": []any{}}, nil
}

func (liveBackend) Document(context.Context, string) (map[string]any, error) { return nil, nil }
func (liveBackend) Customer(context.Context, string) (map[string]any, error) { return nil, nil }
func (liveBackend) ModifyReservation(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (liveBackend) CancelReservation(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (liveBackend) SendSecretaryMessage(context.Context, string, string) error { return nil }
func (liveBackend) UpdateVacation(context.Context, map[string]any) (map[string]any, error) {
	return nil, nil
}
func (liveBackend) LatestMetrics(context.Context) map[string]any { return map[string]any{} }

func TestSnapshotSucceedsAfterUpgradeHandlerReturns(t *testing.T) {
	h := NewHub(liveBackend{}, nil, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// The upgrade handler has long returned by the time a browser asks for
	// its first snapshot; its request context must not govern the call.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"get_snapshot"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame envelope
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "get_snapshot_ack", frame.Type)
	assert.Empty(t, frame.Error)
}
