package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/types"
)

type recordingHandler struct {
	mu       sync.Mutex
	requests []events.Request
}

func (r *recordingHandler) HandleCommand(_ context.Context, req events.Request) *events.Message {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if req.Name() != "status" {
		return events.NewError("Unknown command: "+req.Name(), time.Now())
	}
	return events.NewStatusResponse(events.StatusData{Provider: "fake"}, time.Now())
}

func (r *recordingHandler) Requests() []events.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Request(nil), r.requests...)
}

// slowHandler answers curate after delay and everything else at once
type slowHandler struct {
	delay   time.Duration
	release chan struct{}
}

func (s *slowHandler) HandleCommand(_ context.Context, req events.Request) *events.Message {
	if req.Name() != "curate" {
		return events.NewStatusResponse(events.StatusData{Provider: "fake"}, time.Now())
	}
	if s.release != nil {
		<-s.release
	} else {
		time.Sleep(s.delay)
	}
	return events.NewCurateResponse("sunset", nil, time.Now())
}

func startHub(t *testing.T, handler CommandHandler) (*Hub, *httptest.Server) {
	return startHubWithPongWait(t, handler, defaultPongWait)
}

func startHubWithPongWait(t *testing.T, handler CommandHandler, pongWait time.Duration) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(handler, logging.Nop())
	hub.pongWait = pongWait
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer("", hub).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, srv := startHub(t, nil)
	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Broadcast(events.NewCurated([]*types.CuratedItem{{ID: "x", Chain: types.ChainOrdinals}}, time.Now()))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, "curated", msg["type"])
		assert.Equal(t, float64(1), msg["count"])
	}
}

func TestHub_CommandsAnsweredOnSameConnection(t *testing.T) {
	handler := &recordingHandler{}
	hub, srv := startHub(t, handler)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(events.Request{Command: "status", RequesterID: "peer-key"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "response", msg["type"])
	assert.Equal(t, "status", msg["command"])

	require.NoError(t, conn.WriteJSON(events.Request{Command: "rate", Args: map[string]any{"id": "x"}}))
	msg = readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])

	reqs := handler.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "peer-key", reqs[0].RequesterID)
	assert.Equal(t, "127.0.0.1", reqs[1].RequesterID, "falls back to the remote host")
}

func TestHub_MalformedRequest(t *testing.T) {
	_, srv := startHub(t, &recordingHandler{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Malformed request.", msg["error"])
}

func TestHub_NoHandler(t *testing.T) {
	_, srv := startHub(t, nil)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(events.Request{Command: "status"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, srv := startHub(t, nil)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	// hub loop not running: the queue fills and extra messages are dropped
	hub := NewHub(nil, logging.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+10; i++ {
			hub.Broadcast(events.NewError("x", time.Now()))
		}
		hub.Broadcast(nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked")
	}
	assert.Len(t, hub.broadcast, broadcastBuffer)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logging.Nop())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	srv := httptest.NewServer(NewServer("", hub).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server closed the connection")
}

func TestServer_Healthz(t *testing.T) {
	_, srv := startHub(t, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["clients"])
}

func TestNewClient_RemoteHost(t *testing.T) {
	hub := NewHub(nil, logging.Nop())
	assert.Equal(t, "10.0.0.7", NewClient(hub, nil, "10.0.0.7:5555").remoteHost)
	assert.Equal(t, "::1", NewClient(hub, nil, "[::1]:5555").remoteHost)
	assert.Equal(t, "pipe", NewClient(hub, nil, "pipe").remoteHost)
}

func TestHub_SlowCommandOutlivesPongWait(t *testing.T) {
	pongWait := 300 * time.Millisecond
	hub, srv := startHubWithPongWait(t, &slowHandler{delay: 3 * pongWait}, pongWait)
	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(events.Request{Command: "curate", Args: map[string]any{"theme": "sunset"}}))
	require.NoError(t, conn.WriteJSON(events.Request{Command: "status"}))

	// status is answered while curate is still running
	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg["command"])

	msg = readMessage(t, conn)
	assert.Equal(t, "response", msg["type"])
	assert.Equal(t, "curate", msg["command"])
	assert.Equal(t, "sunset", msg["theme"])
	assert.Equal(t, 1, hub.ClientCount(), "connection survives the slow command")
}

func TestHub_TooManyPendingCommands(t *testing.T) {
	handler := &slowHandler{release: make(chan struct{})}
	_, srv := startHub(t, handler)
	conn := dial(t, srv)

	for i := 0; i < maxPendingCommands+1; i++ {
		require.NoError(t, conn.WriteJSON(events.Request{Command: "curate", Args: map[string]any{"theme": "sunset"}}))
	}
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Too many pending requests.", msg["error"])

	close(handler.release)
	for i := 0; i < maxPendingCommands; i++ {
		msg := readMessage(t, conn)
		assert.Equal(t, "curate", msg["command"])
	}
}

func TestClient_ReplyAfterDisconnect(t *testing.T) {
	hub := NewHub(nil, logging.Nop())
	client := NewClient(hub, nil, "10.0.0.7:5555")

	for i := 0; i < sendBuffer+1; i++ {
		client.reply(events.NewError("x", time.Now()))
	}
	assert.Len(t, client.send, sendBuffer, "full buffer drops instead of blocking")

	client.disconnect()
	client.disconnect()
	<-client.send
	client.reply(events.NewError("late", time.Now()))
	assert.Len(t, client.send, sendBuffer-1, "replies to a dropped client are discarded")
}
