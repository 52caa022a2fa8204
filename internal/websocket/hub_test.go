package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub(logging.NewLogger(), nil)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d clients", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastEvent_ReachesAllClients(t *testing.T) {
	hub, srv := startHub(t)

	first := dial(t, srv)
	second := dial(t, srv)
	waitForClients(t, hub, 2)

	hub.BroadcastEvent(&models.Event{
		ID:         "evt-1",
		DeviceID:   "jetson-001",
		ObjectType: "person",
		EventType:  "entry",
		Count:      2,
	})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, TypeNewEvent, msg.Type)

		data := msg.Data.(map[string]interface{})
		assert.Equal(t, "jetson-001", data["device_id"])
		assert.Equal(t, float64(2), data["count"])
	}
}

func TestBroadcastDeviceStatus(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.BroadcastDeviceStatus("jetson-001", "error")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeDeviceStatus, msg.Type)

	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "jetson-001", data["device_id"])
	assert.Equal(t, "error", data["status"])
}

func TestBroadcastAnalytics(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.BroadcastAnalytics(map[string]int{"total_events": 7})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeAnalyticsUpdate, msg.Type)

	data := msg.Data.(map[string]interface{})
	assert.Equal(t, float64(7), data["total_events"])
}

func TestJoinRoom_Acknowledged(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "join-room", "room": "dashboard"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ack map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &ack))
	assert.Equal(t, "room-joined", ack["type"])
	assert.Equal(t, "dashboard", ack["room"])
}

func TestSendJSON_FullBufferLeavesChannelOpen(t *testing.T) {
	// Zero-capacity send channel with no reader: the reply cannot be
	// delivered and must be dropped without closing the channel, which
	// belongs to the hub loop.
	c := &Client{send: make(chan []byte), logger: logging.NewLogger()}

	c.sendJSON(map[string]interface{}{"type": "room-joined", "room": "dashboard"})

	select {
	case _, ok := <-c.send:
		assert.True(t, ok, "send channel must remain open")
	default:
	}
}

func TestDisconnect_RemovesClient(t *testing.T) {
	hub, srv := startHub(t)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
