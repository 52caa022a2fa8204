// Package dashboard is a Go client for the fleet API. It keeps a live local
// projection of the dashboard: a REST snapshot seeds the state, WebSocket
// pushes patch it incrementally, and a periodic resync re-pulls the snapshot
// to reconcile anything missed while disconnected.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

// Message types pushed by the server
const (
	TypeNewEvent        = "new-event"
	TypeDeviceStatus    = "device-status"
	TypeAnalyticsUpdate = "analytics-update"
)

// Message is the push envelope
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// DeviceStatusData is the payload of a device-status message
type DeviceStatusData struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

type dashboardResponse struct {
	Stats    models.DashboardStats `json:"stats"`
	Degraded bool                  `json:"degraded"`
}

type hourlyResponse struct {
	Counts   []models.HourlyCount `json:"counts"`
	Degraded bool                 `json:"degraded"`
}

// Config represents the configuration for the dashboard client
type Config struct {
	BaseURL        string
	Token          string
	Logger         logging.Logger
	ResyncInterval time.Duration
	HourlyLookback int
	HTTPClient     *http.Client
}

// Client maintains the live dashboard projection
type Client struct {
	baseURL        string
	token          string
	logger         logging.Logger
	httpClient     *http.Client
	resyncInterval time.Duration
	hourlyLookback int

	state *State

	mutex     sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewClient creates a dashboard client. Start must be called to connect.
func NewClient(config Config) *Client {
	if config.ResyncInterval == 0 {
		config.ResyncInterval = 60 * time.Second
	}
	if config.HourlyLookback == 0 {
		config.HourlyLookback = 24
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		baseURL:        config.BaseURL,
		token:          config.Token,
		logger:         config.Logger,
		httpClient:     config.HTTPClient,
		resyncInterval: config.ResyncInterval,
		hourlyLookback: config.HourlyLookback,
		state:          NewState(),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}, 1),
	}
}

// State returns the live projection
func (c *Client) State() *State {
	return c.state
}

// Start fetches the initial snapshot, connects the push channel, and starts
// the resync loop. It returns once the initial state is in place.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Resync(ctx); err != nil {
		return fmt.Errorf("initial snapshot fetch failed: %w", err)
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	go c.readPump()
	go c.resyncLoop()
	return nil
}

// Resync re-pulls the full snapshot and replaces the local projection
func (c *Client) Resync(ctx context.Context) error {
	var (
		dashboard dashboardResponse
		devices   []models.Device
		hourly    hourlyResponse
	)

	if err := c.getJSON(ctx, "/api/analytics/dashboard", &dashboard); err != nil {
		return fmt.Errorf("fetching dashboard snapshot: %w", err)
	}
	if err := c.getJSON(ctx, "/api/devices", &devices); err != nil {
		return fmt.Errorf("fetching devices: %w", err)
	}
	hourlyPath := fmt.Sprintf("/api/analytics/hourly?hours=%d", c.hourlyLookback)
	if err := c.getJSON(ctx, hourlyPath, &hourly); err != nil {
		return fmt.Errorf("fetching hourly stats: %w", err)
	}

	c.state.Replace(dashboard.Stats, devices, hourly.Counts)

	if dashboard.Degraded || hourly.Degraded {
		c.logger.Warn("Server reported a degraded snapshot")
	}
	return nil
}

// IsConnected reports whether the push channel is up
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.connected
}

// Close shuts down the push channel and the resync loop
func (c *Client) Close() error {
	c.mutex.Lock()
	select {
	case <-c.stopChan:
		c.mutex.Unlock()
		return nil
	default:
	}
	close(c.stopChan)

	wasConnected := c.connected
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connected = false
	c.mutex.Unlock()

	if wasConnected {
		<-c.doneChan
	}
	c.logger.Info("Disconnected from fleet API")
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.connected {
		return fmt.Errorf("client is already connected")
	}

	wsURL, err := c.buildWebSocketURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to WebSocket (status: %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to fleet API WebSocket")
	return nil
}

// buildWebSocketURL converts the base URL to ws/wss and appends the token as
// a query parameter, since browsers cannot set headers on upgrades and the
// server accepts either.
func (c *Client) buildWebSocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}

	wsURL := &url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     "/ws",
		RawQuery: url.Values{"token": {c.token}}.Encode(),
	}
	return wsURL.String(), nil
}

func (c *Client) readPump() {
	defer func() {
		c.mutex.Lock()
		c.connected = false
		if c.conn != nil {
			c.conn.Close()
		}
		c.mutex.Unlock()

		select {
		case c.doneChan <- struct{}{}:
		default:
		}
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("WebSocket read error")
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message Message) {
	switch message.Type {
	case TypeNewEvent:
		var event models.Event
		if err := json.Unmarshal(message.Data, &event); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed new-event push")
			return
		}
		c.state.ApplyEvent(event)

	case TypeDeviceStatus:
		var status DeviceStatusData
		if err := json.Unmarshal(message.Data, &status); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed device-status push")
			return
		}
		c.state.ApplyDeviceStatus(status.DeviceID, status.Status)

	case TypeAnalyticsUpdate:
		var stats models.DashboardStats
		if err := json.Unmarshal(message.Data, &stats); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed analytics-update push")
			return
		}
		c.state.Replace(stats, c.state.Devices(), c.state.Hourly())

	default:
		c.logger.WithField("type", message.Type).Debug("Ignoring unknown push message")
	}
}

func (c *Client) resyncLoop() {
	ticker := time.NewTicker(c.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if err := c.Resync(ctx); err != nil {
				c.logger.WithError(err).Warn("Periodic resync failed")
			}
			cancel()
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
