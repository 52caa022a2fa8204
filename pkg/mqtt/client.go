package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"fleetwatch/pkg/logging"
)

// MessageHandler processes a single inbound broker message
type MessageHandler func(topic string, payload []byte)

// Config holds broker connection configuration
type Config struct {
	BrokerURL         string
	ClientID          string
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
}

// DefaultConfig returns default broker configuration
func DefaultConfig(brokerURL, clientID string) Config {
	return Config{
		BrokerURL:         brokerURL,
		ClientID:          clientID,
		ConnectTimeout:    30 * time.Second,
		ReconnectInterval: time.Second,
	}
}

// Client wraps the paho MQTT client. It is an explicitly owned connection
// object: the process root creates it, hands it to the ingestion adapter,
// and controls its lifecycle.
type Client struct {
	client paho.Client
	logger logging.Logger

	mu            sync.RWMutex
	subscriptions map[string]MessageHandler
}

// NewClient creates a broker client. Reconnects are automatic with a fixed
// interval; registered subscriptions are re-established on every reconnect.
func NewClient(cfg Config, logger logging.Logger) *Client {
	c := &Client{
		logger:        logger,
		subscriptions: make(map[string]MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(cfg.ReconnectInterval)

	opts.SetOnConnectHandler(func(pc paho.Client) {
		logger.Info("Connected to MQTT broker")
		c.resubscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	c.client = paho.NewClient(opts)
	return c
}

// Connect establishes the broker connection
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter. The subscription is
// replayed after every reconnect.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[filter] = handler
	c.mu.Unlock()

	token := c.client.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}

	c.logger.WithField("filter", filter).Info("Subscribed to broker topic")
	return nil
}

// Publish sends a message to a topic, fire-and-forget at QoS 0
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports broker connectivity
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect closes the broker connection, allowing in-flight work to finish
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for filter, handler := range c.subscriptions {
		h := handler
		token := pc.Subscribe(filter, 0, func(_ paho.Client, msg paho.Message) {
			h(msg.Topic(), msg.Payload())
		})
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.WithError(err).WithField("filter", filter).Error("Failed to resubscribe after reconnect")
		}
	}
}
