package mqtt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// DeadLetterTopic is where messages land after exhausting ingestion retries
const DeadLetterTopic = "fleetwatch/deadletter"

// DeadLetterPayload captures enough context to replay or inspect a failed
// broker message.
type DeadLetterPayload struct {
	Topic         string    `json:"topic"`
	Timestamp     time.Time `json:"timestamp"`
	PayloadBase64 string    `json:"payload_base64"`
	Error         string    `json:"error"`
	Consumer      string    `json:"consumer"`
	Attempts      int       `json:"attempts"`
}

// EncodeDeadLetter serializes a failed message into a dead-letter-safe payload
func EncodeDeadLetter(topic string, payload []byte, cause error, consumer string, attempts int) ([]byte, error) {
	dl := DeadLetterPayload{
		Topic:         topic,
		Timestamp:     time.Now().UTC(),
		PayloadBase64: base64.StdEncoding.EncodeToString(payload),
		Consumer:      consumer,
		Attempts:      attempts,
	}
	if cause != nil {
		dl.Error = cause.Error()
	}

	b, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("marshal dead-letter payload: %w", err)
	}
	return b, nil
}
