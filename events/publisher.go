package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/nats-io/nats.go"
)

// SubjectRequestChanged carries every repair request write
const SubjectRequestChanged = "repairdesk.request.changed"

// RequestChangedEvent tells other instances that a request was written
type RequestChangedEvent struct {
	EventType string    `json:"event_type"`
	RequestID string    `json:"request_id"`
	Origin    string    `json:"origin"`
	At        time.Time `json:"at"`
}

// Connect opens a NATS connection that keeps reconnecting after drops
func Connect(natsURL string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("repairdesk-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NatsPublisher publishes request changes to NATS
type NatsPublisher struct {
	conn   *nats.Conn
	origin string
}

// NewNatsPublisher tags every event with origin so the sender can ignore its own events
func NewNatsPublisher(conn *nats.Conn, origin string) *NatsPublisher {
	return &NatsPublisher{conn: conn, origin: origin}
}

func (p *NatsPublisher) PublishRequestChanged(ctx context.Context, eventType, requestID string) error {
	payload, err := json.Marshal(RequestChangedEvent{
		EventType: eventType,
		RequestID: requestID,
		Origin:    p.origin,
		At:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.conn.Publish(SubjectRequestChanged, payload); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}

	logger.Debug("Published request change", map[string]interface{}{
		"subject":    SubjectRequestChanged,
		"event_type": eventType,
		"request_id": requestID,
	})
	return nil
}
