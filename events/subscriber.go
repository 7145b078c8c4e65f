package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/nats-io/nats.go"
)

// Refresher reloads live views after a change made elsewhere
type Refresher interface {
	Refresh(ctx context.Context)
}

// ChangeSubscriber refreshes local subscribers when another instance writes a request
type ChangeSubscriber struct {
	origin    string
	refresher Refresher
	sub       *nats.Subscription
}

// NewChangeSubscriber listens for request changes not published by origin
func NewChangeSubscriber(conn *nats.Conn, origin string, refresher Refresher) (*ChangeSubscriber, error) {
	s := &ChangeSubscriber{origin: origin, refresher: refresher}

	sub, err := conn.Subscribe(SubjectRequestChanged, s.handle)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", SubjectRequestChanged, err)
	}
	s.sub = sub

	logger.Info("Listening for request changes", map[string]interface{}{"subject": SubjectRequestChanged})
	return s, nil
}

func (s *ChangeSubscriber) handle(msg *nats.Msg) {
	var event RequestChangedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		logger.WithError(err, "events").Warn("Failed to decode request change event")
		return
	}
	if event.Origin == s.origin {
		return
	}

	logger.Debug("Request changed on another instance", map[string]interface{}{
		"origin":     event.Origin,
		"request_id": event.RequestID,
	})
	s.refresher.Refresh(context.Background())
}

// Close stops listening
func (s *ChangeSubscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}
