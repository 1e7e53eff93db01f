package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/marketgrid/marketgrid-backend/pkg/db/models"
	"github.com/marketgrid/marketgrid-backend/pkg/enums"
	"github.com/marketgrid/marketgrid-backend/pkg/logger"
	"github.com/marketgrid/marketgrid-backend/pkg/outbox"
)

// Notification is the message shape the notification workers consume.
type Notification struct {
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Tenant     string          `json:"tenant,omitempty"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// Service fans selected domain events out as human-facing notifications.
type Service struct {
	publisher messagePublisher
	logg      *logger.Logger
}

// NewService builds the notification fan-out.
func NewService(publisher messagePublisher, logg *logger.Logger) (*Service, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notification publisher required")
	}
	return &Service{publisher: publisher, logg: logg}, nil
}

var notificationTitles = map[enums.OutboxEventType][2]string{
	enums.EventMarketplaceProvisioned: {"Marketplace ready", "Your marketplace database has been provisioned."},
	enums.EventMarketplaceSuspended:   {"Marketplace suspended", "Your marketplace has been suspended by an operator."},
	enums.EventOrderPlaced:            {"New order", "A new order has been placed."},
	enums.EventOrderPaid:              {"Order paid", "A payment was confirmed for an order."},
	enums.EventOrderCanceled:          {"Order canceled", "An order was canceled and its stock restored."},
	enums.EventOrderFulfilled:         {"Order fulfilled", "Every item on an order has been delivered."},
	enums.EventOrderExpired:           {"Order expired", "An order expired before payment was received."},
	enums.EventKYCSubmitted:           {"Verification submitted", "An identity verification is waiting for review."},
	enums.EventKYCDecided:             {"Verification decided", "An identity verification has been reviewed."},
	enums.EventStockDepleted:          {"Out of stock", "A product variant just sold out."},
}

// Notifies reports whether the event type produces a notification.
func Notifies(eventType enums.OutboxEventType) bool {
	_, ok := notificationTitles[eventType]
	return ok
}

// Notify publishes the notification derived from an outbox row. Event types
// with no notification mapping are skipped without error.
func (s *Service) Notify(ctx context.Context, event models.OutboxEvent) error {
	titles, ok := notificationTitles[event.EventType]
	if !ok {
		return nil
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}

	notification := Notification{
		Type:       string(event.EventType),
		Title:      titles[0],
		Body:       titles[1],
		Tenant:     envelope.Tenant,
		EventID:    envelope.EventID,
		OccurredAt: envelope.OccurredAt,
		Data:       envelope.Data,
	}
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"type":   string(event.EventType),
			"tenant": envelope.Tenant,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.EventType)), "notification published")
	}
	return nil
}
