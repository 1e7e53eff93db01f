package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marketgrid/marketgrid-backend/pkg/enums"
)

// OutboxEvent is an append-only record emitted inside the transaction that
// produced it. A publisher drains unpublished rows to Pub/Sub. The same table
// shape exists in the platform database and in every tenant database.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}
