package enums

import "fmt"

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateMarketplace OutboxAggregateType = "marketplace"
	AggregateOrder       OutboxAggregateType = "order"
	AggregateKYCRecord   OutboxAggregateType = "kyc_record"
	AggregateProduct     OutboxAggregateType = "product"
	AggregateCart        OutboxAggregateType = "cart"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMarketplace,
	AggregateOrder,
	AggregateKYCRecord,
	AggregateProduct,
	AggregateCart,
}

// IsValid reports whether the value is a known OutboxAggregateType.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType identifies the domain event recorded in the outbox.
type OutboxEventType string

const (
	EventMarketplaceProvisioned OutboxEventType = "marketplace_provisioned"
	EventMarketplaceSuspended   OutboxEventType = "marketplace_suspended"
	EventOrderPlaced            OutboxEventType = "order_placed"
	EventOrderPaid              OutboxEventType = "order_paid"
	EventOrderCanceled          OutboxEventType = "order_canceled"
	EventOrderFulfilled         OutboxEventType = "order_fulfilled"
	EventOrderExpired           OutboxEventType = "order_expired"
	EventKYCSubmitted           OutboxEventType = "kyc_submitted"
	EventKYCDecided             OutboxEventType = "kyc_decided"
	EventStockDepleted          OutboxEventType = "stock_depleted"
	EventCartConverted          OutboxEventType = "cart_converted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMarketplaceProvisioned,
	EventMarketplaceSuspended,
	EventOrderPlaced,
	EventOrderPaid,
	EventOrderCanceled,
	EventOrderFulfilled,
	EventOrderExpired,
	EventKYCSubmitted,
	EventKYCDecided,
	EventStockDepleted,
	EventCartConverted,
}

// IsValid reports whether the value is a known OutboxEventType.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
