package domain

import "time"

// Event types
const (
	EventTypeCreditIssued        = "credit.issued"
	EventTypeVerificationChanged = "credit.verification_changed"
	EventTypeCreditTransferred   = "credit.transferred"
	EventTypeLotListed           = "market.listed"
	EventTypeLotDelisted         = "market.delisted"
	EventTypeBidPlaced           = "market.bid_placed"
	EventTypeBidAccepted         = "market.bid_accepted"
	EventTypeBidRejected         = "market.bid_rejected"
	EventTypeBidWithdrawn        = "market.bid_withdrawn"
	EventTypeCreditRetired       = "credit.retired"
	EventTypeLotExpired          = "credit.expired"
)

// Aggregate types
const (
	AggregateTypeLot = "credit_lot"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// NewLotEvent builds an unpublished event for lotID.
func NewLotEvent(id, lotID, eventType string, payload map[string]any, now time.Time) *OutboxEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["lot_id"] = lotID
	payload["event_at"] = now.Format(time.RFC3339Nano)
	return &OutboxEvent{
		ID:            id,
		AggregateID:   lotID,
		AggregateType: AggregateTypeLot,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}
}

// TransferPayload is the notification body for CreditTransferred and BidAccepted.
func TransferPayload(rec TransferRecord) map[string]any {
	p := map[string]any{
		"transaction_id": rec.TransactionID,
		"from":           rec.From,
		"to":             rec.To,
		"amount":         rec.Amount.String(),
		"type":           string(rec.Type),
	}
	if rec.Price != nil {
		p["price"] = rec.Price.String()
	}
	if rec.ChildLotID != "" {
		p["child_lot_id"] = rec.ChildLotID
	}
	if rec.BidID != "" {
		p["bid_id"] = rec.BidID
	}
	return p
}
