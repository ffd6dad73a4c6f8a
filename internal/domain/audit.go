package domain

import (
	"encoding/json"
	"time"
)

// AuditLog represents an audit trail entry for compliance and debugging
type AuditLog struct {
	ID           string
	UserID       string // Who performed the action
	Action       string // What action (lot.issue, lot.transfer, etc.)
	ResourceType string // Type of resource (credit_lot)
	ResourceID   string // ID of the resource
	RequestID    string // Request ID for tracing
	BeforeState  JSON   // State before the action
	AfterState   JSON   // State after the action
	Status       string // success, failure
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionLotIssue    AuditAction = "lot.issue"
	AuditActionLotVerify   AuditAction = "lot.verify"
	AuditActionLotReject   AuditAction = "lot.reject"
	AuditActionLotExpire   AuditAction = "lot.expire"
	AuditActionLotTransfer AuditAction = "lot.transfer"
	AuditActionLotRetire   AuditAction = "lot.retire"
	AuditActionLotSettle   AuditAction = "lot.settle"

	AuditActionMarketList   AuditAction = "market.list"
	AuditActionMarketDelist AuditAction = "market.delist"
	AuditActionBidPlace     AuditAction = "bid.place"
	AuditActionBidAccept    AuditAction = "bid.accept"
	AuditActionBidReject    AuditAction = "bid.reject"
	AuditActionBidWithdraw  AuditAction = "bid.withdraw"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
