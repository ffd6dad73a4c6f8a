package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Input errors
	ErrValidation = errors.New("validation failed")

	// Lookup errors
	ErrLotNotFound = errors.New("lot not found")
	ErrBidNotFound = errors.New("bid not found")
	ErrLotExists   = errors.New("lot already exists")

	// Authorization errors
	ErrNotAuthorized = errors.New("caller is not authorized")

	// State errors
	ErrStateConflict      = errors.New("state conflict")
	ErrVersionConflict    = errors.New("version conflict")
	ErrInsufficientAmount = errors.New("insufficient available amount")
	ErrAlreadyRetired     = errors.New("lot is retired")
	ErrExpired            = errors.New("lot is expired")
	ErrAlreadyVerified    = errors.New("lot is already verified")
	ErrNotVerified        = errors.New("lot is not verified")
	ErrNotListed          = errors.New("lot is not listed")
)

// Invariant names attached to LedgerError so callers can tell which rule was violated.
const (
	InvariantAvailableAmount   = "available-amount"
	InvariantSingleOwner       = "single-owner"
	InvariantConservation      = "conservation"
	InvariantRetirementFinal   = "retirement-terminal"
	InvariantValidity          = "validity-window"
	InvariantAppendOnlyHistory = "append-only-history"
	InvariantVersion           = "optimistic-version"
	InvariantVerification      = "verification-workflow"
	InvariantListing           = "listing"
	InvariantBid               = "bid-lifecycle"
	InvariantInput             = "input"
)

// LedgerError carries the failing lot/bid and the violated rule alongside the
// sentinel kind. errors.Is matches both Kind and Cause.
type LedgerError struct {
	Kind      error
	LotID     string
	BidID     string
	Invariant string
	Detail    string
	Cause     error
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	if e.LotID != "" {
		b.WriteString("lot ")
		b.WriteString(e.LotID)
		if e.BidID != "" {
			b.WriteString(" bid ")
			b.WriteString(e.BidID)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Invariant != "" {
		b.WriteString(" [")
		b.WriteString(e.Invariant)
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LedgerError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// LotError builds a LedgerError for lotID.
func LotError(kind error, lotID, invariant, format string, args ...any) *LedgerError {
	return &LedgerError{
		Kind:      kind,
		LotID:     lotID,
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// BidError builds a LedgerError for a bid on lotID.
func BidError(kind error, lotID, bidID, invariant, format string, args ...any) *LedgerError {
	return &LedgerError{
		Kind:      kind,
		LotID:     lotID,
		BidID:     bidID,
		Invariant: invariant,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// WithCause attaches an underlying error.
func (e *LedgerError) WithCause(cause error) *LedgerError {
	e.Cause = cause
	return e
}

// AsLedgerError extracts the LedgerError from err, if any.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ErrorKind returns the sentinel kind of err, or nil when err is not a ledger error.
func ErrorKind(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrLotNotFound, ErrBidNotFound, ErrLotExists, ErrInsufficientAmount,
		ErrNotAuthorized, ErrAlreadyRetired, ErrExpired, ErrAlreadyVerified, ErrNotVerified,
		ErrNotListed, ErrStateConflict, ErrVersionConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
