package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxParticipantIDLength = 128
	MaxReasonLength        = 1024
	MaxReportLength        = 8192
	MinVintageYear         = 1990
	MinAmount              = "0.001"         // one kilogram of CO2e
	MaxAmount              = "1000000000000" // 1 trillion tons
	MaxPrice               = "1000000000"
)

var participantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@-]*$`)

var (
	minAmount = decimal.RequireFromString(MinAmount)
	maxAmount = decimal.RequireFromString(MaxAmount)
	maxPrice  = decimal.RequireFromString(MaxPrice)
)

// ValidateParticipantID validates owner, bidder and verifier references.
func ValidateParticipantID(field, id string) error {
	id = strings.TrimSpace(id)

	if id == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}

	if len(id) > MaxParticipantIDLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, MaxParticipantIDLength)
	}

	if !participantIDRegex.MatchString(id) {
		return fmt.Errorf("%w: %s contains forbidden characters", ErrValidation, field)
	}

	return nil
}

// ValidateAmount validates a credit amount in tons of CO2e.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	if amount.LessThan(minAmount) {
		return fmt.Errorf("%w: minimum amount is %s", ErrValidation, MinAmount)
	}

	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum amount is %s", ErrValidation, MaxAmount)
	}

	return nil
}

// ValidatePrice validates a per-ton price.
func ValidatePrice(field string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", ErrValidation, field)
	}

	if price.GreaterThan(maxPrice) {
		return fmt.Errorf("%w: %s exceeds %s", ErrValidation, field, MaxPrice)
	}

	return nil
}

// ValidateVintage checks the vintage is not before MinVintageYear nor in the future.
func ValidateVintage(year int, now time.Time) error {
	if year < MinVintageYear || year > now.Year() {
		return fmt.Errorf("%w: vintage year %d outside %d-%d", ErrValidation, year, MinVintageYear, now.Year())
	}
	return nil
}

// ValidateValidityWindow checks validFrom < validUntil.
func ValidateValidityWindow(validFrom, validUntil time.Time) error {
	if validUntil.IsZero() {
		return fmt.Errorf("%w: valid_until is required", ErrValidation)
	}
	if !validFrom.IsZero() && !validFrom.Before(validUntil) {
		return fmt.Errorf("%w: valid_from must be before valid_until", ErrValidation)
	}
	return nil
}

// ValidateText bounds free-form text such as retirement reasons and reports.
func ValidateText(field, s string, maxLen int, required bool) error {
	if required && strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if len(s) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, maxLen)
	}
	return nil
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
