package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateParticipantID(t *testing.T) {
	t.Parallel()

	t.Run("valid id", func(t *testing.T) {
		if err := ValidateParticipantID("owner", "acme-corp_01@registry"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty id rejected", func(t *testing.T) {
		if err := ValidateParticipantID("owner", "   "); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("id too long", func(t *testing.T) {
		err := ValidateParticipantID("owner", strings.Repeat("a", MaxParticipantIDLength+1))
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("forbidden characters", func(t *testing.T) {
		if err := ValidateParticipantID("owner", "a; DROP TABLE credit_lots"); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	if err := ValidateAmount(decimal.NewFromFloat(100.25)); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	for _, amount := range []string{"0", "-1", "0.0001", "1000000000001"} {
		if err := ValidateAmount(decimal.RequireFromString(amount)); !errors.Is(err, ErrValidation) {
			t.Errorf("amount %s: expected ErrValidation, got %v", amount, err)
		}
	}
}

func TestValidatePrice(t *testing.T) {
	t.Parallel()

	if err := ValidatePrice("price", decimal.NewFromInt(28)); err != nil {
		t.Fatalf("expected valid price, got %v", err)
	}
	if err := ValidatePrice("price", decimal.Zero); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidateVintage(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := ValidateVintage(2024, now); err != nil {
		t.Fatalf("expected valid vintage, got %v", err)
	}
	if err := ValidateVintage(2026, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("future vintage: expected ErrValidation, got %v", err)
	}
	if err := ValidateVintage(1900, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("ancient vintage: expected ErrValidation, got %v", err)
	}
}

func TestValidateValidityWindow(t *testing.T) {
	t.Parallel()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := ValidateValidityWindow(from, from.AddDate(1, 0, 0)); err != nil {
		t.Fatalf("expected valid window, got %v", err)
	}
	if err := ValidateValidityWindow(from, from); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty window: expected ErrValidation, got %v", err)
	}
	if err := ValidateValidityWindow(from, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing end: expected ErrValidation, got %v", err)
	}
}

func TestParseEnums(t *testing.T) {
	t.Parallel()

	if m, err := ParseMethodology("Direct-Air-Capture"); err != nil || m != MethodologyDirectAirCapture {
		t.Fatalf("expected direct_air_capture, got %q %v", m, err)
	}
	if _, err := ParseMethodology("perpetual motion"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if s, err := ParseStandard("Gold Standard"); err != nil || s != StandardGoldStandard {
		t.Fatalf("expected gold_standard, got %q %v", s, err)
	}
	if typ, err := ParseTransferType(""); err != nil || typ != TransferTypeTransfer {
		t.Fatalf("expected default transfer type, got %q %v", typ, err)
	}
	if _, err := ParseTransferType("retirement"); !errors.Is(err, ErrValidation) {
		t.Fatalf("retirement is not a transfer type callers may pick, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset, err := ValidatePagination(0, -5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != 50 || offset != 0 {
		t.Fatalf("expected defaults (50,0), got (%d,%d)", limit, offset)
	}

	limit, _, _ = ValidatePagination(5000, 0)
	if limit != 1000 {
		t.Fatalf("expected limit capped at 1000, got %d", limit)
	}
}

func TestLedgerError(t *testing.T) {
	t.Parallel()

	err := LotError(ErrInsufficientAmount, "CC-2024-000001", InvariantAvailableAmount, "requested %s", "50").
		WithCause(ErrNotAuthorized)

	if !errors.Is(err, ErrInsufficientAmount) || !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected both kinds to match, got %v", err)
	}
	if ErrorKind(err) != ErrInsufficientAmount {
		t.Fatalf("expected kind ErrInsufficientAmount, got %v", ErrorKind(err))
	}
	msg := err.Error()
	for _, want := range []string{"CC-2024-000001", "insufficient", InvariantAvailableAmount} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
