package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/carbonledger/internal/domain"
)

// VerifyInput carries a third-party verification outcome.
type VerifyInput struct {
	LotID  string
	Body   string
	Report string
	// Reverify must be set to refresh an already verified lot.
	Reverify bool
}

// ExpiryResult summarizes one expiry sweep.
type ExpiryResult struct {
	Scanned int
	Expired []string
	Failed  map[string]string
}

// VerificationUseCase drives the pending/verified/rejected/expired workflow.
type VerificationUseCase struct {
	w *lotWriter
}

// NewVerificationUseCase creates a new VerificationUseCase.
func NewVerificationUseCase(deps Dependencies, opts Options) *VerificationUseCase {
	return newVerificationUseCase(newLotWriter(deps, opts))
}

func newVerificationUseCase(w *lotWriter) *VerificationUseCase {
	return &VerificationUseCase{w: w}
}

// Verify moves a pending lot to verified, or refreshes a verified lot when
// Reverify is set. Verifying an already verified lot without it returns
// domain.ErrAlreadyVerified and changes nothing.
func (uc *VerificationUseCase) Verify(ctx context.Context, caller domain.Caller, input VerifyInput) (*domain.CreditLot, error) {
	if err := uc.checkVerifier(input.LotID, caller); err != nil {
		return nil, err
	}
	if err := domain.ValidateText("report", input.Report, domain.MaxReportLength, false); err != nil {
		return nil, validationError(input.LotID, err)
	}

	c, err := uc.w.update(ctx, "verify", caller, input.LotID, func(c *change) error {
		lot := c.lot
		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}

		switch lot.VerificationStatus {
		case domain.VerificationPending:
		case domain.VerificationVerified:
			if !input.Reverify {
				return domain.LotError(domain.ErrAlreadyVerified, lot.ID, domain.InvariantVerification,
					"pass reverify to refresh the verification")
			}
		default:
			return domain.LotError(domain.ErrStateConflict, lot.ID, domain.InvariantVerification,
				"cannot verify a %s lot", lot.VerificationStatus)
		}

		from := lot.VerificationStatus
		lot.RecordVerification(domain.VerificationVerified, caller.ID, input.Body, input.Report, "", c.now)
		due := c.now.Add(uc.w.opts.VerificationValidity)
		if due.After(lot.ValidUntil) {
			due = lot.ValidUntil
		}
		lot.NextVerificationDue = &due

		c.action = domain.AuditActionLotVerify
		c.anchorKind = domain.EventTypeVerificationChanged
		c.emit(domain.EventTypeVerificationChanged, map[string]any{
			"from":     string(from),
			"to":       string(domain.VerificationVerified),
			"verifier": caller.ID,
			"body":     input.Body,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.VerificationChanges.WithLabelValues(string(domain.VerificationVerified)).Inc()
	}
	return c.lot, nil
}

// Reject moves a pending lot to rejected.
func (uc *VerificationUseCase) Reject(ctx context.Context, caller domain.Caller, lotID, reason string) (*domain.CreditLot, error) {
	if err := uc.checkVerifier(lotID, caller); err != nil {
		return nil, err
	}
	if err := domain.ValidateText("reason", reason, domain.MaxReasonLength, true); err != nil {
		return nil, validationError(lotID, err)
	}

	c, err := uc.w.update(ctx, "reject", caller, lotID, func(c *change) error {
		lot := c.lot
		if err := lot.CheckMutable(c.now); err != nil {
			return err
		}
		if lot.VerificationStatus != domain.VerificationPending {
			return domain.LotError(domain.ErrStateConflict, lot.ID, domain.InvariantVerification,
				"only pending lots can be rejected, lot is %s", lot.VerificationStatus)
		}

		lot.RecordVerification(domain.VerificationRejected, caller.ID, "", "", reason, c.now)
		lot.ClearListing()

		c.action = domain.AuditActionLotReject
		c.anchorKind = domain.EventTypeVerificationChanged
		c.emit(domain.EventTypeVerificationChanged, map[string]any{
			"from":     string(domain.VerificationPending),
			"to":       string(domain.VerificationRejected),
			"verifier": caller.ID,
			"reason":   reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.w.metrics != nil {
		uc.w.metrics.VerificationChanges.WithLabelValues(string(domain.VerificationRejected)).Inc()
	}
	return c.lot, nil
}

// ExpireLots moves every verified lot past its validity window to expired,
// one compare-and-swap per lot. A failure on one lot does not stop the sweep.
func (uc *VerificationUseCase) ExpireLots(ctx context.Context) (*ExpiryResult, error) {
	now := uc.w.clock().UTC()
	candidates, err := uc.w.lots.Query(ctx, domain.LotFilter{
		VerificationStatus: domain.VerificationVerified,
		Settlement:         domain.SettlementSettled,
		ValidUntilBefore:   &now,
	})
	if err != nil {
		return nil, fmt.Errorf("query expiry candidates: %w", err)
	}

	result := &ExpiryResult{Scanned: len(candidates), Failed: map[string]string{}}
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		expired := false
		_, err := uc.w.update(ctx, "expire", domain.SystemCaller, candidate.ID, func(c *change) error {
			expired = false
			lot := c.lot
			if lot.VerificationStatus != domain.VerificationVerified || lot.Retirement.IsRetired ||
				!c.now.After(lot.ValidUntil) {
				return errNoChange
			}

			lot.RecordVerification(domain.VerificationExpired, domain.SystemCaller.ID, "", "", "validity window ended", c.now)
			lot.ClearListing()
			lot.ExpireActiveBids(c.now)
			expired = true

			c.action = domain.AuditActionLotExpire
			c.anchorKind = domain.EventTypeLotExpired
			c.emit(domain.EventTypeLotExpired, map[string]any{
				"owner":       lot.CurrentOwner,
				"valid_until": lot.ValidUntil.Format(time.RFC3339),
			})
			return nil
		})
		if err != nil {
			result.Failed[candidate.ID] = err.Error()
			uc.w.logger.Warn().Err(err).Str("lot_id", candidate.ID).Msg("failed to expire lot")
			continue
		}
		if expired {
			result.Expired = append(result.Expired, candidate.ID)
		}
	}

	if uc.w.metrics != nil {
		uc.w.metrics.LotsExpired.Add(float64(len(result.Expired)))
	}
	if len(result.Expired) > 0 {
		uc.w.invalidateMarketStats(ctx)
	}

	return result, nil
}

func (uc *VerificationUseCase) checkVerifier(lotID string, caller domain.Caller) error {
	if caller.Role.CanVerify() {
		return nil
	}
	return domain.LotError(domain.ErrNotAuthorized, lotID, domain.InvariantVerification,
		"role %q cannot verify credits", caller.Role)
}
