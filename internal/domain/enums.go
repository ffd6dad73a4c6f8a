package domain

import (
	"fmt"
	"strings"
)

// Methodology is the technical approach that produced the emission reduction.
type Methodology string

const (
	MethodologyDirectAirCapture  Methodology = "direct_air_capture"
	MethodologyReforestation     Methodology = "reforestation"
	MethodologyForestry          Methodology = "forestry"
	MethodologyRenewableEnergy   Methodology = "renewable_energy"
	MethodologyIndustrialProcess Methodology = "industrial_process"
	MethodologyMethaneCapture    Methodology = "methane_capture"
	MethodologySoilCarbon        Methodology = "soil_carbon"
	MethodologyMineralization    Methodology = "mineralization"
)

var validMethodologies = map[Methodology]bool{
	MethodologyDirectAirCapture:  true,
	MethodologyReforestation:     true,
	MethodologyForestry:          true,
	MethodologyRenewableEnergy:   true,
	MethodologyIndustrialProcess: true,
	MethodologyMethaneCapture:    true,
	MethodologySoilCarbon:        true,
	MethodologyMineralization:    true,
}

// IsValid reports whether m is a known methodology.
func (m Methodology) IsValid() bool {
	return validMethodologies[m]
}

// ParseMethodology normalizes s ("Direct-Air-Capture", "direct_air_capture") into a Methodology.
func ParseMethodology(s string) (Methodology, error) {
	m := Methodology(normalizeEnum(s))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: unknown methodology %q", ErrValidation, s)
	}
	return m, nil
}

// Standard is the registry the credits are issued under.
type Standard string

const (
	StandardVerraVCS               Standard = "verra_vcs"
	StandardGoldStandard           Standard = "gold_standard"
	StandardAmericanCarbonRegistry Standard = "american_carbon_registry"
	StandardClimateActionReserve   Standard = "climate_action_reserve"
	StandardISO14064               Standard = "iso_14064"
)

var validStandards = map[Standard]bool{
	StandardVerraVCS:               true,
	StandardGoldStandard:           true,
	StandardAmericanCarbonRegistry: true,
	StandardClimateActionReserve:   true,
	StandardISO14064:               true,
}

// IsValid reports whether s is a known registry standard.
func (s Standard) IsValid() bool {
	return validStandards[s]
}

// ParseStandard normalizes s into a Standard.
func ParseStandard(s string) (Standard, error) {
	st := Standard(normalizeEnum(s))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown standard %q", ErrValidation, s)
	}
	return st, nil
}

// VerificationStatus is the state of a lot in the verification workflow.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
	VerificationExpired  VerificationStatus = "expired"
)

// IsValid reports whether s is a known verification status.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected, VerificationExpired:
		return true
	}
	return false
}

// ParseVerificationStatus normalizes s into a VerificationStatus.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	st := VerificationStatus(normalizeEnum(s))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: unknown verification status %q", ErrValidation, s)
	}
	return st, nil
}

// TransferType classifies a transfer record.
type TransferType string

const (
	TransferTypeTransfer   TransferType = "transfer"
	TransferTypeSale       TransferType = "sale"
	TransferTypeRetirement TransferType = "retirement"
	TransferTypeDonation   TransferType = "donation"
)

// IsValid reports whether t is a known transfer type.
func (t TransferType) IsValid() bool {
	switch t {
	case TransferTypeTransfer, TransferTypeSale, TransferTypeRetirement, TransferTypeDonation:
		return true
	}
	return false
}

// MovesOwnership reports whether records of this type hand credits to another owner.
func (t TransferType) MovesOwnership() bool {
	return t != TransferTypeRetirement
}

// ParseTransferType normalizes s into a TransferType. Retirement is not
// accepted here; it is only produced by the retirement operation.
func ParseTransferType(s string) (TransferType, error) {
	if strings.TrimSpace(s) == "" {
		return TransferTypeTransfer, nil
	}
	t := TransferType(normalizeEnum(s))
	if !t.IsValid() || t == TransferTypeRetirement {
		return "", fmt.Errorf("%w: unknown transfer type %q", ErrValidation, s)
	}
	return t, nil
}

// BidStatus is the state of a bid on a listed lot.
type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusAccepted  BidStatus = "accepted"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusExpired   BidStatus = "expired"
	BidStatusWithdrawn BidStatus = "withdrawn"
)

// SettlementState tracks whether a lot created by a split has been confirmed
// by the matching record on its parent.
type SettlementState string

const (
	SettlementSettled SettlementState = "settled"
	SettlementPending SettlementState = "pending"
	SettlementVoided  SettlementState = "voided"
)

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}
