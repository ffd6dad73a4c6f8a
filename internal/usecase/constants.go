package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// DefaultAnchorTimeout bounds one fire-and-forget anchoring call
	DefaultAnchorTimeout = 15 * time.Second

	// DefaultVerificationValidity is how long a verification stays current
	DefaultVerificationValidity = 365 * 24 * time.Hour

	// DefaultSettleGracePeriod is how old a pending split child must be before
	// the sweep settles it; younger children may still be in flight
	DefaultSettleGracePeriod = 5 * time.Minute

	// DefaultMarketStatsTTL is how long market statistics are cached
	DefaultMarketStatsTTL = 30 * time.Second

	// DefaultLotIDPrefix prefixes issued lot ids
	DefaultLotIDPrefix = "CC"

	// MaxExpiringDaysAhead bounds GetExpiring lookahead
	MaxExpiringDaysAhead = 3650

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyProcessing is stored under a key while its first request runs
	IdempotencyProcessing = "processing"

	marketStatsCacheKey = "market:stats"
)

// Options tune ledger behaviour; zero values fall back to the defaults above.
type Options struct {
	LotIDPrefix          string
	VerificationValidity time.Duration
	SettleGracePeriod    time.Duration
	MarketStatsTTL       time.Duration
	AnchorTimeout        time.Duration
}

func (o Options) withDefaults() Options {
	if o.LotIDPrefix == "" {
		o.LotIDPrefix = DefaultLotIDPrefix
	}
	if o.VerificationValidity <= 0 {
		o.VerificationValidity = DefaultVerificationValidity
	}
	if o.SettleGracePeriod <= 0 {
		o.SettleGracePeriod = DefaultSettleGracePeriod
	}
	if o.MarketStatsTTL <= 0 {
		o.MarketStatsTTL = DefaultMarketStatsTTL
	}
	if o.AnchorTimeout <= 0 {
		o.AnchorTimeout = DefaultAnchorTimeout
	}
	return o
}
