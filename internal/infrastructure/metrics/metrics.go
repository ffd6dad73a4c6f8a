package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Issuance and verification metrics
	LotsIssued          prometheus.Counter
	IssuedAmount        prometheus.Histogram
	VerificationChanges *prometheus.CounterVec
	LotsExpired         prometheus.Counter

	// Transfer metrics
	Transfers        *prometheus.CounterVec
	TransferAmount   prometheus.Histogram
	LotsSplit        prometheus.Counter
	ChildLotsSettled *prometheus.CounterVec

	// Marketplace metrics
	Listings     *prometheus.CounterVec
	BidsPlaced   prometheus.Counter
	BidsResolved *prometheus.CounterVec
	SalePrice    prometheus.Histogram

	// Retirement metrics
	Retirements   *prometheus.CounterVec
	RetiredAmount prometheus.Counter

	// Operation metrics
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	VersionConflicts  *prometheus.CounterVec

	// Collaborator metrics
	AnchorFailures   prometheus.Counter
	EventsPublished  *prometheus.CounterVec
	MarketStatsCache *prometheus.CounterVec

	// Audit metrics
	AuditLogsCreated *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics on the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates metrics registered on reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Issuance and verification metrics
		LotsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_lots_issued_total",
			Help: "Total number of credit lots issued",
		}),
		IssuedAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbonledger_issued_amount_tons",
			Help:    "Issued lot sizes in tCO2e",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		VerificationChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_verification_changes_total",
				Help: "Verification workflow transitions by target status",
			},
			[]string{"status"},
		),
		LotsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_lots_expired_total",
			Help: "Total number of lots moved to expired by the sweep",
		}),

		// Transfer metrics
		Transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_transfers_total",
				Help: "Total transfers by type and mode",
			},
			[]string{"type", "mode"},
		),
		TransferAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbonledger_transfer_amount_tons",
			Help:    "Transferred amounts in tCO2e",
			Buckets: []float64{1, 10, 100, 1000, 10000, 100000, 1000000},
		}),
		LotsSplit: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_lots_split_total",
			Help: "Total number of child lots created by partial transfers",
		}),
		ChildLotsSettled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_child_lots_settled_total",
				Help: "Split children settled by outcome",
			},
			[]string{"outcome"},
		),

		// Marketplace metrics
		Listings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_listings_total",
				Help: "Listing changes by action",
			},
			[]string{"action"},
		),
		BidsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_bids_placed_total",
			Help: "Total number of bids placed",
		}),
		BidsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_bids_resolved_total",
				Help: "Bids leaving the active state by outcome",
			},
			[]string{"status"},
		),
		SalePrice: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "carbonledger_sale_price",
			Help:    "Per-ton price of accepted bids",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		// Retirement metrics
		Retirements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_retirements_total",
				Help: "Retirements by kind",
			},
			[]string{"kind"},
		),
		RetiredAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_retired_amount_tons_total",
			Help: "Total tCO2e removed from circulation",
		}),

		// Operation metrics
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carbonledger_operation_duration_seconds",
				Help:    "Duration of ledger operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_operation_errors_total",
				Help: "Ledger operation errors by operation and kind",
			},
			[]string{"operation", "kind"},
		),
		VersionConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_version_conflicts_total",
				Help: "Optimistic concurrency conflicts by operation",
			},
			[]string{"operation"},
		),

		// Collaborator metrics
		AnchorFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "carbonledger_anchor_failures_total",
			Help: "Anchoring calls that failed",
		}),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_events_published_total",
				Help: "Outbox events handed to the publisher",
			},
			[]string{"event_type", "status"},
		),
		MarketStatsCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_market_stats_cache_total",
				Help: "Market statistics cache lookups",
			},
			[]string{"result"},
		),

		// Audit metrics
		AuditLogsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbonledger_audit_logs_total",
				Help: "Total audit logs created",
			},
			[]string{"action", "status"},
		),
	}
}
