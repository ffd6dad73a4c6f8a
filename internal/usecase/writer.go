package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/carbonledger/internal/domain"
	"github.com/iho/carbonledger/internal/infrastructure/metrics"
)

// Dependencies are the collaborators shared by the ledger use cases.
// Reader, Anchor, Cache, Audit and Metrics are optional.
type Dependencies struct {
	TxManager TransactionManager
	Lots      LotRepository
	Reader    LotReader
	Outbox    OutboxRepository
	Audit     AuditRepository
	IDGen     IDGenerator
	Retrier   Retrier
	Anchor    Anchor
	Cache     Cache
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	Clock     func() time.Time
}

// errNoChange tells the writer an attempt decided nothing needs writing.
var errNoChange = errors.New("no change")

type pendingEvent struct {
	eventType string
	payload   map[string]any
}

// change is one attempt's working copy of a lot plus what it wants recorded.
type change struct {
	before        *domain.CreditLot
	lot           *domain.CreditLot
	now           time.Time
	events        []pendingEvent
	action        domain.AuditAction
	anchorKind    string
	transactionID string
}

func (c *change) emit(eventType string, payload map[string]any) {
	c.events = append(c.events, pendingEvent{eventType: eventType, payload: payload})
}

// lotWriter runs read-validate-swap attempts against the primary store.
type lotWriter struct {
	txManager TransactionManager
	lots      LotRepository
	reader    LotReader
	outbox    OutboxRepository
	audit     AuditRepository
	idGen     IDGenerator
	retrier   Retrier
	anchor    Anchor
	cache     Cache
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	clock     func() time.Time
	opts      Options
	anchors   *sync.WaitGroup
}

func newLotWriter(deps Dependencies, opts Options) *lotWriter {
	w := &lotWriter{
		txManager: deps.TxManager,
		lots:      deps.Lots,
		reader:    deps.Reader,
		outbox:    deps.Outbox,
		audit:     deps.Audit,
		idGen:     deps.IDGen,
		retrier:   deps.Retrier,
		anchor:    deps.Anchor,
		cache:     deps.Cache,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		clock:     deps.Clock,
		opts:      opts.withDefaults(),
		anchors:   &sync.WaitGroup{},
	}
	if w.reader == nil {
		w.reader = deps.Lots
	}
	if w.clock == nil {
		w.clock = time.Now
	}
	if w.retrier == nil {
		w.retrier = singleAttempt{}
	}
	return w
}

type singleAttempt struct{}

func (singleAttempt) Retry(_ context.Context, operation func() error) error { return operation() }

// update re-reads lotID, applies fn to a copy and swaps it in, retrying on
// version conflicts. fn must be safe to run more than once.
func (w *lotWriter) update(ctx context.Context, op string, caller domain.Caller, lotID string, fn func(c *change) error) (*change, error) {
	start := time.Now()

	var result *change
	err := w.retry(ctx, op, lotID, func() error {
		c, err := w.attempt(ctx, caller, lotID, fn)
		if err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		w.observeError(op, err)
		return nil, err
	}

	w.observe(op, start)
	if result.lot != result.before {
		w.afterCommit(ctx, result)
	}
	return result, nil
}

func (w *lotWriter) attempt(ctx context.Context, caller domain.Caller, lotID string, fn func(c *change) error) (*change, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	current, err := w.lots.GetByID(txCtx, lotID)
	if err != nil {
		return nil, err
	}

	c := &change{
		before: current,
		lot:    current.Clone(),
		now:    w.clock().UTC(),
	}

	if err := fn(c); err != nil {
		if errors.Is(err, errNoChange) {
			c.lot = current
			return c, nil
		}
		return nil, err
	}

	c.lot.UpdatedAt = c.now

	tx, err := w.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := w.lots.CompareAndSwap(txCtx, tx, current.Version, c.lot); err != nil {
		return nil, err
	}

	if err := w.record(txCtx, tx, caller, c); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	return c, nil
}

// create stores a brand new lot together with its events.
func (w *lotWriter) create(ctx context.Context, caller domain.Caller, c *change) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := w.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := w.lots.Create(txCtx, tx, c.lot); err != nil {
		return err
	}

	if err := w.record(txCtx, tx, caller, c); err != nil {
		return err
	}

	return tx.Commit(txCtx)
}

// record writes the outbox events and the audit entry inside tx.
func (w *lotWriter) record(ctx context.Context, tx Transaction, caller domain.Caller, c *change) error {
	for _, pe := range c.events {
		event := domain.NewLotEvent(w.idGen.Generate(), c.lot.ID, pe.eventType, pe.payload, c.now)
		if err := w.outbox.Create(ctx, tx, event); err != nil {
			return err
		}
	}

	if w.audit == nil || c.action == "" {
		return nil
	}

	userID := caller.ID
	if userID == "" {
		userID = domain.SystemCaller.ID
	}

	auditLog := &domain.AuditLog{
		ID:           w.idGen.Generate(),
		UserID:       userID,
		Action:       string(c.action),
		ResourceType: domain.AggregateTypeLot,
		ResourceID:   c.lot.ID,
		AfterState:   domain.MarshalState(c.lot),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    c.now,
	}
	if c.before != nil {
		auditLog.BeforeState = domain.MarshalState(c.before)
	}
	if err := w.audit.CreateTx(ctx, tx, auditLog); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.AuditLogsCreated.WithLabelValues(string(c.action), auditLog.Status).Inc()
	}

	return nil
}

// retry runs fn under the retrier and turns exhausted version conflicts into StateConflict.
func (w *lotWriter) retry(ctx context.Context, op, lotID string, fn func() error) error {
	err := w.retrier.Retry(ctx, func() error {
		err := fn()
		if errors.Is(err, domain.ErrVersionConflict) {
			if w.metrics != nil {
				w.metrics.VersionConflicts.WithLabelValues(op).Inc()
			}
			w.logger.Debug().Str("operation", op).Str("lot_id", lotID).Msg("version conflict")
		}
		return err
	})

	if errors.Is(err, domain.ErrVersionConflict) {
		return &domain.LedgerError{
			Kind:      domain.ErrStateConflict,
			LotID:     lotID,
			Invariant: domain.InvariantVersion,
			Detail:    "concurrent modification, retries exhausted",
			Cause:     err,
		}
	}
	return err
}

func (w *lotWriter) afterCommit(ctx context.Context, c *change) {
	if c.anchorKind != "" {
		w.anchorAsync(ctx, c.lot.ID, c.transactionID, c.anchorKind)
	}
}

// anchorAsync mirrors a committed event without blocking or failing the caller.
func (w *lotWriter) anchorAsync(ctx context.Context, lotID, transactionID, kind string) {
	if w.anchor == nil {
		return
	}

	w.anchors.Add(1)
	go func() {
		defer w.anchors.Done()

		anchorCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.AnchorTimeout)
		defer cancel()

		if err := w.anchor.RecordExternalEvent(anchorCtx, lotID, transactionID, kind); err != nil {
			if w.metrics != nil {
				w.metrics.AnchorFailures.Inc()
			}
			w.logger.Warn().
				Err(err).
				Str("lot_id", lotID).
				Str("transaction_id", transactionID).
				Str("kind", kind).
				Msg("anchoring failed")
		}
	}()
}

func (w *lotWriter) invalidateMarketStats(ctx context.Context) {
	if w.cache == nil {
		return
	}
	if err := w.cache.Delete(ctx, marketStatsCacheKey); err != nil {
		w.logger.Warn().Err(err).Msg("failed to invalidate market stats")
	}
}

func (w *lotWriter) observe(op string, start time.Time) {
	if w.metrics != nil {
		w.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (w *lotWriter) observeError(op string, err error) {
	if w.metrics == nil {
		return
	}
	kind := "internal"
	if k := domain.ErrorKind(err); k != nil {
		kind = k.Error()
	}
	w.metrics.OperationErrors.WithLabelValues(op, kind).Inc()
}

// checkOwner lets the current owner or an admin act on the lot.
func checkOwner(lot *domain.CreditLot, caller domain.Caller) error {
	if caller.ID == lot.CurrentOwner || caller.Role.IsAdmin() {
		return nil
	}
	return domain.LotError(domain.ErrNotAuthorized, lot.ID, domain.InvariantSingleOwner,
		"caller %s is not the current owner", caller.ID)
}

// validationError attaches lotID to an input error from the domain validators.
func validationError(lotID string, err error) error {
	return &domain.LedgerError{
		Kind:      domain.ErrValidation,
		LotID:     lotID,
		Invariant: domain.InvariantInput,
		Detail:    strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": "),
	}
}
