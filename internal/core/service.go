package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/bso/internal/catalog"
	"github.com/JonMunkholm/bso/internal/lock"
	"github.com/JonMunkholm/bso/internal/logging"
	"github.com/JonMunkholm/bso/internal/release"
	"github.com/JonMunkholm/bso/internal/store"
	"github.com/shopspring/decimal"
)

// DefaultReleaseTimeout bounds a single release end to end.
const DefaultReleaseTimeout = 8 * time.Second

// DefaultHistoryLimit is the default page size of the release log.
const DefaultHistoryLimit = 50

// UnitResolver maps a unit label to its sales order code.
type UnitResolver interface {
	Resolve(label string) (catalog.UnitCode, error)
}

// Options tunes a Service. Zero values fall back to defaults.
type Options struct {
	Timeout      time.Duration
	HistoryLimit int
	Limiter      *ReleaseLimiter
}

// Service runs release actions against blanket orders.
type Service struct {
	store   store.Store
	locker  lock.Locker
	units   UnitResolver
	limiter *ReleaseLimiter

	timeout      time.Duration
	historyLimit int
}

// NewService creates a new Service instance.
func NewService(st store.Store, locker lock.Locker, units UnitResolver, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultReleaseTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Limiter == nil {
		opts.Limiter = NewReleaseLimiter(DefaultMaxConcurrentReleases, DefaultMaxWaitTime)
	}
	return &Service{
		store:        st,
		locker:       locker,
		units:        units,
		limiter:      opts.Limiter,
		timeout:      opts.Timeout,
		historyLimit: opts.HistoryLimit,
	}
}

// Limiter returns the release limiter, for shutdown and health reporting.
func (s *Service) Limiter() *ReleaseLimiter {
	return s.limiter
}

// ReleaseResult is the outcome of a successful release.
type ReleaseResult struct {
	ReleaseID    string              `json:"releaseId"`
	OrderID      string              `json:"orderId"`
	ChildOrderID string              `json:"childOrderId"`
	Status       release.Status      `json:"status"`
	Lines        []release.ChildLine `json:"lines"`
	Total        decimal.Decimal     `json:"total"`
}

// Release validates a batch against the stored order, moves the requested
// quantities from remaining to released, creates the child sales order and
// saves the blanket order.
//
// The whole read-modify-write runs under the order lock and, when the store
// supports it, in one transaction. A rejected batch returns
// release.ValidationErrors and changes nothing. A stale line or unknown unit
// aborts before anything is written.
func (s *Service) Release(ctx context.Context, orderID string, requests []release.ReleaseRequest) (*ReleaseResult, error) {
	logger := logging.WithFields(ctx, "order_id", orderID, "lines", len(requests))

	done, err := s.limiter.Acquire(ctx)
	if err != nil {
		logger.Warn("release slot unavailable", "error", err)
		return nil, err
	}
	defer done()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var result *ReleaseResult

	err = s.locker.WithLock(ctx, lock.Key(orderID), func(ctx context.Context) error {
		return s.inTx(ctx, func(st store.Store) error {
			var err error
			result, err = s.release(ctx, st, orderID, requests)
			return err
		})
	})

	switch {
	case err == nil:
		logger.Info("release completed",
			"release_id", result.ReleaseID,
			"child_order_id", result.ChildOrderID,
			"status", result.Status.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return result, nil
	case isRejection(err):
		logger.Info("release rejected", "error", err)
	case errors.Is(err, release.ErrStaleLine), errors.Is(err, lock.ErrBusy):
		logger.Warn("release conflict", "error", err)
	default:
		logger.Error("release failed", "error", err)
	}
	return nil, err
}

func (s *Service) release(ctx context.Context, st store.Store, orderID string, requests []release.ReleaseRequest) (*ReleaseResult, error) {
	order, err := st.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	validated, err := release.Validate(order, requests)
	if err != nil {
		return nil, err
	}

	working := order.Clone()
	rec, err := release.Apply(working, validated)
	if err != nil {
		return nil, err
	}
	if err := release.CheckLedger(working); err != nil {
		return nil, fmt.Errorf("order %s: %w", orderID, err)
	}

	lines, err := s.resolveUnits(rec.Lines)
	if err != nil {
		return nil, err
	}

	childID, err := st.CreateChildOrder(ctx, store.ChildOrderHeader{
		BlanketOrderID: working.ID,
		Header:         working.Header,
	}, lines)
	if err != nil {
		return nil, fmt.Errorf("create child order: %w", err)
	}

	if err := st.SaveOrder(ctx, working); err != nil {
		return nil, err
	}

	entry, err := st.RecordRelease(ctx, newReleaseEntry(ctx, working.ID, childID, working.Status, rec.Lines))
	if err != nil {
		return nil, fmt.Errorf("record release: %w", err)
	}

	total := decimal.Zero
	for _, l := range rec.Lines {
		total = total.Add(l.Amount())
	}

	return &ReleaseResult{
		ReleaseID:    entry.ID,
		OrderID:      working.ID,
		ChildOrderID: childID,
		Status:       working.Status,
		Lines:        rec.Lines,
		Total:        total,
	}, nil
}

func (s *Service) resolveUnits(lines []release.ChildLine) ([]store.ChildOrderLine, error) {
	out := make([]store.ChildOrderLine, len(lines))
	for i, l := range lines {
		code, err := s.units.Resolve(l.Unit)
		if err != nil {
			return nil, err
		}
		out[i] = store.ChildOrderLine{ChildLine: l, UnitCode: string(code)}
	}
	return out, nil
}

func (s *Service) inTx(ctx context.Context, fn func(store.Store) error) error {
	if tx, ok := s.store.(store.Transactor); ok {
		return tx.InTx(ctx, fn)
	}
	return fn(s.store)
}

func isRejection(err error) bool {
	var verrs release.ValidationErrors
	return errors.As(err, &verrs)
}
