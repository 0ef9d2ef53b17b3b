package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/aggregate"
	"bilancio/internal/amqp"
	"bilancio/internal/cache"
	"bilancio/internal/codec"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/log"
	"bilancio/internal/pricefeed"
)

// ErrHistoryDisabled is returned when no quote history is configured.
var ErrHistoryDisabled = errors.New("rate history disabled")

const (
	viewCacheSize = 128
	viewCacheTTL  = 10 * time.Minute
)

type (
	// EventPublisher announces ledger mutations.
	EventPublisher interface {
		PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
	}

	// QuoteReader exposes the latest exchange rate.
	QuoteReader interface {
		Latest(ctx context.Context) (pricefeed.Quote, error)
	}

	// QuoteHistory lists past quotes, newest first.
	QuoteHistory interface {
		ListQuotes(ctx context.Context, limit int) ([]pricefeed.Quote, error)
	}
)

// Deps wires the optional collaborators of a LedgerService. Only Store is
// required.
type Deps struct {
	Store        ledger.Store
	Quotes       QuoteReader
	Publisher    EventPublisher
	History      QuoteHistory
	Suggester    ledger.CategorySuggester
	InitialUnits int64
	Logger       *log.Logger
	Now          func() time.Time
	NewID        func() string
}

// Draft is an entry as typed by the user. For alternate entries either the
// fiat amount or the subunit amount may be given; the other one is derived
// with Rate, or with the latest quote when Rate is nil.
type Draft struct {
	Date           core.Date
	Description    string
	Category       string
	Amount         *float64
	Type           core.Type
	Method         core.SettlementMethod
	AlternateUnits *int64
	Rate           *float64
}

// LedgerService orchestrates the store, the price feed and ledger events.
type LedgerService struct {
	store        ledger.Store
	quotes       QuoteReader
	publisher    EventPublisher
	history      QuoteHistory
	suggester    ledger.CategorySuggester
	initialUnits int64
	logger       *log.Logger
	slog         *log.StructuredLogger
	now          func() time.Time
	newID        func() string

	summaries *cache.LRUCache[aggregate.Summary]
	monthly   *cache.LRUCache[[]aggregate.MonthPoint]
}

func NewLedgerService(d Deps) *LedgerService {
	if d.Logger == nil {
		d.Logger = log.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	logger := d.Logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		store:        d.Store,
		quotes:       d.Quotes,
		publisher:    d.Publisher,
		history:      d.History,
		suggester:    d.Suggester,
		initialUnits: d.InitialUnits,
		logger:       logger,
		slog:         log.NewStructuredLogger(logger),
		now:          d.Now,
		newID:        d.NewID,
		summaries:    cache.NewLRUCache[aggregate.Summary](viewCacheSize, viewCacheTTL),
		monthly:      cache.NewLRUCache[[]aggregate.MonthPoint](viewCacheSize, viewCacheTTL),
	}
}

// Caches returns the view caches so a cache.Manager can clean them.
func (s *LedgerService) Caches() []cache.Cleaner {
	return []cache.Cleaner{s.summaries, s.monthly}
}

// Record builds a transaction from d, appends it and announces it.
func (s *LedgerService) Record(ctx context.Context, d Draft) (core.Transaction, error) {
	tx, err := s.build(ctx, d)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.Append(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	s.slog.LogTransactionRecorded(ctx, tx.ID, string(tx.Type), tx.Category, tx.Amount, string(tx.Method()))
	s.publish(ctx, amqp.NewAppendedEvent(tx, s.store.Revision()))
	return tx, nil
}

func (s *LedgerService) build(ctx context.Context, d Draft) (core.Transaction, error) {
	method := d.Method
	if method == "" {
		method = core.SettlementPrimary
	}
	tx := core.Transaction{
		ID:          s.newID(),
		Date:        d.Date,
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Type:        d.Type,
		Settlement:  core.Primary{},
	}

	switch method {
	case core.SettlementPrimary:
		if d.Amount == nil {
			return core.Transaction{}, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
		}
		tx.Amount = *d.Amount
	case core.SettlementAlternate:
		alt, amount, err := s.alternateLeg(ctx, d)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Amount = amount
		tx.Settlement = alt
	default:
		return core.Transaction{}, &core.ValidationError{Field: "settlementMethod", Err: core.ErrInvalidSettlement}
	}

	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func (s *LedgerService) alternateLeg(ctx context.Context, d Draft) (core.Alternate, float64, error) {
	if d.Amount == nil && d.AlternateUnits == nil {
		return core.Alternate{}, 0, &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}
	}

	var rate float64
	if d.Rate != nil {
		rate = *d.Rate
	} else {
		q, err := s.LatestRate(ctx)
		if err != nil {
			return core.Alternate{}, 0, err
		}
		rate = q.Rate
	}

	switch {
	case d.Amount != nil && d.AlternateUnits != nil:
		return core.Alternate{Units: *d.AlternateUnits, RateAtEntry: rate}, *d.Amount, nil
	case d.Amount != nil:
		units, err := core.ToAlternateUnits(*d.Amount, rate)
		if err != nil {
			return core.Alternate{}, 0, err
		}
		return core.Alternate{Units: units, RateAtEntry: rate}, *d.Amount, nil
	default:
		amount, err := core.ToFiat(*d.AlternateUnits, rate)
		if err != nil {
			return core.Alternate{}, 0, err
		}
		return core.Alternate{Units: *d.AlternateUnits, RateAtEntry: rate}, amount, nil
	}
}

// Import replaces the whole set with the records in payload. On failure the
// set is left as it was.
func (s *LedgerService) Import(ctx context.Context, payload []byte) (int, error) {
	txs, err := codec.FromStructuredText(payload)
	if err != nil {
		s.logger.WarnContext(ctx, "Import rejected",
			log.FieldOperation, log.OpImport,
			log.FieldError, err.Error())
		return 0, err
	}
	if err := s.store.ReplaceAll(ctx, txs); err != nil {
		return 0, err
	}

	rev := s.store.Revision()
	s.slog.LogImport(ctx, len(txs), rev)
	s.publish(ctx, amqp.NewReplacedEvent(txs, rev))
	return len(txs), nil
}

// ExportJSON returns the structured text backup of the whole set.
func (s *LedgerService) ExportJSON(ctx context.Context) ([]byte, error) {
	return codec.ToStructuredText(s.store.Snapshot(ctx))
}

// ExportCSV returns the tabular export of the whole set.
func (s *LedgerService) ExportCSV(ctx context.Context) ([]byte, error) {
	return codec.ToTabularText(s.store.Snapshot(ctx))
}

// Transactions lists the set sorted by date. Empty filters are ignored.
func (s *LedgerService) Transactions(ctx context.Context, month string, method core.SettlementMethod) []core.Transaction {
	txs := s.store.Snapshot(ctx)
	if month != "" {
		txs = aggregate.FilterByMonth(txs, month)
	}
	if method != "" {
		txs = aggregate.FilterBySettlementMethod(txs, method)
	}
	return aggregate.SortByDate(txs)
}

// Summary returns the month view, cached per store revision.
func (s *LedgerService) Summary(ctx context.Context, month string) aggregate.Summary {
	key := cache.ViewKey(s.store.Revision(), "summary", month)
	return s.summaries.GetOrCompute(key, func() aggregate.Summary {
		return aggregate.Summarize(s.store.Snapshot(ctx), month, s.initialUnits)
	})
}

func (s *LedgerService) Categories(ctx context.Context, month string) []aggregate.CategorySummary {
	return s.Summary(ctx, month).Categories
}

func (s *LedgerService) CategoryPie(ctx context.Context, month string) []aggregate.PieSlice {
	return s.Summary(ctx, month).Pie
}

func (s *LedgerService) CategoryStacked(ctx context.Context, month string) []aggregate.CategoryPoint {
	return s.Summary(ctx, month).Stacked
}

// MonthlySeries returns the all-time monthly series.
func (s *LedgerService) MonthlySeries(ctx context.Context) []aggregate.MonthPoint {
	key := cache.ViewKey(s.store.Revision(), "monthly")
	return s.monthly.GetOrCompute(key, func() []aggregate.MonthPoint {
		return aggregate.MonthlySeries(s.store.Snapshot(ctx))
	})
}

func (s *LedgerService) Descriptions(ctx context.Context) []string {
	return aggregate.DistinctDescriptions(s.store.Snapshot(ctx))
}

// AlternateBalance returns the all-time subunit balance and its seed.
func (s *LedgerService) AlternateBalance(ctx context.Context) (balance, initial int64) {
	return aggregate.AlternateUnitBalance(s.store.Snapshot(ctx), s.initialUnits), s.initialUnits
}

func (s *LedgerService) SuggestedCategories(ctx context.Context) []string {
	if s.suggester == nil {
		return []string{}
	}
	return s.suggester.Suggestions(ctx)
}

// LatestRate returns the current quote or pricefeed.ErrFeedUnavailable.
func (s *LedgerService) LatestRate(ctx context.Context) (pricefeed.Quote, error) {
	if s.quotes == nil {
		return pricefeed.Quote{}, pricefeed.ErrFeedUnavailable
	}
	q, err := s.quotes.Latest(ctx)
	if err != nil {
		if !errors.Is(err, pricefeed.ErrFeedUnavailable) {
			s.logger.WarnContext(ctx, "Quote slot read failed", log.FieldError, err.Error())
		}
		return pricefeed.Quote{}, pricefeed.ErrFeedUnavailable
	}
	return q, nil
}

func (s *LedgerService) RateHistory(ctx context.Context, limit int) ([]pricefeed.Quote, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.ListQuotes(ctx, limit)
}

// CurrentMonth returns the YYYY-MM key of the service clock.
func (s *LedgerService) CurrentMonth() string {
	return core.CurrentMonthKey(s.now())
}

// Len reports the number of stored transactions.
func (s *LedgerService) Len() int {
	return s.store.Len()
}

func (s *LedgerService) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldOperation, log.OpPublish,
			log.FieldEventKind, ev.Kind,
			log.FieldError, err.Error())
	}
}
