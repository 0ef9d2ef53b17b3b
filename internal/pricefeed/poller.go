package pricefeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/log"
)

// PollerConfig holds the polling cadence.
type PollerConfig struct {
	// Interval between two polls (default: 5m)
	Interval time.Duration
	// FetchTimeout bounds a single fetch (default: 10s)
	FetchTimeout time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     5 * time.Minute,
		FetchTimeout: 10 * time.Second,
	}
}

// Poller periodically refreshes a QuoteSlot from a Fetcher. A failed fetch
// empties the slot: stale rates are never served.
type Poller struct {
	fetcher  Fetcher
	slot     QuoteSlot
	recorder QuoteRecorder
	config   PollerConfig
	logger   *log.Logger
	group    singleflight.Group

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(fetcher Fetcher, slot QuoteSlot, recorder QuoteRecorder, config PollerConfig, logger *log.Logger) *Poller {
	def := DefaultPollerConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = def.FetchTimeout
	}
	return &Poller{
		fetcher:  fetcher,
		slot:     slot,
		recorder: recorder,
		config:   config,
		logger:   logger.WithComponent(log.ComponentPriceFeed),
	}
}

// Start polls once immediately, then every Interval until Stop is called or
// ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("price poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Price poller started",
		"interval", p.config.Interval,
		"fetch_timeout", p.config.FetchTimeout)
	return nil
}

// Stop signals the loop and waits for it to exit.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh = nil
	p.mu.Unlock()

	// Only the first of concurrent stoppers closes the channel; all wait.
	if stopCh != nil {
		close(stopCh)
	}

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Price poller stopped")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Price poller stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run blocks until ctx is cancelled. It is the errgroup friendly form of
// Start/Stop.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), p.config.FetchTimeout+time.Second)
	defer cancel()
	return p.Stop(stopCtx)
}

func (p *Poller) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	_, _ = p.Refresh(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.Refresh(ctx)
		}
	}
}

// Refresh fetches a quote now. Concurrent callers share one fetch, which
// runs detached from any single caller: a caller that goes away gets
// ctx.Err() while the fetch completes and updates the slot.
func (p *Poller) Refresh(ctx context.Context) (Quote, error) {
	ch := p.group.DoChan("refresh", func() (any, error) {
		return p.poll(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Quote{}, res.Err
		}
		return res.Val.(Quote), nil
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	}
}

func (p *Poller) poll(ctx context.Context) (Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	q, err := p.fetcher.Fetch(fetchCtx)
	if err != nil {
		p.logger.WarnContext(ctx, "Price fetch failed, invalidating quote",
			log.FieldOperation, log.OpPoll,
			log.FieldError, err.Error())
		if ierr := p.slot.Invalidate(ctx); ierr != nil {
			p.logger.ErrorContext(ctx, "Failed to invalidate quote slot", log.FieldError, ierr.Error())
		}
		return Quote{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}

	if err := p.slot.Store(ctx, q); err != nil {
		p.logger.ErrorContext(ctx, "Failed to store quote", log.FieldError, err.Error())
		return Quote{}, fmt.Errorf("store quote: %w", err)
	}

	if p.recorder != nil {
		if err := p.recorder.RecordQuote(ctx, q); err != nil {
			p.logger.WarnContext(ctx, "Failed to record quote history", log.FieldError, err.Error())
		}
	}

	p.logger.DebugContext(ctx, "Quote refreshed",
		log.FieldRate, q.Rate,
		"source", q.Source)
	return q, nil
}
