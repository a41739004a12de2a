package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/metrics"
	"github.com/aurumdesk/riskgate/models"
)

// Chain queries providers in priority order with bounded sequential retries
// per provider, falling through to the next provider on failure. It never
// substitutes synthetic data unless the caller opted in, and always tags
// results with provenance.
type Chain struct {
	providers []Provider
	synthetic *Synthetic
	cache     *Cache

	maxRetries     int
	attemptTimeout time.Duration
	retryInterval  time.Duration
	staleness      time.Duration
	clock          func() time.Time
	logger         zerolog.Logger
}

// ChainOptions holds options for assembling a provider chain.
type ChainOptions struct {
	Providers      []Provider
	Synthetic      *Synthetic
	Cache          *Cache
	MaxRetries     int           // retries per provider beyond the first attempt
	AttemptTimeout time.Duration // per-attempt deadline
	RetryInterval  time.Duration // initial backoff interval
	Staleness      time.Duration // freshest-bar bound for current queries
	Clock          func() time.Time
}

// NewChain creates a chain with providers sorted by priority.
func NewChain(opts ChainOptions) *Chain {
	providers := make([]Provider, len(opts.Providers))
	copy(providers, opts.Providers)
	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority() < providers[j].Priority()
	})

	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.AttemptTimeout == 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	if opts.Staleness == 0 {
		opts.Staleness = 48 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(2 * time.Minute)
	}

	return &Chain{
		providers:      providers,
		synthetic:      opts.Synthetic,
		cache:          opts.Cache,
		maxRetries:     opts.MaxRetries,
		attemptTimeout: opts.AttemptTimeout,
		retryInterval:  opts.RetryInterval,
		staleness:      opts.Staleness,
		clock:          opts.Clock,
		logger:         log.With().Str("component", "provider_chain").Logger(),
	}
}

// History returns a provenance-tagged bar series for the window. On
// exhaustion of all real providers it fails with ErrDataUnavailable unless
// the caller explicitly allowed a synthetic placeholder.
func (c *Chain) History(ctx context.Context, symbol string, start, end time.Time, tf models.Timeframe, opts FetchOptions) ([]models.PriceBar, models.Provenance, error) {
	if err := validateWindow(start, end, tf); err != nil {
		return nil, models.Provenance{}, err
	}

	currentQuery := c.clock().Sub(end) < tf.Duration()
	var failed []string

	for _, p := range c.providers {
		if tf != models.Timeframe1d && !p.Capabilities().Intraday {
			continue
		}

		key := Key(p.Name(), symbol, tf, start, end)
		bars, prov, err := c.cache.GetOrFetch(key, opts.ForceRefresh, func() ([]models.PriceBar, models.Provenance, error) {
			fetched, fetchErr := c.fetchWithRetry(ctx, p, symbol, start, end, tf)
			if fetchErr != nil {
				return nil, models.Provenance{}, fetchErr
			}
			if currentQuery {
				newest := fetched[len(fetched)-1].Timestamp
				if c.clock().Sub(newest) > c.staleness {
					metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeStale).Inc()
					return nil, models.Provenance{}, fmt.Errorf("%w: newest bar %s from %s", ErrStaleData, newest, p.Name())
				}
			}
			return fetched, models.Provenance{
				Provider:    p.Name(),
				RetrievedAt: c.clock(),
				Synthetic:   false,
			}, nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, models.Provenance{}, err
			}
			c.logger.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("Provider failed, advancing chain")
			failed = append(failed, p.Name())
			continue
		}

		prov.FailedProviders = failed
		return bars, prov, nil
	}

	if opts.AllowSynthetic && c.synthetic != nil {
		bars, err := c.synthetic.FetchBars(ctx, symbol, start, end, tf)
		if err != nil {
			return nil, models.Provenance{}, err
		}
		prov := models.Provenance{
			Provider:        c.synthetic.Name(),
			RetrievedAt:     c.clock(),
			Synthetic:       true,
			FailedProviders: failed,
		}
		return bars, prov, nil
	}

	return nil, models.Provenance{FailedProviders: failed}, fmt.Errorf("%w: %s %s", ErrDataUnavailable, symbol, tf)
}

// Quote returns the latest quote, falling through providers in order. The
// quote timestamp must satisfy the staleness bound.
func (c *Chain) Quote(ctx context.Context, symbol string, opts FetchOptions) (models.QuoteSnapshot, error) {
	var failed []string

	for _, p := range c.providers {
		quote, err := c.quoteWithRetry(ctx, p, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return models.QuoteSnapshot{}, err
			}
			c.logger.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("Quote failed, advancing chain")
			failed = append(failed, p.Name())
			continue
		}
		if c.clock().Sub(quote.Timestamp) > c.staleness {
			metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeStale).Inc()
			failed = append(failed, p.Name())
			continue
		}
		return quote, nil
	}

	if opts.AllowSynthetic && c.synthetic != nil {
		return c.synthetic.FetchQuote(ctx, symbol)
	}
	return models.QuoteSnapshot{}, fmt.Errorf("%w: quote %s (failed: %v)", ErrDataUnavailable, symbol, failed)
}

// fetchWithRetry runs one provider with exponential backoff and jitter,
// capped attempts, and a per-attempt timeout. Retries are sequential.
func (c *Chain) fetchWithRetry(ctx context.Context, p Provider, symbol string, start, end time.Time, tf models.Timeframe) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		fetched, err := p.FetchBars(attemptCtx, symbol, start, end, tf)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
			if errors.Is(err, ErrUnsupportedTimeframe) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(fetched) == 0 {
			metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
			return ErrEmptyData
		}
		metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeOK).Inc()
		bars = fetched
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return bars, nil
}

func (c *Chain) quoteWithRetry(ctx context.Context, p Provider, symbol string) (models.QuoteSnapshot, error) {
	var quote models.QuoteSnapshot
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		defer cancel()

		fetched, err := p.FetchQuote(attemptCtx, symbol)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
			return err
		}
		metrics.ProviderRequests.WithLabelValues(p.Name(), metrics.OutcomeOK).Inc()
		quote = fetched
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		if ctx.Err() != nil {
			return models.QuoteSnapshot{}, ctx.Err()
		}
		return models.QuoteSnapshot{}, err
	}
	return quote, nil
}

func (c *Chain) retryPolicy(ctx context.Context) backoff.BackOffContext {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = c.retryInterval
	return backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(c.maxRetries)), ctx)
}
