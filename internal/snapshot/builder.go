package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/provider"
	"github.com/aurumdesk/riskgate/models"
)

var (
	// ErrInsufficientData means the window holds too few bars for a
	// required statistic. Fails loudly rather than defaulting.
	ErrInsufficientData = errors.New("insufficient data for snapshot")

	// ErrCorrelationUnavailable means a cross-asset series could not be
	// resolved. Never reported as a silent 1.0.
	ErrCorrelationUnavailable = errors.New("correlation unavailable")
)

// scenarioShocks is the advisory projection ladder attached to snapshots.
var scenarioShocks = []struct {
	label string
	pct   float64
}{
	{"minus_2pct", -0.02},
	{"minus_1pct", -0.01},
	{"plus_1pct", 0.01},
	{"plus_2pct", 0.02},
}

// Builder turns a price-history window into a RiskSnapshot. Builds for
// different symbols may run concurrently; per symbol the computation is
// sequential over the full window.
type Builder struct {
	chain       *provider.Chain
	atrPeriod   int
	corrWindow  int
	crossAssets []string
	reuseWindow time.Duration
	clock       func() time.Time
	logger      zerolog.Logger

	mu   sync.Mutex
	last map[string]*models.RiskSnapshot
}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	Chain       *provider.Chain
	ATRPeriod   int
	CorrWindow  int
	CrossAssets []string
	ReuseWindow time.Duration
	Clock       func() time.Time
}

// NewBuilder creates a snapshot builder.
func NewBuilder(opts BuilderOptions) *Builder {
	if opts.ATRPeriod == 0 {
		opts.ATRPeriod = 14
	}
	if opts.CorrWindow == 0 {
		opts.CorrWindow = 20
	}
	if opts.ReuseWindow == 0 {
		opts.ReuseWindow = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Builder{
		chain:       opts.Chain,
		atrPeriod:   opts.ATRPeriod,
		corrWindow:  opts.CorrWindow,
		crossAssets: opts.CrossAssets,
		reuseWindow: opts.ReuseWindow,
		clock:       opts.Clock,
		logger:      log.With().Str("component", "snapshot_builder").Logger(),
		last:        make(map[string]*models.RiskSnapshot),
	}
}

// Request describes one snapshot build. AllowSynthetic and ForceRefresh are
// forwarded to the provider chain; ReuseWithin opts into returning a recent
// snapshot instead of rebuilding.
type Request struct {
	Symbol         string
	LookbackDays   int
	Timeframe      models.Timeframe
	PositionOz     float64
	AllowSynthetic bool
	ForceRefresh   bool
	ReuseWithin    bool
}

// Build computes a RiskSnapshot from the same historical window as the
// request. The snapshot is immutable once returned.
func (b *Builder) Build(ctx context.Context, req Request) (*models.RiskSnapshot, error) {
	if req.Symbol == "" {
		return nil, errors.New("symbol required")
	}
	if req.LookbackDays <= 0 {
		req.LookbackDays = 14
	}
	if req.Timeframe == "" {
		req.Timeframe = models.Timeframe1d
	}

	if req.ReuseWithin && !req.ForceRefresh {
		if snap := b.recent(req.Symbol); snap != nil {
			return snap, nil
		}
	}

	end := b.clock().UTC()
	// Double the window so weekends and holidays still leave enough bars.
	start := end.AddDate(0, 0, -req.LookbackDays*2)

	bars, prov, err := b.chain.History(ctx, req.Symbol, start, end, req.Timeframe, provider.FetchOptions{
		AllowSynthetic: req.AllowSynthetic,
		ForceRefresh:   req.ForceRefresh,
	})
	if err != nil {
		return nil, err
	}
	// Never trim below what the ATR needs: a 14-day lookback still has to
	// keep 15 bars for ATR(14).
	keep := expectedBars(req.LookbackDays, req.Timeframe)
	if keep < b.atrPeriod+1 {
		keep = b.atrPeriod + 1
	}
	bars = tail(bars, keep)

	if len(bars) < b.atrPeriod+1 {
		return nil, fmt.Errorf("%w: %d bars, need %d for ATR(%d)", ErrInsufficientData, len(bars), b.atrPeriod+1, b.atrPeriod)
	}

	atr := wilderATR(bars, b.atrPeriod)
	returns := logReturns(bars)
	if len(returns) < 2 {
		return nil, fmt.Errorf("%w: %d usable returns", ErrInsufficientData, len(returns))
	}
	annualizedVol := stdev(returns) * math.Sqrt(req.Timeframe.PeriodsPerYear())

	latest := bars[len(bars)-1].Close

	quote, quoteErr := b.chain.Quote(ctx, req.Symbol, provider.FetchOptions{AllowSynthetic: req.AllowSynthetic})
	currentSpread := 0.0
	syntheticQuote := false
	if quoteErr != nil {
		if errors.Is(quoteErr, context.Canceled) || errors.Is(quoteErr, context.DeadlineExceeded) {
			return nil, quoteErr
		}
		b.logger.Warn().Err(quoteErr).Str("symbol", req.Symbol).Msg("Quote unavailable, using bar range proxy for current spread")
		currentSpread = rangeSpreadBps(bars[len(bars)-1])
	} else {
		currentSpread = quote.SpreadBps()
		if currentSpread == 0 {
			currentSpread = rangeSpreadBps(bars[len(bars)-1])
		}
		syntheticQuote = quote.Synthetic
	}

	spreads := make([]float64, 0, len(bars))
	for _, bar := range bars {
		spreads = append(spreads, rangeSpreadBps(bar))
	}
	spreadP95 := percentile(spreads, 95)

	correlations, err := b.correlations(ctx, req)
	if err != nil {
		return nil, err
	}

	var scenarios []models.ScenarioOutcome
	for _, shock := range scenarioShocks {
		projected := latest * (1 + shock.pct)
		scenarios = append(scenarios, models.ScenarioOutcome{
			Label:           shock.label,
			ShockPct:        shock.pct,
			ProjectedPrice:  projected,
			ProjectedPnLUSD: (projected - latest) * req.PositionOz,
		})
	}

	snap := &models.RiskSnapshot{
		Symbol:                req.Symbol,
		ATR:                   atr,
		AnnualizedVol:         annualizedVol,
		CorrelationByAsset:    correlations,
		LiquiditySpreadBps:    currentSpread,
		LiquiditySpreadP95Bps: spreadP95,
		LatestPrice:           latest,
		HistoricalVaR99:       percentile(returns, 1),
		ScenarioOutcomes:      scenarios,
		AsOf:                  b.clock().UTC(),
		LookbackDays:          req.LookbackDays,
		Synthetic:             prov.Synthetic || syntheticQuote,
	}

	b.mu.Lock()
	b.last[req.Symbol] = snap
	b.mu.Unlock()

	b.logger.Info().
		Str("symbol", req.Symbol).
		Float64("atr", atr).
		Float64("annualized_vol", annualizedVol).
		Float64("spread_p95_bps", spreadP95).
		Bool("synthetic", snap.Synthetic).
		Msg("Risk snapshot built")

	return snap, nil
}

// correlations computes Pearson correlation of daily returns between the
// primary symbol and each configured cross-asset over the same window.
func (b *Builder) correlations(ctx context.Context, req Request) (map[string]float64, error) {
	out := make(map[string]float64, len(b.crossAssets))
	if len(b.crossAssets) == 0 {
		return out, nil
	}

	end := b.clock().UTC()
	start := end.AddDate(0, 0, -(req.LookbackDays + b.corrWindow*2))

	// The correlation window can be wider than the request lookback, so the
	// primary daily series is fetched over the extended window.
	primaryDaily, _, err := b.chain.History(ctx, req.Symbol, start, end, models.Timeframe1d, provider.FetchOptions{
		AllowSynthetic: req.AllowSynthetic,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s daily series: %v", ErrCorrelationUnavailable, req.Symbol, err)
	}

	for _, asset := range b.crossAssets {
		peer, _, err := b.chain.History(ctx, asset, start, end, models.Timeframe1d, provider.FetchOptions{
			AllowSynthetic: req.AllowSynthetic,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrelationUnavailable, asset, err)
		}

		a, p := alignedReturns(primaryDaily, peer)
		if len(a) > b.corrWindow {
			a = a[len(a)-b.corrWindow:]
			p = p[len(p)-b.corrWindow:]
		}
		if len(a) < b.corrWindow {
			return nil, fmt.Errorf("%w: %s: %d overlapping returns, need %d", ErrCorrelationUnavailable, asset, len(a), b.corrWindow)
		}

		coef := pearson(a, p)
		if math.IsNaN(coef) {
			return nil, fmt.Errorf("%w: %s: degenerate series", ErrCorrelationUnavailable, asset)
		}
		out[asset] = clamp(coef, -1, 1)
	}
	return out, nil
}

// recent returns the last snapshot for symbol when it is inside the reuse
// window, otherwise nil.
func (b *Builder) recent(symbol string) *models.RiskSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap, ok := b.last[symbol]
	if !ok || b.clock().Sub(snap.AsOf) > b.reuseWindow {
		return nil
	}
	return snap
}

// alignedReturns pairs daily close returns of two series by calendar date.
func alignedReturns(a, b []models.PriceBar) ([]float64, []float64) {
	closesByDay := make(map[string]float64, len(b))
	for _, bar := range b {
		closesByDay[bar.Timestamp.UTC().Format("2006-01-02")] = bar.Close
	}

	type pair struct{ a, b float64 }
	var days []string
	pairs := make(map[string]pair)
	for _, bar := range a {
		day := bar.Timestamp.UTC().Format("2006-01-02")
		peer, ok := closesByDay[day]
		if !ok || peer <= 0 || bar.Close <= 0 {
			continue
		}
		if _, seen := pairs[day]; !seen {
			days = append(days, day)
		}
		pairs[day] = pair{a: bar.Close, b: peer}
	}
	sort.Strings(days)

	var retA, retB []float64
	for i := 1; i < len(days); i++ {
		prev, cur := pairs[days[i-1]], pairs[days[i]]
		retA = append(retA, math.Log(cur.a/prev.a))
		retB = append(retB, math.Log(cur.b/prev.b))
	}
	return retA, retB
}

func expectedBars(lookbackDays int, tf models.Timeframe) int {
	perDay := 1
	switch tf {
	case models.Timeframe1m:
		perDay = 24 * 60
	case models.Timeframe5m:
		perDay = 24 * 12
	case models.Timeframe1h:
		perDay = 24
	}
	return lookbackDays * perDay
}

func tail(bars []models.PriceBar, n int) []models.PriceBar {
	if len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
