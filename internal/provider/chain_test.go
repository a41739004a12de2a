package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurumdesk/riskgate/models"
)

// fakeProvider fails its first failN calls, then serves bars/quote.
type fakeProvider struct {
	name     string
	priority int
	caps     Capabilities
	failN    int32
	bars     []models.PriceBar
	quote    models.QuoteSnapshot
	calls    atomic.Int32
}

func (f *fakeProvider) Name() string               { return f.name }
func (f *fakeProvider) Priority() int              { return f.priority }
func (f *fakeProvider) Capabilities() Capabilities { return f.caps }

func (f *fakeProvider) FetchBars(ctx context.Context, _ string, _, _ time.Time, _ models.Timeframe) ([]models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.calls.Add(1) <= f.failN {
		return nil, errors.New("upstream 502")
	}
	return f.bars, nil
}

func (f *fakeProvider) FetchQuote(ctx context.Context, _ string) (models.QuoteSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.QuoteSnapshot{}, err
	}
	if f.calls.Add(1) <= f.failN {
		return models.QuoteSnapshot{}, errors.New("upstream 502")
	}
	return f.quote, nil
}

func dailyBars(end time.Time, n int) []models.PriceBar {
	bars := make([]models.PriceBar, 0, n)
	price := 2400.0
	for i := n - 1; i >= 0; i-- {
		ts := end.Add(-time.Duration(i) * 24 * time.Hour)
		bars = append(bars, models.PriceBar{
			Timestamp: ts,
			Open:      price,
			High:      price + 5,
			Low:       price - 5,
			Close:     price + 1,
			Volume:    1000,
		})
		price++
	}
	return bars
}

func testChain(t *testing.T, now time.Time, providers ...Provider) *Chain {
	t.Helper()
	return NewChain(ChainOptions{
		Providers:      providers,
		Synthetic:      NewSynthetic(2400),
		Cache:          NewCache(2 * time.Minute),
		MaxRetries:     1,
		AttemptTimeout: time.Second,
		RetryInterval:  time.Millisecond,
		Staleness:      48 * time.Hour,
		Clock:          func() time.Time { return now },
	})
}

func TestHistoryFallsThroughToNextProvider(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, failN: 100}
	beta := &fakeProvider{name: "beta", priority: 2, caps: Capabilities{Intraday: true}, bars: dailyBars(now, 20)}
	chain := testChain(t, now, alpha, beta)

	bars, prov, err := chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{})
	require.NoError(t, err)
	assert.Len(t, bars, 20)
	assert.Equal(t, "beta", prov.Provider)
	assert.False(t, prov.Synthetic)
	assert.Equal(t, []string{"alpha"}, prov.FailedProviders)
	// MaxRetries=1 means two attempts against alpha before advancing.
	assert.Equal(t, int32(2), alpha.calls.Load())
}

func TestHistoryRecoversWithinRetryBudget(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, failN: 1, bars: dailyBars(now, 20)}
	chain := testChain(t, now, alpha)

	_, prov, err := chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alpha", prov.Provider)
	assert.Empty(t, prov.FailedProviders)
	assert.Equal(t, int32(2), alpha.calls.Load())
}

func TestHistoryExhaustionWithoutSyntheticOptIn(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, failN: 100}
	chain := testChain(t, now, alpha)

	_, _, err := chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestHistorySyntheticFallbackIsOptIn(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, failN: 100}
	chain := testChain(t, now, alpha)

	bars, prov, err := chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{AllowSynthetic: true})
	require.NoError(t, err)
	assert.NotEmpty(t, bars)
	assert.True(t, prov.Synthetic)
	assert.Equal(t, "synthetic", prov.Provider)
	assert.Equal(t, []string{"alpha"}, prov.FailedProviders)
}

func TestHistoryStaleCurrentQueryAdvances(t *testing.T) {
	now := time.Now().UTC()
	stale := &fakeProvider{name: "stale", priority: 1, caps: Capabilities{Intraday: true}, bars: dailyBars(now.Add(-96*time.Hour), 20)}
	fresh := &fakeProvider{name: "fresh", priority: 2, caps: Capabilities{Intraday: true}, bars: dailyBars(now, 20)}
	chain := testChain(t, now, stale, fresh)

	_, prov, err := chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fresh", prov.Provider)
	assert.Equal(t, []string{"stale"}, prov.FailedProviders)
}

func TestHistorySkipsDailyOnlyProviderForIntraday(t *testing.T) {
	now := time.Now().UTC()
	dailyOnly := &fakeProvider{name: "daily", priority: 1, caps: Capabilities{Intraday: false}, bars: dailyBars(now, 20)}
	intraday := &fakeProvider{name: "intra", priority: 2, caps: Capabilities{Intraday: true}, bars: dailyBars(now, 20)}
	chain := testChain(t, now, dailyOnly, intraday)

	_, prov, err := chain.History(context.Background(), "XAU/USD", now.Add(-20*time.Hour), now, models.Timeframe1h, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "intra", prov.Provider)
	assert.Zero(t, dailyOnly.calls.Load())
}

func TestHistoryPropagatesCancellation(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, bars: dailyBars(now, 20)}
	chain := testChain(t, now, alpha)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := chain.History(ctx, "XAU/USD", now.AddDate(0, 0, -20), now, models.Timeframe1d, FetchOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrDataUnavailable)
}

func TestHistoryRejectsBadWindow(t *testing.T) {
	now := time.Now().UTC()
	chain := testChain(t, now, &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}})

	_, _, err := chain.History(context.Background(), "XAU/USD", now, now.AddDate(0, 0, -1), models.Timeframe1d, FetchOptions{})
	require.Error(t, err)

	_, _, err = chain.History(context.Background(), "XAU/USD", now.AddDate(0, 0, -1), now, models.Timeframe("2h"), FetchOptions{})
	require.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestHistoryCachesByRequestKey(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, bars: dailyBars(now, 20)}
	chain := testChain(t, now, alpha)

	start, end := now.AddDate(0, 0, -20), now
	_, _, err := chain.History(context.Background(), "XAU/USD", start, end, models.Timeframe1d, FetchOptions{})
	require.NoError(t, err)
	_, _, err = chain.History(context.Background(), "XAU/USD", start, end, models.Timeframe1d, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), alpha.calls.Load())

	_, _, err = chain.History(context.Background(), "XAU/USD", start, end, models.Timeframe1d, FetchOptions{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), alpha.calls.Load())
}

func TestQuoteFallsThrough(t *testing.T) {
	now := time.Now().UTC()
	alpha := &fakeProvider{name: "alpha", priority: 1, caps: Capabilities{Intraday: true}, failN: 100}
	beta := &fakeProvider{
		name: "beta", priority: 2, caps: Capabilities{Intraday: true},
		quote: models.QuoteSnapshot{Bid: 2399, Ask: 2401, Last: 2400, Timestamp: now, Provider: "beta"},
	}
	chain := testChain(t, now, alpha, beta)

	quote, err := chain.Quote(context.Background(), "XAU/USD", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "beta", quote.Provider)
	assert.False(t, quote.Synthetic)
}

func TestQuoteSkipsStaleQuotes(t *testing.T) {
	now := time.Now().UTC()
	stale := &fakeProvider{
		name: "stale", priority: 1, caps: Capabilities{Intraday: true},
		quote: models.QuoteSnapshot{Bid: 2399, Ask: 2401, Timestamp: now.Add(-72 * time.Hour), Provider: "stale"},
	}
	chain := testChain(t, now, stale)

	_, err := chain.Quote(context.Background(), "XAU/USD", FetchOptions{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}
