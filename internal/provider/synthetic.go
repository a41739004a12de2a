package provider

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/models"
)

// Synthetic generates a deterministic placeholder series when every real
// provider is exhausted. It is only reachable through an explicit
// AllowSynthetic opt-in and everything it produces carries Synthetic=true.
type Synthetic struct {
	basePrice float64
	logger    zerolog.Logger
}

// NewSynthetic creates a synthetic generator anchored at basePrice.
func NewSynthetic(basePrice float64) *Synthetic {
	if basePrice <= 0 {
		basePrice = 2400 // spot gold neighborhood
	}
	return &Synthetic{
		basePrice: basePrice,
		logger:    log.With().Str("component", "synthetic_provider").Logger(),
	}
}

func (s *Synthetic) Name() string  { return "synthetic" }
func (s *Synthetic) Priority() int { return math.MaxInt32 }
func (s *Synthetic) Capabilities() Capabilities {
	return Capabilities{Streaming: false, Intraday: true}
}

// FetchBars produces a seeded random walk so repeated calls for the same
// request are identical.
func (s *Synthetic) FetchBars(_ context.Context, symbol string, start, end time.Time, tf models.Timeframe) ([]models.PriceBar, error) {
	if err := validateWindow(start, end, tf); err != nil {
		return nil, err
	}

	step := tf.Duration()
	rng := rand.New(rand.NewSource(seed(symbol, start, tf)))

	s.logger.Warn().Str("symbol", symbol).Msg("Generating synthetic placeholder series")

	var bars []models.PriceBar
	price := s.basePrice
	for ts := start.UTC().Truncate(step); ts.Before(end); ts = ts.Add(step) {
		drift := price * 0.004 * (rng.Float64() - 0.5)
		open := price
		close := price + drift
		high := math.Max(open, close) * (1 + 0.001*rng.Float64())
		low := math.Min(open, close) * (1 - 0.001*rng.Float64())
		bars = append(bars, models.PriceBar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + math.Floor(rng.Float64()*9000),
		})
		price = close
	}
	if len(bars) == 0 {
		return nil, ErrEmptyData
	}
	return bars, nil
}

// FetchQuote derives a quote from the last synthetic bar with a fixed
// 10 bps spread around the close.
func (s *Synthetic) FetchQuote(ctx context.Context, symbol string) (models.QuoteSnapshot, error) {
	now := time.Now().UTC()
	bars, err := s.FetchBars(ctx, symbol, now.Add(-48*time.Hour), now, models.Timeframe1h)
	if err != nil {
		return models.QuoteSnapshot{}, err
	}
	last := bars[len(bars)-1]
	half := last.Close * 0.0005
	return models.QuoteSnapshot{
		Bid:       last.Close - half,
		Ask:       last.Close + half,
		Last:      last.Close,
		Volume:    last.Volume,
		Timestamp: now,
		Provider:  s.Name(),
		Synthetic: true,
	}, nil
}

func seed(symbol string, start time.Time, tf models.Timeframe) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(tf))
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	return int64(h.Sum64())
}
