package models

import (
	"fmt"
	"time"
)

// Timeframe identifies the bar interval of a price series.
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe1d Timeframe = "1d"
)

// Valid reports whether the timeframe is one of the supported intervals.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1m, Timeframe5m, Timeframe1h, Timeframe1d:
		return true
	}
	return false
}

// Duration returns the wall-clock span of a single bar.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	}
	return 0
}

// PeriodsPerYear returns the annualization factor for return series of this
// timeframe. Intraday factors assume a 6.5h session over 252 trading days.
func (tf Timeframe) PeriodsPerYear() float64 {
	switch tf {
	case Timeframe1m:
		return 252 * 390
	case Timeframe5m:
		return 252 * 78
	case Timeframe1h:
		return 252 * 6.5
	case Timeframe1d:
		return 252
	}
	return 0
}

// PriceBar represents a single OHLCV bar. Bars are value types and are never
// mutated once produced by a provider.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// ValidateSeries checks ordering and per-bar OHLC sanity for a bar series.
func ValidateSeries(bars []PriceBar) error {
	for i, bar := range bars {
		if bar.Open < 0 || bar.High < 0 || bar.Low < 0 || bar.Close < 0 || bar.Volume < 0 {
			return fmt.Errorf("bar %d: negative field", i)
		}
		if bar.High < bar.Open || bar.High < bar.Close {
			return fmt.Errorf("bar %d: high %.6f below open/close", i, bar.High)
		}
		if bar.Low > bar.Open || bar.Low > bar.Close {
			return fmt.Errorf("bar %d: low %.6f above open/close", i, bar.Low)
		}
		if i > 0 && !bar.Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bar %d: timestamp %s not after previous", i, bar.Timestamp)
		}
	}
	return nil
}

// QuoteSnapshot is the latest quote context for a symbol. Synthetic marks
// data that was not traced to a live provider call.
type QuoteSnapshot struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
	Synthetic bool      `json:"synthetic"`
}

// SpreadBps returns the bid/ask spread in basis points of the mid price, or
// 0 when either side is missing.
func (q QuoteSnapshot) SpreadBps() float64 {
	if q.Bid <= 0 || q.Ask <= 0 || q.Ask < q.Bid {
		return 0
	}
	mid := (q.Bid + q.Ask) / 2
	return (q.Ask - q.Bid) / mid * 10000
}

// Provenance records which provider served a result and which providers
// failed on the way. Failures are recorded, not surfaced as errors.
type Provenance struct {
	Provider        string    `json:"provider"`
	RetrievedAt     time.Time `json:"retrieved_at"`
	Synthetic       bool      `json:"synthetic"`
	FailedProviders []string  `json:"failed_providers,omitempty"`
}

// ScenarioOutcome is the projected effect of a deterministic price shock on
// the combined position. Advisory context only.
type ScenarioOutcome struct {
	Label           string  `json:"label"`
	ShockPct        float64 `json:"shock_pct"`
	ProjectedPrice  float64 `json:"projected_price"`
	ProjectedPnLUSD float64 `json:"projected_pnl_usd"`
}

// RiskSnapshot holds the derived risk metrics for one evaluation cycle. It is
// built from the same historical window as the request and is read-only
// afterwards.
type RiskSnapshot struct {
	Symbol                string             `json:"symbol"`
	ATR                   float64            `json:"atr"`
	AnnualizedVol         float64            `json:"annualized_vol"`
	CorrelationByAsset    map[string]float64 `json:"correlation_by_asset"`
	LiquiditySpreadBps    float64            `json:"liquidity_spread_bps"`
	LiquiditySpreadP95Bps float64            `json:"liquidity_spread_p95_bps"`
	LatestPrice           float64            `json:"latest_price"`
	HistoricalVaR99       float64            `json:"historical_var_99"`
	ScenarioOutcomes      []ScenarioOutcome  `json:"scenario_outcomes,omitempty"`
	AsOf                  time.Time          `json:"as_of"`
	LookbackDays          int                `json:"lookback_days"`
	Synthetic             bool               `json:"synthetic"`
}

// EffectiveSpreadCapBps ties the liquidity limit to the lookback window: the
// cap never drops below the configured cap or the calibration floor.
func (s *RiskSnapshot) EffectiveSpreadCapBps(cfg ThresholdConfig) float64 {
	capBps := cfg.ConfiguredSpreadCapBps
	if cfg.CalibrationFloorBps > capBps {
		capBps = cfg.CalibrationFloorBps
	}
	if s.LiquiditySpreadP95Bps > capBps {
		capBps = s.LiquiditySpreadP95Bps
	}
	return capBps
}
