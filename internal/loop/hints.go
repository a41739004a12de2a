package loop

import (
	"context"

	"github.com/aurumdesk/riskgate/models"
)

// tableHints is the built-in hint source: a static remediation table keyed by
// breached metric, with regime-specific overrides where the advice differs.
// Hints are plain text for the proposer; the gate never sees them.
type tableHints struct {
	byMetric map[string]string
	byRegime map[string]map[string]string
}

// NewTableHints returns the default static hint source.
func NewTableHints() HintSource {
	return &tableHints{
		byMetric: map[string]string{
			models.MetricSyntheticData:          "live market data is unavailable; wait for a real provider or rerun with synthetic data explicitly allowed",
			models.MetricStopLossMissing:        "attach a stop loss; plans without one are never approved",
			models.MetricStopDistance:           "move the stop inside the allowed distance band around the entry mid",
			models.MetricPositionUtilization:    "cut total size so the combined position fits under the book limit",
			models.MetricIncrementalUtilization: "reduce this ticket or split it across sessions",
			models.MetricLiquiditySpread:        "spread is above the calibrated cap; shrink size or wait for tighter quotes",
			models.MetricStressVar:              "stressed loss exceeds the desk limit; add a hedge leg or reduce exposure",
			models.MetricDailyDrawdown:          "today's loss budget is nearly spent; size down or stand aside until tomorrow",
			models.MetricCorrelationAnomaly:     "cross-asset correlation has left its expected band; treat hedge assumptions as unreliable",
		},
		byRegime: map[string]map[string]string{
			"high_vol": {
				models.MetricStopDistance: "volatility is elevated; widen the stop toward the ATR-based maximum instead of tightening it",
				models.MetricStressVar:    "stressed loss exceeds the desk limit and volatility is elevated; prefer hedging over resizing",
			},
		},
	}
}

// Hint returns the remediation text for a breached metric, preferring a
// regime-specific entry.
func (h *tableHints) Hint(_ context.Context, metric, regime string) (string, bool) {
	if overrides, ok := h.byRegime[regime]; ok {
		if text, ok := overrides[metric]; ok {
			return text, true
		}
	}
	text, ok := h.byMetric[metric]
	return text, ok
}
