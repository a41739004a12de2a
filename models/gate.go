package models

import (
	"math"
	"time"
)

// Direction of a proposed trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// HedgeLeg is an optional offsetting leg attached to a plan.
type HedgeLeg struct {
	Leg       string  `json:"leg"`
	Weight    float64 `json:"weight"`
	Rationale string  `json:"rationale,omitempty"`
}

// Plan is a proposed trade produced by an external proposer. The gate never
// mutates a plan; a revision is a new value.
type Plan struct {
	ID         string     `json:"id,omitempty"`
	Instrument string     `json:"instrument"`
	Direction  Direction  `json:"direction"`
	SizeOz     float64    `json:"size_oz"`
	EntryLow   float64    `json:"entry_low"`
	EntryHigh  float64    `json:"entry_high"`
	StopLoss   float64    `json:"stop_loss,omitempty"`
	Target     float64    `json:"target,omitempty"`
	HedgeLegs  []HedgeLeg `json:"hedge_legs,omitempty"`
}

// EntryMid returns the middle of the entry band.
func (p Plan) EntryMid() float64 {
	return (p.EntryLow + p.EntryHigh) / 2
}

// StopDistancePct returns the stop distance as a percentage of the entry
// mid, or 0 when no stop is set.
func (p Plan) StopDistancePct() float64 {
	mid := p.EntryMid()
	if p.StopLoss <= 0 || mid <= 0 {
		return 0
	}
	return math.Abs(mid-p.StopLoss) / mid * 100
}

// ThresholdConfig carries the hard limits for one evaluation. It is loaded
// once at startup and passed explicitly into every call; the evaluator never
// reads configuration on its own.
type ThresholdConfig struct {
	MaxPositionOz                float64            `json:"max_position_oz"`
	MaxIncrementalUtilizationPct float64            `json:"max_incremental_utilization_pct"`
	MaxStressVarUSD              float64            `json:"max_stress_var_usd"`
	MaxDailyDrawdownPct          float64            `json:"max_daily_drawdown_pct"`
	MinStopDistancePct           float64            `json:"min_stop_distance_pct"`
	MaxStopDistancePct           float64            `json:"max_stop_distance_pct"`
	ConfiguredSpreadCapBps       float64            `json:"configured_spread_cap_bps"`
	CalibrationFloorBps          float64            `json:"calibration_floor_bps"`
	StressShockPct               float64            `json:"stress_shock_pct"`
	CapitalUSD                   float64            `json:"capital_usd"`
	ATRStopMultiple              float64            `json:"atr_stop_multiple,omitempty"`
	StrictCorrelation            bool               `json:"strict_correlation"`
	CorrelationTolerance         float64            `json:"correlation_tolerance"`
	ExpectedCorrelations         map[string]float64 `json:"expected_correlations,omitempty"`
	AllowSynthetic               bool               `json:"allow_synthetic"`
}

// Severity of a breach. Advisory breaches are attached for observability and
// never block approval on their own.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// SuggestedAction is the closed remediation vocabulary downstream consumers
// branch on. Never free text.
type SuggestedAction string

const (
	ActionReduceSize        SuggestedAction = "reduce_size"
	ActionTightenStop       SuggestedAction = "tighten_stop"
	ActionHedge             SuggestedAction = "hedge"
	ActionWaitForLiquidity  SuggestedAction = "wait_for_liquidity"
	ActionRejectCorrelation SuggestedAction = "reject_correlation_anomaly"
)

// Metric names carried by breaches, in gate evaluation order.
const (
	MetricSyntheticData          = "synthetic_data"
	MetricStopLossMissing        = "stop_loss_missing"
	MetricStopDistance           = "stop_distance"
	MetricPositionUtilization    = "position_utilization"
	MetricIncrementalUtilization = "incremental_utilization"
	MetricLiquiditySpread        = "liquidity_spread"
	MetricStressVar              = "stress_var"
	MetricDailyDrawdown          = "daily_drawdown"
	MetricCorrelationAnomaly     = "correlation_anomaly"
)

// Breach describes one violated constraint. Breaches are data, not errors.
type Breach struct {
	MetricName      string          `json:"metric_name"`
	ObservedValue   float64         `json:"observed_value"`
	LimitValue      float64         `json:"limit_value"`
	Severity        Severity        `json:"severity"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
}

// GateStatus is the closed set of terminal gate outcomes.
type GateStatus string

const (
	StatusApproved  GateStatus = "approved"
	StatusRejected  GateStatus = "rejected"
	StatusExhausted GateStatus = "exhausted"
	StatusInvalid   GateStatus = "invalid"
)

// GateResult is the terminal outcome of one evaluation. Breaches keep the
// fixed evaluation order so rejection reports are reproducible.
type GateResult struct {
	Status       GateStatus `json:"status"`
	Breaches     []Breach   `json:"breaches"`
	SnapshotAsOf time.Time  `json:"snapshot_as_of"`
	Round        int        `json:"round"`
}

// Approved reports whether the plan passed all blocking checks.
func (r GateResult) Approved() bool {
	return r.Status == StatusApproved
}

// BlockingBreaches returns only the breaches that forced a rejection.
func (r GateResult) BlockingBreaches() []Breach {
	var out []Breach
	for _, b := range r.Breaches {
		if b.Severity == SeverityBlocking {
			out = append(out, b)
		}
	}
	return out
}

// PositionState is the desk's current exposure, supplied by the caller.
type PositionState struct {
	ExistingPositionOz  float64 `json:"existing_position_oz"`
	RealizedPnLTodayUSD float64 `json:"realized_pnl_today_usd"`
}

// TrajectoryEntry is one append-only record of a rejected round. Entries are
// never mutated after write.
type TrajectoryEntry struct {
	Lineage      string    `json:"lineage"`
	Timestamp    time.Time `json:"timestamp"`
	Round        int       `json:"round"`
	RejectedPlan Plan      `json:"rejected_plan"`
	Breaches     []Breach  `json:"breaches"`
	RevisedPlan  *Plan     `json:"revised_plan,omitempty"`
}
