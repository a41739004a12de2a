package gate

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurumdesk/riskgate/models"
)

func baseConfig() models.ThresholdConfig {
	return models.ThresholdConfig{
		MaxPositionOz:                5000,
		MaxIncrementalUtilizationPct: 0.5,
		MaxStressVarUSD:              3_000_000,
		MaxDailyDrawdownPct:          3.0,
		MinStopDistancePct:           0.2,
		MaxStopDistancePct:           5.0,
		ConfiguredSpreadCapBps:       50,
		CalibrationFloorBps:          40,
		StressShockPct:               -0.05,
		CapitalUSD:                   100_000_000,
		CorrelationTolerance:         0.4,
		ExpectedCorrelations:         map[string]float64{"DXY": -0.6},
	}
}

func baseSnapshot() *models.RiskSnapshot {
	return &models.RiskSnapshot{
		Symbol:                "XAU/USD",
		ATR:                   20,
		AnnualizedVol:         0.15,
		CorrelationByAsset:    map[string]float64{"DXY": -0.55},
		LiquiditySpreadBps:    30,
		LiquiditySpreadP95Bps: 45,
		LatestPrice:           2400,
		AsOf:                  time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
		LookbackDays:          14,
	}
}

func basePlan() models.Plan {
	return models.Plan{
		ID:         "plan-1",
		Instrument: "XAU/USD",
		Direction:  models.DirectionLong,
		SizeOz:     1000,
		EntryLow:   2395,
		EntryHigh:  2405,
		StopLoss:   2380,
		Target:     2450,
	}
}

func TestEvaluateApprovesCleanPlan(t *testing.T) {
	result, err := Evaluate(basePlan(), baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
	assert.Empty(t, result.Breaches)
	assert.Equal(t, baseSnapshot().AsOf, result.SnapshotAsOf)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	plan := basePlan()
	plan.SizeOz = 6000 // trips several checks

	first, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	second, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateOversizedPosition(t *testing.T) {
	plan := basePlan()
	plan.SizeOz = 6000

	result, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)

	var found *models.Breach
	for i := range result.Breaches {
		if result.Breaches[i].MetricName == models.MetricPositionUtilization {
			found = &result.Breaches[i]
		}
	}
	require.NotNil(t, found, "expected a position_utilization breach")
	assert.Equal(t, 6000.0, found.ObservedValue)
	assert.Equal(t, 5000.0, found.LimitValue)
	assert.Equal(t, models.SeverityBlocking, found.Severity)
	assert.Equal(t, models.ActionReduceSize, found.SuggestedAction)
}

func TestEvaluateIncrementalUtilization(t *testing.T) {
	plan := basePlan()
	plan.SizeOz = 3000 // 60% of the limit in one ticket

	result, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, models.MetricIncrementalUtilization, result.Breaches[0].MetricName)
	assert.Equal(t, 3000.0, result.Breaches[0].ObservedValue)
	assert.Equal(t, 2500.0, result.Breaches[0].LimitValue)
}

func TestEvaluateMissingStop(t *testing.T) {
	plan := basePlan()
	plan.StopLoss = 0
	plan.Target = 0 // independent of other optional fields

	result, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	require.NotEmpty(t, result.Breaches)
	assert.Equal(t, models.MetricStopLossMissing, result.Breaches[0].MetricName)
	assert.Equal(t, models.ActionTightenStop, result.Breaches[0].SuggestedAction)
}

func TestEvaluateStopDistanceBounds(t *testing.T) {
	tests := []struct {
		name     string
		stop     float64
		rejected bool
	}{
		{"too tight", 2399, true},    // 0.04% of entry mid
		{"too wide", 2160, true},     // 10% of entry mid
		{"inside band", 2380, false}, // 0.83%
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basePlan()
			plan.StopLoss = tt.stop
			result, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
			require.NoError(t, err)
			if tt.rejected {
				assert.Equal(t, models.StatusRejected, result.Status)
				assert.Equal(t, models.MetricStopDistance, result.Breaches[0].MetricName)
			} else {
				assert.Equal(t, models.StatusApproved, result.Status)
			}
		})
	}
}

func TestEvaluateCalibratedSpreadCap(t *testing.T) {
	cfg := baseConfig() // configured 50, floor 40
	snap := baseSnapshot()
	snap.LiquiditySpreadP95Bps = 74

	assert.Equal(t, 74.0, snap.EffectiveSpreadCapBps(cfg))

	// Strictly greater than the calibrated cap fails.
	snap.LiquiditySpreadBps = 74.2
	result, err := Evaluate(basePlan(), snap, cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, models.MetricLiquiditySpread, result.Breaches[0].MetricName)
	assert.Equal(t, 74.2, result.Breaches[0].ObservedValue)
	assert.Equal(t, 74.0, result.Breaches[0].LimitValue)
	assert.Equal(t, models.ActionWaitForLiquidity, result.Breaches[0].SuggestedAction)

	// Below the cap passes this check.
	snap.LiquiditySpreadBps = 70
	result, err = Evaluate(basePlan(), snap, cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
}

func TestEvaluateStressVar(t *testing.T) {
	plan := basePlan()
	cfg := baseConfig()
	cfg.MaxStressVarUSD = 100_000 // 1000oz * 2400 * 5% = 120k loss

	result, err := Evaluate(plan, baseSnapshot(), cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	require.Len(t, result.Breaches, 1)
	breach := result.Breaches[0]
	assert.Equal(t, models.MetricStressVar, breach.MetricName)
	assert.InDelta(t, 120_000, breach.ObservedValue, 1e-3)
	assert.Equal(t, models.ActionHedge, breach.SuggestedAction)

	// A full hedge removes the stressed exposure.
	plan.HedgeLegs = []models.HedgeLeg{{Leg: "XAU short futures", Weight: 1.0}}
	result, err = Evaluate(plan, baseSnapshot(), cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
}

func TestEvaluateDailyDrawdown(t *testing.T) {
	cfg := baseConfig()
	cfg.CapitalUSD = 1_000_000 // 3% budget = 30k

	state := models.PositionState{RealizedPnLTodayUSD: -25_000}
	// Worst case to stop: 20 * 1000oz = 20k; 45k total > 30k budget.
	result, err := Evaluate(basePlan(), baseSnapshot(), cfg, state)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, models.MetricDailyDrawdown, result.Breaches[0].MetricName)
	assert.InDelta(t, 45_000, result.Breaches[0].ObservedValue, 1e-9)
	assert.InDelta(t, 30_000, result.Breaches[0].LimitValue, 1e-9)
}

func TestEvaluateCorrelationAnomalyAdvisory(t *testing.T) {
	snap := baseSnapshot()
	snap.CorrelationByAsset["DXY"] = 0.3 // sign flip past tolerance

	result, err := Evaluate(basePlan(), snap, baseConfig(), models.PositionState{})
	require.NoError(t, err)
	// Advisory breaches ride along on an approved result.
	assert.Equal(t, models.StatusApproved, result.Status)
	require.Len(t, result.Breaches, 1)
	assert.Equal(t, models.MetricCorrelationAnomaly, result.Breaches[0].MetricName)
	assert.Equal(t, models.SeverityAdvisory, result.Breaches[0].Severity)
	assert.Equal(t, models.ActionRejectCorrelation, result.Breaches[0].SuggestedAction)
}

func TestEvaluateCorrelationAnomalyStrict(t *testing.T) {
	snap := baseSnapshot()
	snap.CorrelationByAsset["DXY"] = 0.3
	cfg := baseConfig()
	cfg.StrictCorrelation = true

	result, err := Evaluate(basePlan(), snap, cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, models.SeverityBlocking, result.Breaches[0].Severity)
}

func TestEvaluateSyntheticSnapshot(t *testing.T) {
	snap := baseSnapshot()
	snap.Synthetic = true

	result, err := Evaluate(basePlan(), snap, baseConfig(), models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, result.Status)
	assert.Equal(t, models.MetricSyntheticData, result.Breaches[0].MetricName)

	cfg := baseConfig()
	cfg.AllowSynthetic = true
	result, err = Evaluate(basePlan(), snap, cfg, models.PositionState{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.Status)
}

func TestEvaluateBreachOrderIsFixed(t *testing.T) {
	plan := basePlan()
	plan.StopLoss = 0   // check 1
	plan.SizeOz = 6000  // check 2 (both utilization breaches)
	snap := baseSnapshot()
	snap.LiquiditySpreadBps = 80 // check 3
	snap.CorrelationByAsset["DXY"] = 0.3

	result, err := Evaluate(plan, snap, baseConfig(), models.PositionState{})
	require.NoError(t, err)

	var names []string
	for _, b := range result.Breaches {
		names = append(names, b.MetricName)
	}
	assert.Equal(t, []string{
		models.MetricStopLossMissing,
		models.MetricPositionUtilization,
		models.MetricIncrementalUtilization,
		models.MetricLiquiditySpread,
		models.MetricCorrelationAnomaly,
	}, names)
}

func TestEvaluateInvalidPlans(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Plan)
	}{
		{"NaN size", func(p *models.Plan) { p.SizeOz = math.NaN() }},
		{"negative size", func(p *models.Plan) { p.SizeOz = -100 }},
		{"inverted entry band", func(p *models.Plan) { p.EntryLow, p.EntryHigh = p.EntryHigh, p.EntryLow }},
		{"negative stop", func(p *models.Plan) { p.StopLoss = -5 }},
		{"bad direction", func(p *models.Plan) { p.Direction = "sideways" }},
		{"NaN hedge weight", func(p *models.Plan) { p.HedgeLegs = []models.HedgeLeg{{Leg: "x", Weight: math.NaN()}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := basePlan()
			tt.mutate(&plan)
			result, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
			require.ErrorIs(t, err, ErrInvalidPlan)
			assert.Equal(t, models.StatusInvalid, result.Status)
		})
	}
}

func TestGateResultJSONRoundTrip(t *testing.T) {
	plan := basePlan()
	plan.SizeOz = 6000
	original, err := Evaluate(plan, baseSnapshot(), baseConfig(), models.PositionState{})
	require.NoError(t, err)
	original.Round = 2

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded models.GateResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}
