// Package gate evaluates a proposed plan against a risk snapshot and the
// desk's hard limits. Evaluate is a pure function: no I/O, no clock, no
// hidden configuration, so identical inputs always produce identical
// results. Policy violations come back as Breach values, never as errors.
package gate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aurumdesk/riskgate/models"
)

// ErrInvalidPlan marks structurally malformed input. Fatal for the call,
// never retried; distinct from a policy rejection.
var ErrInvalidPlan = errors.New("invalid plan")

// Evaluate checks plan against snap and cfg in a fixed order so rejection
// reports are reproducible. state carries the desk's current exposure.
func Evaluate(plan models.Plan, snap *models.RiskSnapshot, cfg models.ThresholdConfig, state models.PositionState) (models.GateResult, error) {
	if err := validate(plan); err != nil {
		return models.GateResult{Status: models.StatusInvalid}, err
	}

	var breaches []models.Breach

	// Provenance: never approve a plan against fabricated inputs unless the
	// caller explicitly opted in.
	if snap.Synthetic && !cfg.AllowSynthetic {
		breaches = append(breaches, models.Breach{
			MetricName:      models.MetricSyntheticData,
			ObservedValue:   1,
			LimitValue:      0,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionWaitForLiquidity,
		})
	}

	breaches = append(breaches, checkStop(plan, snap, cfg)...)
	breaches = append(breaches, checkUtilization(plan, cfg, state)...)
	breaches = append(breaches, checkLiquidity(snap, cfg)...)
	breaches = append(breaches, checkStressVar(plan, snap, cfg, state)...)
	breaches = append(breaches, checkDrawdown(plan, cfg, state)...)
	breaches = append(breaches, checkCorrelations(snap, cfg)...)

	status := models.StatusApproved
	for _, b := range breaches {
		if b.Severity == models.SeverityBlocking {
			status = models.StatusRejected
			break
		}
	}

	return models.GateResult{
		Status:       status,
		Breaches:     breaches,
		SnapshotAsOf: snap.AsOf,
	}, nil
}

func validate(plan models.Plan) error {
	for name, v := range map[string]float64{
		"size_oz":    plan.SizeOz,
		"entry_low":  plan.EntryLow,
		"entry_high": plan.EntryHigh,
		"stop_loss":  plan.StopLoss,
		"target":     plan.Target,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidPlan, name)
		}
	}
	if plan.SizeOz <= 0 {
		return fmt.Errorf("%w: size_oz %.4f must be positive", ErrInvalidPlan, plan.SizeOz)
	}
	if plan.EntryLow <= 0 || plan.EntryHigh <= 0 {
		return fmt.Errorf("%w: entry band must be positive", ErrInvalidPlan)
	}
	if plan.EntryLow > plan.EntryHigh {
		return fmt.Errorf("%w: inverted entry band [%.4f, %.4f]", ErrInvalidPlan, plan.EntryLow, plan.EntryHigh)
	}
	if plan.StopLoss < 0 {
		return fmt.Errorf("%w: negative stop_loss", ErrInvalidPlan)
	}
	if plan.Direction != models.DirectionLong && plan.Direction != models.DirectionShort {
		return fmt.Errorf("%w: direction %q", ErrInvalidPlan, plan.Direction)
	}
	for i, leg := range plan.HedgeLegs {
		if math.IsNaN(leg.Weight) || leg.Weight < 0 {
			return fmt.Errorf("%w: hedge leg %d weight", ErrInvalidPlan, i)
		}
	}
	return nil
}

// checkStop enforces stop-loss presence and width. A missing or zero-width
// stop is a breach, not a silent default.
func checkStop(plan models.Plan, snap *models.RiskSnapshot, cfg models.ThresholdConfig) []models.Breach {
	if plan.StopLoss == 0 {
		return []models.Breach{{
			MetricName:      models.MetricStopLossMissing,
			ObservedValue:   0,
			LimitValue:      cfg.MinStopDistancePct,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionTightenStop,
		}}
	}

	distance := plan.StopDistancePct()
	minPct := cfg.MinStopDistancePct
	maxPct := cfg.MaxStopDistancePct

	// When configured, volatile markets may widen the allowed band up to an
	// ATR multiple of the entry price.
	if cfg.ATRStopMultiple > 0 && snap.ATR > 0 && plan.EntryMid() > 0 {
		atrPct := cfg.ATRStopMultiple * snap.ATR / plan.EntryMid() * 100
		if atrPct > maxPct {
			maxPct = atrPct
		}
	}

	if distance < minPct {
		return []models.Breach{{
			MetricName:      models.MetricStopDistance,
			ObservedValue:   distance,
			LimitValue:      minPct,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionTightenStop,
		}}
	}
	if distance > maxPct {
		return []models.Breach{{
			MetricName:      models.MetricStopDistance,
			ObservedValue:   distance,
			LimitValue:      maxPct,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionTightenStop,
		}}
	}
	return nil
}

func checkUtilization(plan models.Plan, cfg models.ThresholdConfig, state models.PositionState) []models.Breach {
	if cfg.MaxPositionOz <= 0 {
		return nil
	}

	var breaches []models.Breach
	total := state.ExistingPositionOz + plan.SizeOz
	if total/cfg.MaxPositionOz > 1.0 {
		breaches = append(breaches, models.Breach{
			MetricName:      models.MetricPositionUtilization,
			ObservedValue:   total,
			LimitValue:      cfg.MaxPositionOz,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionReduceSize,
		})
	}

	if cfg.MaxIncrementalUtilizationPct > 0 && plan.SizeOz/cfg.MaxPositionOz > cfg.MaxIncrementalUtilizationPct {
		breaches = append(breaches, models.Breach{
			MetricName:      models.MetricIncrementalUtilization,
			ObservedValue:   plan.SizeOz,
			LimitValue:      cfg.MaxIncrementalUtilizationPct * cfg.MaxPositionOz,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionReduceSize,
		})
	}
	return breaches
}

func checkLiquidity(snap *models.RiskSnapshot, cfg models.ThresholdConfig) []models.Breach {
	capBps := snap.EffectiveSpreadCapBps(cfg)
	// Strictly greater fails; a spread exactly at the cap passes.
	if snap.LiquiditySpreadBps > capBps {
		return []models.Breach{{
			MetricName:      models.MetricLiquiditySpread,
			ObservedValue:   snap.LiquiditySpreadBps,
			LimitValue:      capBps,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionWaitForLiquidity,
		}}
	}
	return nil
}

// checkStressVar projects the loss of the combined position under the fixed
// shock scenario. Hedge legs offset exposure by their summed weight, capped
// at full coverage.
func checkStressVar(plan models.Plan, snap *models.RiskSnapshot, cfg models.ThresholdConfig, state models.PositionState) []models.Breach {
	if cfg.MaxStressVarUSD <= 0 || snap.LatestPrice <= 0 {
		return nil
	}

	exposure := combinedExposureOz(plan, state)
	shock := math.Abs(cfg.StressShockPct)
	if shock == 0 {
		shock = 0.05
	}
	projectedLoss := math.Abs(exposure) * snap.LatestPrice * shock

	if projectedLoss > cfg.MaxStressVarUSD {
		return []models.Breach{{
			MetricName:      models.MetricStressVar,
			ObservedValue:   projectedLoss,
			LimitValue:      cfg.MaxStressVarUSD,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionHedge,
		}}
	}
	return nil
}

// checkDrawdown compares today's realized loss plus the plan's worst-case
// unrealized loss to the stop against the daily drawdown budget.
func checkDrawdown(plan models.Plan, cfg models.ThresholdConfig, state models.PositionState) []models.Breach {
	if cfg.MaxDailyDrawdownPct <= 0 || cfg.CapitalUSD <= 0 {
		return nil
	}

	worstToStop := worstCaseToStopUSD(plan, cfg)
	realizedLoss := math.Max(0, -state.RealizedPnLTodayUSD)
	observed := realizedLoss + worstToStop
	limit := cfg.MaxDailyDrawdownPct / 100 * cfg.CapitalUSD

	if observed > limit {
		return []models.Breach{{
			MetricName:      models.MetricDailyDrawdown,
			ObservedValue:   observed,
			LimitValue:      limit,
			Severity:        models.SeverityBlocking,
			SuggestedAction: models.ActionReduceSize,
		}}
	}
	return nil
}

// checkCorrelations flags cross-asset correlations outside the expected
// band. Advisory unless strict correlation mode is on. Assets are visited
// in sorted order so breach sequences stay deterministic.
func checkCorrelations(snap *models.RiskSnapshot, cfg models.ThresholdConfig) []models.Breach {
	if len(cfg.ExpectedCorrelations) == 0 || cfg.CorrelationTolerance <= 0 {
		return nil
	}

	assets := make([]string, 0, len(cfg.ExpectedCorrelations))
	for asset := range cfg.ExpectedCorrelations {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	severity := models.SeverityAdvisory
	if cfg.StrictCorrelation {
		severity = models.SeverityBlocking
	}

	var breaches []models.Breach
	for _, asset := range assets {
		observed, ok := snap.CorrelationByAsset[asset]
		if !ok {
			continue
		}
		expected := cfg.ExpectedCorrelations[asset]
		if math.Abs(observed-expected) > cfg.CorrelationTolerance {
			breaches = append(breaches, models.Breach{
				MetricName:      models.MetricCorrelationAnomaly,
				ObservedValue:   observed,
				LimitValue:      cfg.CorrelationTolerance,
				Severity:        severity,
				SuggestedAction: models.ActionRejectCorrelation,
			})
		}
	}
	return breaches
}

func combinedExposureOz(plan models.Plan, state models.PositionState) float64 {
	signed := plan.SizeOz
	if plan.Direction == models.DirectionShort {
		signed = -signed
	}
	exposure := state.ExistingPositionOz + signed

	var hedgeWeight float64
	for _, leg := range plan.HedgeLegs {
		hedgeWeight += leg.Weight
	}
	if hedgeWeight > 1 {
		hedgeWeight = 1
	}
	return exposure * (1 - hedgeWeight)
}

func worstCaseToStopUSD(plan models.Plan, cfg models.ThresholdConfig) float64 {
	mid := plan.EntryMid()
	if plan.StopLoss > 0 {
		return math.Abs(mid-plan.StopLoss) * plan.SizeOz
	}
	// No stop set: assume the widest permitted stop distance. The missing
	// stop is already a breach of its own.
	return mid * cfg.MaxStopDistancePct / 100 * plan.SizeOz
}
