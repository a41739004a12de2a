// Package loop drives the revise-and-resubmit cycle between an external
// plan proposer and the gate evaluator. The controller owns the trajectory
// log and the round bound; it never inspects hint contents and never feeds
// hints to the evaluator.
package loop

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/gate"
	"github.com/aurumdesk/riskgate/internal/journal"
	"github.com/aurumdesk/riskgate/internal/metrics"
	"github.com/aurumdesk/riskgate/models"
)

// Hint is an opaque remediation suggestion passed through to the proposer.
type Hint struct {
	Metric string `json:"metric"`
	Text   string `json:"text"`
}

// HintSource supplies remediation hints keyed by the breached metric and a
// market regime descriptor. Optional; a nil source disables hints.
type HintSource interface {
	Hint(ctx context.Context, metric, regime string) (string, bool)
}

// Proposer supplies the initial plan and revisions after rejections. It is
// the external collaborator boundary: typically an LLM strategy agent, but
// the controller only ever sees Plan values.
type Proposer interface {
	Propose(ctx context.Context) (models.Plan, error)
	Revise(ctx context.Context, rejected models.Plan, breaches []models.Breach, hints []Hint) (models.Plan, error)
}

// Outcome is the terminal result of one plan lineage.
type Outcome struct {
	Lineage string            `json:"lineage"`
	Result  models.GateResult `json:"result"`
	Plan    models.Plan       `json:"plan"`
	Rounds  int               `json:"rounds"`
}

// Controller bounds the feedback loop. One Run call serves one plan lineage
// and is sequential by construction; independent lineages may run
// concurrently against the same controller.
type Controller struct {
	journal   journal.Journal
	hints     HintSource
	maxRounds int
	clock     func() time.Time
	logger    zerolog.Logger
}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	Journal   journal.Journal
	Hints     HintSource
	MaxRounds int
	Clock     func() time.Time
}

// NewController creates a feedback loop controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 3
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Journal == nil {
		opts.Journal = journal.NewMemory()
	}
	return &Controller{
		journal:   opts.Journal,
		hints:     opts.Hints,
		maxRounds: opts.MaxRounds,
		clock:     opts.Clock,
		logger:    log.With().Str("component", "feedback_loop").Logger(),
	}
}

// Run drives one lineage to a terminal state: approved, exhausted, or
// invalid. Cancellation is honored between rounds and propagated without
// partial journal writes.
func (c *Controller) Run(ctx context.Context, proposer Proposer, snap *models.RiskSnapshot, cfg models.ThresholdConfig, state models.PositionState) (Outcome, error) {
	lineage := uuid.NewString()
	regime := regimeDescriptor(snap)

	plan, err := proposer.Propose(ctx)
	if err != nil {
		return Outcome{Lineage: lineage}, err
	}

	for round := 1; round <= c.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return Outcome{Lineage: lineage, Rounds: round - 1}, err
		}

		result, err := gate.Evaluate(plan, snap, cfg, state)
		result.Round = round
		if err != nil {
			if errors.Is(err, gate.ErrInvalidPlan) {
				metrics.GateResults.WithLabelValues(string(models.StatusInvalid)).Inc()
				return Outcome{Lineage: lineage, Result: result, Plan: plan, Rounds: round}, err
			}
			return Outcome{Lineage: lineage, Rounds: round}, err
		}

		if result.Approved() {
			metrics.GateResults.WithLabelValues(string(models.StatusApproved)).Inc()
			metrics.LoopRounds.Observe(float64(round))
			c.logger.Info().Str("lineage", lineage).Int("round", round).Msg("Plan approved")
			return Outcome{Lineage: lineage, Result: result, Plan: plan, Rounds: round}, nil
		}

		metrics.GateResults.WithLabelValues(string(models.StatusRejected)).Inc()
		c.logger.Info().
			Str("lineage", lineage).
			Int("round", round).
			Int("breaches", len(result.Breaches)).
			Msg("Plan rejected")

		entry := models.TrajectoryEntry{
			Lineage:      lineage,
			Timestamp:    c.clock().UTC(),
			Round:        round,
			RejectedPlan: plan,
			Breaches:     result.Breaches,
		}

		if round == c.maxRounds {
			if err := c.journal.Append(ctx, entry); err != nil {
				return Outcome{Lineage: lineage, Rounds: round}, err
			}
			metrics.GateResults.WithLabelValues(string(models.StatusExhausted)).Inc()
			metrics.LoopRounds.Observe(float64(round))
			result.Status = models.StatusExhausted
			return Outcome{Lineage: lineage, Result: result, Plan: plan, Rounds: round}, nil
		}

		revised, err := proposer.Revise(ctx, plan, result.Breaches, c.collectHints(ctx, result.Breaches, regime))
		if err != nil {
			return Outcome{Lineage: lineage, Rounds: round}, err
		}
		entry.RevisedPlan = &revised
		if err := c.journal.Append(ctx, entry); err != nil {
			return Outcome{Lineage: lineage, Rounds: round}, err
		}
		plan = revised
	}

	// Unreachable: the loop always terminates inside the final round.
	return Outcome{Lineage: lineage}, errors.New("loop ended without terminal state")
}

// collectHints asks the hint source once per breached metric and passes the
// results through untouched.
func (c *Controller) collectHints(ctx context.Context, breaches []models.Breach, regime string) []Hint {
	if c.hints == nil {
		return nil
	}
	seen := make(map[string]bool, len(breaches))
	var hints []Hint
	for _, breach := range breaches {
		if seen[breach.MetricName] {
			continue
		}
		seen[breach.MetricName] = true
		if text, ok := c.hints.Hint(ctx, breach.MetricName, regime); ok {
			hints = append(hints, Hint{Metric: breach.MetricName, Text: text})
		}
	}
	return hints
}

// regimeDescriptor buckets the snapshot's annualized volatility into the
// coarse market regime keys the hint source indexes on.
func regimeDescriptor(snap *models.RiskSnapshot) string {
	switch {
	case snap == nil:
		return "unknown"
	case snap.AnnualizedVol > 0.25:
		return "high_vol"
	case snap.AnnualizedVol < 0.10:
		return "low_vol"
	default:
		return "normal_vol"
	}
}
