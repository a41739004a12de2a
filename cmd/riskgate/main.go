package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aurumdesk/riskgate/internal/config"
	"github.com/aurumdesk/riskgate/internal/gate"
	"github.com/aurumdesk/riskgate/internal/journal"
	"github.com/aurumdesk/riskgate/internal/loop"
	"github.com/aurumdesk/riskgate/internal/snapshot"
	"github.com/aurumdesk/riskgate/models"
)

var (
	cfg *config.Config

	flagSymbol      string
	flagLookback    int
	flagPlanPath    string
	flagSyntheticOK bool
	flagRefresh     bool
	flagMaxRounds   int
	flagJournalPath string
	flagPositionOz  float64
	flagPnLToday    float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "riskgate",
	Short:        "Deterministic risk gate for gold trading plans",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

		if flagSymbol != "" {
			cfg.Symbol = flagSymbol
		}
		if flagLookback > 0 {
			cfg.LookbackDays = flagLookback
		}
		if flagMaxRounds > 0 {
			cfg.MaxRounds = flagMaxRounds
		}
		if flagJournalPath != "" {
			cfg.JournalPath = flagJournalPath
		}
		if flagSyntheticOK {
			cfg.Thresholds.AllowSynthetic = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagSymbol, "symbol", "", "desk symbol (default from SYMBOL env)")
	rootCmd.PersistentFlags().IntVar(&flagLookback, "lookback", 0, "lookback window in days")
	rootCmd.PersistentFlags().BoolVar(&flagSyntheticOK, "synthetic-ok", false, "accept a synthetic placeholder series when all providers fail")
	rootCmd.PersistentFlags().BoolVar(&flagRefresh, "refresh", false, "bypass the provider cache")
	rootCmd.PersistentFlags().Float64Var(&flagPositionOz, "position-oz", 0, "existing position in ounces")
	rootCmd.PersistentFlags().Float64Var(&flagPnLToday, "pnl-today", 0, "realized PnL today in USD")

	evaluateCmd.Flags().StringVar(&flagPlanPath, "plan", "", "path to the plan JSON file")
	evaluateCmd.MarkFlagRequired("plan")

	loopCmd.Flags().StringVar(&flagPlanPath, "plan", "", "path to the initial plan JSON file")
	loopCmd.Flags().IntVar(&flagMaxRounds, "max-rounds", 0, "maximum revise-and-resubmit rounds")
	loopCmd.Flags().StringVar(&flagJournalPath, "journal", "", "sqlite journal path (empty for in-memory)")
	loopCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(snapshotCmd, evaluateCmd, loopCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build and print the risk snapshot for a symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		builder, err := newBuilder()
		if err != nil {
			return err
		}
		snap, err := builder.Build(cmd.Context(), snapshot.Request{
			Symbol:         cfg.Symbol,
			LookbackDays:   cfg.LookbackDays,
			Timeframe:      cfg.Timeframe,
			PositionOz:     flagPositionOz,
			AllowSynthetic: cfg.Thresholds.AllowSynthetic,
			ForceRefresh:   flagRefresh,
		})
		if err != nil {
			return err
		}
		return printJSON(snap)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a plan against a freshly built snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := readPlan(flagPlanPath)
		if err != nil {
			return err
		}

		builder, err := newBuilder()
		if err != nil {
			return err
		}
		snap, err := builder.Build(cmd.Context(), snapshot.Request{
			Symbol:         cfg.Symbol,
			LookbackDays:   cfg.LookbackDays,
			Timeframe:      cfg.Timeframe,
			PositionOz:     flagPositionOz,
			AllowSynthetic: cfg.Thresholds.AllowSynthetic,
			ForceRefresh:   flagRefresh,
		})
		if err != nil {
			return err
		}

		state := models.PositionState{
			ExistingPositionOz:  flagPositionOz,
			RealizedPnLTodayUSD: flagPnLToday,
		}
		result, err := gate.Evaluate(plan, snap, cfg.Thresholds, state)
		result.Round = 1
		if err != nil {
			if errors.Is(err, gate.ErrInvalidPlan) {
				printJSON(result)
			}
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.Approved() {
			os.Exit(2)
		}
		return nil
	},
}

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Run the feedback loop, reading revised plans from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := readPlan(flagPlanPath)
		if err != nil {
			return err
		}

		builder, err := newBuilder()
		if err != nil {
			return err
		}
		snap, err := builder.Build(cmd.Context(), snapshot.Request{
			Symbol:         cfg.Symbol,
			LookbackDays:   cfg.LookbackDays,
			Timeframe:      cfg.Timeframe,
			PositionOz:     flagPositionOz,
			AllowSynthetic: cfg.Thresholds.AllowSynthetic,
			ForceRefresh:   flagRefresh,
		})
		if err != nil {
			return err
		}

		var store journal.Journal = journal.NewMemory()
		if cfg.JournalPath != "" {
			sqlite, err := journal.NewSQLite(cfg.JournalPath)
			if err != nil {
				return fmt.Errorf("opening journal: %w", err)
			}
			defer sqlite.Close()
			store = sqlite
		}

		controller := loop.NewController(loop.ControllerOptions{
			Journal:   store,
			Hints:     loop.NewTableHints(),
			MaxRounds: cfg.MaxRounds,
		})

		state := models.PositionState{
			ExistingPositionOz:  flagPositionOz,
			RealizedPnLTodayUSD: flagPnLToday,
		}
		outcome, err := controller.Run(cmd.Context(), newStdinProposer(plan, os.Stdin, os.Stderr), snap, cfg.Thresholds, state)
		if err != nil {
			if errors.Is(err, gate.ErrInvalidPlan) {
				printJSON(outcome.Result)
			}
			return err
		}
		if err := printJSON(outcome); err != nil {
			return err
		}
		if !outcome.Result.Approved() {
			os.Exit(2)
		}
		return nil
	},
}

func readPlan(path string) (models.Plan, error) {
	var plan models.Plan
	data, err := os.ReadFile(path)
	if err != nil {
		return plan, fmt.Errorf("reading plan: %w", err)
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		return plan, fmt.Errorf("parsing plan: %w", err)
	}
	return plan, nil
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
