package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/models"
)

// Config holds all process configuration. Thresholds are materialized once
// here and threaded explicitly through every evaluation call.
type Config struct {
	Symbol            string
	Timeframe         models.Timeframe
	LookbackDays      int
	ATRPeriod         int
	CorrelationWindow int
	CrossAssets       []string

	TwelveDataAPIKey string
	PolygonAPIKey    string
	ProvidersFile    string

	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	CacheTTL        time.Duration
	StalenessBound  time.Duration
	SnapshotReuse   time.Duration

	MaxRounds   int
	JournalPath string
	LogLevel    string

	Thresholds models.ThresholdConfig
}

// Load initializes configuration from environment variables, reading a .env
// file first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		Symbol:            getEnvWithDefault("SYMBOL", "XAU/USD"),
		Timeframe:         models.Timeframe(getEnvWithDefault("TIMEFRAME", "1d")),
		LookbackDays:      getEnvIntWithDefault("LOOKBACK_DAYS", 14),
		ATRPeriod:         getEnvIntWithDefault("ATR_PERIOD", 14),
		CorrelationWindow: getEnvIntWithDefault("CORRELATION_WINDOW", 20),
		CrossAssets:       getEnvListWithDefault("CROSS_ASSETS", []string{"DXY"}),

		TwelveDataAPIKey: os.Getenv("TWELVE_API_KEY"),
		PolygonAPIKey:    os.Getenv("POLYGON_API_KEY"),
		ProvidersFile:    getEnvWithDefault("PROVIDERS_FILE", "providers.yaml"),

		RequestTimeout: getEnvDurationWithDefault("REQUEST_TIMEOUT", 30*time.Second),
		RequestsPerSec: getEnvIntWithDefault("REQUESTS_PER_SEC", 5),
		MaxRetries:     getEnvIntWithDefault("MAX_RETRIES", 3),
		CacheTTL:       getEnvDurationWithDefault("CACHE_TTL", 2*time.Minute),
		StalenessBound: getEnvDurationWithDefault("STALENESS_BOUND", 0),
		SnapshotReuse:  getEnvDurationWithDefault("SNAPSHOT_REUSE_WINDOW", 30*time.Second),

		MaxRounds:   getEnvIntWithDefault("MAX_ROUNDS", 3),
		JournalPath: getEnvWithDefault("JOURNAL_PATH", "riskgate.db"),
		LogLevel:    getEnvWithDefault("LOG_LEVEL", "info"),

		Thresholds: models.ThresholdConfig{
			MaxPositionOz:                getEnvFloatWithDefault("MAX_POSITION_OZ", 5000),
			MaxIncrementalUtilizationPct: getEnvFloatWithDefault("MAX_INCREMENTAL_UTILIZATION_PCT", 0.5),
			MaxStressVarUSD:              getEnvFloatWithDefault("MAX_STRESS_VAR_USD", 3_000_000),
			MaxDailyDrawdownPct:          getEnvFloatWithDefault("MAX_DAILY_DRAWDOWN_PCT", 3.0),
			MinStopDistancePct:           getEnvFloatWithDefault("MIN_STOP_DISTANCE_PCT", 0.2),
			MaxStopDistancePct:           getEnvFloatWithDefault("MAX_STOP_DISTANCE_PCT", 5.0),
			ConfiguredSpreadCapBps:       getEnvFloatWithDefault("CONFIGURED_SPREAD_CAP_BPS", 50),
			CalibrationFloorBps:          getEnvFloatWithDefault("CALIBRATION_FLOOR_BPS", 40),
			StressShockPct:               getEnvFloatWithDefault("STRESS_SHOCK_PCT", -0.05),
			CapitalUSD:                   getEnvFloatWithDefault("CAPITAL_USD", 100_000_000),
			ATRStopMultiple:              getEnvFloatWithDefault("ATR_STOP_MULTIPLE", 0),
			StrictCorrelation:            getEnvBoolWithDefault("STRICT_CORRELATION", false),
			CorrelationTolerance:         getEnvFloatWithDefault("CORRELATION_TOLERANCE", 0.4),
			AllowSynthetic:               getEnvBoolWithDefault("ALLOW_SYNTHETIC", false),
			ExpectedCorrelations:         map[string]float64{"DXY": -0.6},
		},
	}

	if !cfg.Timeframe.Valid() {
		log.Warn().Str("timeframe", string(cfg.Timeframe)).Msg("unsupported timeframe, falling back to 1d")
		cfg.Timeframe = models.Timeframe1d
	}
	if cfg.StalenessBound == 0 {
		// Fresh-query results older than two bar intervals fall through to
		// the next provider.
		cfg.StalenessBound = 2 * cfg.Timeframe.Duration()
	}

	return cfg, nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getEnvListWithDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
