package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/config"
	"github.com/aurumdesk/riskgate/internal/provider"
	"github.com/aurumdesk/riskgate/internal/snapshot"
)

// newBuilder assembles the provider chain from the YAML registry and wraps
// it in a snapshot builder. A missing registry falls back to the built-in
// twelvedata→polygon order with identity symbol maps.
func newBuilder() (*snapshot.Builder, error) {
	specs := defaultSpecs()
	if registry, err := config.LoadProviders(cfg.ProvidersFile); err == nil {
		specs = registry.Providers
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", cfg.ProvidersFile).Msg("Provider registry unreadable, using defaults")
	}

	var providers []provider.Provider
	for _, spec := range specs {
		switch spec.Name {
		case "twelvedata":
			if cfg.TwelveDataAPIKey == "" {
				log.Warn().Msg("TWELVE_API_KEY not set, skipping twelvedata")
				continue
			}
			providers = append(providers, provider.NewTwelveData(provider.TwelveDataOptions{
				APIKey:         cfg.TwelveDataAPIKey,
				Priority:       spec.Priority,
				Symbols:        spec.Symbols,
				RequestTimeout: cfg.RequestTimeout,
				RequestsPerSec: cfg.RequestsPerSec,
				MaxRetries:     cfg.MaxRetries,
			}))
		case "polygon":
			if cfg.PolygonAPIKey == "" {
				log.Warn().Msg("POLYGON_API_KEY not set, skipping polygon")
				continue
			}
			providers = append(providers, provider.NewPolygon(provider.PolygonOptions{
				APIKey:         cfg.PolygonAPIKey,
				Priority:       spec.Priority,
				Symbols:        spec.Symbols,
				RequestTimeout: cfg.RequestTimeout,
				RequestsPerSec: cfg.RequestsPerSec,
				MaxRetries:     cfg.MaxRetries,
			}))
		default:
			log.Warn().Str("provider", spec.Name).Msg("Unknown provider in registry, skipping")
		}
	}

	chain := provider.NewChain(provider.ChainOptions{
		Providers:  providers,
		Synthetic:  provider.NewSynthetic(0),
		Cache:      provider.NewCache(cfg.CacheTTL),
		MaxRetries: cfg.MaxRetries,
		Staleness:  cfg.StalenessBound,
	})

	return snapshot.NewBuilder(snapshot.BuilderOptions{
		Chain:       chain,
		ATRPeriod:   cfg.ATRPeriod,
		CorrWindow:  cfg.CorrelationWindow,
		CrossAssets: cfg.CrossAssets,
		ReuseWindow: cfg.SnapshotReuse,
	}), nil
}

func defaultSpecs() []config.ProviderSpec {
	return []config.ProviderSpec{
		{Name: "twelvedata", Priority: 1, Intraday: true},
		{Name: "polygon", Priority: 2},
	}
}
