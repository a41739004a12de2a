package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderSpec describes one data source in the chain: its position in the
// fallthrough order, its capabilities, and the per-provider symbol map.
// Symbols are never hardcoded in adapters.
type ProviderSpec struct {
	Name      string            `yaml:"name"`
	Priority  int               `yaml:"priority"`
	Intraday  bool              `yaml:"intraday"`
	Streaming bool              `yaml:"streaming"`
	Symbols   map[string]string `yaml:"symbols"`
}

// ProviderFile is the on-disk provider registry.
type ProviderFile struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// LoadProviders reads the YAML provider registry.
func LoadProviders(path string) (*ProviderFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider registry: %w", err)
	}

	var file ProviderFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing provider registry: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("provider registry %s lists no providers", path)
	}
	for i, spec := range file.Providers {
		if spec.Name == "" {
			return nil, fmt.Errorf("provider %d: missing name", i)
		}
	}
	return &file, nil
}

// Resolve maps a desk symbol to the provider-specific ticker, falling back
// to the symbol itself when no mapping is configured.
func (s ProviderSpec) Resolve(symbol string) string {
	if mapped, ok := s.Symbols[symbol]; ok && mapped != "" {
		return mapped
	}
	return symbol
}
