package provider

import (
	"context"
	"errors"
	"time"

	"github.com/aurumdesk/riskgate/models"
)

var (
	// ErrDataUnavailable means every real provider in the chain was
	// exhausted for the request.
	ErrDataUnavailable = errors.New("data unavailable: all providers exhausted")

	// ErrStaleData marks a fresh-query result whose newest bar is older
	// than the staleness bound. Triggers fallthrough, never silently
	// returned.
	ErrStaleData = errors.New("stale data")

	// ErrEmptyData marks a provider response with no bars.
	ErrEmptyData = errors.New("empty data returned")

	// ErrUnsupportedTimeframe marks a request a provider cannot serve.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")
)

// Capabilities declared by a provider so the chain can route requests.
type Capabilities struct {
	Streaming bool
	Intraday  bool
}

// Provider is the contract every data source implements. The chain consumes
// only this interface, never provider-specific details.
type Provider interface {
	Name() string
	Priority() int
	Capabilities() Capabilities
	FetchBars(ctx context.Context, symbol string, start, end time.Time, tf models.Timeframe) ([]models.PriceBar, error)
	FetchQuote(ctx context.Context, symbol string) (models.QuoteSnapshot, error)
}

// FetchOptions control one chain request. Synthetic fallback is a per-call
// decision, visible at the call site, never an ambient mode.
type FetchOptions struct {
	AllowSynthetic bool
	ForceRefresh   bool
}

func validateWindow(start, end time.Time, tf models.Timeframe) error {
	if !start.Before(end) {
		return errors.New("start must be before end")
	}
	if !tf.Valid() {
		return ErrUnsupportedTimeframe
	}
	return nil
}
