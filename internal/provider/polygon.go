package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/platform/httpx"
	"github.com/aurumdesk/riskgate/models"
)

// Polygon fetches daily aggregates from Polygon.io. Daily bars only; the
// chain routes intraday requests elsewhere via Capabilities.
type Polygon struct {
	apiKey     string
	baseURL    string
	priority   int
	symbols    map[string]string
	httpClient *httpx.Client
	logger     zerolog.Logger
}

// PolygonOptions holds options for creating a new Polygon provider.
type PolygonOptions struct {
	APIKey          string
	BaseURL         string
	Priority        int
	Symbols         map[string]string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewPolygon creates a new Polygon provider.
func NewPolygon(opts PolygonOptions) *Polygon {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}

	return &Polygon{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		priority: opts.Priority,
		symbols:  opts.Symbols,
		httpClient: httpx.NewClient(httpx.ClientOptions{
			Name:            "polygon",
			Timeout:         opts.RequestTimeout,
			RequestsPerSec:  opts.RequestsPerSec,
			MaxRetries:      opts.MaxRetries,
			MaxRetryTimeout: opts.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "polygon_provider").Logger(),
	}
}

func (c *Polygon) Name() string  { return "polygon" }
func (c *Polygon) Priority() int { return c.priority }
func (c *Polygon) Capabilities() Capabilities {
	return Capabilities{Streaming: false, Intraday: false}
}

type polygonAggs struct {
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	Results []struct {
		Open      float64 `json:"o"`
		High      float64 `json:"h"`
		Low       float64 `json:"l"`
		Close     float64 `json:"c"`
		Volume    float64 `json:"v"`
		Timestamp int64   `json:"t"` // ms epoch
	} `json:"results"`
}

// FetchBars fetches daily aggregates from the Polygon v2 aggs endpoint.
func (c *Polygon) FetchBars(ctx context.Context, symbol string, start, end time.Time, tf models.Timeframe) ([]models.PriceBar, error) {
	if err := validateWindow(start, end, tf); err != nil {
		return nil, err
	}
	if tf != models.Timeframe1d {
		return nil, ErrUnsupportedTimeframe
	}

	ticker := resolveSymbol(c.symbols, symbol)
	endpoint := fmt.Sprintf(
		"%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		c.baseURL,
		ticker,
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"),
		c.apiKey,
	)

	c.logger.Debug().Str("ticker", ticker).Msg("Fetching daily aggregates")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var data polygonAggs
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(data.Results) == 0 {
		return nil, ErrEmptyData
	}

	bars := make([]models.PriceBar, 0, len(data.Results))
	for _, r := range data.Results {
		bars = append(bars, models.PriceBar{
			Timestamp: time.UnixMilli(r.Timestamp).UTC(),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}

	if err := models.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("polygon series invalid: %w", err)
	}
	return bars, nil
}

// FetchQuote approximates a quote from the previous-close endpoint. Polygon
// aggregates carry no bid/ask, so only the last price and volume are set.
func (c *Polygon) FetchQuote(ctx context.Context, symbol string) (models.QuoteSnapshot, error) {
	ticker := resolveSymbol(c.symbols, symbol)
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev?adjusted=true&apiKey=%s", c.baseURL, ticker, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.QuoteSnapshot{}, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.DoRequest(ctx, req)
	if err != nil {
		return models.QuoteSnapshot{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.QuoteSnapshot{}, fmt.Errorf("reading response body: %w", err)
	}

	var data polygonAggs
	if err := json.Unmarshal(body, &data); err != nil {
		return models.QuoteSnapshot{}, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(data.Results) == 0 {
		return models.QuoteSnapshot{}, ErrEmptyData
	}

	latest := data.Results[len(data.Results)-1]
	return models.QuoteSnapshot{
		Last:      latest.Close,
		Volume:    latest.Volume,
		Timestamp: time.UnixMilli(latest.Timestamp).UTC(),
		Provider:  c.Name(),
		Synthetic: false,
	}, nil
}
