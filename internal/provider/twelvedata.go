package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumdesk/riskgate/internal/platform/httpx"
	"github.com/aurumdesk/riskgate/models"
)

// TwelveData is the Twelve Data time-series client.
type TwelveData struct {
	apiKey     string
	baseURL    string
	priority   int
	symbols    map[string]string
	httpClient *httpx.Client
	logger     zerolog.Logger
}

// TwelveDataOptions holds options for creating a new TwelveData provider.
type TwelveDataOptions struct {
	APIKey          string
	BaseURL         string
	Priority        int
	Symbols         map[string]string
	RequestTimeout  time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewTwelveData creates a new Twelve Data provider.
func NewTwelveData(opts TwelveDataOptions) *TwelveData {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twelvedata.com"
	}

	return &TwelveData{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		priority: opts.Priority,
		symbols:  opts.Symbols,
		httpClient: httpx.NewClient(httpx.ClientOptions{
			Name:            "twelvedata",
			Timeout:         opts.RequestTimeout,
			RequestsPerSec:  opts.RequestsPerSec,
			MaxRetries:      opts.MaxRetries,
			MaxRetryTimeout: opts.MaxRetryTimeout,
		}),
		logger: log.With().Str("component", "twelvedata_provider").Logger(),
	}
}

func (c *TwelveData) Name() string  { return "twelvedata" }
func (c *TwelveData) Priority() int { return c.priority }
func (c *TwelveData) Capabilities() Capabilities {
	return Capabilities{Streaming: false, Intraday: true}
}

var twelveIntervals = map[models.Timeframe]string{
	models.Timeframe1m: "1min",
	models.Timeframe5m: "5min",
	models.Timeframe1h: "1h",
	models.Timeframe1d: "1day",
}

type twelveResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   float64 `json:"volume,string,omitempty"`
	} `json:"values"`
	Status string `json:"status"`
}

// FetchBars fetches candle data from the Twelve Data time_series endpoint.
func (c *TwelveData) FetchBars(ctx context.Context, symbol string, start, end time.Time, tf models.Timeframe) ([]models.PriceBar, error) {
	if err := validateWindow(start, end, tf); err != nil {
		return nil, err
	}
	interval, ok := twelveIntervals[tf]
	if !ok {
		return nil, ErrUnsupportedTimeframe
	}

	resolved := resolveSymbol(c.symbols, symbol)
	query := url.Values{}
	query.Set("symbol", resolved)
	query.Set("interval", interval)
	query.Set("start_date", start.UTC().Format("2006-01-02 15:04:05"))
	query.Set("end_date", end.UTC().Format("2006-01-02 15:04:05"))
	query.Set("apikey", c.apiKey)
	endpoint := fmt.Sprintf("%s/time_series?%s", c.baseURL, query.Encode())

	c.logger.Debug().Str("symbol", resolved).Str("interval", interval).Msg("Fetching candles")

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("response", string(body)).Msg("Twelve Data API error")
		return nil, fmt.Errorf("twelve data API error: %s", string(body))
	}

	var data twelveResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if len(data.Values) == 0 {
		return nil, ErrEmptyData
	}

	// Oldest first for indicator calculations.
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	bars := make([]models.PriceBar, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseTwelveTime(v.Datetime)
		if err != nil {
			return nil, fmt.Errorf("parsing datetime %q: %w", v.Datetime, err)
		}
		bars = append(bars, models.PriceBar{
			Timestamp: ts,
			Open:      v.Open,
			High:      v.High,
			Low:       v.Low,
			Close:     v.Close,
			Volume:    v.Volume,
		})
	}

	if err := models.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("twelve data series invalid: %w", err)
	}

	c.logger.Debug().Int("count", len(bars)).Msg("Fetched candles")
	return bars, nil
}

type twelveQuote struct {
	Bid       float64 `json:"bid,string,omitempty"`
	Ask       float64 `json:"ask,string,omitempty"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Status    string  `json:"status,omitempty"`
}

// FetchQuote fetches the latest quote for a symbol.
func (c *TwelveData) FetchQuote(ctx context.Context, symbol string) (models.QuoteSnapshot, error) {
	resolved := resolveSymbol(c.symbols, symbol)
	endpoint := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s", c.baseURL, url.QueryEscape(resolved), c.apiKey)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return models.QuoteSnapshot{}, err
	}
	if strings.Contains(string(body), `"status":"error"`) {
		return models.QuoteSnapshot{}, fmt.Errorf("twelve data API error: %s", string(body))
	}

	var q twelveQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return models.QuoteSnapshot{}, fmt.Errorf("parsing JSON: %w", err)
	}

	return models.QuoteSnapshot{
		Bid:       q.Bid,
		Ask:       q.Ask,
		Last:      q.Close,
		Volume:    q.Volume,
		Timestamp: time.Unix(q.Timestamp, 0).UTC(),
		Provider:  c.Name(),
		Synthetic: false,
	}, nil
}

func (c *TwelveData) get(ctx context.Context, endpoint string) ([]byte, error) {
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
	return body, nil
}

func parseTwelveTime(value string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func resolveSymbol(symbols map[string]string, symbol string) string {
	if mapped, ok := symbols[symbol]; ok && mapped != "" {
		return mapped
	}
	return symbol
}
