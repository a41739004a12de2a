package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aurumdesk/riskgate/models"
)

const twelveSeriesFixture = `{
	"meta": {"symbol": "XAU/USD", "interval": "1day"},
	"values": [
		{"datetime": "2025-06-02", "open": "2410.0", "high": "2422.5", "low": "2401.0", "close": "2415.0", "volume": "1200"},
		{"datetime": "2025-05-30", "open": "2400.0", "high": "2412.0", "low": "2395.5", "close": "2410.0", "volume": "1100"}
	],
	"status": "ok"
}`

func newTwelveData(serverURL string) *TwelveData {
	return NewTwelveData(TwelveDataOptions{
		APIKey:         "test-key",
		BaseURL:        serverURL,
		Priority:       1,
		Symbols:        map[string]string{"GOLD": "XAU/USD"},
		RequestTimeout: 2 * time.Second,
		RequestsPerSec: 100,
		MaxRetries:     1,
	})
}

func TestTwelveDataFetchBars(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/time_series", r.URL.Path)
		gotQuery = map[string]string{
			"symbol":   r.URL.Query().Get("symbol"),
			"interval": r.URL.Query().Get("interval"),
			"apikey":   r.URL.Query().Get("apikey"),
		}
		fmt.Fprint(w, twelveSeriesFixture)
	}))
	defer server.Close()

	client := newTwelveData(server.URL)
	end := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	bars, err := client.FetchBars(context.Background(), "GOLD", end.AddDate(0, 0, -14), end.Add(time.Hour), models.Timeframe1d)
	require.NoError(t, err)

	assert.Equal(t, "XAU/USD", gotQuery["symbol"], "desk symbol is mapped to the provider ticker")
	assert.Equal(t, "1day", gotQuery["interval"])
	assert.Equal(t, "test-key", gotQuery["apikey"])

	// The API returns newest first; bars come back oldest first.
	require.Len(t, bars, 2)
	assert.Equal(t, 2410.0, bars[0].Close)
	assert.Equal(t, 2415.0, bars[1].Close)
	assert.True(t, bars[0].Timestamp.Before(bars[1].Timestamp))
}

func TestTwelveDataFetchBarsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"status":"error","message":"symbol not found"}`)
	}))
	defer server.Close()

	client := newTwelveData(server.URL)
	end := time.Now().UTC()
	_, err := client.FetchBars(context.Background(), "GOLD", end.AddDate(0, 0, -14), end, models.Timeframe1d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol not found")
}

func TestTwelveDataFetchBarsEmptyValues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"meta":{},"values":[],"status":"ok"}`)
	}))
	defer server.Close()

	client := newTwelveData(server.URL)
	end := time.Now().UTC()
	_, err := client.FetchBars(context.Background(), "GOLD", end.AddDate(0, 0, -14), end, models.Timeframe1d)
	require.ErrorIs(t, err, ErrEmptyData)
}

func TestTwelveDataFetchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		fmt.Fprint(w, `{"bid":"2414.5","ask":"2415.5","close":"2415.0","volume":"1200","timestamp":1748876400}`)
	}))
	defer server.Close()

	client := newTwelveData(server.URL)
	quote, err := client.FetchQuote(context.Background(), "GOLD")
	require.NoError(t, err)

	assert.Equal(t, 2414.5, quote.Bid)
	assert.Equal(t, 2415.5, quote.Ask)
	assert.Equal(t, 2415.0, quote.Last)
	assert.Equal(t, "twelvedata", quote.Provider)
	assert.False(t, quote.Synthetic)
	assert.Equal(t, time.Unix(1748876400, 0).UTC(), quote.Timestamp)
}

func TestParseTwelveTime(t *testing.T) {
	withTime, err := parseTwelveTime("2025-06-02 15:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC), withTime)

	dateOnly, err := parseTwelveTime("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), dateOnly)

	_, err = parseTwelveTime("06/02/2025")
	require.Error(t, err)
}
