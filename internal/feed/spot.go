package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const spotTickerPath = "/api/v3/ticker/price"

// SpotOptions parameterise the spot price poller.
type SpotOptions struct {
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
	UserAgent  string
}

// Spot polls the exchange spot ticker endpoint for the reference channel.
type Spot struct {
	opts    SpotOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewSpot constructs a spot price fetcher.
func NewSpot(opts SpotOptions, logger zerolog.Logger) *Spot {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Spot{
		opts:    opts,
		logger:  logger.With().Str("component", "spot_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchSpotPrices retrieves the current spot price for every listed symbol,
// filtered to the configured quote asset.
func (s *Spot) FetchSpotPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	endpoint := s.baseURL + spotTickerPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var tickers []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(payload, &tickers); err != nil {
		return nil, fmt.Errorf("decode spot tickers: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(tickers))
	skipped := 0
	for _, ticker := range tickers {
		if s.opts.QuoteAsset != "" && !strings.HasSuffix(ticker.Symbol, s.opts.QuoteAsset) {
			continue
		}
		price, err := decimal.NewFromString(ticker.Price)
		if err != nil {
			skipped++
			continue
		}
		prices[ticker.Symbol] = price
	}
	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Msg("dropped spot tickers with unparsable prices")
	}

	return prices, nil
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("binance api error (%d): %s", status, apiErr.Message)
	}
	if len(payload) > 0 {
		return fmt.Errorf("binance api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("binance api error (%d)", status)
}

var _ SpotPriceFetcher = (*Spot)(nil)
