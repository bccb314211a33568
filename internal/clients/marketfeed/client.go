// Package marketfeed fetches security reference metadata and latest closing
// prices from the market data provider.
package marketfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/valora-app/valora/internal/modules/securities"
)

// Client for the market data provider's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new market feed client.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "marketfeed").Logger(),
	}
}

// SecurityMetadata fetches reference metadata for one security.
func (c *Client) SecurityMetadata(ctx context.Context, identifier string) (securities.Metadata, error) {
	var result struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
		Exchange string `json:"exchange"`
	}
	if err := c.getJSON(ctx, "/securities/"+url.PathEscape(identifier), &result); err != nil {
		return securities.Metadata{}, err
	}

	return securities.Metadata{
		Identifier: identifier,
		Name:       result.Name,
		Currency:   result.Currency,
		Exchange:   result.Exchange,
	}, nil
}

// LatestClose fetches the latest closing price for one security along with
// its quote currency.
func (c *Client) LatestClose(ctx context.Context, identifier string) (float64, string, error) {
	var result struct {
		Close    float64 `json:"close"`
		Currency string  `json:"currency"`
	}
	if err := c.getJSON(ctx, "/securities/"+url.PathEscape(identifier)+"/quote", &result); err != nil {
		return 0, "", err
	}

	if result.Close <= 0 {
		return 0, "", fmt.Errorf("invalid close %f for %s", result.Close, identifier)
	}

	return result.Close, result.Currency, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	endpoint := c.baseURL + path
	c.log.Debug().Str("url", endpoint).Msg("Fetching")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
