// Package geocode is a minimal client for the Census Bureau one-line
// address geocoder.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://geocoding.geo.census.gov/geocoder"
	defaultBenchmark = "Public_AR_Current"
)

// Client geocodes free-form addresses.
type Client interface {
	Geocode(ctx context.Context, address string) (*Match, error)
}

// Match is the best candidate for an address. A nil Match with a nil
// error means the geocoder found nothing.
type Match struct {
	MatchedAddress string  `json:"matched_address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	TigerLineID    string  `json:"tiger_line_id,omitempty"`
}

// APIError is a non-200 response from the geocoder.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("geocode: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*censusClient)

// WithBaseURL overrides the geocoder base URL.
func WithBaseURL(u string) Option {
	return func(c *censusClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *censusClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *censusClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

type censusClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Census geocoder client.
func NewClient(opts ...Option) Client {
	c := &censusClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type oneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
			MatchedAddress string `json:"matchedAddress"`
			TigerLine      struct {
				TigerLineID string `json:"tigerLineId"`
			} `json:"tigerLine"`
		} `json:"addressMatches"`
	} `json:"result"`
}

func (c *censusClient) Geocode(ctx context.Context, address string) (*Match, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: rate limit wait")
		}
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("benchmark", defaultBenchmark)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/locations/onelineaddress?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out oneLineResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "geocode: unmarshal response")
	}
	if len(out.Result.AddressMatches) == 0 {
		return nil, nil
	}

	m := out.Result.AddressMatches[0]
	return &Match{
		MatchedAddress: m.MatchedAddress,
		Latitude:       m.Coordinates.Y,
		Longitude:      m.Coordinates.X,
		TigerLineID:    m.TigerLine.TigerLineID,
	}, nil
}
