// Package nppes is a client for the CMS NPPES NPI Registry API.
package nppes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"
	apiVersion     = "2.1"
	defaultLimit   = 10
)

// Enumeration types.
const (
	EnumerationIndividual   = "NPI-1"
	EnumerationOrganization = "NPI-2"
)

// Client queries the NPI registry.
type Client interface {
	Search(ctx context.Context, q Query) (*Response, error)
}

// Query selects registry records. Number wins over the name fields.
type Query struct {
	Number           string
	FirstName        string
	LastName         string
	OrganizationName string
	State            string
	Limit            int
}

// Empty reports whether the query has nothing to search on.
func (q Query) Empty() bool {
	return q.Number == "" && q.FirstName == "" && q.LastName == "" && q.OrganizationName == ""
}

func (q Query) values() url.Values {
	v := url.Values{}
	v.Set("version", apiVersion)
	if q.Number != "" {
		v.Set("number", q.Number)
		return v
	}
	if q.FirstName != "" {
		v.Set("first_name", q.FirstName)
	}
	if q.LastName != "" {
		v.Set("last_name", q.LastName)
	}
	if q.OrganizationName != "" {
		v.Set("organization_name", q.OrganizationName)
	}
	if q.State != "" {
		v.Set("state", q.State)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	v.Set("limit", fmt.Sprint(limit))
	return v
}

// Response is the registry search envelope.
type Response struct {
	ResultCount int      `json:"result_count"`
	Results     []Result `json:"results"`
	Errors      []struct {
		Description string `json:"description"`
		Field       string `json:"field"`
	} `json:"Errors"`
}

// Result is one enumerated provider.
type Result struct {
	Number          string     `json:"number"`
	EnumerationType string     `json:"enumeration_type"`
	Basic           Basic      `json:"basic"`
	Addresses       []Address  `json:"addresses"`
	Taxonomies      []Taxonomy `json:"taxonomies"`
}

// Basic holds the name and status block.
type Basic struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	MiddleName       string `json:"middle_name"`
	Credential       string `json:"credential"`
	OrganizationName string `json:"organization_name"`
	Status           string `json:"status"`
	LastUpdated      string `json:"last_updated"`
}

// Address is a mailing or practice location.
type Address struct {
	Purpose         string `json:"address_purpose"`
	Address1        string `json:"address_1"`
	Address2        string `json:"address_2"`
	City            string `json:"city"`
	State           string `json:"state"`
	PostalCode      string `json:"postal_code"`
	TelephoneNumber string `json:"telephone_number"`
}

// Taxonomy is a specialty classification with its state license.
type Taxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
	State   string `json:"state"`
	License string `json:"license"`
}

// Name renders the provider or organization name.
func (r Result) Name() string {
	if r.EnumerationType == EnumerationOrganization {
		return r.Basic.OrganizationName
	}
	if name := strings.TrimSpace(r.Basic.FirstName + " " + r.Basic.LastName); name != "" {
		return name
	}
	return r.Basic.OrganizationName
}

// Location returns the practice location address, falling back to the
// first address listed.
func (r Result) Location() (Address, bool) {
	for _, a := range r.Addresses {
		if strings.EqualFold(a.Purpose, "LOCATION") {
			return a, true
		}
	}
	if len(r.Addresses) > 0 {
		return r.Addresses[0], true
	}
	return Address{}, false
}

// APIError is a non-200 response from the registry.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nppes: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		c.limiter = nil
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a registry client limited to 5 requests per second.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(5, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q Query) (*Response, error) {
	if q.Empty() {
		return nil, eris.New("nppes: query needs a number or a name")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "nppes: rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.values().Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nppes: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "nppes: unmarshal response")
	}
	if len(out.Errors) > 0 {
		return nil, eris.Errorf("nppes: %s: %s", out.Errors[0].Field, out.Errors[0].Description)
	}
	return &out, nil
}
