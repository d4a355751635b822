// Package grantsgov is the HTTP client for the Grants.gov public API.
// The API wraps every response in an envelope whose errorcode must be
// checked independent of the HTTP status.
package grantsgov

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://api.grants.gov"

const (
	searchPath = "/v1/api/search2"
	detailPath = "/v1/api/fetchOpportunity/%s"
)

// Config controls client behavior.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// RatePerSec throttles outbound calls; zero disables throttling.
	RatePerSec float64
}

// SearchRequest is the search2 POST body. Zero-valued fields are omitted.
type SearchRequest struct {
	Keyword        string `json:"keyword,omitempty"`
	AgencyCode     string `json:"agencyCode,omitempty"`
	OppNum         string `json:"oppNum,omitempty"`
	OppStatuses    string `json:"oppStatuses,omitempty"`
	Rows           int    `json:"rows,omitempty"`
	StartRecordNum int    `json:"startRecordNum,omitempty"`
	DateRange      string `json:"dateRange,omitempty"`
	SortBy         string `json:"sortBy,omitempty"`
}

// SearchData is the payload portion of a search2 response.
type SearchData struct {
	HitCount int               `json:"hitCount"`
	OppHits  []json.RawMessage `json:"oppHits"`
}

type searchEnvelope struct {
	ErrorCode *int            `json:"errorcode"`
	Msg       string          `json:"msg"`
	Data      json.RawMessage `json:"data"`
}

// APIError is a non-zero errorcode returned inside a 200 response.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grants.gov api error %d: %s", e.Code, e.Msg)
}

// StatusError carries a non-2xx HTTP status so callers can classify it as
// transient (429/5xx) or permanent (403).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grants.gov returned status %d", e.StatusCode)
}

// Client wraps resty with rate limiting and envelope decoding.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a Client. The resty retry machinery is deliberately not used:
// retries and fall-through belong to the source chain, which needs to
// classify each failure.
func New(cfg Config, logger *zap.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		c.SetHeader("User-Agent", cfg.UserAgent)
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{http: c, limiter: limiter, logger: logger}
}

// Search posts one page query to search2 and returns the hit page.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchData, error) {
	if err := c.wait(ctx); err != nil {
		return SearchData{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(searchPath)
	if err != nil {
		return SearchData{}, fmt.Errorf("search2 request: %w", err)
	}
	env, err := c.decodeEnvelope(resp)
	if err != nil {
		return SearchData{}, err
	}
	var data SearchData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return SearchData{}, fmt.Errorf("decode search2 data: %w", err)
		}
	}
	c.logger.Debug("search2 page fetched",
		zap.Int("hits", len(data.OppHits)),
		zap.Int("hit_count", data.HitCount),
	)
	return data, nil
}

// FetchOpportunity retrieves the full detail payload for one id.
func (c *Client) FetchOpportunity(ctx context.Context, id string) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf(detailPath, id))
	if err != nil {
		return nil, fmt.Errorf("fetchOpportunity request: %w", err)
	}
	env, err := c.decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	return env.Data, nil
}

func (c *Client) decodeEnvelope(resp *resty.Response) (searchEnvelope, error) {
	if resp.StatusCode() != http.StatusOK {
		return searchEnvelope{}, &StatusError{StatusCode: resp.StatusCode()}
	}
	var env searchEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return searchEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ErrorCode != nil && *env.ErrorCode != 0 {
		return searchEnvelope{}, &APIError{Code: *env.ErrorCode, Msg: env.Msg}
	}
	return env, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
