// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nppes queries the NPPES NPI Registry for individual providers and
// summarises the results for referral verification.
package nppes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/httpclient"
)

const (
	// DefaultBaseURL is the public registry endpoint.
	DefaultBaseURL = "https://npiregistry.cms.hhs.gov/api/"
	// DefaultVersion is the registry API version.
	DefaultVersion = "2.1"
	// DefaultLimit is the number of results requested per search.
	DefaultLimit = 10

	serviceName = "nppes"

	// individualEnumeration restricts searches to NPI-1 (people, not organisations).
	individualEnumeration = "NPI-1"
)

// Config configures the registry client.
type Config struct {
	BaseURL           string
	Version           string
	Timeout           time.Duration
	MaxAttempts       int
	Limit             int
	RequestsPerSecond float64
	UserAgent         string

	// Backoff bases. Zero keeps the httpclient defaults (1s).
	RateLimitBackoff  time.Duration
	ConnectionBackoff time.Duration
}

// DefaultConfig returns the public registry settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Version:     DefaultVersion,
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		Limit:       DefaultLimit,
		UserAgent:   "referral-agent/1.0",
	}
}

// Client talks to the NPPES registry.
type Client struct {
	http    *http.Client
	baseURL string
	version string
	limit   int
	logger  *slog.Logger
}

// NewClient builds a Client on top of a retrying httpclient.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	hc := httpclient.DefaultConfig()
	hc.Service = serviceName
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}
	if cfg.MaxAttempts > 0 {
		hc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RateLimitBackoff > 0 {
		hc.RateLimitBackoff = cfg.RateLimitBackoff
	}
	if cfg.ConnectionBackoff > 0 {
		hc.ConnectionBackoff = cfg.ConnectionBackoff
	}
	if cfg.UserAgent != "" {
		hc.UserAgent = cfg.UserAgent
	}
	hc.RequestsPerSecond = cfg.RequestsPerSecond

	client, err := httpclient.New(hc)
	if err != nil {
		return nil, fmt.Errorf("nppes: building http client: %w", err)
	}
	return NewClientWithHTTP(cfg, client, logger), nil
}

// NewClientWithHTTP uses a caller-supplied *http.Client.
func NewClientWithHTTP(cfg Config, client *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Client{
		http:    client,
		baseURL: cfg.BaseURL,
		version: cfg.Version,
		limit:   cfg.Limit,
		logger:  logger.With("component", "nppes"),
	}
}

// SearchProviders searches for individual providers by name and optional
// location.
func (c *Client) SearchProviders(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = c.limit
	}

	q := url.Values{}
	q.Set("version", c.version)
	q.Set("first_name", strings.TrimSpace(p.FirstName))
	q.Set("last_name", strings.TrimSpace(p.LastName))
	q.Set("enumeration_type", individualEnumeration)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("pretty", "false")
	if city := strings.TrimSpace(p.City); city != "" {
		q.Set("city", city)
	}
	if state := strings.ToUpper(strings.TrimSpace(p.State)); state != "" {
		q.Set("state", state)
	}

	where := ""
	if p.City != "" || p.State != "" {
		where = fmt.Sprintf(" in %s, %s", p.City, p.State)
	}
	c.logger.InfoContext(ctx, "searching NPPES", "query", strings.TrimSpace(p.FirstName+" "+p.LastName)+where)

	resp, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "NPPES search complete", "result_count", resp.ResultCount)
	return resp, nil
}

// LookupNPI fetches the record for a single NPI.
func (c *Client) LookupNPI(ctx context.Context, npi string) (*Provider, error) {
	npi = strings.TrimSpace(npi)
	if !ValidNPI(npi) {
		return nil, &apperrors.ValidationError{
			Field:      "npi",
			Message:    fmt.Sprintf("%q is not a valid 10-digit NPI", npi),
			Suggestion: "Check the number against the provider's records",
		}
	}

	q := url.Values{}
	q.Set("version", c.version)
	q.Set("number", npi)
	q.Set("pretty", "false")

	resp, err := c.get(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &apperrors.NotFoundError{Resource: "provider", ID: npi}
	}
	return &resp.Results[0], nil
}

func (c *Client) get(ctx context.Context, q url.Values) (*SearchResponse, error) {
	endpoint := c.baseURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("nppes: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "NPPES API request failed", "error", err)
		return nil, httpclient.AsUpstreamError(serviceName, "NPPES", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.ErrorContext(ctx, "NPPES API HTTP error", "status", resp.StatusCode)
		return nil, httpclient.StatusError(serviceName, "NPPES", resp.StatusCode, "")
	}

	var out SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return nil, &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "NPPES API returned an unreadable response",
			Cause:      err,
		}
	}
	if len(out.Errors) > 0 {
		return nil, &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "NPPES API error: " + out.Errors[0].Description,
		}
	}
	return &out, nil
}
