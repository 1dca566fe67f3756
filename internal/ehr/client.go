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

// Package ehr is a client for the Practice Fusion EHR REST API: patient
// charts, practice users and facilities, and the scheduling calendar.
package ehr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/httpclient"
)

const (
	serviceName = "ehr"
	displayName = "EHR"

	maxErrorBody = 512
)

// Config configures the EHR client. Either AccessToken or the client
// credentials triple must be set.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AccessToken  string

	Timeout           time.Duration
	MaxAttempts       int
	RateLimitBackoff  time.Duration
	ConnectionBackoff time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

// Configured reports whether enough settings are present to build a client.
func (c Config) Configured() bool {
	if c.BaseURL == "" {
		return false
	}
	return c.AccessToken != "" || (c.TokenURL != "" && c.ClientID != "" && c.ClientSecret != "")
}

// Client is a Practice Fusion API client.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient builds an authenticated client. Token requests go through the
// same retrying transport as API calls.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, &apperrors.ConfigError{
			Key:    "ehr",
			Reason: "base_url and either access_token or token_url/client_id/client_secret are required",
		}
	}

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

	base, err := httpclient.New(hc)
	if err != nil {
		return nil, fmt.Errorf("ehr: building http client: %w", err)
	}

	var ts oauth2.TokenSource
	if cfg.AccessToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	} else {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// The token source keeps this context for refreshes.
		ts = cc.TokenSource(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	}

	authed := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base.Transport},
		Timeout:   base.Timeout,
	}
	return NewClientWithHTTP(cfg.BaseURL, authed, logger), nil
}

// NewClientWithHTTP uses a caller-supplied, already authenticated client.
func NewClientWithHTTP(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "ehr"),
	}
}

// do sends a request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ehr: encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("ehr: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "EHR request failed", "method", method, "path", path, "error", err)
		return httpclient.AsUpstreamError(serviceName, displayName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.WarnContext(ctx, "EHR returned an error", "method", method, "path", path, "status", resp.StatusCode)
		return httpclient.StatusError(serviceName, displayName, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(out); err != nil {
		return &apperrors.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "EHR API returned an unreadable response",
			Cause:      err,
		}
	}
	return nil
}
