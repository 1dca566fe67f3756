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

package nppes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

const sampleResponse = `{
  "result_count": 2,
  "results": [
    {
      "number": "1234567893",
      "enumeration_type": "NPI-1",
      "basic": {"first_name": "WALTER", "last_name": "REED", "middle_name": "J", "credential": "MD", "name_prefix": "Dr.", "status": "A", "enumeration_date": "2006-05-23"},
      "addresses": [
        {"address_purpose": "MAILING", "city": "BETHESDA", "state": "MD"},
        {"address_purpose": "LOCATION", "city": "SILVER SPRING", "state": "MD", "telephone_number": "301-555-0100"}
      ],
      "taxonomies": [
        {"code": "207R00000X", "desc": "Internal Medicine", "primary": false},
        {"code": "207RC0000X", "desc": "Cardiovascular Disease", "primary": true}
      ]
    },
    {
      "number": 1245319599,
      "basic": {"first_name": "WALTER", "last_name": "REED", "status": "D"},
      "addresses": [{"address_purpose": "MAILING", "city": "RICHMOND", "state": "VA"}]
    }
  ]
}`

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = url + "/api/"
	cfg.RateLimitBackoff = time.Millisecond
	cfg.ConnectionBackoff = time.Millisecond
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestSearchProviders_QueryParameters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/", r.URL.Path)
		assert.Equal(t, "2.1", q.Get("version"))
		assert.Equal(t, "Walter", q.Get("first_name"))
		assert.Equal(t, "Reed", q.Get("last_name"))
		assert.Equal(t, "NPI-1", q.Get("enumeration_type"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.Equal(t, "false", q.Get("pretty"))
		assert.Equal(t, "Silver Spring", q.Get("city"))
		assert.Equal(t, "MD", q.Get("state"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	resp, err := c.SearchProviders(context.Background(), SearchParams{
		FirstName: "  Walter ",
		LastName:  "Reed ",
		City:      " Silver Spring",
		State:     " md ",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ResultCount)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "1234567893", resp.Results[0].Number.String())
	// Numeric NPIs decode as text too.
	assert.Equal(t, "1245319599", resp.Results[1].Number.String())
}

func TestSearchProviders_OmitsEmptyLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasCity := r.URL.Query()["city"]
		_, hasState := r.URL.Query()["state"]
		assert.False(t, hasCity)
		assert.False(t, hasState)
		_, _ = w.Write([]byte(`{"result_count":0,"results":[]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL).SearchProviders(context.Background(), SearchParams{FirstName: "A", LastName: "B"})
	require.NoError(t, err)
	assert.Zero(t, resp.ResultCount)
}

func TestSearchProviders_RetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer server.Close()

	resp, err := newTestClient(t, server.URL).SearchProviders(context.Background(), SearchParams{FirstName: "Walter", LastName: "Reed"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ResultCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchProviders_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantMsg    string
		wantStatus int
		wantCalls  int32
	}{
		{
			name:       "rate limit never clears",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantMsg:    "Max retries exceeded",
			wantStatus: http.StatusTooManyRequests,
			wantCalls:  3,
		},
		{
			name:       "bad request fails immediately",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			wantMsg:    "NPPES API error: 400",
			wantStatus: http.StatusBadRequest,
			wantCalls:  1,
		},
		{
			name:       "server error fails immediately",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantMsg:    "NPPES API error: 502",
			wantStatus: http.StatusBadGateway,
			wantCalls:  1,
		},
		{
			name: "registry validation error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"Errors":[{"description":"No valid search criteria provided","field":"generic","number":"04"}]}`))
			},
			wantMsg:    "NPPES API error: No valid search criteria provided",
			wantStatus: http.StatusOK,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).SearchProviders(context.Background(), SearchParams{FirstName: "A", LastName: "B"})
			var up *apperrors.UpstreamError
			require.True(t, errors.As(err, &up), "got %v", err)
			assert.Equal(t, "nppes", up.Service)
			assert.Equal(t, tt.wantMsg, up.Message)
			assert.Equal(t, tt.wantStatus, up.StatusCode)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestSearchProviders_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).SearchProviders(context.Background(), SearchParams{FirstName: "A", LastName: "B"})
	var up *apperrors.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Contains(t, up.Message, "Unable to connect to NPPES API")
	assert.Equal(t, 3, up.Attempts)
}

func TestLookupNPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("number") == "1234567893" {
			_, _ = w.Write([]byte(sampleResponse))
			return
		}
		_, _ = w.Write([]byte(`{"result_count":0,"results":[]}`))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	p, err := c.LookupNPI(context.Background(), "1234567893")
	require.NoError(t, err)
	assert.Equal(t, "REED", p.Basic.LastName)

	_, err = c.LookupNPI(context.Background(), "1245319599")
	var nf *apperrors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = c.LookupNPI(context.Background(), "1234567890")
	var ve *apperrors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
