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

package ehr

import (
	"context"
	"encoding/json"
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

// fakeEHR is an in-memory stand-in for the Practice Fusion API.
type fakeEHR struct {
	t          *testing.T
	patients   []Patient
	events     []Event
	created    int32
	rateLimit  int32
	tokenCalls int32
	lastQuery  map[string]string
}

func (f *fakeEHR) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/ehr/v1/patients", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.lastQuery = map[string]string{}
			for k := range r.URL.Query() {
				f.lastQuery[k] = r.URL.Query().Get(k)
			}
			var out []Patient
			for _, p := range f.patients {
				if p.LastName == r.URL.Query().Get("LastName") {
					out = append(out, p)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"patients": out})
		case http.MethodPost:
			if atomic.AddInt32(&f.rateLimit, -1) >= 0 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			var np NewPatient
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&np))
			n := atomic.AddInt32(&f.created, 1)
			p := Patient{
				PatientPracticeGUID: "patient-" + string(rune('0'+n)),
				FirstName:           np.FirstName,
				LastName:            np.LastName,
				BirthDate:           np.BirthDate,
				Sex:                 np.Sex,
				IsActive:            np.IsActive,
			}
			f.patients = append(f.patients, p)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(p)
		}
	})
	mux.HandleFunc("/ehr/v1/users", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
			{"ehrUserGuid":"u1","firstName":"Walter","lastName":"Reed","credential":"MD","isProvider":true,"isActive":true},
			{"ehrUserGuid":"u2","firstName":"Front","lastName":"Desk","isProvider":false,"isActive":true},
			{"ehrUserGuid":"u3","firstName":"Old","lastName":"Doc","isProvider":true,"isActive":false}]}`))
	})
	mux.HandleFunc("/ehr/v1/facilities", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"facilities":[{"facilityGuid":"f1","name":"Heart Center","timeZone":"America/New_York","isActive":true}]}`))
	})
	mux.HandleFunc("/scheduling/v1/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			f.lastQuery = map[string]string{}
			for k := range r.URL.Query() {
				f.lastQuery[k] = r.URL.Query().Get(k)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"events": f.events})
		case http.MethodPost:
			var ne NewEvent
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&ne))
			if ne.PatientPracticeGUID == "" {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"message":"patientPracticeGuid is required"}`))
				return
			}
			ev := Event{
				EventID:             "evt-1",
				EhrUserGUID:         ne.EhrUserGUID,
				FacilityGUID:        ne.FacilityGUID,
				PatientPracticeGUID: ne.PatientPracticeGUID,
				StartDateTimeUtc:    ne.StartDateTimeUtc,
				DurationMinutes:     ne.DurationMinutes,
				AppointmentStatus:   ne.AppointmentStatus,
			}
			f.events = append(f.events, ev)
			_ = json.NewEncoder(w).Encode(ev)
		}
	})
	return mux
}

func (f *fakeEHR) authorized(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if auth != "Bearer static-token" && auth != "Bearer issued-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func newFakeEHR(t *testing.T) (*fakeEHR, *httptest.Server) {
	f := &fakeEHR{t: t}
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)
	return f, server
}

func testConfig(url string) Config {
	return Config{
		BaseURL:           url,
		AccessToken:       "static-token",
		RateLimitBackoff:  time.Millisecond,
		ConnectionBackoff: time.Millisecond,
	}
}

func TestConfig_Configured(t *testing.T) {
	assert.False(t, Config{}.Configured())
	assert.False(t, Config{BaseURL: "https://x"}.Configured())
	assert.True(t, Config{BaseURL: "https://x", AccessToken: "t"}.Configured())
	assert.True(t, Config{BaseURL: "https://x", TokenURL: "https://x/token", ClientID: "id", ClientSecret: "s"}.Configured())

	_, err := NewClient(Config{}, nil)
	var cfgErr *apperrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestCreatePatient_StaticToken(t *testing.T) {
	f, server := newFakeEHR(t)
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	p, err := c.CreatePatient(context.Background(), NewPatient{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		BirthDate: "1955-12-10",
		Sex:       "f",
	})
	require.NoError(t, err)
	assert.Equal(t, "patient-1", p.PatientPracticeGUID)
	assert.Equal(t, "Ada", p.FirstName)
	assert.Equal(t, "Female", p.Sex)
	assert.True(t, p.IsActive)
	assert.Equal(t, int32(1), f.created)
}

func TestCreatePatient_ClientCredentials(t *testing.T) {
	f, server := newFakeEHR(t)
	cfg := testConfig(server.URL)
	cfg.AccessToken = ""
	cfg.TokenURL = server.URL + "/oauth/token"
	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"

	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = c.SearchPatients(context.Background(), PatientQuery{LastName: "Lovelace"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls), "token is cached between calls")
}

func TestCreatePatient_Validation(t *testing.T) {
	_, server := newFakeEHR(t)
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	tests := []struct {
		name  string
		in    NewPatient
		field string
	}{
		{"missing last name", NewPatient{FirstName: "Ada", BirthDate: "1955-12-10", Sex: "F"}, "LastName"},
		{"bad birth date", NewPatient{FirstName: "Ada", LastName: "L", BirthDate: "12/10/1955", Sex: "F"}, "BirthDate"},
		{"bad email", NewPatient{FirstName: "Ada", LastName: "L", BirthDate: "1955-12-10", Sex: "F", EmailAddress: "nope"}, "EmailAddress"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreatePatient(context.Background(), tt.in)
			var ve *apperrors.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreatePatient_RateLimitedPostIsRetried(t *testing.T) {
	f, server := newFakeEHR(t)
	f.rateLimit = 2
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	p, err := c.CreatePatient(context.Background(), NewPatient{FirstName: "Ada", LastName: "L", BirthDate: "1955-12-10", Sex: "F"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.PatientPracticeGUID)
	assert.Equal(t, int32(1), f.created)
}

func TestFindOrCreatePatient(t *testing.T) {
	f, server := newFakeEHR(t)
	f.patients = []Patient{
		{PatientPracticeGUID: "existing", FirstName: "ADA", LastName: "Lovelace", BirthDate: "1955-12-10"},
	}
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	p, created, err := c.FindOrCreatePatient(context.Background(), NewPatient{FirstName: "Ada", LastName: "Lovelace", BirthDate: "1955-12-10", Sex: "F"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "existing", p.PatientPracticeGUID)
	assert.Equal(t, "1955-12-10", f.lastQuery["BirthDate"])

	p, created, err = c.FindOrCreatePatient(context.Background(), NewPatient{FirstName: "Ada", LastName: "Lovelace", BirthDate: "1960-01-01", Sex: "F"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "existing", p.PatientPracticeGUID)
}

func TestListProvidersAndFacilities(t *testing.T) {
	_, server := newFakeEHR(t)
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	providers, err := c.ListProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "Walter Reed, MD", providers[0].DisplayName())

	facilities, err := c.ListFacilities(context.Background())
	require.NoError(t, err)
	require.Len(t, facilities, 1)
	assert.Equal(t, "America/New_York", facilities[0].TimeZone)
}

func TestEvents(t *testing.T) {
	f, server := newFakeEHR(t)
	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	from := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	_, err = c.QueryEvents(context.Background(), EventQuery{ProviderGUID: "u1", FacilityGUID: "f1", From: from, To: from.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T14:00:00Z", f.lastQuery["minimumStartDateTimeUtc"])
	assert.Equal(t, "2026-03-02T15:00:00Z", f.lastQuery["maximumStartDateTimeUtc"])
	assert.Equal(t, "u1", f.lastQuery["ehrUserGuid"])
	assert.Equal(t, "f1", f.lastQuery["facilityGuid"])

	ev, err := c.CreateEvent(context.Background(), NewEvent{
		EhrUserGUID:         "u1",
		FacilityGUID:        "f1",
		PatientPracticeGUID: "patient-1",
		StartDateTimeUtc:    from,
		DurationMinutes:     60,
		AppointmentStatus:   StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, from.Add(time.Hour), ev.End())
	assert.True(t, ev.Blocks())

	events, err := c.QueryEvents(context.Background(), EventQuery{From: from, To: from.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = c.CreateEvent(context.Background(), NewEvent{EhrUserGUID: "u1", StartDateTimeUtc: from})
	var up *apperrors.UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Equal(t, http.StatusUnprocessableEntity, up.StatusCode)
	assert.Contains(t, up.Message, "patientPracticeGuid is required")
}

func TestNotFoundIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"practice not found"}`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(testConfig(server.URL), nil)
	require.NoError(t, err)

	_, err = c.ListUsers(context.Background())
	var up *apperrors.UpstreamError
	require.True(t, errors.As(err, &up), "got %T", err)
	assert.Equal(t, "ehr", up.Service)
	assert.Equal(t, http.StatusNotFound, up.StatusCode)
	assert.Contains(t, up.Message, "practice not found")

	var nf *apperrors.NotFoundError
	assert.False(t, errors.As(err, &nf))
}

func TestEvent_Blocks(t *testing.T) {
	assert.False(t, Event{AppointmentStatus: StatusCancelled}.Blocks())
	assert.False(t, Event{AppointmentStatus: StatusNoShow}.Blocks())
	assert.True(t, Event{}.Blocks())
}

func TestNormalizeSex(t *testing.T) {
	assert.Equal(t, "Male", NormalizeSex("M"))
	assert.Equal(t, "Female", NormalizeSex(" woman "))
	assert.Equal(t, "Unknown", NormalizeSex(""))
	assert.Equal(t, "Nonbinary", NormalizeSex("Nonbinary"))
}
