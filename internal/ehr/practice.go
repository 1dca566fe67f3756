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
	"net/http"
	"net/url"
	"time"
)

const (
	usersPath      = "/ehr/v1/users"
	facilitiesPath = "/ehr/v1/facilities"
	eventsPath     = "/scheduling/v1/events"
)

// ListUsers returns every user in the practice.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, usersPath, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ListProviders returns the active users that can be scheduled.
func (c *Client) ListProviders(ctx context.Context) ([]User, error) {
	users, err := c.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	providers := users[:0]
	for _, u := range users {
		if u.IsProvider && u.IsActive {
			providers = append(providers, u)
		}
	}
	return providers, nil
}

// ListFacilities returns the practice's facilities.
func (c *Client) ListFacilities(ctx context.Context) ([]Facility, error) {
	var out struct {
		Facilities []Facility `json:"facilities"`
	}
	if err := c.do(ctx, http.MethodGet, facilitiesPath, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Facilities, nil
}

// QueryEvents returns calendar events whose start falls within q.
func (c *Client) QueryEvents(ctx context.Context, q EventQuery) ([]Event, error) {
	params := url.Values{}
	params.Set("minimumStartDateTimeUtc", q.From.UTC().Format(time.RFC3339))
	params.Set("maximumStartDateTimeUtc", q.To.UTC().Format(time.RFC3339))
	if q.ProviderGUID != "" {
		params.Set("ehrUserGuid", q.ProviderGUID)
	}
	if q.FacilityGUID != "" {
		params.Set("facilityGuid", q.FacilityGUID)
	}

	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, eventsPath, params, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// CreateEvent books a calendar event.
func (c *Client) CreateEvent(ctx context.Context, e NewEvent) (*Event, error) {
	e.StartDateTimeUtc = e.StartDateTimeUtc.UTC()
	var created Event
	if err := c.do(ctx, http.MethodPost, eventsPath, nil, e, &created); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "booked calendar event",
		"event_id", created.EventID,
		"provider_guid", e.EhrUserGUID,
		"start", e.StartDateTimeUtc.Format(time.RFC3339),
	)
	return &created, nil
}
