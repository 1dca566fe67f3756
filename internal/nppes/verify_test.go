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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

type fakeSearcher struct {
	resp   *SearchResponse
	err    error
	params SearchParams
	calls  int
}

func (f *fakeSearcher) SearchProviders(_ context.Context, p SearchParams) (*SearchResponse, error) {
	f.calls++
	f.params = p
	return f.resp, f.err
}

func sampleSearch(t *testing.T) *SearchResponse {
	t.Helper()
	var resp SearchResponse
	require.NoError(t, json.Unmarshal([]byte(sampleResponse), &resp))
	return &resp
}

func TestVerify_RequiresBothNames(t *testing.T) {
	s := &fakeSearcher{}
	v := NewVerifier(s, nil)

	for _, req := range []VerifyRequest{{FirstName: "Walter"}, {LastName: "Reed"}, {FirstName: " ", LastName: "Reed"}} {
		res := v.Verify(context.Background(), req)
		assert.False(t, res.Success)
		assert.Equal(t, "Both first name and last name are required", res.Error)
	}
	assert.Zero(t, s.calls)
}

func TestVerify_Summaries(t *testing.T) {
	s := &fakeSearcher{resp: sampleSearch(t)}
	v := NewVerifier(s, nil)

	res := v.Verify(context.Background(), VerifyRequest{FirstName: "Walter", LastName: "Reed", State: "md", NPI: " 1234567893 "})
	require.True(t, res.Success)
	assert.Equal(t, "md", s.params.State)
	assert.Equal(t, 2, res.ResultCount)
	require.Len(t, res.Providers, 2)

	first := res.Providers[0]
	assert.Equal(t, "Active", first.Status)
	assert.Equal(t, "SILVER SPRING", first.City, "location address preferred over mailing")
	assert.Equal(t, "Cardiovascular Disease", first.Specialty)
	assert.Equal(t, "Dr. Walter J Reed, MD", first.DisplayName)
	require.NotNil(t, first.MatchesNPI)
	assert.True(t, *first.MatchesNPI)

	second := res.Providers[1]
	assert.Equal(t, "Inactive", second.Status)
	assert.Equal(t, "RICHMOND", second.City, "falls back to first address")
	require.NotNil(t, second.MatchesNPI)
	assert.False(t, *second.MatchesNPI)
}

func TestVerify_NoNPIGivesNullMatch(t *testing.T) {
	v := NewVerifier(&fakeSearcher{resp: sampleSearch(t)}, nil)

	res := v.Verify(context.Background(), VerifyRequest{FirstName: "Walter", LastName: "Reed"})
	require.True(t, res.Success)
	assert.Nil(t, res.Providers[0].MatchesNPI)

	m := res.Map()
	providers := m["providers"].([]interface{})
	assert.Nil(t, providers[0].(map[string]interface{})["matches_npi"])
	criteria := m["search_criteria"].(map[string]interface{})
	assert.Nil(t, criteria["npi"])
	assert.Equal(t, "Walter", criteria["first_name"])
}

func TestVerify_ErrorMessages(t *testing.T) {
	up := &apperrors.UpstreamError{Service: "nppes", StatusCode: 500, Message: "NPPES API error: 500"}
	res := NewVerifier(&fakeSearcher{err: up}, nil).Verify(context.Background(), VerifyRequest{FirstName: "A", LastName: "B"})
	assert.False(t, res.Success)
	assert.Equal(t, "NPPES API error: 500", res.Error)

	res = NewVerifier(&fakeSearcher{err: errors.New("boom")}, nil).Verify(context.Background(), VerifyRequest{FirstName: "A", LastName: "B"})
	assert.Equal(t, "An unexpected error occurred during provider verification", res.Error)
	assert.Equal(t, map[string]interface{}{"success": false, "error": res.Error}, res.Map())
}

func TestValidNPI(t *testing.T) {
	assert.True(t, ValidNPI("1234567893"))
	assert.True(t, ValidNPI("1245319599"))
	assert.False(t, ValidNPI("1234567890"))
	assert.False(t, ValidNPI("123456789"))
	assert.False(t, ValidNPI("12345678a3"))
}

type fakeLookup struct {
	fakeSearcher
	provider *Provider
	lookErr  error
}

func (f *fakeLookup) LookupNPI(_ context.Context, npi string) (*Provider, error) {
	return f.provider, f.lookErr
}

func TestVerifyNPI(t *testing.T) {
	resp := sampleSearch(t)
	v := NewVerifier(&fakeLookup{provider: &resp.Results[0]}, nil)

	res := v.VerifyNPI(context.Background(), "1234567893")
	require.True(t, res.Success)
	require.Len(t, res.Providers, 1)
	require.NotNil(t, res.Providers[0].MatchesNPI)
	assert.True(t, *res.Providers[0].MatchesNPI)
	assert.Equal(t, "1234567893", res.Map()["search_criteria"].(map[string]interface{})["npi"])

	tests := []struct {
		err  error
		want string
	}{
		{&apperrors.ValidationError{Field: "npi", Message: `"12" is not a valid 10-digit NPI`}, `"12" is not a valid 10-digit NPI`},
		{&apperrors.NotFoundError{Resource: "provider", ID: "1245319599"}, "No provider found with NPI 1245319599"},
		{&apperrors.UpstreamError{Service: "nppes", Message: "Max retries exceeded"}, "Max retries exceeded"},
		{errors.New("boom"), "An unexpected error occurred during provider verification"},
	}
	for _, tt := range tests {
		res := NewVerifier(&fakeLookup{lookErr: tt.err}, nil).VerifyNPI(context.Background(), " 1245319599 ")
		assert.False(t, res.Success)
		assert.Equal(t, tt.want, res.Error)
	}

	res = NewVerifier(&fakeSearcher{}, nil).VerifyNPI(context.Background(), "1234567893")
	assert.False(t, res.Success, "searchers without NPI lookup cannot verify by number")
}
