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
	"bytes"
	"encoding/json"
	"strconv"
)

// SearchParams narrows an individual-provider search.
type SearchParams struct {
	FirstName string
	LastName  string
	City      string
	State     string
	// Limit caps the result count. Zero uses the client default.
	Limit int
}

// SearchResponse is the registry's reply to a search.
type SearchResponse struct {
	ResultCount int        `json:"result_count"`
	Results     []Provider `json:"results"`
	Errors      []APIError `json:"Errors,omitempty"`
}

// APIError is reported by the registry with HTTP 200 when query
// parameters are rejected.
type APIError struct {
	Description string `json:"description"`
	Field       string `json:"field"`
	Number      string `json:"number"`
}

// Provider is one registry record.
type Provider struct {
	Number           Number     `json:"number"`
	EnumerationType  string     `json:"enumeration_type"`
	Basic            Basic      `json:"basic"`
	Addresses        []Address  `json:"addresses"`
	Taxonomies       []Taxonomy `json:"taxonomies"`
	CreatedEpoch     Number     `json:"created_epoch,omitempty"`
	LastUpdatedEpoch Number     `json:"last_updated_epoch,omitempty"`
}

// Basic holds the individual's name and enumeration details.
type Basic struct {
	FirstName       string `json:"first_name"`
	MiddleName      string `json:"middle_name"`
	LastName        string `json:"last_name"`
	Credential      string `json:"credential"`
	NamePrefix      string `json:"name_prefix"`
	NameSuffix      string `json:"name_suffix"`
	Sex             string `json:"sex"`
	Status          string `json:"status"`
	EnumerationDate string `json:"enumeration_date"`
	LastUpdated     string `json:"last_updated"`
}

// Address purposes used by the registry.
const (
	PurposeLocation = "LOCATION"
	PurposeMailing  = "MAILING"
)

// Address is a practice location or mailing address.
type Address struct {
	Purpose         string `json:"address_purpose"`
	Address1        string `json:"address_1"`
	Address2        string `json:"address_2"`
	City            string `json:"city"`
	State           string `json:"state"`
	PostalCode      string `json:"postal_code"`
	CountryCode     string `json:"country_code"`
	TelephoneNumber string `json:"telephone_number"`
}

// Taxonomy is a specialty classification.
type Taxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
	State   string `json:"state"`
	License string `json:"license"`
}

// Number decodes registry fields that are sent as either JSON strings or
// JSON numbers depending on the API version.
type Number string

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	if i, err := num.Int64(); err == nil {
		*n = Number(strconv.FormatInt(i, 10))
		return nil
	}
	*n = Number(num.String())
	return nil
}

// String returns the number as text.
func (n Number) String() string { return string(n) }

// LocationAddress returns the practice location, falling back to the first
// address on file. The second result is false when there are none.
func (p Provider) LocationAddress() (Address, bool) {
	for _, a := range p.Addresses {
		if a.Purpose == PurposeLocation {
			return a, true
		}
	}
	if len(p.Addresses) > 0 {
		return p.Addresses[0], true
	}
	return Address{}, false
}

// PrimaryTaxonomy returns the taxonomy flagged primary, or the first one.
func (p Provider) PrimaryTaxonomy() (Taxonomy, bool) {
	for _, t := range p.Taxonomies {
		if t.Primary {
			return t, true
		}
	}
	if len(p.Taxonomies) > 0 {
		return p.Taxonomies[0], true
	}
	return Taxonomy{}, false
}
