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

// npiPrefixSum is the Luhn contribution of the "80840" issuer prefix that
// precedes every NPI in the check digit calculation.
const npiPrefixSum = 24

// ValidNPI reports whether s is ten digits with a valid Luhn check digit
// over the 80840-prefixed number.
func ValidNPI(s string) bool {
	if len(s) != 10 {
		return false
	}
	sum := npiPrefixSum
	for i := 0; i < 9; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		// Doubling starts from the rightmost payload digit.
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := s[9]
	if check < '0' || check > '9' {
		return false
	}
	return (sum+int(check-'0'))%10 == 0
}
