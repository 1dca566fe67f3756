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

// Package errors defines the typed errors shared across the referral agent.
package errors

// UserVisibleError is implemented by errors that carry a message suitable
// for a clinician-facing reply.
type UserVisibleError interface {
	error

	// IsUserVisible returns true if this error should be shown to users.
	IsUserVisible() bool

	// UserMessage returns a message free of internal detail.
	UserMessage() string

	// Suggestion returns actionable guidance, or "".
	Suggestion() string
}

// ErrorClassifier is implemented by errors that can be categorised for
// retry decisions and metrics labels.
type ErrorClassifier interface {
	error

	// ErrorType returns a short category such as "validation" or "upstream".
	ErrorType() string

	// IsRetryable returns true if the operation may succeed when repeated.
	IsRetryable() bool
}
