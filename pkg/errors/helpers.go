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

package errors

import (
	"errors"
	"fmt"
)

// Wrap annotates err with message. Returns nil when err is nil.
//
//	if err := client.Search(ctx, params); err != nil {
//	    return errors.Wrap(err, "searching NPPES")
//	}
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is errors.Is from the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As from the standard library.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New from the standard library.
func New(message string) error {
	return errors.New(message)
}

// IsRetryable walks err's chain looking for an ErrorClassifier and reports
// its verdict. Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	var c ErrorClassifier
	if errors.As(err, &c) {
		return c.IsRetryable()
	}
	return false
}

// UserMessage returns the message to show an end user (or hand back to the
// model) for err. Typed errors contribute their own message and everything
// else falls back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var uv UserVisibleError
	if errors.As(err, &uv) && uv.IsUserVisible() {
		return uv.UserMessage()
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return up.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
