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

// Package rules evaluates boolean expr-lang expressions used by the
// insurance and clinical criteria checks. Compiled programs are cached by
// source text.
package rules

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	apperrors "github.com/tombee/referral-agent/pkg/errors"
)

// Engine compiles and runs rule expressions.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New creates an Engine.
func New() *Engine {
	return &Engine{cache: make(map[string]*vm.Program)}
}

// Compile checks that expression is valid, caching the program.
func (e *Engine) Compile(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate runs expression against env. An empty expression is true.
func (e *Engine) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &apperrors.ValidationError{
			Field:   "rule",
			Message: fmt.Sprintf("evaluating %q: %v", expression, err),
		}
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, &apperrors.ValidationError{
			Field:   "rule",
			Message: fmt.Sprintf("%q returned %T, want bool", expression, result),
		}
	}
	return ok, nil
}

func (e *Engine) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.Function("has", hasFunc),
		expr.Function("has_any", hasAnyFunc),
	)
	if err != nil {
		return nil, &apperrors.ValidationError{
			Field:      "rule",
			Message:    fmt.Sprintf("compiling %q: %v", expression, err),
			Suggestion: "check the rule syntax and the variable names it references",
		}
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()
	return prog, nil
}

// hasFunc implements has(collection, term). For lists it reports whether
// any element mentions term; for strings it tests the string itself. See
// mentions for the matching rules.
func hasFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("has requires exactly 2 arguments, got %d", len(args))
	}
	term, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("has: term must be a string, got %T", args[1])
	}
	return contains(args[0], strings.ToLower(term)), nil
}

// hasAnyFunc implements has_any(collection, term...).
func hasAnyFunc(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("has_any requires a collection and at least one term")
	}
	for _, a := range args[1:] {
		term, ok := a.(string)
		if !ok {
			return nil, fmt.Errorf("has_any: terms must be strings, got %T", a)
		}
		if contains(args[0], strings.ToLower(term)) {
			return true, nil
		}
	}
	return false, nil
}

func contains(collection interface{}, term string) bool {
	if collection == nil {
		return false
	}
	v := reflect.ValueOf(collection)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if s, ok := v.Index(i).Interface().(string); ok && mentions(s, term) {
				return true
			}
		}
	case reflect.String:
		return mentions(v.String(), term)
	}
	return false
}

// inflections may follow a term without breaking the match, so
// "palpitation" finds "palpitations" and "faint" finds "fainting".
var inflections = []string{"ness", "ing", "es", "ed", "s", "d", ""}

// negations cancel a match when they appear earlier in the same clause.
var negations = map[string]bool{
	"no": true, "not": true, "denies": true, "denied": true, "deny": true,
	"without": true, "negative": true, "never": true, "absent": true,
}

// mentions reports whether text contains term as a phrase that starts on a
// word boundary, ends on one (after an optional inflection) and is not
// negated earlier in its clause. Negation scope stops at punctuation, so
// "denies chest pain, reports syncope" still mentions syncope.
func mentions(text, term string) bool {
	text = strings.ToLower(text)
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(term)
		from = start + 1

		if start > 0 && isWordByte(text[start-1]) {
			continue
		}
		if !endsWord(text[end:]) {
			continue
		}
		if negated(text[:start]) {
			continue
		}
		return true
	}
	return false
}

func endsWord(rest string) bool {
	for _, suffix := range inflections {
		if strings.HasPrefix(rest, suffix) {
			tail := rest[len(suffix):]
			if tail == "" || !isWordByte(tail[0]) {
				return true
			}
		}
	}
	return false
}

func negated(before string) bool {
	if i := strings.LastIndexAny(before, ".;,:!?"); i >= 0 {
		before = before[i+1:]
	}
	for _, w := range strings.FieldsFunc(before, func(r rune) bool { return r < 0x80 && !isWordByte(byte(r)) }) {
		if negations[w] {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}
