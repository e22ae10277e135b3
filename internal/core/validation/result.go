// Package validation provides the per-field/rule result aggregates report
// before they are persisted, plus declarative CEL-backed rules.
package validation

import (
	"fmt"
	"strings"
)

// Violation is one unsatisfied rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Result collects violations. A nil *Result is satisfied.
type Result struct {
	violations []Violation
}

// NewResult creates an empty (satisfied) result.
func NewResult() *Result {
	return &Result{}
}

// Add records a violation.
func (r *Result) Add(field, rule, message string) *Result {
	r.violations = append(r.violations, Violation{Field: field, Rule: rule, Message: message})
	return r
}

// Merge appends every violation of other.
func (r *Result) Merge(other *Result) *Result {
	if other != nil {
		r.violations = append(r.violations, other.violations...)
	}
	return r
}

// IsSatisfied reports whether no rule was violated.
func (r *Result) IsSatisfied() bool {
	return r == nil || len(r.violations) == 0
}

// Violations returns a copy of the recorded violations.
func (r *Result) Violations() []Violation {
	if r == nil {
		return nil
	}
	out := make([]Violation, len(r.violations))
	copy(out, r.violations)
	return out
}

// Fields returns violations grouped by field, for API responses.
func (r *Result) Fields() map[string][]string {
	if r.IsSatisfied() {
		return nil
	}
	out := make(map[string][]string, len(r.violations))
	for _, v := range r.violations {
		out[v.Field] = append(out[v.Field], v.Message)
	}
	return out
}

func (r *Result) String() string {
	if r.IsSatisfied() {
		return "ok"
	}
	parts := make([]string, 0, len(r.violations))
	for _, v := range r.violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return strings.Join(parts, "; ")
}
