package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilResultIsSatisfied(t *testing.T) {
	var r *Result
	assert.True(t, r.IsSatisfied())
	assert.Nil(t, r.Violations())
	assert.Equal(t, "ok", r.String())
}

func TestResultMerge(t *testing.T) {
	r := NewResult().Add("total", "positive", "must be positive")
	r.Merge(NewResult().Add("customer", "required", "is required"))
	r.Merge(nil)

	assert.False(t, r.IsSatisfied())
	assert.Len(t, r.Violations(), 2)
	assert.Equal(t, map[string][]string{
		"total":    {"must be positive"},
		"customer": {"is required"},
	}, r.Fields())
	assert.Equal(t, "total: must be positive; customer: is required", r.String())
}

func TestCELRuleSet(t *testing.T) {
	rules := RuleSet{
		MustCELRule("customer", "customer_required", `self.customer != ""`, "customer is required"),
		MustCELRule("total", "total_positive", `self.total > 0.0`, "total must be positive"),
	}

	tests := []struct {
		name   string
		vars   map[string]any
		failed []string
	}{
		{"valid", map[string]any{"customer": "acme", "total": 10.5}, nil},
		{"missing customer", map[string]any{"customer": "", "total": 1.0}, []string{"customer_required"}},
		{"both", map[string]any{"customer": "", "total": 0.0}, []string{"customer_required", "total_positive"}},
		{"missing key", map[string]any{"customer": "acme"}, []string{"total_positive"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := rules.Check(context.Background(), tt.vars)
			var got []string
			for _, v := range res.Violations() {
				got = append(got, v.Rule)
			}
			assert.Equal(t, tt.failed, got)
		})
	}
}

func TestNewCELRuleRejectsNonBool(t *testing.T) {
	_, err := NewCELRule("total", "sum", `self.total + 1.0`, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must return bool")
}

func TestNewCELRuleRejectsSyntaxError(t *testing.T) {
	_, err := NewCELRule("total", "broken", `self.total >`, "")
	require.Error(t, err)
}
