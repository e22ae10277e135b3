// Package filter describes list filters shared by repositories.
package filter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ComparisonType is the comparison an Item applies.
type ComparisonType string

const (
	Equal          ComparisonType = "eq"
	NotEqual       ComparisonType = "neq"
	LessOrEqual    ComparisonType = "lte"
	GreaterOrEqual ComparisonType = "gte"
	InList         ComparisonType = "in"
	Contains       ComparisonType = "contains" // ILIKE %val%
)

// Item is one filter row.
type Item struct {
	Field    string         `json:"field"` // snake_case column name
	Operator ComparisonType `json:"operator"`
	Value    any            `json:"value"`
}

// Validate checks the operator and that the field is one of allowed.
func (it Item) Validate(allowed map[string]bool) error {
	if !allowed[it.Field] {
		return fmt.Errorf("field %q cannot be filtered", it.Field)
	}
	switch it.Operator {
	case Equal, NotEqual, LessOrEqual, GreaterOrEqual, Contains:
	case InList:
		if _, ok := it.Value.([]any); !ok {
			return fmt.Errorf("operator %q needs a list value", it.Operator)
		}
	default:
		return fmt.Errorf("unknown operator %q", it.Operator)
	}
	return nil
}

// Match evaluates the item against a flat field map. Decimal and numeric
// values compare numerically, everything else by string form.
func (it Item) Match(fields map[string]any) bool {
	v, ok := fields[it.Field]
	if !ok {
		return false
	}

	switch it.Operator {
	case Equal:
		return compare(v, it.Value) == 0
	case NotEqual:
		return compare(v, it.Value) != 0
	case LessOrEqual:
		return compare(v, it.Value) <= 0
	case GreaterOrEqual:
		return compare(v, it.Value) >= 0
	case InList:
		list, _ := it.Value.([]any)
		for _, candidate := range list {
			if compare(v, candidate) == 0 {
				return true
			}
		}
		return false
	case Contains:
		return strings.Contains(
			strings.ToLower(fmt.Sprint(v)),
			strings.ToLower(fmt.Sprint(it.Value)),
		)
	}
	return false
}

// MatchAll reports whether every item matches.
func MatchAll(items []Item, fields map[string]any) bool {
	for _, it := range items {
		if !it.Match(fields) {
			return false
		}
	}
	return true
}

func compare(a, b any) int {
	da, aok := asDecimal(a)
	db, bok := asDecimal(b)
	if aok && bok {
		return da.Cmp(db)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(x)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}
