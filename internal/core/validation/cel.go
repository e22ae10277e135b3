package validation

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// selfVar is the variable rules see the aggregate through, e.g. "self.total > 0".
const selfVar = "self"

// CELRule is a compiled boolean expression over an aggregate's fields.
type CELRule struct {
	Field   string
	Name    string
	Message string

	expr    string
	program cel.Program
}

// NewCELRule compiles expr. The expression must evaluate to bool.
func NewCELRule(field, name, expr, message string) (*CELRule, error) {
	env, err := cel.NewEnv(
		cel.Variable(selfVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", name, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %q must return bool, got %s", name, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build rule %q: %w", name, err)
	}

	return &CELRule{
		Field:   field,
		Name:    name,
		Message: message,
		expr:    expr,
		program: prg,
	}, nil
}

// MustCELRule is NewCELRule that panics. Use only for package-level rule sets.
func MustCELRule(field, name, expr, message string) *CELRule {
	r, err := NewCELRule(field, name, expr, message)
	if err != nil {
		panic(err)
	}
	return r
}

// Expr returns the source expression.
func (r *CELRule) Expr() string { return r.expr }

// Eval evaluates the rule against vars.
func (r *CELRule) Eval(ctx context.Context, vars map[string]any) (bool, error) {
	out, _, err := r.program.ContextEval(ctx, map[string]any{selfVar: vars})
	if err != nil {
		return false, fmt.Errorf("eval rule %q: %w", r.Name, err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("rule %q returned %T", r.Name, out.Value())
	}
	return ok, nil
}

// RuleSet is an ordered list of rules checked together.
type RuleSet []*CELRule

// Check evaluates every rule and collects violations.
// An evaluation error counts as a violation of that rule.
func (s RuleSet) Check(ctx context.Context, vars map[string]any) *Result {
	res := NewResult()
	for _, rule := range s {
		ok, err := rule.Eval(ctx, vars)
		switch {
		case err != nil:
			res.Add(rule.Field, rule.Name, err.Error())
		case !ok:
			res.Add(rule.Field, rule.Name, rule.Message)
		}
	}
	return res
}
