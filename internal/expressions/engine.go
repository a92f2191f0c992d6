// Package expressions provides the expression backends used across the
// onboarding core: CEL for transition-rule side conditions, Expr for approval
// criteria guards, and GoJQ for analytics queries over accumulated state data.
package expressions

import "context"

// Engine evaluates an expression against a data scope.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
