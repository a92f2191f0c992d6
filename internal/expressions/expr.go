package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/meridianfs/onboard/pkg/schema"
)

// ExprEngine implements the Engine interface using expr-lang/expr. The
// compliance engine uses it for criteria guard expressions (score thresholds,
// weighted aggregates) where array helpers like sum/filter/all are handy.
// Thread-safe: compiled *vm.Program objects are cached and reused across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// guardHelpers are onboarding helpers available to every guard expression,
// alongside the caller-supplied variables. Caller data with the same name
// shadows a helper.
func guardHelpers() map[string]any {
	return map[string]any{
		// confidenceBand maps a verification confidence score onto the
		// decision bands shared with identity verification: below 70 fails,
		// 70 to just under 85 needs review, 85 and up passes.
		"confidenceBand": func(score float64) string {
			switch {
			case score < 70:
				return "FAILED"
			case score < 85:
				return "REVIEW_REQUIRED"
			default:
				return "PASSED"
			}
		},
		// withinTolerance reports whether a value lands within tolerance of
		// target, the same check the setup engine applies to allocation and
		// beneficiary sums.
		"withinTolerance": func(value, target, tolerance float64) bool {
			d := value - target
			if d < 0 {
				d = -d
			}
			return d <= tolerance
		},
	}
}

// guardEnv merges the caller data over the helper functions.
func guardEnv(data map[string]any) map[string]any {
	env := guardHelpers()
	for k, v := range data {
		env[k] = v
	}
	return env
}

// NewExprEngine creates a new Expr expression engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		cache: make(map[string]*vm.Program),
	}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string {
	return "expr"
}

// Evaluate compiles (or retrieves from cache) an Expr expression and
// evaluates it against the provided data. The data map is injected as the
// expression environment, making all keys available as top-level variables
// next to the guard helper functions.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression, data)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, guardEnv(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
// The data map is used to infer the environment type for compilation.
func (e *ExprEngine) getOrCompile(expression string, data map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(guardEnv(data)),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
