// Package cel provides a CEL-based condition evaluator for hook records.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/hookchain/internal/domain/hook"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions against hook records.
// Compiled programs are cached by expression hash.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[uint64]cel.Program
}

// NewEvaluator creates a new CEL evaluator with the record environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewRecordEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create record environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		programs: make(map[uint64]cel.Program),
	}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
// Programs are reused for identical expressions.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	key := xxhash.Sum64String(expression)

	e.mu.RLock()
	prg, ok := e.programs[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.programs[key] = prg
	e.mu.Unlock()
	return prg, nil
}

// validateNesting checks that the expression does not exceed the maximum allowed
// nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a CEL expression is syntactically valid and
// within the length and nesting limits.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}

	return nil
}

// Evaluate runs a compiled CEL program against rec.
// Returns true if the expression evaluates to true, false otherwise.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, rec *hook.Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, BuildRecordActivation(rec))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// Condition validates and compiles expr into a hook.Condition.
func (e *Evaluator) Condition(expr string) (hook.Condition, error) {
	if err := e.ValidateExpression(expr); err != nil {
		return nil, err
	}
	prg, err := e.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &Condition{evaluator: e, program: prg, expr: expr}, nil
}

// Condition is a compiled CEL expression usable with hook.When.
type Condition struct {
	evaluator *Evaluator
	program   cel.Program
	expr      string
}

// Compile-time check that Condition implements hook.Condition.
var _ hook.Condition = (*Condition)(nil)

// Match evaluates the expression against rec.
func (c *Condition) Match(ctx context.Context, rec *hook.Record) (bool, error) {
	ok, err := c.evaluator.Evaluate(ctx, c.program, rec)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", c.expr, err)
	}
	return ok, nil
}

// String returns the source expression.
func (c *Condition) String() string {
	return c.expr
}
