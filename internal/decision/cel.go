package decision

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELCompiler turns tenant-configured expressions into rule predicates. Programs are
// compiled once and cached by expression text.
type CELCompiler struct {
	env *cel.Env

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// NewCELCompiler declares the variables every feature vector exposes through Activation.
func NewCELCompiler() (*CELCompiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("vendor", cel.StringType),
		cel.Variable("reason_codes", cel.ListType(cel.StringType)),
		cel.Variable("scores", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELCompiler{env: env, prgCache: make(map[string]cel.Program)}, nil
}

func (c *CELCompiler) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, hit := c.prgCache[expr]
	c.mu.RUnlock()
	if hit {
		return prg, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prg, hit = c.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := c.env.Program(ast, cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	c.prgCache[expr] = prg
	return prg, nil
}

// CompileRule builds a Rule whose predicate is a CEL expression. A predicate that fails at
// evaluation time counts as triggered, so a broken tenant rule escalates rather than passes.
func CompileRule[T Activator](c *CELCompiler, name, expr string, action Action) (Rule[T], error) {
	prg, err := c.program(expr)
	if err != nil {
		return Rule[T]{}, err
	}
	return Rule[T]{
		Name:   name,
		Action: action,
		Predicate: func(features T) bool {
			out, _, err := prg.Eval(features.Activation())
			if err != nil {
				return true
			}
			triggered, ok := out.Value().(bool)
			return !ok || triggered
		},
	}, nil
}
