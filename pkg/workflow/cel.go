package workflow

import (
	"encoding/json"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// celEvaluator compiles and caches CEL programs for custom-rule
// expressions. Expressions see three variables:
//
//	task          map with the task payload fields
//	actor         map with the acting actor's fields
//	transition_to the target state
type celEvaluator struct {
	mu    sync.Mutex
	env   *cel.Env
	cache map[string]cel.Program
}

func newCELEvaluator() *celEvaluator {
	return &celEvaluator{cache: make(map[string]cel.Program)}
}

func (e *celEvaluator) environment() (*cel.Env, error) {
	if e.env != nil {
		return e.env, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("task", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("actor", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("transition_to", cel.StringType),
	)
	if err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "build cel environment")
	}
	e.env = env
	return env, nil
}

func (e *celEvaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}
	env, err := e.environment()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, record.Wrap(record.CodeInvalidData, issues.Err(), "compile rule expression %q", expr)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "build rule program %q", expr)
	}
	e.cache[expr] = prg
	return prg, nil
}

// eval runs the expression against the transition context. Non-boolean
// results are INVALID_DATA; a failing predicate is (false, nil).
func (e *celEvaluator) eval(expr string, ctx Context) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	vars := map[string]any{
		"task":          toMap(ctx.Task),
		"actor":         toMap(ctx.Actor),
		"transition_to": ctx.TransitionTo,
	}
	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, record.Wrap(record.CodeInvalidData, err, "evaluate rule expression %q", expr)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, record.E(record.CodeInvalidData, "rule expression %q did not yield a boolean", expr)
	}
	return b, nil
}

// toMap flattens a payload into the generic map CEL sees, via its JSON form
// so expressions use the wire field names.
func toMap(v any) map[string]any {
	out := map[string]any{}
	if v == nil {
		return out
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
