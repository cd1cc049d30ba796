// Package calculator provides arithmetic tools for the single-agent calculator crew.
package calculator

import (
	"context"
	"errors"
	"math"

	"github.com/lachopopov/multiagent-system-demo/llm/tools"
)

// ErrDivisionByZero is returned by divide when b is zero.
var ErrDivisionByZero = errors.New("division by zero")

// ErrNotFinite is returned when a result overflows or is undefined.
var ErrNotFinite = errors.New("result is not a finite number")

type operands struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Op is a binary arithmetic operation.
type Op func(a, b float64) (float64, error)

var ops = []struct {
	id    tools.ToolID
	desc  string
	names [2]string
	fn    Op
}{
	{tools.Add, "Add two numbers.", [2]string{"first number", "second number"}, func(a, b float64) (float64, error) { return a + b, nil }},
	{tools.Subtract, "Subtract b from a.", [2]string{"first number", "number to subtract"}, func(a, b float64) (float64, error) { return a - b, nil }},
	{tools.Multiply, "Multiply two numbers.", [2]string{"first number", "second number"}, func(a, b float64) (float64, error) { return a * b, nil }},
	{tools.Divide, "Divide a by b. Fails if b is zero.", [2]string{"numerator", "denominator"}, divide},
	{tools.Power, "Raise a to the power of b.", [2]string{"base", "exponent"}, func(a, b float64) (float64, error) { return math.Pow(a, b), nil }},
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

func finite(fn Op) Op {
	return func(a, b float64) (float64, error) {
		v, err := fn(a, b)
		if err != nil {
			return 0, err
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, ErrNotFinite
		}
		return v, nil
	}
}

// Lookup returns the operation for id.
func Lookup(id tools.ToolID) (Op, bool) {
	for _, o := range ops {
		if o.id == id {
			return finite(o.fn), true
		}
	}
	return nil, false
}

// IDs lists the calculator tools in declaration order.
func IDs() []tools.ToolID {
	out := make([]tools.ToolID, 0, len(ops))
	for _, o := range ops {
		out = append(out, o.id)
	}
	return out
}

// Definitions returns every calculator tool ready for registration.
func Definitions() []tools.Definition {
	defs := make([]tools.Definition, 0, len(ops))
	for _, o := range ops {
		fn := finite(o.fn)
		defs = append(defs, tools.Definition{
			ID:          o.id,
			Description: o.desc,
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"a": map[string]any{"type": "number", "description": o.names[0]},
					"b": map[string]any{"type": "number", "description": o.names[1]},
				},
				"required": []string{"a", "b"},
			},
			Handler: tools.Typed(func(ctx context.Context, args operands) (float64, error) {
				return fn(args.A, args.B)
			}),
		})
	}
	return defs
}

// Register adds every calculator tool to r.
func Register(r *tools.Registry) error {
	for _, d := range Definitions() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
