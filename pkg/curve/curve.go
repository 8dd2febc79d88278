// Package curve compiles brightness curve expressions into lookup tables.
//
// An expression maps a source reading x in [0, in_max] to an output value in
// [0, out_max], for example "out_max * (x / in_max) ** 0.4545".
package curve

import (
	"fmt"
	"math"
	"strings"

	"github.com/knetic/govaluate"

	"github.com/hoppxi/backlightd/internal/backlight"
)

// Default is a perceptual gamma curve.
const Default = "out_max * (x / in_max) ** 0.4545"

var variables = map[string]bool{"x": true, "in_max": true, "out_max": true}

var functions = map[string]govaluate.ExpressionFunction{
	"sqrt":  unary("sqrt", math.Sqrt),
	"cbrt":  unary("cbrt", math.Cbrt),
	"log":   unary("log", math.Log10),
	"ln":    unary("ln", math.Log),
	"exp":   unary("exp", math.Exp),
	"abs":   unary("abs", math.Abs),
	"ceil":  unary("ceil", math.Ceil),
	"floor": unary("floor", math.Floor),
	"round": unary("round", math.Round),
	"pow":   binary("pow", math.Pow),
	"min":   binary("min", math.Min),
	"max":   binary("max", math.Max),
}

// Curve is a compiled expression.
type Curve struct {
	src  string
	expr *govaluate.EvaluableExpression
}

// Compile parses expr. Only x, in_max and out_max may appear as variables.
func Compile(expr string) (*Curve, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty curve expression")
	}
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, functions)
	if err != nil {
		return nil, fmt.Errorf("parse curve %q: %w", expr, err)
	}
	for _, v := range e.Vars() {
		if !variables[v] {
			return nil, fmt.Errorf("curve %q: unknown variable %q", expr, v)
		}
	}
	return &Curve{src: expr, expr: e}, nil
}

func (c *Curve) String() string { return c.src }

// Eval evaluates the curve at x.
func (c *Curve) Eval(x, inMax, outMax uint32) (float64, error) {
	res, err := c.expr.Evaluate(map[string]any{
		"x":       float64(x),
		"in_max":  float64(inMax),
		"out_max": float64(outMax),
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate curve at x=%d: %w", x, err)
	}
	v, ok := res.(float64)
	if !ok {
		return 0, fmt.Errorf("curve at x=%d is %T, not a number", x, res)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("curve at x=%d is %v", x, v)
	}
	return v, nil
}

// Table evaluates the curve for every reading 0..inMax.
func (c *Curve) Table(inMax, outMax uint32) (backlight.LookupTable, error) {
	values := make([]uint32, 0, int(inMax)+1)
	for x := uint32(0); ; x++ {
		v, err := c.Eval(x, inMax, outMax)
		if err != nil {
			return backlight.LookupTable{}, err
		}
		r := math.Round(v)
		if r < 0 || r > float64(outMax) {
			return backlight.LookupTable{}, fmt.Errorf("curve at x=%d is %v, outside [0, %d]", x, r, outMax)
		}
		values = append(values, uint32(r))
		if x == inMax {
			break
		}
	}
	return backlight.NewLookupTable(values)
}

// Builder adapts the curve to the controller's table builder.
func (c *Curve) Builder() backlight.TableBuilder {
	return c.Table
}

func unary(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes 1 argument, got %d", name, len(args))
		}
		a, err := toFloat64(name, args[0])
		if err != nil {
			return nil, err
		}
		return f(a), nil
	}
}

func binary(name string, f func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s takes 2 arguments, got %d", name, len(args))
		}
		a, err := toFloat64(name, args[0])
		if err != nil {
			return nil, err
		}
		b, err := toFloat64(name, args[1])
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

func toFloat64(name string, arg any) (float64, error) {
	switch v := arg.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s: argument %v is %T, not a number", name, arg, arg)
	}
}
