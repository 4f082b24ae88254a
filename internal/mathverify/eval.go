package mathverify

import (
	"fmt"
	"math"
	"strconv"
)

// evalFloat evaluates an AST numerically. Used when exact polynomial
// normalization is inconclusive (rational functions, irrational roots,
// fractional exponents).
func evalFloat(e expr, env map[string]float64) (float64, error) {
	switch v := e.(type) {
	case numLit:
		f, _ := v.val.Float64()
		return f, nil
	case symbol:
		if v.name == "pi" {
			return math.Pi, nil
		}
		val, ok := env[v.name]
		if !ok {
			return 0, fmt.Errorf("unbound variable %s", v.name)
		}
		return val, nil
	case unary:
		x, err := evalFloat(v.x, env)
		if err != nil {
			return 0, err
		}
		return -x, nil
	case binary:
		l, err := evalFloat(v.l, env)
		if err != nil {
			return 0, err
		}
		r, err := evalFloat(v.r, env)
		if err != nil {
			return 0, err
		}
		switch v.op {
		case '+':
			return l + r, nil
		case '-':
			return l - r, nil
		case '*':
			return l * r, nil
		case '/':
			if math.Abs(r) < 1e-12 {
				return 0, fmt.Errorf("division by zero")
			}
			return l / r, nil
		case '^':
			out := math.Pow(l, r)
			if math.IsNaN(out) || math.IsInf(out, 0) {
				return 0, fmt.Errorf("pow out of domain")
			}
			return out, nil
		}
		return 0, fmt.Errorf("unknown operator %q", string(v.op))
	case call:
		arg, err := evalFloat(v.arg, env)
		if err != nil {
			return 0, err
		}
		if v.fn != "sqrt" {
			return 0, fmt.Errorf("unknown function %s", v.fn)
		}
		if arg < 0 {
			return 0, fmt.Errorf("sqrt of negative value")
		}
		return math.Sqrt(arg), nil
	}
	return 0, fmt.Errorf("unknown expression node %T", e)
}

func sqrtFloat(x float64) float64 { return math.Sqrt(x) }

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 10, 64)
}

// samplePoints assigns deterministic, collision-avoiding values to free
// variables for one numeric trial. Values are fixed so verification of
// identical input is identical.
var sampleBases = []float64{0.7301, 1.3917, 2.5421}

func samplePoints(vars []string, trial int) map[string]float64 {
	env := make(map[string]float64, len(vars))
	for i, v := range vars {
		env[v] = sampleBases[trial%len(sampleBases)] + 0.37*float64(i+1)
	}
	return env
}
