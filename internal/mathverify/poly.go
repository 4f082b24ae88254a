package mathverify

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// errNotPolynomial marks expressions the exact core cannot normalize
// (symbolic division, non-integer powers, irrational roots). Callers
// fall back to numeric sampling.
var errNotPolynomial = errors.New("not a polynomial")

// poly is a multivariate polynomial with exact rational coefficients,
// keyed by canonical monomial ("" constant, "x", "x^2", "x*y^2").
type poly map[string]*big.Rat

func polyConst(r *big.Rat) poly {
	p := poly{}
	if r.Sign() != 0 {
		p[""] = new(big.Rat).Set(r)
	}
	return p
}

func polyVar(name string) poly {
	return poly{name: big.NewRat(1, 1)}
}

// ---------------------------------------------------------------------------
// Monomial keys
// ---------------------------------------------------------------------------

func parseMonoKey(key string) map[string]int {
	m := map[string]int{}
	if key == "" {
		return m
	}
	for _, part := range strings.Split(key, "*") {
		name := part
		exp := 1
		if idx := strings.Index(part, "^"); idx >= 0 {
			name = part[:idx]
			exp, _ = strconv.Atoi(part[idx+1:])
		}
		m[name] += exp
	}
	return m
}

func monoKey(m map[string]int) string {
	var names []string
	for n, e := range m {
		if e != 0 {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	var parts []string
	for _, n := range names {
		if m[n] == 1 {
			parts = append(parts, n)
		} else {
			parts = append(parts, fmt.Sprintf("%s^%d", n, m[n]))
		}
	}
	return strings.Join(parts, "*")
}

func monoMulKey(a, b string) string {
	ma := parseMonoKey(a)
	for n, e := range parseMonoKey(b) {
		ma[n] += e
	}
	return monoKey(ma)
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (p poly) clone() poly {
	out := poly{}
	for k, v := range p {
		out[k] = new(big.Rat).Set(v)
	}
	return out
}

func (p poly) addTerm(key string, c *big.Rat) {
	if c.Sign() == 0 {
		return
	}
	if cur, ok := p[key]; ok {
		cur.Add(cur, c)
		if cur.Sign() == 0 {
			delete(p, key)
		}
	} else {
		p[key] = new(big.Rat).Set(c)
	}
}

func polyAdd(a, b poly) poly {
	out := a.clone()
	for k, v := range b {
		out.addTerm(k, v)
	}
	return out
}

func polySub(a, b poly) poly {
	out := a.clone()
	neg := new(big.Rat)
	for k, v := range b {
		neg.Neg(v)
		out.addTerm(k, neg)
	}
	return out
}

func polyNeg(a poly) poly {
	out := poly{}
	for k, v := range a {
		out[k] = new(big.Rat).Neg(v)
	}
	return out
}

func polyMul(a, b poly) poly {
	out := poly{}
	t := new(big.Rat)
	for ka, va := range a {
		for kb, vb := range b {
			t.Mul(va, vb)
			out.addTerm(monoMulKey(ka, kb), t)
		}
	}
	return out
}

func polyPow(a poly, n int) poly {
	out := polyConst(big.NewRat(1, 1))
	for i := 0; i < n; i++ {
		out = polyMul(out, a)
	}
	return out
}

func (p poly) isZero() bool { return len(p) == 0 }

// constValue returns the rational value of a constant polynomial.
func (p poly) constValue() (*big.Rat, bool) {
	switch len(p) {
	case 0:
		return new(big.Rat), true
	case 1:
		if c, ok := p[""]; ok {
			return c, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Normalization from AST
// ---------------------------------------------------------------------------

const maxPolyExp = 64

func polyFromExpr(e expr) (poly, error) {
	switch v := e.(type) {
	case numLit:
		return polyConst(v.val), nil
	case symbol:
		// pi stays symbolic; pi-vs-pi claims still cancel exactly.
		return polyVar(v.name), nil
	case unary:
		p, err := polyFromExpr(v.x)
		if err != nil {
			return nil, err
		}
		return polyNeg(p), nil
	case binary:
		l, err := polyFromExpr(v.l)
		if err != nil {
			return nil, err
		}
		r, err := polyFromExpr(v.r)
		if err != nil {
			return nil, err
		}
		switch v.op {
		case '+':
			return polyAdd(l, r), nil
		case '-':
			return polySub(l, r), nil
		case '*':
			return polyMul(l, r), nil
		case '/':
			c, ok := r.constValue()
			if !ok || c.Sign() == 0 {
				return nil, errNotPolynomial
			}
			inv := new(big.Rat).Inv(c)
			return polyMul(l, polyConst(inv)), nil
		case '^':
			c, ok := r.constValue()
			if !ok || !c.IsInt() {
				return nil, errNotPolynomial
			}
			n := c.Num().Int64()
			if n < 0 || n > maxPolyExp {
				return nil, errNotPolynomial
			}
			return polyPow(l, int(n)), nil
		}
		return nil, fmt.Errorf("unknown operator %q", string(v.op))
	case call:
		if v.fn != "sqrt" {
			return nil, errNotPolynomial
		}
		p, err := polyFromExpr(v.arg)
		if err != nil {
			return nil, err
		}
		c, ok := p.constValue()
		if !ok || c.Sign() < 0 {
			return nil, errNotPolynomial
		}
		root, ok := ratSqrt(c)
		if !ok {
			return nil, errNotPolynomial
		}
		return polyConst(root), nil
	}
	return nil, fmt.Errorf("unknown expression node %T", e)
}

// ratSqrt returns the exact square root of a nonnegative rational when
// both numerator and denominator are perfect squares.
func ratSqrt(r *big.Rat) (*big.Rat, bool) {
	num := new(big.Int).Sqrt(r.Num())
	den := new(big.Int).Sqrt(r.Denom())
	if new(big.Int).Mul(num, num).Cmp(r.Num()) != 0 {
		return nil, false
	}
	if new(big.Int).Mul(den, den).Cmp(r.Denom()) != 0 {
		return nil, false
	}
	return new(big.Rat).SetFrac(num, den), true
}

// ---------------------------------------------------------------------------
// Univariate helpers (for solving stated-solution claims)
// ---------------------------------------------------------------------------

// univariateCoeffs extracts coefficients by degree for a polynomial in
// a single variable. Fails if any other variable appears.
func (p poly) univariateCoeffs(v string) (map[int]*big.Rat, error) {
	out := map[int]*big.Rat{}
	for key, c := range p {
		m := parseMonoKey(key)
		deg := 0
		for name, e := range m {
			if name != v {
				return nil, fmt.Errorf("extra variable %s", name)
			}
			deg = e
		}
		out[deg] = new(big.Rat).Set(c)
	}
	return out, nil
}

func (p poly) degree() int {
	max := 0
	for key := range p {
		d := 0
		for _, e := range parseMonoKey(key) {
			d += e
		}
		if d > max {
			max = d
		}
	}
	return max
}

// evalAt substitutes v=val; every monomial must use only v.
func (p poly) evalAt(v string, val *big.Rat) (*big.Rat, error) {
	coeffs, err := p.univariateCoeffs(v)
	if err != nil {
		return nil, err
	}
	sum := new(big.Rat)
	pow := new(big.Rat).SetInt64(1)
	// Degrees are small; iterate from 0 upward.
	maxDeg := 0
	for d := range coeffs {
		if d > maxDeg {
			maxDeg = d
		}
	}
	term := new(big.Rat)
	for d := 0; d <= maxDeg; d++ {
		if c, ok := coeffs[d]; ok {
			term.Mul(c, pow)
			sum.Add(sum, term)
		}
		pow.Mul(pow, val)
	}
	return sum, nil
}

// solveUnivariate solves p = 0 exactly for linear and quadratic p.
// Quadratic roots are returned only when the discriminant is a perfect
// square; otherwise approximate decimal roots are produced.
func (p poly) solveUnivariate(v string) ([]string, error) {
	coeffs, err := p.univariateCoeffs(v)
	if err != nil {
		return nil, err
	}
	deg := p.degree()
	at := func(d int) *big.Rat {
		if c, ok := coeffs[d]; ok {
			return c
		}
		return new(big.Rat)
	}
	switch deg {
	case 1:
		// a*x + b = 0
		root := new(big.Rat).Quo(new(big.Rat).Neg(at(0)), at(1))
		return []string{root.RatString()}, nil
	case 2:
		a, b, c := at(2), at(1), at(0)
		disc := new(big.Rat).Sub(
			new(big.Rat).Mul(b, b),
			new(big.Rat).Mul(big.NewRat(4, 1), new(big.Rat).Mul(a, c)),
		)
		if disc.Sign() < 0 {
			return nil, fmt.Errorf("no real roots")
		}
		twoA := new(big.Rat).Mul(big.NewRat(2, 1), a)
		if root, ok := ratSqrt(disc); ok {
			r1 := new(big.Rat).Quo(new(big.Rat).Sub(new(big.Rat).Neg(b), root), twoA)
			r2 := new(big.Rat).Quo(new(big.Rat).Add(new(big.Rat).Neg(b), root), twoA)
			if r1.Cmp(r2) == 0 {
				return []string{r1.RatString()}, nil
			}
			return []string{r1.RatString(), r2.RatString()}, nil
		}
		bf, _ := b.Float64()
		af, _ := a.Float64()
		df, _ := disc.Float64()
		sq := sqrtFloat(df)
		return []string{
			formatFloat((-bf - sq) / (2 * af)),
			formatFloat((-bf + sq) / (2 * af)),
		}, nil
	default:
		return nil, fmt.Errorf("cannot solve degree %d", deg)
	}
}

// formatPoly renders a polynomial for error reports, highest degree
// first.
func formatPoly(p poly) string {
	if len(p) == 0 {
		return "0"
	}
	type term struct {
		key string
		deg int
	}
	var terms []term
	for key := range p {
		d := 0
		for _, e := range parseMonoKey(key) {
			d += e
		}
		terms = append(terms, term{key, d})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].deg != terms[j].deg {
			return terms[i].deg > terms[j].deg
		}
		return terms[i].key < terms[j].key
	})

	var sb strings.Builder
	for i, t := range terms {
		c := p[t.key]
		neg := c.Sign() < 0
		abs := new(big.Rat).Abs(c)
		if i == 0 {
			if neg {
				sb.WriteString("-")
			}
		} else if neg {
			sb.WriteString(" - ")
		} else {
			sb.WriteString(" + ")
		}
		switch {
		case t.key == "":
			sb.WriteString(abs.RatString())
		case abs.Cmp(big.NewRat(1, 1)) == 0:
			sb.WriteString(t.key)
		default:
			sb.WriteString(abs.RatString() + "*" + t.key)
		}
	}
	return sb.String()
}
