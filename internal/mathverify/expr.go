// Package mathverify extracts mathematical claims from document source
// and checks them with an exact rational-arithmetic core. It is
// deterministic and side-effect free for identical input, which the
// agent-output cache relies on.
package mathverify

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// ---------------------------------------------------------------------------
// AST
// ---------------------------------------------------------------------------

type expr interface{ isExpr() }

type numLit struct{ val *big.Rat }
type symbol struct{ name string }
type unary struct {
	op byte // '-'
	x  expr
}
type binary struct {
	op   byte // + - * / ^
	l, r expr
}
type call struct {
	fn  string // sqrt
	arg expr
}

func (numLit) isExpr() {}
func (symbol) isExpr() {}
func (unary) isExpr()  {}
func (binary) isExpr() {}
func (call) isExpr()   {}

// ---------------------------------------------------------------------------
// TeX cleanup
// ---------------------------------------------------------------------------

var (
	fracRe  = regexp.MustCompile(`\\[td]?frac\{([^{}]+)\}\{([^{}]+)\}`)
	sqrtRe  = regexp.MustCompile(`\\sqrt\{([^{}]+)\}`)
	spaceRe = regexp.MustCompile(`\\[,;!:]`)
	cmdRe   = regexp.MustCompile(`\\(left|right|text\{[^}]*\}|mathrm\{[^}]*\})`)
)

// texToInfix rewrites common TeX math constructs into plain infix form
// the tokenizer understands. Unknown constructs survive as-is and fail
// parsing later, which surfaces as an unverifiable claim.
func texToInfix(s string) string {
	s = spaceRe.ReplaceAllString(s, "")
	s = cmdRe.ReplaceAllString(s, "")

	// \frac{a}{b} -> ((a)/(b)), innermost first
	for i := 0; i < 10 && strings.Contains(s, "frac"); i++ {
		next := fracRe.ReplaceAllString(s, `(($1)/($2))`)
		if next == s {
			break
		}
		s = next
	}
	s = sqrtRe.ReplaceAllString(s, `sqrt($1)`)

	s = strings.ReplaceAll(s, `\cdot`, "*")
	s = strings.ReplaceAll(s, `\times`, "*")
	s = strings.ReplaceAll(s, `\div`, "/")
	s = strings.ReplaceAll(s, `\pi`, "pi")
	s = strings.ReplaceAll(s, `\`, "")

	// Exponent braces: x^{12} -> x^(12); leftover grouping braces -> parens.
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

// ---------------------------------------------------------------------------
// Tokenizer
// ---------------------------------------------------------------------------

type tokKind int

const (
	tokNum tokKind = iota
	tokSym
	tokFn
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	val  *big.Rat
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			r, ok := new(big.Rat).SetString(s[i:j])
			if !ok {
				return nil, fmt.Errorf("bad number %q", s[i:j])
			}
			toks = append(toks, token{kind: tokNum, text: s[i:j], val: r})
			i = j
		case isLetter(c):
			j := i
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			word := s[i:j]
			switch word {
			case "sqrt":
				toks = append(toks, token{kind: tokFn, text: "sqrt"})
			case "pi":
				toks = append(toks, token{kind: tokSym, text: "pi"})
			default:
				// Letter runs are implicit products of single-letter
				// symbols: xy means x*y.
				for k := 0; k < len(word); k++ {
					toks = append(toks, token{kind: tokSym, text: string(word[k])})
				}
			}
			i = j
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "("})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")"})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/' || c == '^':
			toks = append(toks, token{kind: tokOp, text: string(c)})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	return toks, nil
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// ---------------------------------------------------------------------------
// Recursive-descent parser
// ---------------------------------------------------------------------------

type parser struct {
	toks []token
	pos  int
}

// parseExpr parses one TeX math expression into an AST.
func parseExpr(tex string) (expr, error) {
	toks, err := tokenize(texToInfix(tex))
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &parser{toks: toks}
	e, err := p.sum()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("trailing input at %q", p.toks[p.pos].text)
	}
	return e, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) sum() (expr, error) {
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		left = binary{op: t.text[0], l: left, r: right}
	}
}

func (p *parser) product() (expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok {
			return left, nil
		}
		switch {
		case t.kind == tokOp && (t.text == "*" || t.text == "/"):
			p.pos++
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = binary{op: t.text[0], l: left, r: right}
		case t.kind == tokNum || t.kind == tokSym || t.kind == tokFn || t.kind == tokLParen:
			// Implicit multiplication: 2x, 3(x+1), x sqrt(2)
			right, err := p.unary()
			if err != nil {
				return nil, err
			}
			left = binary{op: '*', l: left, r: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) unary() (expr, error) {
	t, ok := p.peek()
	if ok && t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.pos++
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return unary{op: '-', x: x}, nil
		}
		return x, nil
	}
	return p.power()
}

func (p *parser) power() (expr, error) {
	base, err := p.atom()
	if err != nil {
		return nil, err
	}
	t, ok := p.peek()
	if ok && t.kind == tokOp && t.text == "^" {
		p.pos++
		// Right-associative; exponent may be a unary-negated atom.
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binary{op: '^', l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) atom() (expr, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	switch t.kind {
	case tokNum:
		p.pos++
		return numLit{val: t.val}, nil
	case tokSym:
		p.pos++
		return symbol{name: t.text}, nil
	case tokFn:
		p.pos++
		nt, ok := p.peek()
		if !ok || nt.kind != tokLParen {
			return nil, fmt.Errorf("%s missing argument", t.text)
		}
		p.pos++
		arg, err := p.sum()
		if err != nil {
			return nil, err
		}
		if ct, ok := p.peek(); !ok || ct.kind != tokRParen {
			return nil, fmt.Errorf("%s missing closing paren", t.text)
		}
		p.pos++
		return call{fn: t.text, arg: arg}, nil
	case tokLParen:
		p.pos++
		e, err := p.sum()
		if err != nil {
			return nil, err
		}
		if ct, ok := p.peek(); !ok || ct.kind != tokRParen {
			return nil, fmt.Errorf("missing closing paren")
		}
		p.pos++
		return e, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// freeVars collects the symbols of an expression in sorted order.
func freeVars(e expr) []string {
	set := map[string]bool{}
	collectVars(e, set)
	var out []string
	for k := range set {
		if k == "pi" {
			continue
		}
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func collectVars(e expr, set map[string]bool) {
	switch v := e.(type) {
	case symbol:
		set[v.name] = true
	case unary:
		collectVars(v.x, set)
	case binary:
		collectVars(v.l, set)
		collectVars(v.r, set)
	case call:
		collectVars(v.arg, set)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
