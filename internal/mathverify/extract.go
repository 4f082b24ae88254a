package mathverify

import (
	"fmt"
	"regexp"
	"strings"

	"mathforge/internal/state"
)

// rawClaim is a claim before verification. Solution claims carry the
// exercise equations they must satisfy.
type rawClaim struct {
	expression string
	claimType  string // equation|solution
	context    string
	variable   string   // solution claims
	value      string   // solution claims, stated value
	equations  []string // solution claims, equations from the exercise
}

var (
	inlineMathRe  = regexp.MustCompile(`\$([^$]+)\$`)
	displayMathRe = regexp.MustCompile(`\\\[([\s\S]+?)\\\]`)
	alignLineRe   = regexp.MustCompile(`([^&\\\n]+?)\s*&=\s*([^\\\n]+?)\\\\`)

	taskboxRe         = regexp.MustCompile(`(?s)\\begin\{taskbox\}\{([^}]*)\}(.*?)\\end\{taskbox\}`)
	solutionSectionRe = regexp.MustCompile(`(?s)\\section\*?\{Solutions\}(.*?)(\\section|\z)`)
	exerciseNumRe     = regexp.MustCompile(`(\d+)`)
	subAnswerRe       = regexp.MustCompile(`(?m)([a-z])\)\s*\$?\s*\\?([a-z])\s*=\s*([^$\n,]+?)\$?\s*(?:$|\\\\)`)
	eqInTaskRe        = regexp.MustCompile(`\$([^$]*?=[^$]*?)\$`)

	relationRe  = regexp.MustCompile(`[<>]|\\leq|\\geq|\\neq|\\approx`)
	soloFuncRe  = regexp.MustCompile(`^[a-zA-Z]\(?[a-z]?\)?$`)
)

// extract scans document source for verifiable claims. Best effort:
// fragments that later fail to parse become unverifiable verdicts, they
// are never dropped here.
func extract(source string) []rawClaim {
	var claims []rawClaim
	claims = append(claims, extractEquations(source)...)
	claims = append(claims, extractSolutions(source)...)
	return claims
}

func extractEquations(source string) []rawClaim {
	var claims []rawClaim

	emit := func(raw, context string) {
		raw = strings.TrimSpace(raw)
		if relationRe.MatchString(raw) {
			return // inequalities and approximations are out of scope
		}
		parts := strings.Split(raw, "=")
		if len(parts) < 2 {
			return
		}
		// A chain a = b = c asserts each adjacent pair.
		for i := 0; i+1 < len(parts); i++ {
			lhs := strings.TrimSpace(parts[i])
			rhs := strings.TrimSpace(parts[i+1])
			if lhs == "" || rhs == "" {
				continue
			}
			if isDefinition(lhs) {
				continue
			}
			claims = append(claims, rawClaim{
				expression: lhs + " = " + rhs,
				claimType:  "equation",
				context:    context,
			})
		}
	}

	for _, m := range inlineMathRe.FindAllStringSubmatchIndex(source, -1) {
		body := source[m[2]:m[3]]
		if !strings.Contains(body, "=") {
			continue
		}
		emit(body, contextAround(source, m[0], m[1]))
	}
	for _, m := range displayMathRe.FindAllStringSubmatchIndex(source, -1) {
		body := source[m[2]:m[3]]
		if !strings.Contains(body, "=") || strings.Contains(body, "&") {
			continue
		}
		emit(body, contextAround(source, m[0], m[1]))
	}
	for _, m := range alignLineRe.FindAllStringSubmatch(source, -1) {
		emit(m[1]+" = "+m[2], strings.TrimSpace(m[0]))
	}
	return claims
}

// isDefinition filters assignments with no computational content on the
// left, like f(x) = 2x+1 or a plain variable introduction.
func isDefinition(lhs string) bool {
	return soloFuncRe.MatchString(strings.TrimSpace(lhs))
}

func extractSolutions(source string) []rawClaim {
	secMatch := solutionSectionRe.FindStringSubmatch(source)
	if secMatch == nil {
		return nil
	}
	solutionText := secMatch[1]

	var claims []rawClaim
	for _, task := range taskboxRe.FindAllStringSubmatch(source, -1) {
		title, body := task[1], task[2]
		numMatch := exerciseNumRe.FindStringSubmatch(title)
		if numMatch == nil {
			continue
		}
		num := numMatch[1]

		var equations []string
		for _, eq := range eqInTaskRe.FindAllStringSubmatch(body, -1) {
			equations = append(equations, strings.TrimSpace(eq[1]))
		}
		if len(equations) == 0 {
			continue
		}

		solBlockRe := regexp.MustCompile(
			`(?s)\\textbf\{Exercise\s*` + num + `\}(.*?)(\\textbf|\z)`)
		solBlock := solBlockRe.FindStringSubmatch(solutionText)
		if solBlock == nil {
			continue
		}

		for _, sub := range subAnswerRe.FindAllStringSubmatch(solBlock[1], -1) {
			variable := sub[2]
			value := strings.TrimSpace(sub[3])
			claims = append(claims, rawClaim{
				expression: variable + " = " + value,
				claimType:  "solution",
				context:    fmt.Sprintf("Exercise %s%s): %s", num, sub[1], strings.Join(equations, " ; ")),
				variable:   variable,
				value:      value,
				equations:  equations,
			})
		}
	}
	return claims
}

func contextAround(source string, start, end int) string {
	lo := start - 40
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(source) {
		hi = len(source)
	}
	return strings.TrimSpace(source[lo:hi])
}

// ClaimSignature fingerprints the mathematical content of a document.
// The engine compares signatures before and after a non-repairing pass
// to decide whether verification must re-run.
func ClaimSignature(source string) string {
	var sb strings.Builder
	for _, c := range extract(source) {
		sb.WriteString(c.claimType)
		sb.WriteByte(':')
		sb.WriteString(texToInfix(c.expression))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// toStateClaim converts a raw claim to the ledger form with a
// deterministic id (required: verification of identical input must
// produce an identical ledger).
func toStateClaim(i int, rc rawClaim) state.Claim {
	return state.Claim{
		ID:         fmt.Sprintf("c%d", i+1),
		Expression: rc.expression,
		Type:       rc.claimType,
		Context:    rc.context,
	}
}
