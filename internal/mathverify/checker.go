package mathverify

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"mathforge/internal/logger"
	"mathforge/internal/state"
)

// Checker verifies extracted claims. It holds no mutable state, so one
// instance is safe for concurrent pipelines.
type Checker struct {
	Epsilon float64
}

func NewChecker(epsilon float64) *Checker {
	if epsilon <= 0 {
		epsilon = 1e-9
	}
	return &Checker{Epsilon: epsilon}
}

// Verify extracts and checks every claim in the document source,
// producing the full verification ledger. Fragments that cannot be
// parsed are recorded as unverifiable, never dropped. A panic in the
// math core downgrades that claim to unverifiable rather than crashing
// the pipeline.
func (c *Checker) Verify(source string) state.VerificationResult {
	raws := extract(source)
	result := state.VerificationResult{Checked: len(raws)}

	for i, rc := range raws {
		claim := toStateClaim(i, rc)
		c.verifyClaim(&claim, rc)
		switch claim.Verdict {
		case state.VerdictCorrect:
			result.Correct++
		case state.VerdictIncorrect:
			result.Incorrect++
		default:
			result.Unverifiable++
		}
		result.Claims = append(result.Claims, claim)
	}

	result.AllCorrect = result.Incorrect == 0
	result.Summary = fmt.Sprintf("Checked %d claims: %d correct, %d incorrect, %d unverifiable.",
		result.Checked, result.Correct, result.Incorrect, result.Unverifiable)

	logger.Log.Printf("[MathVerify] %s", result.Summary)
	return result
}

func (c *Checker) verifyClaim(claim *state.Claim, rc rawClaim) {
	defer func() {
		if r := recover(); r != nil {
			claim.Verdict = state.VerdictUnverifiable
			claim.Detail = fmt.Sprintf("verifier panic: %v", r)
		}
	}()

	if rc.claimType == "solution" {
		c.verifySolution(claim, rc)
		return
	}
	c.verifyEquation(claim, rc)
}

// ---------------------------------------------------------------------------
// Equations: LHS = RHS
// ---------------------------------------------------------------------------

func (c *Checker) verifyEquation(claim *state.Claim, rc rawClaim) {
	parts := strings.SplitN(rc.expression, "=", 2)
	if len(parts) != 2 {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = "no equality found"
		return
	}

	lhs, lerr := parseExpr(parts[0])
	rhs, rerr := parseExpr(parts[1])
	if lerr != nil || rerr != nil {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = fmt.Sprintf("parse error: %v", firstErr(lerr, rerr))
		return
	}

	// Exact path: both sides normalize to polynomials.
	lp, lpErr := polyFromExpr(lhs)
	rp, rpErr := polyFromExpr(rhs)
	if lpErr == nil && rpErr == nil {
		diff := polySub(lp, rp)
		claim.Expected = formatPoly(lp)
		claim.Actual = formatPoly(rp)
		if diff.isZero() {
			claim.Verdict = state.VerdictCorrect
			return
		}
		// A nonzero difference that still contains unknowns is an
		// equation to be solved (exercise statement, derivation step),
		// not a refuted identity.
		if diff.degree() > 0 {
			claim.Verdict = state.VerdictUnverifiable
			claim.Detail = "contains unknowns; an equation to solve, not an identity"
			return
		}
		claim.Verdict = state.VerdictIncorrect
		claim.Detail = fmt.Sprintf("LHS (%s) != RHS (%s), difference = %s",
			formatPoly(lp), formatPoly(rp), formatPoly(diff))
		return
	}
	if !errors.Is(lpErr, errNotPolynomial) && lpErr != nil {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = lpErr.Error()
		return
	}
	if !errors.Is(rpErr, errNotPolynomial) && rpErr != nil {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = rpErr.Error()
		return
	}

	// Numeric fallback: evaluate LHS-RHS at deterministic sample points.
	vars := freeVars(binary{op: '-', l: lhs, r: rhs})
	var lastL, lastR float64
	for trial := 0; trial < 3; trial++ {
		env := samplePoints(vars, trial)
		lv, err1 := evalFloat(lhs, env)
		rv, err2 := evalFloat(rhs, env)
		if err1 != nil || err2 != nil {
			claim.Verdict = state.VerdictUnverifiable
			claim.Detail = fmt.Sprintf("numeric evaluation failed: %v", firstErr(err1, err2))
			return
		}
		if math.Abs(lv-rv) > c.Epsilon*math.Max(1, math.Abs(lv)) {
			if len(vars) > 0 {
				claim.Verdict = state.VerdictUnverifiable
				claim.Detail = "contains unknowns; an equation to solve, not an identity"
				return
			}
			claim.Verdict = state.VerdictIncorrect
			claim.Expected = formatFloat(lv)
			claim.Actual = formatFloat(rv)
			claim.Detail = fmt.Sprintf("LHS evaluates to %s, RHS to %s", formatFloat(lv), formatFloat(rv))
			return
		}
		lastL, lastR = lv, rv
		if len(vars) == 0 {
			break // constant claim, one evaluation suffices
		}
	}
	claim.Verdict = state.VerdictCorrect
	claim.Expected = formatFloat(lastL)
	claim.Actual = formatFloat(lastR)
}

// ---------------------------------------------------------------------------
// Stated solutions: substitute back into the exercise equation
// ---------------------------------------------------------------------------

func (c *Checker) verifySolution(claim *state.Claim, rc rawClaim) {
	valExpr, err := parseExpr(rc.value)
	if err != nil {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = fmt.Sprintf("cannot parse stated value %q: %v", rc.value, err)
		return
	}
	valPoly, vpErr := polyFromExpr(valExpr)
	var valRat *big.Rat
	if vpErr == nil {
		valRat, _ = valPoly.constValue()
	}

	checked := false
	for _, eq := range rc.equations {
		parts := strings.SplitN(eq, "=", 2)
		if len(parts) != 2 {
			continue
		}
		lhs, lerr := parseExpr(parts[0])
		rhs, rerr := parseExpr(parts[1])
		if lerr != nil || rerr != nil {
			continue
		}

		// Exact path.
		if valRat != nil {
			lp, e1 := polyFromExpr(lhs)
			rp, e2 := polyFromExpr(rhs)
			if e1 == nil && e2 == nil {
				diff := polySub(lp, rp)
				res, evalErr := diff.evalAt(rc.variable, valRat)
				if evalErr == nil {
					checked = true
					if res.Sign() == 0 {
						claim.Verdict = state.VerdictCorrect
						return
					}
					claim.Verdict = state.VerdictIncorrect
					claim.Actual = rc.variable + " = " + valRat.RatString()
					if roots, solveErr := diff.solveUnivariate(rc.variable); solveErr == nil {
						claim.Expected = rc.variable + " = " + strings.Join(roots, " or "+rc.variable+" = ")
					}
					claim.Detail = fmt.Sprintf("substituting %s=%s into %s leaves %s, not 0",
						rc.variable, valRat.RatString(), eq, res.RatString())
					return
				}
			}
		}

		// Numeric path.
		valF, evErr := evalFloat(valExpr, map[string]float64{})
		if evErr != nil {
			continue
		}
		env := map[string]float64{rc.variable: valF}
		lv, err1 := evalFloat(lhs, env)
		rv, err2 := evalFloat(rhs, env)
		if err1 != nil || err2 != nil {
			continue
		}
		checked = true
		if math.Abs(lv-rv) <= c.Epsilon*math.Max(1, math.Abs(lv)) {
			claim.Verdict = state.VerdictCorrect
			return
		}
		claim.Verdict = state.VerdictIncorrect
		claim.Actual = rc.variable + " = " + rc.value
		claim.Detail = fmt.Sprintf("substituting %s=%s into %s gives %s vs %s",
			rc.variable, rc.value, eq, formatFloat(lv), formatFloat(rv))
		return
	}

	if !checked {
		claim.Verdict = state.VerdictUnverifiable
		claim.Detail = "could not verify against any exercise equation"
	}
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Repair-prompt formatting
// ---------------------------------------------------------------------------

// FormatErrorsForPrompt renders incorrect claims (and unverifiable ones
// as hints) into actionable instructions for the draft repair pass.
func FormatErrorsForPrompt(r state.VerificationResult) string {
	if r.AllCorrect && r.Unverifiable == 0 {
		return ""
	}

	var sb strings.Builder
	incorrect := r.IncorrectClaims()
	if len(incorrect) > 0 {
		sb.WriteString("=== MATHEMATICAL ERRORS FOUND ===\n")
		fmt.Fprintf(&sb, "Verification found %d errors out of %d claims checked.\n\n", r.Incorrect, r.Checked)
		for i, err := range incorrect {
			fmt.Fprintf(&sb, "ERROR %d:\n", i+1)
			fmt.Fprintf(&sb, "  Expression: %s\n", err.Expression)
			fmt.Fprintf(&sb, "  Type: %s\n", err.Type)
			if err.Expected != "" {
				fmt.Fprintf(&sb, "  Expected: %s\n", err.Expected)
			}
			if err.Actual != "" {
				fmt.Fprintf(&sb, "  Stated: %s\n", err.Actual)
			}
			if err.Detail != "" {
				fmt.Fprintf(&sb, "  Detail: %s\n", err.Detail)
			}
			if err.Context != "" {
				fmt.Fprintf(&sb, "  Context: ...%s...\n", err.Context)
			}
			sb.WriteString("\n")
		}
	}

	unverifiable := r.UnverifiableClaims()
	if len(unverifiable) > 0 {
		sb.WriteString("=== UNVERIFIABLE FRAGMENTS (hints) ===\n")
		sb.WriteString("These fragments could not be checked automatically. Prefer simpler, standard notation so every claim is verifiable.\n")
		for _, u := range unverifiable {
			fmt.Fprintf(&sb, "  - %s (%s)\n", u.Expression, u.Detail)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("FIX ALL ERRORS ABOVE and return the complete corrected document.")
	return sb.String()
}
