package mathverify

import (
	"reflect"
	"strings"
	"testing"

	"mathforge/internal/state"
)

func TestVerifyEquationClaims(t *testing.T) {
	c := NewChecker(1e-9)

	testCases := []struct {
		name     string
		source   string
		verdict  state.Verdict
		expected string
	}{
		{
			name:    "Correct arithmetic",
			source:  `The sum is $2 + 3 = 5$.`,
			verdict: state.VerdictCorrect,
		},
		{
			name:     "Incorrect arithmetic carries the expected value",
			source:   `The sum is $2 + 3 = 6$.`,
			verdict:  state.VerdictIncorrect,
			expected: "5",
		},
		{
			name:    "Fraction simplification",
			source:  `We get $\frac{6}{2} = 3$.`,
			verdict: state.VerdictCorrect,
		},
		{
			name:    "Exact square root",
			source:  `Note that $\sqrt{16} = 4$.`,
			verdict: state.VerdictCorrect,
		},
		{
			name:    "Polynomial identity",
			source:  `Expanding, $(x+1)^2 = x^2 + 2x + 1$.`,
			verdict: state.VerdictCorrect,
		},
		{
			name:     "Broken polynomial identity with constant difference",
			source:   `Expanding, $(x+1)^2 - x^2 - 2x = 2$.`,
			verdict:  state.VerdictIncorrect,
			expected: "1",
		},
		{
			name:    "Equation with unknowns is not an identity claim",
			source:  `Solve the equation $2x + 4 = 10$.`,
			verdict: state.VerdictUnverifiable,
		},
		{
			name:    "Unparseable fragment is unverifiable, not dropped",
			source:  `Weird: $2 # 3 = 5$.`,
			verdict: state.VerdictUnverifiable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Verify(tc.source)
			if res.Checked != 1 {
				t.Fatalf("expected 1 claim, got %d (%+v)", res.Checked, res.Claims)
			}
			claim := res.Claims[0]
			if claim.Verdict != tc.verdict {
				t.Errorf("verdict: got %s, want %s (detail: %s)", claim.Verdict, tc.verdict, claim.Detail)
			}
			if tc.expected != "" && claim.Expected != tc.expected {
				t.Errorf("expected value: got %q, want %q", claim.Expected, tc.expected)
			}
		})
	}
}

const solutionDoc = `
\section{Exercises}

\begin{taskbox}{Exercise 1}
Solve the equation $2x + 4 = 10$.
\end{taskbox}

\section*{Solutions}
\textbf{Exercise 1}
a) $x = 2$
`

func TestIncorrectSolutionCarriesExpectedRoot(t *testing.T) {
	c := NewChecker(1e-9)
	res := c.Verify(solutionDoc)

	var sol *state.Claim
	for i := range res.Claims {
		if res.Claims[i].Type == "solution" {
			sol = &res.Claims[i]
		}
	}
	if sol == nil {
		t.Fatalf("no solution claim extracted: %+v", res.Claims)
	}
	if sol.Verdict != state.VerdictIncorrect {
		t.Fatalf("expected incorrect verdict, got %s (detail: %s)", sol.Verdict, sol.Detail)
	}
	if sol.Expected != "x = 3" {
		t.Errorf("expected root 'x = 3', got %q", sol.Expected)
	}
	if sol.Actual != "x = 2" {
		t.Errorf("stated value: got %q, want 'x = 2'", sol.Actual)
	}
	if res.AllCorrect {
		t.Error("ledger with an incorrect claim must not report all_correct")
	}
}

func TestCorrectSolutionVerifies(t *testing.T) {
	doc := strings.ReplaceAll(solutionDoc, "$x = 2$", "$x = 3$")
	c := NewChecker(1e-9)
	res := c.Verify(doc)

	for _, claim := range res.Claims {
		if claim.Type == "solution" && claim.Verdict != state.VerdictCorrect {
			t.Errorf("expected correct solution, got %s (detail: %s)", claim.Verdict, claim.Detail)
		}
	}
	if !res.AllCorrect {
		t.Errorf("expected all_correct, got %+v", res)
	}
}

func TestQuadraticSolutionRoots(t *testing.T) {
	doc := `
\begin{taskbox}{Exercise 2}
Solve $x^2 - 5x + 6 = 0$.
\end{taskbox}

\section*{Solutions}
\textbf{Exercise 2}
a) $x = 4$
`
	c := NewChecker(1e-9)
	res := c.Verify(doc)

	var sol *state.Claim
	for i := range res.Claims {
		if res.Claims[i].Type == "solution" {
			sol = &res.Claims[i]
		}
	}
	if sol == nil {
		t.Fatal("no solution claim extracted")
	}
	if sol.Verdict != state.VerdictIncorrect {
		t.Fatalf("expected incorrect, got %s (%s)", sol.Verdict, sol.Detail)
	}
	if sol.Expected != "x = 2 or x = 3" {
		t.Errorf("expected both roots, got %q", sol.Expected)
	}
}

func TestVerifyIsDeterministic(t *testing.T) {
	source := solutionDoc + "\nAlso $2 + 2 = 4$ and $\\frac{1}{3} + \\frac{1}{6} = \\frac{1}{2}$.\n"
	c := NewChecker(1e-9)

	first := c.Verify(source)
	second := c.Verify(source)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("verification is not deterministic:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestAlignEnvironmentLines(t *testing.T) {
	source := `
\begin{align*}
6 + 1 &= 7 \\
10 - 4 &= 5 \\
\end{align*}
`
	c := NewChecker(1e-9)
	res := c.Verify(source)
	if res.Checked != 2 {
		t.Fatalf("expected 2 claims from align lines, got %d", res.Checked)
	}
	if res.Correct != 1 || res.Incorrect != 1 {
		t.Errorf("expected 1 correct + 1 incorrect, got %+v", res)
	}
}

func TestFormatErrorsForPrompt(t *testing.T) {
	c := NewChecker(1e-9)
	res := c.Verify(`$2 + 3 = 6$`)
	report := FormatErrorsForPrompt(res)

	for _, want := range []string{"MATHEMATICAL ERRORS", "2 + 3 = 6", "Expected: 5", "complete corrected document"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestClaimSignatureTracksMathContent(t *testing.T) {
	a := `Intro text. $2 + 3 = 5$`
	b := `Different prose entirely! $2 + 3 = 5$`
	c := `Intro text. $2 + 4 = 6$`

	if ClaimSignature(a) != ClaimSignature(b) {
		t.Error("prose-only change must not alter the claim signature")
	}
	if ClaimSignature(a) == ClaimSignature(c) {
		t.Error("math change must alter the claim signature")
	}
}
