// Package curriculum holds the static grade/topic concept tables the
// plan stage consults. The engine treats lookups as opaque read-only
// data; only prompt builders interpret the contents.
package curriculum

import (
	"sort"
	"strings"
)

// Boundaries lists what a grade level may and may not use. Forbidden
// concepts are those introduced at later grades; the plan stage quotes
// both lists so generated material stays inside the curriculum.
type Boundaries struct {
	Grade     string
	Allowed   []string
	Forbidden []string
}

// gradeOrder fixes the progression so forbidden concepts for a grade
// can be derived from everything introduced later.
var gradeOrder = []string{"5", "8", "9", "10", "vg1"}

// conceptsByGrade lists the concepts introduced at each grade level.
var conceptsByGrade = map[string][]string{
	"5": {
		"decimals and large numbers",
		"negative numbers",
		"fractions, all operations",
		"percent",
		"simple equations",
		"angles, area and perimeter",
		"the coordinate system",
		"mean, median and mode",
	},
	"8": {
		"powers and square roots",
		"algebraic expressions",
		"factoring expressions",
		"linear equations in one unknown",
		"percent change and growth factor",
		"the Pythagorean theorem",
		"volume and surface area",
		"linear relationships between table, graph and formula",
		"basic probability",
	},
	"9": {
		"powers with negative exponents",
		"standard form",
		"inequalities",
		"systems of two linear equations",
		"interest and loans",
		"exponential growth",
		"linear functions, slope and intercept",
		"intersection of lines",
		"combinatorics",
	},
	"10": {
		"irrational numbers",
		"factoring quadratic expressions",
		"quadratic equations",
		"quadratic functions",
		"exponential functions",
		"trigonometry in right triangles",
		"volume of cone, cylinder and sphere",
		"probability models",
	},
	"vg1": {
		"rational expressions",
		"polynomial functions",
		"logarithms",
		"vectors in the plane",
		"analytic geometry",
		"ordered and unordered selections",
	},
}

// topicConcepts narrows the allowed list when the topic names a known
// strand; unknown topics fall back to the full grade list.
var topicConcepts = map[string][]string{
	"linear equations":    {"linear equations in one unknown", "algebraic expressions", "simple equations"},
	"quadratic equations": {"quadratic equations", "factoring quadratic expressions", "quadratic functions"},
	"fractions":           {"fractions, all operations", "percent", "decimals and large numbers"},
	"percent":             {"percent", "percent change and growth factor", "interest and loans"},
	"pythagoras":          {"the Pythagorean theorem", "angles, area and perimeter", "powers and square roots"},
	"functions":           {"linear relationships between table, graph and formula", "linear functions, slope and intercept", "quadratic functions"},
	"probability":         {"basic probability", "combinatorics", "probability models"},
}

func gradeIndex(grade string) int {
	g := normalizeGrade(grade)
	for i, k := range gradeOrder {
		if k == g {
			return i
		}
	}
	return -1
}

func normalizeGrade(grade string) string {
	g := strings.ToLower(strings.TrimSpace(grade))
	g = strings.TrimSuffix(g, ".")
	switch {
	case strings.HasPrefix(g, "vg"):
		return "vg1"
	case g >= "1" && g <= "7" && len(g) == 1:
		return "5"
	default:
		return g
	}
}

// Lookup returns the concept boundaries for a grade and topic. Allowed
// covers everything taught up to and including the grade, filtered to
// the topic's strand when the topic is recognized. Forbidden covers
// concepts introduced later. Unknown grades return empty boundaries.
func Lookup(grade, topic string) Boundaries {
	idx := gradeIndex(grade)
	if idx < 0 {
		return Boundaries{Grade: grade}
	}

	var allowed, forbidden []string
	for i, g := range gradeOrder {
		if i <= idx {
			allowed = append(allowed, conceptsByGrade[g]...)
		} else {
			forbidden = append(forbidden, conceptsByGrade[g]...)
		}
	}

	if strand, ok := topicConcepts[strings.ToLower(strings.TrimSpace(topic))]; ok {
		allowedSet := make(map[string]struct{}, len(allowed))
		for _, c := range allowed {
			allowedSet[c] = struct{}{}
		}
		var narrowed []string
		for _, c := range strand {
			if _, ok := allowedSet[c]; ok {
				narrowed = append(narrowed, c)
			}
		}
		if len(narrowed) > 0 {
			allowed = narrowed
		}
	}

	sort.Strings(allowed)
	sort.Strings(forbidden)
	return Boundaries{Grade: grade, Allowed: allowed, Forbidden: forbidden}
}

// FormatForPrompt renders boundaries as an instruction block for the
// plan prompt.
func (b Boundaries) FormatForPrompt() string {
	var sb strings.Builder
	sb.WriteString("=== CURRICULUM BOUNDARIES (grade ")
	sb.WriteString(b.Grade)
	sb.WriteString(") ===\n")
	if len(b.Allowed) > 0 {
		sb.WriteString("Concepts the material MAY use:\n")
		for _, c := range b.Allowed {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	if len(b.Forbidden) > 0 {
		sb.WriteString("Concepts the material MUST NOT use (taught later):\n")
		for _, c := range b.Forbidden {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
