package cache

import "strings"

// Similarity scores how close two free-text instruction fields are, in
// [0, 1]. The cache treats the implementation as opaque so lexical
// scoring can later be swapped for embeddings without touching callers.
type Similarity interface {
	Score(a, b string) float64
}

// DiceSimilarity scores text pairs with the Sorensen-Dice coefficient
// over word bigrams. It is cheap, symmetric, and order-sensitive enough
// to distinguish reworded instructions from rephrased duplicates.
type DiceSimilarity struct{}

func (DiceSimilarity) Score(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	ba := bigrams(ta)
	bb := bigrams(tb)
	if len(ba) == 0 || len(bb) == 0 {
		// Too short for bigrams, fall back to token overlap.
		ba = toSet(ta)
		bb = toSet(tb)
	}

	var common int
	for g := range ba {
		if _, ok := bb[g]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(ba)+len(bb))
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(s)))
}

func bigrams(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for i := 0; i+1 < len(tokens); i++ {
		out[tokens[i]+" "+tokens[i+1]] = struct{}{}
	}
	return out
}

func toSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}
