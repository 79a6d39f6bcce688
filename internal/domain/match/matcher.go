// Package match scores approximate trigger-phrase hits in recognizer
// output. Scoring is Damerau-Levenshtein over decomposed text with a
// reduced cost for phonetically confusable substitutions, so the
// near-homophones a speech engine produces still clear the threshold.
package match

import (
	"strings"
)

// Kind classifies how a trigger matched.
type Kind int

const (
	// KindNone means the candidate did not reach the threshold.
	KindNone Kind = iota
	// KindExact means the trigger occurred verbatim inside the haystack.
	KindExact
	// KindFuzzy means the candidate cleared the threshold by edit distance.
	KindFuzzy
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Result reports the outcome of a single trigger/candidate comparison.
// Derived per call, never stored.
type Result struct {
	Matched bool
	Score   float64
	Kind    Kind
}

// none is the zero result returned for rejected candidates.
func none(score float64) Result {
	return Result{Matched: false, Score: score, Kind: KindNone}
}

// Similarity returns a score in [0,1] comparing two short strings.
// Both inputs are normalized and decomposed before alignment. Two empty
// strings are identical; an empty string against a non-empty one scores
// zero. Total function: never fails.
func Similarity(a, b string) float64 {
	da := decompose(Normalize(a))
	db := decompose(Normalize(b))

	if len(da) == 0 && len(db) == 0 {
		return 1
	}
	if len(da) == 0 || len(db) == 0 {
		return 0
	}

	dist := alignmentDistance(da, db)
	longest := len(da)
	if len(db) > longest {
		longest = len(db)
	}

	score := 1 - dist/float64(longest)
	if score < 0 {
		return 0
	}
	return score
}

// Match compares a trigger phrase against a candidate string. An exact
// substring hit short-circuits with score 1; candidates whose decomposed
// length differs from the trigger by more than half the trigger length
// are rejected before edit distance runs; scores at exactly the
// threshold are accepted.
func Match(trigger, candidate string, threshold float64) Result {
	trig := Normalize(trigger)
	cand := Normalize(candidate)
	if trig == "" || cand == "" {
		return none(0)
	}

	if strings.Contains(cand, trig) {
		return Result{Matched: true, Score: 1, Kind: KindExact}
	}

	dt := decompose(trig)
	dc := decompose(cand)

	delta := len(dt) - len(dc)
	if delta < 0 {
		delta = -delta
	}
	if delta*2 > len(dt) {
		return none(0)
	}

	dist := alignmentDistance(dt, dc)
	longest := len(dt)
	if len(dc) > longest {
		longest = len(dc)
	}
	score := 1 - dist/float64(longest)
	if score < 0 {
		score = 0
	}

	if score >= threshold {
		return Result{Matched: true, Score: score, Kind: KindFuzzy}
	}
	return none(score)
}

// alignmentDistance is the optimal-string-alignment distance between two
// decomposed rune slices: unit insert/delete/transpose, substitutions
// priced by the confusable table.
func alignmentDistance(a, b []rune) float64 {
	la, lb := len(a), len(b)

	// Three rolling rows are enough because transpositions only look
	// two rows back.
	prev2 := make([]float64, lb+1)
	prev := make([]float64, lb+1)
	curr := make([]float64, lb+1)

	for j := 0; j <= lb; j++ {
		prev[j] = float64(j)
	}

	for i := 1; i <= la; i++ {
		curr[0] = float64(i)
		for j := 1; j <= lb; j++ {
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + substitutionCost(a[i-1], b[j-1])

			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}

			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				if tr := prev2[j-2] + 1; tr < best {
					best = tr
				}
			}
			curr[j] = best
		}
		prev2, prev, curr = prev, curr, prev2
	}

	return prev[lb]
}
