package matching

import (
	"math"
	"strings"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/match"
)

// Scoring weights. Title similarity dominates; price proximity and brand
// presence refine the ranking.
const (
	titleWeight = 0.6
	priceWeight = 0.25
	brandWeight = 0.15
)

// minScore is the floor below which a candidate is discarded as noise.
const minScore = 0.3

// scoreCandidate rates how likely a candidate is the same product as the
// source, in [0, 1].
func scoreCandidate(source match.SourceProduct, cand match.Candidate) float64 {
	score := titleWeight * tokenSimilarity(source.Title, cand.Title)

	if source.PriceCents > 0 && cand.PriceCents > 0 {
		score += priceWeight * priceProximity(source.PriceCents, cand.PriceCents)
	}

	if source.Brand != "" && strings.Contains(normalize(cand.Title), normalize(source.Brand)) {
		score += brandWeight
	}

	return math.Min(score, 1)
}

// tokenSimilarity is the Jaccard similarity of the normalized token sets of
// two titles.
func tokenSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	var intersection int
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// priceProximity decays linearly with relative price difference; a candidate
// at double or half the source price scores zero.
func priceProximity(source, candidate int64) float64 {
	diff := math.Abs(float64(source - candidate))
	rel := diff / float64(source)
	if rel >= 1 {
		return 0
	}
	return 1 - rel
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalize(s)) {
		if len(tok) < 2 {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}
