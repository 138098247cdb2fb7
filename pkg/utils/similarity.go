package utils

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Similarity computes a score in [0, 1] describing how close an actual value
// is to an expected one. Strings compare by normalized equality falling back
// to token overlap; numbers compare by relative distance; maps compare by
// per-key similarity averaged over the union of keys.
func Similarity(expected, actual interface{}) float64 {
	if expected == nil && actual == nil {
		return 1.0
	}
	if expected == nil || actual == nil {
		return 0.0
	}

	switch e := expected.(type) {
	case string:
		if a, ok := actual.(string); ok {
			return stringSimilarity(e, a)
		}
		return stringSimilarity(e, fmt.Sprintf("%v", actual))
	case map[string]interface{}:
		if a, ok := actual.(map[string]interface{}); ok {
			return mapSimilarity(e, a)
		}
		return 0.0
	default:
		if en, ok := toFloat(expected); ok {
			if an, ok := toFloat(actual); ok {
				return numericSimilarity(en, an)
			}
		}
		if expected == actual {
			return 1.0
		}
		return stringSimilarity(fmt.Sprintf("%v", expected), fmt.Sprintf("%v", actual))
	}
}

func stringSimilarity(a, b string) float64 {
	na := strings.TrimSpace(norm.NFC.String(a))
	nb := strings.TrimSpace(norm.NFC.String(b))
	if na == nb {
		return 1.0
	}
	if strings.EqualFold(na, nb) {
		return 0.98
	}
	return jaccard(Tokenize(na), Tokenize(nb))
}

func mapSimilarity(a, b map[string]interface{}) float64 {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 1.0
	}

	var total float64
	for k := range keys {
		av, aok := a[k]
		bv, bok := b[k]
		if aok && bok {
			total += Similarity(av, bv)
		}
		// Missing on either side contributes zero
	}
	return total / float64(len(keys))
}

func numericSimilarity(a, b float64) float64 {
	if a == b {
		return 1.0
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 1.0
	}
	diff := math.Abs(a-b) / denom
	if diff > 1 {
		return 0.0
	}
	return 1.0 - diff
}

// Tokenize splits text into lowercase word tokens for overlap comparison.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
