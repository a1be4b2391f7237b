package fuzzy

import (
	"sort"
	"strings"
)

const (
	// DefaultTopN is the number of matches kept when the caller passes
	// topN <= 0.
	DefaultTopN = 3

	// DefaultThreshold is the minimum similarity score (0-100) a candidate
	// needs to be considered an acceptable match.
	DefaultThreshold = 70
)

// Candidate is one catalog name under consideration, paired with the store
// key that identifies the record it came from.
type Candidate struct {
	Key  string
	Name string
}

// Match is a scored candidate. Matches are produced fresh on every Resolve
// call and must not be cached across calls: the underlying catalog may change
// between calls.
type Match struct {
	Key        string
	Name       string // raw catalog name
	Normalized string
	Score      int // 0-100
}

// Resolve ranks candidates against query by approximate similarity and
// returns at most topN matches scoring at least threshold, best first.
//
// Scoring tolerates substring reordering, insertions and deletions (token-set
// and partial-ratio style, not plain edit distance), because course names are
// short phrases users abbreviate or reorder. Ties keep original candidate
// order, so results are stable across repeated calls.
//
// An empty result is a normal outcome, not an error; callers report it to the
// user as "not found".
func Resolve(query string, candidates []Candidate, topN, threshold int) []Match {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(candidates) == 0 {
		return nil
	}

	q := Normalize(query)

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		n := Normalize(c.Name)
		matches = append(matches, Match{
			Key:        c.Key,
			Name:       c.Name,
			Normalized: n,
			Score:      Score(q, n),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topN {
		matches = matches[:topN]
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// Score returns a 0-100 similarity between two already-normalized strings.
// It is the maximum of a plain edit-distance ratio, a partial ratio (best
// window of the longer string against the shorter), and a token-set ratio
// (order-insensitive token comparison).
func Score(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	best := ratio(a, b)
	if p := partialRatio(a, b); p > best {
		best = p
	}
	if t := tokenSetRatio(a, b); t > best {
		best = t
	}
	return best
}

// ratio is a Levenshtein-based similarity: 100 means equal, 0 means nothing
// in common.
func ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 && lb == 0 {
		return 100
	}
	longer := la
	if lb > longer {
		longer = lb
	}
	d := levenshtein(ra, rb)
	return int(float64(longer-d)/float64(longer)*100 + 0.5)
}

// partialRatio slides the shorter string across the longer one and returns
// the best window ratio. "quimica" scores 100 against "quimica organica".
func partialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(ra) == 0 {
		return 0
	}

	best := 0
	for i := 0; i+len(ra) <= len(rb); i++ {
		if r := ratio(string(ra), string(rb[i:i+len(ra)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// tokenSetRatio compares the sorted token intersection against each side's
// full sorted token set, which makes reordered or partially-overlapping
// phrases score high.
func tokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	full1 := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	full2 := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(full1, full2)
	if base != "" {
		if r := ratio(base, full1); r > best {
			best = r
		}
		if r := ratio(base, full2); r > best {
			best = r
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

// levenshtein computes edit distance with a two-row DP table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
