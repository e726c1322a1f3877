package matcher

import "unicode/utf8"

// Score weights. They sum to 1 so Score stays within [0,1].
const (
	weightContainment = 0.45
	weightSequence    = 0.35
	weightDice        = 0.20
)

// minPrefix is the shortest token allowed to match by shared prefix
// ("doc" ~ "docs", "start" ~ "started").
const minPrefix = 3

// Score measures how well cand describes req, in [0,1].
//
// It blends three signals: the share of req's tokens present in cand
// (containment), the longest common subsequence of the joined token
// strings relative to req's length (sequence), and the Dice coefficient
// of the two token sets. Containment dominates because filenames carry
// extra words (site names, "snapshot", dates) that the URL never has.
func Score(req, cand Key) float64 {
	if req.Empty() || cand.Empty() {
		return 0
	}

	m := float64(sharedTokens(req.Tokens, cand.Tokens))
	containment := m / float64(len(req.Tokens))
	dice := 2 * m / float64(len(req.Tokens)+len(cand.Tokens))
	if dice > 1 {
		dice = 1
	}

	var sequence float64
	if n := utf8.RuneCountInString(req.Joined); n > 0 {
		sequence = float64(lcs(req.Joined, cand.Joined)) / float64(n)
	}

	s := weightContainment*containment + weightSequence*sequence + weightDice*dice
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// sharedTokens counts tokens of a that appear in b, exactly or by a
// shared prefix of at least minPrefix runes.
func sharedTokens(a, b []string) int {
	n := 0
	for _, x := range a {
		for _, y := range b {
			if tokensMatch(x, y) {
				n++
				break
			}
		}
	}
	return n
}

func tokensMatch(x, y string) bool {
	if x == y {
		return true
	}
	short, long := x, y
	if len(short) > len(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= minPrefix && len(long) >= len(short) && long[:len(short)] == short
}

// lcs returns the length in runes of the longest common subsequence.
func lcs(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			switch {
			case ra[i-1] == rb[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
