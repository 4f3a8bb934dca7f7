package tidal

import "github.com/desertthunder/musixporter/internal/shared"

// Ratio measures the similarity of a and b in [0, 1] as 2*M/T, where T is the
// combined length and M the number of characters in the matching blocks found by
// repeatedly taking the longest common substring and recursing on both sides.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	return 2 * float64(matches(ra, rb)) / float64(total)
}

func matches(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	i, j, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size + matches(a[:i], b[:j]) + matches(a[i+size:], b[j+size:])
}

// longestMatch returns the earliest longest common substring of a and b.
func longestMatch(a, b []rune) (int, int, int) {
	bestI, bestJ, best := 0, 0, 0
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] != b[j-1] {
				curr[j] = 0
				continue
			}
			curr[j] = prev[j-1] + 1
			if curr[j] > best {
				best = curr[j]
				bestI, bestJ = i-best, j-best
			}
		}
		prev, curr = curr, prev
	}
	return bestI, bestJ, best
}

// Score rates a candidate against the cleaned source title and artist:
// 0.8 * title similarity + 0.2 * artist similarity, plus 0.1 when both
// durations are known and within 3 seconds.
func Score(title, artist string, duration int, cand Track) float64 {
	t := Ratio(title, shared.CleanString(cand.Title))
	a := Ratio(artist, shared.CleanString(cand.PrimaryArtist().Name))

	score := t*0.8 + a*0.2
	if duration > 0 && cand.Duration > 0 && abs(cand.Duration-duration) <= 3 {
		score += 0.1
	}
	return score
}

// plausible prunes candidates whose cleaned title differs too much in length or
// starts with a different character.
func plausible(title, candTitle string) bool {
	lt, lc := []rune(title), []rune(candTitle)
	if abs(len(lt)-len(lc)) > 10 {
		return false
	}
	if len(lt) == 0 || len(lc) == 0 {
		return len(lt) == len(lc)
	}
	return lt[0] == lc[0]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
