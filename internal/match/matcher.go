// Package match implements the fuzzy matching core: an fzf-style
// subsequence scorer that reports matched character positions, and span
// coalescing for highlighting.
//
// Both halves are pure functions. Threshold filtering is a caller
// concern; the scorer only answers "does the pattern match, how well,
// and where".
package match

import "unicode"

// Scoring constants. A match is worth scoreMatch; matches that start a
// run at a word boundary or extend a consecutive run earn bonuses; gaps
// between matches pay an affine penalty.
const (
	scoreMatch     = 16
	scoreGapStart  = -3
	scoreGapExtend = -1

	bonusBoundary    = scoreMatch / 2
	bonusConsecutive = -(scoreGapStart + scoreGapExtend)

	// The first pattern character anchors the whole match, so its
	// boundary bonus counts double.
	bonusFirstCharMultiplier = 2
)

const minScore = -1 << 30

// Matcher scores fuzzy subsequence matches. Matching is case-insensitive.
// The zero value is ready to use and safe for concurrent use.
type Matcher struct{}

// New returns a Matcher.
func New() *Matcher { return &Matcher{} }

// Match scores pattern against text. It returns the best achievable
// score, the ascending rune positions in text that contributed to it,
// and whether the pattern matched at all. ok is false only when pattern
// is empty or is not a subsequence of text; a low score is not a
// rejection here.
//
// Scores are deterministic for identical inputs and positions are
// strictly ascending, one per pattern rune.
func (m *Matcher) Match(pattern, text string) (score int64, positions []int, ok bool) {
	pat := foldRunes(pattern)
	if len(pat) == 0 {
		return 0, nil, false
	}
	folded := foldRunes(text)
	if len(pat) > len(folded) {
		return 0, nil, false
	}
	start, end, ok := subsequenceWindow(pat, folded)
	if !ok {
		return 0, nil, false
	}
	return alignWindow(pat, folded, start, end)
}

// foldRunes lowercases s into a rune slice.
func foldRunes(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// subsequenceWindow locates the smallest trailing window of text that
// contains pattern as a subsequence: a forward greedy scan finds the
// earliest end, a backward scan pulls the start up to it. Alignment then
// only has to consider [start, end] instead of the whole document.
func subsequenceWindow(pattern, text []rune) (start, end int, ok bool) {
	pidx := 0
	end = -1
	for i, r := range text {
		if r == pattern[pidx] {
			pidx++
			if pidx == len(pattern) {
				end = i
				break
			}
		}
	}
	if end < 0 {
		return 0, 0, false
	}
	pidx = len(pattern) - 1
	for i := end; i >= 0; i-- {
		if text[i] == pattern[pidx] {
			pidx--
			if pidx < 0 {
				return i, end, true
			}
		}
	}
	return 0, end, true
}

// boundaryBonus returns the bonus for matching text[j] given its
// preceding rune: starting a run right after a non-alphanumeric rune
// (or at the start of the text) is what humans consider a word-boundary
// hit.
func boundaryBonus(text []rune, j int) int {
	if j == 0 {
		return bonusBoundary
	}
	prev := text[j-1]
	if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
		return bonusBoundary
	}
	return 0
}

// alignWindow runs an affine-gap alignment of pattern over
// text[start..end] and tracebacks the optimal positions. The pattern is
// global (every rune must match); the text is local (unmatched text is
// free outside the alignment, penalized as gaps inside it).
func alignWindow(pattern, text []rune, start, end int) (int64, []int, bool) {
	window := text[start : end+1]
	plen, wlen := len(pattern), len(window)

	// scores[i][j]: best score with pattern[i] matched at window[j].
	// parents[i][j]: the j' where pattern[i-1] matched in that solution.
	scores := make([][]int, plen)
	parents := make([][]int, plen)
	for i := range scores {
		scores[i] = make([]int, wlen)
		parents[i] = make([]int, wlen)
	}

	for j := 0; j < wlen; j++ {
		scores[0][j] = minScore
		parents[0][j] = -1
		if window[j] == pattern[0] {
			scores[0][j] = scoreMatch + boundaryBonus(text, start+j)*bonusFirstCharMultiplier
		}
	}

	for i := 1; i < plen; i++ {
		// gapScore tracks max over k <= j-2 of scores[i-1][k] plus the
		// affine penalty for the gap ending just before j.
		gapScore, gapParent := minScore, -1
		for j := 0; j < wlen; j++ {
			scores[i][j] = minScore
			parents[i][j] = -1
			if j >= 2 && scores[i-1][j-2] > minScore {
				if open := scores[i-1][j-2] + scoreGapStart; open > gapScore+scoreGapExtend {
					gapScore, gapParent = open, j-2
				} else if gapScore > minScore {
					gapScore += scoreGapExtend
				}
			} else if gapScore > minScore {
				gapScore += scoreGapExtend
			}
			if window[j] != pattern[i] {
				continue
			}
			bonus := boundaryBonus(text, start+j)
			consecutive, gapped := minScore, minScore
			if j >= 1 && scores[i-1][j-1] > minScore {
				b := bonus
				if bonusConsecutive > b {
					b = bonusConsecutive
				}
				consecutive = scores[i-1][j-1] + scoreMatch + b
			}
			if gapScore > minScore {
				gapped = gapScore + scoreMatch + bonus
			}
			switch {
			case consecutive >= gapped && consecutive > minScore:
				scores[i][j] = consecutive
				parents[i][j] = j - 1
			case gapped > minScore:
				scores[i][j] = gapped
				parents[i][j] = gapParent
			}
		}
	}

	bestScore, bestEnd := minScore, -1
	for j := 0; j < wlen; j++ {
		if scores[plen-1][j] > bestScore {
			bestScore, bestEnd = scores[plen-1][j], j
		}
	}
	if bestEnd < 0 {
		return 0, nil, false
	}

	positions := make([]int, plen)
	for i, j := plen-1, bestEnd; i >= 0; i-- {
		positions[i] = start + j
		j = parents[i][j]
	}
	return int64(bestScore), positions, true
}
