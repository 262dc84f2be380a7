package classify

import "strings"

// normalizeName canonicalizes a business name for comparison: lowercase with
// collapsed whitespace.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Similarity returns a ratio in [0, 1] of how alike two names are after
// normalization: twice the total matched characters over the combined length,
// matching greedily on the longest common substring and recursing on the
// pieces either side of it.
func Similarity(a, b string) float64 {
	a = normalizeName(a)
	b = normalizeName(b)
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	matched := matchedChars([]rune(a), []rune(b))
	return 2 * float64(matched) / float64(len([]rune(a))+len([]rune(b)))
}

func matchedChars(a, b []rune) int {
	ai, bi, size := longestCommonRun(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedChars(a[:ai], b[:bi])
	total += matchedChars(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonRun finds the longest common substring of a and b, returning
// its start offsets and length.
func longestCommonRun(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	// lengths[j] holds the common run length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}
	return bestA, bestB, bestSize
}
