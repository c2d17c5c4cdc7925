// Package align provides the pairwise and multiple sequence alignment
// primitive used for complex indel decomposition. Gap placement is
// canonicalized to the leftmost equivalent position so that substitutions
// adjacent to indels anchor consistently to the 5' reference base.
package align

const (
	matchScore    = 2
	mismatchScore = -2
	gapScore      = -3
)

// Gap is the character used for alignment gaps.
const Gap = '-'

type int32Matrix struct {
	cols  int
	array []int32
}

func newInt32Matrix(rows, cols int) *int32Matrix {
	return &int32Matrix{cols: cols, array: make([]int32, rows*cols)}
}

func (m *int32Matrix) at(row, col int) int32 {
	return m.array[row*m.cols+col]
}

func (m *int32Matrix) setAt(row, col int, value int32) {
	m.array[row*m.cols+col] = value
}

// backtrack directions
const (
	diag int32 = iota
	up         // gap in b (consume a)
	left       // gap in a (consume b)
)

// Global aligns two sequences end to end and returns equal-length gapped
// strings using '-' for gaps. Gap runs are shifted to their leftmost
// equivalent placement in both outputs.
func Global(a, b string) (string, string) {
	n, m := len(a), len(b)
	score := newInt32Matrix(n+1, m+1)
	trace := newInt32Matrix(n+1, m+1)

	for i := 1; i <= n; i++ {
		score.setAt(i, 0, int32(i)*gapScore)
		trace.setAt(i, 0, up)
	}
	for j := 1; j <= m; j++ {
		score.setAt(0, j, int32(j)*gapScore)
		trace.setAt(0, j, left)
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			s := int32(mismatchScore)
			if a[i-1] == b[j-1] {
				s = matchScore
			}
			best := score.at(i-1, j-1) + s
			dir := diag
			if v := score.at(i-1, j) + gapScore; v > best {
				best = v
				dir = up
			}
			if v := score.at(i, j-1) + gapScore; v > best {
				best = v
				dir = left
			}
			score.setAt(i, j, best)
			trace.setAt(i, j, dir)
		}
	}

	// Backtrack from the bottom-right corner.
	var ga, gb []byte
	for i, j := n, m; i > 0 || j > 0; {
		switch trace.at(i, j) {
		case diag:
			ga = append(ga, a[i-1])
			gb = append(gb, b[j-1])
			i--
			j--
		case up:
			ga = append(ga, a[i-1])
			gb = append(gb, Gap)
			i--
		default:
			ga = append(ga, Gap)
			gb = append(gb, b[j-1])
			j--
		}
	}
	reverse(ga)
	reverse(gb)

	leftShiftGaps(ga, gb)
	leftShiftGaps(gb, ga)
	return string(ga), string(gb)
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// leftShiftGaps moves every gap run in s to its leftmost equivalent
// placement. A run shifts one column left whenever the companion string
// carries the same base at the run's entry and exit columns, which keeps
// both ungapped sequences intact while re-pairing columns (a deletion or
// insertion slides left through a repeated-base run).
func leftShiftGaps(s, other []byte) {
	changed := true
	for changed {
		changed = false
		for j := 0; j < len(s); j++ {
			if s[j] != Gap {
				continue
			}
			// find the full run [i, k)
			i := j
			k := j
			for k < len(s) && s[k] == Gap {
				k++
			}
			for i > 0 && s[i-1] != Gap &&
				other[i-1] != Gap && other[i-1] == other[k-1] {
				s[k-1] = s[i-1]
				s[i-1] = Gap
				i--
				k--
				changed = true
			}
			j = k
		}
	}
}

// Multi aligns each alternate sequence against the reference pairwise and
// merges the per-alignment gap patterns into one shared column space, so
// same-column bases across all gapped outputs are directly comparable.
func Multi(ref string, alts []string) (string, []string) {
	if len(alts) == 0 {
		return ref, nil
	}

	// For each alignment, count columns inserted into ref before each ref
	// base (index 0 = before the first base, len(ref) = after the last).
	gappedRefs := make([]string, len(alts))
	gappedAlts := make([]string, len(alts))
	inserts := make([][]int, len(alts))
	for i, alt := range alts {
		gr, ga := Global(ref, alt)
		gappedRefs[i] = gr
		gappedAlts[i] = ga
		inserts[i] = refInsertCounts(gr)
	}

	union := make([]int, len(ref)+1)
	for _, ins := range inserts {
		for k, n := range ins {
			if n > union[k] {
				union[k] = n
			}
		}
	}

	var refOut []byte
	for k := 0; k <= len(ref); k++ {
		for i := 0; i < union[k]; i++ {
			refOut = append(refOut, Gap)
		}
		if k < len(ref) {
			refOut = append(refOut, ref[k])
		}
	}

	for i := range alts {
		gappedAlts[i] = expandToUnion(gappedRefs[i], gappedAlts[i], len(ref), union)
	}
	return string(refOut), gappedAlts
}

// expandToUnion pads one pairwise-gapped alt so every reference slot carries
// the union insert count, making all alts share one column space.
func expandToUnion(gr, ga string, refLen int, want []int) string {
	var out []byte
	i := 0
	for k := 0; k <= refLen; k++ {
		n := 0
		for i < len(gr) && gr[i] == Gap {
			out = append(out, ga[i])
			i++
			n++
		}
		for ; n < want[k]; n++ {
			out = append(out, Gap)
		}
		if k < refLen {
			out = append(out, ga[i])
			i++
		}
	}
	return string(out)
}

// refInsertCounts counts gap columns in a gapped reference string, keyed by
// the number of reference bases consumed before each gap.
func refInsertCounts(gappedRef string) []int {
	counts := make([]int, countBases(gappedRef)+1)
	consumed := 0
	for i := 0; i < len(gappedRef); i++ {
		if gappedRef[i] == Gap {
			counts[consumed]++
		} else {
			consumed++
		}
	}
	return counts
}

func countBases(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] != Gap {
			n++
		}
	}
	return n
}
