// Package decompose splits multi-base variant records (MNPs and complex
// indels) into primitive single-position records with exact coordinate
// preservation, and minimizes redundant indel padding.
package decompose

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/align"
	"github.com/variantio/varcord/internal/refseq"
	"github.com/variantio/varcord/internal/vcf"
)

// ErrMultiSample is returned when a record with more than one genotype
// reaches decomposition. The normalization pipeline subsets to a single
// sample first; seeing several here is a programming error, not bad input.
var ErrMultiSample = errors.New("decompose: record has more than one sample genotype")

// MatchingError reports a coordinate-consistency failure after
// decomposition: a primitive record's alleles could not be re-verified
// against the original record. This aborts file-level normalization since
// silently wrong coordinates would corrupt every downstream comparison.
type MatchingError struct {
	Chrom   string
	Pos     int64
	Message string
}

func (e *MatchingError) Error() string {
	return fmt.Sprintf("decompose: coordinate check failed at %s:%d: %s", e.Chrom, e.Pos, e.Message)
}

// Decomposer splits records into primitives. The optional reference genome
// provides anchor bases for indel runs at the very start of a record.
type Decomposer struct {
	genome refseq.Genome
	logger *zap.Logger
}

// New creates a decomposer. genome may be nil; without it, indel runs with
// no in-record anchor base are fatal.
func New(genome refseq.Genome) *Decomposer {
	return &Decomposer{genome: genome, logger: zap.NewNop()}
}

// SetLogger sets the logger for skip accounting.
func (d *Decomposer) SetLogger(l *zap.Logger) {
	d.logger = l
}

// Decompose converts one multi-base record into primitive single-position
// records. The record must carry exactly one sample genotype. Monomorphic
// columns are skipped; a hom-ref or no-call genotype yields no primitives.
// The first primitive keeps the original phase flag; the rest are marked
// phased since they derive from one physical haplotype call.
func (d *Decomposer) Decompose(v *vcf.Variant) ([]*vcf.Variant, error) {
	if len(v.Genotypes) != 1 {
		return nil, fmt.Errorf("%w: %s:%d has %d genotypes", ErrMultiSample, v.Chrom, v.Pos, len(v.Genotypes))
	}
	g := &v.Genotypes[0]

	// Alternate alleles actually called by the genotype, in record order.
	calledAlt := calledAltIndexes(g)
	if len(calledAlt) == 0 {
		return nil, nil
	}

	altSeqs := make([]string, len(calledAlt))
	sameLength := true
	for i, oi := range calledAlt {
		altSeqs[i] = v.AlleleSeq(oi)
		if len(altSeqs[i]) != len(v.Ref) {
			sameLength = false
		}
	}

	var gref string
	var galts []string
	if sameLength {
		gref, galts = v.Ref, altSeqs
	} else {
		gref, galts = align.Multi(v.Ref, altSeqs)
	}

	prims, err := d.extractColumns(v, g, calledAlt, gref, galts)
	if err != nil {
		return nil, err
	}

	for _, p := range prims {
		if err := verifyAgainstOriginal(v, p); err != nil {
			return nil, err
		}
	}

	for i := range prims {
		prims[i].Genotypes[0].Phased = i > 0 || g.Phased
	}
	return prims, nil
}

func calledAltIndexes(g *vcf.Genotype) []int {
	seen := make(map[int]bool)
	var idxs []int
	for _, a := range g.Alleles {
		if a > 0 && !seen[a] {
			seen[a] = true
			idxs = append(idxs, a)
		}
	}
	return idxs
}

// extractColumns walks the shared column space, emitting one primitive per
// polymorphic non-gap column and one primitive indel per contiguous gap run.
func (d *Decomposer) extractColumns(v *vcf.Variant, g *vcf.Genotype, calledAlt []int, gref string, galts []string) ([]*vcf.Variant, error) {
	var prims []*vcf.Variant
	L := len(gref)

	isGapCol := func(c int) bool {
		if gref[c] == align.Gap {
			return true
		}
		for _, ga := range galts {
			if ga[c] == align.Gap {
				return true
			}
		}
		return false
	}

	refOff := 0 // reference bases consumed before the current column
	c := 0
	for c < L {
		if isGapCol(c) {
			e := c
			for e < L && isGapCol(e) {
				e++
			}
			p, consumed, err := d.buildIndelPrimitive(v, g, calledAlt, gref, galts, c, e, refOff)
			if err != nil {
				return nil, err
			}
			if p != nil {
				prims = append(prims, p)
			}
			refOff += consumed
			c = e
			continue
		}

		polymorphic := false
		for _, ga := range galts {
			if ga[c] != gref[c] {
				polymorphic = true
				break
			}
		}
		// A polymorphic column immediately left of a gap run is folded
		// into the run's primitive as its anchor, not emitted on its own.
		if polymorphic && !(c+1 < L && isGapCol(c+1)) {
			p := d.buildSNPPrimitive(v, g, calledAlt, gref, galts, c, refOff)
			if p != nil {
				prims = append(prims, p)
			}
		}
		refOff++
		c++
	}

	return prims, nil
}

// buildSNPPrimitive emits a single-column substitution record.
func (d *Decomposer) buildSNPPrimitive(v *vcf.Variant, g *vcf.Genotype, calledAlt []int, gref string, galts []string, c, refOff int) *vcf.Variant {
	refBase := string(gref[c])
	altBases := make([]string, len(galts))
	for i, ga := range galts {
		altBases[i] = string(ga[c])
	}
	return d.assemblePrimitive(v, g, calledAlt, refBase, altBases, v.Pos+int64(refOff))
}

// buildIndelPrimitive emits one indel record covering the gap run [c, e).
// The column left of the run anchors the record; a run at the record start
// borrows the preceding reference base from the genome. Returns the number
// of reference bases the run consumed.
func (d *Decomposer) buildIndelPrimitive(v *vcf.Variant, g *vcf.Genotype, calledAlt []int, gref string, galts []string, c, e, refOff int) (*vcf.Variant, int, error) {
	consumed := 0
	for i := c; i < e; i++ {
		if gref[i] != align.Gap {
			consumed++
		}
	}

	var refSeq string
	var altSeqs []string
	var pos int64

	if c > 0 {
		a := c - 1
		refSeq = string(gref[a]) + ungapRange(gref, c, e)
		for _, ga := range galts {
			altSeqs = append(altSeqs, string(ga[a])+ungapRange(ga, c, e))
		}
		pos = v.Pos + int64(refOff-1)
	} else {
		if d.genome == nil || v.Pos <= 1 {
			return nil, 0, &MatchingError{
				Chrom:   v.Chrom,
				Pos:     v.Pos,
				Message: "indel run at record start with no reference context for an anchor base",
			}
		}
		anchor, err := d.genome.Sequence(v.Chrom, v.Pos-1, v.Pos-1)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch anchor base: %w", err)
		}
		refSeq = anchor + ungapRange(gref, c, e)
		for _, ga := range galts {
			altSeqs = append(altSeqs, anchor+ungapRange(ga, c, e))
		}
		pos = v.Pos - 1
	}

	refSeq, altSeqs, pos = stripSharedPadding(refSeq, altSeqs, pos)
	p := d.assemblePrimitive(v, g, calledAlt, refSeq, altSeqs, pos)
	return p, consumed, nil
}

// assemblePrimitive builds the primitive record plus its subset genotype.
// Returns nil when every called allele matches the reference at this
// position (monomorphic, nothing to emit).
func (d *Decomposer) assemblePrimitive(v *vcf.Variant, g *vcf.Genotype, calledAlt []int, refSeq string, altSeqs []string, pos int64) *vcf.Variant {
	// Distinct alternate alleles, in order of first appearance.
	var alts []string
	altIdx := make(map[string]int) // sequence -> primitive allele index
	altIdx[refSeq] = 0
	for _, s := range altSeqs {
		if _, ok := altIdx[s]; !ok {
			alts = append(alts, s)
			altIdx[s] = len(alts)
		}
	}
	if len(alts) == 0 {
		return nil
	}

	// Map each original called allele to the primitive allele carrying the
	// same base content at this position.
	origToPrim := make(map[int]int, len(calledAlt)+1)
	origToPrim[0] = 0
	for i, oi := range calledAlt {
		origToPrim[oi] = altIdx[altSeqs[i]]
	}

	alleles := make([]int, len(g.Alleles))
	for i, a := range g.Alleles {
		if a == vcf.NoCall {
			alleles[i] = vcf.NoCall
		} else {
			alleles[i] = origToPrim[a]
		}
	}

	p := &vcf.Variant{
		Source:  v.Source,
		Chrom:   v.Chrom,
		Pos:     pos,
		Ref:     refSeq,
		Alts:    alts,
		Qual:    v.Qual,
		Filters: append([]string(nil), v.Filters...),
		Genotypes: []vcf.Genotype{{
			Sample:  g.Sample,
			Alleles: alleles,
			Qual:    g.Qual,
		}},
	}
	return p
}

func ungapRange(s string, from, to int) string {
	out := make([]byte, 0, to-from)
	for i := from; i < to; i++ {
		if s[i] != align.Gap {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// stripSharedPadding removes shared trailing bases and shared 5' padding
// beyond the anchor base from an indel allele set. Trimming stops when it
// would empty an allele or collapse two distinguishable alleles into one,
// in which case the shared padding base is retained to keep them separable.
func stripSharedPadding(ref string, alts []string, pos int64) (string, []string, int64) {
	all := func(pred func(s string) bool) bool {
		if !pred(ref) {
			return false
		}
		for _, a := range alts {
			if !pred(a) {
				return false
			}
		}
		return true
	}

	trimmable := func(head bool) bool {
		if !all(func(s string) bool { return len(s) > 1 }) {
			return false
		}
		var b byte
		if head {
			b = ref[0]
		} else {
			b = ref[len(ref)-1]
		}
		if head {
			if !all(func(s string) bool { return s[0] == b }) {
				return false
			}
		} else if !all(func(s string) bool { return s[len(s)-1] == b }) {
			return false
		}
		// ambiguity guard: trimming must keep distinct alleles distinct
		seen := make(map[string]bool)
		check := func(s string) bool {
			var t string
			if head {
				t = s[1:]
			} else {
				t = s[:len(s)-1]
			}
			if seen[t] {
				return false
			}
			seen[t] = true
			return true
		}
		if !check(ref) {
			return false
		}
		for _, a := range alts {
			if !check(a) {
				return false
			}
		}
		return true
	}

	for trimmable(false) {
		ref = ref[:len(ref)-1]
		for i := range alts {
			alts[i] = alts[i][:len(alts[i])-1]
		}
	}
	for trimmable(true) {
		ref = ref[1:]
		for i := range alts {
			alts[i] = alts[i][1:]
		}
		pos++
	}
	return ref, alts, pos
}

// verifyAgainstOriginal re-slices the original reference allele at the
// primitive's offset and demands an exact reproduction of the primitive's
// reference allele. An anchor base borrowed from the genome sits one base
// left of the original record and is excluded from the check.
func verifyAgainstOriginal(v, p *vcf.Variant) error {
	off := p.Pos - v.Pos
	refSeq := p.Ref
	if off == -1 {
		refSeq = refSeq[1:]
		off = 0
	}
	if off < 0 || off+int64(len(refSeq)) > int64(len(v.Ref)) {
		return &MatchingError{
			Chrom:   v.Chrom,
			Pos:     v.Pos,
			Message: fmt.Sprintf("primitive at offset %d spans outside the original reference allele", p.Pos-v.Pos),
		}
	}
	if got := v.Ref[off : off+int64(len(refSeq))]; got != refSeq {
		return &MatchingError{
			Chrom:   v.Chrom,
			Pos:     v.Pos,
			Message: fmt.Sprintf("primitive reference %q does not match original slice %q at offset %d", refSeq, got, off),
		}
	}
	return nil
}
