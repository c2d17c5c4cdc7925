// Package phased scores phased diploid or polyploid calls against a haploid
// truth set, such as fosmid or hydatidiform mole sequencing. Calls are
// grouped into phase blocks and each block is assigned the haplotype that
// best explains the truth calls, so an isolated haplotype switch is
// reported as a phasing error rather than a run of discordant calls.
package phased

import (
	"strings"

	"github.com/variantio/varcord/internal/vcf"
)

// Category classifies one scored position.
type Category int

const (
	// Concordant means the chosen haplotype carries the expected allele.
	Concordant Category = iota

	// PhasingError means the expected allele sits on the other haplotype.
	PhasingError

	// Discordant means neither haplotype carries the expected allele.
	Discordant
)

func (c Category) String() string {
	switch c {
	case Concordant:
		return "concordant"
	case PhasingError:
		return "phasing_error"
	case Discordant:
		return "discordant"
	default:
		return "unknown"
	}
}

// Assessment is the scored outcome for one diploid call.
type Assessment struct {
	Variant  *vcf.Variant
	Category Category

	// VariantType is the lowercased kind of the scored call, "snp" or
	// "indel" for the common cases.
	VariantType string

	// NomatchHetAlt marks heterozygous calls whose non-selected allele is
	// a non-reference allele that matches nothing in the truth set, for
	// tracking spurious alternate calls separately.
	NomatchHetAlt bool
}

// Block is one phase block: it starts at the first call of a chromosome
// or at any unphased call, and extends through the calls phased relative
// to it.
type Block struct {
	Calls []*vcf.Variant
}

// SplitBlocks segments diploid calls into phase blocks. Calls must be
// position sorted within each chromosome.
func SplitBlocks(calls []*vcf.Variant) []Block {
	var blocks []Block
	var cur Block
	curChrom := ""

	flush := func() {
		if len(cur.Calls) > 0 {
			blocks = append(blocks, cur)
			cur = Block{}
		}
	}

	for _, v := range calls {
		phased := len(v.Genotypes) > 0 && v.Genotypes[0].Phased
		if v.Chrom != curChrom || !phased {
			flush()
			curChrom = v.Chrom
		}
		cur.Calls = append(cur.Calls, v)
	}
	flush()
	return blocks
}

// RefLookup range-queries the haploid truth calls overlapping a 1-based
// inclusive region.
type RefLookup func(chrom string, start, end int64) []*vcf.Variant

// Scorer evaluates diploid phased calls against a haploid truth set.
type Scorer struct {
	lookup RefLookup
}

// NewScorer indexes haploid truth calls in memory. Use NewLookupScorer to
// score against an external range-queried source instead.
func NewScorer(truth []*vcf.Variant) *Scorer {
	idx := make(map[string][]*vcf.Variant, len(truth))
	for _, v := range truth {
		idx[v.Chrom] = append(idx[v.Chrom], v)
	}
	return NewLookupScorer(func(chrom string, start, end int64) []*vcf.Variant {
		var out []*vcf.Variant
		for _, v := range idx[chrom] {
			if v.Pos >= start && v.Pos <= end {
				out = append(out, v)
			}
		}
		return out
	})
}

// NewLookupScorer wraps an external haploid truth source.
func NewLookupScorer(lookup RefLookup) *Scorer {
	return &Scorer{lookup: lookup}
}

// expectedAlleles returns the base sequences the truth set asserts at the
// call's position. found is false when the truth set has no call there.
func (s *Scorer) expectedAlleles(v *vcf.Variant) (seqs []string, found bool) {
	for _, t := range s.lookup(v.Chrom, v.Pos, v.Pos) {
		if t.Pos != v.Pos || len(t.Genotypes) == 0 || !t.Genotypes[0].Called() {
			continue
		}
		for _, a := range t.Genotypes[0].Alleles {
			seqs = append(seqs, t.AlleleSeq(a))
		}
	}
	return seqs, len(seqs) > 0
}

// Score classifies every diploid call. Block haplotype choice is by
// majority vote over the block's positions; a tied vote picks the lower
// haplotype slot.
func (s *Scorer) Score(calls []*vcf.Variant) []Assessment {
	var out []Assessment
	for _, b := range SplitBlocks(calls) {
		out = append(out, s.scoreBlock(b)...)
	}
	return out
}

func (s *Scorer) scoreBlock(b Block) []Assessment {
	width := blockWidth(b)
	slot := s.chooseSlot(b, width)
	out := make([]Assessment, 0, len(b.Calls))
	for _, v := range b.Calls {
		out = append(out, s.scoreCall(v, slot, width))
	}
	return out
}

// blockWidth is the haplotype slot count of a block, taken from its
// widest genotype. Blocks of diploid calls keep two slots; polyploid
// inputs widen the vote accordingly.
func blockWidth(b Block) int {
	width := 2
	for _, v := range b.Calls {
		if len(v.Genotypes) > 0 && len(v.Genotypes[0].Alleles) > width {
			width = len(v.Genotypes[0].Alleles)
		}
	}
	return width
}

// chooseSlot counts, per haplotype slot, how many block positions carry
// an expected allele, and returns the winning slot. Positions the truth
// set is silent on abstain from the vote; a tied vote picks the lowest
// slot.
func (s *Scorer) chooseSlot(b Block, width int) int {
	votes := make([]int, width)
	for _, v := range b.Calls {
		want, found := s.expectedAlleles(v)
		if !found {
			continue
		}
		for slot := 0; slot < width; slot++ {
			if matches(slotAllele(v, slot), want) {
				votes[slot]++
			}
		}
	}
	winner := 0
	for slot := 1; slot < width; slot++ {
		if votes[slot] > votes[winner] {
			winner = slot
		}
	}
	return winner
}

func (s *Scorer) scoreCall(v *vcf.Variant, slot, width int) Assessment {
	a := Assessment{
		Variant:     v,
		VariantType: strings.ToLower(v.Kind().String()),
	}
	want, found := s.expectedAlleles(v)
	switch {
	case !found:
		a.Category = Discordant
	case matches(slotAllele(v, slot), want):
		a.Category = Concordant
	case otherSlotMatches(v, slot, width, want):
		a.Category = PhasingError
	default:
		a.Category = Discordant
	}

	// A heterozygous call with a non-selected allele that is neither
	// reference nor expected carries a spurious alternate.
	if isHet(v) {
		for other := 0; other < width; other++ {
			if other == slot {
				continue
			}
			if seq := slotAllele(v, other); seq != v.Ref && !matches(seq, want) {
				a.NomatchHetAlt = true
				break
			}
		}
	}
	return a
}

func otherSlotMatches(v *vcf.Variant, slot, width int, want []string) bool {
	for other := 0; other < width; other++ {
		if other != slot && matches(slotAllele(v, other), want) {
			return true
		}
	}
	return false
}

func matches(seq string, want []string) bool {
	for _, w := range want {
		if seq == w {
			return true
		}
	}
	return false
}

// slotAllele is the base sequence on one haplotype slot, or the reference
// sequence when the call has no genotype for that slot.
func slotAllele(v *vcf.Variant, slot int) string {
	if len(v.Genotypes) == 0 {
		return v.Ref
	}
	g := &v.Genotypes[0]
	if slot >= len(g.Alleles) || g.Alleles[slot] == vcf.NoCall {
		return v.Ref
	}
	return v.AlleleSeq(g.Alleles[slot])
}

func isHet(v *vcf.Variant) bool {
	return len(v.Genotypes) > 0 && v.Genotypes[0].Kind() == vcf.GenotypeHet
}

// IsHaploid reports whether every called genotype of the record carries a
// single allele. Sites without genotypes do not count either way.
func IsHaploid(v *vcf.Variant) bool {
	for i := range v.Genotypes {
		if len(v.Genotypes[i].Alleles) != 1 {
			return false
		}
	}
	return len(v.Genotypes) > 0
}

// Tally aggregates assessments into per-variant-type category counts.
func Tally(as []Assessment) map[string]map[string]int {
	out := make(map[string]map[string]int)
	for _, a := range as {
		byCat := out[a.VariantType]
		if byCat == nil {
			byCat = make(map[string]int)
			out[a.VariantType] = byCat
		}
		byCat[a.Category.String()]++
	}
	return out
}
