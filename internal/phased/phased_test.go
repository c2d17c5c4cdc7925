package phased

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantio/varcord/internal/vcf"
)

func diploid(pos int64, ref, alt string, a0, a1 int, isPhased bool) *vcf.Variant {
	return &vcf.Variant{
		Chrom: "22",
		Pos:   pos,
		Ref:   ref,
		Alts:  []string{alt},
		Genotypes: []vcf.Genotype{
			{Sample: "NA12878", Alleles: []int{a0, a1}, Phased: isPhased},
		},
	}
}

func haploid(pos int64, ref, alt string, a int) *vcf.Variant {
	return &vcf.Variant{
		Chrom: "22",
		Pos:   pos,
		Ref:   ref,
		Alts:  []string{alt},
		Genotypes: []vcf.Genotype{
			{Sample: "fosmid", Alleles: []int{a}},
		},
	}
}

func TestSplitBlocks(t *testing.T) {
	// An unphased call starts a new block; phased successors join it.
	calls := []*vcf.Variant{
		diploid(100, "A", "G", 0, 1, true),
		diploid(150, "C", "T", 1, 0, true),
		diploid(200, "G", "A", 0, 1, false),
		diploid(250, "T", "C", 0, 1, true),
	}
	blocks := SplitBlocks(calls)
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Calls, 2)
	assert.Len(t, blocks[1].Calls, 2)
	assert.Equal(t, int64(200), blocks[1].Calls[0].Pos)
}

func TestSplitBlocksChromosomeBreak(t *testing.T) {
	a := diploid(100, "A", "G", 0, 1, true)
	b := diploid(100, "A", "G", 0, 1, true)
	b.Chrom = "X"
	blocks := SplitBlocks([]*vcf.Variant{a, b})
	require.Len(t, blocks, 2)
}

func TestScoreBlockMajorityVote(t *testing.T) {
	// The truth haplotype matches slot 1 at two of three positions. The
	// third position has the expected allele on slot 0, so it is a
	// phasing error rather than a discordance.
	truth := []*vcf.Variant{
		haploid(100, "A", "G", 1),
		haploid(150, "C", "T", 1),
		haploid(200, "G", "A", 1),
	}
	calls := []*vcf.Variant{
		diploid(100, "A", "G", 0, 1, true),
		diploid(150, "C", "T", 0, 1, true),
		diploid(200, "G", "A", 1, 0, true),
	}
	as := NewScorer(truth).Score(calls)
	require.Len(t, as, 3)
	assert.Equal(t, Concordant, as[0].Category)
	assert.Equal(t, Concordant, as[1].Category)
	assert.Equal(t, PhasingError, as[2].Category)
}

func TestScoreDiscordant(t *testing.T) {
	truth := []*vcf.Variant{haploid(100, "A", "G", 1)}
	calls := []*vcf.Variant{diploid(100, "A", "C", 0, 1, false)}
	as := NewScorer(truth).Score(calls)
	require.Len(t, as, 1)
	assert.Equal(t, Discordant, as[0].Category)
	assert.True(t, as[0].NomatchHetAlt)
	assert.Equal(t, "snp", as[0].VariantType)
}

func TestScoreTruthSilentIsDiscordant(t *testing.T) {
	// No truth call at the position: nothing to match against.
	calls := []*vcf.Variant{diploid(100, "A", "G", 0, 1, false)}
	as := NewScorer(nil).Score(calls)
	require.Len(t, as, 1)
	assert.Equal(t, Discordant, as[0].Category)
}

func TestScoreTruthSilentAbstainsFromVote(t *testing.T) {
	// The silent position must not drag the block's slot vote; the two
	// covered positions decide it.
	truth := []*vcf.Variant{
		haploid(100, "A", "G", 1),
		haploid(200, "G", "A", 1),
	}
	calls := []*vcf.Variant{
		diploid(100, "A", "G", 0, 1, true),
		diploid(150, "C", "T", 1, 0, true),
		diploid(200, "G", "A", 0, 1, true),
	}
	as := NewScorer(truth).Score(calls)
	require.Len(t, as, 3)
	assert.Equal(t, Concordant, as[0].Category)
	assert.Equal(t, Discordant, as[1].Category)
	assert.Equal(t, Concordant, as[2].Category)
}

func TestScoreBlockWideSlotConsistency(t *testing.T) {
	// An unphased call starts the block and its phased successor keeps
	// the block's slot choice, so both positions come out concordant
	// rather than the second being misread as a phasing error.
	truth := []*vcf.Variant{
		haploid(10, "A", "G", 0),
		haploid(11, "G", "A", 0),
	}
	calls := []*vcf.Variant{
		diploid(10, "A", "G", 0, 1, false),
		diploid(11, "G", "A", 0, 1, true),
	}
	as := NewScorer(truth).Score(calls)
	require.Len(t, as, 2)
	assert.Equal(t, Concordant, as[0].Category)
	assert.Equal(t, Concordant, as[1].Category)
}

func TestScoreTieTakesLowerSlot(t *testing.T) {
	truth := []*vcf.Variant{haploid(100, "A", "G", 1)}
	// Hom-alt call votes for both slots equally; slot 0 wins the tie and
	// both slots carry the expected allele anyway.
	calls := []*vcf.Variant{diploid(100, "A", "G", 1, 1, true)}
	as := NewScorer(truth).Score(calls)
	assert.Equal(t, Concordant, as[0].Category)
}

func triploid(pos int64, ref, alt string, a0, a1, a2 int, isPhased bool) *vcf.Variant {
	return &vcf.Variant{
		Chrom: "22",
		Pos:   pos,
		Ref:   ref,
		Alts:  []string{alt},
		Genotypes: []vcf.Genotype{
			{Sample: "NA12878", Alleles: []int{a0, a1, a2}, Phased: isPhased},
		},
	}
}

func TestScoreTriploidBlock(t *testing.T) {
	// The truth haplotype sits on slot 2 at two of three positions; the
	// third carries it on slot 0, a phasing error. A two-slot vote would
	// never select slot 2.
	truth := []*vcf.Variant{
		haploid(100, "A", "G", 1),
		haploid(150, "C", "T", 1),
		haploid(200, "G", "A", 1),
	}
	calls := []*vcf.Variant{
		triploid(100, "A", "G", 0, 0, 1, true),
		triploid(150, "C", "T", 0, 0, 1, true),
		triploid(200, "G", "A", 1, 0, 0, true),
	}
	as := NewScorer(truth).Score(calls)
	require.Len(t, as, 3)
	assert.Equal(t, Concordant, as[0].Category)
	assert.Equal(t, Concordant, as[1].Category)
	assert.Equal(t, PhasingError, as[2].Category)
}

func TestScoreSlotRelabelInvariance(t *testing.T) {
	truth := []*vcf.Variant{
		haploid(100, "A", "G", 1),
		haploid(150, "C", "T", 1),
		haploid(200, "G", "A", 0),
	}
	calls := []*vcf.Variant{
		diploid(100, "A", "G", 0, 1, true),
		diploid(150, "C", "T", 0, 1, true),
		diploid(200, "G", "A", 0, 1, true),
	}
	first := NewScorer(truth).Score(calls)

	swapped := make([]*vcf.Variant, len(calls))
	for i, v := range calls {
		c := v.Clone()
		g := &c.Genotypes[0]
		g.Alleles[0], g.Alleles[1] = g.Alleles[1], g.Alleles[0]
		swapped[i] = c
	}
	second := NewScorer(truth).Score(swapped)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Category, second[i].Category, "position %d", calls[i].Pos)
	}
}

func TestScoreIndelType(t *testing.T) {
	truth := []*vcf.Variant{haploid(100, "AC", "A", 1)}
	calls := []*vcf.Variant{diploid(100, "AC", "A", 0, 1, false)}
	as := NewScorer(truth).Score(calls)
	assert.Equal(t, "indel", as[0].VariantType)
	assert.Equal(t, Concordant, as[0].Category)
}

func TestIsHaploid(t *testing.T) {
	assert.True(t, IsHaploid(haploid(100, "A", "G", 1)))
	assert.False(t, IsHaploid(diploid(100, "A", "G", 0, 1, false)))
	assert.False(t, IsHaploid(&vcf.Variant{Chrom: "22", Pos: 100, Ref: "A"}))
}

func TestTally(t *testing.T) {
	truth := []*vcf.Variant{haploid(100, "A", "G", 1)}
	calls := []*vcf.Variant{
		diploid(100, "A", "G", 0, 1, false),
		diploid(200, "C", "T", 0, 1, false),
	}
	counts := Tally(NewScorer(truth).Score(calls))
	assert.Equal(t, 1, counts["snp"]["concordant"])
	assert.Equal(t, 1, counts["snp"]["discordant"])
}