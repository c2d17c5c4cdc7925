package combine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantio/varcord/internal/vcf"
)

func snp(chrom string, pos int64, ref, alt string, alleles ...int) *vcf.Variant {
	return &vcf.Variant{
		Chrom: chrom,
		Pos:   pos,
		Ref:   ref,
		Alts:  []string{alt},
		Genotypes: []vcf.Genotype{
			{Sample: "NA12878", Alleles: alleles},
		},
	}
}

func TestCombineSupportSet(t *testing.T) {
	inputs := []Input{
		{Name: "gatk", Records: []*vcf.Variant{
			snp("22", 100, "A", "G", 0, 1),
			snp("22", 200, "C", "T", 1, 1),
		}},
		{Name: "freebayes", Records: []*vcf.Variant{
			snp("22", 100, "A", "G", 0, 1),
			snp("22", 300, "G", "A", 0, 1),
		}},
	}

	out, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "Intersection", out[0].Info[SetAttr])
	assert.Equal(t, "gatk", out[1].Info[SetAttr])
	assert.Equal(t, "freebayes", out[2].Info[SetAttr])

	names, all := SupportSet(out[0])
	assert.True(t, all)
	assert.Nil(t, names)
	names, all = SupportSet(out[1])
	assert.False(t, all)
	assert.Equal(t, []string{"gatk"}, names)
}

func TestCombinePositionsSorted(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 300, "A", "G", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{
			snp("22", 100, "C", "T", 0, 1),
			snp("X", 50, "G", "A", 0, 1),
		}},
	}
	out, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(100), out[0].Pos)
	assert.Equal(t, int64(300), out[1].Pos)
	assert.Equal(t, "X", out[2].Chrom)
}

func TestCombineSitesOnlyDropsGenotypes(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
	}
	out, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)
	assert.Empty(t, out[0].Genotypes)
}

func TestCombineUniquify(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{snp("22", 100, "A", "G", 1, 1)}},
	}
	out, err := Combine(inputs, Uniquify)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Genotypes, 2)
	assert.Equal(t, "NA12878-a", out[0].Genotypes[0].Sample)
	assert.Equal(t, []int{0, 1}, out[0].Genotypes[0].Alleles)
	assert.Equal(t, "NA12878-b", out[0].Genotypes[1].Sample)
	assert.Equal(t, []int{1, 1}, out[0].Genotypes[1].Alleles)
}

func TestCombinePrioritizeFirstInputWins(t *testing.T) {
	inputs := []Input{
		{Name: "trusted", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
		{Name: "other", Records: []*vcf.Variant{snp("22", 100, "A", "G", 1, 1)}},
	}
	out, err := Combine(inputs, Prioritize)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Genotypes, 1)
	assert.Equal(t, []int{0, 1}, out[0].Genotypes[0].Alleles)
	assert.Equal(t, "trusted", out[0].Source)
}

func TestCombineUnifiesAlleles(t *testing.T) {
	// Same position, different alternates. The het call against C must be
	// remapped into the union allele space.
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{snp("22", 100, "A", "C", 0, 1)}},
	}
	out, err := Combine(inputs, Uniquify)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"G", "C"}, out[0].Alts)
	assert.Equal(t, []int{0, 2}, out[0].Genotypes[1].Alleles)
}

func TestCombineExtendsShorterReference(t *testing.T) {
	// A SNP and a deletion at the same position. The SNP's alleles are
	// lifted into the longer deletion reference.
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "AC", "A", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
	}
	out, err := Combine(inputs, Uniquify)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "AC", out[0].Ref)
	assert.Equal(t, []string{"A", "GC"}, out[0].Alts)
}

func TestCombineNoInputs(t *testing.T) {
	_, err := Combine(nil, SitesOnly)
	assert.Error(t, err)
}

func TestConsolidatePicksMostObservedPair(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{snp("22", 100, "A", "G", 1, 1)}},
		{Name: "c", Records: []*vcf.Variant{snp("22", 100, "A", "C", 0, 1)}},
	}
	combined, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)

	out := Consolidate(combined, inputs)
	require.Len(t, out, 1)
	assert.Equal(t, "A", out[0].Ref)
	assert.Equal(t, []string{"G"}, out[0].Alts)
}

func TestConsolidateTieKeepsFirstObserved(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 1)}},
		{Name: "b", Records: []*vcf.Variant{snp("22", 100, "A", "C", 0, 1)}},
	}
	combined, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)

	out := Consolidate(combined, inputs)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"G"}, out[0].Alts)
}

func TestConsolidateLeavesUncalledSitesAlone(t *testing.T) {
	inputs := []Input{
		{Name: "a", Records: []*vcf.Variant{snp("22", 100, "A", "G", 0, 0)}},
	}
	combined, err := Combine(inputs, SitesOnly)
	require.NoError(t, err)

	out := Consolidate(combined, inputs)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"G"}, out[0].Alts)
}
