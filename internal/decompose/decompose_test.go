package decompose

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantio/varcord/internal/refseq"
	"github.com/variantio/varcord/internal/vcf"
)

func mnpRecord(pos int64, ref, alt string, alleles []int, phased bool) *vcf.Variant {
	return &vcf.Variant{
		Chrom: "22",
		Pos:   pos,
		Ref:   ref,
		Alts:  []string{alt},
		Genotypes: []vcf.Genotype{{
			Sample:  "S1",
			Alleles: alleles,
			Phased:  phased,
		}},
	}
}

func TestDecompose_MNP(t *testing.T) {
	// ACGT > ATGA: columns 1 (C>T) and 3 (T>A) are polymorphic, the G
	// column is monomorphic and must not be emitted.
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGT", "ATGA", []int{1, 1}, false))
	require.NoError(t, err)
	require.Len(t, prims, 2)

	assert.Equal(t, int64(101), prims[0].Pos)
	assert.Equal(t, "C", prims[0].Ref)
	assert.Equal(t, []string{"T"}, prims[0].Alts)

	assert.Equal(t, int64(103), prims[1].Pos)
	assert.Equal(t, "T", prims[1].Ref)
	assert.Equal(t, []string{"A"}, prims[1].Alts)

	for _, p := range prims {
		require.Len(t, p.Genotypes, 1)
		assert.Equal(t, []int{1, 1}, p.Genotypes[0].Alleles)
		assert.Equal(t, "S1", p.Genotypes[0].Sample)
	}
}

func TestDecompose_PhaseMarking(t *testing.T) {
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGT", "ATGA", []int{1, 1}, false))
	require.NoError(t, err)
	require.Len(t, prims, 2)

	// The first primitive keeps the original phase; the rest derive from
	// the same physical haplotype call and are mutually phased.
	assert.False(t, prims[0].Genotypes[0].Phased)
	assert.True(t, prims[1].Genotypes[0].Phased)

	prims, err = d.Decompose(mnpRecord(100, "ACGT", "ATGA", []int{1, 1}, true))
	require.NoError(t, err)
	assert.True(t, prims[0].Genotypes[0].Phased)
	assert.True(t, prims[1].Genotypes[0].Phased)
}

func TestDecompose_HetKeepsRefAllele(t *testing.T) {
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGT", "ATGA", []int{0, 1}, false))
	require.NoError(t, err)
	require.Len(t, prims, 2)
	for _, p := range prims {
		assert.Equal(t, []int{0, 1}, p.Genotypes[0].Alleles)
	}
}

func TestDecompose_HomRefYieldsNothing(t *testing.T) {
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGT", "ATGA", []int{0, 0}, false))
	require.NoError(t, err)
	assert.Empty(t, prims)
}

func TestDecompose_MultiSampleIsFatal(t *testing.T) {
	d := New(nil)
	v := mnpRecord(100, "ACGT", "ATGA", []int{1, 1}, false)
	v.Genotypes = append(v.Genotypes, vcf.Genotype{Sample: "S2", Alleles: []int{0, 0}})
	_, err := d.Decompose(v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMultiSample))
}

func TestDecompose_ComplexDeletion(t *testing.T) {
	// ACGT > AGT deletes the C; the run anchors on the preceding A.
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGT", "AGT", []int{1, 1}, false))
	require.NoError(t, err)
	require.Len(t, prims, 1)

	assert.Equal(t, int64(100), prims[0].Pos)
	assert.Equal(t, "AC", prims[0].Ref)
	assert.Equal(t, []string{"A"}, prims[0].Alts)
}

func TestDecompose_ComplexInsertionLeftAnchored(t *testing.T) {
	// CAAG > CAAAG inserts an A into the homopolymer run; the canonical
	// placement anchors at the 5' C.
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "CAAG", "CAAAG", []int{1, 1}, false))
	require.NoError(t, err)
	require.Len(t, prims, 1)

	assert.Equal(t, int64(100), prims[0].Pos)
	assert.Equal(t, "C", prims[0].Ref)
	assert.Equal(t, []string{"CA"}, prims[0].Alts)
}

func TestDecompose_IndelPlusSNP(t *testing.T) {
	// ACGTT > AGTA: deletion of C plus a trailing substitution. Both
	// primitives must re-verify against the original coordinates.
	d := New(nil)
	prims, err := d.Decompose(mnpRecord(100, "ACGTT", "AGTA", []int{1, 1}, false))
	require.NoError(t, err)
	require.NotEmpty(t, prims)

	last := int64(-1)
	for _, p := range prims {
		assert.GreaterOrEqual(t, p.Pos, int64(100))
		assert.LessOrEqual(t, p.Pos, int64(104))
		assert.GreaterOrEqual(t, p.Pos, last, "primitive offsets must be non-decreasing")
		last = p.Pos
	}
}

func TestDecompose_RunAtStartUsesGenomeAnchor(t *testing.T) {
	genome := refseq.NewMemGenome(map[string]string{"22": "GGGGGGGGGGCAT"})
	d := New(genome)

	// CAT > AT deletes the leading base: the gap run sits at the very
	// start after left alignment, so the anchor comes from the genome.
	v := mnpRecord(11, "CAT", "AT", []int{1, 1}, false)
	prims, err := d.Decompose(v)
	require.NoError(t, err)
	require.Len(t, prims, 1)
	assert.Equal(t, int64(10), prims[0].Pos)
	assert.Equal(t, "GC", prims[0].Ref)
	assert.Equal(t, []string{"G"}, prims[0].Alts)
}

func TestDecompose_RunAtStartWithoutGenomeIsFatal(t *testing.T) {
	d := New(nil)
	_, err := d.Decompose(mnpRecord(11, "CAT", "AT", []int{1, 1}, false))
	require.Error(t, err)
	var me *MatchingError
	assert.True(t, errors.As(err, &me))
}

func TestStripIndelPadding(t *testing.T) {
	v := &vcf.Variant{
		Chrom: "22", Pos: 100, Ref: "ACC", Alts: []string{"AC"},
		Genotypes: []vcf.Genotype{{Sample: "S1", Alleles: []int{0, 1}}},
	}
	s := StripIndelPadding(v)
	assert.Equal(t, "AC", s.Ref)
	assert.Equal(t, []string{"A"}, s.Alts)
	assert.Equal(t, int64(100), s.Pos)

	// original untouched
	assert.Equal(t, "ACC", v.Ref)
}

func TestStripIndelPadding_KeepsDistinguishingBases(t *testing.T) {
	// Trimming the shared C would leave the deletion allele empty, so the
	// padding base is retained.
	v := &vcf.Variant{Chrom: "22", Pos: 100, Ref: "CA", Alts: []string{"C"}}
	s := StripIndelPadding(v)
	assert.Equal(t, "CA", s.Ref)
	assert.Equal(t, []string{"C"}, s.Alts)
}

func TestStripIndelPadding_SNPPassthrough(t *testing.T) {
	v := &vcf.Variant{Chrom: "22", Pos: 100, Ref: "A", Alts: []string{"T"}}
	assert.Same(t, v, StripIndelPadding(v))
}

func TestStream_SkipsRecordsInsideDecomposedSpan(t *testing.T) {
	d := New(nil)
	records := []*vcf.Variant{
		mnpRecord(100, "ACGT", "ATGA", []int{1, 1}, false),
		mnpRecord(102, "G", "C", []int{1, 1}, false),  // inside the MNP span
		mnpRecord(200, "A", "T", []int{0, 1}, false),  // clear of it
	}
	out, err := d.Stream(records)
	require.NoError(t, err)

	var positions []int64
	for _, v := range out {
		positions = append(positions, v.Pos)
	}
	assert.Equal(t, []int64{101, 103, 200}, positions)
}

func TestDecompose_RoundTripConsistency(t *testing.T) {
	// Every primitive's reference allele must re-slice exactly from the
	// original reference allele at the primitive's offset.
	cases := []struct {
		ref, alt string
	}{
		{"ACGT", "ATGA"},
		{"ACGT", "AGT"},
		{"CAAG", "CAAAG"},
		{"ACGTACGT", "ACCTACGA"},
		{"TTTT", "TATA"},
	}
	d := New(nil)
	for _, tc := range cases {
		v := mnpRecord(500, tc.ref, tc.alt, []int{1, 1}, false)
		prims, err := d.Decompose(v)
		require.NoError(t, err, "ref=%s alt=%s", tc.ref, tc.alt)
		for _, p := range prims {
			off := p.Pos - v.Pos
			require.GreaterOrEqual(t, off, int64(0))
			require.LessOrEqual(t, off+int64(len(p.Ref)), int64(len(v.Ref)))
			assert.Equal(t, v.Ref[off:off+int64(len(p.Ref))], p.Ref)
		}
	}
}
