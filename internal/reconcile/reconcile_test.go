package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variantio/varcord/internal/callable"
	"github.com/variantio/varcord/internal/vcf"
)

func site(pos int64, alleles ...int) *vcf.Variant {
	v := &vcf.Variant{
		Chrom: "22",
		Pos:   pos,
		Ref:   "A",
		Alts:  []string{"G"},
	}
	if len(alleles) > 0 {
		v.Genotypes = []vcf.Genotype{{Sample: "NA12878", Alleles: alleles}}
	}
	return v
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Strategy: UseCallable})
	assert.Error(t, err)
	_, err = New(Options{Strategy: UseRegenotype})
	assert.Error(t, err)
	_, err = New(Options{Strategy: UseConsensus})
	assert.Error(t, err)
	_, err = New(Options{Strategy: Strategy(99)})
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("consensus")
	require.NoError(t, err)
	assert.Equal(t, UseConsensus, s)
	_, err = ParseStrategy("majority")
	assert.Error(t, err)
}

func TestCallableFillsHomRef(t *testing.T) {
	pred := callable.PredicateFunc(func(chrom string, start, end int64) bool {
		return start < 200
	})
	r, err := New(Options{Strategy: UseCallable, Sample: "NA12878", Predicate: pred})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{
		site(100),
		site(250),
		site(300, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.Len(t, out[0].Genotypes, 1)
	assert.Equal(t, []int{0, 0}, out[0].Genotypes[0].Alleles)
	assert.Empty(t, out[0].Filters)

	assert.Contains(t, out[1].Filters, FilterNotCallable)

	// Called records pass through untouched.
	assert.Equal(t, []int{0, 1}, out[2].Genotypes[0].Alleles)
	assert.Empty(t, out[2].Filters)
}

func TestCallableFillRespectsPloidy(t *testing.T) {
	pred := callable.PredicateFunc(func(chrom string, start, end int64) bool {
		return true
	})
	r, err := New(Options{Strategy: UseCallable, Sample: "NA12878", Ploidy: 1, Predicate: pred})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	require.Len(t, out[0].Genotypes, 1)
	assert.Equal(t, []int{0}, out[0].Genotypes[0].Alleles)

	_, err = New(Options{Strategy: UseCallable, Sample: "NA12878", Ploidy: -1, Predicate: pred})
	assert.Error(t, err)
}

type storeFunc func(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error)

func (f storeFunc) Query(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
	return f(ctx, chrom, start, end)
}

func TestConsensusMajority(t *testing.T) {
	store := storeFunc(func(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
		return []*vcf.Variant{
			site(100, 0, 1),
			site(100, 0, 1),
			site(100, 1, 1),
		}, nil
	})
	r, err := New(Options{Strategy: UseConsensus, Sample: "NA12878", Store: store})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	require.Len(t, out[0].Genotypes, 1)
	assert.Equal(t, []int{0, 1}, out[0].Genotypes[0].Alleles)
}

func TestConsensusTiePrefersHomozygous(t *testing.T) {
	store := storeFunc(func(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
		return []*vcf.Variant{
			site(100, 0, 1),
			site(100, 1, 1),
		}, nil
	})
	r, err := New(Options{Strategy: UseConsensus, Sample: "NA12878", Store: store})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, out[0].Genotypes[0].Alleles)
}

func TestConsensusRemapsAlleleIndexes(t *testing.T) {
	// The stored majority call is against a record whose alternate order
	// differs from the target's.
	stored := &vcf.Variant{
		Chrom: "22", Pos: 100, Ref: "A", Alts: []string{"C", "G"},
		Genotypes: []vcf.Genotype{{Sample: "NA12878", Alleles: []int{0, 2}}},
	}
	store := storeFunc(func(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
		return []*vcf.Variant{stored}, nil
	})
	r, err := New(Options{Strategy: UseConsensus, Sample: "NA12878", Store: store})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	g := out[0].Genotypes[0]
	assert.Equal(t, "G", out[0].AlleleSeq(g.Alleles[1]))
	assert.Equal(t, []int{0, 1}, g.Alleles)
}

func TestConsensusNoEvidenceFilters(t *testing.T) {
	store := storeFunc(func(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
		return nil, nil
	})
	r, err := New(Options{Strategy: UseConsensus, Sample: "NA12878", Store: store})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	assert.Contains(t, out[0].Filters, FilterNotCallable)
}

type genotyperFunc func(ctx context.Context, sites []*vcf.Variant) ([]*vcf.Variant, error)

func (f genotyperFunc) Genotype(ctx context.Context, sites []*vcf.Variant) ([]*vcf.Variant, error) {
	return f(ctx, sites)
}

func TestRegenotypeSubstitutesCalls(t *testing.T) {
	gt := genotyperFunc(func(ctx context.Context, sites []*vcf.Variant) ([]*vcf.Variant, error) {
		assert.Len(t, sites, 2)
		// Only the first pending site gets a call back.
		return []*vcf.Variant{site(100, 1, 1)}, nil
	})
	r, err := New(Options{Strategy: UseRegenotype, Sample: "NA12878", Genotyper: gt})
	require.NoError(t, err)

	out, err := r.Reconcile(context.Background(), []*vcf.Variant{site(100), site(200)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, out[0].Genotypes[0].Alleles)
	assert.Contains(t, out[1].Filters, FilterNotCallable)
}

func TestExternalGenotyperRoundTrip(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "genotyper.sh")
	body := "#!/bin/sh\n" +
		"cat > \"$2\" <<'EOF'\n" +
		"##fileformat=VCFv4.2\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tNA12878\n" +
		"22\t100\t.\tA\tG\t50\tPASS\t.\tGT\t0/1\n" +
		"EOF\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))

	e := &ExternalGenotyper{Path: script, Sample: "NA12878"}
	called, err := e.Genotype(context.Background(), []*vcf.Variant{site(100)})
	require.NoError(t, err)
	require.Len(t, called, 1)
	assert.Equal(t, int64(100), called[0].Pos)
	assert.Equal(t, []int{0, 1}, called[0].Genotypes[0].Alleles)
}
