package normalize

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/vcf"
)

// Zygosity selects how a genotype is synthesized for sampleless records.
type Zygosity int

const (
	Homozygous Zygosity = iota
	Heterozygous
)

// Options configures a normalization pass.
type Options struct {
	// SampleName is the target sample; a single-genotype input is renamed
	// to it, and synthesized genotypes carry it.
	SampleName string

	// TargetPloidy, when non-zero, replicates a single called allele up to
	// this count (a haploid call A on a nominally diploid input becomes
	// A/A). This is lossy and assumes the single call faithfully
	// represents zygosity, so it stays off unless configured.
	TargetPloidy int

	// KeepHomRef retains explicit reference calls; otherwise they are
	// dropped along with no-calls and mixed calls.
	KeepHomRef bool

	// SynthesizeGenotypes gives sampleless records (site-only structural
	// call sets) one call per record derived from the single alternate.
	SynthesizeGenotypes bool
	SyntheticZygosity   Zygosity

	// Sort materializes each chromosome and sorts by start position when
	// upstream ordering cannot be guaranteed. Memory-bounded: a whole
	// chromosome's records must fit in memory.
	Sort bool
}

// Normalizer rewrites a record stream against one reference genome.
type Normalizer struct {
	resolve func(string) string
	opts    Options
	logger  *zap.Logger

	droppedMalformed int
	droppedNoInfo    int
}

// New creates a normalizer for the given organism profile and reference
// contig set.
func New(profile *Profile, refContigs []string, opts Options) *Normalizer {
	return &Normalizer{
		resolve: profile.Resolver(refContigs),
		opts:    opts,
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for drop accounting.
func (n *Normalizer) SetLogger(l *zap.Logger) {
	n.logger = l
}

// DroppedMalformed returns the count of malformed lines dropped so far.
func (n *Normalizer) DroppedMalformed() int { return n.droppedMalformed }

// DroppedUninformative returns the count of records dropped by the no-call
// filtering policy.
func (n *Normalizer) DroppedUninformative() int { return n.droppedNoInfo }

// Normalize drains a reader and returns the normalized records. Malformed
// lines (*vcf.ParseError) are dropped and counted; any other read error is
// fatal for the file. Applying Normalize to its own output is a no-op.
func (n *Normalizer) Normalize(r vcf.RecordReader) ([]*vcf.Variant, error) {
	var out []*vcf.Variant
	for {
		v, err := r.Next()
		if err != nil {
			var pe *vcf.ParseError
			if errors.As(err, &pe) {
				n.droppedMalformed++
				n.logger.Debug("dropped malformed line",
					zap.Int("line", pe.Line),
					zap.String("reason", pe.Message))
				continue
			}
			return nil, fmt.Errorf("normalize: %w", err)
		}
		if v == nil {
			break
		}
		if nv, keep := n.Record(v); keep {
			out = append(out, nv)
		}
	}

	if n.droppedMalformed > 0 {
		n.logger.Info("dropped malformed lines", zap.Int("count", n.droppedMalformed))
	}

	if n.opts.Sort {
		out = sortByChromAndPos(out)
	}
	return out, nil
}

// Record normalizes a single record. The returned flag is false when the
// record carries no information for concordance under the filter policy.
// The input record is never mutated.
func (n *Normalizer) Record(v *vcf.Variant) (*vcf.Variant, bool) {
	c := v.Clone()
	c.Chrom = n.resolve(c.Chrom)

	switch len(c.Genotypes) {
	case 0:
		if n.opts.SynthesizeGenotypes && len(c.Alts) >= 1 {
			c.Genotypes = []vcf.Genotype{n.syntheticGenotype()}
		}
	case 1:
		if n.opts.SampleName != "" {
			c.Genotypes[0].Sample = n.opts.SampleName
		}
	}

	if len(c.Genotypes) == 1 {
		n.fillPloidy(&c.Genotypes[0])
		if !n.informative(&c.Genotypes[0]) {
			n.droppedNoInfo++
			return nil, false
		}
	}

	return c, true
}

func (n *Normalizer) syntheticGenotype() vcf.Genotype {
	alleles := []int{1, 1}
	if n.opts.SyntheticZygosity == Heterozygous {
		alleles = []int{0, 1}
	}
	return vcf.Genotype{Sample: n.opts.SampleName, Alleles: alleles}
}

func (n *Normalizer) fillPloidy(g *vcf.Genotype) {
	target := n.opts.TargetPloidy
	if target == 0 || len(g.Alleles) != 1 || g.Alleles[0] == vcf.NoCall {
		return
	}
	for len(g.Alleles) < target {
		g.Alleles = append(g.Alleles, g.Alleles[0])
	}
}

func (n *Normalizer) informative(g *vcf.Genotype) bool {
	switch g.Kind() {
	case vcf.GenotypeNoCall, vcf.GenotypeMixed:
		return false
	case vcf.GenotypeHomRef:
		return n.opts.KeepHomRef
	default:
		return true
	}
}

// sortByChromAndPos sorts records by start position within each chromosome,
// preserving the order in which chromosomes first appear.
func sortByChromAndPos(records []*vcf.Variant) []*vcf.Variant {
	chromOrder := make(map[string]int)
	for _, v := range records {
		if _, ok := chromOrder[v.Chrom]; !ok {
			chromOrder[v.Chrom] = len(chromOrder)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		ci, cj := chromOrder[records[i].Chrom], chromOrder[records[j].Chrom]
		if ci != cj {
			return ci < cj
		}
		return records[i].Pos < records[j].Pos
	})
	return records
}

// RouteByChrom splits normalized records into per-chromosome groups keyed
// by reference contig. A record whose resolved chromosome is not a
// reference contig has no destination and is a fatal error: silently
// dropping variant data is worse than a hard stop.
func RouteByChrom(records []*vcf.Variant, refContigs []string) (map[string][]*vcf.Variant, error) {
	inRef := make(map[string]bool, len(refContigs))
	for _, c := range refContigs {
		inRef[c] = true
	}
	routed := make(map[string][]*vcf.Variant)
	for _, v := range records {
		if !inRef[v.Chrom] {
			return nil, fmt.Errorf("normalize: no such reference chromosome %q for record at %s:%d",
				v.Chrom, v.Chrom, v.Pos)
		}
		routed[v.Chrom] = append(routed[v.Chrom], v)
	}
	return routed, nil
}
