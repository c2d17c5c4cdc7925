// Package compare orchestrates pairwise concordance assessment between
// variant call sets that have already been decomposed and normalized.
// Diploid pairs are scored position by position; a haploid set against a
// diploid one is routed through phase-aware scoring.
package compare

import (
	"sort"

	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/phased"
	"github.com/variantio/varcord/internal/vcf"
)

// CallSet is one named, normalized collection of variant records.
type CallSet struct {
	Name    string
	Records []*vcf.Variant
}

// Options configures an Orchestrator.
type Options struct {
	// Workers bounds the comparison pool; zero means one per CPU.
	Workers int

	// Haploid decides whether a call set is haploid. The default treats
	// a set as haploid when every record with genotypes is single-allele.
	Haploid func(records []*vcf.Variant) bool
}

// Comparison is the outcome of scoring one pair of call sets. Counts maps
// variant type to category counts; categories are "concordant",
// "discordant", and "<name>-only" for calls present in a single set.
// A failed pair carries Err and empty counts so a batch can continue past
// it.
type Comparison struct {
	Ref    string
	Cmp    string
	Phased bool
	Counts map[string]map[string]int
	Err    error
}

// Count sums one category across all variant types.
func (c *Comparison) Count(category string) int {
	total := 0
	for _, byCat := range c.Counts {
		total += byCat[category]
	}
	return total
}

// Orchestrator runs pairwise comparisons.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Orchestrator {
	if opts.Haploid == nil {
		opts.Haploid = defaultHaploid
	}
	return &Orchestrator{opts: opts, logger: zap.NewNop()}
}

// SetLogger replaces the no-op default logger.
func (o *Orchestrator) SetLogger(l *zap.Logger) {
	if l != nil {
		o.logger = l
	}
}

func defaultHaploid(records []*vcf.Variant) bool {
	seen := false
	for _, v := range records {
		if len(v.Genotypes) == 0 {
			continue
		}
		seen = true
		if !phased.IsHaploid(v) {
			return false
		}
	}
	return seen
}

// Compare scores cmp against ref. When exactly one of the two sets is
// haploid it becomes the truth set for phase-aware scoring; otherwise the
// pair is scored position by position on genotype identity.
func (o *Orchestrator) Compare(ref, cmp CallSet) *Comparison {
	refHap := o.opts.Haploid(ref.Records)
	cmpHap := o.opts.Haploid(cmp.Records)

	if refHap != cmpHap {
		truth, calls := ref, cmp
		if cmpHap {
			truth, calls = cmp, ref
		}
		o.logger.Info("phase-aware comparison",
			zap.String("truth", truth.Name),
			zap.String("calls", calls.Name))
		scored := phased.NewScorer(truth.Records).Score(calls.Records)
		return &Comparison{
			Ref:    ref.Name,
			Cmp:    cmp.Name,
			Phased: true,
			Counts: phased.Tally(scored),
		}
	}
	return o.compareStandard(ref, cmp)
}

func (o *Orchestrator) compareStandard(ref, cmp CallSet) *Comparison {
	refIdx := indexCalled(ref.Records)
	cmpIdx := indexCalled(cmp.Records)

	keys := make([]string, 0, len(refIdx))
	for k := range refIdx {
		keys = append(keys, k)
	}
	for k := range cmpIdx {
		if _, ok := refIdx[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	c := &Comparison{
		Ref:    ref.Name,
		Cmp:    cmp.Name,
		Counts: make(map[string]map[string]int),
	}
	for _, k := range keys {
		rv, rok := refIdx[k]
		cv, cok := cmpIdx[k]
		switch {
		case rok && cok:
			if sameGenotype(rv, cv) {
				c.add(rv, "concordant")
			} else {
				c.add(rv, "discordant")
			}
		case rok:
			c.add(rv, ref.Name+"-only")
		default:
			c.add(cv, cmp.Name+"-only")
		}
	}
	return c
}

func (c *Comparison) add(v *vcf.Variant, category string) {
	vt := variantType(v)
	byCat := c.Counts[vt]
	if byCat == nil {
		byCat = make(map[string]int)
		c.Counts[vt] = byCat
	}
	byCat[category]++
}

func variantType(v *vcf.Variant) string {
	switch v.Kind() {
	case vcf.KindSNP:
		return "snp"
	case vcf.KindIndel:
		return "indel"
	default:
		return "other"
	}
}

// indexCalled maps position keys to records carrying at least one called
// genotype. No-call and genotype-less sites do not participate in
// standard scoring.
func indexCalled(records []*vcf.Variant) map[string]*vcf.Variant {
	idx := make(map[string]*vcf.Variant, len(records))
	for _, v := range records {
		for i := range v.Genotypes {
			if v.Genotypes[i].Called() {
				idx[v.Key()] = v
				break
			}
		}
	}
	return idx
}

// sameGenotype compares the first genotypes of two records as unordered
// allele sequence sets, so 0/1 against one alt list matches 1/0 against a
// reordered one.
func sameGenotype(a, b *vcf.Variant) bool {
	sa := alleleSeqs(a)
	sb := alleleSeqs(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func alleleSeqs(v *vcf.Variant) []string {
	if len(v.Genotypes) == 0 {
		return nil
	}
	g := &v.Genotypes[0]
	seqs := make([]string, 0, len(g.Alleles))
	for _, a := range g.Alleles {
		seqs = append(seqs, v.AlleleSeq(a))
	}
	sort.Strings(seqs)
	return seqs
}
