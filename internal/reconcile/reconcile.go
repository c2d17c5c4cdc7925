// Package reconcile resolves no-call positions left behind when several
// call sets are combined: a record one caller reports and another is
// silent on is either genuinely reference, uncallable, or a missed call.
// Each strategy turns those silences into explicit genotypes or filters.
package reconcile

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/callable"
	"github.com/variantio/varcord/internal/vcf"
)

// Strategy selects how a no-call position is resolved.
type Strategy int

const (
	// UseCallable fills homozygous reference where coverage supports a
	// call and filters the record otherwise.
	UseCallable Strategy = iota

	// UseRegenotype re-evaluates no-call sites with an external genotyper.
	UseRegenotype

	// UseConsensus polls the calls of all inputs at the site and takes
	// the majority genotype.
	UseConsensus
)

func (s Strategy) String() string {
	switch s {
	case UseCallable:
		return "callable"
	case UseRegenotype:
		return "regenotype"
	case UseConsensus:
		return "consensus"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration token to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "callable":
		return UseCallable, nil
	case "regenotype":
		return UseRegenotype, nil
	case "consensus":
		return UseConsensus, nil
	default:
		return 0, fmt.Errorf("reconcile: unknown strategy %q", s)
	}
}

// FilterNotCallable marks records at positions without enough evidence for
// any genotype.
const FilterNotCallable = "NotCallable"

// Regenotyper re-evaluates candidate sites and returns one record per site
// it could genotype.
type Regenotyper interface {
	Genotype(ctx context.Context, sites []*vcf.Variant) ([]*vcf.Variant, error)
}

// RangeQuerier retrieves the stored calls of every input overlapping a
// region.
type RangeQuerier interface {
	Query(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error)
}

// Options configures a Reconciler. Only the field matching the chosen
// strategy is consulted.
type Options struct {
	Strategy  Strategy
	Sample    string
	Ploidy    int                // allele count for filled genotypes; 0 means diploid
	Predicate callable.Predicate // UseCallable
	Genotyper Regenotyper        // UseRegenotype
	Store     RangeQuerier       // UseConsensus
}

// Reconciler applies one resolution strategy across a combined record
// stream.
type Reconciler struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) (*Reconciler, error) {
	switch opts.Strategy {
	case UseCallable:
		if opts.Predicate == nil {
			return nil, fmt.Errorf("reconcile: callable strategy needs a predicate")
		}
	case UseRegenotype:
		if opts.Genotyper == nil {
			return nil, fmt.Errorf("reconcile: regenotype strategy needs a genotyper")
		}
	case UseConsensus:
		if opts.Store == nil {
			return nil, fmt.Errorf("reconcile: consensus strategy needs a store")
		}
	default:
		return nil, fmt.Errorf("reconcile: unknown strategy %d", opts.Strategy)
	}
	if opts.Ploidy < 0 {
		return nil, fmt.Errorf("reconcile: negative ploidy %d", opts.Ploidy)
	}
	if opts.Ploidy == 0 {
		opts.Ploidy = 2
	}
	return &Reconciler{opts: opts, logger: zap.NewNop()}, nil
}

// SetLogger replaces the no-op default logger.
func (r *Reconciler) SetLogger(l *zap.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Reconcile returns a copy of records in which every no-call for the
// target sample has been resolved to a genotype or a NotCallable filter.
// Records already carrying a call pass through unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, records []*vcf.Variant) ([]*vcf.Variant, error) {
	var pending []int
	out := make([]*vcf.Variant, len(records))
	for i, v := range records {
		out[i] = v
		if r.needsCall(v) {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}
	r.logger.Info("reconciling no-call positions",
		zap.Int("count", len(pending)),
		zap.String("strategy", r.opts.Strategy.String()))

	switch r.opts.Strategy {
	case UseCallable:
		for _, i := range pending {
			out[i] = r.resolveCallable(out[i])
		}
		return out, nil
	case UseRegenotype:
		return out, r.resolveRegenotype(ctx, out, pending)
	case UseConsensus:
		for _, i := range pending {
			v, err := r.resolveConsensus(ctx, out[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return out, nil
}

func (r *Reconciler) needsCall(v *vcf.Variant) bool {
	for i := range v.Genotypes {
		g := &v.Genotypes[i]
		if r.opts.Sample != "" && g.Sample != r.opts.Sample {
			continue
		}
		return !g.Called()
	}
	return true
}

func (r *Reconciler) resolveCallable(v *vcf.Variant) *vcf.Variant {
	if r.opts.Predicate.Callable(v.Chrom, v.Pos, v.End()) {
		return withSampleGenotype(v, vcf.Genotype{
			Sample:  r.opts.Sample,
			Alleles: make([]int, r.opts.Ploidy),
		})
	}
	return v.WithFilter(FilterNotCallable)
}

func (r *Reconciler) resolveRegenotype(ctx context.Context, out []*vcf.Variant, pending []int) error {
	sites := make([]*vcf.Variant, len(pending))
	for j, i := range pending {
		sites[j] = out[i]
	}
	called, err := r.opts.Genotyper.Genotype(ctx, sites)
	if err != nil {
		return fmt.Errorf("reconcile: regenotyping %d sites: %w", len(sites), err)
	}
	byKey := make(map[string]*vcf.Variant, len(called))
	for _, v := range called {
		byKey[posKey(v)] = v
	}
	for _, i := range pending {
		nv, ok := byKey[posKey(out[i])]
		if !ok || r.needsCall(nv) {
			out[i] = out[i].WithFilter(FilterNotCallable)
			continue
		}
		out[i] = withSampleGenotype(out[i], genotypeFor(nv, r.opts.Sample))
	}
	return nil
}

// resolveConsensus takes the majority genotype among all stored calls at
// the position. Ties prefer homozygous calls, then the call with the
// highest summed genotype likelihood.
func (r *Reconciler) resolveConsensus(ctx context.Context, v *vcf.Variant) (*vcf.Variant, error) {
	stored, err := r.opts.Store.Query(ctx, v.Chrom, v.Pos, v.End())
	if err != nil {
		return nil, fmt.Errorf("reconcile: querying %s:%d: %w", v.Chrom, v.Pos, err)
	}

	type candidate struct {
		variant *vcf.Variant
		g       vcf.Genotype
	}
	votes := make(map[string]int)
	best := make(map[string]candidate)
	var order []string
	for _, sv := range stored {
		if sv.Pos != v.Pos {
			continue
		}
		g := genotypeFor(sv, r.opts.Sample)
		if !g.Called() {
			continue
		}
		k := alleleKey(sv, g)
		if votes[k] == 0 {
			order = append(order, k)
			best[k] = candidate{sv, g}
		} else if likelihoodSum(g) > likelihoodSum(best[k].g) {
			best[k] = candidate{sv, g}
		}
		votes[k]++
	}
	if len(order) == 0 {
		return v.WithFilter(FilterNotCallable), nil
	}

	winner := order[0]
	for _, k := range order[1:] {
		if better(votes[k], best[k].g, votes[winner], best[winner].g) {
			winner = k
		}
	}

	// The winning genotype indexes into its own record's alternates,
	// which may be ordered differently from the target's.
	c := v.Clone()
	w := best[winner]
	g := w.g.Clone()
	g.Sample = r.opts.Sample
	for i, a := range g.Alleles {
		if a == vcf.NoCall {
			continue
		}
		seq := w.variant.AlleleSeq(a)
		idx := c.AlleleIndex(seq)
		if idx < 0 {
			c.Alts = append(c.Alts, seq)
			idx = len(c.Alts)
		}
		g.Alleles[i] = idx
	}
	return withSampleGenotype(c, g), nil
}

func better(votes int, g vcf.Genotype, curVotes int, cur vcf.Genotype) bool {
	if votes != curVotes {
		return votes > curVotes
	}
	gh, ch := isHom(g), isHom(cur)
	if gh != ch {
		return gh
	}
	return likelihoodSum(g) > likelihoodSum(cur)
}

func isHom(g vcf.Genotype) bool {
	k := g.Kind()
	return k == vcf.GenotypeHomRef || k == vcf.GenotypeHomVar
}

func likelihoodSum(g vcf.Genotype) float64 {
	var sum float64
	for _, l := range g.Likelihoods {
		sum += l
	}
	return sum
}

// alleleKey identifies a genotype by its allele sequences so votes from
// records with differently ordered alternates still pool together.
func alleleKey(v *vcf.Variant, g vcf.Genotype) string {
	seqs := make([]string, 0, len(g.Alleles))
	for _, a := range g.Alleles {
		seqs = append(seqs, v.AlleleSeq(a))
	}
	sort.Strings(seqs)
	key := ""
	for _, s := range seqs {
		key += s + "/"
	}
	return key
}

func genotypeFor(v *vcf.Variant, sample string) vcf.Genotype {
	for i := range v.Genotypes {
		if sample == "" || v.Genotypes[i].Sample == sample {
			return v.Genotypes[i]
		}
	}
	return vcf.Genotype{Sample: sample, Alleles: []int{vcf.NoCall}}
}

func withSampleGenotype(v *vcf.Variant, g vcf.Genotype) *vcf.Variant {
	c := v.Clone()
	for i := range c.Genotypes {
		if g.Sample == "" || c.Genotypes[i].Sample == g.Sample {
			c.Genotypes[i] = g
			return c
		}
	}
	c.Genotypes = append(c.Genotypes, g)
	return c
}

func posKey(v *vcf.Variant) string {
	return fmt.Sprintf("%s:%d", v.Chrom, v.Pos)
}
