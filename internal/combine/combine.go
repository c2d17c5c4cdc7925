// Package combine merges independently normalized variant call sets into a
// position-unified stream, tracking which inputs support each combined
// call. Downstream concordance classification is keyed on the support-set
// attribute recorded here.
package combine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/variantio/varcord/internal/vcf"
)

// Mode selects how genotypes at shared positions are merged.
type Mode int

const (
	// Uniquify keeps every input's genotype under a uniquified per-input
	// sample identity, for comparing different samples side by side.
	Uniquify Mode = iota

	// Prioritize keeps the first input's call when several inputs call
	// the same position for the same sample; input order is priority
	// order.
	Prioritize

	// SitesOnly drops genotypes, keeping a minimal shared-position
	// skeleton for no-call reconciliation.
	SitesOnly
)

// SetAttr is the INFO key carrying the support set of a combined record.
const SetAttr = "set"

// SetIntersection is the support-set value when every input called the
// position.
const SetIntersection = "Intersection"

// Input is one named, normalized, position-sorted call set.
type Input struct {
	Name    string
	Records []*vcf.Variant
}

// Combine merges the inputs into one position-unified stream. Every
// combined record carries the support set in INFO["set"]: the dash-joined
// names of inputs with a call at that position, or "Intersection" when all
// inputs agree.
func Combine(inputs []Input, mode Mode) ([]*vcf.Variant, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("combine: no inputs")
	}

	type site struct {
		chrom string
		pos   int64
	}
	perSite := make(map[site][]*vcf.Variant)
	supporters := make(map[site][]string)
	var order []site

	for _, in := range inputs {
		seen := make(map[site]bool)
		for _, v := range in.Records {
			s := site{v.Chrom, v.Pos}
			if len(perSite[s]) == 0 {
				order = append(order, s)
			}
			tagged := v
			if tagged.Source != in.Name {
				tagged = v.Clone()
				tagged.Source = in.Name
			}
			perSite[s] = append(perSite[s], tagged)
			if !seen[s] {
				seen[s] = true
				supporters[s] = append(supporters[s], in.Name)
			}
		}
	}

	chromOrder := make(map[string]int)
	for _, s := range order {
		if _, ok := chromOrder[s.chrom]; !ok {
			chromOrder[s.chrom] = len(chromOrder)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if ci, cj := chromOrder[order[i].chrom], chromOrder[order[j].chrom]; ci != cj {
			return ci < cj
		}
		return order[i].pos < order[j].pos
	})

	var out []*vcf.Variant
	for _, s := range order {
		group := perSite[s]
		combined, err := mergeSite(group, mode)
		if err != nil {
			return nil, err
		}
		combined.Info = withSupportSet(combined.Info, supporters[s], len(inputs))
		out = append(out, combined)
	}
	return out, nil
}

func withSupportSet(info map[string]interface{}, names []string, total int) map[string]interface{} {
	if info == nil {
		info = make(map[string]interface{}, 1)
	}
	if len(names) == total {
		info[SetAttr] = SetIntersection
	} else {
		info[SetAttr] = strings.Join(names, "-")
	}
	return info
}

// SupportSet returns the input names recorded on a combined record, or nil
// for the Intersection marker (all inputs).
func SupportSet(v *vcf.Variant) (names []string, intersection bool) {
	raw, ok := v.Info[SetAttr]
	if !ok {
		return nil, false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, false
	}
	if s == SetIntersection {
		return nil, true
	}
	return strings.Split(s, "-"), false
}

// mergeSite combines the records of one position across inputs.
func mergeSite(group []*vcf.Variant, mode Mode) (*vcf.Variant, error) {
	base, alleleMaps := unifyAlleles(group)

	switch mode {
	case SitesOnly:
		return base.WithGenotypes(), nil

	case Prioritize:
		// group preserves input order, so the first record wins.
		c := base.Clone()
		c.Genotypes = remapGenotypes(group[0], alleleMaps[0])
		c.Source = group[0].Source
		return c, nil

	case Uniquify:
		c := base.Clone()
		c.Genotypes = nil
		for i, v := range group {
			for _, g := range remapGenotypes(v, alleleMaps[i]) {
				g.Sample = g.Sample + "-" + v.Source
				c.Genotypes = append(c.Genotypes, g)
			}
		}
		return c, nil

	default:
		return nil, fmt.Errorf("combine: unknown mode %d", mode)
	}
}

// unifyAlleles builds a site record whose reference allele is the longest
// seen and whose alternates are the union across the group, plus per-input
// maps from original allele index to unified index.
func unifyAlleles(group []*vcf.Variant) (*vcf.Variant, []map[int]int) {
	longest := group[0]
	for _, v := range group[1:] {
		if len(v.Ref) > len(longest.Ref) {
			longest = v
		}
	}
	ref := longest.Ref

	base := group[0].Clone()
	base.Ref = ref
	base.Alts = nil

	altIdx := make(map[string]int)
	maps := make([]map[int]int, len(group))
	for i, v := range group {
		suffix := ref[len(v.Ref):]
		m := map[int]int{0: 0}
		for ai, alt := range v.Alts {
			ext := extendAllele(alt, suffix)
			idx, ok := altIdx[ext]
			if !ok {
				base.Alts = append(base.Alts, ext)
				idx = len(base.Alts)
				altIdx[ext] = idx
			}
			m[ai+1] = idx
		}
		maps[i] = m
	}
	return base, maps
}

// extendAllele pads an allele with the reference suffix needed when a
// shorter-reference record is lifted into a longer-reference site.
func extendAllele(alt, suffix string) string {
	if suffix == "" || strings.HasPrefix(alt, "<") || alt == "*" {
		return alt
	}
	return alt + suffix
}

func remapGenotypes(v *vcf.Variant, m map[int]int) []vcf.Genotype {
	out := make([]vcf.Genotype, 0, len(v.Genotypes))
	for i := range v.Genotypes {
		g := v.Genotypes[i].Clone()
		for j, a := range g.Alleles {
			if a == vcf.NoCall {
				continue
			}
			g.Alleles[j] = m[a]
		}
		out = append(out, g)
	}
	return out
}

// Consolidate cleans up artificial multi-allelic sites produced by
// sites-only combination of many files: for each combined record it
// re-derives the single most frequently observed (ref, alt) pair from the
// original per-input calls, discarding alternates never actually called at
// that position.
func Consolidate(combined []*vcf.Variant, inputs []Input) []*vcf.Variant {
	type site struct {
		chrom string
		pos   int64
	}
	type pair struct {
		ref, alt string
	}

	observed := make(map[site]map[pair]int)
	first := make(map[site][]pair) // observation order for deterministic ties
	for _, in := range inputs {
		for _, v := range in.Records {
			s := site{v.Chrom, v.Pos}
			for gi := range v.Genotypes {
				for _, a := range v.Genotypes[gi].Alleles {
					if a <= 0 {
						continue
					}
					p := pair{v.Ref, v.AlleleSeq(a)}
					if observed[s] == nil {
						observed[s] = make(map[pair]int)
					}
					if observed[s][p] == 0 {
						first[s] = append(first[s], p)
					}
					observed[s][p]++
				}
			}
		}
	}

	out := make([]*vcf.Variant, 0, len(combined))
	for _, v := range combined {
		s := site{v.Chrom, v.Pos}
		counts := observed[s]
		if len(counts) == 0 {
			out = append(out, v)
			continue
		}
		best := first[s][0]
		for _, p := range first[s] {
			if counts[p] > counts[best] {
				best = p
			}
		}
		c := v.Clone()
		c.Ref = best.ref
		c.Alts = []string{best.alt}
		out = append(out, c)
	}
	return out
}
