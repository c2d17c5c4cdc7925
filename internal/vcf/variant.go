// Package vcf provides VCF parsing, writing, and the in-memory variant model.
package vcf

import (
	"fmt"
	"strings"
)

// NoCall is the allele index sentinel for a missing ("." in GT) allele.
const NoCall = -1

// VariantKind classifies a variant record by its allele content.
type VariantKind int

const (
	KindNoVariation VariantKind = iota
	KindSNP
	KindMNP
	KindIndel
	KindMixed
	KindSymbolic
)

func (k VariantKind) String() string {
	switch k {
	case KindSNP:
		return "SNP"
	case KindMNP:
		return "MNP"
	case KindIndel:
		return "INDEL"
	case KindMixed:
		return "MIXED"
	case KindSymbolic:
		return "SYMBOLIC"
	default:
		return "NO_VARIATION"
	}
}

// GenotypeKind classifies a single sample call.
type GenotypeKind int

const (
	GenotypeNoCall GenotypeKind = iota
	GenotypeHomRef
	GenotypeHet
	GenotypeHomVar
	GenotypeMixed
)

func (k GenotypeKind) String() string {
	switch k {
	case GenotypeHomRef:
		return "HOM_REF"
	case GenotypeHet:
		return "HET"
	case GenotypeHomVar:
		return "HOM_VAR"
	case GenotypeMixed:
		return "MIXED"
	default:
		return "NO_CALL"
	}
}

// Genotype is one sample's call within a variant record.
// Alleles holds indices into the record's allele list: 0 is the reference
// allele, 1..N are alternate alleles in record order, NoCall is missing.
type Genotype struct {
	Sample      string
	Alleles     []int
	Phased      bool
	Qual        float64   // GQ, phred-scaled; 0 if absent
	Likelihoods []float64 // PL, phred-scaled, VCF genotype order; nil if absent

	// Extra holds FORMAT fields other than GT, GQ and PL as raw per-sample
	// tokens keyed by FORMAT key. They are carried through parse and emit
	// untouched.
	Extra map[string]string
}

// Kind derives the genotype classification from the called alleles.
func (g *Genotype) Kind() GenotypeKind {
	if len(g.Alleles) == 0 {
		return GenotypeNoCall
	}
	nocall, nonref := 0, 0
	for _, a := range g.Alleles {
		switch {
		case a == NoCall:
			nocall++
		case a > 0:
			nonref++
		}
	}
	switch {
	case nocall == len(g.Alleles):
		return GenotypeNoCall
	case nocall > 0:
		return GenotypeMixed
	case nonref == 0:
		return GenotypeHomRef
	case nonref == len(g.Alleles) && allEqual(g.Alleles):
		return GenotypeHomVar
	default:
		return GenotypeHet
	}
}

// Called reports whether at least one allele is not a no-call.
func (g *Genotype) Called() bool {
	for _, a := range g.Alleles {
		if a != NoCall {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the genotype.
func (g *Genotype) Clone() Genotype {
	c := *g
	c.Alleles = append([]int(nil), g.Alleles...)
	if g.Likelihoods != nil {
		c.Likelihoods = append([]float64(nil), g.Likelihoods...)
	}
	if g.Extra != nil {
		c.Extra = make(map[string]string, len(g.Extra))
		for k, tok := range g.Extra {
			c.Extra[k] = tok
		}
	}
	return c
}

func allEqual(xs []int) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}

// Variant represents a single VCF record. Records are treated as immutable
// once constructed: transformations return new records built with Clone and
// the With* helpers rather than mutating in place.
type Variant struct {
	Source    string // name of the input call set this record came from
	Chrom     string
	Pos       int64 // 1-based start position
	ID        string
	Ref       string
	Alts      []string
	Qual      float64
	Filters   []string // empty means PASS
	Info      map[string]interface{}
	Genotypes []Genotype
}

// End returns the 1-based inclusive end position. Symbolic records carry
// their span in the INFO END attribute; everything else derives it from the
// reference allele length.
func (v *Variant) End() int64 {
	if end, ok := v.Info["END"]; ok {
		switch e := end.(type) {
		case int64:
			return e
		case int:
			return int64(e)
		case string:
			var n int64
			if _, err := fmt.Sscanf(e, "%d", &n); err == nil {
				return n
			}
		}
	}
	return v.Pos + int64(len(v.Ref)) - 1
}

// AlleleSeq resolves an allele index to its base sequence.
// Index 0 is the reference allele; 1..N are alternates; NoCall yields ".".
func (v *Variant) AlleleSeq(i int) string {
	switch {
	case i == NoCall:
		return "."
	case i == 0:
		return v.Ref
	case i >= 1 && i <= len(v.Alts):
		return v.Alts[i-1]
	default:
		return ""
	}
}

// AlleleIndex returns the index of the given base sequence in the record's
// allele list, or NoCall if the sequence is not an allele of this record.
func (v *Variant) AlleleIndex(seq string) int {
	if seq == v.Ref {
		return 0
	}
	for i, alt := range v.Alts {
		if alt == seq {
			return i + 1
		}
	}
	return NoCall
}

// Kind derives the variant classification from reference and alternate
// allele lengths and content.
func (v *Variant) Kind() VariantKind {
	if len(v.Alts) == 0 {
		return KindNoVariation
	}
	kind := KindNoVariation
	for _, alt := range v.Alts {
		k := alleleKind(v.Ref, alt)
		if kind == KindNoVariation {
			kind = k
		} else if k != kind && k != KindNoVariation {
			return KindMixed
		}
	}
	return kind
}

func alleleKind(ref, alt string) VariantKind {
	if strings.HasPrefix(alt, "<") || strings.ContainsAny(alt, "[]") || alt == "*" {
		return KindSymbolic
	}
	if len(ref) != len(alt) {
		return KindIndel
	}
	diff := 0
	for i := 0; i < len(ref); i++ {
		if ref[i] != alt[i] {
			diff++
		}
	}
	switch {
	case diff == 0:
		return KindNoVariation
	case diff == 1 || len(ref) == 1:
		return KindSNP
	default:
		return KindMNP
	}
}

// IsSNP reports whether every alternate allele is a single-base substitution.
func (v *Variant) IsSNP() bool { return v.Kind() == KindSNP }

// IsIndel reports whether any alternate allele differs in length from the
// reference allele.
func (v *Variant) IsIndel() bool {
	for _, alt := range v.Alts {
		if alleleKind(v.Ref, alt) == KindIndel {
			return true
		}
	}
	return false
}

// Passing reports whether the record passes all filters.
func (v *Variant) Passing() bool {
	return len(v.Filters) == 0
}

// Clone returns a deep copy of the record.
func (v *Variant) Clone() *Variant {
	c := *v
	c.Alts = append([]string(nil), v.Alts...)
	c.Filters = append([]string(nil), v.Filters...)
	if v.Info != nil {
		c.Info = make(map[string]interface{}, len(v.Info))
		for k, val := range v.Info {
			c.Info[k] = val
		}
	}
	if v.Genotypes != nil {
		c.Genotypes = make([]Genotype, len(v.Genotypes))
		for i := range v.Genotypes {
			c.Genotypes[i] = v.Genotypes[i].Clone()
		}
	}
	return &c
}

// WithGenotypes returns a copy of the record carrying the given genotypes.
func (v *Variant) WithGenotypes(gts ...Genotype) *Variant {
	c := v.Clone()
	c.Genotypes = gts
	return c
}

// WithFilter returns a copy of the record with the named filter added.
// Adding an already-present filter is a no-op copy.
func (v *Variant) WithFilter(name string) *Variant {
	c := v.Clone()
	for _, f := range c.Filters {
		if f == name {
			return c
		}
	}
	c.Filters = append(c.Filters, name)
	return c
}

// WithInfo returns a copy of the record with one INFO attribute set.
func (v *Variant) WithInfo(key string, value interface{}) *Variant {
	c := v.Clone()
	if c.Info == nil {
		c.Info = make(map[string]interface{}, 1)
	}
	c.Info[key] = value
	return c
}

// Key returns a position key usable for map lookups across call sets.
func (v *Variant) Key() string {
	return fmt.Sprintf("%s:%d", v.Chrom, v.Pos)
}
