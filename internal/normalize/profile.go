// Package normalize makes heterogeneous VCF inputs position- and
// sample-comparable against one designated reference genome: chromosome
// name remapping, sample renaming, ploidy repair, and no-call filtering.
package normalize

import (
	"strconv"
	"strings"
)

// Profile holds an organism's chromosome-name equivalence classes.
// Profiles are immutable after construction and passed explicitly to
// normalization calls; no global registry exists, so tests can use
// alternate organisms freely.
type Profile struct {
	name    string
	classes [][]string
	// alias -> class index, including derived spelling variants
	aliases map[string]int
}

// NewProfile builds a profile from groups of equivalent chromosome names.
// Derived variants (chr prefix added/stripped, underscore/dash swapped)
// are registered automatically for every listed name.
func NewProfile(name string, groups [][]string) *Profile {
	p := &Profile{name: name, classes: groups, aliases: make(map[string]int)}
	for i, group := range groups {
		for _, n := range group {
			for _, alias := range deriveAliases(n) {
				if _, taken := p.aliases[alias]; !taken {
					p.aliases[alias] = i
				}
			}
		}
	}
	return p
}

// Name returns the profile name.
func (p *Profile) Name() string { return p.name }

func deriveAliases(n string) []string {
	out := []string{n}
	if stripped := strings.TrimPrefix(n, "chr"); stripped != n {
		out = append(out, stripped)
	} else {
		out = append(out, "chr"+n)
	}
	base := len(out)
	for i := 0; i < base; i++ {
		a := out[i]
		if swapped := strings.ReplaceAll(a, "_", "-"); swapped != a {
			out = append(out, swapped)
		}
		if swapped := strings.ReplaceAll(a, "-", "_"); swapped != a {
			out = append(out, swapped)
		}
	}
	return out
}

// Resolver returns a remap function targeting the given reference contigs.
// A token already naming a reference contig passes through; a token whose
// equivalence class contains a reference contig resolves to it; anything
// else passes through unchanged, deferring the mismatch to per-chromosome
// routing.
func (p *Profile) Resolver(refContigs []string) func(string) string {
	inRef := make(map[string]bool, len(refContigs))
	for _, c := range refContigs {
		inRef[c] = true
	}

	// canonical member per class, if the reference names one
	canonical := make(map[int]string)
	for i, group := range p.classes {
		for _, n := range group {
			for _, alias := range deriveAliases(n) {
				if inRef[alias] {
					canonical[i] = alias
					break
				}
			}
			if _, ok := canonical[i]; ok {
				break
			}
		}
	}

	return func(token string) string {
		if inRef[token] {
			return token
		}
		if class, ok := p.aliases[token]; ok {
			if name, ok := canonical[class]; ok {
				return name
			}
		}
		return token
	}
}

// GRCh37 returns the human GRCh37 profile covering UCSC-style (chr1, chrM)
// and Ensembl/GRC-style (1, MT) naming.
func GRCh37() *Profile {
	groups := [][]string{
		{"MT", "chrM", "M"},
		{"X", "chrX"},
		{"Y", "chrY"},
	}
	for i := 1; i <= 22; i++ {
		n := strconv.Itoa(i)
		groups = append(groups, []string{n, "chr" + n})
	}
	return NewProfile("GRCh37", groups)
}
