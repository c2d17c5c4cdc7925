package decompose

import (
	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/vcf"
)

// Stream decomposes an ordered record stream. Multi-base records (MNPs and
// complex indels) are split into primitives; plain indels get their shared
// padding stripped; SNPs pass through. Records overlapping a span already
// covered by a previous multi-base decomposition on the same chromosome are
// skipped, since their content is accounted for by the earlier primitives.
// Input must be sorted by position within each chromosome.
func (d *Decomposer) Stream(records []*vcf.Variant) ([]*vcf.Variant, error) {
	var out []*vcf.Variant
	blockChrom := ""
	blockEnd := int64(-1)
	skipped := 0

	for _, v := range records {
		if v.Chrom == blockChrom && v.Pos <= blockEnd {
			skipped++
			continue
		}

		switch v.Kind() {
		case vcf.KindMNP, vcf.KindMixed:
			prims, err := d.Decompose(v)
			if err != nil {
				return nil, err
			}
			out = append(out, prims...)
			blockChrom = v.Chrom
			blockEnd = v.End()
		case vcf.KindIndel:
			out = append(out, StripIndelPadding(v))
		default:
			out = append(out, v)
		}
	}

	if skipped > 0 {
		d.logger.Info("skipped records inside decomposed spans", zap.Int("count", skipped))
	}
	return out, nil
}

// StripIndelPadding removes unnecessary shared 5' padding from an ordinary
// indel record without full decomposition. Only padding common to the
// reference and every potential alternate allele is trimmed, so a called
// allele never loses bases that distinguish it from an uncalled one.
// Non-indel records and records with symbolic alleles are returned as is.
func StripIndelPadding(v *vcf.Variant) *vcf.Variant {
	if !v.IsIndel() {
		return v
	}
	for _, alt := range v.Alts {
		if alleleIsSymbolic(alt) {
			return v
		}
	}

	ref := v.Ref
	alts := append([]string(nil), v.Alts...)
	pos := v.Pos

	ref, alts, pos = stripSharedPadding(ref, alts, pos)
	if ref == v.Ref && pos == v.Pos {
		return v
	}

	c := v.Clone()
	c.Pos = pos
	c.Ref = ref
	c.Alts = alts
	return c
}

func alleleIsSymbolic(alt string) bool {
	return len(alt) > 0 && (alt[0] == '<' || alt == "*")
}
