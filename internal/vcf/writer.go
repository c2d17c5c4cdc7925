package vcf

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Writer emits variant records as VCF text.
type Writer struct {
	w           *bufio.Writer
	sampleNames []string
}

// NewWriter creates a VCF writer emitting records for the given samples.
func NewWriter(w io.Writer, sampleNames []string) *Writer {
	return &Writer{
		w:           bufio.NewWriter(w),
		sampleNames: sampleNames,
	}
}

// WriteHeader writes the given meta lines followed by the #CHROM line.
// Contig meta lines are dropped: after chromosome remapping the original
// contig declarations no longer describe the records. The sample columns
// of the #CHROM line are rewritten to the writer's sample list.
func (w *Writer) WriteHeader(metaLines []string) error {
	wroteFormat := false
	for _, line := range metaLines {
		if strings.HasPrefix(line, "##contig") {
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			continue
		}
		if strings.HasPrefix(line, "##fileformat=") {
			wroteFormat = true
		}
		if _, err := w.w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write header line: %w", err)
		}
	}
	if !wroteFormat {
		if _, err := w.w.WriteString("##fileformat=VCFv4.2\n"); err != nil {
			return fmt.Errorf("write fileformat line: %w", err)
		}
	}

	cols := []string{"#CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}
	if len(w.sampleNames) > 0 {
		cols = append(cols, "FORMAT")
		cols = append(cols, w.sampleNames...)
	}
	if _, err := w.w.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
		return fmt.Errorf("write column header: %w", err)
	}
	return nil
}

// Write writes a single record.
func (w *Writer) Write(v *Variant) error {
	fields := []string{
		v.Chrom,
		strconv.FormatInt(v.Pos, 10),
		orDot(v.ID),
		v.Ref,
		formatAlts(v.Alts),
		formatQual(v.Qual),
		formatFilters(v.Filters),
		formatInfo(v.Info),
	}
	if len(w.sampleNames) > 0 {
		fields = append(fields, formatGenotypeColumns(v)...)
	}
	if _, err := w.w.WriteString(strings.Join(fields, "\t") + "\n"); err != nil {
		return fmt.Errorf("write record %s:%d: %w", v.Chrom, v.Pos, err)
	}
	return nil
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

func formatAlts(alts []string) string {
	if len(alts) == 0 {
		return "."
	}
	return strings.Join(alts, ",")
}

func formatQual(q float64) string {
	if q == 0 {
		return "."
	}
	return strconv.FormatFloat(q, 'g', -1, 64)
}

func formatFilters(filters []string) string {
	if len(filters) == 0 {
		return "PASS"
	}
	return strings.Join(filters, ";")
}

// formatInfo emits INFO attributes with sorted keys for deterministic output.
func formatInfo(info map[string]interface{}) string {
	if len(info) == 0 {
		return "."
	}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch val := info[k].(type) {
		case bool:
			if val {
				parts = append(parts, k)
			}
		case string:
			parts = append(parts, k+"="+val)
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, val))
		}
	}
	return strings.Join(parts, ";")
}

func formatGenotypeColumns(v *Variant) []string {
	hasGQ, hasPL := false, false
	extraSet := make(map[string]bool)
	for i := range v.Genotypes {
		if v.Genotypes[i].Qual != 0 {
			hasGQ = true
		}
		if len(v.Genotypes[i].Likelihoods) > 0 {
			hasPL = true
		}
		for k := range v.Genotypes[i].Extra {
			extraSet[k] = true
		}
	}
	extraKeys := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)

	format := "GT"
	if hasGQ {
		format += ":GQ"
	}
	if hasPL {
		format += ":PL"
	}
	for _, k := range extraKeys {
		format += ":" + k
	}

	cols := []string{format}
	for i := range v.Genotypes {
		cols = append(cols, formatGenotype(&v.Genotypes[i], hasGQ, hasPL, extraKeys))
	}
	return cols
}

func formatGenotype(g *Genotype, withGQ, withPL bool, extraKeys []string) string {
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	tokens := make([]string, 0, len(g.Alleles))
	for _, a := range g.Alleles {
		if a == NoCall {
			tokens = append(tokens, ".")
		} else {
			tokens = append(tokens, strconv.Itoa(a))
		}
	}
	if len(tokens) == 0 {
		tokens = append(tokens, ".")
	}

	col := strings.Join(tokens, sep)
	if withGQ {
		if g.Qual == 0 {
			col += ":."
		} else {
			col += ":" + strconv.FormatFloat(g.Qual, 'g', -1, 64)
		}
	}
	if withPL {
		if len(g.Likelihoods) == 0 {
			col += ":."
		} else {
			pls := make([]string, len(g.Likelihoods))
			for i, pl := range g.Likelihoods {
				pls[i] = strconv.FormatFloat(pl, 'g', -1, 64)
			}
			col += ":" + strings.Join(pls, ",")
		}
	}
	for _, k := range extraKeys {
		tok := g.Extra[k]
		if tok == "" {
			tok = "."
		}
		col += ":" + tok
	}
	return col
}
