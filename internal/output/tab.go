// Package output provides concordance report formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/variantio/varcord/internal/compare"
)

// TabWriter writes comparison summaries in tab-delimited format, one row
// per (pair, variant type, category) count.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Ref_set",
			"Cmp_set",
			"Mode",
			"Variant_type",
			"Category",
			"Count",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// WriteComparison writes one scored pair. Rows are emitted in sorted
// variant-type and category order so reports diff cleanly. A failed pair
// becomes a single row with the error in the category column.
func (tw *TabWriter) WriteComparison(c *compare.Comparison) error {
	mode := "genotype"
	if c.Phased {
		mode = "phased"
	}

	if c.Err != nil {
		row := []string{c.Ref, c.Cmp, mode, "-", "error: " + c.Err.Error(), "0"}
		_, err := tw.w.WriteString(strings.Join(row, "\t") + "\n")
		return err
	}

	types := make([]string, 0, len(c.Counts))
	for vt := range c.Counts {
		types = append(types, vt)
	}
	sort.Strings(types)

	for _, vt := range types {
		cats := make([]string, 0, len(c.Counts[vt]))
		for cat := range c.Counts[vt] {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		for _, cat := range cats {
			row := []string{
				c.Ref, c.Cmp, mode, vt, cat,
				fmt.Sprintf("%d", c.Counts[vt][cat]),
			}
			if _, err := tw.w.WriteString(strings.Join(row, "\t") + "\n"); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteSummary prints per-pair totals, typically to stderr.
func (tw *TabWriter) WriteSummary(w io.Writer, comparisons []*compare.Comparison) {
	for _, c := range comparisons {
		if c.Err != nil {
			fmt.Fprintf(w, "%s vs %s: failed: %v\n", c.Ref, c.Cmp, c.Err)
			continue
		}
		fmt.Fprintf(w, "%s vs %s: %d concordant, %d discordant\n",
			c.Ref, c.Cmp, c.Count("concordant"), c.Count("discordant"))
	}
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}
