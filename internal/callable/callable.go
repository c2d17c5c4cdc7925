// Package callable answers whether a genomic span has sufficient sequencing
// evidence for a confident call, backed by BED interval files produced by
// external alignment-depth analysis.
package callable

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Predicate reports whether a 1-based inclusive span is callable.
type Predicate interface {
	Callable(chrom string, start, end int64) bool
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc func(chrom string, start, end int64) bool

// Callable implements Predicate.
func (f PredicateFunc) Callable(chrom string, start, end int64) bool {
	return f(chrom, start, end)
}

type span struct {
	start, end int64 // 1-based inclusive
}

// Regions is a per-chromosome set of callable intervals with sorted, merged
// storage for binary-search containment queries.
type Regions struct {
	byChrom map[string][]span
}

// NewRegions builds an empty region set.
func NewRegions() *Regions {
	return &Regions{byChrom: make(map[string][]span)}
}

// Add records a callable 1-based inclusive interval.
// Call Build once after all intervals are added.
func (r *Regions) Add(chrom string, start, end int64) {
	r.byChrom[chrom] = append(r.byChrom[chrom], span{start, end})
}

// Build sorts and merges the recorded intervals. Queries before Build see
// unmerged data and may answer false for spans crossing adjacent intervals.
func (r *Regions) Build() {
	for chrom, spans := range r.byChrom {
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		merged := spans[:0]
		for _, s := range spans {
			if n := len(merged); n > 0 && s.start <= merged[n-1].end+1 {
				if s.end > merged[n-1].end {
					merged[n-1].end = s.end
				}
			} else {
				merged = append(merged, s)
			}
		}
		r.byChrom[chrom] = merged
	}
}

// Callable reports whether the whole span [start, end] lies inside one
// merged callable interval.
func (r *Regions) Callable(chrom string, start, end int64) bool {
	spans := r.byChrom[chrom]
	if len(spans) == 0 {
		return false
	}
	// rightmost interval starting at or before start
	i := sort.Search(len(spans), func(i int) bool { return spans[i].start > start })
	if i == 0 {
		return false
	}
	s := spans[i-1]
	return start >= s.start && end <= s.end
}

// LoadBED reads a BED file (optionally gzipped) of callable regions.
// BED coordinates are 0-based half-open and are converted to 1-based
// inclusive spans.
func LoadBED(path string) (*Regions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open BED file: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	regions := NewRegions()
	scanner := bufio.NewScanner(reader)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") ||
			strings.HasPrefix(line, "track") || strings.HasPrefix(line, "browser") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("BED line %d: expected at least 3 columns", lineNo)
		}
		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("BED line %d: invalid start %q", lineNo, fields[1])
		}
		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("BED line %d: invalid end %q", lineNo, fields[2])
		}
		regions.Add(fields[0], start+1, end)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan BED file: %w", err)
	}

	regions.Build()
	return regions, nil
}
