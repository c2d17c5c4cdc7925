// Package refseq provides access to reference genome sequence, either from
// a whole FASTA loaded in memory or through a samtools .fai index for
// random access without loading contigs.
package refseq

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Genome serves base sequence for reference contigs.
// Coordinates are 1-based inclusive throughout.
type Genome interface {
	// Sequence returns the bases of [start, end] on the named contig.
	Sequence(chrom string, start, end int64) (string, error)

	// Contigs returns the canonical contig names in definition order.
	Contigs() []string
}

// MemGenome holds whole contigs in memory. Suitable for test references and
// small genomes; use IndexedGenome for whole human references.
type MemGenome struct {
	order []string
	seqs  map[string]string
}

// NewMemGenome builds a genome from contig name to sequence pairs.
func NewMemGenome(seqs map[string]string) *MemGenome {
	order := make([]string, 0, len(seqs))
	for name := range seqs {
		order = append(order, name)
	}
	sort.Strings(order)
	return &MemGenome{order: order, seqs: seqs}
}

// Load reads a FASTA file (optionally gzipped) fully into memory.
func Load(path string) (*MemGenome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
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

	g := &MemGenome{seqs: make(map[string]string)}

	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var currentID string
	var currentSeq strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			if currentID != "" {
				g.seqs[currentID] = currentSeq.String()
			}
			currentID = parseContigName(line)
			g.order = append(g.order, currentID)
			currentSeq.Reset()
		} else {
			currentSeq.WriteString(strings.TrimSpace(line))
		}
	}
	if currentID != "" {
		g.seqs[currentID] = currentSeq.String()
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan FASTA: %w", err)
	}
	return g, nil
}

// parseContigName extracts the contig name from a FASTA header line:
// everything between '>' and the first whitespace.
func parseContigName(header string) string {
	name := strings.TrimPrefix(header, ">")
	if i := strings.IndexAny(name, " \t"); i >= 0 {
		name = name[:i]
	}
	return name
}

// Sequence returns the bases of [start, end] on the named contig.
func (g *MemGenome) Sequence(chrom string, start, end int64) (string, error) {
	seq, ok := g.seqs[chrom]
	if !ok {
		return "", fmt.Errorf("no such reference contig: %s", chrom)
	}
	if start < 1 || end < start || end > int64(len(seq)) {
		return "", fmt.Errorf("range %d-%d out of bounds for contig %s (length %d)",
			start, end, chrom, len(seq))
	}
	return strings.ToUpper(seq[start-1 : end]), nil
}

// Contigs returns the contig names in definition order.
func (g *MemGenome) Contigs() []string {
	return g.order
}

// faiEntry is one line of a samtools FASTA index.
type faiEntry struct {
	length    int64
	offset    int64
	lineBases int64
	lineWidth int64
}

// IndexedGenome serves sequence via a .fai index and file seeks, without
// loading contigs into memory. Not safe for concurrent use; callers
// serialize access per open genome.
type IndexedGenome struct {
	file  *os.File
	order []string
	index map[string]faiEntry
}

// OpenIndexed opens a FASTA file with an accompanying <path>.fai index.
func OpenIndexed(path string) (*IndexedGenome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
	}

	g := &IndexedGenome{file: f, index: make(map[string]faiEntry)}
	if err := g.loadFai(path + ".fai"); err != nil {
		f.Close()
		return nil, err
	}
	return g, nil
}

func (g *IndexedGenome) loadFai(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open fai index: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 5 {
			return fmt.Errorf("badly formatted fai line: %q", scanner.Text())
		}
		var e faiEntry
		if _, err := fmt.Sscanf(
			strings.Join(fields[1:], " "), "%d %d %d %d",
			&e.length, &e.offset, &e.lineBases, &e.lineWidth,
		); err != nil {
			return fmt.Errorf("parse fai line %q: %w", scanner.Text(), err)
		}
		g.index[fields[0]] = e
		g.order = append(g.order, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan fai index: %w", err)
	}
	return nil
}

// Sequence returns the bases of [start, end] on the named contig.
func (g *IndexedGenome) Sequence(chrom string, start, end int64) (string, error) {
	e, ok := g.index[chrom]
	if !ok {
		return "", fmt.Errorf("no such reference contig: %s", chrom)
	}
	if start < 1 || end < start || end > e.length {
		return "", fmt.Errorf("range %d-%d out of bounds for contig %s (length %d)",
			start, end, chrom, e.length)
	}

	// File offset of a 0-based base i is offset + i/lineBases*lineWidth + i%lineBases.
	lo := start - 1
	fileStart := e.offset + lo/e.lineBases*e.lineWidth + lo%e.lineBases
	hi := end - 1
	fileEnd := e.offset + hi/e.lineBases*e.lineWidth + hi%e.lineBases

	raw := make([]byte, fileEnd-fileStart+1)
	if _, err := g.file.ReadAt(raw, fileStart); err != nil {
		return "", fmt.Errorf("read contig %s: %w", chrom, err)
	}

	out := make([]byte, 0, end-start+1)
	for _, b := range raw {
		if b == '\n' || b == '\r' {
			continue
		}
		out = append(out, b)
	}
	return strings.ToUpper(string(out)), nil
}

// Contigs returns the contig names in index order.
func (g *IndexedGenome) Contigs() []string {
	return g.order
}

// Close closes the underlying FASTA file.
func (g *IndexedGenome) Close() error {
	return g.file.Close()
}
