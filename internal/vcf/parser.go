package vcf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parser reads variant records from a VCF file.
type Parser struct {
	reader      *bufio.Reader
	file        *os.File
	gzipReader  *gzip.Reader
	lineNumber  int
	header      []string
	sampleNames []string // sample names from the #CHROM header line
	source      string   // call-set name stamped onto parsed records
}

// NewParser creates a new VCF parser for the given file.
// Supports both plain VCF and gzipped VCF (.vcf.gz) files.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	p := &Parser{file: file}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	_, err = file.Read(buf)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g. stdin).
func NewParserFromReader(r io.Reader) (*Parser, error) {
	p := &Parser{
		reader: bufio.NewReader(r),
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// SetSource sets the call-set name stamped onto every parsed record.
func (p *Parser) SetSource(name string) {
	p.source = name
}

// parseHeader reads and stores VCF header lines.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				p.sampleNames = fields[9:]
			}
			return nil
		}

		return &ParseError{
			Line:    p.lineNumber,
			Message: "expected #CHROM header line",
		}
	}

	return &ParseError{
		Line:    p.lineNumber,
		Message: "no #CHROM header line found",
	}
}

// Next reads the next variant record from the VCF file.
// Returns nil, nil when there are no more records. Per-record parse failures
// are returned as *ParseError; callers decide whether to drop or abort.
func (p *Parser) Next() (*Variant, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read variant line: %w", err)
	}
	p.lineNumber++

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return p.Next() // Skip empty lines
	}

	return p.parseLine(line)
}

// parseLine parses a single VCF data line into a Variant.
func (p *Parser) parseLine(line string) (*Variant, error) {
	for i := 0; i < len(line); i++ {
		if line[i] >= 0x80 {
			return nil, &ParseError{
				Line:    p.lineNumber,
				Message: "non-ASCII byte in record",
			}
		}
	}

	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields)),
		}
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, &ParseError{
			Line:    p.lineNumber,
			Message: fmt.Sprintf("invalid position: %s", fields[1]),
		}
	}

	qual := 0.0
	if fields[5] != "." {
		qual, err = strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, &ParseError{
				Line:    p.lineNumber,
				Message: fmt.Sprintf("invalid quality: %s", fields[5]),
			}
		}
		if qual < 0 {
			return nil, &ParseError{
				Line:    p.lineNumber,
				Message: fmt.Sprintf("negative quality: %s", fields[5]),
			}
		}
	}

	v := &Variant{
		Source:  p.source,
		Chrom:   fields[0],
		Pos:     pos,
		ID:      fields[2],
		Ref:     fields[3],
		Alts:    parseAlts(fields[4]),
		Qual:    qual,
		Filters: parseFilters(fields[6]),
		Info:    parseInfo(fields[7]),
	}

	if err := checkAlleles(v); err != nil {
		return nil, &ParseError{Line: p.lineNumber, Message: err.Error()}
	}

	if len(fields) > 9 {
		gts, err := parseGenotypes(fields[8], fields[9:], p.sampleNames)
		if err != nil {
			return nil, &ParseError{Line: p.lineNumber, Message: err.Error()}
		}
		v.Genotypes = gts
	}

	return v, nil
}

func parseAlts(field string) []string {
	if field == "." || field == "" {
		return nil
	}
	return strings.Split(field, ",")
}

func parseFilters(field string) []string {
	if field == "." || field == "" || field == "PASS" {
		return nil
	}
	return strings.Split(field, ";")
}

// checkAlleles rejects degenerate allele sets: duplicate alternates or an
// alternate identical to the reference. These occur in poorly exported VCFs
// and would corrupt allele-index bookkeeping downstream.
func checkAlleles(v *Variant) error {
	seen := make(map[string]bool, len(v.Alts))
	for _, alt := range v.Alts {
		if alt == v.Ref {
			return fmt.Errorf("alternate allele identical to reference: %s", alt)
		}
		if seen[alt] {
			return fmt.Errorf("duplicate alternate allele: %s", alt)
		}
		seen[alt] = true
	}
	return nil
}

// parseInfo parses the INFO field into a map.
func parseInfo(info string) map[string]interface{} {
	result := make(map[string]interface{})
	if info == "." {
		return result
	}

	for _, kv := range strings.Split(info, ";") {
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		} else {
			// Flag-type INFO field
			result[parts[0]] = true
		}
	}

	return result
}

// parseGenotypes parses the FORMAT column plus one column per sample.
func parseGenotypes(format string, cols, sampleNames []string) ([]Genotype, error) {
	keys := strings.Split(format, ":")
	gtIdx, gqIdx, plIdx := -1, -1, -1
	for i, k := range keys {
		switch k {
		case "GT":
			gtIdx = i
		case "GQ":
			gqIdx = i
		case "PL", "GL":
			plIdx = i
		}
	}
	if gtIdx != 0 {
		return nil, fmt.Errorf("FORMAT does not start with GT: %s", format)
	}

	gts := make([]Genotype, 0, len(cols))
	for i, col := range cols {
		parts := strings.Split(col, ":")
		g := Genotype{}
		if i < len(sampleNames) {
			g.Sample = sampleNames[i]
		}

		alleles, phased, err := parseGT(parts[gtIdx])
		if err != nil {
			return nil, err
		}
		g.Alleles = alleles
		g.Phased = phased

		if gqIdx >= 0 && gqIdx < len(parts) && parts[gqIdx] != "." {
			if q, err := strconv.ParseFloat(parts[gqIdx], 64); err == nil {
				g.Qual = q
			}
		}
		if plIdx >= 0 && plIdx < len(parts) && parts[plIdx] != "." {
			for _, s := range strings.Split(parts[plIdx], ",") {
				f, err := strconv.ParseFloat(s, 64)
				if err != nil {
					break
				}
				g.Likelihoods = append(g.Likelihoods, f)
			}
		}

		// Remaining FORMAT fields are kept as raw tokens so they survive
		// a round trip through the pipeline.
		for j, k := range keys {
			if j == gtIdx || j == gqIdx || j == plIdx || j >= len(parts) {
				continue
			}
			if g.Extra == nil {
				g.Extra = make(map[string]string)
			}
			g.Extra[k] = parts[j]
		}

		gts = append(gts, g)
	}
	return gts, nil
}

// parseGT parses a GT entry like "0/1", "1|0", ".", or "1".
func parseGT(gt string) ([]int, bool, error) {
	phased := strings.Contains(gt, "|")
	var tokens []string
	if phased {
		tokens = strings.Split(gt, "|")
	} else {
		tokens = strings.Split(gt, "/")
	}

	alleles := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "." || tok == "" {
			alleles = append(alleles, NoCall)
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return nil, false, fmt.Errorf("invalid GT entry: %s", gt)
		}
		alleles = append(alleles, n)
	}
	return alleles, phased, nil
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// SampleNames returns sample names from the #CHROM header line.
// Returns nil if no sample columns are present.
func (p *Parser) SampleNames() []string {
	return p.sampleNames
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
