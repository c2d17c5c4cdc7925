// Package variantdb persists normalized variant calls in DuckDB so that
// reconciliation and reporting can range-query any input without
// re-reading its VCF. Call sets are append-only; comparison summaries are
// stored alongside them.
package variantdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/variantio/varcord/internal/compare"
	"github.com/variantio/varcord/internal/vcf"
)

// Store manages a DuckDB connection holding variant calls and comparison
// summaries.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS variants (
		callset VARCHAR,
		chrom VARCHAR,
		pos BIGINT,
		ref VARCHAR,
		alts VARCHAR,
		sample VARCHAR,
		gt VARCHAR,
		qual DOUBLE,
		filters VARCHAR,
		PRIMARY KEY (callset, chrom, pos, ref, alts)
	)`); err != nil {
		return err
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS comparisons (
		ref_set VARCHAR,
		cmp_set VARCHAR,
		phased BOOLEAN,
		variant_type VARCHAR,
		category VARCHAR,
		count BIGINT
	)`)
	return err
}

// callKey is the composite key for deduplicating records before writing.
type callKey struct {
	chrom, ref, alts string
	pos              int64
}

// WriteCallSet batch-inserts a call set's records using the Appender API.
// Duplicate (chrom, pos, ref, alts) entries within the batch are
// deduplicated before writing. Only the first genotype of each record is
// stored.
func (s *Store) WriteCallSet(name string, records []*vcf.Variant) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[callKey]bool, len(records))
	deduped := make([]*vcf.Variant, 0, len(records))
	for _, v := range records {
		k := callKey{v.Chrom, v.Ref, strings.Join(v.Alts, ","), v.Pos}
		if !seen[k] {
			seen[k] = true
			deduped = append(deduped, v)
		}
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "variants")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, v := range deduped {
		sample, gt := encodeGenotype(v)
		if err := appender.AppendRow(
			name, v.Chrom, v.Pos, v.Ref, strings.Join(v.Alts, ","),
			sample, gt, v.Qual, strings.Join(v.Filters, ";"),
		); err != nil {
			return fmt.Errorf("append variant: %w", err)
		}
	}

	return appender.Flush()
}

// ClearCallSet removes all stored records of one call set.
func (s *Store) ClearCallSet(name string) error {
	_, err := s.db.Exec("DELETE FROM variants WHERE callset=?", name)
	return err
}

// Query returns every stored call overlapping the 1-based inclusive
// region, across all call sets. Each record's Source names its call set.
func (s *Store) Query(ctx context.Context, chrom string, start, end int64) ([]*vcf.Variant, error) {
	return s.queryWhere(ctx,
		"WHERE chrom=? AND pos>=? AND pos<=? ORDER BY pos, callset",
		chrom, start, end)
}

// QueryCallSet is Query restricted to one call set.
func (s *Store) QueryCallSet(ctx context.Context, name, chrom string, start, end int64) ([]*vcf.Variant, error) {
	return s.queryWhere(ctx,
		"WHERE callset=? AND chrom=? AND pos>=? AND pos<=? ORDER BY pos",
		name, chrom, start, end)
}

func (s *Store) queryWhere(ctx context.Context, where string, args ...any) ([]*vcf.Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT callset, chrom, pos, ref, alts, sample, gt, qual, filters FROM variants "+where,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	var out []*vcf.Variant
	for rows.Next() {
		var callset, chrom, ref, alts, sample, gt, filters string
		var pos int64
		var qual float64
		if err := rows.Scan(&callset, &chrom, &pos, &ref, &alts, &sample, &gt, &qual, &filters); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v := &vcf.Variant{
			Source: callset,
			Chrom:  chrom,
			Pos:    pos,
			Ref:    ref,
			Qual:   qual,
		}
		if alts != "" {
			v.Alts = strings.Split(alts, ",")
		}
		if filters != "" {
			v.Filters = strings.Split(filters, ";")
		}
		g, err := decodeGenotype(sample, gt)
		if err != nil {
			return nil, fmt.Errorf("decode genotype at %s:%d: %w", chrom, pos, err)
		}
		if g != nil {
			v.Genotypes = []vcf.Genotype{*g}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return out, nil
}

// WriteComparison stores one scored pair as per-type per-category count
// rows.
func (s *Store) WriteComparison(c *compare.Comparison) error {
	for vt, byCat := range c.Counts {
		for cat, n := range byCat {
			if _, err := s.db.Exec(
				"INSERT INTO comparisons (ref_set, cmp_set, phased, variant_type, category, count) VALUES (?, ?, ?, ?, ?, ?)",
				c.Ref, c.Cmp, c.Phased, vt, cat, n,
			); err != nil {
				return fmt.Errorf("insert comparison row: %w", err)
			}
		}
	}
	return nil
}

// ReadComparison reconstructs the stored counts for one pair, or nil when
// the pair was never scored.
func (s *Store) ReadComparison(refSet, cmpSet string) (*compare.Comparison, error) {
	rows, err := s.db.Query(
		"SELECT phased, variant_type, category, count FROM comparisons WHERE ref_set=? AND cmp_set=?",
		refSet, cmpSet)
	if err != nil {
		return nil, fmt.Errorf("query comparison: %w", err)
	}
	defer rows.Close()

	var c *compare.Comparison
	for rows.Next() {
		var phased bool
		var vt, cat string
		var n int
		if err := rows.Scan(&phased, &vt, &cat, &n); err != nil {
			return nil, fmt.Errorf("scan comparison: %w", err)
		}
		if c == nil {
			c = &compare.Comparison{
				Ref:    refSet,
				Cmp:    cmpSet,
				Phased: phased,
				Counts: make(map[string]map[string]int),
			}
		}
		if c.Counts[vt] == nil {
			c.Counts[vt] = make(map[string]int)
		}
		c.Counts[vt][cat] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comparison: %w", err)
	}
	return c, nil
}

// encodeGenotype flattens a record's first genotype into sample name and
// allele string, "0|1" style with "." for no-calls.
func encodeGenotype(v *vcf.Variant) (sample, gt string) {
	if len(v.Genotypes) == 0 {
		return "", ""
	}
	g := &v.Genotypes[0]
	sep := "/"
	if g.Phased {
		sep = "|"
	}
	parts := make([]string, len(g.Alleles))
	for i, a := range g.Alleles {
		if a == vcf.NoCall {
			parts[i] = "."
		} else {
			parts[i] = strconv.Itoa(a)
		}
	}
	return g.Sample, strings.Join(parts, sep)
}

func decodeGenotype(sample, gt string) (*vcf.Genotype, error) {
	if gt == "" {
		return nil, nil
	}
	g := &vcf.Genotype{Sample: sample, Phased: strings.Contains(gt, "|")}
	for _, tok := range strings.FieldsFunc(gt, func(r rune) bool { return r == '/' || r == '|' }) {
		if tok == "." {
			g.Alleles = append(g.Alleles, vcf.NoCall)
			continue
		}
		a, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("bad allele %q", tok)
		}
		g.Alleles = append(g.Alleles, a)
	}
	return g, nil
}
