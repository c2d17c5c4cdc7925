// Package main provides the varcord command-line tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/variantio/varcord/internal/callable"
	"github.com/variantio/varcord/internal/combine"
	"github.com/variantio/varcord/internal/compare"
	"github.com/variantio/varcord/internal/decompose"
	"github.com/variantio/varcord/internal/normalize"
	"github.com/variantio/varcord/internal/output"
	"github.com/variantio/varcord/internal/reconcile"
	"github.com/variantio/varcord/internal/refseq"
	"github.com/variantio/varcord/internal/variantdb"
	"github.com/variantio/varcord/internal/vcf"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Global flags
	var showVersion bool
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	// Parse global flags first
	flag.Parse()

	if showVersion {
		fmt.Printf("varcord version %s (%s) built %s\n", version, commit, date)
		return ExitSuccess
	}

	initConfig()

	// Check for subcommand
	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		return ExitUsage
	}

	switch args[0] {
	case "normalize":
		return runNormalize(args[1:])
	case "compare":
		return runCompare(args[1:])
	case "query":
		return runQuery(args[1:])
	case "config":
		return runConfig(args[1:])
	case "help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		return ExitUsage
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `varcord - variant normalization and concordance assessment

Usage:
  varcord [options] <command> [arguments]

Commands:
  normalize   Decompose and normalize a VCF file against a reference
  compare     Run pairwise concordance assessment for a batch of call sets
  query       Query stored calls from a comparison database
  config      Manage varcord configuration
  help        Show this help message

Global Options:
  --version   Show version information

Examples:
  # Normalize a call set for comparison
  varcord normalize --sample NA12878 -o prepared.vcf calls.vcf.gz

  # Score every pair of call sets in a batch
  varcord compare batch.yaml

  # Inspect stored calls around a position
  varcord query --db work/varcord.duckdb 22:30000000-30001000

For more information on a command, use:
  varcord <command> --help
`)
}

// grch37Contigs is the default contig set when no reference FASTA is given.
func grch37Contigs() []string {
	contigs := make([]string, 0, 25)
	for i := 1; i <= 22; i++ {
		contigs = append(contigs, strconv.Itoa(i))
	}
	return append(contigs, "X", "Y", "MT")
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runNormalize(args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)

	var (
		sample     string
		genomePath string
		outputFile string
		ploidy     int
		keepHomRef bool
		noSort     bool
		verbose    bool
	)

	fs.StringVar(&sample, "sample", "", "Target sample name (renames single-sample inputs)")
	fs.StringVar(&genomePath, "genome", "", "Reference FASTA (enables complex allele realignment)")
	fs.StringVar(&outputFile, "o", "", "Output file (default: stdout)")
	fs.StringVar(&outputFile, "output", "", "Output file (default: stdout)")
	fs.IntVar(&ploidy, "ploidy", 0, "Replicate single-allele calls up to this ploidy (0: leave as is)")
	fs.BoolVar(&keepHomRef, "keep-hom-ref", false, "Keep explicit homozygous reference calls")
	fs.BoolVar(&noSort, "no-sort", false, "Skip per-chromosome position sorting")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Decompose multi-base variants and normalize a VCF for comparison.

Usage:
  varcord normalize [options] <input-file>

Arguments:
  <input-file>  Input VCF file, plain or gzip compressed

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  varcord normalize --sample NA12878 calls.vcf
  varcord normalize --genome GRCh37.fa -o prepared.vcf calls.vcf.gz
`)
	}

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: input file argument required\n\n")
		fs.Usage()
		return ExitUsage
	}

	logger := newLogger(verbose)
	defer logger.Sync()

	records, header, err := prepareCallSet(fs.Arg(0), genomePath, normalize.Options{
		SampleName: sample,
		TargetPloidy: func() int {
			if ploidy > 0 {
				return ploidy
			}
			return configuredPloidy()
		}(),
		KeepHomRef: keepHomRef,
		Sort:       !noSort,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	out := os.Stdout
	if outputFile != "" {
		out, err = os.Create(outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			return ExitError
		}
		defer out.Close()
	}

	sampleNames := []string{}
	if sample != "" {
		sampleNames = append(sampleNames, sample)
	}
	w := vcf.NewWriter(out, sampleNames)
	if err := w.WriteHeader(header); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing header: %v\n", err)
		return ExitError
	}
	for _, v := range records {
		if err := w.Write(v); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing record: %v\n", err)
			return ExitError
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing output: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// prepareCallSet runs the preparation pipeline for one VCF: parse,
// normalize chromosome and sample naming, route records to reference
// contigs, then decompose multi-base and complex alleles per chromosome.
// A record whose chromosome resolves to no reference contig is a fatal
// error. The original header is returned for re-emission.
func prepareCallSet(path, genomePath string, opts normalize.Options, logger *zap.Logger) ([]*vcf.Variant, []string, error) {
	parser, err := vcf.NewParser(path)
	if err != nil {
		return nil, nil, err
	}
	defer parser.Close()

	var genome refseq.Genome
	contigs := grch37Contigs()
	if genomePath != "" {
		g, err := refseq.OpenIndexed(genomePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening reference %s: %w", genomePath, err)
		}
		genome = g
		contigs = g.Contigs()
	}

	norm := normalize.New(normalize.GRCh37(), contigs, opts)
	norm.SetLogger(logger)
	records, err := norm.Normalize(parser)
	if err != nil {
		return nil, nil, err
	}

	routed, err := normalize.RouteByChrom(records, contigs)
	if err != nil {
		return nil, nil, err
	}

	dec := decompose.New(genome)
	dec.SetLogger(logger)
	prepared := make([]*vcf.Variant, 0, len(records))
	for _, c := range contigs {
		group, ok := routed[c]
		if !ok {
			continue
		}
		out, err := dec.Stream(group)
		if err != nil {
			return nil, nil, err
		}
		prepared = append(prepared, out...)
	}
	return prepared, parser.Header(), nil
}

func runCompare(args []string) int {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)

	var (
		outputFile string
		verbose    bool
	)
	fs.StringVar(&outputFile, "o", "", "Report file (default: stdout)")
	fs.StringVar(&outputFile, "output", "", "Report file (default: stdout)")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Score every pair of call sets described in a batch configuration.

Usage:
  varcord compare [options] <batch.yaml>

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: batch configuration argument required\n\n")
		fs.Usage()
		return ExitUsage
	}

	logger := newLogger(verbose)
	defer logger.Sync()

	cfg, err := compare.LoadBatch(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	var store *variantdb.Store
	if cfg.Database != "" {
		store, err = variantdb.Open(cfg.Database)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			return ExitError
		}
		defer store.Close()
	}

	sets := make([]compare.CallSet, 0, len(cfg.CallSets))
	for _, cs := range cfg.CallSets {
		records, _, err := prepareCallSet(cs.File, cfg.Genome, normalize.Options{
			SampleName: cfg.Sample,
			Sort:       true,
		}, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error preparing %s: %v\n", cs.Name, err)
			return ExitError
		}
		logger.Info("prepared call set",
			zap.String("name", cs.Name),
			zap.Int("records", len(records)))
		if store != nil {
			if err := store.WriteCallSet(cs.Name, records); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing %s: %v\n", cs.Name, err)
				return ExitError
			}
		}
		sets = append(sets, compare.CallSet{Name: cs.Name, Records: records})
	}

	if cfg.Reconcile != "" {
		if err := reconcileSets(cfg, sets, store, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error reconciling no-calls: %v\n", err)
			return ExitError
		}
	}

	orch := compare.New(compare.Options{Workers: cfg.Workers})
	orch.SetLogger(logger)
	comparisons := orch.RunBatch(sets)

	out := os.Stdout
	if outputFile != "" {
		out, err = os.Create(outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating report file: %v\n", err)
			return ExitError
		}
		defer out.Close()
	}

	tw := output.NewTabWriter(out)
	if err := tw.WriteHeader(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report header: %v\n", err)
		return ExitError
	}
	for _, c := range comparisons {
		if err := tw.WriteComparison(c); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			return ExitError
		}
		if store != nil && c.Err == nil {
			if err := store.WriteComparison(c); err != nil {
				fmt.Fprintf(os.Stderr, "Error storing comparison: %v\n", err)
				return ExitError
			}
		}
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing report: %v\n", err)
		return ExitError
	}
	tw.WriteSummary(os.Stderr, comparisons)

	return ExitSuccess
}

// reconcileSets fills no-call positions in every call set across the
// combined position skeleton, so the pairwise scoring that follows sees an
// explicit genotype or a NotCallable filter instead of a silent gap.
func reconcileSets(cfg *compare.BatchConfig, sets []compare.CallSet, store *variantdb.Store, logger *zap.Logger) error {
	strategy, err := reconcile.ParseStrategy(cfg.Reconcile)
	if err != nil {
		return err
	}
	if strategy == reconcile.UseConsensus && store == nil {
		return fmt.Errorf("consensus strategy needs a batch database")
	}

	inputs := make([]combine.Input, len(sets))
	for i, s := range sets {
		inputs[i] = combine.Input{Name: s.Name, Records: s.Records}
	}
	skeleton, err := combine.Combine(inputs, combine.SitesOnly)
	if err != nil {
		return err
	}
	skeleton = combine.Consolidate(skeleton, inputs)

	ctx := context.Background()
	for i := range sets {
		opts := reconcile.Options{Strategy: strategy, Sample: cfg.Sample, Ploidy: configuredPloidy()}
		switch strategy {
		case reconcile.UseCallable:
			regions, err := callable.LoadBED(cfg.CallSets[i].Callable)
			if err != nil {
				return fmt.Errorf("callset %s: %w", sets[i].Name, err)
			}
			opts.Predicate = regions
		case reconcile.UseRegenotype:
			opts.Genotyper = &reconcile.ExternalGenotyper{
				Path:   cfg.Genotyper,
				Sample: cfg.Sample,
			}
		case reconcile.UseConsensus:
			opts.Store = store
		}
		r, err := reconcile.New(opts)
		if err != nil {
			return err
		}
		r.SetLogger(logger)

		resolved, err := r.Reconcile(ctx, mergeSkeleton(sets[i].Records, skeleton))
		if err != nil {
			return fmt.Errorf("callset %s: %w", sets[i].Name, err)
		}
		sets[i].Records = resolved
	}
	return nil
}

// mergeSkeleton appends no-call site records for combined positions the
// call set is silent on, keeping position order.
func mergeSkeleton(records []*vcf.Variant, skeleton []*vcf.Variant) []*vcf.Variant {
	out := make([]*vcf.Variant, 0, len(skeleton))
	byKey := make(map[string]*vcf.Variant, len(records))
	for _, v := range records {
		byKey[v.Key()] = v
	}
	for _, s := range skeleton {
		if v, ok := byKey[s.Key()]; ok {
			out = append(out, v)
			continue
		}
		site := s.Clone()
		site.Genotypes = nil
		out = append(out, site)
	}
	return out
}

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)

	var (
		dbPath  string
		callset string
	)
	fs.StringVar(&dbPath, "db", "", "Comparison database path")
	fs.StringVar(&callset, "callset", "", "Restrict to one call set")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Print stored calls overlapping a region.

Usage:
  varcord query --db <path> <chrom:start-end>

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if dbPath == "" || fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: --db and a region argument are required\n\n")
		fs.Usage()
		return ExitUsage
	}

	chrom, start, end, err := parseRegion(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitUsage
	}

	store, err := variantdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return ExitError
	}
	defer store.Close()

	ctx := context.Background()
	var records []*vcf.Variant
	if callset != "" {
		records, err = store.QueryCallSet(ctx, callset, chrom, start, end)
	} else {
		records, err = store.Query(ctx, chrom, start, end)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}

	for _, v := range records {
		gt := "."
		if len(v.Genotypes) > 0 {
			parts := make([]string, len(v.Genotypes[0].Alleles))
			for i, a := range v.Genotypes[0].Alleles {
				if a == vcf.NoCall {
					parts[i] = "."
				} else {
					parts[i] = strconv.Itoa(a)
				}
			}
			gt = strings.Join(parts, "/")
		}
		fmt.Printf("%s\t%s\t%d\t%s\t%s\t%s\n",
			v.Source, v.Chrom, v.Pos, v.Ref, strings.Join(v.Alts, ","), gt)
	}
	return ExitSuccess
}

// parseRegion parses "chrom:start-end" or "chrom:pos" with 1-based
// inclusive coordinates.
func parseRegion(s string) (chrom string, start, end int64, err error) {
	chrom, span, ok := strings.Cut(s, ":")
	if !ok || chrom == "" {
		return "", 0, 0, fmt.Errorf("region %q: want chrom:start-end", s)
	}
	from, to, ranged := strings.Cut(span, "-")
	start, err = strconv.ParseInt(from, 10, 64)
	if err != nil || start < 1 {
		return "", 0, 0, fmt.Errorf("region %q: bad start position", s)
	}
	end = start
	if ranged {
		end, err = strconv.ParseInt(to, 10, 64)
		if err != nil || end < start {
			return "", 0, 0, fmt.Errorf("region %q: bad end position", s)
		}
	}
	return chrom, start, end, nil
}
