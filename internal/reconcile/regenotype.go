package reconcile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/variantio/varcord/internal/vcf"
)

// ExternalGenotyper shells out to a genotyping tool. The candidate sites
// are written as a VCF file, the tool is invoked with the input and output
// paths appended to Args, and the output VCF is read back. Tools that only
// emit records they could call are handled: silent sites stay no-calls.
type ExternalGenotyper struct {
	Path   string
	Args   []string
	Sample string
}

// Genotype implements Regenotyper.
func (e *ExternalGenotyper) Genotype(ctx context.Context, sites []*vcf.Variant) ([]*vcf.Variant, error) {
	dir, err := os.MkdirTemp("", "varcord-regenotype")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "sites.vcf")
	outPath := filepath.Join(dir, "called.vcf")
	if err := writeSites(inPath, sites, e.Sample); err != nil {
		return nil, err
	}

	args := append(append([]string{}, e.Args...), inPath, outPath)
	cmd := exec.CommandContext(ctx, e.Path, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running %s: %v: %s", e.Path, err, strings.TrimSpace(stderr.String()))
	}

	p, err := vcf.NewParser(outPath)
	if err != nil {
		return nil, fmt.Errorf("reading genotyper output: %w", err)
	}
	defer p.Close()
	return vcf.ReadAll(p)
}

func writeSites(path string, sites []*vcf.Variant, sample string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := vcf.NewWriter(f, []string{sample})
	if err := w.WriteHeader(nil); err != nil {
		return err
	}
	for _, v := range sites {
		site := v.WithGenotypes(vcf.Genotype{
			Sample:  sample,
			Alleles: []int{vcf.NoCall, vcf.NoCall},
		})
		if err := w.Write(site); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
