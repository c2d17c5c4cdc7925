package compare

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BatchConfig describes a comparison experiment: the sample under study
// and the call sets to score against each other. Batches are stored as
// YAML files.
type BatchConfig struct {
	Sample   string `yaml:"sample"`
	Genome   string `yaml:"genome,omitempty"`
	Profile  string `yaml:"profile,omitempty"`
	Workers  int    `yaml:"workers,omitempty"`
	Database string `yaml:"database,omitempty"`

	// Reconcile picks the no-call resolution strategy applied across the
	// combined position set before scoring: "callable", "regenotype",
	// "consensus", or empty to skip reconciliation.
	Reconcile string `yaml:"reconcile,omitempty"`

	// Genotyper is the external tool invoked by the regenotype strategy.
	Genotyper string `yaml:"genotyper,omitempty"`

	CallSets []CallSetConfig `yaml:"callsets"`
}

// CallSetConfig names one input VCF of a batch.
type CallSetConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`

	// Callable is a BED file of this input's callable regions, used by
	// the callable reconciliation strategy.
	Callable string `yaml:"callable,omitempty"`
}

// LoadBatch reads and validates a batch configuration file.
func LoadBatch(path string) (*BatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading batch config: %w", err)
	}
	var cfg BatchConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing batch config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("batch config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *BatchConfig) validate() error {
	if c.Sample == "" {
		return fmt.Errorf("sample is required")
	}
	if len(c.CallSets) < 2 {
		return fmt.Errorf("at least two callsets are required, got %d", len(c.CallSets))
	}
	seen := make(map[string]bool)
	for i, cs := range c.CallSets {
		if cs.Name == "" {
			return fmt.Errorf("callsets[%d]: name is required", i)
		}
		if cs.File == "" {
			return fmt.Errorf("callset %s: file is required", cs.Name)
		}
		if seen[cs.Name] {
			return fmt.Errorf("duplicate callset name %s", cs.Name)
		}
		seen[cs.Name] = true
	}
	switch c.Reconcile {
	case "", "consensus":
	case "callable":
		for _, cs := range c.CallSets {
			if cs.Callable == "" {
				return fmt.Errorf("callset %s: callable strategy needs a callable BED", cs.Name)
			}
		}
	case "regenotype":
		if c.Genotyper == "" {
			return fmt.Errorf("regenotype strategy needs a genotyper tool")
		}
	default:
		return fmt.Errorf("unknown reconcile strategy %q", c.Reconcile)
	}
	return nil
}
