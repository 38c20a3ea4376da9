package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/neardup/internal/jsonl"
	"github.com/cognicore/neardup/pkg/neardup/dedup"
	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/internalerr"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
)

// Config holds every tunable of a dedup run. Bands and Rows left at zero
// are derived from Threshold, NumPerm and the error weights.
type Config struct {
	// Threshold is the Jaccard similarity above which records count as
	// near-duplicates. Must lie in (0,1).
	Threshold float64 `yaml:"threshold"`
	NumPerm   int     `yaml:"num_perm"`
	Bands     int     `yaml:"bands"`
	Rows      int     `yaml:"rows"`

	// FPWeight and FNWeight weigh false positives against false negatives
	// when Bands and Rows are derived.
	FPWeight float64 `yaml:"fp_weight"`
	FNWeight float64 `yaml:"fn_weight"`

	Seed          uint64 `yaml:"seed"`
	Canonicalizer string `yaml:"canonicalizer"`
	ShingleSize   int    `yaml:"shingle_size"`

	Verify           string `yaml:"verify"`
	MaxAuditExamples int    `yaml:"max_audit_examples"`

	Workers      int `yaml:"workers"`
	QueueSize    int `yaml:"queue_size"`
	MaxLineBytes int `yaml:"max_line_bytes"`

	StateDB string `yaml:"state_db"`

	// CommitBatch is the number of state rows written per transaction.
	CommitBatch int `yaml:"commit_batch"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Threshold:     0.85,
		NumPerm:       minhash.DefaultNumPerm,
		FPWeight:      0.5,
		FNWeight:      0.5,
		Seed:          minhash.DefaultSeed,
		Canonicalizer: string(ingest.ModeChat),
		ShingleSize:   1,
		Verify:        string(dedup.VerifyNone),
		QueueSize:     dedup.DefaultQueueSize,
		MaxLineBytes:  jsonl.DefaultMaxLineBytes,
		CommitBatch:   dedup.DefaultCommitBatch,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return invalid("threshold must be in (0,1) (got %v)", c.Threshold)
	}
	if c.NumPerm < 1 {
		return invalid("num_perm must be positive (got %d)", c.NumPerm)
	}
	if (c.Bands == 0) != (c.Rows == 0) {
		return invalid("bands and rows must be set together (got %d and %d)", c.Bands, c.Rows)
	}
	if c.Bands != 0 && (c.Bands < 0 || c.Rows < 0 || c.Bands*c.Rows != c.NumPerm) {
		return invalid("bands*rows must equal num_perm (got %d*%d, num_perm %d)", c.Bands, c.Rows, c.NumPerm)
	}
	if c.FPWeight < 0 || c.FNWeight < 0 || c.FPWeight+c.FNWeight == 0 {
		return invalid("fp_weight and fn_weight must be non-negative and not both zero")
	}
	if _, err := ingest.ParseMode(c.Canonicalizer); err != nil {
		return err
	}
	if c.ShingleSize < 1 {
		return invalid("shingle_size must be at least 1 (got %d)", c.ShingleSize)
	}
	if _, err := dedup.ParseVerifyMode(c.Verify); err != nil {
		return err
	}
	if c.MaxAuditExamples < 0 {
		return invalid("max_audit_examples cannot be negative (got %d)", c.MaxAuditExamples)
	}
	if c.Workers < 0 {
		return invalid("workers cannot be negative (got %d)", c.Workers)
	}
	if c.QueueSize < 0 {
		return invalid("queue_size cannot be negative (got %d)", c.QueueSize)
	}
	if c.MaxLineBytes < 0 {
		return invalid("max_line_bytes cannot be negative (got %d)", c.MaxLineBytes)
	}
	if c.CommitBatch < 0 {
		return invalid("commit_batch cannot be negative (got %d)", c.CommitBatch)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Threshold: %.2f, NumPerm: %d, Bands: %d, Rows: %d, Seed: %d, "+
			"Canonicalizer: %s, ShingleSize: %d, Verify: %s, Workers: %d, QueueSize: %d}",
		c.Threshold, c.NumPerm, c.Bands, c.Rows, c.Seed,
		c.Canonicalizer, c.ShingleSize, c.Verify, c.Workers, c.QueueSize,
	)
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{internalerr.ErrInvalidConfig}, args...)...)
}
