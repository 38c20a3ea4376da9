package config

import (
	"fmt"

	"github.com/cognicore/neardup/pkg/neardup/dedup"
	"github.com/cognicore/neardup/pkg/neardup/ingest"
	"github.com/cognicore/neardup/pkg/neardup/lsh"
	"github.com/cognicore/neardup/pkg/neardup/minhash"
	"github.com/cognicore/neardup/pkg/neardup/store"
)

// Loader layers configuration sources: defaults, then the YAML file at
// Path, then NEARDUP_* variables (after loading DotEnv). Flags are applied
// by the caller on top of the result.
type Loader struct {
	Path    string
	DotEnv  string
	SkipEnv bool
}

// Load returns the merged configuration. It is not validated yet, so
// callers can still apply flags.
func (l *Loader) Load() (Config, error) {
	cfg := Default()
	if l.Path != "" {
		loaded, err := Load(l.Path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if l.SkipEnv {
		return cfg, nil
	}
	if err := LoadDotEnv(l.DotEnv); err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Components holds the runtime pieces built from a Config.
type Components struct {
	Canonicalizer ingest.Canonicalizer
	Shingler      *ingest.Shingler
	Hasher        *minhash.Hasher
	Pipeline      *ingest.Pipeline
	Params        lsh.Params
	Engine        dedup.Config
	Meta          store.Meta
}

// Build validates cfg and constructs the components it describes.
func Build(cfg Config) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := ingest.ParseMode(cfg.Canonicalizer)
	if err != nil {
		return nil, err
	}
	canon, err := ingest.NewCanonicalizer(mode)
	if err != nil {
		return nil, err
	}
	hasher, err := minhash.New(cfg.NumPerm, cfg.Seed)
	if err != nil {
		return nil, err
	}
	params, err := ResolveParams(cfg)
	if err != nil {
		return nil, err
	}
	verify, err := dedup.ParseVerifyMode(cfg.Verify)
	if err != nil {
		return nil, err
	}

	shingler := ingest.NewShingler(cfg.ShingleSize)
	return &Components{
		Canonicalizer: canon,
		Shingler:      shingler,
		Hasher:        hasher,
		Pipeline:      ingest.NewPipeline(canon, shingler, hasher),
		Params:        params,
		Engine: dedup.Config{
			Threshold:        cfg.Threshold,
			NumPerm:          cfg.NumPerm,
			Params:           params,
			Verify:           verify,
			MaxAuditExamples: cfg.MaxAuditExamples,
			Workers:          cfg.Workers,
			QueueSize:        cfg.QueueSize,
			CommitBatch:      cfg.CommitBatch,
		},
		Meta: store.Meta{
			NumPerm:       cfg.NumPerm,
			Bands:         params.Bands,
			Rows:          params.Rows,
			Seed:          cfg.Seed,
			ShingleSize:   shingler.Size(),
			Canonicalizer: string(mode),
		},
	}, nil
}

// ResolveParams returns the explicit bands and rows, or derives them.
func ResolveParams(cfg Config) (lsh.Params, error) {
	if cfg.Bands != 0 || cfg.Rows != 0 {
		p := lsh.Params{Bands: cfg.Bands, Rows: cfg.Rows}
		return p, p.Validate(cfg.NumPerm)
	}
	return lsh.OptimalParams(cfg.Threshold, cfg.NumPerm, lsh.Weights{
		FalsePositive: cfg.FPWeight,
		FalseNegative: cfg.FNWeight,
	})
}
