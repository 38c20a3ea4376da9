package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NEARDUP_"

// LoadDotEnv loads variables from path into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables.
//
// Environment variables:
//   - NEARDUP_THRESHOLD: similarity threshold in (0,1)
//   - NEARDUP_NUM_PERM: signature length
//   - NEARDUP_BANDS, NEARDUP_ROWS: explicit LSH layout
//   - NEARDUP_FP_WEIGHT, NEARDUP_FN_WEIGHT: parameter search weights
//   - NEARDUP_SEED: hash family seed
//   - NEARDUP_CANONICALIZER: chat, html or raw
//   - NEARDUP_SHINGLE_SIZE: words per shingle
//   - NEARDUP_VERIFY: none, signature or exact
//   - NEARDUP_MAX_AUDIT_EXAMPLES: example pairs to keep
//   - NEARDUP_WORKERS, NEARDUP_QUEUE_SIZE: concurrency
//   - NEARDUP_MAX_LINE_BYTES: input line cap
//   - NEARDUP_STATE_DB, NEARDUP_COMMIT_BATCH: state database path and batch size
//
// Returns an error if any environment variable has an invalid value.
func ApplyEnv(cfg *Config) error {
	steps := []error{
		parseEnvFloat("THRESHOLD", &cfg.Threshold),
		parseEnvInt("NUM_PERM", &cfg.NumPerm),
		parseEnvInt("BANDS", &cfg.Bands),
		parseEnvInt("ROWS", &cfg.Rows),
		parseEnvFloat("FP_WEIGHT", &cfg.FPWeight),
		parseEnvFloat("FN_WEIGHT", &cfg.FNWeight),
		parseEnvUint("SEED", &cfg.Seed),
		parseEnvString("CANONICALIZER", &cfg.Canonicalizer),
		parseEnvInt("SHINGLE_SIZE", &cfg.ShingleSize),
		parseEnvString("VERIFY", &cfg.Verify),
		parseEnvInt("MAX_AUDIT_EXAMPLES", &cfg.MaxAuditExamples),
		parseEnvInt("WORKERS", &cfg.Workers),
		parseEnvInt("QUEUE_SIZE", &cfg.QueueSize),
		parseEnvInt("MAX_LINE_BYTES", &cfg.MaxLineBytes),
		parseEnvString("STATE_DB", &cfg.StateDB),
		parseEnvInt("COMMIT_BATCH", &cfg.CommitBatch),
	}
	return errors.Join(steps...)
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", internalerr.ErrInvalidConfig, EnvPrefix, key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", internalerr.ErrInvalidConfig, EnvPrefix, key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvUint(key string, dest *uint64) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s%s: %v", internalerr.ErrInvalidConfig, EnvPrefix, key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvString(key string, dest *string) error {
	if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
		*dest = value
	}
	return nil
}
