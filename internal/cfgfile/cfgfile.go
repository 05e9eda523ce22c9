// Package cfgfile loads carina.yaml, the project-level defaults file:
// command flags win, then environment variables, then carina.yaml, then
// these compiled-in defaults.
package cfgfile

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Defaults holds carina's compiled-in configuration, the bottom layer of
// the precedence chain.
type Defaults struct {
	Refresh      bool
	AutoApprove  bool
	LockTimeoutS int
	Region       string

	// DriftParallelism caps the concurrent drift reads a refresh may run.
	DriftParallelism int

	// OTLPEndpoint is the OTLP/HTTP collector URL tracing exports to;
	// empty disables export.
	OTLPEndpoint string
}

func DefaultDefaults() Defaults {
	return Defaults{
		Refresh:          true,
		AutoApprove:      false,
		LockTimeoutS:     30,
		Region:           "us-east-1",
		DriftParallelism: 16,
		OTLPEndpoint:     "",
	}
}

// Load reads carina.yaml from the working directory (if present) and
// environment variables prefixed CARINA_, layering them over
// DefaultDefaults(). Missing config files are not an error; only
// malformed ones are.
func Load(v *viper.Viper) (Defaults, error) {
	d := DefaultDefaults()

	v.SetConfigName("carina")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CARINA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("refresh", d.Refresh)
	v.SetDefault("auto_approve", d.AutoApprove)
	v.SetDefault("lock_timeout_seconds", d.LockTimeoutS)
	v.SetDefault("region", d.Region)
	v.SetDefault("drift_parallelism", d.DriftParallelism)
	v.SetDefault("otlp_endpoint", d.OTLPEndpoint)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return d, fmt.Errorf("reading carina.yaml: %w", err)
		}
	}

	d.Refresh = v.GetBool("refresh")
	d.AutoApprove = v.GetBool("auto_approve")
	d.LockTimeoutS = v.GetInt("lock_timeout_seconds")
	d.Region = v.GetString("region")
	d.DriftParallelism = v.GetInt("drift_parallelism")
	d.OTLPEndpoint = v.GetString("otlp_endpoint")
	return d, nil
}

// Backend describes the settings of the `backend "s3" { ... }` stanza a
// root module may declare, without the cfgfile package depending on
// internal/state. Load does not fill it; the CLI builds its state.Backend
// from the parsed ast.Backend.
type Backend struct {
	Kind   string // "local" or "s3"
	Bucket string
	Key    string
	Region string
}
