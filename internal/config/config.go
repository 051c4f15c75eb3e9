// Package config loads and validates the runtime configuration for a
// distributed sort run: the compile-time/runtime flags named in spec §6
// ("Config surface"), plus transport credentials that may be overridden
// from a local .env file.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

// Config is the config surface named in spec §6.
type Config struct {
	PrefixDoubling           bool   `json:"prefixDoubling"`
	RedistributionStrategy   string `json:"redistributionStrategy"`
	AlltoallVariant          string `json:"alltoallVariant"`
	LCPAwareRQuick           bool   `json:"lcpAwareRQuick"`
	SharedMemorySortFallback bool   `json:"sharedMemorySortFallback"`
	RQuickAsGlobalSort       bool   `json:"rquickAsGlobalSort"`
	CompressPrefixes         bool   `json:"compressPrefixes"`

	// QuantileSize bounds the size of each chunk of the local string set
	// that SpaceEfficientSort materializes and sorts independently (§4.5).
	QuantileSize int `json:"quantileSize"`

	// MaxSplitterLengthFactor is the multiplier in the
	// "≈100·(global-avg-LCP + 5)" splitter-length heuristic from §4.2.
	MaxSplitterLengthFactor int `json:"maxSplitterLengthFactor"`

	// NatsAddress, when non-empty, selects the nats-backed transport
	// instead of the in-process one. May be overridden by the
	// DSORT_NATS_ADDRESS environment variable.
	NatsAddress string `json:"natsAddress"`
}

// Keys holds the process-wide configuration, populated by Load. Mirroring
// the teacher's package-level `Keys` convention keeps every package that
// only reads config (never owns its lifecycle) free of a config.Config
// parameter threaded through every call.
var Keys = Default()

// Default returns the zero-value-safe configuration used when no config
// file is supplied.
func Default() Config {
	return Config{
		RedistributionStrategy:  "naive",
		AlltoallVariant:         "direct",
		LCPAwareRQuick:          true,
		QuantileSize:            100_000,
		MaxSplitterLengthFactor: 100,
	}
}

var validator *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", mustJSON(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema failed to compile: %v", err))
	}
	validator = s
}

func mustJSON(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(fmt.Sprintf("config: embedded schema is not valid JSON: %v", err))
	}
	return v
}

// Load reads a JSON configuration file, validates it against the embedded
// schema, overlays it on Default(), applies any .env overrides found at
// envPath, and assigns the result to Keys.
//
// A missing configFile is not an error; Default() is used as-is. A
// missing envPath is likewise not an error.
func Load(configFile, envPath string) error {
	cfg := Default()

	if configFile != "" {
		raw, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("config: reading %q: %w", configFile, err)
			}
		} else {
			var doc interface{}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("config: %q is not valid JSON: %w", configFile, err)
			}
			if err := validator.Validate(doc); err != nil {
				return fmt.Errorf("config: %q failed schema validation: %w", configFile, err)
			}
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("config: decoding %q: %w", configFile, err)
			}
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: loading %q: %w", envPath, err)
		}
		if addr := os.Getenv("DSORT_NATS_ADDRESS"); addr != "" {
			cfg.NatsAddress = addr
		}
	}

	Keys = cfg
	return nil
}
