// Package config resolves the service's configuration from CLI flags,
// LABCUSTODY_* environment variables, and an optional YAML seed manifest.
//
// Precedence (highest to lowest):
//  1. Command-line flags
//  2. LABCUSTODY_* environment variables
//  3. Seed manifest settings
//  4. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ActorSeed declares one actor the service should provision (generate a
// keypair for and enroll) at startup if it has not been provisioned yet.
type ActorSeed struct {
	ID   string `yaml:"id"`
	Role string `yaml:"role"`
}

// Settings holds the seed manifest's gateway-level settings block. These
// provide the lowest-priority defaults, overridden by LABCUSTODY_*
// environment variables and CLI flags.
type Settings struct {
	StrictGuardrails bool   `yaml:"strictGuardrails"`
	LedgerPath       string `yaml:"ledgerPath"`
	RegistryPath     string `yaml:"registryPath"`
}

// Manifest is the fully parsed seed manifest (labcustody.yaml by default).
type Manifest struct {
	Version  string      `yaml:"version"`
	Actors   []ActorSeed `yaml:"actors"`
	Settings Settings    `yaml:"settings"`
}

// LoadManifest reads and parses the YAML seed manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading manifest %q: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", path, err)
	}
	return &m, nil
}

// Config holds the fully resolved service configuration.
type Config struct {
	ManifestPath string
	DataDir      string
	LedgerPath   string
	RegistryPath string
	StorePath    string
	KeysDir      string

	ListenAddr string
	LogLevel   string
	Strict     bool

	ShowVersion bool

	// Manifest is the loaded seed manifest, nil if none was found or loaded.
	Manifest *Manifest
}

// Parse resolves a Config from args (typically os.Args[1:]).
func Parse(args []string, version string) (*Config, error) {
	cfg := &Config{}

	manifestPath := prescanManifestFlag(args)
	if manifestPath == "" {
		manifestPath = os.Getenv("LABCUSTODY_MANIFEST")
	}
	if manifestPath == "" {
		manifestPath = "labcustody.yaml"
	}

	var settings Settings
	if m, err := LoadManifest(manifestPath); err == nil {
		cfg.Manifest = m
		settings = m.Settings
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	defaultDataDir := "./data"
	defaultLedgerPath := settings.LedgerPath
	if defaultLedgerPath == "" {
		defaultLedgerPath = defaultDataDir + "/ledger.jsonl"
	}
	defaultRegistryPath := settings.RegistryPath
	if defaultRegistryPath == "" {
		defaultRegistryPath = defaultDataDir + "/registry.json"
	}
	defaultStorePath := defaultDataDir + "/store.json"

	cmd := &cobra.Command{
		Use:           "labcustody",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.ManifestPath, "manifest", envOrDefault("LABCUSTODY_MANIFEST", manifestPath), "Path to the YAML seed manifest")
	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", envOrDefault("LABCUSTODY_DATA_DIR", defaultDataDir), "Base directory for ledger, registry, and store files")
	cmd.Flags().StringVar(&cfg.LedgerPath, "ledger-path", envOrDefault("LABCUSTODY_LEDGER_PATH", defaultLedgerPath), "Path to the ledger JSONL file")
	cmd.Flags().StringVar(&cfg.RegistryPath, "registry-path", envOrDefault("LABCUSTODY_REGISTRY_PATH", defaultRegistryPath), "Path to the certificate registry JSON file")
	cmd.Flags().StringVar(&cfg.StorePath, "store-path", envOrDefault("LABCUSTODY_STORE_PATH", defaultStorePath), "Path to the envelope/soft-revocation resolver store JSON file")
	cmd.Flags().StringVar(&cfg.KeysDir, "keys-dir", envOrDefault("LABCUSTODY_KEYS_DIR", defaultDataDir+"/keys"), "Directory for per-actor PEM keypairs")
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", envOrDefault("LABCUSTODY_LISTEN", ":8080"), "HTTP listen address for the development/test binding")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", envOrDefault("LABCUSTODY_LOG_LEVEL", "info"), `Log level: "debug", "info", "warn", "error"`)
	cmd.Flags().BoolVar(&cfg.Strict, "strict", envOrDefaultBool("LABCUSTODY_STRICT", settings.StrictGuardrails), "Fail emit on any guardrail warning")
	cmd.Flags().BoolVar(&cfg.ShowVersion, "version", false, "Print version and exit")

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	return cfg, nil
}

// prescanManifestFlag scans args for --manifest before the full flag set is
// registered, since the manifest's own settings seed other flags' defaults.
func prescanManifestFlag(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--manifest" && i+1 < len(args) {
			return args[i+1]
		}
		const prefix = "--manifest="
		if len(arg) > len(prefix) && arg[:len(prefix)] == prefix {
			return arg[len(prefix):]
		}
	}
	return ""
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
