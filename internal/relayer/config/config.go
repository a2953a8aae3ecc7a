// Package config parses and validates the relayer binary's configuration:
// CLI flags per spec.md §6, layered over an optional YAML file and a small
// set of environment-variable overrides for secrets that should not appear
// on a process's command line.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the relayer binary needs to run the Includer,
// Sentinel, and health server.
type Config struct {
	AxelarRPCURL     string `yaml:"axelar_rpc_url"`
	SolanaRPCURL     string `yaml:"solana_rpc_url"`
	DatabaseURL      string `yaml:"database_url"`
	HealthBindAddr   string `yaml:"health_bind"`
	SolanaChainName  string `yaml:"solana_chain_name"`
	GatewayProgramID string `yaml:"gateway_program_id"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	SignaturesLimit int           `yaml:"signatures_limit"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`

	LogLevel string `yaml:"log_level"`

	// OutboxDir is where the Sentinel's crash-safe goleveldb outbox lives.
	OutboxDir string `yaml:"outbox_dir"`

	// GatewayStoreDir is where the Gateway Engine's account store persists
	// Config/VerifierSetTracker/Session/IncomingMessage/MessagePayload
	// accounts across restarts. See buildEngine in cmd/relayer.
	GatewayStoreDir string `yaml:"gateway_store_dir"`

	// Genesis parameters for the in-process Gateway Engine this relayer
	// drives directly (SPEC_FULL.md's framing of Engine+Store as the
	// runtime a real on-chain program would execute). The operator key,
	// genesis set hash, retention window and rotation delay take effect
	// only when the store is fresh; a populated Account store keeps its
	// existing Config. The domain separator is also handed to the Engine's
	// signature Verifier on every run.
	OperatorPubkeyHex  string        `yaml:"operator_pubkey"`
	DomainSeparatorHex string        `yaml:"domain_separator"`
	GenesisSetHashHex  string        `yaml:"genesis_verifier_set_hash"`
	RetentionEpochs    uint64        `yaml:"retention_epochs"`
	MinRotationDelay   time.Duration `yaml:"min_rotation_delay"`
}

// defaults mirrors the teacher's pattern of safe, non-secret defaults baked
// into Load rather than scattered across callers.
func defaults() Config {
	return Config{
		HealthBindAddr:   "0.0.0.0:8081",
		OutboxDir:        "./relayer-outbox",
		GatewayStoreDir:  "./gateway-store",
		PollInterval:     5 * time.Second,
		SignaturesLimit:  100,
		RPCTimeout:       10 * time.Second,
		LogLevel:         "info",
		RetentionEpochs:  10,
		MinRotationDelay: 24 * time.Hour,
	}
}

// Load parses CLI flags from args (typically os.Args[1:]), optionally
// layering a YAML config file named by --config underneath them, and
// applying environment-variable overrides for the database URL's password
// component last. Flags always win over the config file; the config file
// always wins over built-in defaults.
func Load(args []string) (*Config, error) {
	cfg := defaults()

	fs := flag.NewFlagSet("relayer", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file, overridden by any flag set explicitly")
	axelarRPCURL := fs.String("axelar-rpc-url", "", "Axelar Amplifier API endpoint")
	solanaRPCURL := fs.String("solana-rpc-url", "", "Solana JSON-RPC endpoint")
	databaseURL := fs.String("database-url", "", "Postgres connection string")
	healthBind := fs.String("health-bind", "", "host:port for the health status server")
	outboxDir := fs.String("outbox-dir", "", "directory for the Sentinel's crash-safe outbox database")
	gatewayStoreDir := fs.String("gateway-store-dir", "", "directory for the Gateway Engine's durable account store")
	solanaChainName := fs.String("solana-chain-name", "", "chain name Solana is registered under on Axelar")
	gatewayProgramID := fs.String("gateway-program-id", "", "Gateway program id to filter Sentinel observations by")
	operatorPubkey := fs.String("operator-pubkey", "", "hex-encoded operator pubkey, used only to bootstrap a fresh Gateway store")
	domainSeparator := fs.String("domain-separator", "", "hex-encoded 32-byte domain separator, used by the Engine's signature verifier on every run and to bootstrap a fresh Gateway store")
	genesisSetHash := fs.String("genesis-verifier-set-hash", "", "hex-encoded 32-byte genesis verifier set root, used only to bootstrap a fresh Gateway store")
	retentionEpochs := fs.Uint64("retention-epochs", 0, "previous-verifier-set retention window, in epochs")
	minRotationDelay := fs.Duration("min-rotation-delay", 0, "minimum delay between non-operator signer rotations")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if *configPath != "" {
		if err := loadYAMLFile(*configPath, &cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", *configPath, err)
		}
	}

	applyIfSet(&cfg.AxelarRPCURL, *axelarRPCURL)
	applyIfSet(&cfg.SolanaRPCURL, *solanaRPCURL)
	applyIfSet(&cfg.DatabaseURL, *databaseURL)
	applyIfSet(&cfg.HealthBindAddr, *healthBind)
	applyIfSet(&cfg.OutboxDir, *outboxDir)
	applyIfSet(&cfg.GatewayStoreDir, *gatewayStoreDir)
	applyIfSet(&cfg.SolanaChainName, *solanaChainName)
	applyIfSet(&cfg.GatewayProgramID, *gatewayProgramID)
	applyIfSet(&cfg.OperatorPubkeyHex, *operatorPubkey)
	applyIfSet(&cfg.DomainSeparatorHex, *domainSeparator)
	applyIfSet(&cfg.GenesisSetHashHex, *genesisSetHash)
	if *retentionEpochs > 0 {
		cfg.RetentionEpochs = *retentionEpochs
	}
	if *minRotationDelay > 0 {
		cfg.MinRotationDelay = *minRotationDelay
	}

	if pw := os.Getenv("RELAYER_DB_PASSWORD"); pw != "" {
		cfg.DatabaseURL = injectPassword(cfg.DatabaseURL, pw)
	}

	return &cfg, nil
}

func applyIfSet(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// injectPassword substitutes a `password=...` placeholder token in a
// Postgres URL/DSN with the real secret, so the secret itself never needs
// to be written down alongside the rest of the (checked-in-friendly)
// database URL.
func injectPassword(databaseURL, password string) string {
	if !strings.Contains(databaseURL, "password=") {
		return databaseURL
	}
	const placeholder = "password=__env__"
	return strings.Replace(databaseURL, placeholder, "password="+password, 1)
}

// Validate aggregates every missing or invalid field into one error, the
// same all-at-once reporting idiom the teacher's own config validation
// uses, so an operator fixes every problem in one pass instead of
// discovering them one flag at a time.
func (c *Config) Validate() error {
	var problems []string

	if c.AxelarRPCURL == "" {
		problems = append(problems, "--axelar-rpc-url is required")
	}
	if c.SolanaRPCURL == "" {
		problems = append(problems, "--solana-rpc-url is required")
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "--database-url is required")
	}
	if c.HealthBindAddr == "" {
		problems = append(problems, "--health-bind is required")
	}
	if c.SolanaChainName == "" {
		problems = append(problems, "--solana-chain-name is required")
	}
	if c.GatewayProgramID == "" {
		problems = append(problems, "--gateway-program-id is required")
	}
	if c.OperatorPubkeyHex == "" {
		problems = append(problems, "--operator-pubkey is required")
	}
	if c.DomainSeparatorHex == "" {
		problems = append(problems, "--domain-separator is required")
	}
	if c.GenesisSetHashHex == "" {
		problems = append(problems, "--genesis-verifier-set-hash is required")
	}
	if c.GatewayStoreDir == "" {
		problems = append(problems, "--gateway-store-dir is required")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if c.SignaturesLimit <= 0 {
		problems = append(problems, "signatures_limit must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration invalid:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
