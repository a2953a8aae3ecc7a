// Relayer binary: the Includer, Sentinel, and health server that bridge
// Axelar GMP approvals to the in-process Solana Gateway Engine, and Gateway
// observations back to Axelar (spec.md §6).
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/instructions"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify/zkverify"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/axelarclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/config"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/health"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/includer"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/sentinel"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/solanaclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/store"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// Exit codes, spec.md §6: 0 clean shutdown, 1 fatal configuration error, 2
// unrecoverable runtime failure.
const (
	exitOK          = 0
	exitConfigError = 1
	exitRuntimeFail = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := telemetry.NewLogger("Relayer")

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	metrics := telemetry.New()

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("received %s, shutting down", sig)
		cancel()
	}()

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer db.Close()

	if err := db.MigrateSchema(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	engine, gatewayStore, err := buildEngine(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer gatewayStore.CloseDB()

	axelarClient, err := axelarclient.New(axelarclient.Config{
		BaseURL:        cfg.AxelarRPCURL,
		ChainName:      cfg.SolanaChainName,
		RequestTimeout: cfg.RPCTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	solCfg := solanaclient.DefaultConfig()
	solCfg.RPCURL = cfg.SolanaRPCURL
	solCfg.ProgramID = cfg.GatewayProgramID
	solCfg.RequestTimeout = cfg.RPCTimeout
	solClient, err := solanaclient.Dial(rootCtx, solCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer solClient.Close()

	outbox, err := sentinel.OpenOutbox(cfg.OutboxDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer outbox.Close()

	axelarCheckpoint, err := db.AxelarCheckpoint(rootCtx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	approvals, err := axelarClient.SubscribeToApprovals(rootCtx, axelarCheckpoint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer approvals.Close()

	sent := sentinel.New(solClient, axelarClient, db, outbox, metrics, cfg.GatewayProgramID)
	sent.PollInterval = cfg.PollInterval
	sent.SignaturesLimit = cfg.SignaturesLimit

	inc := includer.New(approvals, db, engine, metrics)

	healthSrv := health.New(cfg.HealthBindAddr, metrics)

	type outcome struct {
		component string
		err       error
	}
	results := make(chan outcome, 3)
	go func() { results <- outcome{"sentinel", sent.Run(rootCtx)} }()
	go func() { results <- outcome{"includer", inc.Run(rootCtx)} }()
	go func() { results <- outcome{"health", healthSrv.Run(rootCtx)} }()

	exitCode := exitOK
	for i := 0; i < 3; i++ {
		res := <-results
		if res.err != nil {
			logger.Printf("%s exited with error: %v", res.component, res.err)
			exitCode = exitRuntimeFail
			// A fatal error in any task cancels all peer tasks through the
			// shared cancellation token (spec.md §5).
			cancel()
		}
	}
	return exitCode
}

// buildEngine constructs the in-process Gateway Engine this relayer drives
// directly (SPEC_FULL.md's framing of Engine+Store as the runtime a real
// on-chain program would execute), backed by a durable goleveldb account
// store so a restart resumes against existing Config/Session/
// VerifierSetTracker/IncomingMessage/MessagePayload accounts instead of an
// empty ledger, and initializes it from cfg's genesis parameters. Initialize
// is idempotent against a store that was already initialized by an earlier
// run against the same backing state - the ErrAlreadyInitialized case below
// is that no-op, not a fresh-store bootstrap.
func buildEngine(cfg *config.Config) (*instructions.Engine, *state.LevelStore, error) {
	programID := state.Address(encoding.Keccak256([]byte(cfg.GatewayProgramID)))

	operator, err := hexToAddress(cfg.OperatorPubkeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("operator-pubkey: %w", err)
	}
	domainSeparator, err := hexTo32(cfg.DomainSeparatorHex)
	if err != nil {
		return nil, nil, fmt.Errorf("domain-separator: %w", err)
	}
	genesisSetHash, err := hexTo32(cfg.GenesisSetHashHex)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis-verifier-set-hash: %w", err)
	}

	gatewayStore, err := state.OpenLevelStore(cfg.GatewayStoreDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open gateway store: %w", err)
	}

	engine := instructions.New(programID, gatewayStore, domainSeparator)
	err = engine.Initialize(operator, cfg.RetentionEpochs, cfg.MinRotationDelay, domainSeparator, genesisSetHash)
	if err != nil && !errors.Is(err, state.ErrAlreadyInitialized) {
		gatewayStore.CloseDB()
		return nil, nil, fmt.Errorf("initialize gateway: %w", err)
	}

	prover := zkverify.NewProver()
	if err := prover.Initialize(); err != nil {
		gatewayStore.CloseDB()
		return nil, nil, fmt.Errorf("initialize zk pre-verification prover: %w", err)
	}
	engine.Verifier.Prover = prover

	return engine, gatewayStore, nil
}

func hexToAddress(s string) (state.Address, error) {
	b, err := hexTo32(s)
	return state.Address(b), err
}

func hexTo32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
