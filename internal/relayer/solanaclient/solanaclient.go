// Package solanaclient wraps Solana's JSON-RPC surface behind the small,
// dependency-holding strategy shape pkg/chain/strategy/solana_strategy.go
// stubs out, generalized here from "not implemented" placeholders into real
// calls against go-ethereum's chain-agnostic rpc.Client (the same client the
// teacher's own ethclient wraps for Ethereum).
package solanaclient

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// Config mirrors SolanaStrategyConfig's shape: an RPC endpoint, the program
// the relayer watches, and a commitment level.
type Config struct {
	RPCURL     string
	ProgramID  string
	Commitment string // processed, confirmed, finalized

	RequestTimeout time.Duration
	MaxRetries     int
}

// DefaultConfig mirrors DefaultSolanaStrategyConfig's finality-first default.
func DefaultConfig() Config {
	return Config{
		Commitment:     "finalized",
		RequestTimeout: 10 * time.Second,
		MaxRetries:     3,
	}
}

// Client is a connection-pooled handle to a Solana JSON-RPC endpoint.
type Client struct {
	rpc    *rpc.Client
	cfg    Config
	logger *log.Logger
}

// Dial connects to cfg.RPCURL. The dial itself performs no round trip;
// connectivity is confirmed by the caller's first real call, or by Health.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("solana RPC URL cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	rc, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial solana rpc: %w", err)
	}
	return &Client{rpc: rc, cfg: cfg, logger: telemetry.NewLogger("SolanaClient")}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	Err       any    `json:"err"`
	BlockTime *int64 `json:"blockTime"`
}

// SignaturesForAddress makes one getSignaturesForAddress request for up to
// limit transactions touching address, newest first, stopping before the
// until signature (the Sentinel's checkpoint) when one is given. It does not
// page further: when more than limit transactions follow until, only the
// newest limit are returned.
func (c *Client) SignaturesForAddress(ctx context.Context, address string, until string, limit int) ([]SignatureInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := map[string]any{
		"commitment": c.cfg.Commitment,
		"limit":      limit,
	}
	if until != "" {
		params["until"] = until
	}

	var out []SignatureInfo
	if err := c.call(ctx, &out, "getSignaturesForAddress", address, params); err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", err)
	}
	return out, nil
}

// TransactionLog is a parsed transaction's program log lines, the surface
// the Sentinel scans for CallContract-family events.
type TransactionLog struct {
	Signature string
	Slot      uint64
	LogLines  []string
}

type getTransactionResult struct {
	Slot uint64 `json:"slot"`
	Meta struct {
		LogMessages []string `json:"logMessages"`
		Err         any      `json:"err"`
	} `json:"meta"`
}

// GetTransaction fetches and flattens a confirmed transaction's log lines.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionLog, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	params := map[string]any{
		"commitment":                     c.cfg.Commitment,
		"maxSupportedTransactionVersion": 0,
	}

	var res getTransactionResult
	if err := c.call(ctx, &res, "getTransaction", signature, params); err != nil {
		return nil, fmt.Errorf("getTransaction: %w", err)
	}
	return &TransactionLog{
		Signature: signature,
		Slot:      res.Slot,
		LogLines:  res.Meta.LogMessages,
	}, nil
}

// GetSlot returns the current slot height, Solana's analogue of a block
// height. No relayer loop calls it, and the checkpoint-lag gauges in
// telemetry are not updated from it.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var slot uint64
	if err := c.call(ctx, &slot, "getSlot", map[string]any{"commitment": c.cfg.Commitment}); err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}
	return slot, nil
}

// Health calls getHealth and reports whether the node considers itself
// synced, implementing the SolanaStrategy.HealthCheck seam the teacher left
// unimplemented.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var res string
	if err := c.call(ctx, &res, "getHealth"); err != nil {
		return fmt.Errorf("solana node unhealthy: %w", err)
	}
	if res != "ok" {
		return fmt.Errorf("solana node reported status %q", res)
	}
	return nil
}

// SendTransaction submits a base64-encoded, already-signed transaction and
// returns its signature.
func (c *Client) SendTransaction(ctx context.Context, rawTx []byte) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	encoded := base64.StdEncoding.EncodeToString(rawTx)
	params := map[string]any{
		"encoding":   "base64",
		"commitment": c.cfg.Commitment,
	}

	var sig string
	if err := c.call(ctx, &sig, "sendTransaction", encoded, params); err != nil {
		return "", fmt.Errorf("sendTransaction: %w", err)
	}
	return sig, nil
}

// call retries transient failures with bounded exponential backoff and
// jitter, per spec.md §5's retry policy for both relayer loops.
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			jittered := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}
			backoff *= 2
		}
		lastErr = c.rpc.CallContext(ctx, result, method, args...)
		if lastErr == nil {
			return nil
		}
		c.logger.Printf("rpc call %s failed (attempt %d/%d): %v", method, attempt+1, c.cfg.MaxRetries+1, lastErr)
	}
	return lastErr
}
