// Package axelarclient talks to Axelar's Amplifier API: a streaming
// subscription the Includer drains for approved proof batches, and a unary
// call the Sentinel posts verified messages to.
package axelarclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"

	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// Config names the Amplifier API endpoint and the chain name Solana is
// registered under on Axelar.
type Config struct {
	BaseURL        string // e.g. https://amplifier.axelar.dev
	ChainName      string // the <solana-chain-name> filter SubscribeToApprovals uses
	RequestTimeout time.Duration
}

// Client is a thin HTTP/WebSocket client over the Amplifier API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Logger
}

// New constructs a Client, defaulting RequestTimeout when unset.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("amplifier base URL cannot be empty")
	}
	if cfg.ChainName == "" {
		return nil, fmt.Errorf("solana chain name cannot be empty")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     telemetry.NewLogger("AxelarClient"),
	}, nil
}

// ApprovalBatch is one `{block_height, payload_bytes, signatures}` entry
// SubscribeToApprovals yields (spec.md §6).
type ApprovalBatch struct {
	BlockHeight  uint64   `json:"block_height"`
	PayloadBytes []byte   `json:"payload_bytes"`
	Signatures   [][]byte `json:"signatures"`
}

// ApprovalSubscription streams ApprovalBatch values in block order. Close
// releases the underlying connection.
type ApprovalSubscription struct {
	conn   *websocket.Conn
	logger *log.Logger
}

// SubscribeToApprovals opens a streaming subscription filtered to
// c.cfg.ChainName, starting at startHeight. Order within a block is
// preserved by the server; this client does no client-side reordering.
func (c *Client) SubscribeToApprovals(ctx context.Context, startHeight uint64) (*ApprovalSubscription, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse amplifier base URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/v1/approvals/subscribe"
	q := u.Query()
	q.Set("chain", c.cfg.ChainName)
	q.Set("start_height", fmt.Sprintf("%d", startHeight))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("subscribe to approvals: %w", err)
	}
	c.logger.Printf("subscribed to approvals for chain=%s from height=%d", c.cfg.ChainName, startHeight)
	return &ApprovalSubscription{conn: conn, logger: c.logger}, nil
}

// Next blocks for the next approval batch. It returns an error once the
// connection is closed or ctx is cancelled.
func (s *ApprovalSubscription) Next(ctx context.Context) (*ApprovalBatch, error) {
	type frame struct {
		BlockHeight  uint64   `json:"block_height"`
		PayloadBytes string   `json:"payload_bytes"` // base64
		Signatures   []string `json:"signatures"`    // base64
	}

	done := make(chan struct{})
	var msg []byte
	var readErr error
	go func() {
		defer close(done)
		_, msg, readErr = s.conn.ReadMessage()
	}()

	select {
	case <-ctx.Done():
		_ = s.conn.Close()
		return nil, ctx.Err()
	case <-done:
	}
	if readErr != nil {
		return nil, fmt.Errorf("read approval frame: %w", readErr)
	}

	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return nil, fmt.Errorf("decode approval frame: %w", err)
	}

	batch := &ApprovalBatch{BlockHeight: f.BlockHeight}
	payload, err := base64.StdEncoding.DecodeString(f.PayloadBytes)
	if err != nil {
		return nil, fmt.Errorf("decode payload_bytes: %w", err)
	}
	batch.PayloadBytes = payload
	for _, sigB64 := range f.Signatures {
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return nil, fmt.Errorf("decode signature: %w", err)
		}
		batch.Signatures = append(batch.Signatures, sig)
	}

	payloadHash := gethcrypto.Keccak256(batch.PayloadBytes)
	s.logger.Printf("approval batch block_height=%d payload_hash=%s signatures=%d",
		batch.BlockHeight, cmtbytes.HexBytes(payloadHash).String(), len(batch.Signatures))
	return batch, nil
}

// Close releases the subscription's connection.
func (s *ApprovalSubscription) Close() error {
	return s.conn.Close()
}

// VerifiedMessage carries the canonical message fields the Sentinel submits
// for an outbound CallContract observation (spec.md §6).
type VerifiedMessage struct {
	CCID               string `json:"ccid"`
	SourceChain        string `json:"source_chain"`
	SourceAddress      string `json:"source_address"`
	DestinationChain   string `json:"destination_chain"`
	DestinationAddress string `json:"destination_address"`
	PayloadHash        []byte `json:"payload_hash"`
}

// VerifyMessages posts the canonical fields of one or more observed
// messages to the Amplifier API for Axelar-side verification.
func (c *Client) VerifyMessages(ctx context.Context, messages []VerifiedMessage) error {
	if len(messages) == 0 {
		return nil
	}

	type wireMessage struct {
		CCID               string `json:"ccid"`
		SourceChain        string `json:"source_chain"`
		SourceAddress      string `json:"source_address"`
		DestinationChain   string `json:"destination_chain"`
		DestinationAddress string `json:"destination_address"`
		PayloadHash        string `json:"payload_hash"` // hex
	}
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{
			CCID:               m.CCID,
			SourceChain:        m.SourceChain,
			SourceAddress:      m.SourceAddress,
			DestinationChain:   m.DestinationChain,
			DestinationAddress: m.DestinationAddress,
			PayloadHash:        cmtbytes.HexBytes(m.PayloadHash).String(),
		}
	}

	body, err := json.Marshal(map[string]any{"messages": wire})
	if err != nil {
		return fmt.Errorf("marshal verify messages request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/v1/messages/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build verify messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post verify messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("verify messages returned status %d", resp.StatusCode)
	}
	c.logger.Printf("verified %d message(s)", len(messages))
	return nil
}
