// Package store is the relayer's Postgres-backed checkpoint and
// inbound-message store (spec.md §6/§4.10), grounded on pkg/database/
// client.go's connection-pooling and logging idiom.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("row not found")

// checkpointRowID is the fixed id every singleton checkpoint row is keyed
// by (spec.md §6: "singleton rows keyed by a fixed id=1, upserted").
const checkpointRowID = 1

// Client is a connection-pooled handle to the relayer's Postgres store.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// ClientOption configures a Client, mirroring pkg/database/client.go's
// functional-option pattern.
type ClientOption func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// Open opens a connection pool against databaseURL and verifies
// connectivity with a bounded ping, exactly as the teacher's NewClient does.
func Open(databaseURL string, opts ...ClientOption) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}

	c := &Client{logger: telemetry.NewLogger("Store")}
	for _, opt := range opts {
		opt(c)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	c.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c.logger.Println("connected")
	return c, nil
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Println("closing")
	return c.db.Close()
}

// MigrateSchema creates the three tables spec.md §6 names, plus the
// gateway_events table InsertGatewayEvent writes to, if they do not
// already exist. There is no migration history table here - the schema is
// small and fixed, unlike the teacher's own versioned-migration machinery,
// so idempotent DDL is simpler and sufficient.
func (c *Client) MigrateSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS axelar_block (
	id INT PRIMARY KEY,
	latest_block BIGINT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS solana_transaction (
	id INT PRIMARY KEY,
	latest_signature TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS axelar_messages (
	id SERIAL PRIMARY KEY,
	solana_transaction_id INT,
	source_address TEXT NOT NULL,
	destination_address TEXT NOT NULL,
	destination_chain TEXT NOT NULL,
	payload BYTEA NOT NULL,
	payload_hash BYTEA NOT NULL,
	ccid TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS gateway_events (
	id SERIAL PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	encoded BYTEA NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT now()
);`
	_, err := c.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// AxelarCheckpoint returns the latest Axelar block height fully applied to
// the Gateway, or 0 if the checkpoint row does not exist yet.
func (c *Client) AxelarCheckpoint(ctx context.Context) (uint64, error) {
	var latest int64
	err := c.db.QueryRowContext(ctx, `SELECT latest_block FROM axelar_block WHERE id = $1`, checkpointRowID).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query axelar checkpoint: %w", err)
	}
	return uint64(latest), nil
}

// AdvanceAxelarCheckpoint upserts the singleton Axelar checkpoint row. The
// caller must only call this after every transaction derived from
// latestBlock has been durably confirmed on-chain (spec §8 invariant 8).
func (c *Client) AdvanceAxelarCheckpoint(ctx context.Context, latestBlock uint64) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO axelar_block (id, latest_block, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET latest_block = EXCLUDED.latest_block, updated_at = now()`,
		checkpointRowID, int64(latestBlock))
	if err != nil {
		return fmt.Errorf("advance axelar checkpoint: %w", err)
	}
	return nil
}

// SolanaCheckpoint returns the latest fully processed Solana transaction
// signature, or "" if no checkpoint has been recorded yet.
func (c *Client) SolanaCheckpoint(ctx context.Context) (string, error) {
	var sig string
	err := c.db.QueryRowContext(ctx, `SELECT latest_signature FROM solana_transaction WHERE id = $1`, checkpointRowID).Scan(&sig)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query solana checkpoint: %w", err)
	}
	return sig, nil
}

// AdvanceSolanaCheckpoint upserts the singleton Solana checkpoint row.
func (c *Client) AdvanceSolanaCheckpoint(ctx context.Context, latestSignature string) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO solana_transaction (id, latest_signature, updated_at) VALUES ($1, $2, now())
ON CONFLICT (id) DO UPDATE SET latest_signature = EXCLUDED.latest_signature, updated_at = now()`,
		checkpointRowID, latestSignature)
	if err != nil {
		return fmt.Errorf("advance solana checkpoint: %w", err)
	}
	return nil
}

// MessageStatus is the lifecycle of one Sentinel-observed outbound message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSubmitted MessageStatus = "submitted"
)

// InboundMessage is one row of axelar_messages.
type InboundMessage struct {
	ID                  int64
	SolanaTransactionID *int64
	SourceAddress       string
	DestinationAddress  string
	DestinationChain    string
	Payload             []byte
	PayloadHash         []byte
	CCID                string
	Status              MessageStatus
}

// InsertInboundMessage records a Sentinel observation with status=pending,
// parametrically to avoid injection (spec.md §6: "all queries use
// parametric SQL").
func (c *Client) InsertInboundMessage(ctx context.Context, msg InboundMessage) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(ctx, `
INSERT INTO axelar_messages
	(solana_transaction_id, source_address, destination_address, destination_chain, payload, payload_hash, ccid, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`,
		msg.SolanaTransactionID, msg.SourceAddress, msg.DestinationAddress, msg.DestinationChain,
		msg.Payload, msg.PayloadHash, msg.CCID, string(StatusPending)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert inbound message: %w", err)
	}
	return id, nil
}

// InsertGatewayEvent durably records one Gateway event's canonical encoding
// (events.MessageApproval.MessageApproved/MessageExecuted,
// events.SignersRotated.Encode, events.OperatorshipTransferred.Encode),
// keyed by the batch correlation id that produced it, so approve_message
// and rotate_signers outcomes survive past a single Printf line (spec.md
// §6 step 4, "emit the event").
func (c *Client) InsertGatewayEvent(ctx context.Context, corrID, kind string, encoded []byte) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO gateway_events (correlation_id, kind, encoded) VALUES ($1, $2, $3)`,
		corrID, kind, encoded)
	if err != nil {
		return fmt.Errorf("insert gateway event: %w", err)
	}
	return nil
}

// MarkSubmitted flips a message's status to submitted after the Amplifier
// API acknowledges VerifyMessages for it.
func (c *Client) MarkSubmitted(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `UPDATE axelar_messages SET status = $1 WHERE id = $2`, string(StatusSubmitted), id)
	if err != nil {
		return fmt.Errorf("mark message submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark message submitted: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingMessages returns every message still awaiting a VerifyMessages
// acknowledgement, oldest first.
func (c *Client) PendingMessages(ctx context.Context) ([]InboundMessage, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT id, solana_transaction_id, source_address, destination_address, destination_chain, payload, payload_hash, ccid, status
FROM axelar_messages WHERE status = $1 ORDER BY id ASC`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("query pending messages: %w", err)
	}
	defer rows.Close()

	var out []InboundMessage
	for rows.Next() {
		var m InboundMessage
		var status string
		if err := rows.Scan(&m.ID, &m.SolanaTransactionID, &m.SourceAddress, &m.DestinationAddress,
			&m.DestinationChain, &m.Payload, &m.PayloadHash, &m.CCID, &status); err != nil {
			return nil, fmt.Errorf("scan pending message: %w", err)
		}
		m.Status = MessageStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}
