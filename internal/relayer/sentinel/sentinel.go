// Package sentinel tails the Gateway's emitted events and forwards them
// to Axelar's Amplifier API (spec.md §4.9, C9).
package sentinel

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/events"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/axelarclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/solanaclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/store"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// logDataPrefix is the conventional prefix a Solana validator attaches to a
// `sol_log_data` emission - the same "Program data: <base64>" line real
// Solana programs produce for structured events.
const logDataPrefix = "Program data: "

// SolanaReader is the subset of solanaclient.Client the Sentinel needs,
// named here so tests can supply a fake instead of a live RPC endpoint.
type SolanaReader interface {
	SignaturesForAddress(ctx context.Context, address, until string, limit int) ([]solanaclient.SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (*solanaclient.TransactionLog, error)
}

// MessageVerifier is the subset of axelarclient.Client the Sentinel needs.
type MessageVerifier interface {
	VerifyMessages(ctx context.Context, messages []axelarclient.VerifiedMessage) error
}

// Checkpointer is the subset of store.Client the Sentinel needs.
type Checkpointer interface {
	SolanaCheckpoint(ctx context.Context) (string, error)
	AdvanceSolanaCheckpoint(ctx context.Context, signature string) error
	InsertInboundMessage(ctx context.Context, msg store.InboundMessage) (int64, error)
	MarkSubmitted(ctx context.Context, id int64) error
}

// Sentinel is the C9 loop.
type Sentinel struct {
	Solana  SolanaReader
	Axelar  MessageVerifier
	Store   Checkpointer
	Outbox  *Outbox
	Metrics *telemetry.Metrics
	Logger  *log.Logger

	GatewayAddress  string
	SourceChain     string // the chain name this Sentinel reports observations as - "sol" per spec.md §4.9
	PollInterval    time.Duration
	SignaturesLimit int

	seq uint64
}

// New constructs a Sentinel with sane defaults for unset fields.
func New(solanaClient SolanaReader, axelarClient MessageVerifier, checkpoints Checkpointer, outbox *Outbox, metrics *telemetry.Metrics, gatewayAddress string) *Sentinel {
	return &Sentinel{
		Solana:          solanaClient,
		Axelar:          axelarClient,
		Store:           checkpoints,
		Outbox:          outbox,
		Metrics:         metrics,
		Logger:          telemetry.NewLogger("Sentinel"),
		GatewayAddress:  gatewayAddress,
		SourceChain:     "sol",
		PollInterval:    5 * time.Second,
		SignaturesLimit: 100,
	}
}

// Run drains any staged-but-undelivered outbox events, then polls on a
// fixed tick until ctx is cancelled (spec.md §5: "explicit suspension
// points at every network call"; a process-wide cancellation token).
func (s *Sentinel) Run(ctx context.Context) error {
	if err := s.drainOutbox(ctx); err != nil {
		s.Logger.Printf("outbox drain failed: %v", err)
		return fmt.Errorf("drain outbox: %w", err)
	}

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Println("shutting down")
			return nil
		case <-ticker.C:
			if err := s.pollOnce(ctx); err != nil {
				s.Logger.Printf("poll failed: %v", err)
				if s.Metrics != nil {
					s.Metrics.FatalErrors.WithLabelValues("sentinel").Inc()
				}
				return err
			}
		}
	}
}

// drainOutbox re-attempts delivery for anything staged but not yet
// acknowledged, e.g. after a restart following a crash mid-delivery.
func (s *Sentinel) drainOutbox(ctx context.Context) error {
	pending, err := s.Outbox.Pending()
	if err != nil {
		return err
	}
	for _, ev := range pending {
		if err := s.deliver(ctx, ev); err != nil {
			s.Logger.Printf("redelivery of staged event %d failed: %v", ev.Seq, err)
			return err
		}
	}
	return nil
}

func (s *Sentinel) pollOnce(ctx context.Context) error {
	checkpoint, err := s.Store.SolanaCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load solana checkpoint: %w", err)
	}

	sigs, err := s.Solana.SignaturesForAddress(ctx, s.GatewayAddress, checkpoint, s.SignaturesLimit)
	if err != nil {
		return fmt.Errorf("fetch signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil
	}

	// getSignaturesForAddress returns newest first; replay oldest to
	// newest so the checkpoint only ever advances monotonically.
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil {
			continue
		}

		tx, err := s.Solana.GetTransaction(ctx, sig.Signature)
		if err != nil {
			return fmt.Errorf("fetch transaction %s: %w", sig.Signature, err)
		}

		outbound := parseOutboundEvents(tx.LogLines)
		for idx, ev := range outbound {
			s.seq++
			staged := StagedEvent{
				Seq:                s.seq,
				Signature:          sig.Signature,
				Index:              idx,
				SourceAddress:      addressHex(ev.Sender),
				DestinationChain:   ev.DestinationChain,
				DestinationAddress: ev.DestinationAddress,
				Payload:            ev.Payload,
				PayloadHash:        ev.PayloadHash[:],
			}
			if err := s.Outbox.Stage(staged); err != nil {
				return fmt.Errorf("stage event: %w", err)
			}
			if err := s.deliver(ctx, staged); err != nil {
				return fmt.Errorf("deliver event: %w", err)
			}
			if s.Metrics != nil {
				s.Metrics.SentinelEventsPolled.Inc()
			}
		}

		if err := s.Store.AdvanceSolanaCheckpoint(ctx, sig.Signature); err != nil {
			return fmt.Errorf("advance solana checkpoint: %w", err)
		}
	}
	return nil
}

// deliver persists a staged event to Postgres, forwards it to the
// Amplifier API, and clears it from the outbox only once both succeed.
func (s *Sentinel) deliver(ctx context.Context, ev StagedEvent) error {
	ccid := fmt.Sprintf("%s-%d", ev.Signature, ev.Index)

	id, err := s.Store.InsertInboundMessage(ctx, store.InboundMessage{
		SourceAddress:      ev.SourceAddress,
		DestinationAddress: ev.DestinationAddress,
		DestinationChain:   ev.DestinationChain,
		Payload:            ev.Payload,
		PayloadHash:        ev.PayloadHash,
		CCID:               ccid,
	})
	if err != nil {
		return fmt.Errorf("insert inbound message: %w", err)
	}

	err = s.Axelar.VerifyMessages(ctx, []axelarclient.VerifiedMessage{{
		CCID:               ccid,
		SourceChain:        s.SourceChain,
		SourceAddress:      ev.SourceAddress,
		DestinationChain:   ev.DestinationChain,
		DestinationAddress: ev.DestinationAddress,
		PayloadHash:        ev.PayloadHash,
	}})
	if err != nil {
		return fmt.Errorf("verify messages: %w", err)
	}

	if err := s.Store.MarkSubmitted(ctx, id); err != nil {
		return fmt.Errorf("mark submitted: %w", err)
	}
	return s.Outbox.Clear(ev.Seq)
}

// outboundEvent is the union of the two event shapes parseOutboundEvents
// can extract from a transaction's log lines.
type outboundEvent struct {
	Sender             [32]byte
	DestinationChain   string
	DestinationAddress string
	PayloadHash        [32]byte
	Payload            []byte
}

// parseOutboundEvents scans a transaction's log lines for CallContract and
// CallContractOffchainData emissions (spec.md §4.9: "parses events by
// looking for CallContract (or off-chain-data variant) events").
func parseOutboundEvents(logLines []string) []outboundEvent {
	var out []outboundEvent
	for _, line := range logLines {
		if !strings.HasPrefix(line, logDataPrefix) {
			continue
		}
		data, err := decodeLogData(strings.TrimPrefix(line, logDataPrefix))
		if err != nil {
			continue
		}
		tag, body, err := events.Decode(data)
		if err != nil {
			continue
		}
		switch tag {
		case events.TagCallContract:
			cc, err := events.DecodeCallContract(body)
			if err != nil {
				continue
			}
			out = append(out, outboundEvent{
				Sender:             cc.Sender,
				DestinationChain:   cc.DestinationChain,
				DestinationAddress: cc.DestinationAddress,
				PayloadHash:        cc.PayloadHash,
				Payload:            cc.Payload,
			})
		case events.TagCallContractOffchainData:
			oc, err := events.DecodeCallContractOffchainData(body)
			if err != nil {
				continue
			}
			out = append(out, outboundEvent{
				Sender:             oc.Sender,
				DestinationChain:   oc.DestinationChain,
				DestinationAddress: oc.DestinationAddress,
				PayloadHash:        oc.PayloadHash,
			})
		}
	}
	return out
}

func addressHex(addr [32]byte) string {
	return fmt.Sprintf("%x", addr)
}

// decodeLogData base64-decodes the payload of a "Program data: <base64>"
// log line, the same framing real Solana validators apply to sol_log_data
// output.
func decodeLogData(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
}
