package sentinel

import (
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// StagedEvent is one CallContract-family observation buffered in the
// outbox before it is durably recorded in Postgres.
type StagedEvent struct {
	Seq                uint64 `json:"seq"`
	Signature          string `json:"signature"`
	Index              int    `json:"index"`
	SourceAddress      string `json:"source_address"`
	DestinationChain   string `json:"destination_chain"`
	DestinationAddress string `json:"destination_address"`
	Payload            []byte `json:"payload,omitempty"`
	PayloadHash        []byte `json:"payload_hash"`
}

// Outbox is a single-writer, crash-safe buffer of observed events the
// Sentinel has not yet durably recorded in Postgres, so a crash between
// on-chain observation and DB commit does not lose the event. Replay does
// not deduplicate: an event whose earlier delivery got past
// InsertInboundMessage is inserted and forwarded again. Backed by
// cometbft-db's embedded goleveldb,
// grounded on SPEC_FULL.md's domain-stack table entry for this package.
type Outbox struct {
	db dbm.DB
}

// OpenOutbox opens (or creates) a goleveldb database under dir.
func OpenOutbox(dir string) (*Outbox, error) {
	db, err := dbm.NewGoLevelDB("sentinel-outbox", dir)
	if err != nil {
		return nil, fmt.Errorf("open sentinel outbox: %w", err)
	}
	return &Outbox{db: db}, nil
}

// Close releases the underlying database.
func (o *Outbox) Close() error {
	return o.db.Close()
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("evt:%020d", seq))
}

// Stage durably records ev before any network call to Postgres or the
// Amplifier API is attempted, so a crash mid-delivery can be replayed
// instead of losing the observation.
func (o *Outbox) Stage(ev StagedEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal staged event: %w", err)
	}
	if err := o.db.SetSync(outboxKey(ev.Seq), data); err != nil {
		return fmt.Errorf("stage event: %w", err)
	}
	return nil
}

// Clear removes a staged event once it has been durably recorded
// downstream (inserted into Postgres and acknowledged by VerifyMessages).
func (o *Outbox) Clear(seq uint64) error {
	if err := o.db.Delete(outboxKey(seq)); err != nil {
		return fmt.Errorf("clear staged event: %w", err)
	}
	return nil
}

// Pending returns every staged event still awaiting downstream delivery,
// in sequence order - what a restarted Sentinel replays before resuming
// its normal poll loop.
func (o *Outbox) Pending() ([]StagedEvent, error) {
	iter, err := o.db.Iterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	defer iter.Close()

	var out []StagedEvent
	for ; iter.Valid(); iter.Next() {
		var ev StagedEvent
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decode staged event: %w", err)
		}
		out = append(out, ev)
	}
	return out, iter.Error()
}
