package state

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
)

// LevelStore is the durable Store implementation: every Config,
// VerifierSetTracker, Session, IncomingMessage, and MessagePayload account
// the Engine touches is written through to an embedded goleveldb database,
// so a relayer restart resumes against the same Gateway state instead of
// starting from an empty ledger. Backed by cometbft-db, the same driver
// already used for the Sentinel's outbox (internal/relayer/sentinel).
type LevelStore struct {
	db dbm.DB
}

// OpenLevelStore opens (or creates) a goleveldb database under dir to back
// the Gateway's account store.
func OpenLevelStore(dir string) (*LevelStore, error) {
	db, err := dbm.NewGoLevelDB("gateway-accounts", dir)
	if err != nil {
		return nil, fmt.Errorf("open gateway account store: %w", err)
	}
	return &LevelStore{db: db}, nil
}

// CloseDB releases the underlying database handle. Named distinctly from
// the Store interface's per-account Close so the two are never confused.
func (s *LevelStore) CloseDB() error {
	return s.db.Close()
}

func accountKey(addr Address) []byte {
	return []byte("acct:" + hex.EncodeToString(addr[:]))
}

// wireAccount is Account's on-disk encoding: JSON for readability during
// operations, with the address and owner hex-encoded; Data is a []byte,
// which encoding/json writes as base64.
type wireAccount struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
	Owner   string `json:"owner"`
	Data    []byte `json:"data,omitempty"`
}

func (a Account) toWire() wireAccount {
	return wireAccount{
		Address: hex.EncodeToString(a.Address[:]),
		Bump:    a.Bump,
		Owner:   hex.EncodeToString(a.Owner[:]),
		Data:    a.Data,
	}
}

func (w wireAccount) toAccount() (Account, error) {
	var acc Account
	addrB, err := hex.DecodeString(w.Address)
	if err != nil || len(addrB) != 32 {
		return acc, fmt.Errorf("decode account address: %w", err)
	}
	ownerB, err := hex.DecodeString(w.Owner)
	if err != nil || len(ownerB) != 32 {
		return acc, fmt.Errorf("decode account owner: %w", err)
	}
	copy(acc.Address[:], addrB)
	copy(acc.Owner[:], ownerB)
	acc.Bump = w.Bump
	acc.Data = w.Data
	return acc, nil
}

// Get implements Store.
func (s *LevelStore) Get(addr Address) (Account, bool) {
	data, err := s.db.Get(accountKey(addr))
	if err != nil || data == nil {
		return Account{}, false
	}
	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return Account{}, false
	}
	acc, err := w.toAccount()
	if err != nil {
		return Account{}, false
	}
	return acc, true
}

// Create implements Store.
func (s *LevelStore) Create(acc Account) error {
	key := accountKey(acc.Address)
	existing, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	data, err := json.Marshal(acc.toWire())
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := s.db.SetSync(key, data); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update implements Store.
func (s *LevelStore) Update(addr Address, data []byte) error {
	key := accountKey(addr)
	existing, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if existing == nil {
		return ErrNotFound
	}
	var w wireAccount
	if err := json.Unmarshal(existing, &w); err != nil {
		return fmt.Errorf("decode account: %w", err)
	}
	w.Data = data
	encoded, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := s.db.SetSync(key, encoded); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// Close implements Store: it removes addr's account (spec's C7
// CloseMessagePayload and similar account-closing operations), not the
// database handle - see CloseDB for that.
func (s *LevelStore) Close(addr Address) error {
	key := accountKey(addr)
	existing, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("check existing account: %w", err)
	}
	if existing == nil {
		return ErrNotFound
	}
	if err := s.db.Delete(key); err != nil {
		return fmt.Errorf("close account: %w", err)
	}
	return nil
}

var _ Store = (*LevelStore)(nil)
