package state_test

import (
	"testing"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
)

func openTestLevelStore(t *testing.T) *state.LevelStore {
	t.Helper()
	s, err := state.OpenLevelStore(t.TempDir())
	if err != nil {
		t.Fatalf("open level store: %v", err)
	}
	t.Cleanup(func() { s.CloseDB() })
	return s
}

func TestLevelStoreCreateGetUpdateClose(t *testing.T) {
	s := openTestLevelStore(t)

	var addr, owner state.Address
	addr[0] = 1
	owner[0] = 2
	acc := state.Account{Address: addr, Bump: 255, Owner: owner, Data: []byte("hello")}

	if err := s.Create(acc); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok := s.Get(addr)
	if !ok {
		t.Fatal("expected account to exist after create")
	}
	if got.Bump != acc.Bump || got.Owner != acc.Owner || string(got.Data) != string(acc.Data) {
		t.Fatalf("round-tripped account mismatch: got %+v, want %+v", got, acc)
	}

	if err := s.Update(addr, []byte("updated")); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.Get(addr)
	if string(got.Data) != "updated" {
		t.Fatalf("expected updated data, got %q", got.Data)
	}

	if err := s.Close(addr); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := s.Get(addr); ok {
		t.Fatal("expected account to be gone after close")
	}
}

func TestLevelStoreCreateRejectsDuplicate(t *testing.T) {
	s := openTestLevelStore(t)

	var addr state.Address
	addr[0] = 9
	acc := state.Account{Address: addr}

	if err := s.Create(acc); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.Create(acc); err != state.ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized on duplicate create, got %v", err)
	}
}

func TestLevelStoreUpdateAndCloseRequireExistingAccount(t *testing.T) {
	s := openTestLevelStore(t)

	var addr state.Address
	addr[0] = 7

	if err := s.Update(addr, []byte("x")); err != state.ErrNotFound {
		t.Fatalf("expected ErrNotFound on update of missing account, got %v", err)
	}
	if err := s.Close(addr); err != state.ErrNotFound {
		t.Fatalf("expected ErrNotFound on close of missing account, got %v", err)
	}
}

func TestLevelStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := state.OpenLevelStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var addr state.Address
	addr[0] = 3
	if err := s1.Create(state.Account{Address: addr, Data: []byte("persisted")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s1.CloseDB(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	s2, err := state.OpenLevelStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.CloseDB()

	got, ok := s2.Get(addr)
	if !ok {
		t.Fatal("expected account to survive a close/reopen cycle")
	}
	if string(got.Data) != "persisted" {
		t.Fatalf("expected persisted data, got %q", got.Data)
	}
}
