package axelarclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewRejectsMissingFields(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
	if _, err := New(Config{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error for empty chain name")
	}
}

func TestVerifyMessages(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages/verify" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, ChainName: "solana"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = c.VerifyMessages(context.Background(), []VerifiedMessage{
		{
			CCID:               "sol-1-0",
			SourceChain:        "solana",
			SourceAddress:      "Gateway11111111111111111111111111111111111",
			DestinationChain:   "ethereum",
			DestinationAddress: "0x1234",
			PayloadHash:        make([]byte, 32),
		},
	})
	if err != nil {
		t.Fatalf("VerifyMessages: %v", err)
	}

	messages, ok := received["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Fatalf("expected 1 message in request body, got %v", received)
	}
}

func TestVerifyMessagesEmptyIsNoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, ChainName: "solana"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.VerifyMessages(context.Background(), nil); err != nil {
		t.Fatalf("VerifyMessages(nil): %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no HTTP calls for an empty batch, got %d", calls)
	}
}

func TestSubscribeToApprovalsStreamsInOrder(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		payload := base64.StdEncoding.EncodeToString([]byte("ping"))
		sig := base64.StdEncoding.EncodeToString(make([]byte, 65))
		for _, height := range []uint64{10, 11} {
			frame := map[string]any{
				"block_height":  height,
				"payload_bytes": payload,
				"signatures":    []string{sig},
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, ChainName: "solana"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := c.SubscribeToApprovals(ctx, 9)
	if err != nil {
		t.Fatalf("SubscribeToApprovals: %v", err)
	}
	defer sub.Close()

	first, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next (first): %v", err)
	}
	if first.BlockHeight != 10 {
		t.Errorf("expected block height 10 first, got %d", first.BlockHeight)
	}
	if string(first.PayloadBytes) != "ping" {
		t.Errorf("expected payload %q, got %q", "ping", first.PayloadBytes)
	}

	second, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next (second): %v", err)
	}
	if second.BlockHeight != 11 {
		t.Errorf("expected block height 11 second, got %d", second.BlockHeight)
	}
}
