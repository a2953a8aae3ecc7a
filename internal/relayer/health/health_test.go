package health

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// newTestListener exposes a Server's routing over a real httptest.Server,
// since Run itself binds a fixed address rather than an ephemeral one
// chosen by the test.
func newTestListener(srv *Server) (*httptest.Server, error) {
	return httptest.NewServer(srv.httpServer.Handler), nil
}

func TestStatusAndMetricsEndpoints(t *testing.T) {
	metrics := telemetry.New()
	srv := New("127.0.0.1:0", metrics)

	// Run binds :0, so exercise the handler directly rather than dialing a
	// real socket - this test is about routing, not networking.
	ts, err := newTestListener(srv)
	if err != nil {
		t.Fatalf("start test listener: %v", err)
	}
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	body, _ := io.ReadAll(resp2.Body)
	if len(body) == 0 {
		t.Fatal("expected non-empty metrics body")
	}

	resp3, err := http.Get(ts.URL + "/not-a-real-path")
	if err != nil {
		t.Fatalf("GET unknown path: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", resp3.StatusCode)
	}
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	metrics := telemetry.New()
	srv := New("127.0.0.1:0", metrics)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not shut down within the shutdown timeout")
	}
}
