package harness

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"werewolf-bdd/gamesim"
)

const testNameHeader = "X-Player-Name"

func startSim(t *testing.T) (*gamesim.Server, string) {
	t.Helper()
	sim := gamesim.NewServer(gamesim.WithNameHeader(testNameHeader))
	srv := httptest.NewServer(sim)
	t.Cleanup(srv.Close)
	return sim, wsURL(srv.URL)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func connectAll(t *testing.T, names []string, endpoint string, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithNameHeader(testNameHeader), WithCloseGrace(500 * time.Millisecond)}, opts...)
	r, err := NewRegistry(names, endpoint, opts...)
	if err != nil {
		t.Fatalf("could not create registry: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Teardown(ctx)
	})
	return r
}
