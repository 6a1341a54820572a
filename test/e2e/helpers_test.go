//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pendergraft/fhevmkit/internal/config"
	"github.com/pendergraft/fhevmkit/internal/env"
	"github.com/pendergraft/fhevmkit/internal/server"
	"github.com/pendergraft/fhevmkit/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const aclAddress = "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Node              *FakeNode
	TestServer        *httptest.Server
	Server            *server.Server
	Capabilities      *env.Capabilities
}

// setupPostgresE starts a Postgres container and returns the connection string (error-returning variant for TestMain)
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("fhevmkit"),
		postgres.WithUsername("fhevmkit"),
		postgres.WithPassword("fhevmkit"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// FakeNode is a JSON-RPC node whose answers can be changed while tests run
type FakeNode struct {
	*httptest.Server

	mu      sync.Mutex
	results map[string]any
}

// NewFakeNode starts a node that looks like a Hardhat node with the FHEVM plugin
func NewFakeNode() *FakeNode {
	n := &FakeNode{}
	n.Reset()
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	return n
}

// Reset restores the Hardhat answers
func (n *FakeNode) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = map[string]any{
		"eth_chainId":        "0x7a69",
		"web3_clientVersion": "HardhatNetwork/2.22.3/@fhevm/hardhat-plugin/0.1.0",
		"fhevm_relayer_metadata": map[string]string{
			"ACLAddress":           aclAddress,
			"InputVerifierAddress": "0x901F8942346f7AB3a01F6D7613119Bca447Bb030",
			"KMSVerifierAddress":   "0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC",
		},
	}
}

// Set overrides the answer for method. A nil result removes the method.
func (n *FakeNode) Set(method string, result any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if result == nil {
		delete(n.results, method)
		return
	}
	n.results[method] = result
}

func (n *FakeNode) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	result, ok := n.results[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = result
	} else {
		resp["error"] = map[string]any{"code": -32601, "message": "the method " + req.Method + " does not exist"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// startServerE starts the fhevmkit server in-process, bound to rpcURL, with
// a Postgres key cache (error-returning variant for TestMain)
func startServerE(connString, rpcURL string) (*httptest.Server, *server.Server, *env.Capabilities, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Chain: config.ChainConfig{
			RPCURL:       rpcURL,
			ChainID:      31337,
			LocalClients: []string{"hardhat"},
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Select the environment; this runs the key cache migrations
	caps, err := env.Select(context.Background(), cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to select environment: %w", err)
	}

	srv, err := server.New(cfg, server.NewBuilder(cfg.Chain, caps, logger), logger)
	if err != nil {
		caps.Close()
		return nil, nil, nil, fmt.Errorf("failed to create server: %w", err)
	}

	return httptest.NewServer(srv.Handler()), srv, caps, nil
}

// newClient creates a new API client for the test server
func newClient() *client.Client {
	return client.New(testCtx.TestServer.URL)
}

// bindTo points the server at rpcURL and waits for a fresh build to settle.
// An unchanged configuration does not rebuild, so bindTo always refreshes.
func bindTo(t *testing.T, rpcURL string, chainID *int64) *client.State {
	t.Helper()
	c := newClient()
	enabled := true
	_, err := c.Configure(context.Background(), client.ConfigRequest{RPCURL: &rpcURL, ChainID: chainID, Enabled: &enabled})
	require.NoError(t, err)
	_, err = c.Refresh(context.Background())
	require.NoError(t, err)

	st, err := c.WaitState(context.Background(), 10*time.Second)
	require.NoError(t, err)
	return st
}

// restoreNode resets the fake node and rebinds the server to it
func restoreNode(t *testing.T) {
	t.Helper()
	testCtx.Node.Reset()
	id := int64(31337)
	st := bindTo(t, testCtx.Node.URL, &id)
	require.Equal(t, "ready", st.Status)
}
