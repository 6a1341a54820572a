package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const aclAddress = "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D"

// isolate runs the test in an empty directory with an empty home and no
// fhevmkit environment variables.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "home"))
	for _, name := range []string{"FHEVMKIT_SERVER", "RPC_URL", "CHAIN_ID", "MOCK_CHAINS", "LOCAL_CLIENTS", "KEY_CACHE_TYPE", "DATABASE_URL", "STRICT_RELAYER_METADATA"} {
		t.Setenv(name, "")
	}
	server, rpcURL, cfgFile, verbose = "", "", "", false
	return dir
}

// run executes the CLI with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// fakeNode is a minimal JSON-RPC node answering from results
func fakeNode(t *testing.T, results map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "the method " + req.Method + " does not exist"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hardhatNode(t *testing.T) *httptest.Server {
	return fakeNode(t, map[string]any{
		"eth_chainId":        "0x7a69",
		"web3_clientVersion": "HardhatNetwork/2.22.3/@fhevm/hardhat-plugin/0.1.0",
		"fhevm_relayer_metadata": map[string]string{
			"ACLAddress":           aclAddress,
			"InputVerifierAddress": "0x901F8942346f7AB3a01F6D7613119Bca447Bb030",
			"KMSVerifierAddress":   "0x1364cBBf2cDF5032C47d8226a6f6FBD2AFCDacAC",
		},
	})
}

func TestGetServer(t *testing.T) {
	dir := isolate(t)

	t.Run("default when nothing set", func(t *testing.T) {
		assert.Equal(t, "http://localhost:8080", getServer())
	})

	t.Run("global config", func(t *testing.T) {
		home := filepath.Join(dir, "home", ".fhevmkit")
		require.NoError(t, os.MkdirAll(home, 0755))
		data, err := yaml.Marshal(GlobalConfig{Server: "http://global:8080"})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), data, 0644))
		assert.Equal(t, "http://global:8080", getServer())
	})

	t.Run("project config beats global config", func(t *testing.T) {
		require.NoError(t, os.WriteFile("fhevmkit.toml", []byte(`server = "http://project:8080"`), 0644))
		assert.Equal(t, "http://project:8080", getServer())
	})

	t.Run("env var beats config", func(t *testing.T) {
		t.Setenv("FHEVMKIT_SERVER", "http://env:8080")
		assert.Equal(t, "http://env:8080", getServer())
	})

	t.Run("flag takes precedence", func(t *testing.T) {
		t.Setenv("FHEVMKIT_SERVER", "http://env:8080")
		server = "http://flag:8080"
		defer func() { server = "" }()
		assert.Equal(t, "http://flag:8080", getServer())
	})
}

func TestGetRPCURL(t *testing.T) {
	isolate(t)

	assert.Equal(t, "http://localhost:8545", getRPCURL())

	require.NoError(t, os.WriteFile("fhevm.toml", []byte(`rpc_url = "http://project:8545"`), 0644))
	assert.Equal(t, "http://project:8545", getRPCURL())

	t.Setenv("RPC_URL", "http://env:8545")
	assert.Equal(t, "http://env:8545", getRPCURL())

	rpcURL = "http://flag:8545"
	defer func() { rpcURL = "" }()
	assert.Equal(t, "http://flag:8545", getRPCURL())
}

func TestGetMockChains(t *testing.T) {
	isolate(t)

	require.NoError(t, os.WriteFile("fhevmkit.toml", []byte(`
[mock_chains]
1337 = "http://project:8545"
9000 = "http://devnet:8545"
`), 0644))
	t.Setenv("MOCK_CHAINS", "9000=http://env-devnet:8545")

	mock, err := getMockChains()
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{
		1337: "http://project:8545",
		9000: "http://env-devnet:8545",
	}, mock)
}

func TestGetMockChainsInvalid(t *testing.T) {
	isolate(t)

	require.NoError(t, os.WriteFile("fhevmkit.toml", []byte(`
[mock_chains]
devnet = "http://devnet:8545"
`), 0644))
	_, err := getMockChains()
	assert.ErrorContains(t, err, "[mock_chains]")

	require.NoError(t, os.Remove("fhevmkit.toml"))
	t.Setenv("MOCK_CHAINS", "nonsense")
	_, err = getMockChains()
	assert.ErrorContains(t, err, "MOCK_CHAINS")
}

func TestConfigInit(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "init", "--chain-rpc", "http://devnet:8545")
	require.NoError(t, err)
	assert.Contains(t, out, "Created fhevmkit.toml")

	cfg, path, err := loadProjectConfig()
	require.NoError(t, err)
	assert.Equal(t, "fhevmkit.toml", path)
	assert.Equal(t, "http://devnet:8545", cfg.RPCURL)
	assert.Equal(t, "http://localhost:8080", cfg.Server)
	assert.Equal(t, []string{"hardhat"}, cfg.LocalClients)

	_, err = run(t, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("fhevmkit.toml", []byte(`
rpc_url = "http://project:8545"
chain_id = 31337
`), 0644))

	out, err := run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded from: fhevmkit.toml")
	assert.Contains(t, out, "chain_id: 31337")
	assert.Contains(t, out, "RPC URL: http://project:8545")
}

func TestLoadProjectConfigFromFlag(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server = "http://custom:8080"`), 0644))

	out, err := run(t, "--config", path, "info", "--json")
	require.NoError(t, err)

	var info toolInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "http://custom:8080", info.Server)
}

func TestInfo(t *testing.T) {
	isolate(t)
	t.Setenv("MOCK_CHAINS", "1337=http://devnet:8545")

	out, err := run(t, "info", "--json")
	require.NoError(t, err)

	var info toolInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, "node", info.Environment)
	assert.Equal(t, "memory", info.KeyCache)
	assert.Equal(t, "1337=http://devnet:8545,31337=http://localhost:8545", info.MockChains)
	assert.Equal(t, "hardhat", info.LocalClients)
}

func TestCacheCommands(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KEY_CACHE_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "cache.db"))

	_, err := run(t, "cache", "set", "fhevm:publicKey:"+aclAddress, "pk-bytes")
	require.NoError(t, err)
	_, err = run(t, "cache", "set", "fhevm:publicParams:"+aclAddress, "params")
	require.NoError(t, err)

	out, err := run(t, "cache", "get", "fhevm:publicKey:"+aclAddress)
	require.NoError(t, err)
	assert.Equal(t, "pk-bytes\n", out)

	out, err = run(t, "cache", "keys", "fhevm:")
	require.NoError(t, err)
	assert.Equal(t, "fhevm:publicKey:"+aclAddress+"\nfhevm:publicParams:"+aclAddress+"\n", out)

	out, err = run(t, "cache", "show", aclAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "Public key:    8 bytes")
	assert.Contains(t, out, "Public params: 6 bytes")

	_, err = run(t, "cache", "forget", aclAddress)
	require.NoError(t, err)

	out, err = run(t, "cache", "show", aclAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "No key material cached")

	_, err = run(t, "cache", "get", "fhevm:publicKey:"+aclAddress)
	assert.ErrorContains(t, err, "key not found")
}

func TestCacheRemove(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KEY_CACHE_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "cache.db"))

	_, err := run(t, "cache", "set", "k", "v")
	require.NoError(t, err)
	_, err = run(t, "cache", "remove", "k")
	require.NoError(t, err)

	out, err := run(t, "cache", "keys")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCacheRejectsInvalidAddress(t *testing.T) {
	isolate(t)

	_, err := run(t, "cache", "forget", "not-an-address")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	isolate(t)
	node := hardhatNode(t)

	out, err := run(t, "resolve", "--rpc-url", node.URL, "--json")
	require.NoError(t, err)

	var cc struct {
		ChainID     int64  `json:"chainId"`
		IsLocalTest bool   `json:"isLocalTest"`
		RPCURL      string `json:"rpcUrl"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cc))
	assert.Equal(t, int64(31337), cc.ChainID)
	assert.True(t, cc.IsLocalTest)
	assert.Equal(t, node.URL, cc.RPCURL)
}

func TestResolveThroughProvider(t *testing.T) {
	isolate(t)
	node := fakeNode(t, map[string]any{"eth_chainId": "0x539"})
	t.Setenv("MOCK_CHAINS", "1337=http://devnet:8545")

	out, err := run(t, "resolve", "--rpc-url", node.URL, "--provider", "--json")
	require.NoError(t, err)

	var cc struct {
		ChainID     int64  `json:"chainId"`
		IsLocalTest bool   `json:"isLocalTest"`
		RPCURL      string `json:"rpcUrl"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &cc))
	assert.Equal(t, int64(1337), cc.ChainID)
	assert.True(t, cc.IsLocalTest)
	assert.Equal(t, "http://devnet:8545", cc.RPCURL, "providers take the table URL")
}

func TestResolveRejectsInvalidURL(t *testing.T) {
	isolate(t)

	_, err := run(t, "resolve", "--rpc-url", "localhost:8545")
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	isolate(t)
	node := hardhatNode(t)

	out, err := run(t, "probe", "--rpc-url", node.URL, "--json")
	require.NoError(t, err)

	var report probeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "HardhatNetwork", report.Client)
	assert.Equal(t, "v2.22.3", report.Version)
	assert.Equal(t, int64(31337), report.ChainID)
	assert.True(t, report.LocalTestClient)
	require.NotNil(t, report.Metadata)
	assert.Equal(t, aclAddress, report.Metadata.ACLAddress)
	assert.Empty(t, report.MetadataError)
}

func TestProbeNonLocalNode(t *testing.T) {
	isolate(t)
	node := fakeNode(t, map[string]any{
		"eth_chainId":        "0xaa36a7",
		"web3_clientVersion": "Geth/v1.14.0-stable/linux-amd64/go1.22.2",
	})

	out, err := run(t, "probe", "--rpc-url", node.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Chain ID: 11155111")
	assert.Contains(t, out, "Local test node: false")
	assert.NotContains(t, out, "Relayer metadata")
}

func TestBuildLocal(t *testing.T) {
	isolate(t)
	node := hardhatNode(t)

	out, err := run(t, "build", "--rpc-url", node.URL, "--chain-id", "31337", "--json")
	require.NoError(t, err)

	var summary instanceSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "local", summary.Path)
	assert.Equal(t, int64(31337), summary.ChainID)
	assert.Equal(t, node.URL, summary.RPCURL)
	assert.Equal(t, aclAddress, summary.ACLAddress)
}

func TestBuildProductionNeedsBrowser(t *testing.T) {
	isolate(t)
	node := fakeNode(t, map[string]any{"eth_chainId": "0xaa36a7"})

	_, err := run(t, "build", "--rpc-url", node.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UNSUPPORTED_ENVIRONMENT")
}

func TestBuildRejectsInvalidChainID(t *testing.T) {
	isolate(t)
	node := hardhatNode(t)

	_, err := run(t, "build", "--rpc-url", node.URL, "--chain-id=0")
	assert.Error(t, err)
}

func TestWatchOnce(t *testing.T) {
	isolate(t)
	node := hardhatNode(t)

	out, err := run(t, "watch", "--rpc-url", node.URL, "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "ready  path=local chainId=31337")
}

func TestWatchOnceReportsError(t *testing.T) {
	isolate(t)
	node := fakeNode(t, map[string]any{"eth_chainId": "0xaa36a7"})

	out, err := run(t, "watch", "--rpc-url", node.URL, "--once")
	require.Error(t, err)
	assert.Contains(t, out, "[UNSUPPORTED_ENVIRONMENT]")
}

// fakeServer answers the instance API with a fixed state
func fakeServer(t *testing.T, state map[string]any) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(state)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestStatus(t *testing.T) {
	isolate(t)
	srv, _ := fakeServer(t, map[string]any{
		"status":   "ready",
		"enabled":  true,
		"endpoint": "http://localhost:8545",
		"chainId":  31337,
		"instance": map[string]any{"path": "local", "aclAddress": aclAddress},
	})

	out, err := run(t, "status", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   ready")
	assert.Contains(t, out, "Chain ID: 31337")
	assert.Contains(t, out, "Instance: local")
	assert.Contains(t, out, "ACL:      "+aclAddress)
}

func TestStatusShowsBuildError(t *testing.T) {
	isolate(t)
	srv, _ := fakeServer(t, map[string]any{
		"status":  "error",
		"enabled": true,
		"error":   map[string]string{"code": "WEB3_CLIENTVERSION_ERROR", "message": "node down"},
	})

	out, err := run(t, "status", "--server", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Error:    [WEB3_CLIENTVERSION_ERROR] node down")
}

func TestRefresh(t *testing.T) {
	isolate(t)
	srv, calls := fakeServer(t, map[string]any{"status": "ready", "enabled": true})

	_, err := run(t, "refresh", "--server", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"POST /api/v1/instance/refresh"}, *calls)
}

func TestBind(t *testing.T) {
	isolate(t)
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "ready", "enabled": true})
	}))
	defer srv.Close()

	_, err := run(t, "bind", "--server", srv.URL, "--rpc-url", "http://devnet:8545", "--chain-id", "9000")
	require.NoError(t, err)
	assert.Equal(t, "http://devnet:8545", got["rpcUrl"])
	assert.Equal(t, float64(9000), got["chainId"])
	assert.Equal(t, true, got["enabled"])

	got = nil
	_, err = run(t, "bind", "--server", srv.URL, "--disable")
	require.NoError(t, err)
	assert.Equal(t, false, got["enabled"])
	assert.NotContains(t, got, "rpcUrl")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "ready", statusLabel("ready", false))
	assert.Equal(t, "✅ ready", statusLabel("ready", true))
	assert.Equal(t, "❌ error", statusLabel("error", true))
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
