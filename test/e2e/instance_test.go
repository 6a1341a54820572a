//go:build e2e

package e2e

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/fhevmkit/pkg/client"
)

func ptr[T any](v T) *T { return &v }

// TestInstance_StartsFromChainConfig tests that the server binds to RPC_URL on startup
func TestInstance_StartsFromChainConfig(t *testing.T) {
	restoreNode(t)

	st, err := newClient().State(context.Background())
	require.NoError(t, err)

	assert.True(t, st.Ready())
	assert.True(t, st.Enabled)
	assert.Equal(t, testCtx.Node.URL, st.Endpoint)
	require.NotNil(t, st.ChainID)
	assert.Equal(t, int64(31337), *st.ChainID)
	assert.Equal(t, "local", st.Instance.Path)
	assert.Equal(t, int64(31337), st.Instance.ChainID)
	assert.Equal(t, testCtx.Node.URL, st.Instance.RPCURL)
	assert.Equal(t, aclAddress, st.Instance.ACLAddress)
	assert.Zero(t, st.Instance.PublicKeyLength, "local test instances carry no key material")
	assert.Nil(t, st.Error)
}

// TestInstance_Lifecycle drives the binding through disable, enable and refresh
func TestInstance_Lifecycle(t *testing.T) {
	restoreNode(t)
	c := newClient()
	ctx := context.Background()

	t.Run("disable clears the instance", func(t *testing.T) {
		st, err := c.Configure(ctx, client.ConfigRequest{Enabled: ptr(false)})
		require.NoError(t, err)

		assert.Equal(t, "idle", st.Status)
		assert.False(t, st.Enabled)
		assert.Nil(t, st.Instance)
		assert.Equal(t, testCtx.Node.URL, st.Endpoint, "endpoint is kept while disabled")
	})

	t.Run("refresh while disabled stays idle", func(t *testing.T) {
		st, err := c.Refresh(ctx)
		require.NoError(t, err)
		assert.Equal(t, "idle", st.Status)
	})

	t.Run("enable rebuilds", func(t *testing.T) {
		_, err := c.Configure(ctx, client.ConfigRequest{Enabled: ptr(true)})
		require.NoError(t, err)

		st, err := c.WaitState(ctx, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, st.Ready())
	})

	t.Run("refresh rebuilds", func(t *testing.T) {
		_, err := c.Refresh(ctx)
		require.NoError(t, err)

		st, err := c.WaitState(ctx, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, st.Ready())
		assert.Equal(t, "local", st.Instance.Path)
	})

	t.Run("clearing the endpoint goes idle", func(t *testing.T) {
		st, err := c.Configure(ctx, client.ConfigRequest{RPCURL: ptr("")})
		require.NoError(t, err)

		assert.Equal(t, "idle", st.Status)
		assert.Empty(t, st.Endpoint)
		assert.Nil(t, st.Instance)
	})
}

// TestInstance_BuildErrors tests the error codes reported for broken nodes
func TestInstance_BuildErrors(t *testing.T) {
	t.Cleanup(func() { restoreNode(t) })

	tests := []struct {
		name  string
		setup func(n *FakeNode)
		code  string
	}{
		{
			name:  "production chain needs a browser",
			setup: func(n *FakeNode) { n.Set("eth_chainId", "0xaa36a7") },
			code:  "UNSUPPORTED_ENVIRONMENT",
		},
		{
			name:  "client version unavailable",
			setup: func(n *FakeNode) { n.Set("web3_clientVersion", nil) },
			code:  "WEB3_CLIENTVERSION_ERROR",
		},
		{
			name:  "no relayer metadata falls back to production",
			setup: func(n *FakeNode) { n.Set("fhevm_relayer_metadata", nil) },
			code:  "UNSUPPORTED_ENVIRONMENT",
		},
		{
			name:  "chain id unavailable",
			setup: func(n *FakeNode) { n.Set("eth_chainId", nil) },
			code:  "CHAIN_RESOLUTION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testCtx.Node.Reset()
			tt.setup(testCtx.Node)

			_, err := newClient().Refresh(context.Background())
			require.NoError(t, err)

			st, err := newClient().WaitState(context.Background(), 10*time.Second)
			require.NoError(t, err)

			assert.Equal(t, "error", st.Status)
			assert.Nil(t, st.Instance)
			require.NotNil(t, st.Error)
			assert.Equal(t, tt.code, st.Error.Code)
			assert.NotEmpty(t, st.Error.Message)
		})
	}
}

// TestInstance_UnreachableNode tests binding to a node that has gone away
func TestInstance_UnreachableNode(t *testing.T) {
	t.Cleanup(func() { restoreNode(t) })

	gone := httptest.NewServer(nil)
	url := gone.URL
	gone.Close()

	st := bindTo(t, url, nil)
	assert.Equal(t, "error", st.Status)
	require.NotNil(t, st.Error)
	assert.Equal(t, "CHAIN_RESOLUTION_ERROR", st.Error.Code)
}

// TestInstance_SwitchEndpoint tests that a new endpoint supersedes the old one
func TestInstance_SwitchEndpoint(t *testing.T) {
	t.Cleanup(func() { restoreNode(t) })

	other := NewFakeNode()
	defer other.Close()

	st := bindTo(t, other.URL, nil)
	require.True(t, st.Ready())
	assert.Equal(t, other.URL, st.Instance.RPCURL)
	assert.Equal(t, other.URL, st.Endpoint)
}

// TestInstance_ChainIDMismatchIsAdvisory tests that an unexpected chain id still builds
func TestInstance_ChainIDMismatchIsAdvisory(t *testing.T) {
	t.Cleanup(func() { restoreNode(t) })
	testCtx.Node.Reset()

	st := bindTo(t, testCtx.Node.URL, ptr(int64(1337)))
	require.True(t, st.Ready())
	assert.Equal(t, int64(31337), st.Instance.ChainID)
	assert.Equal(t, int64(1337), *st.ChainID)
}

// TestInstance_ConfigValidation tests that invalid configurations are rejected
func TestInstance_ConfigValidation(t *testing.T) {
	restoreNode(t)
	c := newClient()

	tests := []struct {
		name string
		req  client.ConfigRequest
	}{
		{"url without scheme", client.ConfigRequest{RPCURL: ptr("localhost:8545")}},
		{"zero chain id", client.ConfigRequest{ChainID: ptr(int64(0))}},
		{"negative chain id", client.ConfigRequest{ChainID: ptr(int64(-5))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Configure(context.Background(), tt.req)
			require.Error(t, err)

			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr), "expected APIError, got %T", err)
			assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
		})
	}

	// A rejected configuration leaves the binding untouched
	st, err := c.State(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ready())
}
