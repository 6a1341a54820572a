package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_State(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/instance" {
			t.Errorf("Expected path /api/v1/instance, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ready",
			"enabled":  true,
			"endpoint": "http://localhost:8545",
			"chainId":  31337,
			"instance": map[string]any{
				"path":       "local",
				"chainId":    31337,
				"aclAddress": "0x50157CFfD6bBFA2DECe204a89ec419c23ef5755D",
			},
		})
	}))
	defer server.Close()

	client := New(server.URL)
	st, err := client.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}

	if !st.Ready() {
		t.Errorf("State().Ready() = false, want true")
	}
	if st.ChainID == nil || *st.ChainID != 31337 {
		t.Errorf("State().ChainID = %v, want 31337", st.ChainID)
	}
	if st.Instance.Path != "local" {
		t.Errorf("State().Instance.Path = %s, want local", st.Instance.Path)
	}
}

func TestClient_StateWithBuildError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "error",
			"enabled": true,
			"error": map[string]string{
				"code":    "NETWORK_UNREACHABLE",
				"message": "network unreachable",
			},
		})
	}))
	defer server.Close()

	st, err := New(server.URL).State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if st.Ready() {
		t.Errorf("State().Ready() = true, want false")
	}
	if st.Error == nil || st.Error.Code != "NETWORK_UNREACHABLE" {
		t.Errorf("State().Error = %v, want NETWORK_UNREACHABLE", st.Error)
	}
}

func TestClient_WaitState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("wait"); got != "5s" {
			t.Errorf("Expected wait=5s, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "idle"})
	}))
	defer server.Close()

	st, err := New(server.URL).WaitState(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("WaitState() error = %v", err)
	}
	if st.Status != "idle" {
		t.Errorf("WaitState().Status = %s, want idle", st.Status)
	}
}

func TestClient_Refresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/instance/refresh" {
			t.Errorf("Expected path /api/v1/instance/refresh, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"status": "loading", "enabled": true})
	}))
	defer server.Close()

	st, err := New(server.URL).Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if st.Status != "loading" {
		t.Errorf("Refresh().Status = %s, want loading", st.Status)
	}
}

func TestClient_Configure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("Expected PUT method, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", ct)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if req["rpcUrl"] != "http://localhost:8545" {
			t.Errorf("Expected rpcUrl http://localhost:8545, got %v", req["rpcUrl"])
		}
		if _, ok := req["chainId"]; ok {
			t.Errorf("Expected chainId to be omitted")
		}

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"status": "loading", "enabled": true, "endpoint": req["rpcUrl"]})
	}))
	defer server.Close()

	url := "http://localhost:8545"
	enabled := true
	st, err := New(server.URL).Configure(context.Background(), ConfigRequest{RPCURL: &url, Enabled: &enabled})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	if st.Endpoint != url {
		t.Errorf("Configure().Endpoint = %s, want %s", st.Endpoint, url)
	}
}

func TestClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readyz" {
			t.Errorf("Expected path /readyz, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "instance": "idle"})
	}))
	defer server.Close()

	h, err := New(server.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "ok" || h.Instance != "idle" {
		t.Errorf("Health() = %+v", h)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "RATE_LIMIT_EXCEEDED",
				"message": "Too many rebuild requests. Please try again later.",
			},
		})
	}))
	defer server.Close()

	_, err := New(server.URL).Refresh(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("APIError.Code = %s, want RATE_LIMIT_EXCEEDED", apiErr.Code)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).State(context.Background())
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("Expected plain error, got APIError %v", apiErr)
	}
}

func TestClient_WithHTTPClient(t *testing.T) {
	custom := &http.Client{Timeout: time.Second}
	c := New("http://localhost", WithHTTPClient(custom))
	if c.httpClient != custom {
		t.Error("WithHTTPClient did not set the client")
	}
}
