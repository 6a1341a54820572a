// Package transport provides HTTP request/response types for the instance binding.
package transport

import (
	"github.com/pendergraft/fhevmkit/internal/binding"
	"github.com/pendergraft/fhevmkit/internal/instances/domain"
	"github.com/pendergraft/fhevmkit/internal/localtest"
)

// ConfigRequest is the HTTP request body for changing the bound endpoint.
// Omitted fields keep their current value.
type ConfigRequest struct {
	RPCURL  *string `json:"rpcUrl,omitempty"`
	ChainID *int64  `json:"chainId,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// StateResponse is the HTTP response for the binding state.
type StateResponse struct {
	Status   string        `json:"status"`
	Enabled  bool          `json:"enabled"`
	Endpoint string        `json:"endpoint,omitempty"`
	ChainID  *int64        `json:"chainId,omitempty"`
	Instance *InstanceInfo `json:"instance,omitempty"`
	Error    *ErrorInfo    `json:"error,omitempty"`
}

// InstanceInfo describes a ready instance without exposing it.
type InstanceInfo struct {
	Path            string `json:"path"`
	ChainID         int64  `json:"chainId,omitempty"`
	RPCURL          string `json:"rpcUrl,omitempty"`
	ACLAddress      string `json:"aclAddress,omitempty"`
	PublicKeyLength int    `json:"publicKeyLength"`
}

// ErrorInfo is a build failure.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toStateResponse converts binding state to an HTTP response.
func toStateResponse(st binding.State, cfg binding.Config) StateResponse {
	resp := StateResponse{
		Status:  string(st.Status),
		Enabled: cfg.Enabled,
		ChainID: cfg.ChainID,
	}
	if !cfg.Endpoint.IsZero() {
		resp.Endpoint = cfg.Endpoint.String()
	}
	if st.Err != nil {
		resp.Error = &ErrorInfo{Code: domain.Code(st.Err), Message: st.Err.Error()}
	}
	if st.Instance != nil {
		info := &InstanceInfo{
			Path:            string(domain.PathOf(st.Instance)),
			PublicKeyLength: len(st.Instance.PublicKey()),
		}
		if local, ok := st.Instance.(*localtest.Instance); ok {
			info.ChainID = local.ChainID()
			info.RPCURL = local.RPCURL()
			info.ACLAddress = local.Metadata().ACLAddress
		}
		resp.Instance = info
	}
	return resp
}
