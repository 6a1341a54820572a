package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/fhevmkit/internal/binding"
	"github.com/pendergraft/fhevmkit/internal/chains"
	"github.com/pendergraft/fhevmkit/internal/validation"
)

// maxWait caps the ?wait= long poll on GET.
const maxWait = 60 * time.Second

// Binding is the part of *binding.Binding the handler drives.
type Binding interface {
	State() binding.State
	Config() binding.Config
	Update(cfg binding.Config)
	Refresh()
	Watch(ctx context.Context) <-chan binding.State
}

// Handler handles HTTP requests for the bound instance.
type Handler struct {
	binding Binding
}

// NewHandler creates a new instance HTTP handler.
func NewHandler(b Binding) *Handler {
	return &Handler{binding: b}
}

// RegisterRoutes registers all instance routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	h.RegisterReadRoutes(r)
	h.RegisterWriteRoutes(r)
}

// RegisterReadRoutes registers read-only instance routes.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleGet)
}

// RegisterWriteRoutes registers routes that restart builds.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/refresh", h.handleRefresh)
	r.Put("/config", h.handleConfig)
}

// handleGet returns the binding state. With ?wait=<duration> it blocks until
// the binding leaves loading or the duration elapses.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "wait must be a duration such as 5s")
			return
		}
		if wait > maxWait {
			wait = maxWait
		}
		h.waitSettled(r.Context(), wait)
	}

	writeJSON(w, http.StatusOK, toStateResponse(h.binding.State(), h.binding.Config()))
}

func (h *Handler) waitSettled(ctx context.Context, wait time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	for st := range h.binding.Watch(ctx) {
		if st.Status != binding.StatusLoading {
			return
		}
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	h.binding.Refresh()
	writeJSON(w, http.StatusAccepted, toStateResponse(h.binding.State(), h.binding.Config()))
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	var req ConfigRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	cfg := h.binding.Config()
	if req.RPCURL != nil {
		if *req.RPCURL == "" {
			cfg.Endpoint = chains.Endpoint{}
		} else {
			if err := validation.ValidateRPCURL(*req.RPCURL); err != nil {
				writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			cfg.Endpoint = chains.URLEndpoint(*req.RPCURL)
		}
	}
	if req.ChainID != nil {
		if err := validation.ValidateChainID(*req.ChainID); err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		id := *req.ChainID
		cfg.ChainID = &id
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}

	h.binding.Update(cfg)
	writeJSON(w, http.StatusAccepted, toStateResponse(h.binding.State(), h.binding.Config()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
