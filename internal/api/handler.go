package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/eugenenazirov/knife-inventory/internal/amp"
	"github.com/eugenenazirov/knife-inventory/internal/inventory"
	"github.com/eugenenazirov/knife-inventory/internal/knife"
	"github.com/eugenenazirov/knife-inventory/internal/solver"
	"github.com/eugenenazirov/knife-inventory/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// Resolver resolves an appliance into its cookbook inventory.
type Resolver interface {
	Resolve(ctx context.Context, appliance string) (storage.Inventory, error)
}

// Handler wires the resolver, storage and knife settings into HTTP handlers.
type Handler struct {
	resolver Resolver
	storage  storage.Storage
	settings knife.ClientSettings

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(resolver Resolver, store storage.Storage, settings knife.ClientSettings, opts ...HandlerOption) *Handler {
	h := &Handler{
		resolver: resolver,
		storage:  store,
		settings: settings.Clone(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, h.settings.Clone())
}

func (h *Handler) handleListAppliances(w http.ResponseWriter, r *http.Request) {
	_ = r
	inventories, err := h.storage.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliancesResponse{Appliances: inventories, Count: len(inventories)})
}

func (h *Handler) handleGetAppliance(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	inv, err := h.storage.Get(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Appliance not resolved", err.Error(),
				"POST /api/appliances/"+name+"/resolve to resolve it")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) handleResolveAppliance(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))

	start := time.Now()
	inv, err := h.resolver.Resolve(r.Context(), name)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrInvalidAppliance):
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		case errors.Is(err, amp.ErrNotFound):
			writeError(w, http.StatusNotFound, "Unknown appliance or package", err.Error())
		case errors.Is(err, inventory.ErrUnparsableCommand):
			writeError(w, http.StatusUnprocessableEntity, "Cannot resolve appliance", err.Error(),
				"Package commands must contain '-o role[<role>] -E <environment>'")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "Resolution timed out", err.Error())
		case errors.Is(err, solver.ErrMalformedOutput):
			writeError(w, http.StatusBadGateway, "Unexpected knife output", err.Error())
		default:
			writeError(w, http.StatusBadGateway, "Resolution failed", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		Inventory:        inv,
		ResolutionTimeMs: elapsed.Milliseconds(),
	})
}

// handleLegacyAppliances serves the appliance name to cookbooks map.
func (h *Handler) handleLegacyAppliances(w http.ResponseWriter, r *http.Request) {
	_ = r
	inventories, err := h.storage.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	out := make(map[string]legacyCookbooks, len(inventories))
	for _, inv := range inventories {
		out[inv.Appliance] = legacyCookbooks{
			UCloud:     inv.Cookbooks.Owned,
			ThirdParty: inv.Cookbooks.ThirdParty,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type appliancesResponse struct {
	Appliances []storage.Inventory `json:"appliances"`
	Count      int                 `json:"count"`
}

type resolveResponse struct {
	storage.Inventory
	ResolutionTimeMs int64 `json:"resolutionTimeMs"`
}

// legacyCookbooks keeps the field names of the original /appliances payload.
type legacyCookbooks struct {
	UCloud     []solver.Cookbook `json:"ucloud"`
	ThirdParty []solver.Cookbook `json:"third_party"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
