package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/knife-inventory/internal/amp"
	"github.com/eugenenazirov/knife-inventory/internal/inventory"
	"github.com/eugenenazirov/knife-inventory/internal/knife"
	"github.com/eugenenazirov/knife-inventory/internal/solver"
	"github.com/eugenenazirov/knife-inventory/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubResolver stores a canned inventory or fails with err.
type stubResolver struct {
	store storage.Storage
	err   error
	now   func() time.Time
}

func (s *stubResolver) Resolve(_ context.Context, name string) (storage.Inventory, error) {
	if s.err != nil {
		return storage.Inventory{}, s.err
	}
	if name == "" {
		return storage.Inventory{}, inventory.ErrInvalidAppliance
	}
	inv := storage.Inventory{
		Appliance: name,
		Version:   "5",
		Cookbooks: solver.Cookbooks{
			Owned:      []solver.Cookbook{{Name: "spade_mongodb", Version: "0.10.3"}},
			ThirdParty: []solver.Cookbook{{Name: "apt", Version: "2.9.2"}},
		},
		ResolvedAt: s.now(),
	}
	return inv, s.store.Put(inv)
}

func testSettings() knife.ClientSettings {
	return knife.ClientSettings{
		BaseDir:               "/srv/chef",
		NodeName:              "paas-ci",
		LogLocation:           knife.LogStdout,
		ClientKey:             "/srv/chef/.chef/pem/paas-ci.pem",
		ValidationClientName:  "chef-validator",
		ValidationKey:         "/srv/chef/.chef/pem/validation.pem",
		ChefServerURL:         "https://paas-chef.mia.ucloud.int/",
		SSLVerifyMode:         knife.VerifyNone,
		CookbookPath:          []string{"/srv/chef/cookbooks"},
		DataBagEncryptVersion: 2,
	}
}

func setupTestRouter(t *testing.T, resolveErr error) (http.Handler, *controllableClock) {
	t.Helper()

	store := storage.NewMemoryStorage()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	resolver := &stubResolver{store: store, err: resolveErr, now: clock.Now}

	handler := NewHandler(resolver, store, testSettings(), WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))

	return router, clock
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request ID, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request ID header")
	}
}

func TestSettingsEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/api/settings")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body knife.ClientSettings
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.NodeName != "paas-ci" || body.SSLVerifyMode != knife.VerifyNone {
		t.Fatalf("unexpected settings: %+v", body)
	}
	if len(body.CookbookPath) != 1 || body.CookbookPath[0] != "/srv/chef/cookbooks" {
		t.Fatalf("unexpected cookbook path: %v", body.CookbookPath)
	}
}

func TestListAppliancesInitiallyEmpty(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/api/appliances")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Appliances []storage.Inventory `json:"appliances"`
		Count      int                 `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 0 || len(body.Appliances) != 0 {
		t.Fatalf("expected no appliances, got %+v", body)
	}
}

func TestGetUnknownApplianceReturnsNotFound(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/api/appliances/mongo")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Suggestion == "" {
		t.Fatalf("expected suggestion in error response")
	}
}

func TestResolveStoresInventory(t *testing.T) {
	router, clock := setupTestRouter(t, nil)
	clock.Advance(time.Hour)

	rec := serve(router, http.MethodPost, "/api/appliances/mongo/resolve")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resolved struct {
		Appliance        string           `json:"appliance"`
		Cookbooks        solver.Cookbooks `json:"cookbooks"`
		ResolvedAt       time.Time        `json:"resolvedAt"`
		ResolutionTimeMs *int64           `json:"resolutionTimeMs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resolved); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resolved.Appliance != "mongo" || len(resolved.Cookbooks.Owned) != 1 {
		t.Fatalf("unexpected inventory: %+v", resolved)
	}
	if !resolved.ResolvedAt.Equal(clock.Now()) {
		t.Fatalf("expected resolvedAt %s, got %s", clock.Now(), resolved.ResolvedAt)
	}
	if resolved.ResolutionTimeMs == nil {
		t.Fatalf("expected resolution time in response")
	}

	rec = serve(router, http.MethodGet, "/api/appliances/mongo")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected stored inventory, got %d", rec.Code)
	}

	rec = serve(router, http.MethodGet, "/appliances")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 from legacy endpoint, got %d", rec.Code)
	}
	var legacy map[string]map[string][]solver.Cookbook
	if err := json.NewDecoder(rec.Body).Decode(&legacy); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	mongo := legacy["mongo"]
	if got := mongo["third_party"]; len(got) != 1 || got[0].Name != "apt" {
		t.Fatalf("unexpected legacy payload: %+v", legacy)
	}
	if got := mongo["ucloud"]; len(got) != 1 || got[0].Name != "spade_mongodb" {
		t.Fatalf("expected owned cookbooks under ucloud, got %+v", legacy)
	}
	if _, ok := mongo["owned"]; ok {
		t.Fatalf("legacy payload must not carry an owned key: %+v", legacy)
	}
}

func TestLegacyAppliancesUsesOriginalKeys(t *testing.T) {
	store := storage.NewMemoryStorage()
	err := store.Put(storage.Inventory{
		Appliance: "mongo",
		Cookbooks: solver.Cookbooks{
			Owned:      []solver.Cookbook{{Name: "uc_x", Version: "1"}},
			ThirdParty: []solver.Cookbook{},
		},
		ResolvedAt: time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	handler := NewHandler(&stubResolver{store: store, now: time.Now}, store, testSettings())
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false), WithRateLimit(0, 0))

	rec := serve(router, http.MethodGet, "/appliances")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	entry, ok := raw["mongo"]
	if !ok {
		t.Fatalf("expected mongo entry, got %s", rec.Body.String())
	}
	if len(entry) != 2 {
		t.Fatalf("expected exactly ucloud and third_party keys, got %s", rec.Body.String())
	}
	if got := string(entry["ucloud"]); got != `[{"name":"uc_x","version":"1"}]` {
		t.Fatalf("unexpected ucloud value %s", got)
	}
	if got := string(entry["third_party"]); got != `[]` {
		t.Fatalf("unexpected third_party value %s", got)
	}

	rec = serve(router, http.MethodGet, "/api/appliances/mongo")
	var inv map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	var cookbooks map[string]json.RawMessage
	if err := json.Unmarshal(inv["cookbooks"], &cookbooks); err != nil {
		t.Fatalf("failed to decode cookbooks: %v", err)
	}
	if _, ok := cookbooks["owned"]; !ok {
		t.Fatalf("expected owned key on API route, got %s", rec.Body.String())
	}
}

func TestResolveErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid appliance", err: inventory.ErrInvalidAppliance, status: http.StatusBadRequest},
		{name: "unknown appliance", err: fmt.Errorf("get appliance x: %w", &amp.StatusError{StatusCode: http.StatusNotFound}), status: http.StatusNotFound},
		{name: "unparsable command", err: fmt.Errorf("step web: %w", inventory.ErrUnparsableCommand), status: http.StatusUnprocessableEntity},
		{name: "timeout", err: fmt.Errorf("knife solve timed out: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "malformed output", err: fmt.Errorf("knife: %w", solver.ErrMalformedOutput), status: http.StatusBadGateway},
		{name: "upstream failure", err: errors.New("exit status 1"), status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestRouter(t, tt.err)

			rec := serve(router, http.MethodPost, "/api/appliances/mongo/resolve")
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}

			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error == "" || body.Details == "" {
				t.Fatalf("expected error and details, got %+v", body)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rec := serve(router, http.MethodOptions, "/api/appliances/mongo/resolve")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	rec := serve(router, http.MethodDelete, "/api/appliances/mongo")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}
