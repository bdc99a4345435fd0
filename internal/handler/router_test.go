package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"portal-api/internal/auth"
	"portal-api/internal/cache"
	"portal-api/internal/config"
	"portal-api/internal/events"
	"portal-api/internal/geomap"
	"portal-api/internal/service"
	"portal-api/internal/store"
	"portal-api/internal/threatintel"
	"portal-api/internal/util"
)

const testWebhookToken = "webhook-secret"

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	cfg := &config.Config{}
	cfg.Server.CORSOrigin = "*"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.SeedAdminEmail = "admin@example.test"
	cfg.Auth.SeedAdminPassword = "seed-password-1"
	cfg.CRM.WebhookToken = testWebhookToken
	cfg.ThreatIntel.CacheTTL = time.Minute

	if err := st.Seed(ctx, cfg); err != nil {
		t.Fatalf("seed: %v", err)
	}

	authService := auth.NewService(st, cache.NewMemoryRevocationCache(), cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	bookings := service.NewBookingService(st,
		events.NewCRMDelivery(cfg.CRM),
		events.NewNotifier(cfg.Notify),
		events.NewPublisher(cfg.Events))
	portal := service.NewPortalService(st)
	intel := threatintel.NewService(cfg.ThreatIntel, st)
	refresher := geomap.NewRefresher(intel)

	return NewRouter(Handlers{
		Auth:    NewAuthHandler(authService),
		Booking: NewBookingHandler(bookings, st, authService),
		Threat:  NewThreatHandler(intel, portal),
		Admin:   NewAdminHandler(portal, bookings, authService, refresher, cfg.CRM.WebhookToken),
	}, cfg, util.Get())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "admin@example.test",
		"password": "seed-password-1",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login response missing token")
	}
	return token
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" || body["service"] != "portal-api" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestBookingEndToEnd(t *testing.T) {
	h := newTestRouter(t)

	rec, before := doJSON(t, h, http.MethodGet, "/api/demo-slots", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list slots: %d", rec.Code)
	}
	beforeSlot := findSlot(t, before, "SLOT-001")
	bookedBefore := beforeSlot["booked"].(float64)
	availableBefore := beforeSlot["available"].(float64)

	rec, body := doJSON(t, h, http.MethodPost, "/api/demo-bookings", map[string]any{
		"slotId":    "SLOT-001",
		"fullName":  "Ada Lovelace",
		"email":     "ada@example.test",
		"company":   "Analytical Engines",
		"attendees": 2,
		"notes":     "Looking for MDR coverage.",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	data := body["data"].(map[string]any)
	id, _ := data["id"].(string)
	if !regexp.MustCompile(`^BOOK-\d{3}$`).MatchString(id) {
		t.Fatalf("booking id %q does not match BOOK-NNN", id)
	}
	integrations := body["integrations"].(map[string]any)
	if integrations["crm"] != events.StatusLoggedFallback {
		t.Fatalf("expected CRM log-fallback, got %v", integrations["crm"])
	}

	_, after := doJSON(t, h, http.MethodGet, "/api/demo-slots", nil, nil)
	afterSlot := findSlot(t, after, "SLOT-001")
	if afterSlot["booked"].(float64) != bookedBefore+1 {
		t.Fatalf("booked not incremented: %v -> %v", bookedBefore, afterSlot["booked"])
	}
	if afterSlot["available"].(float64) != availableBefore-1 {
		t.Fatalf("available not decremented: %v -> %v", availableBefore, afterSlot["available"])
	}
}

func findSlot(t *testing.T, body map[string]any, id string) map[string]any {
	t.Helper()
	for _, raw := range body["data"].([]any) {
		slot := raw.(map[string]any)
		if slot["id"] == id {
			return slot
		}
	}
	t.Fatalf("slot %s not in response", id)
	return nil
}

func TestBookingValidationListsEveryField(t *testing.T) {
	h := newTestRouter(t)

	rec, body := doJSON(t, h, http.MethodPost, "/api/demo-bookings", map[string]any{
		"slotId":    "x",
		"fullName":  "A",
		"email":     "not-an-email",
		"company":   "B",
		"attendees": 99,
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Validation failed" {
		t.Fatalf("unexpected error shape: %v", body)
	}

	details := body["details"].([]any)
	fields := make(map[string]bool)
	for _, raw := range details {
		d := raw.(map[string]any)
		fields[d["field"].(string)] = true
	}
	for _, want := range []string{"slotId", "fullName", "email", "company", "attendees"} {
		if !fields[want] {
			t.Fatalf("missing field %q in validation details: %v", want, fields)
		}
	}
}

func TestBookingUnknownSlot404(t *testing.T) {
	h := newTestRouter(t)
	rec, _ := doJSON(t, h, http.MethodPost, "/api/demo-bookings", map[string]any{
		"slotId": "SLOT-404", "fullName": "Ada Lovelace", "email": "ada@example.test",
		"company": "Analytical Engines", "attendees": 1,
	}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBookingFullSlot409(t *testing.T) {
	h := newTestRouter(t)
	book := func() *httptest.ResponseRecorder {
		rec, _ := doJSON(t, h, http.MethodPost, "/api/demo-bookings", map[string]any{
			"slotId": "SLOT-002", "fullName": "Ada Lovelace", "email": "ada@example.test",
			"company": "Analytical Engines", "attendees": 1,
		}, nil)
		return rec
	}
	for i := 0; i < 2; i++ {
		if rec := book(); rec.Code != http.StatusCreated {
			t.Fatalf("fill booking %d: %d", i, rec.Code)
		}
	}
	if rec := book(); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on full slot, got %d", rec.Code)
	}
}

func TestLoginWrongPassword401(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "admin@example.test", "password": "wrong-password",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["error"] != "Invalid credentials" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestAdminOverviewRequiresAuth(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := doJSON(t, h, http.MethodGet, "/api/admin/overview", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := login(t, h)
	rec, body := doJSON(t, h, http.MethodGet, "/api/admin/overview", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if len(data["slots"].([]any)) != 3 {
		t.Fatalf("expected 3 seeded slots in overview")
	}
	totals := data["totals"].(map[string]any)
	if totals["activeSessions"].(float64) < 1 {
		t.Fatalf("expected at least the login session in totals: %v", totals)
	}
}

func TestAuthMeReturnsCurrentUser(t *testing.T) {
	h := newTestRouter(t)
	token := login(t, h)

	rec, body := doJSON(t, h, http.MethodGet, "/api/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("me: %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if data["email"] != "admin@example.test" {
		t.Fatalf("unexpected email: %v", data["email"])
	}
	if data["admin"] != true {
		t.Fatalf("seed admin should report admin=true: %v", data)
	}
}

func TestThreatMapControl(t *testing.T) {
	h := newTestRouter(t)

	rec, _ := doJSON(t, h, http.MethodPost, "/api/admin/threat-map/control",
		map[string]any{"playback": 2}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := login(t, h)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	rec, body := doJSON(t, h, http.MethodPost, "/api/admin/threat-map/control",
		map[string]any{"playback": 2}, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("control: %d: %s", rec.Code, rec.Body.String())
	}
	data := body["data"].(map[string]any)
	if data["playback"].(float64) != 2 {
		t.Fatalf("playback not applied: %v", data)
	}
	// Base cadence defaults to the cache TTL (one minute in this harness);
	// doubling playback halves the effective interval.
	if data["effectiveMs"].(float64) != 30000 {
		t.Fatalf("expected effectiveMs 30000 at 2x, got %v", data["effectiveMs"])
	}

	rec, body = doJSON(t, h, http.MethodPost, "/api/admin/threat-map/control",
		map[string]any{"playback": 0.01}, authHeader)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range playback should 400, got %d", rec.Code)
	}
	if body["error"] != "Validation failed" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	h := newTestRouter(t)
	token := login(t, h)
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	rec, _ := doJSON(t, h, http.MethodPost, "/api/auth/logout", nil, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/api/admin/overview", nil, authHeader)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestWebhookStatusSharedSecret(t *testing.T) {
	h := newTestRouter(t)

	// Create a lead to update.
	rec, body := doJSON(t, h, http.MethodPost, "/api/demo-intake", map[string]any{
		"fullName": "Grace Hopper", "email": "grace@example.test",
		"company": "Navy Labs", "size": "101-500",
		"message": "We need compliance help before our audit.",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("intake: %d %s", rec.Code, rec.Body.String())
	}
	ref := body["data"].(map[string]any)["ref"].(string)

	update := map[string]string{"leadRef": ref, "status": "qualified"}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/crm/webhook/status", update, map[string]string{
		"X-CRM-Token": "wrong-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}

	rec, body = doJSON(t, h, http.MethodPost, "/api/crm/webhook/status", update, map[string]string{
		"X-CRM-Token": testWebhookToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with good token, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["data"].(map[string]any)["status"] != "qualified" {
		t.Fatalf("lead status not updated: %v", body)
	}

	rec, _ = doJSON(t, h, http.MethodPost, "/api/crm/webhook/status",
		map[string]string{"leadRef": "LEAD-9999", "status": "qualified"},
		map[string]string{"X-CRM-Token": testWebhookToken})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lead, got %d", rec.Code)
	}
}

func TestThreatGeoEventsMeta(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodGet, "/api/threat-geo-events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	meta := body["meta"].(map[string]any)
	if meta["source"] != threatintel.SourceMock {
		t.Fatalf("expected mock source with nothing configured, got %v", meta["source"])
	}
	count := meta["count"].(float64)
	if int(count) != len(body["data"].([]any)) {
		t.Fatalf("meta count %v disagrees with data length", count)
	}
}

func TestThreatMapSVG(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/threat-map.svg?severity=critical,high&maxFlows=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "<svg") {
		t.Fatal("response is not SVG")
	}
}

func TestSOCPreviewEndpoint(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodGet, "/api/soc-preview?severity=high", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	for _, key := range []string{"incidents", "alerts", "threats", "kpis", "chart", "timeline", "presets"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("soc preview missing %q", key)
		}
	}
}

func TestUnknownRoute404JSON(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodGet, "/api/nope", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body["error"] == nil {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestCreateSlotRequiresAdmin(t *testing.T) {
	h := newTestRouter(t)
	slot := map[string]any{"date": "2026-03-01", "time": "09:00", "capacity": 5}

	rec, _ := doJSON(t, h, http.MethodPost, "/api/demo-slots", slot, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := login(t, h)
	rec, body := doJSON(t, h, http.MethodPost, "/api/demo-slots", slot, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	id := body["data"].(map[string]any)["id"].(string)
	if !strings.HasPrefix(id, "SLOT-") {
		t.Fatalf("unexpected slot id %q", id)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newTestRouter(t)
	rec, body := doJSON(t, h, http.MethodGet, "/api/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := body["data"].(map[string]any)
	if data["overall"] != "operational" {
		t.Fatalf("expected operational, got %v", data["overall"])
	}
}

func TestIncidentsAndAlerts(t *testing.T) {
	h := newTestRouter(t)
	for _, path := range []string{"/api/incidents", "/api/alerts"} {
		rec, body := doJSON(t, h, http.MethodGet, path, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		if body["count"].(float64) != float64(len(body["data"].([]any))) {
			t.Fatalf("%s: count disagrees with data length", path)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestRouter(t)
	rec, _ := doJSON(t, h, http.MethodDelete, "/api/demo-slots", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
