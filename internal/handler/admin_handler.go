package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"portal-api/internal/auth"
	"portal-api/internal/geomap"
	"portal-api/internal/service"
	"portal-api/internal/util"
)

// AdminHandler serves the admin overview, the threat-map playback control and
// the inbound CRM webhook.
type AdminHandler struct {
	portal       *service.PortalService
	bookings     *service.BookingService
	auth         *auth.Service
	refresher    *geomap.Refresher
	webhookToken string
}

func NewAdminHandler(portal *service.PortalService, bookings *service.BookingService, authService *auth.Service, refresher *geomap.Refresher, webhookToken string) *AdminHandler {
	return &AdminHandler{
		portal:       portal,
		bookings:     bookings,
		auth:         authService,
		refresher:    refresher,
		webhookToken: webhookToken,
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.auth), RequireAdmin)
		r.Get("/admin/overview", h.Overview)
		r.Post("/admin/threat-map/control", h.ThreatMapControl)
	})
	r.Post("/crm/webhook/status", h.WebhookStatus)
}

func (h *AdminHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.portal.Overview(r.Context())
	if err != nil {
		util.Error("admin overview failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not load overview")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": overview})
}

// ThreatMapControl adjusts the playback multiplier of the background map
// refresher. The base cadence itself follows what ingestion reports, so only
// the multiplier is caller-facing.
func (h *AdminHandler) ThreatMapControl(w http.ResponseWriter, r *http.Request) {
	var req threatMapControlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateThreatMapControl(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	h.refresher.SetPlayback(req.Playback)
	util.Info("threat map playback updated",
		util.Float64("playback", req.Playback),
		util.Duration("effective", h.refresher.EffectiveInterval()))

	respondJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"playback":    h.refresher.Playback(),
			"intervalMs":  h.refresher.Interval() / time.Millisecond,
			"effectiveMs": h.refresher.EffectiveInterval() / time.Millisecond,
		},
	})
}

// WebhookStatus applies an inbound CRM status update. The shared-secret
// header is compared in constant time; this is the only unauthenticated
// mutation path besides public forms.
func (h *AdminHandler) WebhookStatus(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-CRM-Token")
	if h.webhookToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.webhookToken)) != 1 {
		respondError(w, http.StatusUnauthorized, "Invalid webhook token")
		return
	}

	var req webhookStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateWebhookStatus(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	lead, err := h.bookings.UpdateLeadStatus(r.Context(), req.LeadRef, req.Status)
	if err != nil {
		if errors.Is(err, service.ErrLeadNotFound) {
			respondError(w, http.StatusNotFound, "Lead not found")
			return
		}
		util.Error("webhook status update failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not update lead")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"ref": lead.Ref, "status": lead.Status},
	})
}
