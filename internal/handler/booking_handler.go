package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"portal-api/internal/auth"
	"portal-api/internal/model"
	"portal-api/internal/service"
	"portal-api/internal/store"
	"portal-api/internal/util"
)

// BookingHandler serves demo slots, bookings and the website intake form.
type BookingHandler struct {
	bookings *service.BookingService
	store    *store.Store
	auth     *auth.Service
}

func NewBookingHandler(bookings *service.BookingService, st *store.Store, authService *auth.Service) *BookingHandler {
	return &BookingHandler{bookings: bookings, store: st, auth: authService}
}

func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/demo-slots", h.ListSlots)
	r.Post("/demo-bookings", h.CreateBooking)
	r.Post("/demo-intake", h.Intake)
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.auth), RequireAdmin)
		r.Post("/demo-slots", h.CreateSlot)
	})
}

func (h *BookingHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.store.ListDemoSlots(r.Context())
	if err != nil {
		util.Error("list demo slots failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not load demo slots")
		return
	}

	type slotView struct {
		model.DemoSlot
		Available int `json:"available"`
	}
	views := make([]slotView, len(slots))
	for i, slot := range slots {
		views[i] = slotView{DemoSlot: slot, Available: slot.Available()}
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *BookingHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateSlot(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	slot, err := h.store.CreateDemoSlot(r.Context(), model.DemoSlot{
		Date:     req.Date,
		Time:     req.Time,
		Timezone: req.Timezone,
		Capacity: req.Capacity,
	})
	if err != nil {
		util.Error("create demo slot failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not create slot")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"data": slot})
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.BookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateBooking(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	result, err := h.bookings.Book(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSlotNotFound):
			respondError(w, http.StatusNotFound, "Demo slot not found")
		case errors.Is(err, service.ErrSlotFull):
			respondError(w, http.StatusConflict, "Demo slot is fully booked")
		default:
			util.Error("create booking failed", util.ErrorField(err))
			respondError(w, http.StatusInternalServerError, "Could not create booking")
		}
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"data":         result.Booking,
		"lead":         map[string]any{"ref": result.Lead.Ref, "band": result.Lead.Band},
		"integrations": result.Integrations,
	})
}

func (h *BookingHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if details := validateIntake(&req); len(details) > 0 {
		respondValidation(w, details)
		return
	}

	lead, err := h.bookings.Intake(r.Context(), req)
	if err != nil {
		util.Error("demo intake failed", util.ErrorField(err))
		respondError(w, http.StatusInternalServerError, "Could not record demo request")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Demo request received",
		"data": map[string]any{
			"ref":   lead.Ref,
			"score": lead.Score,
			"band":  lead.Band,
		},
	})
}
