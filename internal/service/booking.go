package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portal-api/internal/events"
	"portal-api/internal/metrics"
	"portal-api/internal/model"
	"portal-api/internal/scoring"
	"portal-api/internal/store"
	"portal-api/internal/util"
)

// Sentinel errors mapped to HTTP status codes at the handler layer.
var (
	ErrSlotNotFound = errors.New("demo slot not found")
	ErrSlotFull     = errors.New("demo slot is fully booked")
	ErrLeadNotFound = errors.New("lead not found")
)

// BookingRequest is the validated input for a demo booking.
type BookingRequest struct {
	SlotID    string `json:"slotId"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Attendees int    `json:"attendees"`
	Notes     string `json:"notes"`
}

// IntakeRequest is the validated input for the website demo-intake form.
type IntakeRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Company  string `json:"company"`
	Size     string `json:"size"`
	Message  string `json:"message"`
}

// Integrations reports how the side effects of a booking were handled.
// Downstream failures degrade to fallback modes; they never fail the booking.
type Integrations struct {
	Notification string `json:"notification"`
	CRM          string `json:"crm"`
}

// BookingResult is the full outcome of a successful booking.
type BookingResult struct {
	Booking      model.DemoBooking `json:"booking"`
	Lead         model.Lead        `json:"lead"`
	Integrations Integrations      `json:"integrations"`
}

// BookingService runs the demo-booking pipeline: capacity-checked slot
// booking, lead scoring and persistence, then best-effort notification, CRM
// delivery and event publishing.
type BookingService struct {
	store     *store.Store
	crm       *events.CRMDelivery
	notifier  *events.Notifier
	publisher *events.Publisher
}

func NewBookingService(st *store.Store, crm *events.CRMDelivery, notifier *events.Notifier, pub *events.Publisher) *BookingService {
	return &BookingService{store: st, crm: crm, notifier: notifier, publisher: pub}
}

// Book creates a booking against a slot. The slot's capacity check and
// increment happen atomically in the store, so concurrent requests against a
// near-full slot cannot oversubscribe it.
func (b *BookingService) Book(ctx context.Context, req BookingRequest) (BookingResult, error) {
	slot, err := b.store.GetDemoSlot(ctx, req.SlotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return BookingResult{}, ErrSlotNotFound
		}
		return BookingResult{}, fmt.Errorf("load slot: %w", err)
	}

	result := scoring.Score("", req.Notes, scoring.SourceBooking)

	booking, err := b.store.BookSlot(ctx, model.DemoBooking{
		SlotID:    slot.ID,
		FullName:  util.SanitizeText(req.FullName),
		Email:     req.Email,
		Company:   util.SanitizeText(req.Company),
		Attendees: req.Attendees,
		Notes:     util.SanitizeText(req.Notes),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSlotFull):
			metrics.BookingConflicts.Inc()
			return BookingResult{}, ErrSlotFull
		case errors.Is(err, store.ErrNotFound):
			return BookingResult{}, ErrSlotNotFound
		default:
			return BookingResult{}, fmt.Errorf("book slot: %w", err)
		}
	}

	raw, _ := json.Marshal(req)
	lead, err := b.store.InsertLead(ctx, model.Lead{
		Type:       "booking",
		FullName:   booking.FullName,
		Email:      booking.Email,
		Company:    booking.Company,
		Score:      result.Score,
		Band:       result.Band,
		Source:     scoring.SourceBooking,
		RawPayload: string(raw),
	})
	if err != nil {
		// The booking row exists; a lead failure degrades rather than
		// unwinding the booking.
		util.Error("insert booking lead failed",
			util.String("booking_id", booking.ID), util.ErrorField(err))
	} else {
		booking.LeadRef = lead.Ref
		if err := b.store.SetBookingLead(ctx, booking.ID, lead.Ref); err != nil {
			util.Warn("link booking lead failed",
				util.String("booking_id", booking.ID), util.ErrorField(err))
		}
	}

	metrics.BookingsCreated.Inc()
	metrics.LeadsCreated.WithLabelValues(result.Band).Inc()

	integrations := b.runIntegrations(booking, lead)

	return BookingResult{Booking: booking, Lead: lead, Integrations: integrations}, nil
}

// Intake records a website demo request as a scored lead.
func (b *BookingService) Intake(ctx context.Context, req IntakeRequest) (model.Lead, error) {
	result := scoring.Score(req.Size, req.Message, scoring.SourceWebsite)

	raw, _ := json.Marshal(req)
	lead, err := b.store.InsertLead(ctx, model.Lead{
		Type:       "intake",
		FullName:   util.SanitizeText(req.FullName),
		Email:      req.Email,
		Company:    util.SanitizeText(req.Company),
		Score:      result.Score,
		Band:       result.Band,
		Source:     scoring.SourceWebsite,
		RawPayload: string(raw),
	})
	if err != nil {
		return model.Lead{}, fmt.Errorf("insert lead: %w", err)
	}

	metrics.LeadsCreated.WithLabelValues(result.Band).Inc()
	b.publisher.Publish(ctx, events.TypeLeadCreated, lead.Ref, lead)
	return lead, nil
}

// UpdateLeadStatus applies an inbound CRM status change and records the
// event trail.
func (b *BookingService) UpdateLeadStatus(ctx context.Context, ref, status string) (model.Lead, error) {
	if err := b.store.UpdateLeadStatus(ctx, ref, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Lead{}, ErrLeadNotFound
		}
		return model.Lead{}, fmt.Errorf("update lead status: %w", err)
	}

	payload, _ := json.Marshal(map[string]string{"status": status})
	if err := b.store.InsertCRMEvent(ctx, model.CRMEvent{
		LeadRef:   ref,
		EventType: "status-update",
		Payload:   string(payload),
	}); err != nil {
		util.Warn("record CRM event failed", util.String("lead_ref", ref), util.ErrorField(err))
	}

	lead, err := b.store.GetLeadByRef(ctx, ref)
	if err != nil {
		return model.Lead{}, fmt.Errorf("reload lead: %w", err)
	}
	b.publisher.Publish(ctx, events.TypeLeadStatusChanged, ref, lead)
	return lead, nil
}

// runIntegrations fires the booking side effects with a detached context so
// a client disconnect cannot abort them. Every outcome lands in the
// notification log.
func (b *BookingService) runIntegrations(booking model.DemoBooking, lead model.Lead) Integrations {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	subject := fmt.Sprintf("Booking confirmed %s", booking.ID)
	notif := b.notifier.Send(ctx, booking.Email, subject, confirmationBody(booking))
	b.logNotification(ctx, booking, subject, notif)

	crmStatus := b.crm.Deliver(ctx, lead.Ref, map[string]any{
		"ref":     lead.Ref,
		"type":    lead.Type,
		"band":    lead.Band,
		"score":   lead.Score,
		"booking": booking.ID,
	})

	b.publisher.Publish(ctx, events.TypeBookingCreated, booking.ID, booking)

	return Integrations{Notification: notif.Status, CRM: crmStatus}
}

func confirmationBody(booking model.DemoBooking) string {
	return fmt.Sprintf(
		"Hi %s,\n\nYour demo is confirmed.\n\nBooking: %s\nSlot: %s\nAttendees: %d\n",
		booking.FullName, booking.ID, booking.SlotID, booking.Attendees)
}

func (b *BookingService) logNotification(ctx context.Context, booking model.DemoBooking, subject string, result events.NotificationResult) {
	payload, _ := json.Marshal(booking)
	err := b.store.InsertNotificationLog(ctx, model.NotificationLog{
		EventType:    "booking-confirmation",
		Recipient:    booking.Email,
		Subject:      subject,
		PayloadJSON:  string(payload),
		Status:       result.Status,
		RetryCount:   result.Retries,
		ErrorMessage: result.Error,
	})
	if err != nil {
		util.Warn("write notification log failed",
			util.String("booking_id", booking.ID), util.ErrorField(err))
	}
}
