package handler

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"portal-api/internal/service"
)

var (
	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

var companySizes = []string{"1-25", "26-100", "101-500", "500+"}

// validator collects every failing field instead of stopping at the first.
type validator struct {
	details []FieldError
}

func (v *validator) fail(field, message string) {
	v.details = append(v.details, FieldError{Field: field, Message: message})
}

func (v *validator) requireLen(field, value string, min, max int) {
	n := len(strings.TrimSpace(value))
	if n < min {
		v.fail(field, fmt.Sprintf("must be at least %d characters", min))
	} else if n > max {
		v.fail(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func (v *validator) requireEmail(field, value string) {
	if len(value) > 160 {
		v.fail(field, "must be at most 160 characters")
		return
	}
	if _, err := mail.ParseAddress(value); err != nil {
		v.fail(field, "must be a valid email address")
	}
}

func (v *validator) requireEnum(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.fail(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

func (v *validator) requireRange(field string, value, min, max int) {
	if value < min || value > max {
		v.fail(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

func validateBooking(req *service.BookingRequest) []FieldError {
	if req.Attendees == 0 {
		req.Attendees = 1
	}
	v := &validator{}
	v.requireLen("slotId", req.SlotID, 3, 80)
	v.requireLen("fullName", req.FullName, 2, 120)
	v.requireEmail("email", req.Email)
	v.requireLen("company", req.Company, 2, 160)
	v.requireRange("attendees", req.Attendees, 1, 20)
	if len(req.Notes) > 1000 {
		v.fail("notes", "must be at most 1000 characters")
	}
	return v.details
}

func validateIntake(req *service.IntakeRequest) []FieldError {
	v := &validator{}
	v.requireLen("fullName", req.FullName, 2, 120)
	v.requireEmail("email", req.Email)
	v.requireLen("company", req.Company, 2, 160)
	v.requireEnum("size", req.Size, companySizes)
	v.requireLen("message", req.Message, 10, 2000)
	return v.details
}

type slotRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Capacity int    `json:"capacity"`
}

func validateSlot(req *slotRequest) []FieldError {
	if req.Capacity == 0 {
		req.Capacity = 1
	}
	if req.Timezone == "" {
		req.Timezone = "Africa/Lagos"
	}
	v := &validator{}
	if !datePattern.MatchString(req.Date) {
		v.fail("date", "must be formatted YYYY-MM-DD")
	}
	if !timePattern.MatchString(req.Time) {
		v.fail("time", "must be formatted HH:MM")
	}
	v.requireRange("capacity", req.Capacity, 1, 50)
	v.requireLen("timezone", req.Timezone, 2, 60)
	return v.details
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateLogin(req *loginRequest) []FieldError {
	v := &validator{}
	v.requireEmail("email", req.Email)
	v.requireLen("password", req.Password, 1, 200)
	return v.details
}

type threatMapControlRequest struct {
	Playback float64 `json:"playback"`
}

func validateThreatMapControl(req *threatMapControlRequest) []FieldError {
	v := &validator{}
	if req.Playback < 0.1 || req.Playback > 100 {
		v.fail("playback", "must be between 0.1 and 100")
	}
	return v.details
}

type webhookStatusRequest struct {
	LeadRef string `json:"leadRef"`
	Status  string `json:"status"`
}

var leadStatuses = []string{"new", "contacted", "qualified", "disqualified", "won", "lost"}

func validateWebhookStatus(req *webhookStatusRequest) []FieldError {
	v := &validator{}
	v.requireLen("leadRef", req.LeadRef, 3, 40)
	v.requireEnum("status", req.Status, leadStatuses)
	return v.details
}
