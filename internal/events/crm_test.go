package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"portal-api/internal/config"
)

func TestDeliverLogOnlyWhenUnconfigured(t *testing.T) {
	d := NewCRMDelivery(config.CRMConfig{})
	status := d.Deliver(context.Background(), "LEAD-0001", map[string]string{"ref": "LEAD-0001"})
	if status != StatusLoggedFallback {
		t.Fatalf("expected %q with no URL, got %q", StatusLoggedFallback, status)
	}
}

func TestDeliverSendsBearerToken(t *testing.T) {
	var gotAuth string
	crm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer crm.Close()

	d := NewCRMDelivery(config.CRMConfig{DeliveryURL: crm.URL, DeliveryToken: "tok-123"})
	status := d.Deliver(context.Background(), "LEAD-0002", map[string]string{"ref": "LEAD-0002"})
	if status != StatusSent {
		t.Fatalf("expected %q, got %q", StatusSent, status)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
}

func TestDeliverReportsFailureWithoutError(t *testing.T) {
	crm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer crm.Close()

	d := NewCRMDelivery(config.CRMConfig{DeliveryURL: crm.URL})
	if status := d.Deliver(context.Background(), "LEAD-0003", nil); status != StatusFailed {
		t.Fatalf("expected %q, got %q", StatusFailed, status)
	}
}
