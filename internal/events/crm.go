package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"portal-api/internal/config"
	"portal-api/internal/metrics"
	"portal-api/internal/util"
)

// Delivery statuses recorded in the notification log.
const (
	StatusSent           = "sent"
	StatusFailed         = "failed"
	StatusLoggedFallback = "logged-fallback"
)

// CRMDelivery pushes lead payloads to an external CRM endpoint. With no URL
// configured every delivery is logged instead; delivery failures are
// reported by status, never by error, so the booking or lead flow that
// triggered them always completes.
type CRMDelivery struct {
	url    string
	token  string
	client *http.Client
}

func NewCRMDelivery(cfg config.CRMConfig) *CRMDelivery {
	return &CRMDelivery{
		url:    cfg.DeliveryURL,
		token:  cfg.DeliveryToken,
		client: &http.Client{Timeout: 8 * time.Second},
	}
}

// Deliver sends one lead payload. Returns the delivery status for the
// notification log.
func (d *CRMDelivery) Deliver(ctx context.Context, leadRef string, payload any) string {
	if d.url == "" {
		util.Info("CRM delivery (log-only)", util.String("lead_ref", leadRef))
		metrics.WebhookDeliveries.WithLabelValues(StatusLoggedFallback).Inc()
		return StatusLoggedFallback
	}

	status := d.send(ctx, leadRef, payload)
	metrics.WebhookDeliveries.WithLabelValues(status).Inc()
	return status
}

func (d *CRMDelivery) send(ctx context.Context, leadRef string, payload any) string {
	body, err := json.Marshal(payload)
	if err != nil {
		util.Error("marshal CRM payload failed", util.String("lead_ref", leadRef), util.ErrorField(err))
		return StatusFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		util.Error("build CRM request failed", util.ErrorField(err))
		return StatusFailed
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		util.Warn("CRM delivery failed", util.String("lead_ref", leadRef), util.ErrorField(err))
		return StatusFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		util.Warn("CRM delivery rejected",
			util.String("lead_ref", leadRef),
			util.String("status", fmt.Sprintf("%d", resp.StatusCode)))
		return StatusFailed
	}
	return StatusSent
}
