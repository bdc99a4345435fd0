package threatintel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"portal-api/internal/config"
	"portal-api/internal/model"
)

var mitrePattern = regexp.MustCompile(`(?i)T\d{4}(?:\.\d{3})?`)

// MISPIntel is the combined result of one MISP sync: persisted feed rows
// plus ephemeral geo events.
type MISPIntel struct {
	FeedItems []model.ThreatFeedItem
	GeoEvents []model.ThreatEvent
}

// MISPStatus is exposed on the threat-intel status endpoint.
type MISPStatus struct {
	Configured    bool       `json:"configured"`
	Connected     bool       `json:"connected"`
	BaseURL       string     `json:"baseUrl,omitempty"`
	VerifyTLS     bool       `json:"verifyTls"`
	LookbackHours int        `json:"lookbackHours"`
	LastSync      *time.Time `json:"lastSync,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	Counts        MISPCounts `json:"counts"`
}

type MISPCounts struct {
	FeedItems     int `json:"feedItems"`
	GeoEvents     int `json:"geoEvents"`
	RawEvents     int `json:"rawEvents"`
	RawAttributes int `json:"rawAttributes"`
}

// MISPClient talks to a MISP-compatible restSearch API.
type MISPClient struct {
	cfg    config.ThreatIntelConfig
	client *http.Client

	mu     sync.Mutex
	status MISPStatus
}

func NewMISPClient(cfg config.ThreatIntelConfig) *MISPClient {
	transport := &http.Transport{}
	if !cfg.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &MISPClient{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.MISPTimeout,
			Transport: transport,
		},
		status: MISPStatus{
			Configured:    cfg.MISPBaseURL != "" && cfg.MISPAPIKey != "",
			BaseURL:       cfg.MISPBaseURL,
			VerifyTLS:     cfg.VerifyTLS,
			LookbackHours: cfg.LookbackHours,
		},
	}
}

// Configured reports whether base URL and API key are both present.
func (c *MISPClient) Configured() bool {
	return c.cfg.MISPBaseURL != "" && c.cfg.MISPAPIKey != ""
}

// Status returns a snapshot of the connection state.
func (c *MISPClient) Status() MISPStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// FetchIntel runs the event and attribute searches over the lookback window
// and normalizes the responses.
func (c *MISPClient) FetchIntel(ctx context.Context) (MISPIntel, error) {
	if !c.Configured() {
		c.setError("MISP not configured", false)
		return MISPIntel{}, fmt.Errorf("misp not configured")
	}

	payload := c.searchPayload()

	eventsRaw, err := c.restSearch(ctx, "/events/restSearch", payload)
	if err != nil {
		c.setError(err.Error(), true)
		return MISPIntel{}, err
	}
	attrPayload := clonePayload(payload)
	attrPayload["limit"] = 300
	attributesRaw, err := c.restSearch(ctx, "/attributes/restSearch", attrPayload)
	if err != nil {
		c.setError(err.Error(), true)
		return MISPIntel{}, err
	}

	events := unwrapList(eventsRaw, "Event")
	attributes := unwrapList(attributesRaw, "Attribute")

	intel := MISPIntel{
		FeedItems: normalizeFeedItems(events),
		GeoEvents: normalizeMISPGeoEvents(events, attributes),
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.status.Connected = true
	c.status.LastError = ""
	c.status.LastSync = &now
	c.status.Counts = MISPCounts{
		FeedItems:     len(intel.FeedItems),
		GeoEvents:     len(intel.GeoEvents),
		RawEvents:     len(events),
		RawAttributes: len(attributes),
	}
	c.mu.Unlock()

	return intel, nil
}

func (c *MISPClient) searchPayload() map[string]any {
	from := time.Now().UTC().Add(-time.Duration(c.cfg.LookbackHours) * time.Hour)
	return map[string]any{
		"returnFormat": "json",
		"limit":        100,
		"page":         1,
		"timestamp":    from.Format(time.RFC3339),
		"published":    true,
	}
}

func (c *MISPClient) restSearch(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal misp payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.MISPBaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build misp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.cfg.MISPAPIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("misp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 120))
		return nil, fmt.Errorf("misp HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (c *MISPClient) setError(msg string, attempted bool) {
	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Connected = false
	c.status.LastError = msg
	if attempted {
		c.status.LastSync = &now
	}
	c.status.Counts = MISPCounts{}
}

// unwrapList extracts the response array, unwrapping the per-item
// {"Event": {...}} / {"Attribute": {...}} nesting MISP uses.
func unwrapList(raw []byte, wrapper string) []map[string]any {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	items, ok := envelope["response"].([]any)
	if !ok {
		// attributes/restSearch nests as {"response":{"Attribute":[...]}}
		if nested, ok := envelope["response"].(map[string]any); ok {
			items, _ = nested[wrapper+"s"].([]any)
			if items == nil {
				items, _ = nested[wrapper].([]any)
			}
		}
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := m[wrapper].(map[string]any); ok {
			out = append(out, inner)
		} else {
			out = append(out, m)
		}
	}
	return out
}

func normalizeFeedItems(events []map[string]any) []model.ThreatFeedItem {
	items := make([]model.ThreatFeedItem, 0, len(events))
	for _, event := range events {
		id := pickStr(event, "uuid", "id")
		if id == "" {
			continue
		}
		threat := pickStr(event, "info")
		if threat == "" {
			threat = "MISP Event"
		}
		items = append(items, model.ThreatFeedItem{
			ID:          "MISP-" + id,
			Threat:      threat,
			Severity:    severityFromThreatLevel(pickStr(event, "threat_level_id")),
			Source:      "MISP",
			Status:      "active",
			MitreTags:   strings.Join(extractMitre(event["Tag"]), ","),
			PublishedAt: mispTimestamp(event, "publish_timestamp", "date"),
		})
	}
	return items
}

func normalizeMISPGeoEvents(events, attributes []map[string]any) []model.ThreatEvent {
	attrsByEvent := make(map[string][]map[string]any)
	for _, attr := range attributes {
		eventID := pickStr(attr, "event_id")
		if eventID == "" {
			continue
		}
		attrsByEvent[eventID] = append(attrsByEvent[eventID], attr)
	}

	out := make([]model.ThreatEvent, 0, len(events))
	for _, event := range events {
		id := pickStr(event, "uuid", "id")
		if id == "" {
			continue
		}
		attrs := attrsByEvent[pickStr(event, "id")]

		var srcLabel, dstLabel string
		lat, latOK := attrValue(attrs, "latitude")
		lon, lonOK := attrValue(attrs, "longitude")
		srcLabel = attrString(attrs, "ip-src", "domain", "hostname")
		dstLabel = attrStringExcluding(attrs, srcLabel, "ip-dst", "domain", "hostname", "url")
		if srcLabel == "" {
			srcLabel = orgName(event, "Orgc", "MISP Source")
		}
		if dstLabel == "" {
			dstLabel = orgName(event, "Org", "MISP Target")
		}

		// Events without geo attributes get a stable placeholder coordinate
		// derived from the event id. This is an approximation, not real
		// geolocation; it only has to be deterministic across refreshes.
		originLat := hashToCoord(id+"-o-lat", 70, 0)
		originLon := hashToCoord(id+"-o-lon", 170, 0)
		if latOK && lonOK {
			originLat, originLon = lat, lon
		}
		targetLat := hashToCoord(id+"-t-lat", 70, 5)
		targetLon := hashToCoord(id+"-t-lon", 170, -5)

		label := pickStr(event, "info")
		if label == "" {
			label = "MISP threat event"
		}

		out = append(out, model.ThreatEvent{
			ID:         "MISP-GEO-" + id,
			Label:      label,
			Severity:   severityFromThreatLevel(pickStr(event, "threat_level_id")),
			Feed:       "MISP",
			ObservedAt: mispTimestamp(event, "timestamp", "date"),
			Origin:     model.GeoPoint{Label: srcLabel, Lat: originLat, Lon: originLon},
			Target:     model.GeoPoint{Label: dstLabel, Lat: targetLat, Lon: targetLon},
		})
	}
	return out
}

// severityFromThreatLevel maps MISP threat_level_id (1..4) onto the severity
// buckets; anything else lands on medium.
func severityFromThreatLevel(level string) string {
	switch level {
	case "1":
		return model.SeverityCritical
	case "2":
		return model.SeverityHigh
	case "3":
		return model.SeverityMedium
	case "4":
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}

// hashToCoord maps a seed string into [-max+offset, max+offset) using
// murmur3, giving a stable pseudo-coordinate for events without geodata.
func hashToCoord(seed string, max, offset float64) float64 {
	h := murmur3.Sum32([]byte(seed))
	normalized := float64(h%10000) / 10000
	return normalized*(max*2) - max + offset
}

func extractMitre(tags any) []string {
	list, ok := tags.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range list {
		var name string
		switch tag := raw.(type) {
		case string:
			name = tag
		case map[string]any:
			name, _ = tag["name"].(string)
		}
		match := mitrePattern.FindString(name)
		if match == "" {
			continue
		}
		match = strings.ToUpper(match)
		if _, dup := seen[match]; dup {
			continue
		}
		seen[match] = struct{}{}
		out = append(out, match)
	}
	return out
}

func mispTimestamp(event map[string]any, epochKey, dateKey string) time.Time {
	if raw := pickStr(event, epochKey); raw != "" {
		if t, err := parseTimeFlexible(raw); err == nil {
			return t
		}
	}
	if raw := pickStr(event, dateKey); raw != "" {
		if t, err := parseTimeFlexible(raw); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func attrValue(attrs []map[string]any, attrType string) (float64, bool) {
	for _, attr := range attrs {
		if strings.EqualFold(pickStr(attr, "type"), attrType) {
			return pickFloat(attr, "value")
		}
	}
	return 0, false
}

func attrString(attrs []map[string]any, types ...string) string {
	for _, attr := range attrs {
		attrType := strings.ToLower(pickStr(attr, "type"))
		for _, want := range types {
			if attrType == want {
				return pickStr(attr, "value")
			}
		}
	}
	return ""
}

func attrStringExcluding(attrs []map[string]any, exclude string, types ...string) string {
	for _, attr := range attrs {
		attrType := strings.ToLower(pickStr(attr, "type"))
		for _, want := range types {
			if attrType == want && pickStr(attr, "value") != exclude {
				return pickStr(attr, "value")
			}
		}
	}
	return ""
}

func orgName(event map[string]any, key, fallback string) string {
	if org, ok := event[key].(map[string]any); ok {
		if name := pickStr(org, "name"); name != "" {
			return name
		}
	}
	return fallback
}

func clonePayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
