package threatintel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"portal-api/internal/model"
)

// FeedSource pulls a generic JSON threat feed. It accepts several common
// envelope shapes and tolerates malformed rows.
type FeedSource struct {
	url    string
	apiKey string
	client *http.Client
}

func NewFeedSource(url, apiKey string, timeout time.Duration) *FeedSource {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &FeedSource{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (f *FeedSource) Name() string { return "feed" }

// Fetch downloads and normalizes the feed. Individual malformed entries are
// dropped; an empty result is treated as an error so the caller can fall
// back to the synthetic generator.
func (f *FeedSource) Fetch(ctx context.Context) ([]model.ThreatEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("feed HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	rows := flattenFeedRows(raw)
	if len(rows) == 0 {
		return nil, fmt.Errorf("feed returned no rows")
	}

	events := make([]model.ThreatEvent, 0, len(rows))
	for _, row := range rows {
		if event := NormalizeGeoEvent(row); event != nil {
			if event.Feed == "" {
				event.Feed = "Live Feed"
			}
			events = append(events, *event)
		}
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("feed rows all malformed")
	}
	return events, nil
}

// flattenFeedRows supports {"data":[...]}, {"events":[...]}, {"items":[...]}
// and a bare top-level array.
func flattenFeedRows(raw []byte) []map[string]any {
	var envelope map[string]any
	if json.Unmarshal(raw, &envelope) == nil && len(envelope) > 0 {
		for _, key := range []string{"data", "events", "items", "results"} {
			if arr, ok := envelope[key].([]any); ok {
				return toMaps(arr)
			}
		}
	}
	var arr []any
	if json.Unmarshal(raw, &arr) == nil {
		return toMaps(arr)
	}
	return nil
}

func toMaps(arr []any) []map[string]any {
	rows := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			rows = append(rows, m)
		}
	}
	return rows
}
