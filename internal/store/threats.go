package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"portal-api/internal/model"
)

// ThreatFeedFilter narrows ListThreatFeedItems; zero values mean "no filter".
type ThreatFeedFilter struct {
	Severity string
	Source   string
	Status   string
	Mitre    string
}

// UpsertThreatFeedItem inserts or refreshes a persisted feed row.
func (s *Store) UpsertThreatFeedItem(ctx context.Context, item model.ThreatFeedItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threat_feed_items(id,threat,severity,source,status,mitre_tags,published_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET threat=excluded.threat, severity=excluded.severity,
		   source=excluded.source, status=excluded.status, mitre_tags=excluded.mitre_tags,
		   published_at=excluded.published_at`,
		item.ID, item.Threat, item.Severity, item.Source, item.Status, item.MitreTags, formatTime(item.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert threat feed item: %w", err)
	}
	return nil
}

// ListThreatFeedItems returns feed rows matching the filter, newest first.
// The MITRE filter matches a single technique code inside the comma list.
func (s *Store) ListThreatFeedItems(ctx context.Context, filter ThreatFeedFilter) ([]model.ThreatFeedItem, error) {
	query := `SELECT id,threat,severity,source,status,mitre_tags,published_at FROM threat_feed_items`
	var (
		conds []string
		args  []any
	)
	if filter.Severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Mitre != "" {
		conds = append(conds, "(',' || mitre_tags || ',') LIKE ?")
		args = append(args, "%,"+filter.Mitre+",%")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY published_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list threat feed items: %w", err)
	}
	defer rows.Close()

	var items []model.ThreatFeedItem
	for rows.Next() {
		var (
			item        model.ThreatFeedItem
			publishedAt string
		)
		if err := rows.Scan(&item.ID, &item.Threat, &item.Severity, &item.Source, &item.Status, &item.MitreTags, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan threat feed item: %w", err)
		}
		item.PublishedAt = parseTime(publishedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ThreatFeedSources lists distinct source tags present in the feed table.
func (s *Store) ThreatFeedSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM threat_feed_items ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("list threat sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("scan threat source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// ListStatusIncidents returns status-page incidents, newest first.
func (s *Store) ListStatusIncidents(ctx context.Context, limit int) ([]model.StatusIncident, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,incident_ref,title,status,severity,started_at,resolved_at,summary,created_at,updated_at
		 FROM status_incidents ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list status incidents: %w", err)
	}
	defer rows.Close()

	var incidents []model.StatusIncident
	for rows.Next() {
		var (
			inc                             model.StatusIncident
			startedAt, createdAt, updatedAt string
			resolvedAt                      sql.NullString
		)
		if err := rows.Scan(&inc.ID, &inc.IncidentRef, &inc.Title, &inc.Status, &inc.Severity,
			&startedAt, &resolvedAt, &inc.Summary, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan status incident: %w", err)
		}
		inc.StartedAt = parseTime(startedAt)
		inc.ResolvedAt = parseTimePtr(resolvedAt)
		inc.CreatedAt = parseTime(createdAt)
		inc.UpdatedAt = parseTime(updatedAt)
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// LatestStatusSnapshots returns the most recent snapshot per component.
func (s *Store) LatestStatusSnapshots(ctx context.Context) ([]model.StatusSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,component,status,message,created_at FROM status_snapshots
		 WHERE id IN (SELECT MAX(id) FROM status_snapshots GROUP BY component)
		 ORDER BY component`)
	if err != nil {
		return nil, fmt.Errorf("list status snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.StatusSnapshot
	for rows.Next() {
		var (
			snap      model.StatusSnapshot
			createdAt string
		)
		if err := rows.Scan(&snap.ID, &snap.Component, &snap.Status, &snap.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan status snapshot: %w", err)
		}
		snap.CreatedAt = parseTime(createdAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
