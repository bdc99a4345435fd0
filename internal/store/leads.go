package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"portal-api/internal/model"
)

// InsertLead stores a scored lead, assigning a sequential LEAD-NNNN ref when empty.
func (s *Store) InsertLead(ctx context.Context, lead model.Lead) (model.Lead, error) {
	if lead.Ref == "" {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM leads`).Scan(&count); err != nil {
			return model.Lead{}, fmt.Errorf("count leads: %w", err)
		}
		lead.Ref = fmt.Sprintf("LEAD-%04d", count+1)
	}
	if lead.Status == "" {
		lead.Status = "new"
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads(ref,type,full_name,email,company,score,band,status,source,raw_payload,created_at,updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		lead.Ref, lead.Type, lead.FullName, lead.Email, lead.Company, lead.Score, lead.Band,
		lead.Status, lead.Source, lead.RawPayload, formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.Lead{}, fmt.Errorf("insert lead: %w", err)
	}
	lead.CreatedAt = now
	lead.UpdatedAt = now
	return lead, nil
}

// GetLeadByRef fetches one lead.
func (s *Store) GetLeadByRef(ctx context.Context, ref string) (model.Lead, error) {
	var (
		lead                 model.Lead
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT ref,type,full_name,email,company,score,band,status,source,raw_payload,created_at,updated_at
		 FROM leads WHERE ref = ?`, ref,
	).Scan(&lead.Ref, &lead.Type, &lead.FullName, &lead.Email, &lead.Company, &lead.Score,
		&lead.Band, &lead.Status, &lead.Source, &lead.RawPayload, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Lead{}, ErrNotFound
	}
	if err != nil {
		return model.Lead{}, fmt.Errorf("scan lead: %w", err)
	}
	lead.CreatedAt = parseTime(createdAt)
	lead.UpdatedAt = parseTime(updatedAt)
	return lead, nil
}

// UpdateLeadStatus mutates a lead's CRM status, keyed by its ref.
func (s *Store) UpdateLeadStatus(ctx context.Context, ref, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE ref = ?`,
		status, formatTime(time.Now().UTC()), ref,
	)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLeads returns leads, newest first.
func (s *Store) ListLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref,type,full_name,email,company,score,band,status,source,raw_payload,created_at,updated_at
		 FROM leads ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var (
			lead                 model.Lead
			createdAt, updatedAt string
		)
		if err := rows.Scan(&lead.Ref, &lead.Type, &lead.FullName, &lead.Email, &lead.Company, &lead.Score,
			&lead.Band, &lead.Status, &lead.Source, &lead.RawPayload, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		lead.CreatedAt = parseTime(createdAt)
		lead.UpdatedAt = parseTime(updatedAt)
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// InsertCRMEvent appends an audit row for inbound/outbound CRM traffic.
func (s *Store) InsertCRMEvent(ctx context.Context, event model.CRMEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crm_events(lead_ref,event_type,payload,created_at) VALUES(?,?,?,?)`,
		event.LeadRef, event.EventType, event.Payload, formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert crm event: %w", err)
	}
	return nil
}

// InsertNotificationLog records a delivery attempt (sent, failed or log fallback).
func (s *Store) InsertNotificationLog(ctx context.Context, log model.NotificationLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_logs(event_type,recipient,subject,payload_json,status,retry_count,error_message,created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		log.EventType, log.Recipient, log.Subject, log.PayloadJSON, log.Status, log.RetryCount,
		nullIfEmpty(log.ErrorMessage), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
