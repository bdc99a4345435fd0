package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/bcrypt"

	"portal-api/internal/config"
	"portal-api/internal/model"
	"portal-api/internal/util"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrSlotFull is returned when a booking would exceed slot capacity.
	ErrSlotFull = errors.New("slot is fully booked")
)

// Store wraps the SQLite database connection and schema lifecycle.
type Store struct {
	db *sql.DB
}

// Open initializes the database connection, creating directories as needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers; the booking critical section
	// additionally relies on the atomic compare-and-increment UPDATE.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InitSchema ensures baseline tables exist.
func (s *Store) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'client',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			token_jti TEXT NOT NULL UNIQUE,
			expires_at TEXT NOT NULL,
			revoked_at TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_jti ON sessions(token_jti);`,
		`CREATE TABLE IF NOT EXISTS demo_slots (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			timezone TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			booked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			CHECK (booked >= 0 AND booked <= capacity)
		);`,
		`CREATE TABLE IF NOT EXISTS demo_bookings (
			id TEXT PRIMARY KEY,
			slot_id TEXT NOT NULL REFERENCES demo_slots(id),
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			company TEXT NOT NULL,
			attendees INTEGER NOT NULL DEFAULT 1,
			notes TEXT NOT NULL DEFAULT '',
			lead_ref TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leads (
			ref TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			full_name TEXT NOT NULL,
			email TEXT NOT NULL,
			company TEXT NOT NULL,
			score INTEGER NOT NULL,
			band TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'new',
			source TEXT NOT NULL,
			raw_payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS crm_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			lead_ref TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS threat_feed_items (
			id TEXT PRIMARY KEY,
			threat TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			mitre_tags TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS status_incidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			incident_ref TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			severity TEXT NOT NULL,
			started_at TEXT NOT NULL,
			resolved_at TEXT,
			summary TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS status_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			component TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS notification_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL,
			payload_json TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Seed inserts baseline rows on first boot; it is idempotent.
func (s *Store) Seed(ctx context.Context, cfg *config.Config) error {
	now := time.Now().UTC()

	var slotCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM demo_slots`).Scan(&slotCount); err != nil {
		return fmt.Errorf("seed: count slots: %w", err)
	}
	if slotCount == 0 {
		seedSlots := []model.DemoSlot{
			{ID: "SLOT-001", Date: "2026-02-15", Time: "10:00", Timezone: "Africa/Lagos", Capacity: 3, Booked: 1},
			{ID: "SLOT-002", Date: "2026-02-15", Time: "14:00", Timezone: "Africa/Lagos", Capacity: 2, Booked: 0},
			{ID: "SLOT-003", Date: "2026-02-16", Time: "11:30", Timezone: "Africa/Lagos", Capacity: 4, Booked: 2},
		}
		for _, slot := range seedSlots {
			if _, err := s.db.ExecContext(ctx,
				`INSERT INTO demo_slots(id,date,time,timezone,capacity,booked,created_at) VALUES(?,?,?,?,?,?,?)`,
				slot.ID, slot.Date, slot.Time, slot.Timezone, slot.Capacity, slot.Booked, formatTime(now),
			); err != nil {
				return fmt.Errorf("seed: insert slot: %w", err)
			}
		}
	}

	var userCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&userCount); err != nil {
		return fmt.Errorf("seed: count users: %w", err)
	}
	if userCount == 0 {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.SeedAdminPassword), 12)
		if err != nil {
			return fmt.Errorf("seed: hash admin password: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO users(email,password_hash,full_name,role,is_active,created_at,updated_at) VALUES(?,?,?,?,1,?,?)`,
			cfg.Auth.SeedAdminEmail, string(hash), "Portal Admin", model.RoleAdmin, formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("seed: insert admin: %w", err)
		}
		util.Info("Seeded admin user", util.String("email", cfg.Auth.SeedAdminEmail))
	}

	var snapCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM status_snapshots`).Scan(&snapCount); err != nil {
		return fmt.Errorf("seed: count snapshots: %w", err)
	}
	if snapCount == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO status_snapshots(component,status,message,created_at) VALUES(?,?,?,?)`,
			"platform", "operational", "All systems normal", formatTime(now),
		); err != nil {
			return fmt.Errorf("seed: insert snapshot: %w", err)
		}
	}

	var incidentCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM status_incidents`).Scan(&incidentCount); err != nil {
		return fmt.Errorf("seed: count incidents: %w", err)
	}
	if incidentCount == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO status_incidents(incident_ref,title,status,severity,started_at,resolved_at,summary,created_at,updated_at)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			"INC-0001", "Initial baseline incident record", "resolved", model.SeverityLow,
			formatTime(now), formatTime(now), "Seeded baseline incident for status history.", formatTime(now), formatTime(now),
		); err != nil {
			return fmt.Errorf("seed: insert incident: %w", err)
		}
	}

	var feedCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM threat_feed_items`).Scan(&feedCount); err != nil {
		return fmt.Errorf("seed: count feed items: %w", err)
	}
	if feedCount == 0 {
		seedItems := []model.ThreatFeedItem{
			{ID: "THR-1001", Threat: "Credential stuffing campaign against SaaS portals", Severity: model.SeverityHigh, Source: "OSINT", Status: "active", MitreTags: "T1110", PublishedAt: now.Add(-6 * time.Hour)},
			{ID: "THR-1002", Threat: "Phishing kit impersonating payroll providers", Severity: model.SeverityMedium, Source: "Partner", Status: "active", MitreTags: "T1566,T1204", PublishedAt: now.Add(-12 * time.Hour)},
			{ID: "THR-1003", Threat: "Ransomware affiliate scanning exposed RDP", Severity: model.SeverityCritical, Source: "EDR", Status: "monitoring", MitreTags: "T1021.001", PublishedAt: now.Add(-20 * time.Hour)},
		}
		for _, item := range seedItems {
			if err := s.UpsertThreatFeedItem(ctx, item); err != nil {
				return fmt.Errorf("seed: insert feed item: %w", err)
			}
		}
	}

	return nil
}

// formatTime stores timestamps as RFC3339 UTC strings, matching the seeded rows.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}
