package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"portal-api/internal/model"
)

// ListDemoSlots returns all slots ordered by date and time.
func (s *Store) ListDemoSlots(ctx context.Context) ([]model.DemoSlot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,date,time,timezone,capacity,booked,created_at FROM demo_slots ORDER BY date, time`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []model.DemoSlot
	for rows.Next() {
		var (
			slot      model.DemoSlot
			createdAt string
		)
		if err := rows.Scan(&slot.ID, &slot.Date, &slot.Time, &slot.Timezone, &slot.Capacity, &slot.Booked, &createdAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slot.CreatedAt = parseTime(createdAt)
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// GetDemoSlot fetches a single slot.
func (s *Store) GetDemoSlot(ctx context.Context, id string) (model.DemoSlot, error) {
	var (
		slot      model.DemoSlot
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id,date,time,timezone,capacity,booked,created_at FROM demo_slots WHERE id = ?`, id,
	).Scan(&slot.ID, &slot.Date, &slot.Time, &slot.Timezone, &slot.Capacity, &slot.Booked, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DemoSlot{}, ErrNotFound
	}
	if err != nil {
		return model.DemoSlot{}, fmt.Errorf("scan slot: %w", err)
	}
	slot.CreatedAt = parseTime(createdAt)
	return slot, nil
}

// CreateDemoSlot inserts a new bookable slot with a sequential SLOT-NNN id.
func (s *Store) CreateDemoSlot(ctx context.Context, slot model.DemoSlot) (model.DemoSlot, error) {
	if slot.ID == "" {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM demo_slots`).Scan(&count); err != nil {
			return model.DemoSlot{}, fmt.Errorf("count slots: %w", err)
		}
		slot.ID = fmt.Sprintf("SLOT-%03d", count+1)
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO demo_slots(id,date,time,timezone,capacity,booked,created_at) VALUES(?,?,?,?,?,?,?)`,
		slot.ID, slot.Date, slot.Time, slot.Timezone, slot.Capacity, slot.Booked, formatTime(now),
	)
	if err != nil {
		return model.DemoSlot{}, fmt.Errorf("insert slot: %w", err)
	}
	slot.CreatedAt = now
	return slot, nil
}

// BookSlot reserves one unit of slot capacity and records the booking in a
// single transaction. The capacity check and increment are one atomic UPDATE
// guarded by the booked < capacity predicate, so concurrent bookings against
// a near-full slot can never overshoot capacity.
func (s *Store) BookSlot(ctx context.Context, booking model.DemoBooking) (model.DemoBooking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DemoBooking{}, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE demo_slots SET booked = booked + 1 WHERE id = ? AND booked < capacity`, booking.SlotID)
	if err != nil {
		return model.DemoBooking{}, fmt.Errorf("increment slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.DemoBooking{}, fmt.Errorf("increment slot rows: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM demo_slots WHERE id = ?`, booking.SlotID).Scan(&exists); err != nil {
			return model.DemoBooking{}, fmt.Errorf("check slot: %w", err)
		}
		if exists == 0 {
			return model.DemoBooking{}, ErrNotFound
		}
		return model.DemoBooking{}, ErrSlotFull
	}

	if booking.ID == "" {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM demo_bookings`).Scan(&count); err != nil {
			return model.DemoBooking{}, fmt.Errorf("count bookings: %w", err)
		}
		booking.ID = fmt.Sprintf("BOOK-%03d", count+1)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO demo_bookings(id,slot_id,full_name,email,company,attendees,notes,lead_ref,created_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		booking.ID, booking.SlotID, booking.FullName, booking.Email, booking.Company,
		booking.Attendees, booking.Notes, booking.LeadRef, formatTime(now),
	); err != nil {
		return model.DemoBooking{}, fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.DemoBooking{}, fmt.Errorf("commit booking: %w", err)
	}
	booking.CreatedAt = now
	return booking, nil
}

// ListDemoBookings returns bookings, newest first.
func (s *Store) ListDemoBookings(ctx context.Context, limit int) ([]model.DemoBooking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,slot_id,full_name,email,company,attendees,notes,lead_ref,created_at
		 FROM demo_bookings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.DemoBooking
	for rows.Next() {
		var (
			b         model.DemoBooking
			createdAt string
		)
		if err := rows.Scan(&b.ID, &b.SlotID, &b.FullName, &b.Email, &b.Company, &b.Attendees, &b.Notes, &b.LeadRef, &createdAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.CreatedAt = parseTime(createdAt)
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// SetBookingLead links a booking to the lead created for it.
func (s *Store) SetBookingLead(ctx context.Context, bookingID, leadRef string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE demo_bookings SET lead_ref = ? WHERE id = ?`, leadRef, bookingID)
	if err != nil {
		return fmt.Errorf("set booking lead: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set booking lead rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDemoBookings reports the total number of bookings.
func (s *Store) CountDemoBookings(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM demo_bookings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return count, nil
}
