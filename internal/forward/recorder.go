package forward

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
)

// Recorder upserts every device and group address seen on the bus into the
// knx_devices and knx_group_addresses tables.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	db *sql.DB

	mu         sync.Mutex
	gaStmt     *sql.Stmt
	deviceStmt *sql.Stmt
}

// NewRecorder prepares the upsert statements. The schema must already be
// migrated.
func NewRecorder(ctx context.Context, db *sql.DB) (*Recorder, error) {
	gaStmt, err := db.PrepareContext(ctx, `
		INSERT INTO knx_group_addresses
			(group_address, first_seen, last_seen, message_count, has_read_response, last_service, last_payload)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1,
			has_read_response = MAX(has_read_response, excluded.has_read_response),
			last_service = excluded.last_service,
			last_payload = excluded.last_payload
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing group address upsert: %w", err)
	}

	deviceStmt, err := db.PrepareContext(ctx, `
		INSERT INTO knx_devices (individual_address, first_seen, last_seen, message_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		gaStmt.Close()
		return nil, fmt.Errorf("preparing device upsert: %w", err)
	}

	return &Recorder{db: db, gaStmt: gaStmt, deviceStmt: deviceStmt}, nil
}

func (r *Recorder) Name() string { return "recorder" }

// Write records the source device (except 0.0.0) and, for group frames,
// the destination group address.
func (r *Recorder) Write(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gaStmt == nil {
		return ErrClosed
	}

	now := rec.Time.Unix()

	if rec.Source != 0 {
		if _, err := r.deviceStmt.ExecContext(ctx, rec.Source.String(), now, now); err != nil {
			return fmt.Errorf("recording device %s: %w", rec.Source, err)
		}
	}

	if !rec.Group {
		return nil
	}

	hasResponse := 0
	if rec.IsResponse() {
		hasResponse = 1
	}
	if _, err := r.gaStmt.ExecContext(ctx,
		rec.Address.String(), now, now, hasResponse, rec.Service, hex.EncodeToString(rec.Payload),
	); err != nil {
		return fmt.Errorf("recording group address %s: %w", rec.Address, err)
	}
	return nil
}

// GroupAddressCount returns the number of recorded group addresses.
func (r *Recorder) GroupAddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_group_addresses`).Scan(&count)
	return count, err
}

// DeviceCount returns the number of recorded devices.
func (r *Recorder) DeviceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knx_devices`).Scan(&count)
	return count, err
}

// Close releases the prepared statements. Safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gaStmt == nil {
		return nil
	}
	err := r.gaStmt.Close()
	if derr := r.deviceStmt.Close(); err == nil {
		err = derr
	}
	r.gaStmt, r.deviceStmt = nil, nil
	return err
}
