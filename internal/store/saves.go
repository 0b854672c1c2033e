package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Save is one save slot.
type Save struct {
	Slot  string
	RunID string
	Frame int64
	// Data is the document Host.Save wrote.
	Data []byte
}

// WriteSave stores data in slot, replacing what the slot held.
func (s *Store) WriteSave(ctx context.Context, save Save) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saves (slot, run_id, frame, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			run_id = excluded.run_id,
			frame = excluded.frame,
			data = excluded.data
	`, save.Slot, save.RunID, save.Frame, save.Data)
	if err != nil {
		return fmt.Errorf("write save %q: %w", save.Slot, err)
	}
	return nil
}

// ReadSave returns a slot, or ErrNotFound.
func (s *Store) ReadSave(ctx context.Context, slot string) (Save, error) {
	var save Save
	err := s.db.QueryRowContext(ctx, `
		SELECT slot, run_id, frame, data FROM saves WHERE slot = ?
	`, slot).Scan(&save.Slot, &save.RunID, &save.Frame, &save.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Save{}, fmt.Errorf("read save %q: %w", slot, ErrNotFound)
	}
	if err != nil {
		return Save{}, fmt.Errorf("read save %q: %w", slot, err)
	}
	return save, nil
}

// ListSlots returns slot names in byte order.
func (s *Store) ListSlots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot FROM saves ORDER BY slot COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query saves: %w", err)
	}
	defer rows.Close()

	slots := []string{}
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scan save: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saves: %w", err)
	}
	return slots, nil
}
