// Package history keeps an append-only SQLite log of bulb colour changes and
// poll failures. Every row carries the id of the process run that wrote it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/bulb"
	"github.com/dokzlo13/huestrip/internal/color"
	"github.com/dokzlo13/huestrip/internal/eventbus"
)

// FailureWindow suppresses repeats of the same poll error. A bridge that is
// down fails every poll; one row per window is enough.
const FailureWindow = time.Minute

// Entry represents a single row in the history
type Entry struct {
	ID        int64              `json:"id"`
	RunID     string             `json:"run_id"`
	EventType eventbus.EventType `json:"event_type"`
	Timestamp time.Time          `json:"timestamp"`
	Light     int                `json:"light,omitempty"`
	Side      string             `json:"side,omitempty"`
	State     bulb.State         `json:"state"`
	Color     color.RGB          `json:"color"`
	Error     string             `json:"error,omitempty"`
}

// History provides append-only event logging
type History struct {
	db    *sql.DB
	runID string
	now   func() time.Time

	mu          sync.Mutex
	lastFailure string
	lastFailAt  time.Time
}

// New creates a new History using the provided database connection
func New(db *sql.DB) *History {
	return &History{
		db:    db,
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

// RunID identifies this process in the history.
func (h *History) RunID() string { return h.runID }

// Subscribe records bus events from now on.
func (h *History) Subscribe(bus *eventbus.Bus) {
	handler := func(e eventbus.Event) {
		if err := h.Record(e); err != nil {
			log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Failed to record history")
		}
	}
	bus.Subscribe(eventbus.EventTypeBulbChanged, handler)
	bus.Subscribe(eventbus.EventTypePollFailed, handler)
}

// Record appends an event. Repeated identical poll failures inside
// FailureWindow are skipped.
func (h *History) Record(e eventbus.Event) error {
	ts := e.Time
	if ts.IsZero() {
		ts = h.now()
	}

	switch e.Type {
	case eventbus.EventTypeBulbChanged:
		h.mu.Lock()
		h.lastFailure = ""
		h.mu.Unlock()

		rgb := color.ToRGB(e.Color)
		_, err := h.db.Exec(`
			INSERT INTO bulb_history
				(run_id, event_type, timestamp, light_id, side, is_on, brightness, color_mode, ct, x, y, r, g, b)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, h.runID, string(e.Type), ts.UnixMilli(), e.Light, e.Side, e.State.On, e.State.Brightness,
			e.State.ColorMode, e.State.CT, e.State.XY[0], e.State.XY[1], rgb.R, rgb.G, rgb.B)
		if err != nil {
			return fmt.Errorf("failed to insert bulb change: %w", err)
		}
		return nil

	case eventbus.EventTypePollFailed:
		msg := "unknown error"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		if !h.shouldRecordFailure(msg, ts) {
			return nil
		}

		_, err := h.db.Exec(`
			INSERT INTO bulb_history (run_id, event_type, timestamp, error)
			VALUES (?, ?, ?, ?)
		`, h.runID, string(e.Type), ts.UnixMilli(), msg)
		if err != nil {
			return fmt.Errorf("failed to insert poll failure: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
}

func (h *History) shouldRecordFailure(msg string, ts time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg == h.lastFailure && ts.Sub(h.lastFailAt) < FailureWindow {
		return false
	}
	h.lastFailure = msg
	h.lastFailAt = ts
	return true
}

// Recent returns the newest entries, newest first.
func (h *History) Recent(limit int) ([]*Entry, error) {
	rows, err := h.db.Query(`
		SELECT id, run_id, event_type, timestamp, light_id, side, is_on, brightness, color_mode,
			ct, x, y, r, g, b, error
		FROM bulb_history
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ForLight returns the newest colour changes of one light, newest first.
func (h *History) ForLight(light, limit int) ([]*Entry, error) {
	rows, err := h.db.Query(`
		SELECT id, run_id, event_type, timestamp, light_id, side, is_on, brightness, color_mode,
			ct, x, y, r, g, b, error
		FROM bulb_history
		WHERE light_id = ? AND event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, light, string(eventbus.EventTypeBulbChanged), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (h *History) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := h.now().Add(-retention).UnixMilli()
	result, err := h.db.Exec(`DELETE FROM bulb_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunCleanup periodically deletes entries older than retention until ctx is cancelled.
func (h *History) RunCleanup(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := h.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old history entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old history entries")
			}
		}
	}
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var timestamp int64
		var light, brightness sql.NullInt64
		var on sql.NullBool
		var side, mode, errMsg sql.NullString
		var ct, x, y, r, g, b sql.NullFloat64

		err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.EventType, &timestamp, &light, &side, &on, &brightness, &mode,
			&ct, &x, &y, &r, &g, &b, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Light = int(light.Int64)
		entry.Side = side.String
		entry.State = bulb.State{
			On:         on.Bool,
			Brightness: int(brightness.Int64),
			ColorMode:  mode.String,
			CT:         ct.Float64,
			XY:         [2]float64{x.Float64, y.Float64},
		}
		entry.Color = color.RGB{R: r.Float64, G: g.Float64, B: b.Float64}
		entry.Error = errMsg.String

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
