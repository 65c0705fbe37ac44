package state

import (
	"context"
	"encoding/json"
	"time"
)

const DailyPulseCursorKey = "daily_pulse_membership_cursor_v1"

// Cursor marks a position in the membership table for incremental batch
// walks, ordered by (created_at, id).
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// DecodeCursor parses a stored cursor. Any malformed or incomplete value
// decodes to nil, restarting the walk from the beginning.
func DecodeCursor(raw *string) *Cursor {
	if raw == nil || *raw == "" {
		return nil
	}

	var wire struct {
		CreatedAt string `json:"createdAt"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal([]byte(*raw), &wire); err != nil {
		return nil
	}
	if wire.CreatedAt == "" || wire.ID == "" {
		return nil
	}
	at, err := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	if err != nil {
		return nil
	}
	return &Cursor{CreatedAt: at, ID: wire.ID}
}

func EncodeCursor(c Cursor) string {
	body, _ := json.Marshal(struct {
		CreatedAt string `json:"createdAt"`
		ID        string `json:"id"`
	}{
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
		ID:        c.ID,
	})
	return string(body)
}

func LoadDailyPulseCursor(ctx context.Context, store Store) (*Cursor, error) {
	raw, err := store.LoadSchedulerState(ctx, DailyPulseCursorKey)
	if err != nil {
		return nil, err
	}
	return DecodeCursor(raw), nil
}

func SaveDailyPulseCursor(ctx context.Context, store Store, c *Cursor) error {
	if c == nil {
		return store.SaveSchedulerState(ctx, DailyPulseCursorKey, "")
	}
	return store.SaveSchedulerState(ctx, DailyPulseCursorKey, EncodeCursor(*c))
}
