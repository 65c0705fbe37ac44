// Package state treats the scheduler_state key/value table as a minimal
// embedded document store: one row per named cursor or control snapshot,
// opaque JSON text, last-writer-wins. Reads never fail on malformed input;
// they substitute defaults.
package state

import (
	"context"
	"encoding/json"
)

// Store reads and writes one scheduler_state row. Load returns nil when the
// key is absent.
type Store interface {
	LoadSchedulerState(ctx context.Context, key string) (*string, error)
	SaveSchedulerState(ctx context.Context, key string, cursor string) error
}

const DailyPulseControlsKey = "daily_pulse_controls_v1"

// DailyPulseControls is the ops-editable snapshot governing the daily pulse
// enqueue window.
type DailyPulseControls struct {
	Enabled      bool `json:"enabled"`
	StartHour    int  `json:"startHour"`
	EndHour      int  `json:"endHour"`
	StrictWindow bool `json:"strictWindow"`
}

func DefaultDailyPulseControls() DailyPulseControls {
	return DailyPulseControls{
		Enabled:      true,
		StartHour:    2,
		EndHour:      5,
		StrictWindow: false,
	}
}

// ParseDailyPulseControls decodes a raw cursor, falling back to defaults for
// anything absent or malformed. Concurrent writers may leave stale or broken
// JSON behind; a broken row must never stop the scheduler.
func ParseDailyPulseControls(cursor *string) DailyPulseControls {
	defaults := DefaultDailyPulseControls()
	if cursor == nil || *cursor == "" {
		return defaults
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(*cursor), &raw); err != nil {
		return defaults
	}

	out := defaults
	if v, ok := raw["enabled"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			out.Enabled = b
		}
	}
	if v, ok := raw["startHour"]; ok {
		var n int
		if json.Unmarshal(v, &n) == nil && n >= 0 && n <= 23 {
			out.StartHour = n
		}
	}
	if v, ok := raw["endHour"]; ok {
		var n int
		if json.Unmarshal(v, &n) == nil && n >= 0 && n <= 23 {
			out.EndHour = n
		}
	}
	if v, ok := raw["strictWindow"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			out.StrictWindow = b
		}
	}
	return out
}

func LoadDailyPulseControls(ctx context.Context, store Store) (DailyPulseControls, error) {
	cursor, err := store.LoadSchedulerState(ctx, DailyPulseControlsKey)
	if err != nil {
		return DefaultDailyPulseControls(), err
	}
	return ParseDailyPulseControls(cursor), nil
}

func SaveDailyPulseControls(ctx context.Context, store Store, controls DailyPulseControls) error {
	body, err := json.Marshal(controls)
	if err != nil {
		return err
	}
	return store.SaveSchedulerState(ctx, DailyPulseControlsKey, string(body))
}
