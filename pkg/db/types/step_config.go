package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StepConfig is the typed jsonb payload hanging off a sequence step. Today
// only dm steps carry configuration; unknown keys are preserved on round-trip
// so older rows survive schema growth.
type StepConfig struct {
	DMText *string `json:"dm_text,omitempty"`

	extra map[string]json.RawMessage
}

func (c *StepConfig) Scan(src any) error {
	if src == nil {
		*c = StepConfig{}
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("StepConfig: unsupported Scan type %T", src)
	}

	if len(raw) == 0 {
		*c = StepConfig{}
		return nil
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("StepConfig: parse jsonb: %w", err)
	}

	out := StepConfig{}
	if dm, ok := fields["dm_text"]; ok {
		var text string
		if err := json.Unmarshal(dm, &text); err != nil {
			return fmt.Errorf("StepConfig: parse dm_text: %w", err)
		}
		out.DMText = &text
		delete(fields, "dm_text")
	}
	if len(fields) > 0 {
		out.extra = fields
	}

	*c = out
	return nil
}

func (c StepConfig) Value() (driver.Value, error) {
	fields := map[string]json.RawMessage{}
	for k, v := range c.extra {
		fields[k] = v
	}
	if c.DMText != nil {
		encoded, err := json.Marshal(*c.DMText)
		if err != nil {
			return nil, fmt.Errorf("StepConfig: encode dm_text: %w", err)
		}
		fields["dm_text"] = encoded
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("StepConfig: encode jsonb: %w", err)
	}
	return string(encoded), nil
}
