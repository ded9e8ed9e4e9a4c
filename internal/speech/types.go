// Package speech talks to a VOICEVOX compatible speech engine.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
)

// Engine turns text into audio in two steps and joins the results
type Engine interface {
	// CreateDescriptor asks the engine for a synthesis descriptor of text
	CreateDescriptor(ctx context.Context, text, voiceID string) (*Descriptor, error)

	// Render produces a WAV buffer from a descriptor
	Render(ctx context.Context, voiceID string, descriptor *Descriptor) ([]byte, error)

	Joiner
}

// Joiner concatenates ordered WAV buffers into one
type Joiner interface {
	Join(ctx context.Context, segments [][]byte) ([]byte, error)
}

const speedScaleKey = "speedScale"

// Descriptor is the engine's synthesis parameter object. Fields the service
// does not touch are kept verbatim so they round-trip back to the engine.
type Descriptor struct {
	fields map[string]json.RawMessage
}

// NewDescriptor decodes a descriptor from engine JSON
func NewDescriptor(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UnmarshalJSON keeps every field of the engine's object
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("descriptor must be a JSON object: %w", err)
	}
	if fields == nil {
		return fmt.Errorf("descriptor must be a JSON object")
	}
	d.fields = fields
	return nil
}

// MarshalJSON writes the descriptor back out with any local changes
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	if d.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d.fields)
}

// SpeedScale returns the speaking rate multiplier, if present
func (d *Descriptor) SpeedScale() (float64, bool) {
	raw, ok := d.fields[speedScaleKey]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// SetSpeedScale overrides the speaking rate multiplier
func (d *Descriptor) SetSpeedScale(v float64) {
	if d.fields == nil {
		d.fields = make(map[string]json.RawMessage)
	}
	raw, _ := json.Marshal(v)
	d.fields[speedScaleKey] = raw
}

// SpeakerStyle is one selectable voice of a speaker. Its ID is the voice
// identifier passed to CreateDescriptor and Render.
type SpeakerStyle struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Type string `json:"type,omitempty"`
}

// Speaker is a character offered by the engine
type Speaker struct {
	Name        string         `json:"name"`
	SpeakerUUID string         `json:"speaker_uuid"`
	Styles      []SpeakerStyle `json:"styles"`
	Version     string         `json:"version"`
}
