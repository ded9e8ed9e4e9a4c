package podcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role identifies which of the two hosts speaks a turn
type Role string

const (
	RoleLead    Role = "lead"    // Drives the explanation
	RoleSupport Role = "support" // Reacts and asks questions
)

// Roles lists every valid role in a stable order
var Roles = []Role{RoleLead, RoleSupport}

// Valid reports whether r is one of the two known roles
func (r Role) Valid() bool {
	return r == RoleLead || r == RoleSupport
}

// String returns the wire value of the role
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a wire value into a Role
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// UnmarshalJSON rejects any role outside the closed set
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("role must be a string: %w", err)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Turn is one utterance in the conversation
type Turn struct {
	Role    Role   `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// Script is the ordered conversation. The index of a turn is its ordering
// key for every later stage.
type Script struct {
	Turns []Turn `json:"conversation" bson:"conversation"`
}

// Len returns the number of turns
func (s Script) Len() int {
	return len(s.Turns)
}

// Validate checks every turn against the turn schema
func (s Script) Validate() error {
	for i, turn := range s.Turns {
		if !turn.Role.Valid() {
			return &SchemaValidationError{
				Index:  i,
				Field:  "role",
				Reason: fmt.Sprintf("%q is not one of lead, support", string(turn.Role)),
			}
		}
		if strings.TrimSpace(turn.Content) == "" {
			return &SchemaValidationError{Index: i, Field: "content", Reason: "empty"}
		}
	}
	return nil
}

// VoiceAssignment maps each role to an opaque voice identifier
type VoiceAssignment struct {
	Lead    string `json:"lead_voice" bson:"lead_voice"`
	Support string `json:"support_voice" bson:"support_voice"`
}

// ErrInvalidVoices is wrapped by every voice assignment validation failure
var ErrInvalidVoices = errors.New("invalid voice assignment")

// Validate requires both voices to be set
func (v VoiceAssignment) Validate() error {
	if strings.TrimSpace(v.Lead) == "" {
		return fmt.Errorf("%w: lead voice is required", ErrInvalidVoices)
	}
	if strings.TrimSpace(v.Support) == "" {
		return fmt.Errorf("%w: support voice is required", ErrInvalidVoices)
	}
	return nil
}

// VoiceFor resolves the voice identifier for a role
func (v VoiceAssignment) VoiceFor(role Role) (string, error) {
	switch role {
	case RoleLead:
		return v.Lead, nil
	case RoleSupport:
		return v.Support, nil
	default:
		return "", fmt.Errorf("no voice for role %q", string(role))
	}
}

// Segment is the synthesized audio of a single turn
type Segment struct {
	Index int
	Audio []byte
}

// PodcastAudio is the joined audio of a whole conversation
type PodcastAudio []byte
