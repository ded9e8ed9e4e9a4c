// Package generation talks to hosted language models. The rest of the
// service only sees Backend, so stages can be tested with a fake.
package generation

import "context"

// Message roles understood by every backend
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role-tagged input message
type Message struct {
	Role    string
	Content string
}

// Options are the per-call sampling knobs
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	ReasoningBudget int32 // 0 disables extended reasoning
	Permissive      bool  // Disable content safety blocking for every harm category
}

// Schema type names
const (
	TypeObject = "object"
	TypeArray  = "array"
	TypeString = "string"
)

// Schema is a provider-neutral description of a JSON response shape
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
}

// Request is a single generation call. When Schema is set the backend must
// return JSON matching it.
type Request struct {
	Messages []Message
	Options  Options
	Schema   *Schema
}

// Backend produces text for a request
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// User builds a user message
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
