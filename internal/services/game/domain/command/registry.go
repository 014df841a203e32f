package command

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	// ErrRegistryRequired indicates a nil registry.
	ErrRegistryRequired = errors.New("registry is required")
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrTypeUnknown indicates an unregistered command type.
	ErrTypeUnknown = errors.New("command type is not registered")
	// ErrSessionRequired indicates a command with no session reference.
	ErrSessionRequired = errors.New("command session is required")
	// ErrRoleRequired indicates a missing participant for a required role.
	ErrRoleRequired = errors.New("participant role is required")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Lifecycle marks commands that open or close a session.
type Lifecycle uint8

const (
	// LifecycleNone marks ordinary session commands.
	LifecycleNone Lifecycle = iota
	// LifecycleStart marks the command that creates a session.
	LifecycleStart
	// LifecycleEnd marks the command that ends a session.
	LifecycleEnd
)

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for a command type.
type Definition struct {
	Type Type
	// Owner names the system that handles the command, e.g. "combat".
	Owner           string
	Lifecycle       Lifecycle
	RequiredRoles   []string
	ValidatePayload PayloadValidator
}

// Registry stores command definitions and validates commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new command type definition.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return ErrRegistryRequired
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	def.Owner = strings.TrimSpace(def.Owner)
	if def.Owner == "" {
		return fmt.Errorf("command %s: owner is required", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("command type already registered: %s", def.Type)
	}
	def.RequiredRoles = append([]string(nil), def.RequiredRoles...)
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the definition for cmdType.
func (r *Registry) Definition(cmdType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[Type(strings.TrimSpace(string(cmdType)))]
	return def, ok
}

// ListDefinitions returns a stable, sorted snapshot of registered definitions.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].Type < definitions[j].Type
	})
	return definitions
}

// Validate normalizes cmd and checks it against its definition. The payload
// is rewritten to canonical JSON so recorded logs diff cleanly.
func (r *Registry) Validate(cmd Command) (Command, Definition, error) {
	if r == nil {
		return Command{}, Definition{}, ErrRegistryRequired
	}
	cmd = cmd.Clone()
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return Command{}, Definition{}, ErrTypeRequired
	}
	def, ok := r.definitions[cmd.Type]
	if !ok {
		return Command{}, Definition{}, fmt.Errorf("%w: %s", ErrTypeUnknown, cmd.Type)
	}
	cmd.Session.StableID = strings.TrimSpace(cmd.Session.StableID)
	if cmd.Session.Empty() {
		return Command{}, Definition{}, ErrSessionRequired
	}
	for i := range cmd.Participants {
		cmd.Participants[i].StableID = strings.TrimSpace(cmd.Participants[i].StableID)
		cmd.Participants[i].Role = strings.TrimSpace(cmd.Participants[i].Role)
	}
	// An unnamed spawn is named by the world after validation.
	for _, role := range def.RequiredRoles {
		ref, ok := cmd.Participant(role)
		if !ok || (ref.Empty() && !ref.Spawn) {
			return Command{}, Definition{}, fmt.Errorf("%w: %s", ErrRoleRequired, role)
		}
	}

	canonical, err := CanonicalPayload(cmd.PayloadJSON)
	if err != nil {
		return Command{}, Definition{}, err
	}
	cmd.PayloadJSON = canonical
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(cmd.PayloadJSON)); err != nil {
			return Command{}, Definition{}, fmt.Errorf("payload invalid: %w", err)
		}
	}
	return cmd, def, nil
}

// CanonicalPayload re-encodes raw with sorted object keys and no insignificant
// whitespace. An empty payload becomes "{}".
func CanonicalPayload(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, ErrPayloadInvalid
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonical payload json: %w", err)
	}
	return canonical, nil
}

// DecodePayload unmarshals the command payload into target.
func DecodePayload(cmd Command, target any) error {
	payload := cmd.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s payload: %w", cmd.Type, err)
	}
	return nil
}

// EncodePayload marshals value into canonical payload JSON.
func EncodePayload(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return CanonicalPayload(raw)
}
