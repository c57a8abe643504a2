// Package engine implements the capability registry, the delegation
// dispatcher, and the rules router.
package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/Marcus990/Cymbal-Bank-Orchestra/core"
)

// Registry maps capability names to their definitions. It is populated once
// at process start, verified, and read-only afterwards, so it is safely
// shared by all sessions.
type Registry struct {
	mu       sync.RWMutex
	caps     map[string]*core.Capability
	schemas  map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		caps:     make(map[string]*core.Capability),
		schemas:  make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
	}
}

// Register adds a capability. It fails with core.ErrDuplicateName if the name
// is taken and compiles the input schema so arguments can be validated before
// dispatch.
func (r *Registry) Register(cap *core.Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.caps[cap.Name]; ok {
		return fmt.Errorf("%w: %s", core.ErrDuplicateName, cap.Name)
	}

	if cap.InputSchema != nil {
		raw, err := json.Marshal(cap.InputSchema)
		if err != nil {
			return fmt.Errorf("capability %s: marshal input schema: %w", cap.Name, err)
		}
		schema, err := r.compiler.Compile(raw)
		if err != nil {
			return fmt.Errorf("capability %s: compile input schema: %w", cap.Name, err)
		}
		r.schemas[cap.Name] = schema
	}

	r.caps[cap.Name] = cap
	return nil
}

// RegisterAll adds multiple capabilities, stopping at the first failure.
func (r *Registry) RegisterAll(caps ...*core.Capability) error {
	for _, cap := range caps {
		if err := r.Register(cap); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the capability for name or core.ErrUnknownCapability.
func (r *Registry) Resolve(name string) (*core.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cap, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownCapability, name)
	}
	return cap, nil
}

// List returns all registered capability names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	return names
}

// Capabilities returns the definitions for the given names, skipping any that
// are not registered. Used by planners to describe the available surface.
func (r *Registry) Capabilities(names []string) []*core.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]*core.Capability, 0, len(names))
	for _, name := range names {
		if cap, ok := r.caps[name]; ok {
			caps = append(caps, cap)
		}
	}
	return caps
}

// Verify checks that every capability referenced by another (sub-agent
// member, lister, escalation target) exists. Called once after registration
// so unresolved references fail fast at startup, not mid-conversation.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, cap := range r.caps {
		for _, ref := range cap.References() {
			if _, ok := r.caps[ref]; !ok {
				return fmt.Errorf("capability %s references %w: %s", name, core.ErrUnknownCapability, ref)
			}
		}
	}
	return nil
}

// ValidateArguments checks args against the capability's input schema.
// Missing required fields and type mismatches fail the delegation before
// dispatch; they are never silently ignored.
func (r *Registry) ValidateArguments(name string, args map[string]any) error {
	r.mu.RLock()
	cap, ok := r.caps[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrUnknownCapability, name)
	}
	if cap.InputSchema == nil {
		return nil
	}

	if missing := missingRequired(cap.InputSchema, args); len(missing) > 0 {
		return &core.ValidationError{Capability: name, Missing: missing}
	}

	if schema != nil {
		if args == nil {
			args = map[string]any{}
		}
		result := schema.Validate(args)
		if !result.IsValid() {
			return &core.ValidationError{Capability: name, Detail: fmt.Sprintf("%v", result.Errors)}
		}
	}
	return nil
}

func missingRequired(schema map[string]any, args map[string]any) []string {
	var required []string
	switch req := schema["required"].(type) {
	case []string:
		required = req
	case []any:
		for _, v := range req {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}

	var missing []string
	for _, field := range required {
		if v, ok := args[field]; !ok || v == nil || v == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
