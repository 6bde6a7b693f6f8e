package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a persona id has no entry in the registry.
var ErrNotFound = errors.New("persona not found")

// Persona is a named role with a system prompt and a default voice.
// Personas are immutable once registered; the pipeline only reads them.
type Persona struct {
	ID           string `yaml:"id" json:"id"`
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description" json:"description"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
	DefaultVoice string `yaml:"default_voice" json:"default_voice"`
	AvatarURL    string `yaml:"avatar_url,omitempty" json:"avatar_url,omitempty"`
}

// Registry holds the persona catalog.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Persona
	order []string
}

// Defaults returns the built-in persona catalog.
func Defaults() []Persona {
	return []Persona{
		{
			ID:           "socrates",
			Name:         "Socrates",
			Description:  "Ancient Greek philosopher who leads by questioning",
			SystemPrompt: "You are Socrates. Guide the user with the Socratic method, asking three to five probing questions that help them reach their own answer. Stay patient and gentle.",
			DefaultVoice: "echo",
		},
		{
			ID:           "sherlock",
			Name:         "Sherlock Holmes",
			Description:  "Consulting detective with sharp observation and deduction",
			SystemPrompt: "You are Sherlock Holmes. Focus on detail and logical deduction, speak with confident, slightly aloof short sentences.",
			DefaultVoice: "onyx",
		},
	}
}

// NewRegistry builds a registry seeded with the built-in personas and,
// when path is non-empty, merged with a YAML catalog file. File entries
// win over built-ins with the same id.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{byID: make(map[string]Persona)}
	for _, p := range Defaults() {
		r.add(p)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read persona catalog: %w", err)
		}
		var loaded []Persona
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("parse persona catalog: %w", err)
		}
		for _, p := range loaded {
			if p.ID == "" || p.SystemPrompt == "" {
				return nil, fmt.Errorf("persona %q must have id and system_prompt", p.Name)
			}
			r.add(p)
		}
	}
	return r, nil
}

func (r *Registry) add(p Persona) {
	if _, exists := r.byID[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Get looks up a persona by id.
func (r *Registry) Get(id string) (Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// List returns all personas in registration order.
func (r *Registry) List() []Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Create registers a new persona, deriving an id from its name.
func (r *Registry) Create(name, description, systemPrompt, defaultVoice string) (Persona, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(systemPrompt) == "" {
		return Persona{}, errors.New("persona name and system_prompt are required")
	}
	if defaultVoice == "" {
		defaultVoice = "alloy"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("%s_%d", strings.ReplaceAll(strings.ToLower(name), " ", "_"), len(r.byID))
	p := Persona{
		ID:           id,
		Name:         name,
		Description:  description,
		SystemPrompt: systemPrompt,
		DefaultVoice: defaultVoice,
	}
	r.add(p)
	return p, nil
}
