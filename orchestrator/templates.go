package orchestrator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/corvid-labs/agentchain/types"
)

// TemplateStep is one step of a workflow template. Prerequisites reference
// other steps by ID and gate execution order.
type TemplateStep struct {
	ID            string   `json:"id"`
	AgentType     string   `json:"agent_type"`
	Description   string   `json:"description"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Template is a named, ordered list of steps.
type Template struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       []TemplateStep `json:"steps"`
}

// Validate checks step IDs are unique and prerequisites resolve.
func (t Template) Validate() error {
	ids := make(map[string]bool, len(t.Steps))
	for _, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("template %s: step with empty id", t.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("template %s: duplicate step id %q", t.Name, s.ID)
		}
		ids[s.ID] = true
	}
	for _, s := range t.Steps {
		for _, p := range s.Prerequisites {
			if !ids[p] {
				return fmt.Errorf("template %s: step %q requires unknown step %q", t.Name, s.ID, p)
			}
		}
	}
	return nil
}

// templateSet is the orchestrator's registered templates.
type templateSet struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func newTemplateSet() *templateSet {
	return &templateSet{templates: make(map[string]Template)}
}

func (s *templateSet) register(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Name] = t
	return nil
}

func (s *templateSet) get(name string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return Template{}, types.NewError(types.ErrTemplateNotFound, "unknown workflow template: "+name)
	}
	return t, nil
}

func (s *templateSet) list() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
