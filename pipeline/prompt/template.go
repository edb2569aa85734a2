// Package prompt renders prompts: chat templates for completion-mode
// backends and text templates for variable expansion.
package prompt

import (
	"fmt"
	"sync"

	"github.com/worldforge/scribe/pipeline/llm"
)

// ChatTemplate flattens a chat conversation into the single prompt string
// a legacy /completions backend expects, the way the model's tokenizer
// would.
//
// Two templates ship built in, selected by the magic names
// "internal:vicuna" and "internal:alpaca". Anything else must be
// registered by the host application (for example, a wrapper around a
// HuggingFace tokenizer service) before the pipeline runs.
type ChatTemplate interface {
	// Name identifies the template in record metadata.
	Name() string

	// Apply renders the conversation. The first system message (default
	// "You are a helpful assistant."), the first user message, and the
	// first assistant message (default empty, leaving the generation
	// open) participate.
	Apply(messages []llm.Message) string
}

// templateFunc adapts a formatting function to ChatTemplate.
type templateFunc struct {
	name string
	fn   func(system, user, assistant string) string
}

func (t *templateFunc) Name() string { return t.name }

func (t *templateFunc) Apply(messages []llm.Message) string {
	system := "You are a helpful assistant."
	user := ""
	assistant := ""
	seenSystem, seenUser, seenAssistant := false, false, false
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			if !seenSystem {
				system = m.Content
				seenSystem = true
			}
		case llm.RoleUser:
			if !seenUser {
				user = m.Content
				seenUser = true
			}
		case llm.RoleAssistant:
			if !seenAssistant {
				assistant = m.Content
				seenAssistant = true
			}
		}
	}
	return t.fn(system, user, assistant)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ChatTemplate{
		"internal:vicuna": &templateFunc{
			name: "vicuna",
			fn: func(system, user, assistant string) string {
				return fmt.Sprintf("SYSTEM: %s\n\nUSER: %s\n\nASSISTANT:%s", system, user, assistant)
			},
		},
		"internal:alpaca": &templateFunc{
			name: "alpaca",
			fn: func(system, user, assistant string) string {
				return fmt.Sprintf("### Instruction:\n%s\n\n### Input:\n%s\n\n### Response:%s", system, user, assistant)
			},
		},
	}
)

// Register makes a chat template available under the given tokenizer name.
// Registering a name twice replaces the earlier template.
func Register(name string, t ChatTemplate) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = t
}

// Build resolves a tokenizer name to its chat template. Unknown names are
// an error: silently sending an un-templated prompt to a completion
// backend produces garbage generations that are expensive to notice.
func Build(name string) (ChatTemplate, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if t, ok := registry[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown tokenizer %q (built in: internal:vicuna, internal:alpaca; others must be registered)", name)
}
