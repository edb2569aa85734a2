// Package steps provides the built-in step kinds: variable generation,
// template expansion, chat/completion requests, schema-constrained
// extraction, image synthesis, JSON parsing, and JSONL export.
//
// Each constructor returns a *pipeline.Step prototype suitable for a
// Registry. Steps read their parameters when they run, so CLI overlays
// (model, tokenizer, parallel, ...) take effect without re-wiring.
package steps

import (
	"fmt"
	"time"

	"github.com/worldforge/scribe/pipeline"
)

// textInput coerces a step input to the string the step operates on.
// Upstream steps commit rendered prompts and model answers as JSON
// strings, so anything else reaching a text step is a pipeline wiring
// mistake worth failing loudly on.
func textInput(step string, input any) (string, error) {
	s, ok := input.(string)
	if !ok {
		return "", &pipeline.ValidationError{
			Step: step,
			Msg:  fmt.Sprintf("input must be text, got %T", input),
		}
	}
	return s, nil
}

// timestamp is the meta timestamp convention: fractional seconds since
// the epoch.
func timestamp() float64 {
	return float64(time.Now().UnixMicro()) / 1e6
}
