package pipeline

import (
	"fmt"
	"strconv"
)

// Well-known parameter keys. Steps read their own keys at run time, so
// any of these can be set per instance from the CLI.
const (
	// ParamParallel sizes the step's worker pool (default 1).
	ParamParallel = "parallel"
	// ParamQDepth caps in-flight work items for the step (0 = unlimited).
	ParamQDepth = "qdepth"
	// ParamMax is the generator target count (required on generators).
	ParamMax = "max"
	// ParamModel selects the model an LLM step requests.
	ParamModel = "model"
	// ParamModelMax caps committed outputs whose meta.model matches
	// ParamModel.
	ParamModelMax = "model_max"
	// ParamTokenizer selects the chat template for completion mode.
	ParamTokenizer = "tokenizer"
	// ParamTemplate is the text template an ExpandTemplate step renders.
	ParamTemplate = "template"
	// ParamPrompt is the extraction instruction prepended by
	// LLMExtraction.
	ParamPrompt = "prompt"
	// ParamSchemaMode selects how schema_json is conveyed to the backend.
	ParamSchemaMode = "schema_mode"
	// ParamSchemaJSON is the JSON schema for constrained extraction.
	ParamSchemaJSON = "schema_json"
	// ParamMaxTokens overrides the extraction token budget.
	ParamMaxTokens = "max_tokens"
	// ParamFirstKey controls whether extraction unwraps the first key of
	// the extracted object (default true).
	ParamFirstKey = "first_key"
	// ParamWidth, ParamHeight, ParamSteps configure image synthesis.
	ParamWidth  = "width"
	ParamHeight = "height"
	ParamSteps  = "steps"
	// ParamFile is the output path of an export step.
	ParamFile = "file"
)

// Params is a step's free-form string configuration. Values stay strings
// at this boundary; each step parses them into typed values when it runs.
type Params map[string]string

// Get returns the value for key, or "" when unset.
func (p Params) Get(key string) string {
	return p[key]
}

// GetDefault returns the value for key, or def when unset.
func (p Params) GetDefault(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int parses the value for key as an integer, returning def when unset.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %s: %q is not an integer", key, v)
	}
	return n, nil
}

// Bool parses the value for key as a boolean, returning def when unset.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parameter %s: %q is not a boolean", key, v)
	}
	return b, nil
}

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
