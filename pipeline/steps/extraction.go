package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
)

// Schema conveyance modes for NewLLMExtraction. Backends disagree on how
// a response schema travels in the request body, so the mode names the
// backend dialect rather than the abstract intent.
const (
	// SchemaModeNone sends no constraint; the prompt alone must elicit
	// JSON.
	SchemaModeNone = "none"
	// SchemaModeOpenAIJSON requests response_format {"type":"json_object"}.
	SchemaModeOpenAIJSON = "openai-json"
	// SchemaModeOpenAISchema requests response_format json_schema with
	// strict validation.
	SchemaModeOpenAISchema = "openai-schema"
	// SchemaModeVLLM passes the schema as vLLM's guided_json field.
	SchemaModeVLLM = "vllm"
	// SchemaModeLlama passes the schema as llama.cpp's json_schema field.
	SchemaModeLlama = "llama"
)

// NewLLMExtraction returns a step that asks the model to restate an input
// document as structured JSON and commits the parsed value.
//
// The "prompt" parameter (the extraction instruction) is prepended to the
// input text. Decoding runs at temperature 0 with a "max_tokens" budget
// (default 3000); "schema_mode" and "schema_json" select how the response
// schema is enforced. The model's answer is scanned for a JSON object and
// parsed; by default the first key's value is committed rather than the
// wrapping object ("first_key=false" keeps the object). An answer with no
// parseable JSON yields an empty result, which releases the output slot
// so a later run can retry the extraction.
func NewLLMExtraction(client llm.Requester, name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
	return &pipeline.Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(ctx context.Context, step *pipeline.Step, id string, input any) (pipeline.Result, error) {
			model := step.Params.Get(pipeline.ParamModel)
			if model == "" {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: "model parameter is required"}
			}
			instruction := step.Params.Get(pipeline.ParamPrompt)
			if instruction == "" {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: "prompt parameter is required"}
			}
			text, err := textInput(step.Name, input)
			if err != nil {
				return pipeline.Result{}, err
			}
			maxTokens, err := step.Params.Int(pipeline.ParamMaxTokens, 3000)
			if err != nil {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
			}
			firstKey, err := step.Params.Bool(pipeline.ParamFirstKey, true)
			if err != nil {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
			}

			sampler := llm.Sampler{
				"temperature": 0.0,
				"max_tokens":  maxTokens,
			}
			mode := step.Params.GetDefault(pipeline.ParamSchemaMode, SchemaModeNone)
			if err := applySchemaMode(sampler, step, mode); err != nil {
				return pipeline.Result{}, err
			}

			messages := []llm.Message{{Role: llm.RoleUser, Content: instruction + "\n\n" + text}}
			answers, err := client.Request(ctx, false, model, messages, sampler, 1)
			if err != nil {
				return pipeline.Result{}, err
			}

			value, err := llm.ExtractJSON(answers[0], firstKey)
			if err != nil {
				// Unparseable answer. Empty result aborts the slot, so the
				// extraction is retried on a later run rather than poisoning
				// the dataset.
				return pipeline.Result{}, nil
			}

			return pipeline.Result{
				Payload: value,
				Meta: pipeline.Meta{
					"timestamp":   timestamp(),
					"model":       model,
					"schema_mode": mode,
					"sampler":     map[string]any(sampler),
				},
			}, nil
		}),
	}
}

// applySchemaMode merges the schema constraint for the given backend
// dialect into the sampler.
func applySchemaMode(sampler llm.Sampler, step *pipeline.Step, mode string) error {
	if mode == SchemaModeNone {
		return nil
	}
	if mode == SchemaModeOpenAIJSON {
		sampler["response_format"] = map[string]any{"type": "json_object"}
		return nil
	}

	raw := step.Params.Get(pipeline.ParamSchemaJSON)
	if raw == "" {
		return &pipeline.ValidationError{
			Step: step.Name,
			Msg:  fmt.Sprintf("schema_mode %q requires schema_json", mode),
		}
	}
	var schema any
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return &pipeline.ValidationError{
			Step: step.Name,
			Msg:  fmt.Sprintf("schema_json is not valid JSON: %v", err),
		}
	}

	switch mode {
	case SchemaModeOpenAISchema:
		sampler["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"strict": true,
				"name":   step.Name,
				"schema": schema,
			},
		}
	case SchemaModeVLLM:
		sampler["guided_json"] = schema
	case SchemaModeLlama:
		sampler["json_schema"] = schema
	default:
		return &pipeline.ValidationError{
			Step: step.Name,
			Msg:  fmt.Sprintf("unknown schema_mode %q", mode),
		}
	}
	return nil
}
