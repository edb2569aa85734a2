package steps

import (
	"errors"
	"reflect"
	"testing"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
)

const testSchema = `{"type": "object", "properties": {"worlds": {"type": "array"}}}`

func extractionStep(backend llm.Requester, params pipeline.Params) *pipeline.Step {
	base := pipeline.Params{
		pipeline.ParamModel:  "gemma-2-9b",
		pipeline.ParamPrompt: "Extract the worlds as JSON.",
	}
	for k, v := range params {
		base[k] = v
	}
	return NewLLMExtraction(backend, "Clean", "idea", "world_list", base)
}

func TestLLMExtraction(t *testing.T) {
	backend := &stubLLM{answers: []string{`Sure: {"worlds": [{"name": "Drift"}]} done`}}
	step := extractionStep(backend, nil)

	res, err := runStep(t, step, "id-1", "Two worlds were described...")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// first_key defaults to true: the wrapping object is unwrapped.
	want := []any{map[string]any{"name": "Drift"}}
	if !reflect.DeepEqual(res.Payload, want) {
		t.Errorf("payload = %v, want %v", res.Payload, want)
	}

	call := backend.lastCall(t)
	if call.completion {
		t.Error("completion = true, want chat mode")
	}
	wantPrompt := "Extract the worlds as JSON.\n\nTwo worlds were described..."
	if call.messages[0].Content != wantPrompt {
		t.Errorf("prompt = %q, want instruction prepended", call.messages[0].Content)
	}
	if call.sampler["temperature"] != 0.0 {
		t.Errorf("temperature = %v, want 0", call.sampler["temperature"])
	}
	if call.sampler["max_tokens"] != 3000 {
		t.Errorf("max_tokens = %v, want default 3000", call.sampler["max_tokens"])
	}
	if res.Meta["model"] != "gemma-2-9b" || res.Meta["schema_mode"] != SchemaModeNone {
		t.Errorf("meta = %v", res.Meta)
	}
}

func TestLLMExtractionKeepWrapper(t *testing.T) {
	backend := &stubLLM{answers: []string{`{"worlds": []}`}}
	step := extractionStep(backend, pipeline.Params{pipeline.ParamFirstKey: "false"})

	res, err := runStep(t, step, "id-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := map[string]any{"worlds": []any{}}
	if !reflect.DeepEqual(res.Payload, want) {
		t.Errorf("payload = %v, want the full object", res.Payload)
	}
}

func TestLLMExtractionSchemaModes(t *testing.T) {
	tests := []struct {
		mode  string
		check func(t *testing.T, sampler llm.Sampler)
	}{
		{SchemaModeNone, func(t *testing.T, sampler llm.Sampler) {
			if _, ok := sampler["response_format"]; ok {
				t.Error("schema_mode none set response_format")
			}
		}},
		{SchemaModeOpenAIJSON, func(t *testing.T, sampler llm.Sampler) {
			rf := sampler["response_format"].(map[string]any)
			if rf["type"] != "json_object" {
				t.Errorf("response_format = %v", rf)
			}
		}},
		{SchemaModeOpenAISchema, func(t *testing.T, sampler llm.Sampler) {
			rf := sampler["response_format"].(map[string]any)
			if rf["type"] != "json_schema" {
				t.Errorf("response_format type = %v", rf["type"])
			}
			js := rf["json_schema"].(map[string]any)
			if js["strict"] != true || js["name"] != "Clean" || js["schema"] == nil {
				t.Errorf("json_schema = %v", js)
			}
		}},
		{SchemaModeVLLM, func(t *testing.T, sampler llm.Sampler) {
			if sampler["guided_json"] == nil {
				t.Error("guided_json not set")
			}
		}},
		{SchemaModeLlama, func(t *testing.T, sampler llm.Sampler) {
			if sampler["json_schema"] == nil {
				t.Error("json_schema not set")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			backend := &stubLLM{answers: []string{`{"worlds": []}`}}
			step := extractionStep(backend, pipeline.Params{
				pipeline.ParamSchemaMode: tt.mode,
				pipeline.ParamSchemaJSON: testSchema,
			})
			if _, err := runStep(t, step, "id-1", "text"); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			tt.check(t, backend.lastCall(t).sampler)
		})
	}
}

func TestLLMExtractionValidation(t *testing.T) {
	tests := []struct {
		name   string
		params pipeline.Params
	}{
		{"unknown schema mode", pipeline.Params{
			pipeline.ParamSchemaMode: "grammar",
			pipeline.ParamSchemaJSON: testSchema,
		}},
		{"schema mode without schema", pipeline.Params{
			pipeline.ParamSchemaMode: SchemaModeVLLM,
		}},
		{"invalid schema json", pipeline.Params{
			pipeline.ParamSchemaMode: SchemaModeVLLM,
			pipeline.ParamSchemaJSON: "{not json",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &stubLLM{answers: []string{`{"worlds": []}`}}
			step := extractionStep(backend, tt.params)
			_, err := runStep(t, step, "id-1", "text")
			var verr *pipeline.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Run() error = %v, want ValidationError", err)
			}
		})
	}

	t.Run("missing prompt", func(t *testing.T) {
		backend := &stubLLM{answers: []string{`{}`}}
		step := NewLLMExtraction(backend, "Clean", "idea", "world_list",
			pipeline.Params{pipeline.ParamModel: "m"})
		_, err := runStep(t, step, "id-1", "text")
		var verr *pipeline.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Run() error = %v, want ValidationError", err)
		}
	})
}

func TestLLMExtractionUnparseableAnswer(t *testing.T) {
	backend := &stubLLM{answers: []string{"I could not find any JSON, sorry."}}
	step := extractionStep(backend, nil)

	res, err := runStep(t, step, "id-1", "text")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Payload != nil {
		t.Errorf("payload = %v, want nil so the slot is released", res.Payload)
	}
}
