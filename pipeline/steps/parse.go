package steps

import (
	"context"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
)

// NewJSONParse returns a step that parses the outermost JSON value out of
// each input text and commits the structured result. It is the cheap
// alternative to NewLLMExtraction when the upstream step already produces
// JSON and only the surrounding prose or markdown fences need stripping.
// Text with no parseable JSON yields an empty result, releasing the slot
// for a retry on a later run.
func NewJSONParse(name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
	return &pipeline.Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(_ context.Context, step *pipeline.Step, id string, input any) (pipeline.Result, error) {
			text, err := textInput(step.Name, input)
			if err != nil {
				return pipeline.Result{}, err
			}
			value, err := llm.ExtractJSONValue(text)
			if err != nil {
				return pipeline.Result{}, nil
			}
			return pipeline.Result{
				Payload: value,
				Meta:    pipeline.Meta{"timestamp": timestamp()},
			}, nil
		}),
	}
}
