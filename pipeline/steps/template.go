package steps

import (
	"context"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/prompt"
)

// NewExpandTemplate returns a step that renders the "template" parameter
// against each input payload's fields. A variables record like
// {"title": "..."} becomes the prompt text the next step sends to a
// model.
//
// Referencing a field the input does not carry is an error, not a silent
// blank: a prompt with a hole in it would still generate, and the defect
// would only surface records later.
func NewExpandTemplate(name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
	return &pipeline.Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(_ context.Context, step *pipeline.Step, id string, input any) (pipeline.Result, error) {
			tmpl := step.Params.Get(pipeline.ParamTemplate)
			if tmpl == "" {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: "template parameter is required"}
			}
			text, err := prompt.Expand(tmpl, input)
			if err != nil {
				return pipeline.Result{}, err
			}
			return pipeline.Result{
				Payload: text,
				Meta:    pipeline.Meta{"timestamp": timestamp()},
			}, nil
		}),
	}
}
