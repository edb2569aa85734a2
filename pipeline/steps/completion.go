package steps

import (
	"context"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
	"github.com/worldforge/scribe/pipeline/prompt"
)

// NewLLMCompletion returns a step that sends each input prompt to the
// model backend and commits the answer text.
//
// Without a "tokenizer" parameter the prompt goes to the chat endpoint
// as a single user message. With one, the conversation is rendered
// through the named chat template and sent to the legacy completion
// endpoint instead; backends that apply the wrong chat template produce
// subtly degraded text, so completion mode keeps the rendering on this
// side of the wire.
//
// Committed meta records timestamp, model, tokenizer, and the sampler
// actually used, so a dataset's provenance survives in the store.
func NewLLMCompletion(client llm.Requester, name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
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
			text, err := textInput(step.Name, input)
			if err != nil {
				return pipeline.Result{}, err
			}

			sampler := llm.DefaultSampler()
			messages := []llm.Message{{Role: llm.RoleUser, Content: text}}

			tokenizer := step.Params.Get(pipeline.ParamTokenizer)
			completion := false
			if tokenizer != "" {
				tpl, err := prompt.Build(tokenizer)
				if err != nil {
					return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
				}
				messages = []llm.Message{{Role: llm.RoleUser, Content: tpl.Apply(messages)}}
				completion = true
			}

			answers, err := client.Request(ctx, completion, model, messages, sampler, 1)
			if err != nil {
				return pipeline.Result{}, err
			}

			return pipeline.Result{
				Payload: answers[0],
				Meta: pipeline.Meta{
					"timestamp": timestamp(),
					"model":     model,
					"tokenizer": tokenizer,
					"sampler":   map[string]any(sampler),
				},
			}, nil
		}),
	}
}
