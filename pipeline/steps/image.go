package steps

import (
	"context"

	"github.com/worldforge/scribe/pipeline"
	"github.com/worldforge/scribe/pipeline/llm"
)

// NewText2Image returns a step that renders each input prompt on an image
// synthesis backend and commits the image as a base64 encoded PNG.
// Dimensions and diffusion steps come from the "width", "height", and
// "steps" parameters (defaults 512, 512, 20) and are recorded in meta so
// exported datasets keep their rendering provenance.
func NewText2Image(gen llm.ImageGenerator, name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
	return &pipeline.Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(ctx context.Context, step *pipeline.Step, id string, input any) (pipeline.Result, error) {
			text, err := textInput(step.Name, input)
			if err != nil {
				return pipeline.Result{}, err
			}
			width, err := step.Params.Int(pipeline.ParamWidth, 512)
			if err != nil {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
			}
			height, err := step.Params.Int(pipeline.ParamHeight, 512)
			if err != nil {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
			}
			diffusionSteps, err := step.Params.Int(pipeline.ParamSteps, 20)
			if err != nil {
				return pipeline.Result{}, &pipeline.ValidationError{Step: step.Name, Msg: err.Error()}
			}

			image, err := gen.Txt2Img(ctx, text, width, height, diffusionSteps)
			if err != nil {
				return pipeline.Result{}, err
			}

			return pipeline.Result{
				Payload: image,
				Meta: pipeline.Meta{
					"timestamp": timestamp(),
					"width":     width,
					"height":    height,
					"steps":     diffusionSteps,
				},
			}, nil
		}),
	}
}
