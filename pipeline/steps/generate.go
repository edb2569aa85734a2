package steps

import (
	"context"

	"github.com/worldforge/scribe/pipeline"
)

// VarsFunc produces the variables payload for one freshly minted record
// id. Implementations typically sample word lists or other entropy
// sources so that every generated record seeds a distinct downstream
// artifact.
type VarsFunc func(ctx context.Context, id string) (map[string]any, error)

// NewGenerate returns a generator step: it has no input key space and
// mints records into outkey until the "max" parameter is reached. Each
// record's payload is the variable set produced by vars.
func NewGenerate(vars VarsFunc, name, outkey string, params pipeline.Params) *pipeline.Step {
	return &pipeline.Step{
		Name:   name,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(ctx context.Context, _ *pipeline.Step, id string, _ any) (pipeline.Result, error) {
			payload, err := vars(ctx, id)
			if err != nil {
				return pipeline.Result{}, err
			}
			return pipeline.Result{
				Payload: payload,
				Meta:    pipeline.Meta{"timestamp": timestamp()},
			}, nil
		}),
	}
}
