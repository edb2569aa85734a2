package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/worldforge/scribe/pipeline/store"
)

// transformPending is the default discovery for steps with an input key:
// every committed input id that has no output row and is not already in
// flight. Output rows in the claimed state count as present, which is
// what prevents double-scheduling across dispatcher ticks.
func transformPending(ctx context.Context, st store.Store, step *Step, inflight map[string]bool) ([]Input, error) {
	capped, err := modelQuotaReached(ctx, st, step)
	if err != nil {
		return nil, err
	}
	if capped {
		return nil, nil
	}

	outputs, err := st.Find(ctx, step.OutKey, "")
	if err != nil {
		return nil, fmt.Errorf("step %s: discover outputs: %w", step.Name, err)
	}
	done := make(map[string]bool, len(outputs))
	for _, rec := range outputs {
		done[rec.ID] = true
	}

	inputs, err := st.Find(ctx, step.InKey, "")
	if err != nil {
		return nil, fmt.Errorf("step %s: discover inputs: %w", step.Name, err)
	}

	var pending []Input
	for _, rec := range inputs {
		if rec.Claimed() {
			// Upstream is still producing this record.
			continue
		}
		if done[rec.ID] || inflight[rec.ID] {
			continue
		}
		pending = append(pending, Input{ID: rec.ID, Payload: rec.Payload})
	}
	return pending, nil
}

// generatorPending is the default discovery for steps without an input
// key: mint fresh UUIDs until the committed-or-claimed output count plus
// the in-flight count reaches the "max" target.
func generatorPending(ctx context.Context, st store.Store, step *Step, inflight map[string]bool) ([]Input, error) {
	max, err := step.Params.Int(ParamMax, 0)
	if err != nil {
		return nil, &ValidationError{Step: step.Name, Msg: err.Error()}
	}
	if max <= 0 {
		return nil, &ValidationError{Step: step.Name, Msg: "generator requires a positive max parameter"}
	}

	outputs, err := st.Find(ctx, step.OutKey, "")
	if err != nil {
		return nil, fmt.Errorf("step %s: discover outputs: %w", step.Name, err)
	}

	n := max - len(outputs) - len(inflight)
	if n <= 0 {
		return nil, nil
	}
	pending := make([]Input, 0, n)
	for i := 0; i < n; i++ {
		pending = append(pending, Input{ID: uuid.NewString()})
	}
	return pending, nil
}

// modelQuotaReached implements the model_max production cap: once the
// step has model_max committed outputs whose meta.model equals the
// configured model, it stops yielding work. The cap is advisory -
// checked at discovery time, concurrent workers may overshoot by at most
// parallel-1 before the next scan sees the count.
func modelQuotaReached(ctx context.Context, st store.Store, step *Step) (bool, error) {
	quota, err := step.Params.Int(ParamModelMax, 0)
	if err != nil {
		return false, &ValidationError{Step: step.Name, Msg: err.Error()}
	}
	if quota <= 0 {
		return false, nil
	}
	model := step.Params.Get(ParamModel)
	if model == "" {
		return false, nil
	}

	outputs, err := st.Find(ctx, step.OutKey, "")
	if err != nil {
		return false, fmt.Errorf("step %s: count model outputs: %w", step.Name, err)
	}
	count := 0
	for _, rec := range outputs {
		meta, ok := rec.Meta.(map[string]any)
		if !ok {
			continue
		}
		if meta["model"] == model {
			count++
		}
	}
	return count >= quota, nil
}
