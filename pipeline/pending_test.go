package pipeline

import (
	"context"
	"testing"

	"github.com/worldforge/scribe/pipeline/store"
)

func TestTransformPendingSetDifference(t *testing.T) {
	st := store.NewMem()
	ctx := context.Background()

	seedCommitted(t, st, "in", map[string]any{"a": "x", "b": "x", "c": "x", "d": "x"})
	// a already has a committed output, b a claimed one.
	seedCommitted(t, st, "out", map[string]any{"a": "done"})
	if _, err := st.Claim(ctx, "out", "b"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	step := &Step{Name: "T", InKey: "in", OutKey: "out"}
	pending, err := transformPending(ctx, st, step, map[string]bool{"c": true})
	if err != nil {
		t.Fatalf("transformPending() error = %v", err)
	}

	if len(pending) != 1 || pending[0].ID != "d" {
		t.Errorf("pending = %+v, want only d", pending)
	}
	if pending[0].Payload != "x" {
		t.Errorf("pending payload = %v, want x", pending[0].Payload)
	}
}

func TestGeneratorPendingCountsEverything(t *testing.T) {
	st := store.NewMem()
	ctx := context.Background()

	seedCommitted(t, st, "seed", map[string]any{"a": "x", "b": "x"})
	if _, err := st.Claim(ctx, "seed", "c"); err != nil {
		t.Fatalf("Claim() error = %v", err)
	}

	step := &Step{Name: "G", OutKey: "seed", Params: Params{ParamMax: "6"}}
	pending, err := generatorPending(ctx, st, step, map[string]bool{"x": true})
	if err != nil {
		t.Fatalf("generatorPending() error = %v", err)
	}

	// max 6 minus 2 committed, 1 claimed, 1 in flight.
	if len(pending) != 2 {
		t.Fatalf("pending = %d ids, want 2", len(pending))
	}
	if pending[0].ID == pending[1].ID {
		t.Error("generator minted duplicate ids")
	}

	// At or past the target, nothing is minted.
	full, err := generatorPending(ctx, st, step, map[string]bool{
		"w": true, "x": true, "y": true, "z": true,
	})
	if err != nil {
		t.Fatalf("generatorPending() error = %v", err)
	}
	if len(full) != 0 {
		t.Errorf("pending at quota = %d ids, want 0", len(full))
	}
}

func TestGeneratorPendingRequiresMax(t *testing.T) {
	step := &Step{Name: "G", OutKey: "seed"}
	if _, err := generatorPending(context.Background(), store.NewMem(), step, nil); err == nil {
		t.Error("generatorPending() without max: error = nil, want error")
	}
}

func TestModelQuota(t *testing.T) {
	st := store.NewMem()
	ctx := context.Background()

	commit := func(id, model string) {
		t.Helper()
		if _, err := st.Claim(ctx, "out", id); err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if err := st.Commit(ctx, "out", id, "x", map[string]any{"model": model}); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}
	commit("a", "gemma")
	commit("b", "gemma")
	commit("c", "qwen")

	tests := []struct {
		name   string
		params Params
		want   bool
	}{
		{"under quota", Params{ParamModel: "gemma", ParamModelMax: "3"}, false},
		{"at quota", Params{ParamModel: "gemma", ParamModelMax: "2"}, true},
		{"other model counts separately", Params{ParamModel: "qwen", ParamModelMax: "2"}, false},
		{"no quota configured", Params{ParamModel: "gemma"}, false},
		{"quota without model", Params{ParamModelMax: "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &Step{Name: "T", InKey: "in", OutKey: "out", Params: tt.params}
			got, err := modelQuotaReached(ctx, st, step)
			if err != nil {
				t.Fatalf("modelQuotaReached() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("modelQuotaReached() = %v, want %v", got, tt.want)
			}
		})
	}
}
