package pipeline

import (
	"context"
	"reflect"
	"testing"
)

func protoStep(name, inkey, outkey string, params Params) *Step {
	return &Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params,
		Runner: RunnerFunc(func(_ context.Context, _ *Step, _ string, input any) (Result, error) {
			return Result{Payload: input}, nil
		}),
	}
}

func TestParseStepSpec(t *testing.T) {
	tests := []struct {
		name       string
		spec       string
		wantName   string
		wantParams Params
		wantErr    bool
	}{
		{"bare name", "GenIdea", "GenIdea", Params{}, false},
		{"single param", "GenIdea/model=gemma-2-9b", "GenIdea", Params{"model": "gemma-2-9b"}, false},
		{
			"several params",
			"GenIdea/model=gemma-2-9b/parallel=4/model_max=250",
			"GenIdea",
			Params{"model": "gemma-2-9b", "parallel": "4", "model_max": "250"},
			false,
		},
		{
			"escaped slash in value",
			"Export/file=out//worlds.jsonl",
			"Export",
			Params{"file": "out/worlds.jsonl"},
			false,
		},
		{
			"value containing equals",
			"Clean/prompt=respond with k=v pairs",
			"Clean",
			Params{"prompt": "respond with k=v pairs"},
			false,
		},
		{"empty spec", "", "", nil, true},
		{"missing value", "GenIdea/model", "", nil, true},
		{"empty key", "GenIdea/=x", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, params, err := ParseStepSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStepSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if !reflect.DeepEqual(params, tt.wantParams) {
				t.Errorf("params = %v, want %v", params, tt.wantParams)
			}
		})
	}
}

func TestRegistryInstantiate(t *testing.T) {
	reg := NewRegistry()
	proto := protoStep("GenIdea", "prompt", "idea", Params{ParamModel: "default-model"})
	if err := reg.Register(proto); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	step, err := reg.Instantiate("GenIdea/model=gemma-2-9b/outkey=idea_v2/parallel=4")
	if err != nil {
		t.Fatalf("Instantiate() error = %v", err)
	}

	if step.OutKey != "idea_v2" {
		t.Errorf("OutKey = %q, want idea_v2", step.OutKey)
	}
	if got := step.Params.Get(ParamModel); got != "gemma-2-9b" {
		t.Errorf("model = %q, want gemma-2-9b", got)
	}
	if got := step.Params.Get(ParamParallel); got != "4" {
		t.Errorf("parallel = %q, want 4", got)
	}

	// The prototype is untouched by the overlay.
	if proto.OutKey != "idea" || proto.Params.Get(ParamModel) != "default-model" {
		t.Errorf("prototype mutated: outkey=%q model=%q", proto.OutKey, proto.Params.Get(ParamModel))
	}
	if _, ok := proto.Params[ParamParallel]; ok {
		t.Error("prototype gained the instance's parallel parameter")
	}
}

func TestRegistryUnknownStep(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(protoStep("GenIdea", "prompt", "idea", nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := reg.Instantiate("Nope/model=x"); err == nil {
		t.Error("Instantiate(unknown) error = nil, want error")
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(protoStep("GenIdea", "prompt", "idea", nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(protoStep("GenIdea", "prompt", "idea", nil)); err == nil {
		t.Error("Register(duplicate) error = nil, want error")
	}
}

func TestStepApply(t *testing.T) {
	step := protoStep("Clean", "idea", "world", nil)
	step.Apply("inkey", "idea_v2")
	step.Apply("outkey", "world_v2")
	step.Apply("model", "gemma-2-9b")

	if step.InKey != "idea_v2" || step.OutKey != "world_v2" {
		t.Errorf("keys = %q -> %q, want idea_v2 -> world_v2", step.InKey, step.OutKey)
	}
	if got := step.Params.Get("model"); got != "gemma-2-9b" {
		t.Errorf("model param = %q, want gemma-2-9b", got)
	}
}

func TestParamsTyped(t *testing.T) {
	p := Params{"parallel": "4", "first_key": "false", "bad": "x"}

	if n, err := p.Int("parallel", 1); err != nil || n != 4 {
		t.Errorf("Int(parallel) = %d, %v, want 4, nil", n, err)
	}
	if n, err := p.Int("missing", 7); err != nil || n != 7 {
		t.Errorf("Int(missing) = %d, %v, want default 7, nil", n, err)
	}
	if _, err := p.Int("bad", 0); err == nil {
		t.Error("Int(bad) error = nil, want error")
	}
	if b, err := p.Bool("first_key", true); err != nil || b {
		t.Errorf("Bool(first_key) = %v, %v, want false, nil", b, err)
	}
	if b, err := p.Bool("missing", true); err != nil || !b {
		t.Errorf("Bool(missing) = %v, %v, want default true, nil", b, err)
	}
	if _, err := p.Bool("bad", false); err == nil {
		t.Error("Bool(bad) error = nil, want error")
	}
}
