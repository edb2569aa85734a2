package emit

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTelEmitter(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	emitter := NewOTelEmitter(provider.Tracer("test"))
	emitter.Emit(Event{
		Step: "GenIdea", Key: "idea", ID: "id-1", Msg: "commit",
		Meta: map[string]any{"duration_ms": int64(42)},
	})
	emitter.Emit(Event{
		Step: "Clean", Key: "world", ID: "id-2", Msg: "step_failure",
		Meta: map[string]any{"error": "backend unreachable"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("exported %d spans, want 2", len(spans))
	}

	commit := spans[0]
	if commit.Name != "commit" {
		t.Errorf("span name = %q, want commit", commit.Name)
	}
	attrs := map[string]any{}
	for _, kv := range commit.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	if attrs["scribe.step"] != "GenIdea" || attrs["scribe.key"] != "idea" || attrs["scribe.id"] != "id-1" {
		t.Errorf("attributes = %v", attrs)
	}
	if attrs["scribe.meta.duration_ms"] != int64(42) {
		t.Errorf("meta attribute = %v", attrs["scribe.meta.duration_ms"])
	}
	if commit.Status.Code == codes.Error {
		t.Error("commit span has error status")
	}

	failure := spans[1]
	if failure.Status.Code != codes.Error {
		t.Errorf("failure span status = %v, want Error", failure.Status.Code)
	}
	if failure.Status.Description != "backend unreachable" {
		t.Errorf("failure status description = %q", failure.Status.Description)
	}
}
