package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating one OpenTelemetry span per
// event.
//
// Each span carries:
//   - Name: event.Msg ("commit", "abort", "claim_conflict", ...)
//   - Attributes: scribe.step, scribe.key, scribe.id plus all Meta fields
//   - Status: Error when Meta["error"] is present
//
// Spans are ended immediately; events mark points in time, not durations.
// Wire it up with whatever provider the host application configured:
//
//	tracer := otel.Tracer("scribe")
//	emitter := emit.NewOTelEmitter(tracer)
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an OTelEmitter using the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and ends a span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	if event.Step != "" {
		span.SetAttributes(attribute.String("scribe.step", event.Step))
	}
	if event.Key != "" {
		span.SetAttributes(attribute.String("scribe.key", event.Key))
	}
	if event.ID != "" {
		span.SetAttributes(attribute.String("scribe.id", event.ID))
	}

	for k, v := range event.Meta {
		span.SetAttributes(metaAttribute("scribe.meta."+k, v))
	}

	if errMsg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

// metaAttribute converts an arbitrary Meta value into a span attribute,
// falling back to fmt formatting for types OTel has no native encoding for.
func metaAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	default:
		return attribute.String(key, fmt.Sprintf("%v", val))
	}
}
