package emit

// Event represents an observability event emitted during a pipeline run.
//
// The dispatcher emits one event per interesting transition:
//   - "run_start" / "run_quiescent": engine lifecycle
//   - "claim_conflict": another worker already owns the output slot
//   - "commit": a record reached its terminal committed state
//   - "abort": run failed or produced empty output; the slot was released
//   - "step_failure": the failure detail accompanying an abort
//   - "sweep": orphaned claims removed at startup
//
// Events flow to an Emitter, which can log them, turn them into spans, or
// buffer them for inspection in tests.
type Event struct {
	// Step is the name of the pipeline step that produced this event.
	// Empty for engine-level events (run_start, run_quiescent, sweep).
	Step string

	// Key is the output key space the event concerns, when applicable.
	Key string

	// ID is the record id the event concerns, when applicable.
	ID string

	// Msg names the event (see the list above).
	Msg string

	// Meta carries additional structured detail. Common keys:
	//   - "error": failure description
	//   - "duration_ms": execution duration
	//   - "model": model that served an LLM step
	//   - "removed": rows deleted by a sweep
	Meta map[string]any
}
