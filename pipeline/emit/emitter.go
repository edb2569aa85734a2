// Package emit provides pluggable observability for pipeline runs.
package emit

// Emitter receives events from the dispatcher and workers.
//
// Implementations should be:
//   - Non-blocking: never slow down step execution
//   - Thread-safe: workers emit concurrently
//   - Resilient: a broken backend must not crash the run
//
// Emit must not panic; internal errors should be swallowed or logged by
// the emitter itself.
type Emitter interface {
	Emit(event Event)
}
