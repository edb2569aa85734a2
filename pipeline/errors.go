package pipeline

import "fmt"

// ValidationError reports a step misconfiguration: a missing required
// parameter, an unknown enum value, a non-numeric count. Raised from a
// step's run it becomes a step failure for that id; raised during
// pending-input discovery it stops the run, since every subsequent tick
// would fail the same way.
type ValidationError struct {
	Step string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %s: %s", e.Step, e.Msg)
}
