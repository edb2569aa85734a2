package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter implements Emitter by writing structured output to a writer.
//
// Two output modes:
//   - Text mode (default): human-readable key=value lines
//   - JSON mode: one JSON object per line, machine-readable
//
// Example text output:
//
//	[commit] step=GenIdea key=idea id=7f60…
//	[step_failure] step=Clean key=world id=7f60… meta={"error":"..."}
//
// A single mutex serializes writes so concurrent workers do not interleave
// partial lines.
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter writing to the given writer. A nil
// writer defaults to os.Stderr, where the engine's failure log belongs.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stderr
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes one line per event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		Step string         `json:"step,omitempty"`
		Key  string         `json:"key,omitempty"`
		ID   string         `json:"id,omitempty"`
		Msg  string         `json:"msg"`
		Meta map[string]any `json:"meta,omitempty"`
	}{event.Step, event.Key, event.ID, event.Msg, event.Meta})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"msg\":\"emit_error\",\"error\":%q}\n", err.Error())
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s]", event.Msg)
	if event.Step != "" {
		fmt.Fprintf(l.writer, " step=%s", event.Step)
	}
	if event.Key != "" {
		fmt.Fprintf(l.writer, " key=%s", event.Key)
	}
	if event.ID != "" {
		fmt.Fprintf(l.writer, " id=%s", event.ID)
	}
	if len(event.Meta) > 0 {
		if data, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", data)
		}
	}
	fmt.Fprintln(l.writer)
}
