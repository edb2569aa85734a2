package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/worldforge/scribe/pipeline"
)

// NewJSONExport returns a terminal step that appends each input record to
// a JSONL file, one {"id": ..., "payload": ...} object per line. The
// "file" parameter names the output path (default "export.jsonl").
//
// The committed payload records the file and the byte offset the line
// landed at, which both marks the record as exported for resumption and
// leaves an index into the file. Appends are serialized under a step-wide
// mutex; the file itself is opened per write so the path parameter can
// vary between instances sharing this runner.
func NewJSONExport(name, inkey, outkey string, params pipeline.Params) *pipeline.Step {
	var mu sync.Mutex
	return &pipeline.Step{
		Name:   name,
		InKey:  inkey,
		OutKey: outkey,
		Params: params.Clone(),
		Runner: pipeline.RunnerFunc(func(_ context.Context, step *pipeline.Step, id string, input any) (pipeline.Result, error) {
			path := step.Params.GetDefault(pipeline.ParamFile, "export.jsonl")

			line, err := json.Marshal(map[string]any{"id": id, "payload": input})
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("marshal export line: %w", err)
			}
			line = append(line, '\n')

			mu.Lock()
			defer mu.Unlock()

			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("open export file: %w", err)
			}
			defer func() { _ = f.Close() }()

			offset, err := f.Seek(0, io.SeekEnd)
			if err != nil {
				return pipeline.Result{}, fmt.Errorf("seek export file: %w", err)
			}
			if _, err := f.Write(line); err != nil {
				return pipeline.Result{}, fmt.Errorf("append export line: %w", err)
			}

			return pipeline.Result{
				Payload: map[string]any{"file": path, "offset": offset},
				Meta:    pipeline.Meta{"timestamp": timestamp(), "bytes": len(line)},
			}, nil
		}),
	}
}
