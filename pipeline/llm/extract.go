package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates a JSON object inside a model response and parses it.
//
// The object is taken as the substring from the first '{' to the last '}'.
// Models wrap their JSON in prose and markdown fences often enough that
// this blunt heuristic outperforms anything cleverer.
//
// When firstKey is true, the value of the object's first key (in document
// order) is returned instead of the object itself; extraction prompts that
// ask for {"worlds": [...]} use this to unwrap the payload.
func ExtractJSON(text string, firstKey bool) (any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	raw := text[start : end+1]

	if firstKey {
		return firstKeyValue(raw)
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}
	return data, nil
}

// ExtractJSONValue parses the outermost JSON object or array in the text,
// whichever opens first. Responses that are lists at the top level
// ("[{...}, {...}]") need the array branch.
func ExtractJSONValue(text string) (any, error) {
	objStart := strings.Index(text, "{")
	listStart := strings.Index(text, "[")

	var raw string
	switch {
	case objStart == -1 && listStart == -1:
		return nil, fmt.Errorf("no JSON value in response")
	case listStart == -1 || (objStart != -1 && objStart < listStart):
		end := strings.LastIndex(text, "}")
		if end < objStart {
			return nil, fmt.Errorf("unterminated JSON object in response")
		}
		raw = text[objStart : end+1]
	default:
		end := strings.LastIndex(text, "]")
		if end < listStart {
			return nil, fmt.Errorf("unterminated JSON array in response")
		}
		raw = text[listStart : end+1]
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}
	return data, nil
}

// firstKeyValue decodes the value of the first key of a JSON object,
// preserving document order (a plain map would not).
func firstKeyValue(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("extracted JSON is not an object")
	}
	if !dec.More() {
		return nil, fmt.Errorf("extracted JSON object is empty")
	}
	if _, err := dec.Token(); err != nil { // first key
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("parse extracted JSON: %w", err)
	}
	return value, nil
}
