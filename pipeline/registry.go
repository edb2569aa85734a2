package pipeline

import (
	"fmt"
	"strings"
)

// Registry holds the prototype steps a pipeline offers.
//
// The CLI never runs prototypes directly: each --step argument names a
// prototype, which is cloned and overlaid with that argument's parameter
// bundle before registration with the dispatcher. Repeating a name with
// different bundles instantiates parallel variants of the same logic.
type Registry struct {
	protos map[string]*Step
	order  []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{protos: make(map[string]*Step)}
}

// Register adds a prototype step. The name must be unique within the
// registry, and the step must be structurally complete (name, outkey,
// runner).
func (r *Registry) Register(proto *Step) error {
	if proto == nil {
		return fmt.Errorf("cannot register nil step")
	}
	if proto.Name == "" {
		return fmt.Errorf("step name cannot be empty")
	}
	if proto.OutKey == "" {
		return &ValidationError{Step: proto.Name, Msg: "outkey cannot be empty"}
	}
	if proto.Runner == nil {
		return &ValidationError{Step: proto.Name, Msg: "runner cannot be nil"}
	}
	if _, exists := r.protos[proto.Name]; exists {
		return fmt.Errorf("duplicate step name: %s", proto.Name)
	}
	r.protos[proto.Name] = proto
	r.order = append(r.order, proto.Name)
	return nil
}

// Lookup returns the prototype registered under name.
func (r *Registry) Lookup(name string) (*Step, bool) {
	proto, ok := r.protos[name]
	return proto, ok
}

// Names returns the prototype names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Instantiate parses a --step specification string, clones the named
// prototype, and applies the parameter segments.
//
// The format is NAME[/k=v]... where a literal '/' inside a value is
// escaped as '//':
//
//	GenIdea/model=gemma-2-9b/parallel=4
//	Export/file=out//worlds.jsonl
func (r *Registry) Instantiate(spec string) (*Step, error) {
	name, params, err := ParseStepSpec(spec)
	if err != nil {
		return nil, err
	}
	proto, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown step %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	step := proto.Clone()
	for k, v := range params {
		step.Apply(k, v)
	}
	return step, nil
}

// ParseStepSpec splits a step specification into its name and parameter
// bundle. See Instantiate for the format.
func ParseStepSpec(spec string) (string, Params, error) {
	segments := splitEscaped(spec)
	if len(segments) == 0 || segments[0] == "" {
		return "", nil, fmt.Errorf("empty step specification")
	}
	name := segments[0]
	params := Params{}
	for _, seg := range segments[1:] {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			return "", nil, fmt.Errorf("step %s: malformed parameter %q (want k=v)", name, seg)
		}
		params[k] = v
	}
	return name, params, nil
}

// splitEscaped splits on '/', treating '//' as an escaped literal '/'.
func splitEscaped(s string) []string {
	var segments []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '/' {
			cur.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '/' {
			cur.WriteByte('/')
			i++
			continue
		}
		segments = append(segments, cur.String())
		cur.Reset()
	}
	segments = append(segments, cur.String())
	return segments
}
