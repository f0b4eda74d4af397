// Package modulesdk is the minimal library a content module links to
// speak the Runtime's invocation contract: parse the stable flag
// surface, open the progress and instrumentation sinks the Runtime
// injects, and emit well-formed events without each module
// reimplementing the wire format.
package modulesdk

import "fmt"

// Invocation is a module's view of its own command-line invocation,
// split into the fixed observability flags, the per-schema input
// paths, and the free-form parameter flags a manifest declares.
type Invocation struct {
	Inputs              map[string]string
	Out                 string
	StateFile           string
	ProgressFile        string
	RunID               string
	InstrumentationSink string
	Params              map[string]string
}

// ParseArgs parses a module's argv, which is always `--flag value`
// pairs (never bare boolean flags, since the Runtime always supplies a
// value, including the string "true"/"false" for booleans). Unlike
// flag.FlagSet, this does not require every flag name to be known in
// advance — a module's input and parameter flags vary per manifest.
func ParseArgs(args []string) (*Invocation, error) {
	inv := &Invocation{
		Inputs: map[string]string{},
		Params: map[string]string{},
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) < 3 || arg[0] != '-' || arg[1] != '-' {
			return nil, fmt.Errorf("modulesdk: expected a --flag at position %d, got %q", i, arg)
		}
		name := arg[2:]
		if i+1 >= len(args) {
			return nil, fmt.Errorf("modulesdk: flag --%s is missing its value", name)
		}
		value := args[i+1]
		i++

		switch {
		case len(name) > 3 && name[:3] == "in-":
			inv.Inputs[name[3:]] = value
		case name == "out":
			inv.Out = value
		case name == "state-file":
			inv.StateFile = value
		case name == "progress-file":
			inv.ProgressFile = value
		case name == "run-id":
			inv.RunID = value
		case name == "instrumentation-sink":
			inv.InstrumentationSink = value
		default:
			inv.Params[name] = value
		}
	}

	if inv.ProgressFile == "" {
		return nil, fmt.Errorf("modulesdk: missing required --progress-file flag")
	}
	if inv.RunID == "" {
		return nil, fmt.Errorf("modulesdk: missing required --run-id flag")
	}
	return inv, nil
}
