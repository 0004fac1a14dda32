package tools

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

var (
	// ErrUnknownTool is returned by [Registry.Validate] for names that are not
	// in the catalogue.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArgs is returned by [Registry.Validate] when the argument map
	// does not match the tool's schema.
	ErrInvalidArgs = errors.New("invalid arguments")
)

// Validate checks args against the schema of the named tool and returns a
// cleaned copy suitable for forwarding: null values are dropped so that the
// tool server applies its own defaults.
//
// Validation is strict. Unknown argument names, values of the wrong primitive
// type and missing required arguments are all rejected. Absent optional
// arguments pass through untouched.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	spec, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("tools: %w %q", ErrUnknownTool, name)
	}

	var problems []string
	clean := make(map[string]any, len(args))

	for _, key := range slices.Sorted(maps.Keys(args)) {
		val := args[key]
		p, known := spec.Params[key]
		if !known {
			problems = append(problems, fmt.Sprintf("unexpected argument %q", key))
			continue
		}
		if val == nil {
			continue
		}
		if !p.Type.accepts(val) {
			problems = append(problems, fmt.Sprintf("argument %q must be %s, got %T", key, p.Type, val))
			continue
		}
		clean[key] = val
	}

	for _, key := range spec.paramNames() {
		if !spec.Params[key].Required {
			continue
		}
		v, present := clean[key]
		if !present {
			problems = append(problems, fmt.Sprintf("missing required argument %q", key))
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			problems = append(problems, fmt.Sprintf("required argument %q is empty", key))
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("tools: %s: %w: %s", name, ErrInvalidArgs, strings.Join(problems, "; "))
	}
	return clean, nil
}

// accepts reports whether v, as produced by encoding/json decoding into any,
// is a value of type t.
func (t ParamType) accepts(v any) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeInteger:
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return !math.IsInf(n, 0) && !math.IsNaN(n) && n == math.Trunc(n)
		}
		return false
	default:
		return false
	}
}
