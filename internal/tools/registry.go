// Package tools holds the static catalogue of remote tools the router may
// select and the dispatcher may invoke.
//
// The catalogue is pure data. The router renders it into the oracle's
// instruction block ([Registry.Signatures], [Registry.Rules]); the dispatcher
// consults it to validate a decision before anything crosses the transport
// ([Registry.Validate]). A [Registry] is immutable after construction and safe
// for concurrent use.
package tools

import (
	"fmt"
	"slices"
	"strings"
)

// Names of the built-in tools exposed by the tool server.
const (
	Chat          = "chat_gpt4o"
	GenerateImage = "gen_image_dalle3"
	ListMembers   = "get_all_members"
	GetMember     = "get_member_by_id"
	CreateMember  = "create_member"
	UpdateMember  = "update_member"
	DeleteMember  = "delete_member"
	Speak         = "text_to_speech_gpt4o"
	CaptureImage  = "capture_image_from_camera"
	DescribeImage = "describe_image_from_camera"
)

// ParamType is the primitive JSON type of a tool argument.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec describes a single tool argument.
type ParamSpec struct {
	Type     ParamType
	Required bool

	// Default is the value the tool server applies when the argument is
	// absent. It is documentation only; the dispatcher never fills it in.
	Default any

	Description string
}

// ToolSpec describes one remote tool.
type ToolSpec struct {
	// Name is the wire name used in tools/call requests.
	Name string

	// Description is a one-line human-readable summary.
	Description string

	// Params maps argument names to their schema. A nil map means the tool
	// takes no arguments.
	Params map[string]ParamSpec

	// Order fixes the order in which arguments are rendered in [ToolSpec.Signature].
	// Names missing from Order are appended alphabetically.
	Order []string
}

// Signature renders the tool as a call signature, e.g.
// `text_to_speech_gpt4o(text: str, voice?: str = "nova")`.
func (s ToolSpec) Signature() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, name := range s.paramNames() {
		if i > 0 {
			b.WriteString(", ")
		}
		p := s.Params[name]
		b.WriteString(name)
		if !p.Required {
			b.WriteByte('?')
		}
		b.WriteString(": ")
		b.WriteString(p.Type.short())
		if p.Default != nil {
			fmt.Fprintf(&b, " = %s", formatDefault(p.Default))
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (s ToolSpec) paramNames() []string {
	names := make([]string, 0, len(s.Params))
	seen := make(map[string]bool, len(s.Order))
	for _, n := range s.Order {
		if _, ok := s.Params[n]; ok && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	var rest []string
	for n := range s.Params {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	slices.Sort(rest)
	return append(names, rest...)
}

func (t ParamType) short() string {
	switch t {
	case TypeString:
		return "str"
	case TypeInteger:
		return "int"
	case TypeBoolean:
		return "bool"
	default:
		return string(t)
	}
}

func formatDefault(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}

// Rule is a disambiguation hint rendered into the router prompt. Rules are
// advisory; preconditions (such as an existing captured image) are enforced
// by the dispatcher.
type Rule struct {
	// Phrases are example user phrasings that should select Tool.
	Phrases []string

	// Tool is the tool the phrases map to.
	Tool string

	// Condition is an optional natural-language precondition, e.g.
	// "an image has already been captured".
	Condition string
}

// String renders the rule as a single prompt line.
func (r Rule) String() string {
	quoted := make([]string, len(r.Phrases))
	for i, p := range r.Phrases {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	line := "If the user says something like " + strings.Join(quoted, ", ")
	if r.Condition != "" {
		line += " and " + r.Condition
	}
	return line + ", use `" + r.Tool + "`."
}

// Registry is an immutable tool catalogue.
type Registry struct {
	specs    []ToolSpec
	byName   map[string]int
	rules    []Rule
	fallback string
}

// New builds a Registry from specs. fallback must name one of the specs and
// must accept a single required string argument "prompt"; it is the tool
// degraded routing decisions are sent to.
func New(specs []ToolSpec, fallback string, rules ...Rule) (*Registry, error) {
	r := &Registry{
		specs:    make([]ToolSpec, len(specs)),
		byName:   make(map[string]int, len(specs)),
		rules:    slices.Clone(rules),
		fallback: fallback,
	}
	copy(r.specs, specs)
	for i, s := range r.specs {
		if s.Name == "" {
			return nil, fmt.Errorf("tools: spec %d has an empty name", i)
		}
		if _, dup := r.byName[s.Name]; dup {
			return nil, fmt.Errorf("tools: duplicate tool %q", s.Name)
		}
		r.byName[s.Name] = i
	}
	fb, ok := r.Lookup(fallback)
	if !ok {
		return nil, fmt.Errorf("tools: fallback tool %q is not registered", fallback)
	}
	if p, ok := fb.Params["prompt"]; !ok || p.Type != TypeString {
		return nil, fmt.Errorf("tools: fallback tool %q must accept a string prompt", fallback)
	}
	for _, rule := range r.rules {
		if _, ok := r.byName[rule.Tool]; !ok {
			return nil, fmt.Errorf("tools: rule references unknown tool %q", rule.Tool)
		}
	}
	return r, nil
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	i, ok := r.byName[name]
	if !ok {
		return ToolSpec{}, false
	}
	return r.specs[i], true
}

// Specs returns the registered tools in registration order.
func (r *Registry) Specs() []ToolSpec {
	return slices.Clone(r.specs)
}

// Rules returns the disambiguation rules in registration order.
func (r *Registry) Rules() []Rule {
	return slices.Clone(r.rules)
}

// Fallback returns the name of the free-form chat tool.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Signatures returns one rendered signature per tool, in registration order.
func (r *Registry) Signatures() []string {
	out := make([]string, len(r.specs))
	for i, s := range r.specs {
		out[i] = s.Signature()
	}
	return out
}
