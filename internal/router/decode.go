package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Decode errors. All of them degrade the routing decision.
var (
	ErrEmptyReply  = errors.New("router: empty oracle reply")
	ErrInvalidJSON = errors.New("router: reply is not a routing object")
	ErrMissingTool = errors.New("router: reply has no tool")
	ErrNestedArgs  = errors.New("router: args must be a flat object")
)

const fence = "```"

// StripFences removes Markdown code fences around s. A leading fence may carry
// a language tag such as "json". Stripping is repeated until nothing changes,
// so StripFences(StripFences(s)) == StripFences(s).
func StripFences(s string) string {
	for {
		next := stripOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func stripOnce(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, fence); ok {
		// Drop the info string up to the end of the line or the first
		// character that cannot be part of a language tag.
		i := 0
		for i < len(rest) && isTagByte(rest[i]) {
			i++
		}
		s = rest[i:]
	}
	if rest, ok := strings.CutSuffix(s, fence); ok {
		s = rest
	}
	return strings.TrimSpace(s)
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '+'
}

// Decode parses an oracle reply into a tool name and flat argument map. The
// reply must be a single JSON object with exactly the keys "tool" and "args",
// matched case-sensitively and each at most once. Arg names must be unique and
// arg values must be strings, numbers, booleans or null.
func Decode(raw string) (string, map[string]any, error) {
	body := StripFences(raw)
	if body == "" {
		return "", nil, ErrEmptyReply
	}

	dec := json.NewDecoder(strings.NewReader(body))
	fields, err := object(dec)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("%w: trailing data after object", ErrInvalidJSON)
	}
	for k := range fields {
		if k != "tool" && k != "args" {
			return "", nil, fmt.Errorf("%w: unknown key %q", ErrInvalidJSON, k)
		}
	}

	rawTool, ok := fields["tool"]
	if !ok || isNull(rawTool) {
		return "", nil, ErrMissingTool
	}
	var tool string
	if err := json.Unmarshal(rawTool, &tool); err != nil {
		return "", nil, fmt.Errorf("%w: tool must be a string", ErrInvalidJSON)
	}
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return "", nil, ErrMissingTool
	}

	rawArgs, ok := fields["args"]
	if !ok || isNull(rawArgs) {
		return "", nil, fmt.Errorf("%w: missing args object", ErrInvalidJSON)
	}
	argFields, err := object(json.NewDecoder(bytes.NewReader(rawArgs)))
	if err != nil {
		return "", nil, fmt.Errorf("%w: args: %v", ErrInvalidJSON, err)
	}

	args := make(map[string]any, len(argFields))
	for k, v := range argFields {
		val, err := scalar(v)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q: %v", ErrNestedArgs, k, err)
		}
		args[k] = val
	}
	return tool, args, nil
}

// object reads one JSON object from dec and returns its members undecoded.
// A key that appears twice is an error.
func object(dec *json.Decoder) (map[string]json.RawMessage, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}

	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("object key is not a string")
		}
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		fields[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// scalar decodes a JSON value that must not be an object or array.
func scalar(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return nil, errors.New("nested value")
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return v, nil
}
