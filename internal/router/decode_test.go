package router

import (
	"errors"
	"testing"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON {\"a\":1}```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{}\n```  ", `{}`},
		{"```json\n{}", `{}`},
		{"{}\n```", `{}`},
		{"```\n```json\n{}\n```\n```", `{}`},
		{"", ""},
	}
	for _, tc := range tests {
		got := StripFences(tc.in)
		if got != tc.want {
			t.Errorf("StripFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if again := StripFences(got); again != got {
			t.Errorf("StripFences not idempotent on %q: %q then %q", tc.in, got, again)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want error
	}{
		{"", ErrEmptyReply},
		{"```json\n```", ErrEmptyReply},
		{"not json", ErrInvalidJSON},
		{`{"tool":"x","args":{},"extra":1}`, ErrInvalidJSON},
		{`{"tool":"x","args":null}`, ErrInvalidJSON},
		{`{"tool":"x","args":[]}`, ErrInvalidJSON},
		{`{"tool":1,"args":{}}`, ErrInvalidJSON},
		{`{"tool":"","args":{}}`, ErrMissingTool},
		{`{"tool":null,"args":{}}`, ErrMissingTool},
		{`{"tool":"x","args":{"k":{"n":1}}}`, ErrNestedArgs},
		{`{"tool":"x","args":{"k":[1]}}`, ErrNestedArgs},
		{`{"Tool":"x","args":{}}`, ErrInvalidJSON},
		{`{"tool":"x","ARGS":{}}`, ErrInvalidJSON},
		{`{"tool":"x","tool":"y","args":{}}`, ErrInvalidJSON},
		{`{"tool":"x","args":{},"args":{}}`, ErrInvalidJSON},
		{`{"tool":"x","args":{"k":"a","k":"b"}}`, ErrInvalidJSON},
		{`{"tool":"x"}`, ErrInvalidJSON},
		{`{"args":{}}`, ErrMissingTool},
		{`{"tool":"x","args":{}} {}`, ErrInvalidJSON},
		{`[{"tool":"x","args":{}}]`, ErrInvalidJSON},
	}
	for _, tc := range tests {
		if _, _, err := Decode(tc.in); !errors.Is(err, tc.want) {
			t.Errorf("Decode(%q) err = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestDecode_TrimsToolName(t *testing.T) {
	t.Parallel()

	tool, args, err := Decode(`{"tool":" chat_gpt4o ","args":{"prompt":"x","n":2,"ok":true}}`)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tool != "chat_gpt4o" {
		t.Errorf("tool = %q", tool)
	}
	if args["prompt"] != "x" || args["n"] != float64(2) || args["ok"] != true {
		t.Errorf("args = %v", args)
	}
}
