// Package mcp defines the boundary between the conversation core and remote
// tools reached over the Model Context Protocol.
//
// The core only ever sees an [Invoker]: a single blocking call that takes a
// tool name and a flat argument map and returns a [Result]. Connection
// handling, session lifetime and the decoding of raw protocol payloads into the
// [Result] tagged union live in the bridge sub-package. An Invoker never
// returns a Go error; every failure is represented as a [Result] of kind
// [ResultFailure].
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to reach the tool server.
type ServerConfig struct {
	// Name identifies the server in logs and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable and arguments used with [TransportStdio],
	// split on whitespace.
	Command string

	// URL is the endpoint used with [TransportStreamableHTTP].
	URL string

	// Env holds additional environment variables for the stdio subprocess.
	Env map[string]string
}

// AwaitingClientSentinel is the text a tool returns when it cannot complete
// without further input collected by the client, such as a camera photo.
const AwaitingClientSentinel = "WAITING_FOR_CLIENT"

// ResultKind tags the variant held by a [Result].
type ResultKind int

const (
	// ResultText is a single plain-text payload.
	ResultText ResultKind = iota + 1

	// ResultParts is an ordered list of typed content parts.
	ResultParts

	// ResultAwaitingClient means the tool is waiting for client-collected
	// input before it can produce a value.
	ResultAwaitingClient

	// ResultStructured is a JSON document returned as structured content.
	ResultStructured

	// ResultFailure means the call did not produce a usable value.
	ResultFailure
)

// String returns the lowercase name of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultText:
		return "text"
	case ResultParts:
		return "parts"
	case ResultAwaitingClient:
		return "awaiting_client"
	case ResultStructured:
		return "structured"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// PartKind tags a single content part.
type PartKind int

const (
	PartText PartKind = iota + 1
	PartImage
	PartAudio
)

// Part is one entry of a [ResultParts] result.
type Part struct {
	Kind PartKind

	// Text is set for [PartText].
	Text string

	// Data and MIMEType are set for [PartImage] and [PartAudio].
	Data     []byte
	MIMEType string
}

// FailureKind classifies a [Failure].
type FailureKind int

const (
	// FailureTransport covers connection, protocol and timeout errors.
	FailureTransport FailureKind = iota + 1

	// FailureTool is an error reported by the tool itself.
	FailureTool

	// FailureShape means the tool answered with content the bridge does not
	// know how to decode.
	FailureShape
)

// String returns the lowercase name of the kind.
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTool:
		return "tool"
	case FailureShape:
		return "shape"
	default:
		return "unknown"
	}
}

// Failure describes why a call did not produce a value.
type Failure struct {
	Kind    FailureKind
	Message string

	// Raw carries the undecoded result as JSON for [FailureShape].
	Raw string
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

// Result is the decoded outcome of a single tool invocation. Exactly one of
// the variant fields is meaningful, selected by Kind.
type Result struct {
	Kind ResultKind

	Text       string
	Parts      []Part
	Structured json.RawMessage
	Failure    *Failure

	// DurationMs is the wall-clock time of the invocation, including session
	// setup and teardown.
	DurationMs int64
}

// TextResult returns a [ResultText] result.
func TextResult(text string) Result {
	return Result{Kind: ResultText, Text: text}
}

// FailureResult returns a [ResultFailure] result.
func FailureResult(kind FailureKind, format string, args ...any) Result {
	return Result{Kind: ResultFailure, Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Invoker performs one tool call per invocation. Implementations must be safe
// for concurrent use and must convert every error into a [ResultFailure].
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) Result
}
