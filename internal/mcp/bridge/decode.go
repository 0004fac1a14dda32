package bridge

import (
	"encoding/json"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolroute/internal/mcp"
)

// Decode converts a raw tools/call result into the [mcp.Result] tagged union.
//
// Variants, checked in order:
//
//   - IsError set: [mcp.FailureTool] carrying the concatenated text content.
//   - Structured content present: [mcp.ResultStructured].
//   - A single text part equal to [mcp.AwaitingClientSentinel]: [mcp.ResultAwaitingClient].
//   - A single text part: [mcp.ResultText].
//   - Several text, image or audio parts: [mcp.ResultParts].
//
// Anything else, including an empty content list or a resource part, is a
// [mcp.FailureShape] whose Raw field holds the result as JSON.
func Decode(raw *mcpsdk.CallToolResult) mcp.Result {
	if raw == nil {
		return mcp.FailureResult(mcp.FailureShape, "bridge: nil tool result")
	}

	if raw.IsError {
		var sb strings.Builder
		for _, c := range raw.Content {
			if tc, ok := c.(*mcpsdk.TextContent); ok {
				sb.WriteString(tc.Text)
			}
		}
		msg := sb.String()
		if msg == "" {
			msg = "tool reported an error without a message"
		}
		return mcp.Result{Kind: mcp.ResultFailure, Failure: &mcp.Failure{Kind: mcp.FailureTool, Message: msg}}
	}

	if raw.StructuredContent != nil {
		data, err := json.Marshal(raw.StructuredContent)
		if err != nil {
			return shapeFailure(raw, "structured content is not JSON: "+err.Error())
		}
		return mcp.Result{Kind: mcp.ResultStructured, Structured: data}
	}

	parts := make([]mcp.Part, 0, len(raw.Content))
	for _, c := range raw.Content {
		switch v := c.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, mcp.Part{Kind: mcp.PartText, Text: v.Text})
		case *mcpsdk.ImageContent:
			parts = append(parts, mcp.Part{Kind: mcp.PartImage, Data: v.Data, MIMEType: v.MIMEType})
		case *mcpsdk.AudioContent:
			parts = append(parts, mcp.Part{Kind: mcp.PartAudio, Data: v.Data, MIMEType: v.MIMEType})
		default:
			return shapeFailure(raw, "unsupported content part")
		}
	}

	switch {
	case len(parts) == 0:
		return shapeFailure(raw, "empty tool result")
	case len(parts) == 1 && parts[0].Kind == mcp.PartText:
		if strings.TrimSpace(parts[0].Text) == mcp.AwaitingClientSentinel {
			return mcp.Result{Kind: mcp.ResultAwaitingClient}
		}
		return mcp.TextResult(parts[0].Text)
	default:
		return mcp.Result{Kind: mcp.ResultParts, Parts: parts}
	}
}

func shapeFailure(raw *mcpsdk.CallToolResult, msg string) mcp.Result {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		data = []byte(err.Error())
	}
	return mcp.Result{
		Kind: mcp.ResultFailure,
		Failure: &mcp.Failure{
			Kind:    mcp.FailureShape,
			Message: msg,
			Raw:     string(data),
		},
	}
}
