package core

import "context"

type AIProvider interface {
	Chat(ctx context.Context, history []Message, tools []Tool) (Message, error)
}

// ToolRegistry is the fixed set of schema-described operations the
// model may request. Call treats the tool name and arguments as
// untrusted model output; unknown names and malformed arguments come
// back as errors, never panics.
type ToolRegistry interface {
	Definitions() []Tool
	Call(ctx context.Context, name string, args string) (string, error)
}
