// Package tools defines the named, policy-gated units of work and the
// registry that routes calls to them. Each tool declares exactly one typed
// request shape; anything that does not bind to it is rejected with an
// ArgsError before the tool runs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Dispatch for names with no registered tool.
var ErrUnknownTool = errors.New("unknown tool")

// ArgsError reports arguments that do not bind to a tool's request shape.
type ArgsError struct {
	Tool   string
	Reason string
}

func (e *ArgsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
}

// Tool is a named unit of work with a fixed parameter contract.
// Run receives the raw JSON arguments and is responsible for binding them to
// its own request type via BindArgs.
type Tool interface {
	Name() string
	Run(ctx context.Context, args json.RawMessage) (any, error)
}

// BindArgs decodes raw JSON arguments into a tool's request struct.
// Unknown fields are rejected so callers cannot smuggle in parameters the
// tool's contract does not declare. Empty args bind to the zero request,
// letting each tool apply its own defaults.
func BindArgs(toolName string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ArgsError{Tool: toolName, Reason: err.Error()}
	}

	return nil
}
