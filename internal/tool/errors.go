package tool

import "errors"

var (
	// ErrToolMissing is returned when a required external tool cannot
	// be found in the tools directory or on PATH.
	ErrToolMissing = errors.New("required tool not found")

	// ErrUnknownTool is returned when a name does not match any
	// registered tool.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolExecutionFailed is returned when a tool process exits
	// with a status its registration does not tolerate.
	ErrToolExecutionFailed = errors.New("tool execution failed")
)
