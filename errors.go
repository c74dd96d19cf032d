package adapters

import (
	"errors"
	"fmt"
)

// ToolError reports a failure while invoking an adapted UTCP tool. The
// underlying client error is carried unchanged and can be inspected with
// errors.Is / errors.As.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("utcp tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

var (
	// ErrNoProviderSource is returned when a MultiProviderClient is built
	// without a config, a providers file, or an inline provider list.
	ErrNoProviderSource = errors.New("no provider source: pass a config, a providers file path, or inline providers")

	// ErrProviderNotFound is returned when a named provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")
)
