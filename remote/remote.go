// Package remote runs commands on the hypervisor host.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrConnection marks transport or authentication failures reaching the host.
var ErrConnection = errors.New("connection error")

// Output is what a remote command produced. A non-zero ExitStatus is a
// command outcome, not a connection failure; callers decide per command
// whether it counts as success.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus int
}

// Runner executes a single command on the remote host.
type Runner interface {
	Run(ctx context.Context, command string) (Output, error)
}

// ConnectionError reports a failure to reach or authenticate with the host.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() []error { return []error{ErrConnection, e.Err} }
