// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"time"
)

// Result carries the outcome of one shell command.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// Shell executes a command through "sh -c" with a timeout and returns
	// stdout, stderr and the exit code separately. A timed-out command
	// reports TimedOut with exit code -1.
	Shell(ctx context.Context, workDir string, command string, timeout time.Duration) (Result, error)

	// Exists checks if a file exists at the given path.
	// The working directory is set to workDir if non-empty.
	Exists(ctx context.Context, workDir string, path string) bool
}
