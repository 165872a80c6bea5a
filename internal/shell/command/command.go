// Package command runs external processes such as the dependency installer.
// This is part of the Imperative Shell - handles process execution.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner runs a command in a working directory.
type Runner interface {
	// Run executes name with args in dir and returns nil when it exits zero.
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExitError reports a command that failed to start or exited non-zero.
// Output holds its combined stdout and stderr.
type ExitError struct {
	Command  string
	Dir      string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExitError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s (in %s) exited with code %d", e.Command, e.Dir, e.ExitCode)
	}
	return fmt.Sprintf("%s (in %s): %v", e.Command, e.Dir, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	env    []string
	logger *slog.Logger
}

// ExecRunnerOption configures an ExecRunner.
type ExecRunnerOption func(*ExecRunner)

// WithEnv appends KEY=VALUE entries to the inherited environment.
func WithEnv(env ...string) ExecRunnerOption {
	return func(r *ExecRunner) {
		r.env = append(r.env, env...)
	}
}

// NewExecRunner creates a runner that inherits the current environment.
func NewExecRunner(logger *slog.Logger, opts ...ExecRunnerOption) *ExecRunner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ExecRunner{logger: logger.With("component", "command")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command and captures its output.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	commandLine := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.logger.Debug("running command", "command", commandLine, "dir", dir)

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitErr := &ExitError{
		Command:  commandLine,
		Dir:      dir,
		ExitCode: -1,
		Output:   output.String(),
		Err:      err,
	}
	var procErr *exec.ExitError
	if errors.As(err, &procErr) {
		exitErr.ExitCode = procErr.ExitCode()
	}
	return exitErr
}
