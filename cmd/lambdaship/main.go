package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/shell/journal"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitPackageError = 2
	ExitDeployError  = 3
	ExitJournalError = 4
)

// CLIError carries the exit code of a failed command.
type CLIError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(&app{stdout: stdout, stderr: stderr})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.ExitCode
	}

	var (
		metaErr    *deployment.MetadataReadError
		installErr *deployment.InstallError
		archiveErr *deployment.ArchiveError
		sizeErr    *deployment.SizeCheckError
		deployErr  *deployment.DeployError
		journalErr *journal.JournalError
	)
	switch {
	case errors.As(err, &metaErr), errors.As(err, &installErr),
		errors.As(err, &archiveErr), errors.As(err, &sizeErr):
		return ExitPackageError
	case errors.As(err, &deployErr):
		return ExitDeployError
	case errors.As(err, &journalErr):
		return ExitJournalError
	default:
		return ExitConfigError
	}
}
