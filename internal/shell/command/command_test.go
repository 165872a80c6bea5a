package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestExecRunner_Success(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	r := NewExecRunner(nil)
	err := r.Run(context.Background(), dir, "sh", "-c", "echo installed > marker")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "installed\n", string(data))
}

func TestExecRunner_NonZeroExitCapturesOutput(t *testing.T) {
	skipWithoutShell(t)

	r := NewExecRunner(nil)
	err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2; exit 3")

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode)
	assert.Contains(t, exitErr.Output, "out")
	assert.Contains(t, exitErr.Output, "err")
	assert.Contains(t, exitErr.Error(), "exited with code 3")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(nil)
	err := r.Run(context.Background(), t.TempDir(), "lambdaship-no-such-binary")

	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, -1, exitErr.ExitCode)
	assert.NotNil(t, exitErr.Unwrap())
}

func TestExecRunner_WithEnv(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()

	r := NewExecRunner(nil, WithEnv("NODE_ENV=production"))
	require.NoError(t, r.Run(context.Background(), dir, "sh", "-c", `printf "$NODE_ENV" > env`))

	data, err := os.ReadFile(filepath.Join(dir, "env"))
	require.NoError(t, err)
	assert.Equal(t, "production", string(data))
}
