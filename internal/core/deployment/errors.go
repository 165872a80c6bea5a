package deployment

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrMissingTimeout is returned when metadata has no positive timeout.
	ErrMissingTimeout = errors.New("metadata must define a positive timeout")

	// ErrMissingMemory is returned when metadata has neither memorySize nor memory.
	ErrMissingMemory = errors.New("metadata must define memorySize or memory")

	// ErrArchiveMissing is returned when the archive is absent after it was built.
	ErrArchiveMissing = errors.New("archive not found after build")

	// ErrRemoteNameCollision is returned when two targets share a remote name.
	ErrRemoteNameCollision = errors.New("remote function name collision")
)

// =============================================================================
// Pipeline Errors
// =============================================================================

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MetadataReadError reports a metadata file that is missing, unreadable,
// not valid structured data, or missing required fields.
type MetadataReadError struct {
	FunctionName string
	Path         string
	Err          error
}

func (e *MetadataReadError) Error() string {
	return fmt.Sprintf("read metadata for function %s (%s): %v", e.FunctionName, e.Path, e.Err)
}

func (e *MetadataReadError) Unwrap() error {
	return e.Err
}

// InstallError reports a dependency install that exited non-zero.
// Output holds the captured stdout and stderr of the process.
type InstallError struct {
	FunctionName string
	Dir          string
	Output       string
	Err          error
}

func (e *InstallError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("install dependencies for function %s in %s: %v", e.FunctionName, e.Dir, e.Err)
	}
	return fmt.Sprintf("install dependencies for function %s in %s: %v\n%s", e.FunctionName, e.Dir, e.Err, e.Output)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// ArchiveError reports an I/O failure while compressing a function directory.
type ArchiveError struct {
	FunctionName string
	SourceDir    string
	ZipPath      string
	Err          error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive function %s from %s to %s: %v", e.FunctionName, e.SourceDir, e.ZipPath, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// SizeCheckError reports an archive that could not be stat'ed after build.
type SizeCheckError struct {
	FunctionName string
	ZipPath      string
	Err          error
}

func (e *SizeCheckError) Error() string {
	return fmt.Sprintf("check archive size for function %s (%s): %v", e.FunctionName, e.ZipPath, e.Err)
}

func (e *SizeCheckError) Unwrap() error {
	return e.Err
}

// DeployError reports a deployment the remote platform rejected or that
// failed in transit. Detail carries the remote error code and message when
// the platform returned one.
type DeployError struct {
	FunctionName string
	Environment  Environment
	RemoteName   string
	Detail       string
	Err          error
}

func (e *DeployError) Error() string {
	msg := fmt.Sprintf("deploy function %s as %s to environment %s", e.FunctionName, e.RemoteName, e.Environment)
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *DeployError) Unwrap() error {
	return e.Err
}
