package deployment

import (
	"fmt"
	"path/filepath"
)

// =============================================================================
// Naming Functions
// =============================================================================

// RemoteFunctionName derives the platform-visible function name.
// Pattern: {prefix}{environment}-{functionName}, or {prefix}{functionName}
// for the default environment.
//
// Example:
//
//	RemoteFunctionName("myapp-", "staging", "worker") // returns "myapp-staging-worker"
//	RemoteFunctionName("myapp-", DefaultEnvironment, "worker") // returns "myapp-worker"
func RemoteFunctionName(prefix string, env Environment, functionName string) string {
	if env.IsDefault() {
		return prefix + functionName
	}
	return prefix + string(env) + "-" + functionName
}

// ZipPath returns the run-scoped archive path of a function.
// Pattern: {tempDir}/{functionName}.zip
func ZipPath(tempDir, functionName string) string {
	return filepath.Join(tempDir, functionName+".zip")
}

// Targets expands environments and function names into deployment targets,
// environments outermost, both in the given order.
func Targets(prefix string, envs []Environment, functionNames []string) []Target {
	targets := make([]Target, 0, len(envs)*len(functionNames))
	for _, env := range envs {
		for _, fn := range functionNames {
			targets = append(targets, Target{
				FunctionName: fn,
				Environment:  env,
				RemoteName:   RemoteFunctionName(prefix, env, fn),
			})
		}
	}
	return targets
}

// ValidateFunctionNames checks that names are non-empty, unique and usable
// as a single path element, so every archive stays inside the run's
// temporary directory.
func ValidateFunctionNames(functionNames []string) error {
	seen := make(map[string]bool, len(functionNames))
	for _, fn := range functionNames {
		if fn == "" {
			return &ConfigError{Field: "functionNames", Message: "function names must not be empty"}
		}
		if fn == "." || fn == ".." || filepath.Base(fn) != fn {
			return &ConfigError{Field: "functionNames", Message: fmt.Sprintf("function %q must be a single path element", fn)}
		}
		if seen[fn] {
			return &ConfigError{Field: "functionNames", Message: fmt.Sprintf("duplicate function %q", fn)}
		}
		seen[fn] = true
	}
	return nil
}

// ValidateTargets checks that no two targets share a remote name.
func ValidateTargets(targets []Target) error {
	byRemote := make(map[string]Target, len(targets))
	for _, t := range targets {
		if prev, ok := byRemote[t.RemoteName]; ok {
			return &ConfigError{
				Field: "prefix",
				Message: fmt.Sprintf("%s (environment %s) and %s (environment %s) both deploy as %q",
					prev.FunctionName, prev.Environment, t.FunctionName, t.Environment, t.RemoteName),
				Err: ErrRemoteNameCollision,
			}
		}
		byRemote[t.RemoteName] = t
	}
	return nil
}
