package deployment

import (
	"fmt"
	"path/filepath"
	"time"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultRegion              = "us-east-1"
	DefaultHandler             = "index.handler"
	DefaultRuntime             = "nodejs20.x"
	DefaultConcurrency         = 3
	DefaultFunctionsRoot       = "."
	DefaultFunctionDirTemplate = "${functionName}"
	DefaultMetaPathTemplate    = "${functionName}/meta.json"
	DefaultDescriptionTemplate = "Deployed on ${timestamp}"
)

// =============================================================================
// Options and Config
// =============================================================================

// Options are caller-supplied overrides. Zero values select the default.
type Options struct {
	Environments        []string
	Region              string
	Handler             string
	Role                string
	Prefix              string
	Runtime             string
	Concurrency         int
	FunctionsRoot       string
	FunctionDirTemplate string
	MetaPathTemplate    string
	DescriptionTemplate string
}

// Config is the resolved, immutable configuration of a run.
// Obtain one with NewConfig; do not mutate its fields afterwards.
type Config struct {
	Region        string
	Handler       string
	Role          string
	Prefix        string
	Runtime       string
	Concurrency   int
	FunctionsRoot string

	environments []Environment
	templates    Templates
}

// NewConfig merges opts onto the defaults and validates the result.
// Malformed templates are rejected here so they never surface mid-run.
func NewConfig(opts Options) (Config, error) {
	cfg := Config{
		Region:        orDefault(opts.Region, DefaultRegion),
		Handler:       orDefault(opts.Handler, DefaultHandler),
		Role:          opts.Role,
		Prefix:        opts.Prefix,
		Runtime:       orDefault(opts.Runtime, DefaultRuntime),
		Concurrency:   opts.Concurrency,
		FunctionsRoot: orDefault(opts.FunctionsRoot, DefaultFunctionsRoot),
	}

	switch {
	case cfg.Concurrency == 0:
		cfg.Concurrency = DefaultConcurrency
	case cfg.Concurrency < 0:
		return Config{}, &ConfigError{
			Field:   "concurrency",
			Message: fmt.Sprintf("must be a positive integer, got %d", opts.Concurrency),
		}
	}

	seen := make(map[string]bool, len(opts.Environments))
	for _, name := range opts.Environments {
		if name == "" {
			return Config{}, &ConfigError{Field: "environments", Message: "environment names must not be empty"}
		}
		if seen[name] {
			return Config{}, &ConfigError{Field: "environments", Message: fmt.Sprintf("duplicate environment %q", name)}
		}
		seen[name] = true
		cfg.environments = append(cfg.environments, Environment(name))
	}

	templates, err := CompileTemplates(map[TemplateName]string{
		TemplateFunctionDir: orDefault(opts.FunctionDirTemplate, DefaultFunctionDirTemplate),
		TemplateMetaPath:    orDefault(opts.MetaPathTemplate, DefaultMetaPathTemplate),
		TemplateDescription: orDefault(opts.DescriptionTemplate, DefaultDescriptionTemplate),
	})
	if err != nil {
		return Config{}, err
	}
	cfg.templates = templates

	return cfg, nil
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// =============================================================================
// Accessors
// =============================================================================

// Environments returns the configured environments in order. When none are
// configured it returns a single DefaultEnvironment.
func (c Config) Environments() []Environment {
	if len(c.environments) == 0 {
		return []Environment{DefaultEnvironment}
	}
	envs := make([]Environment, len(c.environments))
	copy(envs, c.environments)
	return envs
}

// Templates returns the compiled templates.
func (c Config) Templates() Templates {
	return c.templates
}

// FunctionDir renders the function directory, resolved against FunctionsRoot
// when relative.
func (c Config) FunctionDir(functionName string, now time.Time) string {
	return c.resolve(c.templates.Render(TemplateFunctionDir, Vars{FunctionName: functionName, Now: now}))
}

// MetaPath renders the metadata file path, resolved against FunctionsRoot
// when relative.
func (c Config) MetaPath(functionName string, now time.Time) string {
	return c.resolve(c.templates.Render(TemplateMetaPath, Vars{FunctionName: functionName, Now: now}))
}

// Description renders the remote function description.
func (c Config) Description(functionName string, now time.Time) string {
	return c.templates.Render(TemplateDescription, Vars{FunctionName: functionName, Now: now})
}

func (c Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(c.FunctionsRoot, path)
}

// FunctionConfig builds the remote configuration for one target.
func (c Config) FunctionConfig(target Target, meta FunctionMetadata, now time.Time) FunctionConfig {
	return FunctionConfig{
		Region:       c.Region,
		Handler:      c.Handler,
		Role:         c.Role,
		FunctionName: target.RemoteName,
		Description:  c.Description(target.FunctionName, now),
		Timeout:      meta.Timeout,
		MemorySize:   meta.EffectiveMemorySize(),
		Runtime:      c.Runtime,
	}
}
