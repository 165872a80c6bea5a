// Package pipeline packages functions and deploys them to every configured
// environment.
// This is part of the Imperative Shell - it drives the filesystem, the
// dependency installer, the archive builder and the remote deployer, and
// announces every phase on the lifecycle event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/shell/archive"
	"github.com/artpar/lambdaship/internal/shell/command"
	"github.com/artpar/lambdaship/internal/shell/events"
)

// =============================================================================
// Dependencies
// =============================================================================

// RemoteDeployer sends an archive and its configuration to the platform.
type RemoteDeployer interface {
	Deploy(ctx context.Context, archivePath string, cfg deployment.FunctionConfig) (*deployment.DeployResult, error)
}

// InstallCommand is the dependency installer run in each function directory.
type InstallCommand struct {
	Name string
	Args []string
}

// DefaultInstallCommand installs production dependencies with npm.
var DefaultInstallCommand = InstallCommand{Name: "npm", Args: []string{"install", "--production"}}

// Dependencies are the external collaborators of a run.
type Dependencies struct {
	Runner   command.Runner
	Archiver archive.Builder
	Deployer RemoteDeployer
	Install  InstallCommand
}

// =============================================================================
// Run
// =============================================================================

// Run packages a set of functions and deploys them. A Run owns a temporary
// directory for the archives for the duration of Execute.
type Run struct {
	id            string
	functionNames []string
	cfg           deployment.Config
	deps          Dependencies
	bus           *events.Bus
	now           func() time.Time
	tempRoot      string
	logger        *slog.Logger

	tempDir        string
	metaByFunction map[string]deployment.FunctionMetadata
	sizeByZip      map[string]int64
}

// Option configures a Run.
type Option func(*Run)

// WithClock replaces time.Now for template rendering.
func WithClock(now func() time.Time) Option {
	return func(r *Run) {
		r.now = now
	}
}

// WithTempRoot creates the run's temporary directory under root instead of
// the system default.
func WithTempRoot(root string) Option {
	return func(r *Run) {
		r.tempRoot = root
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Run) {
		r.logger = logger
	}
}

// WithBus publishes lifecycle events on bus instead of a private one.
func WithBus(bus *events.Bus) Option {
	return func(r *Run) {
		r.bus = bus
	}
}

// WithID sets the run id instead of generating one.
func WithID(id string) Option {
	return func(r *Run) {
		r.id = id
	}
}

// New creates a run for functionNames. It rejects empty or duplicate
// function names and targets whose remote names collide.
func New(functionNames []string, cfg deployment.Config, deps Dependencies, opts ...Option) (*Run, error) {
	if deps.Runner == nil || deps.Archiver == nil || deps.Deployer == nil {
		return nil, errors.New("pipeline: runner, archiver and deployer are required")
	}
	if deps.Install.Name == "" {
		deps.Install = DefaultInstallCommand
	}
	if err := deployment.ValidateFunctionNames(functionNames); err != nil {
		return nil, err
	}
	if err := deployment.ValidateTargets(deployment.Targets(cfg.Prefix, cfg.Environments(), functionNames)); err != nil {
		return nil, err
	}

	r := &Run{
		functionNames: append([]string(nil), functionNames...),
		cfg:           cfg,
		deps:          deps,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.bus == nil {
		r.bus = events.NewBus(r.logger)
	}
	if r.id == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		r.id = id.String()
	}
	r.logger = r.logger.With("run_id", r.id)

	return r, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.id
}

// Events returns the bus lifecycle events are published on.
func (r *Run) Events() *events.Bus {
	return r.bus
}

// Execute packages every function, then deploys them to each environment in
// order. It returns the first error encountered. The temporary directory is
// removed on every exit path. Execute must not be called concurrently.
func (r *Run) Execute(ctx context.Context) error {
	tempDir, err := os.MkdirTemp(r.tempRoot, "deploy")
	if err != nil {
		return fmt.Errorf("create temporary directory: %w", err)
	}
	r.tempDir = tempDir
	r.metaByFunction = make(map[string]deployment.FunctionMetadata, len(r.functionNames))
	r.sizeByZip = make(map[string]int64, len(r.functionNames))

	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			r.logger.Warn("failed to remove temporary directory", "dir", tempDir, "error", err)
		}
	}()

	r.logger.Info("starting run",
		"functions", len(r.functionNames),
		"environments", len(r.cfg.Environments()),
		"concurrency", r.cfg.Concurrency,
	)

	if err := r.packageAll(ctx); err != nil {
		return err
	}
	if err := r.deployAll(ctx); err != nil {
		return err
	}

	r.logger.Info("run completed")
	return nil
}
