package lambda

import (
	"context"
	"log/slog"

	"github.com/artpar/lambdaship/internal/core/deployment"
)

// DryRunDeployer logs what would be deployed without calling the platform.
type DryRunDeployer struct {
	logger *slog.Logger
}

// NewDryRunDeployer creates a deployer that only logs.
func NewDryRunDeployer(logger *slog.Logger) *DryRunDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunDeployer{logger: logger.With("component", "lambda", "dry_run", true)}
}

// Deploy logs the deployment and returns a synthetic result.
func (d *DryRunDeployer) Deploy(_ context.Context, archivePath string, cfg deployment.FunctionConfig) (*deployment.DeployResult, error) {
	d.logger.Info("would deploy function",
		"function", cfg.FunctionName,
		"archive", archivePath,
		"region", cfg.Region,
		"runtime", cfg.Runtime,
		"handler", cfg.Handler,
		"timeout", cfg.Timeout,
		"memory_size", cfg.MemorySize,
		"description", cfg.Description,
	)
	return &deployment.DeployResult{FunctionArn: "dry-run:" + cfg.FunctionName}, nil
}
