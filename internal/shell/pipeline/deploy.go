package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/core/parallel"
	"github.com/artpar/lambdaship/internal/shell/events"
)

// detailer is implemented by remote errors that carry platform detail.
type detailer interface {
	Detail() string
}

// deployAll deploys every function to each environment. Environments run
// strictly one after another; the first failing environment stops the rest.
func (r *Run) deployAll(ctx context.Context) error {
	envs := r.cfg.Environments()
	r.bus.Publish(events.WillDeployToEnvironments, events.EnvironmentsPayload{EnvironmentNames: slices.Clone(envs)})

	for _, env := range envs {
		envPayload := events.EnvironmentPayload{
			EnvironmentName: env,
			FunctionNames:   slices.Clone(r.functionNames),
		}
		r.bus.Publish(events.WillDeployFunctions, envPayload)

		targets := deployment.Targets(r.cfg.Prefix, []deployment.Environment{env}, r.functionNames)
		if err := parallel.ForEach(ctx, targets, r.cfg.Concurrency, r.deployOne); err != nil {
			return err
		}

		r.bus.Publish(events.DidDeployFunctions, envPayload)
	}

	r.bus.Publish(events.DidDeployToEnvironments, events.EnvironmentsPayload{EnvironmentNames: slices.Clone(envs)})
	return nil
}

// deployOne deploys one packaged function to one environment.
func (r *Run) deployOne(ctx context.Context, target deployment.Target) error {
	zipPath := deployment.ZipPath(r.tempDir, target.FunctionName)
	meta, ok := r.metaByFunction[target.FunctionName]
	size, sized := r.sizeByZip[zipPath]
	if !ok || !sized {
		panic(fmt.Sprintf("pipeline: deploying %s before it was packaged", target.FunctionName))
	}

	payload := events.DeployPayload{
		EnvironmentName:    target.Environment,
		FunctionName:       target.FunctionName,
		RemoteFunctionName: target.RemoteName,
		ZipFilePath:        zipPath,
		ZipFileSize:        size,
	}
	r.bus.Publish(events.WillDeployFunction, payload)

	cfg := r.cfg.FunctionConfig(target, meta, r.now())
	result, err := r.deps.Deployer.Deploy(ctx, zipPath, cfg)
	if err != nil {
		deployErr := &deployment.DeployError{
			FunctionName: target.FunctionName,
			Environment:  target.Environment,
			RemoteName:   target.RemoteName,
			Err:          err,
		}
		var d detailer
		if errors.As(err, &d) {
			deployErr.Detail = d.Detail()
		}
		return deployErr
	}

	if result != nil {
		payload.FunctionArn = result.FunctionArn
	}
	r.bus.Publish(events.DidDeployFunction, payload)
	return nil
}
