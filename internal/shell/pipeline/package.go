package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/artpar/lambdaship/internal/core/deployment"
	"github.com/artpar/lambdaship/internal/core/parallel"
	"github.com/artpar/lambdaship/internal/shell/command"
	"github.com/artpar/lambdaship/internal/shell/events"
)

// packaged is the outcome of packaging one function.
type packaged struct {
	artifact deployment.Artifact
	meta     deployment.FunctionMetadata
}

// packageAll packages every function with bounded concurrency. The
// didPackageFunctions event is only published when all of them succeed.
func (r *Run) packageAll(ctx context.Context) error {
	payload := func() events.FunctionsPayload {
		return events.FunctionsPayload{FunctionNames: slices.Clone(r.functionNames)}
	}

	r.bus.Publish(events.WillPackageFunctions, payload())

	results, err := parallel.Map(ctx, r.functionNames, r.cfg.Concurrency, r.packageOne)
	if err != nil {
		return err
	}

	// Each function contributes one entry; the maps are read-only from here on.
	for _, p := range results {
		r.metaByFunction[p.artifact.FunctionName] = p.meta
		r.sizeByZip[p.artifact.ZipPath] = p.artifact.Size
	}

	r.bus.Publish(events.DidPackageFunctions, payload())
	return nil
}

// packageOne reads metadata, installs dependencies and builds the archive of
// one function. Each step runs only after the previous one succeeded.
func (r *Run) packageOne(ctx context.Context, functionName string) (packaged, error) {
	now := r.now()
	functionDir := r.cfg.FunctionDir(functionName, now)
	zipPath := deployment.ZipPath(r.tempDir, functionName)
	metaPath := r.cfg.MetaPath(functionName, now)

	payload := events.FunctionPayload{
		FunctionName: functionName,
		FunctionDir:  functionDir,
		ZipFilePath:  zipPath,
		MetaFilePath: metaPath,
	}

	r.bus.Publish(events.WillPackageFunction, payload)

	r.bus.Publish(events.WillReadFunctionMetaFile, payload)
	meta, err := readMetadata(functionName, metaPath)
	if err != nil {
		return packaged{}, err
	}
	r.bus.Publish(events.DidReadFunctionMetaFile, payload)

	r.bus.Publish(events.WillInstallFunction, payload)
	if err := r.install(ctx, functionName, functionDir); err != nil {
		return packaged{}, err
	}
	r.bus.Publish(events.DidInstallFunction, payload)

	r.bus.Publish(events.WillZipFunction, payload)
	size, err := r.zip(ctx, functionName, functionDir, zipPath)
	if err != nil {
		return packaged{}, err
	}
	r.bus.Publish(events.DidZipFunction, payload)

	r.bus.Publish(events.DidPackageFunction, payload)

	return packaged{
		artifact: deployment.Artifact{FunctionName: functionName, ZipPath: zipPath, Size: size},
		meta:     meta,
	}, nil
}

func readMetadata(functionName, metaPath string) (deployment.FunctionMetadata, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return deployment.FunctionMetadata{}, &deployment.MetadataReadError{FunctionName: functionName, Path: metaPath, Err: err}
	}
	meta, err := deployment.ParseFunctionMetadata(metaPath, data)
	if err != nil {
		return deployment.FunctionMetadata{}, &deployment.MetadataReadError{FunctionName: functionName, Path: metaPath, Err: err}
	}
	return meta, nil
}

func (r *Run) install(ctx context.Context, functionName, functionDir string) error {
	err := r.deps.Runner.Run(ctx, functionDir, r.deps.Install.Name, r.deps.Install.Args...)
	if err == nil {
		return nil
	}

	installErr := &deployment.InstallError{FunctionName: functionName, Dir: functionDir, Err: err}
	var exitErr *command.ExitError
	if errors.As(err, &exitErr) {
		installErr.Output = exitErr.Output
	}
	return installErr
}

// zip builds the archive and returns the size of the file actually written.
func (r *Run) zip(ctx context.Context, functionName, functionDir, zipPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return 0, &deployment.ArchiveError{FunctionName: functionName, SourceDir: functionDir, ZipPath: zipPath, Err: err}
	}

	if err := r.deps.Archiver.Build(ctx, functionDir, zipPath); err != nil {
		return 0, &deployment.ArchiveError{FunctionName: functionName, SourceDir: functionDir, ZipPath: zipPath, Err: err}
	}

	info, err := os.Stat(zipPath)
	if err != nil {
		return 0, &deployment.SizeCheckError{
			FunctionName: functionName,
			ZipPath:      zipPath,
			Err:          fmt.Errorf("%w: %w", deployment.ErrArchiveMissing, err),
		}
	}
	return info.Size(), nil
}
