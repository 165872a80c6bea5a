// Package deployment provides pure functions and values for packaging and
// deploying functions.
//
// This package contains the functional core of lambdaship: configuration
// resolution, template rendering, remote naming, metadata parsing and the
// typed errors of the pipeline. Nothing here performs I/O; the imperative
// shell (internal/shell/pipeline) reads files, spawns processes and calls
// the remote platform, and passes plain values in and out of this package.
//
// # Functions
//
//   - Config: Resolve caller options onto defaults (NewConfig)
//   - Templates: Compile and render path and description templates (CompileTemplate)
//   - Naming: Derive remote function names and archive paths (RemoteFunctionName, ZipPath)
//   - Metadata: Parse per-function metadata files (ParseFunctionMetadata)
//
// # Usage
//
//	cfg, err := deployment.NewConfig(deployment.Options{Prefix: "myapp-"})
//	dir := cfg.FunctionDir("worker", time.Now())
//	name := deployment.RemoteFunctionName(cfg.Prefix, "staging", "worker")
//	// name == "myapp-staging-worker"
package deployment
