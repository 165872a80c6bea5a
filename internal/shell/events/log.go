package events

import (
	"context"
	"log/slog"
)

// LogSubscriber returns a handler that logs every event. Batch and
// deployment events are logged at info level, per-step packaging events at
// debug level.
func LogSubscriber(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	return func(ev Event) {
		attrs := []any{"event", string(ev.Name)}
		level := slog.LevelInfo

		switch p := ev.Payload.(type) {
		case FunctionsPayload:
			attrs = append(attrs, "functions", p.FunctionNames)
		case FunctionPayload:
			attrs = append(attrs,
				"function", p.FunctionName,
				"function_dir", p.FunctionDir,
				"zip_file", p.ZipFilePath,
				"meta_file", p.MetaFilePath,
			)
			if ev.Name != WillPackageFunction && ev.Name != DidPackageFunction {
				level = slog.LevelDebug
			}
		case EnvironmentsPayload:
			envs := make([]string, len(p.EnvironmentNames))
			for i, env := range p.EnvironmentNames {
				envs[i] = env.String()
			}
			attrs = append(attrs, "environments", envs)
		case EnvironmentPayload:
			attrs = append(attrs,
				"environment", p.EnvironmentName.String(),
				"functions", p.FunctionNames,
			)
		case DeployPayload:
			attrs = append(attrs,
				"environment", p.EnvironmentName.String(),
				"function", p.FunctionName,
				"remote_function", p.RemoteFunctionName,
				"zip_size", p.ZipFileSize,
			)
			if p.FunctionArn != "" {
				attrs = append(attrs, "function_arn", p.FunctionArn)
			}
		}

		logger.Log(context.Background(), level, "lifecycle event", attrs...)
	}
}
