package journal

import (
	"context"
	"time"

	"github.com/artpar/lambdaship/internal/shell/events"
)

// Subscriber returns an event handler that records every didDeployFunction
// of runID. Write failures are logged and never reach the pipeline.
func (j *Journal) Subscriber(runID string, now func() time.Time) events.Handler {
	if now == nil {
		now = time.Now
	}
	return func(ev events.Event) {
		if ev.Name != events.DidDeployFunction {
			return
		}
		p, ok := ev.Payload.(events.DeployPayload)
		if !ok {
			return
		}

		err := j.RecordDeployment(context.Background(), &Deployment{
			RunID:        runID,
			Environment:  string(p.EnvironmentName),
			FunctionName: p.FunctionName,
			RemoteName:   p.RemoteFunctionName,
			ZipSize:      p.ZipFileSize,
			FunctionArn:  p.FunctionArn,
			DeployedAt:   now(),
		})
		if err != nil {
			j.logger.Warn("failed to record deployment",
				"run_id", runID,
				"function", p.FunctionName,
				"remote_name", p.RemoteFunctionName,
				"error", err,
			)
		}
	}
}
