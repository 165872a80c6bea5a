// Package metrics meters pipeline runs with Prometheus collectors.
// This is part of the Imperative Shell - the recorder observes lifecycle
// events and the registry is written out for the node_exporter textfile
// collector after the run.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/lambdaship/internal/shell/events"
)

const namespace = "lambdaship"

// Phase labels of the phase duration histogram.
const (
	PhasePackage           = "package"
	PhasePackageFunction   = "package_function"
	PhaseReadMeta          = "read_meta"
	PhaseInstall           = "install"
	PhaseZip               = "zip"
	PhaseDeploy            = "deploy"
	PhaseDeployEnvironment = "deploy_environment"
	PhaseDeployFunction    = "deploy_function"
)

// phaseBoundary maps an event to the phase it opens or closes.
type phaseBoundary struct {
	phase string
	start bool
}

var boundaries = map[events.Name]phaseBoundary{
	events.WillPackageFunctions:     {PhasePackage, true},
	events.DidPackageFunctions:      {PhasePackage, false},
	events.WillPackageFunction:      {PhasePackageFunction, true},
	events.DidPackageFunction:       {PhasePackageFunction, false},
	events.WillReadFunctionMetaFile: {PhaseReadMeta, true},
	events.DidReadFunctionMetaFile:  {PhaseReadMeta, false},
	events.WillInstallFunction:      {PhaseInstall, true},
	events.DidInstallFunction:       {PhaseInstall, false},
	events.WillZipFunction:          {PhaseZip, true},
	events.DidZipFunction:           {PhaseZip, false},
	events.WillDeployToEnvironments: {PhaseDeploy, true},
	events.DidDeployToEnvironments:  {PhaseDeploy, false},
	events.WillDeployFunctions:      {PhaseDeployEnvironment, true},
	events.DidDeployFunctions:       {PhaseDeployEnvironment, false},
	events.WillDeployFunction:       {PhaseDeployFunction, true},
	events.DidDeployFunction:        {PhaseDeployFunction, false},
}

// =============================================================================
// Recorder
// =============================================================================

// Recorder holds the collectors of one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	packaged      prometheus.Counter
	deployed      *prometheus.CounterVec
	archiveBytes  prometheus.Histogram
	phaseDuration *prometheus.HistogramVec

	mu       sync.Mutex
	now      func() time.Time
	started  map[string]time.Time
	observed map[string]bool
}

// NewRecorder creates a recorder. A nil clock uses time.Now.
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		packaged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "functions_packaged_total",
			Help:      "Functions packaged into archives",
		}),
		deployed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "functions_deployed_total",
			Help:      "Functions deployed, by environment",
		}, []string{"environment"}),
		archiveBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "archive_bytes",
			Help:      "Size of deployed archives in bytes",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"phase"}),
		now:      now,
		started:  make(map[string]time.Time),
		observed: make(map[string]bool),
	}
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handle observes one lifecycle event. Subscribe it with Bus.SubscribeAll.
func (r *Recorder) Handle(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := boundaries[ev.Name]; ok {
		key := b.phase + "/" + subject(ev.Payload)
		if b.start {
			r.started[key] = r.now()
		} else if start, ok := r.started[key]; ok {
			r.phaseDuration.WithLabelValues(b.phase).Observe(r.now().Sub(start).Seconds())
			delete(r.started, key)
		}
	}

	switch ev.Name {
	case events.DidPackageFunction:
		r.packaged.Inc()
	case events.DidDeployFunction:
		p, ok := ev.Payload.(events.DeployPayload)
		if !ok {
			return
		}
		r.deployed.WithLabelValues(p.EnvironmentName.String()).Inc()
		// An archive is deployed once per environment; size it once.
		if !r.observed[p.ZipFilePath] {
			r.observed[p.ZipFilePath] = true
			r.archiveBytes.Observe(float64(p.ZipFileSize))
		}
	}
}

// subject identifies the function or environment a phase event is about, so
// concurrent phases of different functions pair up correctly.
func subject(payload any) string {
	switch p := payload.(type) {
	case events.FunctionPayload:
		return p.FunctionName
	case events.EnvironmentPayload:
		return p.EnvironmentName.String()
	case events.DeployPayload:
		return p.RemoteFunctionName
	default:
		return ""
	}
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
