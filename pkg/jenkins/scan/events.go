package scan

import (
	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/scan/aggregate"
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
)

// BuildResult describes one processed build.
type BuildResult struct {
	Job   jenkins.Job
	Build jenkins.Build
	// Reported are the entries selected by the report policy
	Reported types.EnvSnapshot
	// Sensitive are the entries flagged by the matcher
	Sensitive types.EnvSnapshot
	// New are the reported entries never seen before in this scan
	New []types.EnvVar
}

// Discovery is the first occurrence of a (name, value) pair in the scan.
type Discovery struct {
	Job       jenkins.Job
	Build     jenkins.Build
	Var       types.EnvVar
	Sensitive bool
	// Detectors names the trufflehog detectors recognising the value, if enabled
	Detectors []string
}

// ScanSummary is emitted once when the traversal ends.
type ScanSummary struct {
	aggregate.Counters
	Interrupted bool
}

// Observer receives scan events in traversal order. Implementations are
// called from the scanning goroutine only.
type Observer interface {
	JobStarted(job jenkins.Job, buildCount int)
	DiscoveryFound(discovery Discovery)
	BuildProcessed(result BuildResult)
	ScanFinished(summary ScanSummary)
}

// MultiObserver forwards every event to each observer in order.
type MultiObserver []Observer

var _ Observer = MultiObserver(nil)

func (m MultiObserver) JobStarted(job jenkins.Job, buildCount int) {
	for _, o := range m {
		o.JobStarted(job, buildCount)
	}
}

func (m MultiObserver) DiscoveryFound(discovery Discovery) {
	for _, o := range m {
		o.DiscoveryFound(discovery)
	}
}

func (m MultiObserver) BuildProcessed(result BuildResult) {
	for _, o := range m {
		o.BuildProcessed(result)
	}
}

func (m MultiObserver) ScanFinished(summary ScanSummary) {
	for _, o := range m {
		o.ScanFinished(summary)
	}
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) JobStarted(jenkins.Job, int) {}
func (NopObserver) DiscoveryFound(Discovery) {}
func (NopObserver) BuildProcessed(BuildResult) {}
func (NopObserver) ScanFinished(ScanSummary) {}
