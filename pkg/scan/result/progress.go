package result

import (
	"sync/atomic"

	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/jenkins/scan"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Progress tracks live counters for the status shortcut. Events arrive from
// the scan goroutine while Status is read from the keyboard listener.
type Progress struct {
	currentJob          atomic.Value
	jobsStarted         atomic.Int64
	buildsVisited       atomic.Int64
	buildsWithSensitive atomic.Int64
	sensitiveVars       atomic.Int64
	discoveries         atomic.Int64
	finished            atomic.Bool
}

var _ scan.Observer = (*Progress)(nil)

func NewProgress() *Progress {
	p := &Progress{}
	p.currentJob.Store("")
	return p
}

func (p *Progress) JobStarted(job jenkins.Job, _ int) {
	p.currentJob.Store(job.Name)
	p.jobsStarted.Add(1)
}

func (p *Progress) DiscoveryFound(scan.Discovery) {
	p.discoveries.Add(1)
}

func (p *Progress) BuildProcessed(r scan.BuildResult) {
	p.buildsVisited.Add(1)
	if len(r.Sensitive) > 0 {
		p.buildsWithSensitive.Add(1)
		p.sensitiveVars.Add(int64(len(r.Sensitive)))
	}
}

func (p *Progress) ScanFinished(scan.ScanSummary) {
	p.finished.Store(true)
}

// Status is a logging.ShortcutStatusFN.
func (p *Progress) Status() *zerolog.Event {
	return log.Info().
		Str("currentJob", p.currentJob.Load().(string)).
		Int64("jobsStarted", p.jobsStarted.Load()).
		Int64("buildsVisited", p.buildsVisited.Load()).
		Int64("buildsWithSensitive", p.buildsWithSensitive.Load()).
		Int64("totalSensitiveVars", p.sensitiveVars.Load()).
		Int64("discoveries", p.discoveries.Load()).
		Bool("finished", p.finished.Load())
}
