// Package result renders scan events to the console, a report file and the
// live status shortcut.
package result

import (
	"github.com/CompassSecurity/envhunter/pkg/format"
	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/jenkins/scan"
	"github.com/CompassSecurity/envhunter/pkg/logging"
	"github.com/rs/zerolog/log"
)

// ConsoleReporter logs job narration, discoveries and the final summary.
// Quiet suppresses the narration and discoveries but never the summary.
type ConsoleReporter struct {
	Quiet bool
}

var _ scan.Observer = (*ConsoleReporter)(nil)

func (c *ConsoleReporter) JobStarted(job jenkins.Job, buildCount int) {
	if c.Quiet {
		return
	}
	log.Info().Str("job", job.Name).Int("builds", buildCount).Msg("Scanning job")
}

func (c *ConsoleReporter) DiscoveryFound(d scan.Discovery) {
	if c.Quiet {
		return
	}

	secretType := logging.SecretTypeEnvVar
	msg := "ENV"
	if d.Sensitive {
		secretType = logging.SecretTypeInjectedEnv
		msg = "SECRET"
	}

	event := logging.Hit().
		Str("type", string(secretType)).
		Str("job", d.Job.Name).
		Int("build", d.Build.Number).
		Str("url", d.Build.URL).
		Str("key", format.SanitizeValue(d.Var.Key)).
		Str("value", format.SanitizeValue(d.Var.Value))

	if len(d.Detectors) > 0 {
		event = event.Strs("detectors", d.Detectors)
	}

	event.Msg(msg)
}

func (c *ConsoleReporter) BuildProcessed(scan.BuildResult) {}

func (c *ConsoleReporter) ScanFinished(summary scan.ScanSummary) {
	event := log.Info().
		Int("jobsVisited", summary.JobsVisited).
		Int("buildsVisited", summary.BuildsVisited).
		Int("buildsWithSensitive", summary.BuildsWithSensitive).
		Int("totalSensitiveVars", summary.TotalSensitiveVars).
		Int("uniqueValues", summary.UniqueValues)

	if summary.TracksAll {
		event = event.Int("totalEnvVars", summary.TotalEnvVars)
	}

	if summary.Interrupted {
		event.Msg("Scan interrupted, partial summary")
		return
	}

	event.Msg("Scan finished")

	if summary.TotalSensitiveVars == 0 {
		log.Info().Msg("No sensitive variables detected")
	}
}
