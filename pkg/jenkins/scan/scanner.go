// Package scan walks the jobs and builds of a Jenkins server and reports
// sensitive injected environment variables.
package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/scan/aggregate"
	"github.com/CompassSecurity/envhunter/pkg/scanner"
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
	"github.com/rs/zerolog/log"
)

// JenkinsAPI is the subset of the Jenkins client used by the scanner.
type JenkinsAPI interface {
	ListJobs(ctx context.Context) ([]jenkins.Job, error)
	ListBuilds(ctx context.Context, job jenkins.Job) ([]jenkins.Build, error)
	GetInjectedEnv(ctx context.Context, build jenkins.Build) types.EnvSnapshot
}

// Annotator enriches a discovered value with detector names.
type Annotator interface {
	Annotate(ctx context.Context, value string) []string
}

// ScanOptions contains configuration options for Jenkins scanning operations.
type ScanOptions struct {
	Client  JenkinsAPI
	Matcher *scanner.Matcher
	// Jobs restricts the scan to these job names; empty means all jobs
	Jobs      []string
	ReportAll bool
	// MaxBuilds limits the builds scanned per job, <= 0 scans all
	MaxBuilds int
	Observer  Observer
	Annotator Annotator
}

type Scanner interface {
	Scan(ctx context.Context) (*aggregate.ScanAggregate, error)
}

type jenkinsScanner struct {
	options ScanOptions
	policy  ReportPolicy
}

var _ Scanner = (*jenkinsScanner)(nil)

func NewScanner(opts ScanOptions) Scanner {
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &jenkinsScanner{
		options: opts,
		policy:  PolicyFor(opts.ReportAll),
	}
}

// Scan traverses jobs, then builds, then each build's injected environment.
// A failing job or build listing aborts the scan without a summary. When ctx is
// cancelled the scan stops before the next build and returns the partial
// aggregate together with the context error.
func (s *jenkinsScanner) Scan(ctx context.Context) (*aggregate.ScanAggregate, error) {
	if s.options.Client == nil || s.options.Matcher == nil {
		return nil, errors.New("scanner requires a client and a matcher")
	}

	agg := aggregate.NewScanAggregate(s.options.ReportAll)

	jobs, err := s.options.Client.ListJobs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return s.interrupted(ctx, agg)
		}
		return nil, err
	}

	for _, job := range s.filterJobs(jobs) {
		if ctx.Err() != nil {
			return s.interrupted(ctx, agg)
		}

		if err := s.scanJob(ctx, agg, job); err != nil {
			if ctx.Err() != nil {
				return s.interrupted(ctx, agg)
			}
			return nil, err
		}
	}

	if ctx.Err() != nil {
		return s.interrupted(ctx, agg)
	}

	s.options.Observer.ScanFinished(ScanSummary{Counters: agg.Snapshot()})
	return agg, nil
}

func (s *jenkinsScanner) interrupted(ctx context.Context, agg *aggregate.ScanAggregate) (*aggregate.ScanAggregate, error) {
	log.Warn().Msg("Scan interrupted, stopping before the next build")
	s.options.Observer.ScanFinished(ScanSummary{Counters: agg.Snapshot(), Interrupted: true})
	return agg, ctx.Err()
}

func (s *jenkinsScanner) filterJobs(jobs []jenkins.Job) []jenkins.Job {
	if len(s.options.Jobs) == 0 {
		return jobs
	}

	wanted := map[string]bool{}
	for _, name := range s.options.Jobs {
		wanted[name] = false
	}

	inScope := []jenkins.Job{}
	for _, job := range jobs {
		if _, ok := wanted[job.Name]; ok {
			wanted[job.Name] = true
			inScope = append(inScope, job)
		}
	}

	for _, name := range s.options.Jobs {
		if !wanted[name] {
			log.Warn().Str("job", name).Msg("Job not found on server, skipping")
		}
	}

	return inScope
}

func (s *jenkinsScanner) scanJob(ctx context.Context, agg *aggregate.ScanAggregate, job jenkins.Job) error {
	builds, err := s.options.Client.ListBuilds(ctx, job)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}

	agg.VisitJob()

	if s.options.MaxBuilds > 0 && len(builds) > s.options.MaxBuilds {
		log.Trace().Str("job", job.Name).Int("builds", len(builds)).Msg("Reached MaxBuilds, skip remaining")
		builds = builds[:s.options.MaxBuilds]
	}

	s.options.Observer.JobStarted(job, len(builds))

	for _, build := range builds {
		if ctx.Err() != nil {
			return nil
		}
		s.scanBuild(ctx, agg, job, build)
	}

	return nil
}

func (s *jenkinsScanner) scanBuild(ctx context.Context, agg *aggregate.ScanAggregate, job jenkins.Job, build jenkins.Build) {
	log.Debug().Str("job", job.Name).Int("build", build.Number).Str("url", build.URL).Msg("Build")

	snapshot := s.options.Client.GetInjectedEnv(ctx, build)
	sensitive := s.options.Matcher.Classify(snapshot)
	reported := s.policy(snapshot, sensitive)

	agg.VisitBuild()
	fresh := agg.Record(reported, sensitive)

	for _, v := range fresh {
		_, isSensitive := sensitive.Lookup(v.Key)
		discovery := Discovery{Job: job, Build: build, Var: v, Sensitive: isSensitive}
		if isSensitive && s.options.Annotator != nil {
			discovery.Detectors = s.options.Annotator.Annotate(ctx, v.Value)
		}
		s.options.Observer.DiscoveryFound(discovery)
	}

	s.options.Observer.BuildProcessed(BuildResult{
		Job:       job,
		Build:     build,
		Reported:  reported,
		Sensitive: sensitive,
		New:       fresh,
	})
}
