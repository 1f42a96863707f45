package scan

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/CompassSecurity/envhunter/pkg/config"
	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/jenkins/jenkinstest"
	"github.com/CompassSecurity/envhunter/pkg/scanner"
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events      []string
	discoveries []Discovery
	builds      []BuildResult
	summaries   []ScanSummary
}

func (r *recorder) JobStarted(job jenkins.Job, buildCount int) {
	r.events = append(r.events, fmt.Sprintf("job %s %d", job.Name, buildCount))
}

func (r *recorder) DiscoveryFound(d Discovery) {
	r.discoveries = append(r.discoveries, d)
	r.events = append(r.events, fmt.Sprintf("discovery %s=%s", d.Var.Key, d.Var.Value))
}

func (r *recorder) BuildProcessed(b BuildResult) {
	r.builds = append(r.builds, b)
	r.events = append(r.events, fmt.Sprintf("build %s#%d", b.Job.Name, b.Build.Number))
}

func (r *recorder) ScanFinished(s ScanSummary) {
	r.summaries = append(r.summaries, s)
	r.events = append(r.events, "finished")
}

func newClient(t *testing.T, url string) *jenkins.Client {
	t.Helper()
	client, err := jenkins.NewClient(jenkins.ClientOptions{
		CommonScanOptions: config.CommonScanOptions{RequestTimeout: 5 * time.Second},
		BaseURL:           url,
	})
	require.NoError(t, err)
	return client
}

func runScan(t *testing.T, mock *jenkinstest.Jenkins, opts ScanOptions) (*recorder, ScanSummary, error) {
	t.Helper()
	server := jenkinstest.NewServer(mock)
	t.Cleanup(server.Close)

	rec := &recorder{}
	opts.Client = newClient(t, server.URL)
	if opts.Matcher == nil {
		m, err := scanner.NewMatcher("")
		require.NoError(t, err)
		opts.Matcher = m
	}
	opts.Observer = rec

	agg, err := NewScanner(opts).Scan(context.Background())
	if agg == nil {
		return rec, ScanSummary{}, err
	}
	return rec, ScanSummary{Counters: agg.Snapshot()}, err
}

func twoJobs() *jenkinstest.Jenkins {
	return &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{
		{Name: "A", Builds: []jenkinstest.Build{{Number: 1, EnvMap: jenkinstest.EnvMap("DB_PASS", "secret1", "COLOR", "blue")}}},
		{Name: "B"},
	}}
}

func TestScan_SensitiveOnly(t *testing.T) {
	rec, summary, err := runScan(t, twoJobs(), ScanOptions{})
	require.NoError(t, err)

	require.Len(t, rec.discoveries, 1)
	assert.Equal(t, "DB_PASS", rec.discoveries[0].Var.Key)
	assert.Equal(t, "secret1", rec.discoveries[0].Var.Value)
	assert.True(t, rec.discoveries[0].Sensitive)
	assert.Equal(t, "A", rec.discoveries[0].Job.Name)

	assert.Equal(t, 2, summary.JobsVisited)
	assert.Equal(t, 1, summary.BuildsVisited)
	assert.Equal(t, 1, summary.BuildsWithSensitive)
	assert.Equal(t, 1, summary.TotalSensitiveVars)
	assert.Equal(t, 0, summary.TotalEnvVars)

	assert.Equal(t, []string{"job A 1", "discovery DB_PASS=secret1", "build A#1", "job B 0", "finished"}, rec.events)
}

func TestScan_ReportAll(t *testing.T) {
	rec, summary, err := runScan(t, twoJobs(), ScanOptions{ReportAll: true})
	require.NoError(t, err)

	require.Len(t, rec.discoveries, 2)
	assert.Equal(t, "DB_PASS", rec.discoveries[0].Var.Key)
	assert.True(t, rec.discoveries[0].Sensitive)
	assert.Equal(t, "COLOR", rec.discoveries[1].Var.Key)
	assert.False(t, rec.discoveries[1].Sensitive)

	require.Len(t, rec.builds, 1)
	assert.Equal(t, []string{"DB_PASS", "COLOR"}, rec.builds[0].Reported.Keys())
	assert.Equal(t, []string{"DB_PASS"}, rec.builds[0].Sensitive.Keys())

	assert.Equal(t, 1, summary.TotalSensitiveVars)
	assert.Equal(t, 2, summary.TotalEnvVars)
}

func TestScan_MissingEnvIsNotFatal(t *testing.T) {
	mock := &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{
		{Name: "A", Builds: []jenkinstest.Build{
			{Number: 2},
			{Number: 1, EnvStatus: http.StatusInternalServerError},
			{Number: 0, EnvBody: "not json"},
		}},
	}}

	rec, summary, err := runScan(t, mock, ScanOptions{})
	require.NoError(t, err)

	assert.Empty(t, rec.discoveries)
	assert.Len(t, rec.builds, 3)
	assert.Equal(t, 3, summary.BuildsVisited)
	assert.Equal(t, 0, summary.BuildsWithSensitive)
	assert.Len(t, rec.summaries, 1)
}

func TestScan_JobListingFailureIsFatal(t *testing.T) {
	mock := twoJobs()
	mock.JobListingStatus = http.StatusInternalServerError

	rec, _, err := runScan(t, mock, ScanOptions{})
	require.Error(t, err)

	var statusErr *jenkins.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.ErrorIs(t, err, jenkins.ErrUnexpectedStatus)
	assert.Empty(t, rec.summaries)
	assert.Empty(t, rec.events)
}

func TestScan_BuildListingFailureIsFatal(t *testing.T) {
	mock := twoJobs()
	mock.Jobs[1].BuildListingStatus = http.StatusForbidden

	rec, _, err := runScan(t, mock, ScanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job B")
	assert.Empty(t, rec.summaries)
	// job A was already reported before the failure
	assert.Len(t, rec.discoveries, 1)
}

func TestScan_DeduplicatesAcrossBuilds(t *testing.T) {
	builds := []jenkinstest.Build{}
	for n := 5; n >= 1; n-- {
		env := jenkinstest.EnvMap("COLOR", "blue")
		if n == 1 || n == 5 {
			env = jenkinstest.EnvMap("DB_PASS", "secret1")
		}
		builds = append(builds, jenkinstest.Build{Number: n, EnvMap: env})
	}
	mock := &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{{Name: "A", Builds: builds}}}

	rec, summary, err := runScan(t, mock, ScanOptions{})
	require.NoError(t, err)

	require.Len(t, rec.discoveries, 1)
	assert.Equal(t, 5, rec.discoveries[0].Build.Number)
	assert.Equal(t, 2, summary.TotalSensitiveVars)
	assert.Equal(t, 2, summary.BuildsWithSensitive)
	assert.Equal(t, 1, summary.UniqueValues)
}

func TestScan_DeduplicatesAcrossJobs(t *testing.T) {
	mock := &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{
		{Name: "A", Builds: []jenkinstest.Build{{Number: 1, EnvMap: jenkinstest.EnvMap("TOKEN", "t1")}}},
		{Name: "B", Builds: []jenkinstest.Build{{Number: 1, EnvMap: jenkinstest.EnvMap("TOKEN", "t1", "API_KEY", "k")}}},
	}}

	rec, _, err := runScan(t, mock, ScanOptions{})
	require.NoError(t, err)

	require.Len(t, rec.discoveries, 2)
	assert.Equal(t, "A", rec.discoveries[0].Job.Name)
	assert.Equal(t, "API_KEY", rec.discoveries[1].Var.Key)
	require.Len(t, rec.builds, 2)
	assert.Equal(t, []string{"TOKEN", "API_KEY"}, rec.builds[1].Reported.Keys())
	assert.Len(t, rec.builds[1].New, 1)
}

func TestScan_JobFilter(t *testing.T) {
	mock := twoJobs()

	rec, summary, err := runScan(t, mock, ScanOptions{Jobs: []string{"B", "missing"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"job B 0", "finished"}, rec.events)
	assert.Equal(t, 1, summary.JobsVisited)

	for _, path := range mock.RequestedPaths() {
		assert.NotContains(t, path, "/job/A/")
	}
}

func TestScan_MaxBuilds(t *testing.T) {
	mock := &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{{Name: "A", Builds: []jenkinstest.Build{
		{Number: 3, EnvMap: jenkinstest.EnvMap("TOKEN", "3")},
		{Number: 2, EnvMap: jenkinstest.EnvMap("TOKEN", "2")},
		{Number: 1, EnvMap: jenkinstest.EnvMap("TOKEN", "1")},
	}}}}

	rec, summary, err := runScan(t, mock, ScanOptions{MaxBuilds: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.BuildsVisited)
	require.Len(t, rec.builds, 2)
	assert.Equal(t, 3, rec.builds[0].Build.Number)
	assert.Equal(t, 2, rec.builds[1].Build.Number)
	assert.Equal(t, "job A 2", rec.events[0])
}

func TestScan_CustomPattern(t *testing.T) {
	m, err := scanner.NewMatcher("^aws_")
	require.NoError(t, err)

	mock := &jenkinstest.Jenkins{Jobs: []jenkinstest.Job{{Name: "A", Builds: []jenkinstest.Build{
		{Number: 1, EnvMap: jenkinstest.EnvMap("AWS_SECRET_ACCESS_KEY", "x", "DB_PASS", "y")},
	}}}}

	rec, _, err := runScan(t, mock, ScanOptions{Matcher: m})
	require.NoError(t, err)
	require.Len(t, rec.discoveries, 1)
	assert.Equal(t, "AWS_SECRET_ACCESS_KEY", rec.discoveries[0].Var.Key)
}

type staticAnnotator []string

func (a staticAnnotator) Annotate(_ context.Context, _ string) []string {
	return a
}

func TestScan_AnnotatesSensitiveDiscoveries(t *testing.T) {
	rec, _, err := runScan(t, twoJobs(), ScanOptions{ReportAll: true, Annotator: staticAnnotator{"AWS"}})
	require.NoError(t, err)

	require.Len(t, rec.discoveries, 2)
	assert.Equal(t, []string{"AWS"}, rec.discoveries[0].Detectors)
	assert.Nil(t, rec.discoveries[1].Detectors)
}

func TestScan_RequiresClientAndMatcher(t *testing.T) {
	_, err := NewScanner(ScanOptions{}).Scan(context.Background())
	assert.Error(t, err)
}

// cancellingAPI cancels the scan after the first environment fetch.
type cancellingAPI struct {
	cancel  context.CancelFunc
	fetched int
}

func (c *cancellingAPI) ListJobs(context.Context) ([]jenkins.Job, error) {
	return []jenkins.Job{{Name: "A", URL: "http://h/job/A/"}, {Name: "B", URL: "http://h/job/B/"}}, nil
}

func (c *cancellingAPI) ListBuilds(_ context.Context, job jenkins.Job) ([]jenkins.Build, error) {
	return []jenkins.Build{{Number: 2, URL: job.URL + "2/"}, {Number: 1, URL: job.URL + "1/"}}, nil
}

func (c *cancellingAPI) GetInjectedEnv(context.Context, jenkins.Build) types.EnvSnapshot {
	c.fetched++
	c.cancel()
	return types.EnvSnapshot{{Key: "TOKEN", Value: "t", Raw: `"t"`}}
}

func TestScan_CancellationReturnsPartialAggregate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &cancellingAPI{cancel: cancel}
	m, err := scanner.NewMatcher("")
	require.NoError(t, err)
	rec := &recorder{}

	agg, err := NewScanner(ScanOptions{Client: api, Matcher: m, Observer: rec}).Scan(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, agg)

	assert.Equal(t, 1, api.fetched)
	assert.Equal(t, 1, agg.Snapshot().BuildsVisited)
	assert.Equal(t, 1, agg.Snapshot().TotalSensitiveVars)
	require.Len(t, rec.summaries, 1)
	assert.True(t, rec.summaries[0].Interrupted)
}

func TestMultiObserver(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := MultiObserver{a, NopObserver{}, b}

	m.JobStarted(jenkins.Job{Name: "A"}, 3)
	m.DiscoveryFound(Discovery{Var: types.EnvVar{Key: "K", Value: "V"}})
	m.BuildProcessed(BuildResult{Job: jenkins.Job{Name: "A"}, Build: jenkins.Build{Number: 1}})
	m.ScanFinished(ScanSummary{})

	expected := []string{"job A 3", "discovery K=V", "build A#1", "finished"}
	assert.Equal(t, expected, a.events)
	assert.Equal(t, expected, b.events)
}

func TestPolicyFor(t *testing.T) {
	snapshot := types.EnvSnapshot{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}}
	sensitive := snapshot[:1]

	assert.Equal(t, sensitive, PolicyFor(false)(snapshot, sensitive))
	assert.Equal(t, snapshot, PolicyFor(true)(snapshot, sensitive))
}

func TestScan_ConcurrentRunsKeepSeparateAggregates(t *testing.T) {
	server := jenkinstest.NewServer(twoJobs())
	t.Cleanup(server.Close)

	m, err := scanner.NewMatcher("")
	require.NoError(t, err)
	s := NewScanner(ScanOptions{Client: newClient(t, server.URL), Matcher: m})

	const runs = 4
	summaries := make([]ScanSummary, runs)
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg, err := s.Scan(context.Background())
			errs[i] = err
			if agg != nil {
				summaries[i] = ScanSummary{Counters: agg.Snapshot()}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, summaries[i].JobsVisited)
		assert.Equal(t, 1, summaries[i].BuildsVisited)
		assert.Equal(t, 1, summaries[i].TotalSensitiveVars)
		assert.Equal(t, 1, summaries[i].UniqueValues)
	}
}
