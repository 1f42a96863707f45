package result

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/jenkins/scan"
	"github.com/CompassSecurity/envhunter/pkg/logging"
	"github.com/CompassSecurity/envhunter/pkg/scan/aggregate"
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	originalLogger := log.Logger
	originalLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = originalLogger
		zerolog.SetGlobalLevel(originalLevel)
		logging.SetGlobalHitWriter(nil)
	})

	var buf bytes.Buffer
	hitWriter := logging.NewHitLevelWriter(&buf)
	log.Logger = zerolog.New(hitWriter)
	logging.SetGlobalHitWriter(hitWriter)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	return &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	entries := []map[string]interface{}{}
	for _, line := range bytes.Split(buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		entries = append(entries, entry)
	}
	return entries
}

var (
	testJob   = jenkins.Job{Name: "deploy", URL: "http://jenkins/job/deploy/"}
	testBuild = jenkins.Build{Number: 7, URL: "http://jenkins/job/deploy/7/"}
)

func TestConsoleReporter_Discovery(t *testing.T) {
	buf := captureLog(t)
	c := &ConsoleReporter{}

	c.DiscoveryFound(scan.Discovery{
		Job:       testJob,
		Build:     testBuild,
		Var:       types.EnvVar{Key: "DB_PASS", Value: "\x1b[31msecret1\x1b[0m"},
		Sensitive: true,
		Detectors: []string{"AWS"},
	})

	entries := logLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "hit", entries[0]["level"])
	assert.Equal(t, "SECRET", entries[0]["message"])
	assert.Equal(t, "injected-env", entries[0]["type"])
	assert.Equal(t, "DB_PASS", entries[0]["key"])
	assert.Equal(t, "secret1", entries[0]["value"])
	assert.Equal(t, "deploy", entries[0]["job"])
	assert.Equal(t, float64(7), entries[0]["build"])
	assert.Equal(t, testBuild.URL, entries[0]["url"])
	assert.Equal(t, []interface{}{"AWS"}, entries[0]["detectors"])
}

func TestConsoleReporter_NonSensitiveDiscovery(t *testing.T) {
	buf := captureLog(t)
	c := &ConsoleReporter{}

	c.DiscoveryFound(scan.Discovery{Job: testJob, Build: testBuild, Var: types.EnvVar{Key: "COLOR", Value: "blue"}})

	entries := logLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ENV", entries[0]["message"])
	assert.Equal(t, "env", entries[0]["type"])
	_, hasDetectors := entries[0]["detectors"]
	assert.False(t, hasDetectors)
}

func TestConsoleReporter_JobStarted(t *testing.T) {
	buf := captureLog(t)
	c := &ConsoleReporter{}

	c.JobStarted(testJob, 12)

	entries := logLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Scanning job", entries[0]["message"])
	assert.Equal(t, float64(12), entries[0]["builds"])
}

func TestConsoleReporter_QuietKeepsSummary(t *testing.T) {
	buf := captureLog(t)
	c := &ConsoleReporter{Quiet: true}

	c.JobStarted(testJob, 1)
	c.DiscoveryFound(scan.Discovery{Var: types.EnvVar{Key: "DB_PASS", Value: "x"}, Sensitive: true})
	c.ScanFinished(scan.ScanSummary{Counters: aggregate.Counters{JobsVisited: 1, BuildsVisited: 1, BuildsWithSensitive: 1, TotalSensitiveVars: 1, UniqueValues: 1}})

	entries := logLines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Scan finished", entries[0]["message"])
	assert.Equal(t, float64(1), entries[0]["totalSensitiveVars"])
	_, hasTotal := entries[0]["totalEnvVars"]
	assert.False(t, hasTotal)
}

func TestConsoleReporter_Summary(t *testing.T) {
	tests := []struct {
		name     string
		summary  scan.ScanSummary
		messages []string
		total    bool
	}{
		{
			name:     "no findings",
			summary:  scan.ScanSummary{Counters: aggregate.Counters{JobsVisited: 2, BuildsVisited: 3}},
			messages: []string{"Scan finished", "No sensitive variables detected"},
		},
		{
			name:     "report all tracks total",
			summary:  scan.ScanSummary{Counters: aggregate.Counters{TotalSensitiveVars: 1, TotalEnvVars: 2, TracksAll: true}},
			messages: []string{"Scan finished"},
			total:    true,
		},
		{
			name:     "interrupted",
			summary:  scan.ScanSummary{Interrupted: true},
			messages: []string{"Scan interrupted, partial summary"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			(&ConsoleReporter{}).ScanFinished(tt.summary)

			entries := logLines(t, buf)
			require.Len(t, entries, len(tt.messages))
			for i, msg := range tt.messages {
				assert.Equal(t, msg, entries[i]["message"])
			}
			_, hasTotal := entries[0]["totalEnvVars"]
			assert.Equal(t, tt.total, hasTotal)
		})
	}
}
