package result

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/CompassSecurity/envhunter/pkg/format"
	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	"github.com/CompassSecurity/envhunter/pkg/jenkins/scan"
	"github.com/rs/zerolog/log"
)

// DefaultReportHeader is the first line of a report file.
const DefaultReportHeader = "Sensitive injected environment variables"

// FileSink appends one block per build with reported entries to a text report.
type FileSink struct {
	path   string
	out    io.WriteCloser
	failed bool
}

var _ scan.Observer = (*FileSink)(nil)

// NewFileSink creates or truncates the report at path and writes its header.
func NewFileSink(path string, header string) (*FileSink, error) {
	// #nosec G304 - User-provided report path via --output flag, user controls their own filesystem
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, format.FileUserReadWrite)
	if err != nil {
		return nil, fmt.Errorf("failed creating report file %s: %w", path, err)
	}

	sink := &FileSink{path: path, out: f}
	if err := sink.write(header + "\n" + strings.Repeat("=", len(header)) + "\n"); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed writing report header to %s: %w", path, err)
	}

	return sink, nil
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) write(text string) error {
	_, err := io.WriteString(s.out, text)
	return err
}

func (s *FileSink) JobStarted(jenkins.Job, int) {}

func (s *FileSink) DiscoveryFound(scan.Discovery) {}

func (s *FileSink) BuildProcessed(r scan.BuildResult) {
	if len(r.Reported) == 0 || s.failed {
		return
	}

	var sb strings.Builder
	sb.WriteString("Build: " + r.Build.URL + "\n")
	for _, v := range r.Reported {
		sb.WriteString("    " + v.Key + ": " + flattenLines(v.Value) + "\n")
	}
	sb.WriteString("\n")

	if err := s.write(sb.String()); err != nil {
		// keep scanning, the console still carries the findings
		s.failed = true
		log.Error().Err(err).Str("file", s.path).Msg("Failed writing report, disabling file output")
	}
}

func (s *FileSink) ScanFinished(scan.ScanSummary) {}

func (s *FileSink) Close() error {
	return s.out.Close()
}

func flattenLines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\\n")
	return strings.ReplaceAll(value, "\n", "\\n")
}
