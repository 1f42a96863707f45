package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/CompassSecurity/envhunter/internal/cmd/flags"
	"github.com/CompassSecurity/envhunter/pkg/config"
	"github.com/CompassSecurity/envhunter/pkg/jenkins"
	pkgscan "github.com/CompassSecurity/envhunter/pkg/jenkins/scan"
	"github.com/CompassSecurity/envhunter/pkg/logging"
	"github.com/CompassSecurity/envhunter/pkg/scan/result"
	"github.com/CompassSecurity/envhunter/pkg/scanner"
	"github.com/CompassSecurity/envhunter/pkg/system"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type JenkinsScanOptions struct {
	config.CommonScanOptions
	JenkinsURL             string
	Username               string
	Token                  string
	Pattern                string
	Jobs                   []string
	Output                 string
	Quiet                  bool
	ReportAll              bool
	MaxBuilds              int
	TruffleHog             bool
	TruffleHogVerification bool
	MaxScanGoRoutines      int
}

var options = JenkinsScanOptions{
	CommonScanOptions: config.DefaultCommonScanOptions(),
}
var maxResponseSize string

func NewScanCmd() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan Jenkins builds for sensitive injected environment variables",
		Long: `Walk every job and every build of a Jenkins server, fetch the injected environment variables of each build and report the ones whose name or value matches a sensitive pattern.

### Requirements
The server needs the EnvInject plugin. Builds without injected variables are skipped silently.

### Authentication
Use your Jenkins username and an API token from <jenkins>/user/<username>/configure.
Without credentials the scan runs anonymously.

### Shortcuts
Press s for the live status, t/d/i/w/e to change the log level and Ctrl+C to stop after the current build.
		`,
		Example: `
# Scan all jobs with the default pattern
envhunter jenkins scan --url https://jenkins.example.com --username admin --token 11xxxxxxxxxx

# Scan two jobs only and write the findings to a report file
envhunter jenkins scan -u https://jenkins.example.com -n admin -t 11xxxxxxxxxx -j deploy -j release -o report.txt

# Report every variable of the last 10 builds per job, flag AWS keys with trufflehog
envhunter jenkins scan -u https://jenkins.example.com --all --max-builds 10 --trufflehog
		`,
		Run: Scan,
	}
	flags.AddCommonScanFlags(scanCmd, &options.CommonScanOptions, &maxResponseSize)

	scanCmd.Flags().StringVarP(&options.JenkinsURL, "url", "u", "", "Jenkins base URL e.g. https://jenkins.example.com/")
	err := scanCmd.MarkFlagRequired("url")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed marking url required")
	}
	scanCmd.Flags().StringVarP(&options.Username, "username", "n", "", "Jenkins username")
	scanCmd.Flags().StringVarP(&options.Token, "token", "t", "", "Jenkins API token or password")
	scanCmd.MarkFlagsRequiredTogether("username", "token")

	scanCmd.Flags().StringVarP(&options.Pattern, "pattern", "p", scanner.DefaultPattern, "Case-insensitive regex matched against variable names and values")
	scanCmd.Flags().StringSliceVarP(&options.Jobs, "jobs", "j", []string{}, "Only scan these job names, repeat the flag or pass a comma separated list")
	scanCmd.Flags().StringVarP(&options.Output, "output", "o", "", "Write the findings to this report file")
	scanCmd.Flags().BoolVarP(&options.Quiet, "quiet", "q", false, "Only print the final summary")
	scanCmd.Flags().BoolVarP(&options.ReportAll, "all", "a", false, "Report every injected variable, not only the sensitive ones")
	scanCmd.Flags().IntVarP(&options.MaxBuilds, "max-builds", "", -1, "Max. number of builds to scan per job, -1 scans all")
	scanCmd.Flags().BoolVarP(&options.TruffleHog, "trufflehog", "", false, "Annotate findings with the names of matching trufflehog detectors")
	scanCmd.Flags().BoolVarP(&options.TruffleHogVerification, "trufflehog-verification", "", false, "Only annotate detector matches trufflehog verified as live credentials")
	scanCmd.Flags().IntVarP(&options.MaxScanGoRoutines, "threads", "", scanner.DefaultDetectorThreads, "Number of trufflehog detectors run concurrently per value")

	return scanCmd
}

func Scan(cmd *cobra.Command, args []string) {
	if err := runScan(cmd.Context(), options, maxResponseSize); err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}
}

// validate checks the options and returns the parsed response size limit.
func validate(opts JenkinsScanOptions, maxSize string) (int64, error) {
	if err := config.ValidateURL(opts.JenkinsURL, "Jenkins URL"); err != nil {
		return 0, err
	}
	if err := config.ValidateCredentials(opts.Username, opts.Token); err != nil {
		return 0, err
	}
	if err := config.ValidatePattern(opts.Pattern); err != nil {
		return 0, err
	}
	if err := config.ValidateRetryCount(opts.Retries); err != nil {
		return 0, err
	}
	if maxSize == "" {
		maxSize = flags.DefaultMaxResponseSize
	}
	return config.ParseMaxResponseSize(maxSize)
}

func runScan(ctx context.Context, opts JenkinsScanOptions, maxSize string) error {
	size, err := validate(opts, maxSize)
	if err != nil {
		return err
	}
	opts.MaxResponseSize = size

	client, err := jenkins.NewClient(jenkins.ClientOptions{
		CommonScanOptions: opts.CommonScanOptions,
		BaseURL:           opts.JenkinsURL,
		Username:          opts.Username,
		Token:             opts.Token,
	})
	if err != nil {
		return err
	}

	matcher, err := scanner.NewMatcher(opts.Pattern)
	if err != nil {
		return err
	}

	progress := result.NewProgress()
	logging.RegisterStatusHook(progress.Status)
	observers := pkgscan.MultiObserver{&result.ConsoleReporter{Quiet: opts.Quiet}, progress}

	var sink *result.FileSink
	if opts.Output != "" {
		sink, err = result.NewFileSink(opts.Output, result.DefaultReportHeader)
		if err != nil {
			return err
		}
		defer func() { _ = sink.Close() }()
		observers = append(observers, sink)
	}

	scanOpts := pkgscan.ScanOptions{
		Client:    client,
		Matcher:   matcher,
		Jobs:      opts.Jobs,
		ReportAll: opts.ReportAll,
		MaxBuilds: opts.MaxBuilds,
		Observer:  observers,
	}
	if opts.TruffleHog || opts.TruffleHogVerification {
		scanOpts.Annotator = scanner.NewDetectorAnnotator(opts.TruffleHogVerification, opts.MaxScanGoRoutines)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := system.RegisterGracefulShutdownHandler(func() { cancel() })
	defer stop()
	logging.RegisterInterruptHook(cancel)
	defer logging.RegisterInterruptHook(nil)

	log.Info().Str("url", opts.JenkinsURL).Str("pattern", matcher.Pattern()).Bool("authenticated", opts.Username != "").Msg("Starting Jenkins scan")

	_, err = pkgscan.NewScanner(scanOpts).Scan(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan of %s failed: %w", opts.JenkinsURL, err)
	}

	if sink != nil {
		if err := sink.Close(); err != nil {
			return fmt.Errorf("failed closing report %s: %w", sink.Path(), err)
		}
		log.Info().Str("file", sink.Path()).Msg("Report written")
	}

	return nil
}
