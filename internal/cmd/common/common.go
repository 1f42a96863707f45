// Package common provides the logging setup and startup sequence shared by envhunter commands.
package common

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CompassSecurity/envhunter/pkg/format"
	"github.com/CompassSecurity/envhunter/pkg/httpclient"
	"github.com/CompassSecurity/envhunter/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version information - set via ldflags during build
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Log configuration
var (
	originalTermState *term.State
	JsonLogoutput     bool
	LogFile           string
	LogColor          bool
	LogDebug          bool
	LogLevel          string
	IgnoreProxy       bool
)

// TerminalRestorer is called before fatal exits
var TerminalRestorer func()

// CustomWriter terminates every log line with the platform newline
type CustomWriter struct {
	Writer io.Writer
}

func (cw *CustomWriter) Write(p []byte) (n int, err error) {
	originalLen := len(p)
	modified := append(bytes.TrimSuffix(p, []byte("\n")), format.GetPlatformAgnosticNewline()...)

	written, err := cw.Writer.Write(modified)
	if err != nil {
		return 0, err
	}

	if written != len(modified) {
		return 0, io.ErrShortWrite
	}

	return originalLen, nil
}

// FatalHook restores the terminal before log.Fatal exits the process
type FatalHook struct{}

func (h FatalHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.FatalLevel && TerminalRestorer != nil {
		TerminalRestorer()
	}
}

// SaveTerminalState saves the current terminal state for later restoration
func SaveTerminalState() {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		state, err := term.GetState(int(os.Stdin.Fd()))
		if err == nil {
			originalTermState = state
		}
	}
}

// RestoreTerminalState restores the terminal to its saved state
func RestoreTerminalState() {
	if originalTermState != nil {
		_ = term.Restore(int(os.Stdin.Fd()), originalTermState)
	}
}

// NewLogger builds the logger writing to out. Hits are rewritten by a
// HitLevelWriter in both the JSON and the console format.
func NewLogger(out io.Writer, jsonOutput bool, colorEnabled bool) (zerolog.Logger, *logging.HitLevelWriter) {
	hitWriter := logging.NewHitLevelWriter(out)
	if !jsonOutput {
		hitWriter.SetOutput(zerolog.ConsoleWriter{
			Out:         out,
			TimeFormat:  time.RFC3339,
			NoColor:     !colorEnabled,
			FormatLevel: formatLevelWithHitColor(colorEnabled),
		})
	}
	return zerolog.New(hitWriter).With().Timestamp().Logger().Hook(FatalHook{}), hitWriter
}

// InitLogger initializes the global logger from the common flags
func InitLogger(cmd *cobra.Command) error {
	var out io.Writer = &CustomWriter{Writer: os.Stdout}
	colorEnabled := LogColor

	if LogFile != "" {
		// #nosec G304 - User-provided log file path via --logfile flag, user controls their own filesystem
		runLogFile, err := os.OpenFile(LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, format.FileUserReadWrite)
		if err != nil {
			return fmt.Errorf("failed opening log file %s: %w", LogFile, err)
		}
		out = &CustomWriter{Writer: runLogFile}

		if !cmd.Root().PersistentFlags().Changed("color") {
			colorEnabled = false
		}
	}

	logger, hitWriter := NewLogger(out, JsonLogoutput, colorEnabled)
	logging.SetGlobalHitWriter(hitWriter)
	log.Logger = logger
	return nil
}

var levelColors = map[string]string{
	"trace": "\x1b[90m",
	"info":  "\x1b[32m",
	"warn":  "\x1b[33m",
	"error": "\x1b[31m",
	"fatal": "\x1b[31m",
	"panic": "\x1b[31m",
	// magenta sets discoveries apart from warnings
	"hit": "\x1b[35m",
}

func formatLevelWithHitColor(colorEnabled bool) zerolog.Formatter {
	return func(i interface{}) string {
		level, ok := i.(string)
		if !ok {
			return ""
		}

		if color, found := levelColors[level]; found && colorEnabled {
			return color + level + "\x1b[0m"
		}
		return level
	}
}

// SetGlobalLogLevel applies --log-level, then -v, then the info default
func SetGlobalLogLevel() {
	if LogLevel != "" {
		level, err := logging.ParseLevel(LogLevel)
		if err != nil || level == zerolog.NoLevel {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			log.Warn().Str("logLevelSpecified", LogLevel).Msg("Invalid log level, defaulting to info")
			return
		}
		zerolog.SetGlobalLevel(level)
		log.Debug().Str("logLevel", LogLevel).Msg("Log level set (explicit)")
		return
	}

	if LogDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Log level set to debug (-v)")
		return
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// AddCommonFlags adds the common logging and output flags to a cobra command
func AddCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&JsonLogoutput, "json", "", false, "Use JSON as log output format")
	cmd.PersistentFlags().StringVarP(&LogFile, "logfile", "l", "", "Log output to a file")
	cmd.PersistentFlags().BoolVarP(&LogDebug, "verbose", "v", false, "Enable debug logging, one line per HTTP request (shortcut for --log-level=debug)")
	cmd.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Set log level globally (trace, debug, info, warn, error, hit). Example: --log-level=warn")
	cmd.PersistentFlags().BoolVar(&LogColor, "color", true, "Enable colored log output (auto-disabled when using --logfile)")
	cmd.PersistentFlags().BoolVar(&IgnoreProxy, "ignore-proxy", false, "Ignore HTTP_PROXY environment variable")
}

// SetupPersistentPreRun initializes logging, proxy handling and the keyboard shortcuts
func SetupPersistentPreRun(cmd *cobra.Command) {
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := InitLogger(c); err != nil {
			return err
		}
		SetGlobalLogLevel()
		httpclient.SetIgnoreProxy(IgnoreProxy)

		if term.IsTerminal(int(os.Stdin.Fd())) {
			go logging.ShortcutListeners(nil)
		}
		return nil
	}
}

// Run executes the common startup sequence and runs the provided root command
func Run(rootCmd *cobra.Command) {
	SaveTerminalState()
	TerminalRestorer = RestoreTerminalState

	err := rootCmd.Execute()
	RestoreTerminalState()
	if err != nil {
		os.Exit(1)
	}
}
