package logging

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SecretType defines where a discovered secret was exposed.
type SecretType string

const (
	// SecretTypeInjectedEnv indicates a secret found in a build's injected environment variables.
	SecretTypeInjectedEnv SecretType = "injected-env"
	// SecretTypeEnvVar indicates a non-sensitive variable reported in report-everything mode.
	SecretTypeEnvVar SecretType = "env"
)

// HitLevel is the level selected by --log-level hit. Discoveries are written
// at error level and relabelled "hit" by HitLevelWriter.
const HitLevel zerolog.Level = zerolog.WarnLevel

const hitMarkerField = "_hit"

var (
	hitMarker  = []byte(`,"` + hitMarkerField + `":true`)
	errorLabel = []byte(`"` + zerolog.LevelFieldName + `":"` + zerolog.LevelErrorValue + `"`)
	hitLabel   = []byte(`"` + zerolog.LevelFieldName + `":"hit"`)
)

// HitLevelWriter relabels lines carrying the discovery marker as "level":"hit"
// and strips the marker before forwarding them. Everything else passes through
// unchanged, so it can sit in front of a zerolog.ConsoleWriter.
type HitLevelWriter struct {
	mu  sync.RWMutex
	out io.Writer
}

// NewHitLevelWriter creates a new HitLevelWriter wrapping the given io.Writer.
func NewHitLevelWriter(out io.Writer) *HitLevelWriter {
	return &HitLevelWriter{out: out}
}

func (w *HitLevelWriter) Write(p []byte) (int, error) {
	w.mu.RLock()
	out := w.out
	w.mu.RUnlock()

	if !bytes.Contains(p, hitMarker) {
		return out.Write(p)
	}

	line := bytes.Replace(p, hitMarker, nil, 1)
	line = bytes.Replace(line, errorLabel, hitLabel, 1)
	if _, err := out.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetOutput swaps the underlying writer, e.g. for a console formatter.
func (w *HitLevelWriter) SetOutput(out io.Writer) {
	w.mu.Lock()
	w.out = out
	w.mu.Unlock()
}

// HitEvent is a discovery log line under construction.
type HitEvent struct {
	event *zerolog.Event
}

func (h *HitEvent) Str(key, val string) *HitEvent {
	h.event.Str(key, val)
	return h
}

func (h *HitEvent) Strs(key string, vals []string) *HitEvent {
	h.event.Strs(key, vals)
	return h
}

func (h *HitEvent) Int(key string, val int) *HitEvent {
	h.event.Int(key, val)
	return h
}

func (h *HitEvent) Msg(msg string) {
	h.event.Bool(hitMarkerField, true).Msg(msg)
}

var (
	globalHitWriter     *HitLevelWriter
	globalHitWriterOnce sync.Once
)

// Hit starts a discovery log line. It is written at error level so that only
// --log-level error or above hides it.
// Example: logging.Hit().Str("key", "DB_PASS").Msg("SECRET")
func Hit() *HitEvent {
	if globalHitWriter == nil {
		globalHitWriterOnce.Do(func() {
			globalHitWriter = NewHitLevelWriter(os.Stderr)
			log.Logger = zerolog.New(globalHitWriter).With().Timestamp().Logger()
		})
	}
	return &HitEvent{event: log.WithLevel(zerolog.ErrorLevel)}
}

// ParseLevel extends zerolog's ParseLevel to support "hit" level.
func ParseLevel(levelStr string) (zerolog.Level, error) {
	if levelStr == "hit" {
		return HitLevel, nil
	}
	return zerolog.ParseLevel(levelStr)
}

// SetGlobalHitWriter records the writer installed behind log.Logger.
func SetGlobalHitWriter(writer *HitLevelWriter) {
	globalHitWriter = writer
}
