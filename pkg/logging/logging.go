package logging

import (
	"sync"

	"atomicgo.dev/keyboard"
	"atomicgo.dev/keyboard/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ShortcutStatusFN builds the event printed when the status shortcut is pressed.
type ShortcutStatusFN func() *zerolog.Event

var (
	statusHookMutex sync.RWMutex
	statusHook      ShortcutStatusFN
	interruptHook   func()
)

// shortcutLevels maps runtime keyboard shortcuts to log levels.
var shortcutLevels = map[string]zerolog.Level{
	"t": zerolog.TraceLevel,
	"d": zerolog.DebugLevel,
	"i": zerolog.InfoLevel,
	"w": zerolog.WarnLevel,
	"e": zerolog.ErrorLevel,
}

// RegisterStatusHook allows commands to register a custom status function
func RegisterStatusHook(hook ShortcutStatusFN) {
	statusHookMutex.Lock()
	defer statusHookMutex.Unlock()
	statusHook = hook
}

// GetStatusHook returns the registered status hook or a default one
func GetStatusHook() ShortcutStatusFN {
	statusHookMutex.RLock()
	defer statusHookMutex.RUnlock()
	if statusHook != nil {
		return statusHook
	}
	return defaultStatusHook
}

// RegisterInterruptHook sets the function called when Ctrl+C is read by the
// shortcut listener. The raw terminal mode swallows the signal otherwise.
func RegisterInterruptHook(hook func()) {
	statusHookMutex.Lock()
	defer statusHookMutex.Unlock()
	interruptHook = hook
}

func handleInterrupt() {
	statusHookMutex.RLock()
	hook := interruptHook
	statusHookMutex.RUnlock()
	if hook != nil {
		hook()
	}
}

func defaultStatusHook() *zerolog.Event {
	return log.Info().Str("status", "nothing to show")
}

// HandleShortcut applies a single shortcut key. It reports whether the key was recognised.
func HandleShortcut(key string) bool {
	if level, ok := shortcutLevels[key]; ok {
		zerolog.SetGlobalLevel(level)
		log.Info().Str("logLevel", level.String()).Msg("New Log level")
		return true
	}

	if key == "s" {
		GetStatusHook()().Msg("Status")
		return true
	}

	return false
}

// ShortcutListeners blocks and listens for keyboard shortcuts until Ctrl+C or Escape.
func ShortcutListeners(status ShortcutStatusFN) {
	if status != nil {
		RegisterStatusHook(status)
	}

	err := keyboard.Listen(func(key keys.Key) (stop bool, err error) {
		switch key.Code {
		case keys.CtrlC:
			handleInterrupt()
			return true, nil
		case keys.Escape:
			return true, nil
		case keys.RuneKey:
			HandleShortcut(key.String())
		}

		return false, nil
	})

	if err != nil {
		log.Debug().Err(err).Msg("Failed hooking keyboard bindings")
	}
}
