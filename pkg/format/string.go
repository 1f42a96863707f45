package format

import (
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/acarl005/stripansi"
)

// MaxValueLength caps how much of a variable value is echoed to the console.
const MaxValueLength = 1024

// SanitizeValue makes a remote value safe to print on a terminal: ANSI escape
// sequences are stripped, line breaks flattened and the result truncated.
func SanitizeValue(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	value = stripansi.Strip(value)
	if len(value) > MaxValueLength {
		end := MaxValueLength
		for end > 0 && !utf8.RuneStart(value[end]) {
			end--
		}
		value = value[:end]
	}
	return value
}

func GetPlatformAgnosticNewline() string {
	newline := "\n"
	if runtime.GOOS == "windows" {
		newline = "\r\n"
	}
	return newline
}

func ContainsI(a string, b string) bool {
	return strings.Contains(
		strings.ToLower(a),
		strings.ToLower(b),
	)
}
