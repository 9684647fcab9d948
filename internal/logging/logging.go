// Package logging holds the process-wide diagnostic logger. Output goes to
// stderr so stdout stays reserved for command results, which matters when
// OpenSSH runs tssh as a Match exec hook.
package logging

import (
	"fmt"
	"io"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger.
var L = New(os.Stderr)

// New returns a logger writing to w at warn level.
func New(w io.Writer) *clog.Logger {
	return clog.NewWithOptions(w, clog.Options{
		Prefix: "tssh",
		Level:  clog.WarnLevel,
	})
}

// Configure points L at w and enables debug output when debug is set.
func Configure(w io.Writer, debug bool) {
	L.SetOutput(w)
	if debug {
		L.SetLevel(clog.DebugLevel)
		return
	}
	L.SetLevel(clog.WarnLevel)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}
