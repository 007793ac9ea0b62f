package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Structured logging facade for the acquisition core.
 *
 * Description:	The teacher codebase's go.mod declares
 *		github.com/charmbracelet/log but no file in the teacher
 *		ever imports it -- every message instead goes through a
 *		hand-rolled text_color_set()/dw_printf() pair left over
 *		from the C original.  This module wires the declared
 *		dependency for real: every component takes a *log.Logger
 *		and logs structured fields instead of colored text.
 *
 *------------------------------------------------------------------*/

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// NewLogger builds the default logger used when a caller does not supply
// its own. It writes to stderr at info level, matching the verbosity the
// framework's own logging would show by default.
func NewLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})
}

// discardLogger is used by tests and by callers who pass a nil logger.
func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func logOrDefault(l *log.Logger) *log.Logger {
	if l == nil {
		return discardLogger()
	}
	return l
}
