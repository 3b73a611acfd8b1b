// Package logging gives every subsystem its own prefixed standard-library
// logger, the same "subsystem[id]: message" convention the rest of the
// retrieval pack uses, instead of one anonymous global logger.
package logging

import (
	"log"
	"os"
)

// Logger wraps the standard library logger with a fixed subsystem prefix.
type Logger struct {
	*log.Logger
}

// For builds a logger prefixed with the given subsystem name, e.g.
// logging.For("ring") or logging.For(fmt.Sprintf("worker[%d]", id)).
func For(subsystem string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, subsystem+": ", log.LstdFlags)}
}
