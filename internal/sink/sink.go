// Package sink provides the destinations an archive is streamed into.
package sink

import (
	"io"
)

// Sink is a writable archive destination. Nothing is visible at Location until
// Close succeeds; Abort discards whatever was written. Close and Abort are
// terminal and may be called more than once.
type Sink interface {
	io.Writer
	Flush() error
	Close() error
	Abort() error
	Location() string
}
