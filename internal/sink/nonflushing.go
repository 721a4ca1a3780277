package sink

import (
	"github.com/raoulx24/share-archiver/internal/logging"
)

type nonFlushing struct {
	Sink
	log logging.Logger
}

// NonFlushing suppresses intermediate flushes so that a remote object is not
// fragmented into many small blocks. The inner sink is flushed once, on Close.
func NonFlushing(s Sink, log logging.Logger) Sink {
	if log == nil {
		log = logging.Discard()
	}
	return &nonFlushing{Sink: s, log: log}
}

func (n *nonFlushing) Flush() error {
	n.log.Debug("flush suppressed", "location", n.Sink.Location())
	return nil
}

func (n *nonFlushing) Close() error {
	if err := n.Sink.Flush(); err != nil {
		return err
	}
	return n.Sink.Close()
}
