package remuxer

import (
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/utils/lifecycle"
)

// transport is the byte channel of a sink that needs explicit I/O.
type transport struct {
	sink    gomux.Sink
	locator string
}

func openTransport(t transport) error {
	return t.sink.OpenTransport()
}

func (t transport) Close() error {
	return t.sink.CloseTransport()
}

func (t transport) String() string {
	return "TRANSPORT " + t.locator
}

func newTransport(sink gomux.Sink, locator string) lifecycle.Manager[transport] {
	return lifecycle.NewDefaultManager(transport{sink: sink, locator: locator})
}
