package client

import "time"

// Transport is the bus collaborator boundary. Implementations own framing
// into bus frames (ISO-TP or otherwise); this package only deals in whole
// diagnostic payloads.
//
// Send transmits one request payload. Receive waits up to timeout for the
// next payload and returns ok=false when nothing arrived; an error from
// either is an I/O failure, not a protocol outcome.
//
// The client serializes all access to the transport, so implementations do
// not need to be safe for concurrent use by this package.
type Transport interface {
	Send(data []byte) error
	Receive(timeout time.Duration) (data []byte, ok bool, err error)
}
