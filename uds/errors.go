package uds

import "fmt"

// TransportError wraps a send or receive failure from the transport
// collaborator. Fatal to the current operation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError reports that no correlated response arrived within the
// timing budget. Recoverable; the caller may retry.
type TimeoutError struct {
	ServiceID byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for response to %s", ServiceName(e.ServiceID))
}

// MalformedResponseError reports a response that could not be classified:
// too short, or an unrecognized leading byte. Session state is untouched.
type MalformedResponseError struct {
	Raw []byte
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response: % X", e.Raw)
}

// NegativeResponseError carries the rejected SID and the NRC so callers can
// implement their own retry policy. Unknown NRC bytes are preserved.
type NegativeResponseError struct {
	ServiceID byte
	Code      NRC
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("%s rejected: %s", ServiceName(e.ServiceID), e.Code)
}

// SequenceError reports a desynchronized block-sequence counter during a
// segmented transfer. The transfer must be aborted and restarted.
type SequenceError struct {
	Sent    byte
	Echoed  byte
	HasEcho bool
}

func (e *SequenceError) Error() string {
	if !e.HasEcho {
		return fmt.Sprintf("transfer data response missing block sequence echo (sent 0x%02X)", e.Sent)
	}
	return fmt.Sprintf("block sequence counter mismatch: sent 0x%02X, ECU echoed 0x%02X", e.Sent, e.Echoed)
}
