package uds

import "fmt"

// ResponseKind tags the outcome of decoding a raw transport payload.
type ResponseKind int

const (
	KindPositive ResponseKind = iota
	KindNegative
	KindTimeout
	KindMalformed
)

func (k ResponseKind) String() string {
	switch k {
	case KindPositive:
		return "positive"
	case KindNegative:
		return "negative"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("ResponseKind(%d)", int(k))
	}
}

// Response is the typed outcome of one request/response exchange.
//
// For KindPositive, ServiceID is the request SID and Data is the response
// payload after the SID byte. For KindNegative, ServiceID is the rejected
// request SID, Code the NRC, and Data any service-specific bytes after the
// three mandatory ones. Raw always holds the bytes as received (nil for
// KindTimeout). Responses are never mutated after construction.
type Response struct {
	Kind      ResponseKind
	ServiceID byte
	Code      NRC
	Data      []byte
	Raw       []byte
}

// Decode classifies a raw payload received in reply to requestSID.
//
// A leading 0x7F with at least three bytes is a negative response; fewer
// than three bytes, an empty buffer, or any other leading byte than
// requestSID+0x40 is malformed. Every path returns a tagged Response, never
// an error and never a panic.
func Decode(raw []byte, requestSID byte) Response {
	if len(raw) == 0 {
		return Response{Kind: KindMalformed, Raw: raw}
	}
	if raw[0] == NegativeResponseSID {
		if len(raw) < 3 {
			return Response{Kind: KindMalformed, Raw: raw}
		}
		// Trailing bytes beyond the mandatory three are service-specific
		// extra data and are preserved.
		return Response{
			Kind:      KindNegative,
			ServiceID: raw[1],
			Code:      NRC(raw[2]),
			Data:      raw[3:],
			Raw:       raw,
		}
	}
	if raw[0] == requestSID+PositiveResponseOffset {
		return Response{
			Kind:      KindPositive,
			ServiceID: requestSID,
			Data:      raw[1:],
			Raw:       raw,
		}
	}
	return Response{Kind: KindMalformed, Raw: raw}
}

// Timeout builds the response representing an expired wait for requestSID.
func Timeout(requestSID byte) Response {
	return Response{Kind: KindTimeout, ServiceID: requestSID}
}

// EncodePositive builds the wire form of a positive response. Used by ECU
// simulators and tests.
func EncodePositive(requestSID byte, data ...byte) []byte {
	out := make([]byte, 0, 1+len(data))
	out = append(out, requestSID+PositiveResponseOffset)
	return append(out, data...)
}

// EncodeNegative builds the wire form of a negative response.
func EncodeNegative(requestSID byte, code NRC) []byte {
	return []byte{NegativeResponseSID, requestSID, byte(code)}
}

func (r Response) IsPositive() bool { return r.Kind == KindPositive }

// IsNegativeWith reports whether the response is a negative response
// carrying the given code.
func (r Response) IsNegativeWith(code NRC) bool {
	return r.Kind == KindNegative && r.Code == code
}

// Err maps the response to the error taxonomy: nil for a positive response,
// a *NegativeResponseError, *TimeoutError or *MalformedResponseError
// otherwise.
func (r Response) Err() error {
	switch r.Kind {
	case KindPositive:
		return nil
	case KindNegative:
		return &NegativeResponseError{ServiceID: r.ServiceID, Code: r.Code}
	case KindTimeout:
		return &TimeoutError{ServiceID: r.ServiceID}
	default:
		return &MalformedResponseError{Raw: r.Raw}
	}
}

func (r Response) String() string {
	switch r.Kind {
	case KindPositive:
		return fmt.Sprintf("positive %s % X", ServiceName(r.ServiceID), r.Data)
	case KindNegative:
		return fmt.Sprintf("negative %s: %s", ServiceName(r.ServiceID), r.Code)
	case KindTimeout:
		return fmt.Sprintf("timeout waiting for %s", ServiceName(r.ServiceID))
	default:
		return fmt.Sprintf("malformed response % X", r.Raw)
	}
}
