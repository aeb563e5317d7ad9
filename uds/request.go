package uds

import "fmt"

// Request is a single service request: one SID byte plus its parameter
// record. The zero value is not valid; build requests with NewRequest.
type Request struct {
	ServiceID byte
	Params    []byte
}

func NewRequest(sid byte, params ...byte) Request {
	return Request{ServiceID: sid, Params: params}
}

// Encode produces the transport payload: SID followed by the parameter
// bytes. The result is a fresh slice.
func (r Request) Encode() []byte {
	out := make([]byte, 0, 1+len(r.Params))
	out = append(out, r.ServiceID)
	return append(out, r.Params...)
}

func (r Request) String() string {
	return fmt.Sprintf("%s % X", ServiceName(r.ServiceID), r.Params)
}
