package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcreply4u/udsgo/uds"
)

// ErrTransferAborted is returned when a transfer session was killed by a
// block sequence desynchronization. The only operation still permitted is
// Exit; continuing requires a fresh request-download/upload.
var ErrTransferAborted = errors.New("transfer aborted: block sequence counter desynchronized")

// ErrTransferClosed is returned when using a session after Exit.
var ErrTransferClosed = errors.New("transfer session closed")

// transferDataOverhead is the SID and block sequence counter byte, which
// count against the ECU's maxNumberOfBlockLength.
const transferDataOverhead = 2

// TransferSession is the ephemeral state of one segmented download or
// upload: the ECU's maximum block length, the next block sequence counter
// (starts at 1, wraps 0xFF -> 0x00) and the dead/closed flags. It is bound
// to the client's critical section through the operations it delegates to
// and must be driven from one goroutine.
type TransferSession struct {
	c           *Client
	upload      bool
	maxBlockLen int
	next        byte
	dead        bool
	closed      bool
}

// RequestDownload announces a host-to-ECU transfer of size bytes at addr
// and opens a transfer session sized to the ECU's response.
func (c *Client) RequestDownload(ctx context.Context, addr, size uint64, addrLen, sizeLen int, dataFormat byte) (*TransferSession, uds.Response, error) {
	return c.openTransfer(ctx, uds.SIDRequestDownload, addr, size, addrLen, sizeLen, dataFormat, false)
}

// RequestUpload announces an ECU-to-host transfer and opens a transfer
// session for reading blocks.
func (c *Client) RequestUpload(ctx context.Context, addr, size uint64, addrLen, sizeLen int, dataFormat byte) (*TransferSession, uds.Response, error) {
	return c.openTransfer(ctx, uds.SIDRequestUpload, addr, size, addrLen, sizeLen, dataFormat, true)
}

func (c *Client) openTransfer(ctx context.Context, sid byte, addr, size uint64, addrLen, sizeLen int, dataFormat byte, upload bool) (*TransferSession, uds.Response, error) {
	params, err := appendAddressAndLength([]byte{dataFormat}, addr, size, addrLen, sizeLen)
	if err != nil {
		return nil, uds.Response{}, err
	}
	resp, err := c.Transact(ctx, sid, params)
	if err != nil {
		return nil, resp, err
	}
	maxBlockLen, err := parseMaxBlockLength(resp)
	if err != nil {
		return nil, resp, err
	}
	return &TransferSession{
		c:           c,
		upload:      upload,
		maxBlockLen: maxBlockLen,
		next:        1, // first block after request-download/upload
	}, resp, nil
}

// parseMaxBlockLength extracts maxNumberOfBlockLength from a positive
// request-download/upload response: a lengthFormatIdentifier whose high
// nibble gives the field width, followed by that many big-endian bytes.
func parseMaxBlockLength(resp uds.Response) (int, error) {
	if len(resp.Data) < 1 {
		return 0, &uds.MalformedResponseError{Raw: resp.Raw}
	}
	width := int(resp.Data[0] >> 4)
	if width < 1 || width > 4 || len(resp.Data) < 1+width {
		return 0, &uds.MalformedResponseError{Raw: resp.Raw}
	}
	v := 0
	for _, b := range resp.Data[1 : 1+width] {
		v = v<<8 | int(b)
	}
	if v <= transferDataOverhead {
		return 0, fmt.Errorf("ECU max block length %d leaves no room for data", v)
	}
	return v, nil
}

// MaxChunkSize is the largest chunk the caller may pass to Send, after the
// SID and block sequence bytes are accounted for. Chunking a larger buffer
// stays with the caller.
func (s *TransferSession) MaxChunkSize() int {
	return s.maxBlockLen - transferDataOverhead
}

// NextSequence exposes the block sequence counter the next block will use.
func (s *TransferSession) NextSequence() byte { return s.next }

// Send transmits one download chunk under the current block sequence
// counter. The positive response must echo the counter; any mismatch, or a
// wrong-block-sequence-counter negative response, kills the session (no
// automatic resynchronization) and only Exit remains legal.
func (s *TransferSession) Send(ctx context.Context, chunk []byte) (uds.Response, error) {
	if err := s.usable(); err != nil {
		return uds.Response{}, err
	}
	if len(chunk) > s.MaxChunkSize() {
		return uds.Response{}, fmt.Errorf("chunk of %d bytes exceeds ECU block limit %d", len(chunk), s.MaxChunkSize())
	}
	resp, err := s.c.TransferData(ctx, s.next, chunk)
	return s.finishBlock(resp, err)
}

// Receive requests one upload block and returns its payload.
func (s *TransferSession) Receive(ctx context.Context) ([]byte, uds.Response, error) {
	if err := s.usable(); err != nil {
		return nil, uds.Response{}, err
	}
	resp, err := s.c.TransferData(ctx, s.next, nil)
	resp, err = s.finishBlock(resp, err)
	if err != nil {
		return nil, resp, err
	}
	return resp.Data[1:], resp, nil
}

func (s *TransferSession) finishBlock(resp uds.Response, err error) (uds.Response, error) {
	if resp.IsNegativeWith(uds.NRCWrongBlockSequenceCounter) {
		s.dead = true
		return resp, err
	}
	if err != nil {
		return resp, err
	}
	if len(resp.Data) < 1 {
		s.dead = true
		return resp, &uds.SequenceError{Sent: s.next}
	}
	if echoed := resp.Data[0]; echoed != s.next {
		s.dead = true
		return resp, &uds.SequenceError{Sent: s.next, Echoed: echoed, HasEcho: true}
	}
	s.next++ // wraps 0xFF -> 0x00
	return resp, nil
}

// Exit releases the ECU's transfer state. It must be sent on both success
// and abort paths and is therefore legal even on a dead session.
func (s *TransferSession) Exit(ctx context.Context, record ...byte) (uds.Response, error) {
	if s.closed {
		return uds.Response{}, ErrTransferClosed
	}
	s.closed = true
	return s.c.RequestTransferExit(ctx, record...)
}

func (s *TransferSession) usable() error {
	if s.closed {
		return ErrTransferClosed
	}
	if s.dead {
		return ErrTransferAborted
	}
	return nil
}
