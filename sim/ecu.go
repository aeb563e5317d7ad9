// Package sim provides an in-memory ECU that speaks the ISO 14229 request
// and response byte layouts over the client's transport boundary. It backs
// the tests and the demo binary; it is not a conformance simulator.
package sim

import (
	"bytes"
	"sync"
	"time"

	"github.com/dcreply4u/udsgo/uds"
)

const (
	outBufferSize   = 32
	defaultBlockLen = 0x0102 // maxNumberOfBlockLength incl. SID and counter
	maxKeyAttempts  = 3
	sessionDefault  = 0x01
)

type memRegion struct {
	base uint32
	data []byte
}

type transferState struct {
	upload bool
	region *memRegion
	offset int
	size   int
	seq    byte
}

// ECU is a scriptable diagnostic server. Send handles one request
// synchronously and queues the response(s); Receive pops them with a
// timeout, satisfying the client's Transport interface.
type ECU struct {
	mu  sync.Mutex
	out chan []byte

	session     byte
	dids        map[uint16][]byte
	regions     []*memRegion
	dtcRecord   []byte
	maxBlockLen int
	transfer    *transferState

	secLevel    byte   // odd level the ECU protects, 0 = unsecured
	secSeed     []byte // seed issued on a seed request; empty = no security required
	secKey      []byte // expected key
	seedPending bool
	unlocked    bool
	keyFailures int

	pendCount int           // 0x78 responses before the real one
	pendDelay time.Duration // delay before the real one
	busyLeft  int           // transfer-data busy injections
}

func New() *ECU {
	return &ECU{
		out:         make(chan []byte, outBufferSize),
		session:     sessionDefault,
		dids:        make(map[uint16][]byte),
		maxBlockLen: defaultBlockLen,
	}
}

// SetDID stores a data identifier record.
func (e *ECU) SetDID(did uint16, value []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dids[did] = append([]byte(nil), value...)
}

// DID reads back a stored record, for assertions after writes.
func (e *ECU) DID(did uint16) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.dids[did]
	return append([]byte(nil), v...), ok
}

// AddMemory maps size writable bytes at base for memory and transfer
// services.
func (e *ECU) AddMemory(base uint32, size int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.regions = append(e.regions, &memRegion{base: base, data: make([]byte, size)})
}

// Memory returns a copy of the region starting at base.
func (e *ECU) Memory(base uint32) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r := e.regionAt(uint64(base)); r != nil {
		return append([]byte(nil), r.data...)
	}
	return nil
}

// SetSecurity arms the seed/key check for an odd level. An empty seed
// makes the ECU report "no security required" on the seed request.
func (e *ECU) SetSecurity(level byte, seed, key []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secLevel = level
	e.secSeed = append([]byte(nil), seed...)
	e.secKey = append([]byte(nil), key...)
	e.unlocked = false
	e.seedPending = false
	e.keyFailures = 0
}

// SetDTCRecord sets the payload returned after the report type echo on
// ReadDTCInformation.
func (e *ECU) SetDTCRecord(record []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dtcRecord = append([]byte(nil), record...)
}

// SetMaxBlockLength overrides the advertised maxNumberOfBlockLength.
func (e *ECU) SetMaxBlockLength(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxBlockLen = n
}

// QueuePending makes the next request answer with n response-pending
// negatives, then the real response after delay.
func (e *ECU) QueuePending(n int, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pendCount = n
	e.pendDelay = delay
}

// InjectTransferBusy answers the next n transfer-data requests with
// busy-repeat-request.
func (e *ECU) InjectTransferBusy(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busyLeft = n
}

// Send implements the transport boundary: handle the request and queue the
// response.
func (e *ECU) Send(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	resp := e.handle(data)
	if e.pendCount > 0 {
		for i := 0; i < e.pendCount; i++ {
			e.out <- uds.EncodeNegative(data[0], uds.NRCResponsePending)
		}
		e.pendCount = 0
		time.AfterFunc(e.pendDelay, func() { e.out <- resp })
		return nil
	}
	e.out <- resp
	return nil
}

// Receive implements the transport boundary.
func (e *ECU) Receive(timeout time.Duration) ([]byte, bool, error) {
	if timeout <= 0 {
		select {
		case d := <-e.out:
			return d, true, nil
		default:
			return nil, false, nil
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-e.out:
		return d, true, nil
	case <-timer.C:
		return nil, false, nil
	}
}

func (e *ECU) handle(req []byte) []byte {
	sid, params := req[0], req[1:]
	switch sid {
	case uds.SIDDiagnosticSessionControl:
		if len(params) != 1 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		e.session = params[0]
		e.unlocked = false
		e.seedPending = false
		// sub-function echo plus the session parameter record (P2, P2*).
		return uds.EncodePositive(sid, params[0], 0x00, 0x32, 0x01, 0xF4)

	case uds.SIDECUReset:
		if len(params) != 1 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		e.session = sessionDefault
		e.unlocked = false
		e.transferReset()
		return uds.EncodePositive(sid, params[0])

	case uds.SIDClearDiagnosticInformation:
		if len(params) != 3 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		e.dtcRecord = nil
		return uds.EncodePositive(sid)

	case uds.SIDReadDTCInformation:
		if len(params) < 1 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		return uds.EncodePositive(sid, append([]byte{params[0]}, e.dtcRecord...)...)

	case uds.SIDReadDataByIdentifier:
		if len(params) != 2 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		did := uint16(params[0])<<8 | uint16(params[1])
		value, ok := e.dids[did]
		if !ok {
			return reject(sid, uds.NRCRequestOutOfRange)
		}
		return uds.EncodePositive(sid, append([]byte{params[0], params[1]}, value...)...)

	case uds.SIDWriteDataByIdentifier:
		if len(params) < 3 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		did := uint16(params[0])<<8 | uint16(params[1])
		e.dids[did] = append([]byte(nil), params[2:]...)
		return uds.EncodePositive(sid, params[0], params[1])

	case uds.SIDReadMemoryByAddress:
		addr, size, _, ok := parseAddressAndLength(params)
		if !ok {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		region := e.regionAt(addr)
		if region == nil || !region.contains(addr, size) {
			return reject(sid, uds.NRCRequestOutOfRange)
		}
		off := addr - uint64(region.base)
		return uds.EncodePositive(sid, region.data[off:off+size]...)

	case uds.SIDWriteMemoryByAddress:
		addr, size, rest, ok := parseAddressAndLength(params)
		if !ok || uint64(len(rest)) != size {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		region := e.regionAt(addr)
		if region == nil || !region.contains(addr, size) {
			return reject(sid, uds.NRCRequestOutOfRange)
		}
		copy(region.data[addr-uint64(region.base):], rest)
		return uds.EncodePositive(sid, params[:1+widthOf(params)]...)

	case uds.SIDSecurityAccess:
		return e.handleSecurityAccess(params)

	case uds.SIDRequestDownload:
		return e.handleRequestTransfer(params, false)

	case uds.SIDRequestUpload:
		return e.handleRequestTransfer(params, true)

	case uds.SIDTransferData:
		return e.handleTransferData(params)

	case uds.SIDRequestTransferExit:
		e.transferReset()
		return uds.EncodePositive(uds.SIDRequestTransferExit)

	case uds.SIDRoutineControl:
		if len(params) < 3 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		return uds.EncodePositive(sid, params[0], params[1], params[2])

	case uds.SIDTesterPresent:
		return uds.EncodePositive(sid, 0x00)

	case uds.SIDCommunicationControl,
		uds.SIDControlDTCSetting,
		uds.SIDResponseOnEvent,
		uds.SIDLinkControl,
		uds.SIDDynamicallyDefineDataIdentifier,
		uds.SIDReadDataByPeriodicIdentifier:
		if len(params) < 1 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		return uds.EncodePositive(sid, params[0])

	case uds.SIDInputOutputControlByIdentifier, uds.SIDReadScalingDataByIdentifier:
		if len(params) < 2 {
			return reject(sid, uds.NRCIncorrectMessageLength)
		}
		return uds.EncodePositive(sid, params[0], params[1])

	default:
		return reject(sid, uds.NRCServiceNotSupported)
	}
}

func (e *ECU) handleSecurityAccess(params []byte) []byte {
	sid := uds.SIDSecurityAccess
	if len(params) < 1 {
		return reject(sid, uds.NRCIncorrectMessageLength)
	}
	level := params[0]

	if level%2 == 1 { // seed request
		if e.secLevel == 0 || level != e.secLevel {
			return reject(sid, uds.NRCSubFunctionNotSupported)
		}
		if e.keyFailures >= maxKeyAttempts {
			return reject(sid, uds.NRCExceedNumberOfAttempts)
		}
		if e.unlocked || len(e.secSeed) == 0 {
			// Already open: a zero-length seed tells the tester so.
			return uds.EncodePositive(sid, level)
		}
		e.seedPending = true
		return uds.EncodePositive(sid, append([]byte{level}, e.secSeed...)...)
	}

	// key submission
	if !e.seedPending || level != e.secLevel+1 {
		return reject(sid, uds.NRCRequestSequenceError)
	}
	e.seedPending = false
	if !bytes.Equal(params[1:], e.secKey) {
		e.keyFailures++
		if e.keyFailures >= maxKeyAttempts {
			return reject(sid, uds.NRCExceedNumberOfAttempts)
		}
		return reject(sid, uds.NRCInvalidKey)
	}
	e.keyFailures = 0
	e.unlocked = true
	return uds.EncodePositive(sid, level)
}

func (e *ECU) handleRequestTransfer(params []byte, upload bool) []byte {
	sid := uds.SIDRequestDownload
	if upload {
		sid = uds.SIDRequestUpload
	}
	if len(params) < 2 {
		return reject(sid, uds.NRCIncorrectMessageLength)
	}
	// params[0] is the dataFormatIdentifier, accepted as-is.
	addr, size, _, ok := parseAddressAndLength(params[1:])
	if !ok {
		return reject(sid, uds.NRCIncorrectMessageLength)
	}
	if e.secLevel != 0 && !e.unlocked {
		return reject(sid, uds.NRCSecurityAccessDenied)
	}
	region := e.regionAt(addr)
	if region == nil || !region.contains(addr, size) {
		return reject(sid, uds.NRCRequestOutOfRange)
	}
	e.transfer = &transferState{
		upload: upload,
		region: region,
		offset: int(addr - uint64(region.base)),
		size:   int(size),
		seq:    1,
	}
	// lengthFormatIdentifier 0x20: two bytes of maxNumberOfBlockLength.
	return uds.EncodePositive(sid, 0x20, byte(e.maxBlockLen>>8), byte(e.maxBlockLen))
}

func (e *ECU) handleTransferData(params []byte) []byte {
	sid := uds.SIDTransferData
	if e.transfer == nil {
		return reject(sid, uds.NRCRequestSequenceError)
	}
	if len(params) < 1 {
		return reject(sid, uds.NRCIncorrectMessageLength)
	}
	if e.busyLeft > 0 {
		e.busyLeft--
		return reject(sid, uds.NRCBusyRepeatRequest)
	}
	t := e.transfer
	if params[0] != t.seq {
		return reject(sid, uds.NRCWrongBlockSequenceCounter)
	}

	if t.upload {
		n := e.maxBlockLen - 2
		if left := t.size; n > left {
			n = left
		}
		chunk := t.region.data[t.offset : t.offset+n]
		t.offset += n
		t.size -= n
		resp := uds.EncodePositive(sid, append([]byte{t.seq}, chunk...)...)
		t.seq++
		return resp
	}

	chunk := params[1:]
	if len(chunk) > e.maxBlockLen-2 || len(chunk) > t.size {
		return reject(sid, uds.NRCTransferDataSuspended)
	}
	copy(t.region.data[t.offset:], chunk)
	t.offset += len(chunk)
	t.size -= len(chunk)
	resp := uds.EncodePositive(sid, t.seq)
	t.seq++
	return resp
}

func (e *ECU) transferReset() {
	e.transfer = nil
}

func (e *ECU) regionAt(addr uint64) *memRegion {
	for _, r := range e.regions {
		if addr >= uint64(r.base) && addr < uint64(r.base)+uint64(len(r.data)) {
			return r
		}
	}
	return nil
}

func (r *memRegion) contains(addr, size uint64) bool {
	return addr+size <= uint64(r.base)+uint64(len(r.data))
}

func reject(sid byte, code uds.NRC) []byte {
	return uds.EncodeNegative(sid, code)
}

// parseAddressAndLength decodes a format byte (high nibble address width,
// low nibble size width) followed by the two big-endian fields, returning
// any remaining bytes.
func parseAddressAndLength(params []byte) (addr, size uint64, rest []byte, ok bool) {
	if len(params) < 1 {
		return 0, 0, nil, false
	}
	addrLen := int(params[0] >> 4)
	sizeLen := int(params[0] & 0x0F)
	if addrLen < 1 || addrLen > 4 || sizeLen < 1 || sizeLen > 4 {
		return 0, 0, nil, false
	}
	if len(params) < 1+addrLen+sizeLen {
		return 0, 0, nil, false
	}
	for _, b := range params[1 : 1+addrLen] {
		addr = addr<<8 | uint64(b)
	}
	for _, b := range params[1+addrLen : 1+addrLen+sizeLen] {
		size = size<<8 | uint64(b)
	}
	return addr, size, params[1+addrLen+sizeLen:], true
}

func widthOf(params []byte) int {
	return int(params[0]>>4) + int(params[0]&0x0F)
}
