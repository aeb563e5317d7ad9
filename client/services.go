package client

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dcreply4u/udsgo/uds"
)

// ECU reset sub-functions.
const (
	ResetHard                 byte = 0x01
	ResetKeyOffOn             byte = 0x02
	ResetSoft                 byte = 0x03
	ResetEnableRapidShutdown  byte = 0x04
	ResetDisableRapidShutdown byte = 0x05
)

// Routine control sub-functions.
const (
	RoutineStart          byte = 0x01
	RoutineStop           byte = 0x02
	RoutineRequestResults byte = 0x03
)

// Tester present sub-function: zeroSubFunction, response required.
const testerPresentZeroSubFunction byte = 0x00

// DiagnosticSessionControl switches the diagnostic session. A positive
// response updates the tracked session type and drops the security level.
func (c *Client) DiagnosticSessionControl(ctx context.Context, session SessionType) (uds.Response, error) {
	return c.exchange(ctx, uds.SIDDiagnosticSessionControl, []byte{byte(session)}, func(uds.Response) {
		c.session.Type = session
		c.session.SecurityLevel = 0
	})
}

// ECUReset requests a reset. A positive response puts the tracked state
// back to the default session, locked.
func (c *Client) ECUReset(ctx context.Context, resetType byte) (uds.Response, error) {
	return c.exchange(ctx, uds.SIDECUReset, []byte{resetType}, func(uds.Response) {
		c.session.Type = SessionDefault
		c.session.SecurityLevel = 0
	})
}

// ClearDiagnosticInformation clears the DTC group, a 3-byte big-endian
// value (0xFFFFFF clears all groups).
func (c *Client) ClearDiagnosticInformation(ctx context.Context, group uint32) (uds.Response, error) {
	params := []byte{byte(group >> 16), byte(group >> 8), byte(group)}
	return c.Transact(ctx, uds.SIDClearDiagnosticInformation, params)
}

// ReadDTCInformation requests a DTC report. The report type and any
// type-specific record bytes are opaque to this client.
func (c *Client) ReadDTCInformation(ctx context.Context, reportType byte, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDReadDTCInformation, append([]byte{reportType}, record...))
}

// ReadDataByIdentifier reads one data identifier. The positive response
// data echoes the DID followed by the record value.
func (c *Client) ReadDataByIdentifier(ctx context.Context, did uint16) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDReadDataByIdentifier, be16(did))
}

// ReadScalingDataByIdentifier reads the scaling record for a DID.
func (c *Client) ReadScalingDataByIdentifier(ctx context.Context, did uint16) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDReadScalingDataByIdentifier, be16(did))
}

// WriteDataByIdentifier writes a data record to a DID.
func (c *Client) WriteDataByIdentifier(ctx context.Context, did uint16, data []byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDWriteDataByIdentifier, append(be16(did), data...))
}

// ReadMemoryByAddress reads size bytes starting at addr. addrLen and
// sizeLen select the on-wire field widths (1..4 bytes each).
func (c *Client) ReadMemoryByAddress(ctx context.Context, addr, size uint64, addrLen, sizeLen int) (uds.Response, error) {
	params, err := appendAddressAndLength(nil, addr, size, addrLen, sizeLen)
	if err != nil {
		return uds.Response{}, err
	}
	return c.Transact(ctx, uds.SIDReadMemoryByAddress, params)
}

// WriteMemoryByAddress writes data starting at addr. The size field is
// derived from len(data).
func (c *Client) WriteMemoryByAddress(ctx context.Context, addr uint64, data []byte, addrLen, sizeLen int) (uds.Response, error) {
	params, err := appendAddressAndLength(nil, addr, uint64(len(data)), addrLen, sizeLen)
	if err != nil {
		return uds.Response{}, err
	}
	return c.Transact(ctx, uds.SIDWriteMemoryByAddress, append(params, data...))
}

// CommunicationControl enables or disables message types on the ECU.
func (c *Client) CommunicationControl(ctx context.Context, controlType, communicationType byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDCommunicationControl, []byte{controlType, communicationType})
}

// ReadDataByPeriodicIdentifier schedules periodic transmission of the
// given periodic identifiers at the given transmission mode.
func (c *Client) ReadDataByPeriodicIdentifier(ctx context.Context, transmissionMode byte, periodicIDs ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDReadDataByPeriodicIdentifier, append([]byte{transmissionMode}, periodicIDs...))
}

// DynamicallyDefineDataIdentifier defines or clears a dynamic DID. The
// definition record layout depends on the sub-function and is passed
// through unchanged.
func (c *Client) DynamicallyDefineDataIdentifier(ctx context.Context, subFunction byte, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDDynamicallyDefineDataIdentifier, append([]byte{subFunction}, record...))
}

// InputOutputControlByIdentifier overrides an IO signal identified by DID.
func (c *Client) InputOutputControlByIdentifier(ctx context.Context, did uint16, controlRecord ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDInputOutputControlByIdentifier, append(be16(did), controlRecord...))
}

// RoutineControl starts, stops or queries a routine. Routine identifiers
// are opaque 2-byte big-endian codes.
func (c *Client) RoutineControl(ctx context.Context, controlType byte, routineID uint16, record ...byte) (uds.Response, error) {
	params := append([]byte{controlType}, be16(routineID)...)
	return c.Transact(ctx, uds.SIDRoutineControl, append(params, record...))
}

// StartRoutine is RoutineControl with the start sub-function.
func (c *Client) StartRoutine(ctx context.Context, routineID uint16, record ...byte) (uds.Response, error) {
	return c.RoutineControl(ctx, RoutineStart, routineID, record...)
}

// StopRoutine is RoutineControl with the stop sub-function.
func (c *Client) StopRoutine(ctx context.Context, routineID uint16, record ...byte) (uds.Response, error) {
	return c.RoutineControl(ctx, RoutineStop, routineID, record...)
}

// RoutineResults is RoutineControl with the request-results sub-function.
func (c *Client) RoutineResults(ctx context.Context, routineID uint16) (uds.Response, error) {
	return c.RoutineControl(ctx, RoutineRequestResults, routineID)
}

// TesterPresent keeps the current session alive. A positive reply carries
// no information beyond refreshing the activity clock.
func (c *Client) TesterPresent(ctx context.Context) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDTesterPresent, []byte{testerPresentZeroSubFunction})
}

// ControlDTCSetting switches DTC updating on or off.
func (c *Client) ControlDTCSetting(ctx context.Context, settingType byte, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDControlDTCSetting, append([]byte{settingType}, record...))
}

// ResponseOnEvent sets up, clears or reports event-triggered responses.
func (c *Client) ResponseOnEvent(ctx context.Context, eventType, eventWindowTime byte, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDResponseOnEvent, append([]byte{eventType, eventWindowTime}, record...))
}

// LinkControl negotiates a baud rate transition.
func (c *Client) LinkControl(ctx context.Context, subFunction byte, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDLinkControl, append([]byte{subFunction}, record...))
}

// RequestTransferExit ends a segmented transfer. See TransferSession.Exit
// for the stateful variant.
func (c *Client) RequestTransferExit(ctx context.Context, record ...byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDRequestTransferExit, record)
}

// TransferData sends one raw transfer-data request. Most callers should go
// through TransferSession, which tracks the block sequence counter.
func (c *Client) TransferData(ctx context.Context, blockSequence byte, chunk []byte) (uds.Response, error) {
	return c.Transact(ctx, uds.SIDTransferData, append([]byte{blockSequence}, chunk...))
}

func be16(v uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, v)
}

// appendAddressAndLength encodes the addressAndLengthFormatIdentifier
// (high nibble: address byte count, low nibble: size byte count) followed
// by the big-endian address and size fields of the stated widths.
func appendAddressAndLength(dst []byte, addr, size uint64, addrLen, sizeLen int) ([]byte, error) {
	if addrLen < 1 || addrLen > 4 {
		return nil, fmt.Errorf("address length must be 1..4 bytes, got %d", addrLen)
	}
	if sizeLen < 1 || sizeLen > 4 {
		return nil, fmt.Errorf("size length must be 1..4 bytes, got %d", sizeLen)
	}
	if addr>>(8*addrLen) != 0 {
		return nil, fmt.Errorf("address 0x%X does not fit in %d bytes", addr, addrLen)
	}
	if size>>(8*sizeLen) != 0 {
		return nil, fmt.Errorf("size %d does not fit in %d bytes", size, sizeLen)
	}
	dst = append(dst, byte(addrLen<<4|sizeLen))
	dst = appendUintBE(dst, addr, addrLen)
	return appendUintBE(dst, size, sizeLen), nil
}

func appendUintBE(dst []byte, v uint64, width int) []byte {
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}
