package uds

import "fmt"

// NRC is an ISO 14229 negative response code. Values outside the named set
// are carried as-is; Known reports whether the byte is one this package can
// describe. Unrecognized codes never fail to decode.
type NRC byte

const (
	NRCGeneralReject                          NRC = 0x10
	NRCServiceNotSupported                    NRC = 0x11
	NRCSubFunctionNotSupported                NRC = 0x12
	NRCIncorrectMessageLength                 NRC = 0x13
	NRCResponseTooLong                        NRC = 0x14
	NRCBusyRepeatRequest                      NRC = 0x21
	NRCConditionsNotCorrect                   NRC = 0x22
	NRCRequestSequenceError                   NRC = 0x24
	NRCNoResponseFromSubnetComponent          NRC = 0x25
	NRCFailurePreventsExecution               NRC = 0x26
	NRCRequestOutOfRange                      NRC = 0x31
	NRCSecurityAccessDenied                   NRC = 0x33
	NRCInvalidKey                             NRC = 0x35
	NRCExceedNumberOfAttempts                 NRC = 0x36
	NRCRequiredTimeDelayNotExpired            NRC = 0x37
	NRCUploadDownloadNotAccepted              NRC = 0x70
	NRCTransferDataSuspended                  NRC = 0x71
	NRCGeneralProgrammingFailure              NRC = 0x72
	NRCWrongBlockSequenceCounter              NRC = 0x73
	NRCResponsePending                        NRC = 0x78
	NRCSubFunctionNotSupportedInActiveSession NRC = 0x7E
	NRCServiceNotSupportedInActiveSession     NRC = 0x7F
)

var nrcDescriptions = map[NRC]string{
	NRCGeneralReject:                          "general reject",
	NRCServiceNotSupported:                    "service not supported",
	NRCSubFunctionNotSupported:                "sub-function not supported",
	NRCIncorrectMessageLength:                 "incorrect message length or invalid format",
	NRCResponseTooLong:                        "response too long",
	NRCBusyRepeatRequest:                      "busy, repeat request",
	NRCConditionsNotCorrect:                   "conditions not correct",
	NRCRequestSequenceError:                   "request sequence error",
	NRCNoResponseFromSubnetComponent:          "no response from subnet component",
	NRCFailurePreventsExecution:               "failure prevents execution of requested action",
	NRCRequestOutOfRange:                      "request out of range",
	NRCSecurityAccessDenied:                   "security access denied",
	NRCInvalidKey:                             "invalid key",
	NRCExceedNumberOfAttempts:                 "exceeded number of attempts",
	NRCRequiredTimeDelayNotExpired:            "required time delay not expired",
	NRCUploadDownloadNotAccepted:              "upload/download not accepted",
	NRCTransferDataSuspended:                  "transfer data suspended",
	NRCGeneralProgrammingFailure:              "general programming failure",
	NRCWrongBlockSequenceCounter:              "wrong block sequence counter",
	NRCResponsePending:                        "request correctly received, response pending",
	NRCSubFunctionNotSupportedInActiveSession: "sub-function not supported in active session",
	NRCServiceNotSupportedInActiveSession:     "service not supported in active session",
}

// Known reports whether the code is part of the named ISO 14229 set.
func (c NRC) Known() bool {
	_, ok := nrcDescriptions[c]
	return ok
}

func (c NRC) String() string {
	if desc, ok := nrcDescriptions[c]; ok {
		return desc
	}
	return fmt.Sprintf("unknown NRC 0x%02X", byte(c))
}
