// Package uds implements the ISO 14229 application-layer frame codec:
// service identifiers, negative response codes and the typed outcome of
// decoding a raw diagnostic response.
package uds

import "fmt"

// UDS service identifiers.
const (
	SIDDiagnosticSessionControl        byte = 0x10
	SIDECUReset                        byte = 0x11
	SIDClearDiagnosticInformation      byte = 0x14
	SIDReadDTCInformation              byte = 0x19
	SIDReadDataByIdentifier            byte = 0x22
	SIDReadMemoryByAddress             byte = 0x23
	SIDReadScalingDataByIdentifier     byte = 0x24
	SIDSecurityAccess                  byte = 0x27
	SIDCommunicationControl            byte = 0x28
	SIDReadDataByPeriodicIdentifier    byte = 0x2A
	SIDDynamicallyDefineDataIdentifier byte = 0x2C
	SIDWriteDataByIdentifier           byte = 0x2E
	SIDInputOutputControlByIdentifier  byte = 0x2F
	SIDRoutineControl                  byte = 0x31
	SIDRequestDownload                 byte = 0x34
	SIDRequestUpload                   byte = 0x35
	SIDTransferData                    byte = 0x36
	SIDRequestTransferExit             byte = 0x37
	SIDWriteMemoryByAddress            byte = 0x3D
	SIDTesterPresent                   byte = 0x3E
	SIDControlDTCSetting               byte = 0x85
	SIDResponseOnEvent                 byte = 0x86
	SIDLinkControl                     byte = 0x87
)

// PositiveResponseOffset is added to a request SID to form the positive
// response SID.
const PositiveResponseOffset byte = 0x40

// NegativeResponseSID is the leading byte of every negative response.
const NegativeResponseSID byte = 0x7F

var sidNames = map[byte]string{
	SIDDiagnosticSessionControl:        "Diagnostic Session Control",
	SIDECUReset:                        "ECU Reset",
	SIDClearDiagnosticInformation:      "Clear Diagnostic Information",
	SIDReadDTCInformation:              "Read DTC Information",
	SIDReadDataByIdentifier:            "Read Data By Identifier",
	SIDReadMemoryByAddress:             "Read Memory By Address",
	SIDReadScalingDataByIdentifier:     "Read Scaling Data By Identifier",
	SIDSecurityAccess:                  "Security Access",
	SIDCommunicationControl:            "Communication Control",
	SIDReadDataByPeriodicIdentifier:    "Read Data By Periodic Identifier",
	SIDDynamicallyDefineDataIdentifier: "Dynamically Define Data Identifier",
	SIDWriteDataByIdentifier:           "Write Data By Identifier",
	SIDInputOutputControlByIdentifier:  "Input Output Control By Identifier",
	SIDRoutineControl:                  "Routine Control",
	SIDRequestDownload:                 "Request Download",
	SIDRequestUpload:                   "Request Upload",
	SIDTransferData:                    "Transfer Data",
	SIDRequestTransferExit:             "Request Transfer Exit",
	SIDWriteMemoryByAddress:            "Write Memory By Address",
	SIDTesterPresent:                   "Tester Present",
	SIDControlDTCSetting:               "Control DTC Setting",
	SIDResponseOnEvent:                 "Response On Event",
	SIDLinkControl:                     "Link Control",
}

// ServiceName returns a human readable name for a request SID, or the hex
// value for services this package does not know about.
func ServiceName(sid byte) string {
	if name, ok := sidNames[sid]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", sid)
}
