package uds

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequest_Encode(t *testing.T) {
	req := NewRequest(SIDReadDataByIdentifier, 0xF1, 0x90)
	if got := req.Encode(); !bytes.Equal(got, []byte{0x22, 0xF1, 0x90}) {
		t.Errorf("unexpected encoding: % X", got)
	}
}

func TestRequest_EncodeNoParams(t *testing.T) {
	if got := NewRequest(SIDRequestTransferExit).Encode(); !bytes.Equal(got, []byte{0x37}) {
		t.Errorf("unexpected encoding: % X", got)
	}
}

func TestDecode_PositiveRoundTrip(t *testing.T) {
	cases := []struct {
		sid  byte
		data []byte
	}{
		{SIDDiagnosticSessionControl, []byte{0x03}},
		{SIDReadDataByIdentifier, []byte{0xF1, 0x90, 0x41, 0x42}},
		{SIDTesterPresent, []byte{0x00}},
		{SIDTransferData, nil},
	}
	for _, tc := range cases {
		resp := Decode(EncodePositive(tc.sid, tc.data...), tc.sid)
		if resp.Kind != KindPositive {
			t.Fatalf("SID 0x%02X: expected positive, got %v", tc.sid, resp.Kind)
		}
		if resp.ServiceID != tc.sid {
			t.Errorf("SID mismatch: 0x%02X", resp.ServiceID)
		}
		if !bytes.Equal(resp.Data, tc.data) {
			t.Errorf("data mismatch: % X", resp.Data)
		}
		if resp.Err() != nil {
			t.Errorf("positive response produced error: %v", resp.Err())
		}
	}
}

func TestDecode_Negative(t *testing.T) {
	// Known and undefined NRC bytes must both decode, the latter to the
	// unknown fallback, never to an error.
	for _, nrc := range []byte{0x10, 0x22, 0x33, 0x78, 0x7F, 0x01, 0x42, 0xAB, 0xFE} {
		raw := []byte{0x7F, 0x22, nrc}
		resp := Decode(raw, 0x22)
		if resp.Kind != KindNegative {
			t.Fatalf("NRC 0x%02X: expected negative, got %v", nrc, resp.Kind)
		}
		if resp.ServiceID != 0x22 || byte(resp.Code) != nrc {
			t.Errorf("NRC 0x%02X: decoded SID 0x%02X code 0x%02X", nrc, resp.ServiceID, byte(resp.Code))
		}
	}
}

func TestDecode_NegativeUnknownCode(t *testing.T) {
	resp := Decode([]byte{0x7F, 0x10, 0x42}, 0x10)
	if resp.Code.Known() {
		t.Error("0x42 should not be a known NRC")
	}
	if resp.Code.String() != "unknown NRC 0x42" {
		t.Errorf("unexpected description: %q", resp.Code)
	}
	if !NRCSecurityAccessDenied.Known() {
		t.Error("0x33 should be a known NRC")
	}
}

func TestDecode_NegativeTrailingBytesPreserved(t *testing.T) {
	resp := Decode([]byte{0x7F, 0x31, 0x22, 0xDE, 0xAD}, 0x31)
	if resp.Kind != KindNegative {
		t.Fatalf("expected negative, got %v", resp.Kind)
	}
	if !bytes.Equal(resp.Data, []byte{0xDE, 0xAD}) {
		t.Errorf("trailing bytes dropped: % X", resp.Data)
	}
}

func TestDecode_ShortBuffers(t *testing.T) {
	// Empty buffers and truncated negatives always decode to malformed,
	// never panic.
	for _, raw := range [][]byte{nil, {}, {0x7F}, {0x7F, 0x22}, {0x00}, {0x00, 0x01}} {
		if resp := Decode(raw, 0x22); resp.Kind != KindMalformed {
			t.Errorf("% X: expected malformed, got %v", raw, resp.Kind)
		}
	}
}

func TestDecode_OneBytePositive(t *testing.T) {
	// A bare SID echo is a legal positive response (e.g. clear DTC).
	resp := Decode([]byte{0x54}, SIDClearDiagnosticInformation)
	if resp.Kind != KindPositive || len(resp.Data) != 0 {
		t.Errorf("expected empty positive, got %v % X", resp.Kind, resp.Data)
	}
}

func TestDecode_WrongLeadingByte(t *testing.T) {
	resp := Decode([]byte{0x50, 0x03}, 0x22)
	if resp.Kind != KindMalformed {
		t.Errorf("expected malformed for mismatched SID, got %v", resp.Kind)
	}
}

func TestResponse_ErrTaxonomy(t *testing.T) {
	var neg *NegativeResponseError
	if err := Decode([]byte{0x7F, 0x27, 0x35}, 0x27).Err(); !errors.As(err, &neg) {
		t.Fatalf("expected NegativeResponseError, got %v", err)
	} else if neg.Code != NRCInvalidKey {
		t.Errorf("unexpected code: %v", neg.Code)
	}

	var timeout *TimeoutError
	if err := Timeout(0x22).Err(); !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}

	var malformed *MalformedResponseError
	if err := Decode(nil, 0x22).Err(); !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestServiceName(t *testing.T) {
	if ServiceName(SIDSecurityAccess) != "Security Access" {
		t.Errorf("unexpected name: %s", ServiceName(SIDSecurityAccess))
	}
	if ServiceName(0xF0) != "0xF0" {
		t.Errorf("unexpected fallback: %s", ServiceName(0xF0))
	}
}
