package client

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dcreply4u/udsgo/uds"
)

type xorStrategy struct{ secret byte }

func (s xorStrategy) ComputeKey(seed []byte) ([]byte, error) {
	key := make([]byte, len(seed))
	for i, b := range seed {
		key[i] = b ^ s.secret
	}
	return key, nil
}

// securityHandler scripts an ECU guarding odd level 0x01 with an XOR key.
func securityHandler(seed []byte, secret byte) func(req []byte) [][]byte {
	return func(req []byte) [][]byte {
		if req[0] != uds.SIDSecurityAccess {
			return echoHandler(req)
		}
		level := req[1]
		if level == 0x01 {
			return [][]byte{uds.EncodePositive(req[0], append([]byte{level}, seed...)...)}
		}
		want := make([]byte, len(seed))
		for i, b := range seed {
			want[i] = b ^ secret
		}
		if level == 0x02 && bytes.Equal(req[2:], want) {
			return [][]byte{uds.EncodePositive(req[0], level)}
		}
		return [][]byte{uds.EncodeNegative(req[0], uds.NRCInvalidKey)}
	}
}

func TestUnlock_Success(t *testing.T) {
	seed := []byte{0x11, 0x22, 0x33, 0x44}
	m := &mockTransport{handler: securityHandler(seed, 0x5A)}
	c := New(m)

	if _, err := c.Unlock(context.Background(), 0x01, xorStrategy{secret: 0x5A}); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0x01 {
		t.Errorf("security level not tracked: 0x%02X", got)
	}

	frames := m.sentFrames()
	if len(frames) != 2 {
		t.Fatalf("expected seed request and key submission, got %d frames", len(frames))
	}
	equalBytes(t, frames[0], []byte{0x27, 0x01})
	equalBytes(t, frames[1], append([]byte{0x27, 0x02}, 0x11^0x5A, 0x22^0x5A, 0x33^0x5A, 0x44^0x5A))
}

func TestUnlock_InvalidKeyLeavesIdle(t *testing.T) {
	seed := []byte{0x11, 0x22}
	m := &mockTransport{handler: securityHandler(seed, 0x5A)}
	c := New(m)

	_, err := c.Unlock(context.Background(), 0x01, xorStrategy{secret: 0xFF})
	var neg *uds.NegativeResponseError
	if !errors.As(err, &neg) || neg.Code != uds.NRCInvalidKey {
		t.Fatalf("expected invalid key rejection, got %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0 {
		t.Errorf("handshake left partial unlock state: 0x%02X", got)
	}
}

func TestUnlock_NegativeAtSeedStep(t *testing.T) {
	m := &mockTransport{handler: func(req []byte) [][]byte {
		return [][]byte{uds.EncodeNegative(req[0], uds.NRCSecurityAccessDenied)}
	}}
	c := New(m)

	_, err := c.Unlock(context.Background(), 0x01, xorStrategy{})
	var neg *uds.NegativeResponseError
	if !errors.As(err, &neg) || neg.Code != uds.NRCSecurityAccessDenied {
		t.Fatalf("expected security access denied, got %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0 {
		t.Errorf("security level set after failed seed request: 0x%02X", got)
	}
	// The failed seed step must not be followed by a key submission.
	if frames := m.sentFrames(); len(frames) != 1 {
		t.Errorf("expected a single frame, got %d", len(frames))
	}
}

func TestUnlock_EmptySeedMeansUnlocked(t *testing.T) {
	m := &mockTransport{handler: func(req []byte) [][]byte {
		return [][]byte{uds.EncodePositive(req[0], req[1])} // level echo, no seed bytes
	}}
	c := New(m)

	if _, err := c.Unlock(context.Background(), 0x01, xorStrategy{}); err != nil {
		t.Fatalf("empty seed should unlock: %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0x01 {
		t.Errorf("empty seed did not mark level unlocked: 0x%02X", got)
	}
	if frames := m.sentFrames(); len(frames) != 1 {
		t.Errorf("key step should be skipped on empty seed, got %d frames", len(frames))
	}
}

func TestRequestSeed_RejectsEvenLevel(t *testing.T) {
	c := New(&mockTransport{})
	if _, _, err := c.RequestSeed(context.Background(), 0x02); err == nil {
		t.Error("expected error for even seed level")
	}
}

func TestSendKey_RejectsOddLevel(t *testing.T) {
	c := New(&mockTransport{})
	if _, err := c.SendKey(context.Background(), 0x03, []byte{0x01}); err == nil {
		t.Error("expected error for odd key level")
	}
}

func TestSendKey_StaticKeyEscapeHatch(t *testing.T) {
	m := &mockTransport{handler: func(req []byte) [][]byte {
		if req[0] == uds.SIDSecurityAccess && req[1] == 0x04 && bytes.Equal(req[2:], []byte{0xCA, 0xFE}) {
			return [][]byte{uds.EncodePositive(req[0], req[1])}
		}
		return [][]byte{uds.EncodeNegative(req[0], uds.NRCInvalidKey)}
	}}
	c := New(m)

	if _, err := c.SendKey(context.Background(), 0x04, []byte{0xCA, 0xFE}); err != nil {
		t.Fatalf("static key submission failed: %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0x03 {
		t.Errorf("unexpected unlocked level: 0x%02X", got)
	}
}
