package seedkey

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestFixed(t *testing.T) {
	f := Fixed{0x01, 0x02}
	key, err := f.ComputeKey([]byte{0xAA, 0xBB, 0xCC})
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !bytes.Equal(key, []byte{0x01, 0x02}) {
		t.Errorf("unexpected key % X", key)
	}
	// The returned key must be a copy, not an alias of the strategy.
	key[0] = 0xFF
	if f[0] != 0x01 {
		t.Error("ComputeKey aliased the fixed key")
	}

	if _, err := Fixed(nil).ComputeKey([]byte{0x01}); err == nil {
		t.Error("empty fixed key accepted")
	}
}

func TestXOR(t *testing.T) {
	x := XOR{Secret: []byte{0xA5, 0x5A}}
	key, err := x.ComputeKey([]byte{0x11, 0x22, 0x33})
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	// Secret repeats across the seed.
	want := []byte{0x11 ^ 0xA5, 0x22 ^ 0x5A, 0x33 ^ 0xA5}
	if !bytes.Equal(key, want) {
		t.Errorf("key % X, want % X", key, want)
	}

	if _, err := (XOR{}).ComputeKey([]byte{0x01}); err == nil {
		t.Error("empty secret accepted")
	}
}

func TestAESCMAC_RFC4493Vector(t *testing.T) {
	// RFC 4493 example 1: empty message under the sample 128-bit key.
	key, _ := hex.DecodeString("2b7e151628aed2a6abf7158809cf4f3c")
	want, _ := hex.DecodeString("bb1d6929e95937287fa37d129b756746")

	mac, err := AESCMAC{Key: key}.ComputeKey(nil)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !bytes.Equal(mac, want) {
		t.Errorf("mac % X, want % X", mac, want)
	}
}

func TestAESCMAC_Deterministic(t *testing.T) {
	s := AESCMAC{Key: make([]byte, 16)}
	seed := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	a, err := s.ComputeKey(seed)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	b, err := s.ComputeKey(seed)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("same seed produced different keys")
	}
	if len(a) != 16 {
		t.Errorf("mac length %d, want 16", len(a))
	}
}

func TestAESCMAC_BadKeyLength(t *testing.T) {
	if _, err := (AESCMAC{Key: make([]byte, 5)}).ComputeKey([]byte{0x01}); err == nil {
		t.Error("5-byte AES key accepted")
	}
}
