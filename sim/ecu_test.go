package sim

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dcreply4u/udsgo/client"
	"github.com/dcreply4u/udsgo/seedkey"
	"github.com/dcreply4u/udsgo/uds"
)

// The sim package is exercised end to end through the real client: the
// tests here cover the cross-service flows a bench session runs, not the
// individual byte layouts (the client package owns those).

func TestSession_UnlockAndWrite(t *testing.T) {
	ecu := New()
	ecu.SetDID(0xF190, []byte("WAUZZZ8V5KA000001"))
	secret := []byte{0xA5, 0x5A}
	seed := []byte{0x10, 0x20, 0x30, 0x40}
	key, _ := seedkey.XOR{Secret: secret}.ComputeKey(seed)
	ecu.SetSecurity(0x01, seed, key)

	c := client.New(ecu)
	ctx := context.Background()

	if _, err := c.DiagnosticSessionControl(ctx, client.SessionExtended); err != nil {
		t.Fatalf("session control failed: %v", err)
	}
	if got := c.Session().Type; got != client.SessionExtended {
		t.Errorf("tracked session %v", got)
	}

	resp, err := c.ReadDataByIdentifier(ctx, 0xF190)
	if err != nil {
		t.Fatalf("read VIN failed: %v", err)
	}
	if !bytes.Equal(resp.Data[2:], []byte("WAUZZZ8V5KA000001")) {
		t.Errorf("VIN payload % X", resp.Data)
	}

	if _, err := c.Unlock(ctx, 0x01, seedkey.XOR{Secret: secret}); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	if got := c.Session().SecurityLevel; got != 0x01 {
		t.Errorf("tracked security level 0x%02X", got)
	}

	if _, err := c.WriteDataByIdentifier(ctx, 0x0102, []byte{0xCA, 0xFE}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if v, ok := ecu.DID(0x0102); !ok || !bytes.Equal(v, []byte{0xCA, 0xFE}) {
		t.Errorf("ECU stored % X", v)
	}
}

func TestSecurity_AttemptLockout(t *testing.T) {
	ecu := New()
	ecu.SetSecurity(0x01, []byte{0x11}, []byte{0x22})
	c := client.New(ecu)
	ctx := context.Background()

	bad := seedkey.Fixed{0xFF}
	for i := 0; i < 2; i++ {
		var neg *uds.NegativeResponseError
		if _, err := c.Unlock(ctx, 0x01, bad); !errors.As(err, &neg) || neg.Code != uds.NRCInvalidKey {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// Third bad key exhausts the counter.
	var neg *uds.NegativeResponseError
	if _, err := c.Unlock(ctx, 0x01, bad); !errors.As(err, &neg) || neg.Code != uds.NRCExceedNumberOfAttempts {
		t.Fatalf("lockout not reported: %v", err)
	}
	// Even the right key is refused at the seed step now.
	if _, err := c.Unlock(ctx, 0x01, seedkey.Fixed{0x22}); !errors.As(err, &neg) || neg.Code != uds.NRCExceedNumberOfAttempts {
		t.Fatalf("locked ECU issued a seed: %v", err)
	}
}

func TestResponsePending_DelayedAnswer(t *testing.T) {
	ecu := New()
	ecu.SetDID(0x1234, []byte{0x99})
	c := client.New(ecu, client.WithTimings(50*time.Millisecond, time.Second))
	ecu.QueuePending(2, 120*time.Millisecond)

	// The real answer lands well past P2; only the pending re-wait on the
	// P2* budget keeps this from timing out.
	resp, err := c.ReadDataByIdentifier(context.Background(), 0x1234)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x12, 0x34, 0x99}) {
		t.Errorf("payload % X", resp.Data)
	}
}

func TestUpload_ReadsMemoryBack(t *testing.T) {
	ecu := New()
	ecu.AddMemory(0x8000, 64)
	ecu.SetMaxBlockLength(0x12) // 16 data bytes per block
	c := client.New(ecu)
	ctx := context.Background()

	want := make([]byte, 40)
	for i := range want {
		want[i] = byte(0xC0 + i)
	}
	if _, err := c.WriteMemoryByAddress(ctx, 0x8000, want, 4, 1); err != nil {
		t.Fatalf("write memory failed: %v", err)
	}

	ts, _, err := c.RequestUpload(ctx, 0x8000, uint64(len(want)), 4, 2, 0x00)
	if err != nil {
		t.Fatalf("request upload failed: %v", err)
	}
	var got []byte
	for len(got) < len(want) {
		chunk, _, err := ts.Receive(ctx)
		if err != nil {
			t.Fatalf("upload block failed: %v", err)
		}
		got = append(got, chunk...)
	}
	if _, err := ts.Exit(ctx); err != nil {
		t.Fatalf("transfer exit failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("uploaded % X", got)
	}
}

func TestECUReset_DropsTransfer(t *testing.T) {
	ecu := New()
	ecu.AddMemory(0x8000, 16)
	c := client.New(ecu)
	ctx := context.Background()

	ts, _, err := c.RequestDownload(ctx, 0x8000, 8, 4, 2, 0x00)
	if err != nil {
		t.Fatalf("request download failed: %v", err)
	}
	if _, err := c.ECUReset(ctx, client.ResetHard); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	// The ECU dropped its transfer state on reset, so the next block is a
	// sequence error on the wire.
	var neg *uds.NegativeResponseError
	if _, err := ts.Send(ctx, []byte{0x01}); !errors.As(err, &neg) || neg.Code != uds.NRCRequestSequenceError {
		t.Fatalf("expected request sequence error, got %v", err)
	}
}
