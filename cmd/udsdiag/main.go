// Command udsdiag runs a demo diagnostic sequence against the in-memory
// ECU: session switch, security unlock, DID read/write and a small flash
// download.
package main

import (
	"context"
	"log"
	"time"

	"github.com/dcreply4u/udsgo/client"
	"github.com/dcreply4u/udsgo/flash"
	"github.com/dcreply4u/udsgo/seedkey"
	"github.com/dcreply4u/udsgo/sim"
)

func main() {
	ecu := sim.New()
	ecu.SetDID(0xF190, []byte("WDD2050011R000001"))
	ecu.SetSecurity(0x01, []byte{0x12, 0x34, 0x56, 0x78}, mustKey([]byte{0x12, 0x34, 0x56, 0x78}))
	ecu.AddMemory(0x8000, 4096)

	c := client.New(ecu, client.WithLogger(log.Default()))
	defer c.Close()
	ctx := context.Background()

	if _, err := c.DiagnosticSessionControl(ctx, client.SessionExtended); err != nil {
		log.Fatal(err)
	}

	resp, err := c.ReadDataByIdentifier(ctx, 0xF190)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("VIN: %s", resp.Data[2:])

	if _, err := c.Unlock(ctx, 0x01, seedkey.XOR{Secret: secret}); err != nil {
		log.Fatal(err)
	}
	log.Printf("security level unlocked: 0x%02X", c.Session().SecurityLevel)

	if err := c.StartTesterPresent(0); err != nil {
		log.Fatal(err)
	}

	firmware := make([]byte, 2048)
	for i := range firmware {
		firmware[i] = byte(i)
	}
	f := flash.New(c,
		flash.WithAddressFormat(4, 2),
		flash.WithProgress(func(p flash.Progress) {
			log.Printf("flash %.0f%% (%d/%d bytes)", p.Percentage, p.BytesWritten, p.TotalBytes)
		}),
	)
	if err := f.Program(ctx, flash.FromBinary(0x8000, firmware)); err != nil {
		log.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)
	c.StopTesterPresent()
	log.Println("demo sequence complete")
}

var secret = []byte{0xA5, 0xA5, 0xA5, 0xA5}

func mustKey(seed []byte) []byte {
	key, err := seedkey.XOR{Secret: secret}.ComputeKey(seed)
	if err != nil {
		log.Fatal(err)
	}
	return key
}
