// Package seedkey provides common security access key-derivation
// strategies. Each type satisfies the client.KeyStrategy interface; real
// OEM algorithms belong to the caller, these cover the widespread simple
// schemes plus an AES-CMAC construction.
package seedkey

import (
	"crypto/aes"
	"errors"
	"fmt"

	"github.com/chmike/cmac-go"
)

// Fixed returns the same pre-shared key regardless of the seed. Useful for
// ECUs whose even-level key is static.
type Fixed []byte

func (f Fixed) ComputeKey(_ []byte) ([]byte, error) {
	if len(f) == 0 {
		return nil, errors.New("fixed key is empty")
	}
	return append([]byte(nil), f...), nil
}

// XOR derives the key by XOR-ing the seed with a repeating secret, a
// scheme many development ECUs ship with.
type XOR struct {
	Secret []byte
}

func (x XOR) ComputeKey(seed []byte) ([]byte, error) {
	if len(x.Secret) == 0 {
		return nil, errors.New("xor secret is empty")
	}
	key := make([]byte, len(seed))
	for i, b := range seed {
		key[i] = b ^ x.Secret[i%len(x.Secret)]
	}
	return key, nil
}

// AESCMAC authenticates the seed with AES-CMAC under a pre-shared 128, 192
// or 256 bit key; the 16-byte MAC is the security access key.
type AESCMAC struct {
	Key []byte
}

func (a AESCMAC) ComputeKey(seed []byte) ([]byte, error) {
	cm, err := cmac.New(aes.NewCipher, a.Key)
	if err != nil {
		return nil, fmt.Errorf("init aes-cmac: %w", err)
	}
	if _, err := cm.Write(seed); err != nil {
		return nil, fmt.Errorf("mac seed: %w", err)
	}
	return cm.Sum(nil), nil
}
