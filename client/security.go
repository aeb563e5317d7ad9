package client

import (
	"context"
	"fmt"

	"github.com/dcreply4u/udsgo/uds"
)

// KeyStrategy derives the security access key from the ECU's seed. The
// protocol core carries no cryptographic policy of its own; implementations
// live with the caller (see the seedkey package for common ones).
type KeyStrategy interface {
	ComputeKey(seed []byte) ([]byte, error)
}

// RequestSeed sends Security Access for an odd level and returns the seed
// the ECU issued. The seed length is ECU-defined and may be zero, which
// means no security is required at this level.
func (c *Client) RequestSeed(ctx context.Context, level byte) ([]byte, uds.Response, error) {
	if level%2 == 0 {
		return nil, uds.Response{}, fmt.Errorf("seed request level must be odd, got 0x%02X", level)
	}
	resp, err := c.Transact(ctx, uds.SIDSecurityAccess, []byte{level})
	if err != nil {
		return nil, resp, err
	}
	if len(resp.Data) < 1 || resp.Data[0] != level {
		return nil, resp, &uds.MalformedResponseError{Raw: resp.Raw}
	}
	return resp.Data[1:], resp, nil
}

// SendKey submits a key for an even level. This is the escape hatch for
// ECUs that accept static keys without a preceding seed request; it is the
// caller's responsibility to use it correctly. A positive response marks
// the corresponding odd level unlocked.
func (c *Client) SendKey(ctx context.Context, level byte, key []byte) (uds.Response, error) {
	if level%2 != 0 {
		return uds.Response{}, fmt.Errorf("key submission level must be even, got 0x%02X", level)
	}
	return c.exchange(ctx, uds.SIDSecurityAccess, append([]byte{level}, key...), func(uds.Response) {
		c.session.SecurityLevel = level - 1
	})
}

// Unlock performs the full seed/key handshake for an odd level:
//
//	Idle -> SeedRequested(level) -> Unlocked(level) | Idle
//
// A negative response at either step leaves the handshake in Idle and is
// surfaced to the caller. Exceed-number-of-attempts and
// required-time-delay are enforced by the ECU; this client never retries
// on them. An empty seed means the level is already open and the key step
// is skipped.
func (c *Client) Unlock(ctx context.Context, level byte, strategy KeyStrategy) (uds.Response, error) {
	if strategy == nil {
		return uds.Response{}, fmt.Errorf("key strategy cannot be nil")
	}
	seed, resp, err := c.RequestSeed(ctx, level)
	if err != nil {
		return resp, err
	}
	if len(seed) == 0 {
		c.logf("security access level 0x%02X: empty seed, already unlocked", level)
		c.markUnlocked(level)
		return resp, nil
	}
	key, err := strategy.ComputeKey(seed)
	if err != nil {
		return resp, fmt.Errorf("compute key for level 0x%02X: %w", level, err)
	}
	return c.SendKey(ctx, level+1, key)
}

func (c *Client) markUnlocked(level byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.SecurityLevel = level
}
