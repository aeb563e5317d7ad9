// Package client implements an ISO 14229 diagnostic client on top of a
// payload transport: a single serialized transact primitive, the service
// catalogue, the security access handshake, segmented transfers and the
// tester-present keep-alive.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dcreply4u/udsgo/uds"
)

// receiveSlice caps a single Receive call so context cancellation is
// noticed promptly while waiting out P2/P2*.
const receiveSlice = 10 * time.Millisecond

// SessionType is a diagnosticSessionControl sub-function. Values in
// 0x40..0x5F are vehicle-manufacturer specific.
type SessionType byte

const (
	SessionDefault      SessionType = 0x01
	SessionProgramming  SessionType = 0x02
	SessionExtended     SessionType = 0x03
	SessionSafetySystem SessionType = 0x04
)

func (s SessionType) String() string {
	switch s {
	case SessionDefault:
		return "default"
	case SessionProgramming:
		return "programming"
	case SessionExtended:
		return "extended"
	case SessionSafetySystem:
		return "safety system"
	default:
		return fmt.Sprintf("0x%02X", byte(s))
	}
}

// SessionState is the client's view of the ECU session. SecurityLevel is
// the odd level currently unlocked, 0 when locked. It is advisory only:
// the client never suppresses a wire exchange based on it, the ECU's
// negative response stays authoritative.
type SessionState struct {
	Type          SessionType
	SecurityLevel byte
	LastActivity  time.Time
}

// Client is the transaction manager. One instance owns one ECU connection;
// all session and transfer state lives on the instance and is updated only
// inside the critical section that performed the exchange.
type Client struct {
	tr  Transport
	cfg Config

	mu      sync.Mutex // serializes complete transact exchanges
	session SessionState

	kaMu     sync.Mutex
	kaCancel context.CancelFunc
	kaDone   chan struct{}
}

// New builds a client over the given transport.
func New(tr Transport, opts ...Option) *Client {
	if tr == nil {
		panic("transport cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		tr:      tr,
		cfg:     cfg,
		session: SessionState{Type: SessionDefault},
	}
}

// Session returns a copy of the tracked session state.
func (c *Client) Session() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close stops the keep-alive task if one is running.
func (c *Client) Close() {
	c.StopTesterPresent()
}

// Transact performs one raw request/response exchange. Every service
// operation funnels through here; it is the only place that touches the
// transport and the only place a timeout can originate.
//
// The returned error is nil only for a positive response. Negative,
// timeout and malformed outcomes come back both in the tagged Response and
// as a typed error (NegativeResponseError, TimeoutError,
// MalformedResponseError), so callers can switch on either.
func (c *Client) Transact(ctx context.Context, sid byte, params []byte) (uds.Response, error) {
	return c.exchange(ctx, sid, params, nil)
}

// exchange runs one exchange under the transact mutex and, on a positive
// response, applies the state update inside the same critical section.
func (c *Client) exchange(ctx context.Context, sid byte, params []byte, onPositive func(uds.Response)) (uds.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.transactLocked(ctx, sid, params)
	if err != nil {
		return resp, err
	}
	if resp.IsPositive() && onPositive != nil {
		onPositive(resp)
	}
	return resp, resp.Err()
}

func (c *Client) transactLocked(ctx context.Context, sid byte, params []byte) (uds.Response, error) {
	// A previously abandoned wait may have left its late response unread.
	// Consume and discard anything pending so frames never cross calls.
	if err := c.drainLocked(); err != nil {
		return uds.Response{}, err
	}

	payload := uds.Request{ServiceID: sid, Params: params}.Encode()
	if err := c.tr.Send(payload); err != nil {
		return uds.Response{}, &uds.TransportError{Op: "send", Err: err}
	}

	deadline := time.Now().Add(c.cfg.P2)
	for {
		if err := ctx.Err(); err != nil {
			// The caller abandoned the wait. The eventual response stays on
			// the transport and is drained by the next exchange.
			return uds.Response{}, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return uds.Timeout(sid), nil
		}
		if remaining > receiveSlice {
			remaining = receiveSlice
		}

		raw, ok, err := c.tr.Receive(remaining)
		if err != nil {
			return uds.Response{}, &uds.TransportError{Op: "receive", Err: err}
		}
		if !ok {
			continue
		}
		c.session.LastActivity = time.Now()

		resp := uds.Decode(raw, sid)
		if resp.Kind == uds.KindNegative {
			if resp.ServiceID != sid {
				// Stale negative for an earlier request, discard.
				c.logf("discarding stale negative response for %s", uds.ServiceName(resp.ServiceID))
				continue
			}
			if resp.Code == uds.NRCResponsePending {
				// 0x78 is not a failure: re-wait on the extended budget,
				// possibly repeatedly.
				deadline = time.Now().Add(c.cfg.P2Star)
				c.logf("%s: response pending, waiting up to %v", uds.ServiceName(sid), c.cfg.P2Star)
				continue
			}
		}
		return resp, nil
	}
}

// drainLocked pops and discards everything the transport already holds.
func (c *Client) drainLocked() error {
	for {
		_, ok, err := c.tr.Receive(0)
		if err != nil {
			return &uds.TransportError{Op: "receive", Err: err}
		}
		if !ok {
			return nil
		}
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, args...)
	}
}
