package client

import (
	"context"
	"errors"
	"time"
)

// StartTesterPresent launches the background keep-alive task, re-sending
// Tester Present at the given interval (the configured default when 0)
// until StopTesterPresent or Close. The task shares the transact mutex
// with foreground operations, so frames from the two paths never
// interleave on the wire.
func (c *Client) StartTesterPresent(interval time.Duration) error {
	c.kaMu.Lock()
	defer c.kaMu.Unlock()
	if c.kaCancel != nil {
		return errors.New("tester present keep-alive already running")
	}
	if interval <= 0 {
		interval = c.cfg.KeepAliveInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.kaCancel = cancel
	c.kaDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// A positive reply only refreshes the activity clock; any
				// failure is logged and the loop keeps going so a single
				// lost frame does not drop the session.
				if _, err := c.TesterPresent(ctx); err != nil && ctx.Err() == nil {
					c.logf("tester present keep-alive: %v", err)
				}
			}
		}
	}()
	return nil
}

// StopTesterPresent cancels the keep-alive task and waits for it to drain.
// Safe to call when no task is running.
func (c *Client) StopTesterPresent() {
	c.kaMu.Lock()
	cancel, done := c.kaCancel, c.kaDone
	c.kaCancel, c.kaDone = nil, nil
	c.kaMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// KeepAliveRunning reports whether the background task is active.
func (c *Client) KeepAliveRunning() bool {
	c.kaMu.Lock()
	defer c.kaMu.Unlock()
	return c.kaCancel != nil
}
