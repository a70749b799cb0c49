// Package testutil provides in-memory doubles for the bus interfaces: a
// recording publisher and a scriptable subscription. No broker required;
// all types are safe for concurrent use.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/plsm/assisi-go/wire"
)

// FrameBus records every published frame and can be told to fail.
type FrameBus struct {
	mu        sync.Mutex
	published []wire.Frame
	err       error
}

// NewFrameBus creates an empty recording bus.
func NewFrameBus() *FrameBus {
	return &FrameBus{}
}

// Publish records the frame, or returns the injected error.
func (b *FrameBus) Publish(_ context.Context, f wire.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, f)
	return nil
}

// FailWith makes every subsequent Publish return err. Pass nil to heal.
func (b *FrameBus) FailWith(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// Published returns a copy of every recorded frame, in publish order.
func (b *FrameBus) Published() []wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Frame, len(b.published))
	copy(out, b.published)
	return out
}

// PublishedTo returns the recorded frames for one device.
func (b *FrameBus) PublishedTo(device wire.Device) []wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []wire.Frame
	for _, f := range b.published {
		if f.Device == device {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of recorded frames.
func (b *FrameBus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// ScriptedSub is a subscription double fed by the test.
type ScriptedSub struct {
	ch chan wire.Frame
}

// NewScriptedSub creates a subscription holding up to capacity undelivered
// frames.
func NewScriptedSub(capacity int) *ScriptedSub {
	if capacity <= 0 {
		capacity = 16
	}
	return &ScriptedSub{ch: make(chan wire.Frame, capacity)}
}

// Feed queues one frame for delivery.
func (s *ScriptedSub) Feed(f wire.Frame) {
	s.ch <- f
}

// Next blocks until a frame is fed or ctx ends.
func (s *ScriptedSub) Next(ctx context.Context) (wire.Frame, error) {
	select {
	case f := <-s.ch:
		return f, nil
	case <-ctx.Done():
		return wire.Frame{}, ctx.Err()
	}
}

// TryNext performs one non-blocking poll.
func (s *ScriptedSub) TryNext() (wire.Frame, bool) {
	select {
	case f := <-s.ch:
		return f, true
	default:
		return wire.Frame{}, false
	}
}

// MustFrame builds a frame with an encoded payload. Panics on an
// unencodable value; test inputs are always encodable.
func MustFrame(target string, device wire.Device, command wire.Command, payload any) wire.Frame {
	data, err := wire.Encode(payload)
	if err != nil {
		panic(err)
	}
	return wire.Frame{Target: target, Device: device, Command: command, Payload: data}
}

// Eventually polls cond every 10ms until it holds or the timeout elapses.
func Eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
