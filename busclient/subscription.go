package busclient

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/wire"
)

// Subscription is one prefix-filtered inbound frame channel. Next blocks,
// TryNext never does; both silently skip frames whose subject doesn't parse
// (they are logged, not surfaced).
type Subscription struct {
	sub    *nats.Subscription
	ch     chan *nats.Msg
	logger *slog.Logger
}

func newSubscription(sub *nats.Subscription, ch chan *nats.Msg, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{sub: sub, ch: ch, logger: logger}
}

// Next blocks until a frame arrives or the context ends.
func (s *Subscription) Next(ctx context.Context) (wire.Frame, error) {
	for {
		select {
		case <-ctx.Done():
			return wire.Frame{}, ctx.Err()
		case msg, ok := <-s.ch:
			if !ok {
				return wire.Frame{}, errors.WrapTransient(errors.ErrSubscriptionFailed,
					"Subscription", "Next", "channel closed")
			}
			f, err := s.frame(msg)
			if err != nil {
				continue
			}
			return f, nil
		}
	}
}

// TryNext performs one non-blocking poll. No pending frame is the normal
// case, signalled by false, never by an error.
func (s *Subscription) TryNext() (wire.Frame, bool) {
	for {
		select {
		case msg, ok := <-s.ch:
			if !ok {
				return wire.Frame{}, false
			}
			f, err := s.frame(msg)
			if err != nil {
				continue
			}
			return f, true
		default:
			return wire.Frame{}, false
		}
	}
}

// Pending returns the number of frames buffered and not yet consumed.
func (s *Subscription) Pending() int {
	return len(s.ch)
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrBadSubscription) {
		return errors.WrapTransient(err, "Subscription", "Unsubscribe", "unsubscribe")
	}
	return nil
}

func (s *Subscription) frame(msg *nats.Msg) (wire.Frame, error) {
	target, device, command, err := wire.ParseSubject(msg.Subject)
	if err != nil {
		s.logger.Warn("dropping malformed frame", "subject", msg.Subject)
		return wire.Frame{}, err
	}
	return wire.Frame{Target: target, Device: device, Command: command, Payload: msg.Data}, nil
}
