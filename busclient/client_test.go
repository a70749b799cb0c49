package busclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plsm/assisi-go/wire"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusClosed, "closed"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestOptions(t *testing.T) {
	c := &Client{}

	require.NoError(t, WithName("lure-01")(c))
	require.NoError(t, WithMaxReconnects(7)(c))
	require.NoError(t, WithReconnectWait(250*time.Millisecond)(c))
	require.NoError(t, WithTimeout(3*time.Second)(c))
	require.NoError(t, WithDrainTimeout(time.Second)(c))

	assert.Equal(t, "lure-01", c.clientName)
	assert.Equal(t, 7, c.maxReconnects)
	assert.Equal(t, 250*time.Millisecond, c.reconnectWait)
	assert.Equal(t, 3*time.Second, c.timeout)
	assert.Equal(t, time.Second, c.drainTimeout)
}

func TestWithLogger_NilKeepsDefault(t *testing.T) {
	c := &Client{}
	require.NoError(t, WithLogger(nil)(c))
	assert.Nil(t, c.logger)
}

func TestClient_StatusBeforeConnect(t *testing.T) {
	c := &Client{}
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
}

func TestClient_PublishNotConnected(t *testing.T) {
	c := &Client{}
	err := c.Publish(context.Background(), wire.Frame{
		Target:  "lure-01",
		Device:  wire.DeviceLight,
		Command: wire.CommandOn,
	})
	assert.Error(t, err)
}

func TestClient_SubscribeNotConnected(t *testing.T) {
	c := &Client{}
	_, err := c.Subscribe("lure-01", 8)
	assert.Error(t, err)
}

// feed builds a subscription backed by a plain channel so delivery can be
// scripted without a broker.
func feed(t *testing.T, capacity int) (*Subscription, chan *nats.Msg) {
	t.Helper()
	ch := make(chan *nats.Msg, capacity)
	return newSubscription(nil, ch, nil), ch
}

func TestSubscription_Next(t *testing.T) {
	sub, ch := feed(t, 4)
	ch <- &nats.Msg{Subject: "lure-01.IR.Ranges", Data: []byte(`{"range":[1,2]}`)}

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lure-01", f.Target)
	assert.Equal(t, wire.DeviceRange, f.Device)
	assert.Equal(t, wire.CommandRanges, f.Command)
	assert.Equal(t, []byte(`{"range":[1,2]}`), f.Payload)
}

func TestSubscription_NextSkipsMalformed(t *testing.T) {
	sub, ch := feed(t, 4)
	ch <- &nats.Msg{Subject: "garbage"}
	ch <- &nats.Msg{Subject: "lure-01.Acc.Measurements", Data: []byte(`{}`)}

	f, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wire.DeviceVibration, f.Device)
}

func TestSubscription_NextContextCancelled(t *testing.T) {
	sub, _ := feed(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscription_TryNext(t *testing.T) {
	sub, ch := feed(t, 4)

	_, ok := sub.TryNext()
	assert.False(t, ok, "empty subscription must not block or yield")

	ch <- &nats.Msg{Subject: "fish-02.Message.fish-01", Data: []byte("hello")}
	f, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, wire.DeviceMessage, f.Device)
	assert.Equal(t, "fish-01", string(f.Command))
	assert.Equal(t, []byte("hello"), f.Payload)
}

func TestSubscription_TryNextDrainsMalformed(t *testing.T) {
	sub, ch := feed(t, 4)
	ch <- &nats.Msg{Subject: "too.many.tokens.here"}
	ch <- &nats.Msg{Subject: "short"}

	_, ok := sub.TryNext()
	assert.False(t, ok)
	assert.Equal(t, 0, sub.Pending())
}

func TestSubscription_Pending(t *testing.T) {
	sub, ch := feed(t, 4)
	ch <- &nats.Msg{Subject: "lure-01.Base.Enc"}
	ch <- &nats.Msg{Subject: "lure-01.Base.GroundTruth"}
	assert.Equal(t, 2, sub.Pending())
}

func TestSubscription_UnsubscribeNil(t *testing.T) {
	sub, _ := feed(t, 1)
	assert.NoError(t, sub.Unsubscribe())
}

func TestClient_CloseIdempotent(t *testing.T) {
	c := &Client{}
	c.status.Store(StatusDisconnected)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StatusClosed, c.Status())
}
