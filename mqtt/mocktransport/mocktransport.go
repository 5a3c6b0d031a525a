// Package mocktransport provides an in-memory mqtt.Transport for
// exercising the session state machine without a broker, grounded on
// the teacher's paho wrapper's method shapes (Connect/Publish/
// Subscribe) but driven by a scripted event queue instead of a real
// socket.
package mocktransport

import (
	"context"
	"sync"
	"time"

	"github.com/rustyeddy/beacon/mqtt"
)

// Call records one method invocation for test assertions.
type Call struct {
	Method   string
	Topic    string
	Payload  []byte
	QoS      byte
	PacketID uint16
	Dup      bool
}

// Transport is a scriptable mqtt.Transport: tests push events onto
// Events and then drive a Session's Poll loop to consume them.
type Transport struct {
	mu sync.Mutex

	Events    chan mqtt.Event
	Calls     []Call
	ConnectFn func(ctx context.Context) error
	Keepalive time.Duration

	// PublishErr, SubscribeErr and PubRelErr, when set, are returned by
	// the matching method (after recording the Call) instead of nil —
	// used to exercise transport-failure paths such as a retransmit
	// sweep hitting a dead socket.
	PublishErr   error
	SubscribeErr error
	PubRelErr    error

	connected bool
}

// New returns a Transport with a reasonably large event buffer.
func New() *Transport {
	return &Transport{
		Events:    make(chan mqtt.Event, 64),
		Keepalive: time.Hour,
	}
}

func (t *Transport) record(c Call) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, c)
}

// Push queues an event for the next Poll call to return.
func (t *Transport) Push(ev mqtt.Event) {
	t.Events <- ev
}

func (t *Transport) Connect(ctx context.Context) error {
	t.record(Call{Method: "Connect"})
	if t.ConnectFn != nil {
		if err := t.ConnectFn(ctx); err != nil {
			return err
		}
	}
	t.connected = true
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.record(Call{Method: "Disconnect"})
	t.connected = false
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string, qos byte, packetID uint16) error {
	t.record(Call{Method: "Subscribe", Topic: topic, QoS: qos, PacketID: packetID})
	return t.SubscribeErr
}

func (t *Transport) Unsubscribe(ctx context.Context, topic string, packetID uint16) error {
	t.record(Call{Method: "Unsubscribe", Topic: topic, PacketID: packetID})
	return nil
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos byte, packetID uint16, dup bool) error {
	t.record(Call{Method: "Publish", Topic: topic, Payload: payload, QoS: qos, PacketID: packetID, Dup: dup})
	return t.PublishErr
}

func (t *Transport) PubAck(ctx context.Context, packetID uint16) error {
	t.record(Call{Method: "PubAck", PacketID: packetID})
	return nil
}

func (t *Transport) PubRec(ctx context.Context, packetID uint16) error {
	t.record(Call{Method: "PubRec", PacketID: packetID})
	return nil
}

func (t *Transport) PubRel(ctx context.Context, packetID uint16) error {
	t.record(Call{Method: "PubRel", PacketID: packetID})
	return t.PubRelErr
}

func (t *Transport) PubComp(ctx context.Context, packetID uint16) error {
	t.record(Call{Method: "PubComp", PacketID: packetID})
	return nil
}

func (t *Transport) Poll(ctx context.Context, timeout time.Duration) (mqtt.Event, error) {
	select {
	case ev := <-t.Events:
		return ev, nil
	case <-time.After(timeout):
		return mqtt.Event{Kind: mqtt.EventTimeout}, nil
	case <-ctx.Done():
		return mqtt.Event{}, ctx.Err()
	}
}

func (t *Transport) KeepaliveRemaining() time.Duration {
	return t.Keepalive
}
