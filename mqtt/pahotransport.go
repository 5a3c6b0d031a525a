package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// PahoConfig configures a PahoTransport, following the teacher's
// messenger/mqtt.Config shape. It carries no TLS settings of its own.
type PahoConfig struct {
	Broker       string // e.g. "tls://broker.local:8883"
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	Keepalive    time.Duration
}

// PahoTransport adapts eclipse/paho.mqtt.golang to the Transport
// interface Session expects. Paho manages QoS acking and retransmit
// internally and does not expose wire-level packet ids, so this
// adapter correlates acks to the caller-supplied packetID by waiting
// synchronously on paho's token for the duration of the call and then
// synthesizing the matching Event; it cannot report a real
// KeepaliveRemaining and returns the configured interval unchanged.
type PahoTransport struct {
	opts *paho.ClientOptions
	c    paho.Client
	cfg  PahoConfig

	incoming chan Event
}

// NewPahoTransport builds a PahoTransport from cfg.
func NewPahoTransport(cfg PahoConfig) *PahoTransport {
	if cfg.Keepalive == 0 {
		cfg.Keepalive = 30 * time.Second
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(cfg.CleanSession).
		SetAutoReconnect(false).
		SetKeepAlive(cfg.Keepalive)

	t := &PahoTransport{opts: opts, cfg: cfg, incoming: make(chan Event, 256)}
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		t.incoming <- Event{
			Kind:    EventPublish,
			Topic:   msg.Topic(),
			Payload: msg.Payload(),
			QoS:     msg.Qos(),
			Dup:     msg.Duplicate(),
		}
	})
	return t
}

func (t *PahoTransport) Connect(ctx context.Context) error {
	if t.c == nil {
		t.c = paho.NewClient(t.opts)
	}
	tok := t.c.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if err := tok.Error(); err != nil {
		return err
	}
	sessionPresent := false
	if ct, ok := tok.(*paho.ConnectToken); ok {
		sessionPresent = ct.SessionPresent()
	}
	t.incoming <- Event{Kind: EventConnAckOK, SessionPresent: sessionPresent}
	return nil
}

func (t *PahoTransport) Disconnect(ctx context.Context) error {
	t.c.Disconnect(250)
	return nil
}

func (t *PahoTransport) Subscribe(ctx context.Context, topic string, qos byte, packetID uint16) error {
	tok := t.c.Subscribe(topic, qos, nil)
	if !tok.WaitTimeout(10 * time.Second) {
		t.incoming <- Event{Kind: EventSubAck, PacketID: packetID, Topic: topic, ReturnCodes: []byte{0x80}}
		return fmt.Errorf("mqtt subscribe timeout for %s", topic)
	}
	codes := []byte{qos}
	if tok.Error() != nil {
		codes = []byte{0x80}
	}
	t.incoming <- Event{Kind: EventSubAck, PacketID: packetID, Topic: topic, ReturnCodes: codes}
	return tok.Error()
}

func (t *PahoTransport) Unsubscribe(ctx context.Context, topic string, packetID uint16) error {
	tok := t.c.Unsubscribe(topic)
	tok.WaitTimeout(10 * time.Second)
	return tok.Error()
}

func (t *PahoTransport) Publish(ctx context.Context, topic string, payload []byte, qos byte, packetID uint16, dup bool) error {
	tok := t.c.Publish(topic, qos, false, payload)
	if qos == 0 {
		return nil
	}
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish timeout for %s", topic)
	}
	if err := tok.Error(); err != nil {
		return err
	}
	ev := Event{Kind: EventPubAck, PacketID: packetID}
	if qos == 2 {
		ev = Event{Kind: EventPubComp, PacketID: packetID}
	}
	t.incoming <- ev
	return nil
}

// PubAck, PubRec, PubRel, and PubComp are no-ops: paho acks QoS1/2
// inbound messages internally and never surfaces the packet ids this
// interface is keyed on.
func (t *PahoTransport) PubAck(ctx context.Context, packetID uint16) error {
	return nil
}

func (t *PahoTransport) PubRec(ctx context.Context, packetID uint16) error {
	return nil
}

func (t *PahoTransport) PubRel(ctx context.Context, packetID uint16) error {
	return nil
}

func (t *PahoTransport) PubComp(ctx context.Context, packetID uint16) error {
	return nil
}

func (t *PahoTransport) Poll(ctx context.Context, timeout time.Duration) (Event, error) {
	select {
	case ev := <-t.incoming:
		return ev, nil
	case <-time.After(timeout):
		return Event{Kind: EventTimeout}, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (t *PahoTransport) KeepaliveRemaining() time.Duration {
	return t.cfg.Keepalive
}
