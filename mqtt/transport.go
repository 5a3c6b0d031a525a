// Package mqtt implements the connection-lifecycle state machine,
// message-id allocation, and QoS-cache-driven retransmission described
// in spec §4.9, against a Transport abstraction rather than a concrete
// broker client.
package mqtt

import (
	"context"
	"time"
)

// EventKind discriminates the events Transport.Poll can report.
type EventKind int

const (
	EventNone EventKind = iota
	EventConnAckOK
	EventConnAckFail
	EventSubAck
	EventPubAck
	EventPubRec
	EventPubComp
	EventPublish
	EventTimeout
	EventSocketError
)

// Event is the tagged union of everything Poll can observe from the
// wire. Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	SessionPresent bool // EventConnAckOK
	PacketID       uint16
	ReturnCodes    []byte // EventSubAck: one per requested topic; 0x80 means failure
	Topic          string // EventPublish, EventSubAck
	Payload        []byte // EventPublish
	QoS            byte   // EventPublish
	Dup            bool   // EventPublish
	Err            error  // EventSocketError
}

// Transport is the TLS-protected MQTT 3.1.1 stream an external
// collaborator must provide (spec §4.9). It is lower-level than a
// typical high-level MQTT client: callers drive retransmission and
// acking themselves so the state machine in this package stays in
// control of QoS semantics.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string, qos byte, packetID uint16) error
	Unsubscribe(ctx context.Context, topic string, packetID uint16) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, packetID uint16, dup bool) error
	PubAck(ctx context.Context, packetID uint16) error
	PubRec(ctx context.Context, packetID uint16) error
	PubRel(ctx context.Context, packetID uint16) error
	PubComp(ctx context.Context, packetID uint16) error

	// Poll blocks for up to timeout waiting for one event.
	Poll(ctx context.Context, timeout time.Duration) (Event, error)

	// KeepaliveRemaining reports time left before a PINGREQ is due.
	KeepaliveRemaining() time.Duration
}
