package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/rustyeddy/beacon/backoff"
	"github.com/rustyeddy/beacon/beaconerr"
)

// State is one node of the connection-lifecycle state machine (spec
// §4.9).
type State int

const (
	Disconnected State = iota
	MqttConnecting
	HandshakeStart
	HandshakeEnd
	HandshakeError
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case MqttConnecting:
		return "mqtt_connecting"
	case HandshakeStart:
		return "handshake_start"
	case HandshakeEnd:
		return "handshake_end"
	case HandshakeError:
		return "handshake_error"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

type cacheKind int

const (
	cacheSubscribe cacheKind = iota
	cachePublish
	cachePubRec
)

type cacheEntry struct {
	kind    cacheKind
	topic   string
	payload []byte
	qos     byte
	expiry  time.Time
}

// TopicSub pairs a topic with the QoS to subscribe it at.
type TopicSub struct {
	Topic string
	QoS   byte
}

// PublishSpec is a single publish the handshake issues on entry to
// handshake_start.
type PublishSpec struct {
	Topic   string
	Payload []byte
	QoS     byte
}

// Config carries the session's fixed, non-negotiable parameters.
type Config struct {
	Host              string
	Port              int
	ClientID          string
	ConnectTimeout    time.Duration
	PollTimeout       time.Duration
	AckTimeout        time.Duration
	RefreshCredential func(ctx context.Context) error
}

// Callbacks are invoked as the session observes wire events; any left
// nil are skipped.
type Callbacks struct {
	OnStateChange         func(from, to State)
	OnPublish             func(topic string, payload []byte, qos byte)
	OnSubscriptionFailure func(topic string)
	OnSynchronized        func()
}

// Session drives the MQTT connection lifecycle over a Transport,
// tracking message ids and in-flight QoS entries (spec §4.9).
type Session struct {
	transport Transport
	cfg       Config
	cb        Callbacks
	backoff   *backoff.Backoff
	log       *slog.Logger

	state                    State
	messageID                uint16
	cache                    map[uint16]*cacheEntry
	subscriptionFailure      bool
	synchronizationCompleted bool

	pendingSubs      map[uint16]bool
	handshakeSubs    []TopicSub
	handshakePublish []PublishSpec
}

// New builds a Session over transport. bo is the backoff generator
// advanced on every socket error and CONNACK failure; its delay is not
// used to schedule anything, so the session never reconnects from
// handshake_error on its own: the caller must call Connect again.
func New(transport Transport, cfg Config, cb Callbacks, bo *backoff.Backoff) *Session {
	return &Session{
		transport: transport,
		cfg:       cfg,
		cb:        cb,
		backoff:   bo,
		log:       slog.Default(),
		state:     Disconnected,
		cache:     make(map[uint16]*cacheEntry),
	}
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	if s.cb.OnStateChange != nil && from != to {
		s.cb.OnStateChange(from, to)
	}
}

// nextMessageID allocates an id in [1,65535], skipping ids currently
// in the QoS cache (spec §4.9).
func (s *Session) nextMessageID() uint16 {
	for {
		s.messageID = (s.messageID % 65535) + 1
		if _, inUse := s.cache[s.messageID]; !inUse {
			return s.messageID
		}
	}
}

// Connect opens the transport and begins the CONNECT handshake.
func (s *Session) Connect(ctx context.Context) error {
	if s.state != Disconnected && s.state != HandshakeError {
		return beaconerr.New(beaconerr.InvalidParam, "connect called outside disconnected/handshake_error state")
	}
	s.subscriptionFailure = false
	s.synchronizationCompleted = false
	if err := s.transport.Connect(ctx); err != nil {
		s.setState(HandshakeError)
		return err
	}
	s.setState(MqttConnecting)
	return nil
}

// Disconnect sends DISCONNECT and returns to the disconnected state.
// It is a no-op when the session is already disconnected.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.state == Disconnected {
		return nil
	}
	err := s.transport.Disconnect(ctx)
	s.setState(Disconnected)
	return err
}

// ArmHandshake records the subscriptions and publishes the
// handshake_start step must issue once CONNACK arrives with
// session_present=0.
func (s *Session) ArmHandshake(subs []TopicSub, publishes []PublishSpec) {
	s.handshakeSubs = subs
	s.handshakePublish = publishes
}

// Poll waits for and dispatches one transport event, advancing the
// state machine per spec §4.9's transition table.
func (s *Session) Poll(ctx context.Context) error {
	timeout := s.cfg.PollTimeout
	if kr := s.transport.KeepaliveRemaining(); kr < timeout {
		timeout = kr
	}

	ev, err := s.transport.Poll(ctx, timeout)
	if err != nil {
		s.handleSocketError(err)
		return err
	}
	if err := s.checkTimeouts(ctx, time.Now()); err != nil {
		s.handleSocketError(err)
		return err
	}
	return s.handleEvent(ctx, ev)
}

func (s *Session) handleSocketError(err error) {
	switch s.state {
	case MqttConnecting:
		s.setState(HandshakeError)
	case Connected:
		s.setState(HandshakeError)
	}
	if s.backoff != nil {
		s.backoff.NextDelay()
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventNone, EventTimeout:
		return s.maybeAdvanceHandshake(ctx)

	case EventSocketError:
		s.handleSocketError(ev.Err)
		return ev.Err

	case EventConnAckOK:
		if s.state != MqttConnecting {
			return nil
		}
		if ev.SessionPresent {
			s.synchronizationCompleted = true
			s.setState(Connected)
			return nil
		}
		s.setState(HandshakeStart)
		return s.maybeAdvanceHandshake(ctx)

	case EventConnAckFail:
		s.setState(HandshakeError)
		if s.backoff != nil {
			s.backoff.NextDelay()
		}
		return nil

	case EventSubAck:
		delete(s.cache, ev.PacketID)
		if s.pendingSubs != nil {
			delete(s.pendingSubs, ev.PacketID)
		}
		failed := false
		for _, code := range ev.ReturnCodes {
			if code == 0x80 {
				failed = true
			}
		}
		if failed {
			s.subscriptionFailure = true
			if s.cb.OnSubscriptionFailure != nil {
				s.cb.OnSubscriptionFailure(ev.Topic)
			}
		}
		return s.maybeFinishHandshake()

	case EventPubAck:
		delete(s.cache, ev.PacketID)
		return nil

	case EventPubRec:
		if entry, ok := s.cache[ev.PacketID]; ok {
			entry.kind = cachePubRec
			entry.expiry = time.Now().Add(s.cfg.AckTimeout)
			return s.transport.PubRel(ctx, ev.PacketID)
		}
		return nil

	case EventPubComp:
		delete(s.cache, ev.PacketID)
		return nil

	case EventPublish:
		return s.handleIncomingPublish(ctx, ev)
	}
	return nil
}

func (s *Session) handleIncomingPublish(ctx context.Context, ev Event) error {
	if s.cb.OnPublish != nil {
		s.cb.OnPublish(ev.Topic, ev.Payload, ev.QoS)
	}
	switch ev.QoS {
	case 1:
		return s.transport.PubAck(ctx, ev.PacketID)
	case 2:
		return s.transport.PubRec(ctx, ev.PacketID)
	}
	return nil
}

// maybeAdvanceHandshake performs the handshake_start actions (spec
// §4.9: subscribe server-owned interfaces and control topics, publish
// introspection string, empty-cache marker, producer properties) the
// first tick after entering handshake_start.
func (s *Session) maybeAdvanceHandshake(ctx context.Context) error {
	if s.state != HandshakeStart {
		return nil
	}

	s.pendingSubs = make(map[uint16]bool, len(s.handshakeSubs))
	for _, sub := range s.handshakeSubs {
		id := s.nextMessageID()
		s.cache[id] = &cacheEntry{kind: cacheSubscribe, topic: sub.Topic, qos: sub.QoS, expiry: time.Now().Add(s.cfg.AckTimeout)}
		s.pendingSubs[id] = true
		if err := s.transport.Subscribe(ctx, sub.Topic, sub.QoS, id); err != nil {
			return err
		}
	}
	for _, pub := range s.handshakePublish {
		if err := s.Publish(ctx, pub.Topic, pub.Payload, pub.QoS); err != nil {
			return err
		}
	}
	s.setState(HandshakeEnd)
	return nil
}

func (s *Session) maybeFinishHandshake() error {
	if s.state != HandshakeEnd || len(s.pendingSubs) > 0 {
		return nil
	}
	if s.subscriptionFailure {
		s.setState(HandshakeError)
		return nil
	}
	s.synchronizationCompleted = true
	if s.cb.OnSynchronized != nil {
		s.cb.OnSynchronized()
	}
	s.setState(Connected)
	return nil
}

// Publish sends a message, caching QoS1/2 entries for retransmission.
func (s *Session) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	if qos == 0 {
		return s.transport.Publish(ctx, topic, payload, 0, 0, false)
	}
	id := s.nextMessageID()
	s.cache[id] = &cacheEntry{kind: cachePublish, topic: topic, payload: payload, qos: qos, expiry: time.Now().Add(s.cfg.AckTimeout)}
	return s.transport.Publish(ctx, topic, payload, qos, id, false)
}

// checkTimeouts retransmits any QoS cache entry past its expiry (spec
// §4.9's timeout-driven retransmit). The first transport error aborts
// the sweep and is returned to the caller, which treats it the same as
// a socket error on the main poll path.
func (s *Session) checkTimeouts(ctx context.Context, now time.Time) error {
	for id, entry := range s.cache {
		if now.Before(entry.expiry) {
			continue
		}
		entry.expiry = now.Add(s.cfg.AckTimeout)
		var err error
		switch entry.kind {
		case cachePublish:
			err = s.transport.Publish(ctx, entry.topic, entry.payload, entry.qos, id, true)
		case cachePubRec:
			err = s.transport.PubRel(ctx, id)
		case cacheSubscribe:
			err = s.transport.Subscribe(ctx, entry.topic, entry.qos, id)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// SubscriptionFailure reports whether any SUBACK in this connection's
// handshake carried a failure code.
func (s *Session) SubscriptionFailure() bool {
	return s.subscriptionFailure
}

// Synchronized reports whether the handshake has completed at least
// once this connection.
func (s *Session) Synchronized() bool {
	return s.synchronizationCompleted
}
