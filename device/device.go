// Package device composes the type system, schema registry, codec,
// validator, and MQTT session into the public controller applications
// actually use, generalizing the teacher's single-sensor Device
// (state/setState/setError/TimerLoop over one Messanger) into a
// controller owning a whole schema-validated MQTT session.
package device

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/beacon/backoff"
	"github.com/rustyeddy/beacon/beaconerr"
	"github.com/rustyeddy/beacon/bsondoc"
	"github.com/rustyeddy/beacon/debugserver"
	"github.com/rustyeddy/beacon/introspection"
	"github.com/rustyeddy/beacon/logging"
	"github.com/rustyeddy/beacon/mqtt"
	"github.com/rustyeddy/beacon/propsync"
	"github.com/rustyeddy/beacon/schema"
	"github.com/rustyeddy/beacon/uuidgen"
	"github.com/rustyeddy/beacon/validator"
	"github.com/rustyeddy/beacon/value"
)

// Config carries everything needed to construct a Device (spec §4.10,
// §6): realm, device identity, pairing/credential plumbing, and
// session timeouts.
type Config struct {
	Realm    string
	DeviceID string // base64url UUID or user-supplied id; generated if empty

	PairingURL        string
	RefreshCredential func(ctx context.Context) error

	ConnectTimeout time.Duration
	PollTimeout    time.Duration
	AckTimeout     time.Duration

	BackoffMul    uint32
	BackoffCutoff uint32

	// Logger is used directly if set. Otherwise one is built from
	// LogConfig via logging.Build (a zero LogConfig gets logging's
	// defaults, and Component defaults to "device"); if that fails,
	// slog.Default().
	Logger    *slog.Logger
	LogConfig logging.Config
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 20 * time.Second
	}
	if c.BackoffMul == 0 {
		c.BackoffMul = 1000
	}
	if c.BackoffCutoff == 0 {
		c.BackoffCutoff = 5 * 60 * 1000
	}
	if c.Logger == nil {
		logCfg := c.LogConfig
		if logCfg.Component == "" {
			logCfg.Component = "device"
		}
		if logger, _, _, err := logging.Build(logCfg); err == nil {
			c.Logger = logger
		} else {
			c.Logger = slog.Default()
		}
	}
	return c
}

// Callbacks are the application's hooks into controller lifecycle and
// incoming data (spec §4.10).
type Callbacks struct {
	OnConnected            func()
	OnDisconnected          func()
	OnIndividualDatastream  func(ifaceName, path string, v value.Value, timestampMS *int64)
	OnObjectDatastream      func(ifaceName, path string, entries []bsondoc.ObjectEntry, timestampMS *int64)
	OnPropertySet           func(ifaceName, path string, v value.Value)
	OnPropertyUnset         func(ifaceName, path string)
	OnConsumerPropertySync  func(endpoints []string)
}

// Topics precomputes the base topic and its control suffixes (spec
// §6).
type Topics struct {
	Base                  string
	Control               string
	ControlEmptyCache     string
	ControlConsumerProps  string
	ControlProducerProps  string
}

func newTopics(realm, deviceID string) Topics {
	base := realm + "/" + deviceID
	return Topics{
		Base:                 base,
		Control:              base + "/control",
		ControlEmptyCache:    base + "/control/emptyCache",
		ControlConsumerProps: base + "/control/consumer/properties",
		ControlProducerProps: base + "/control/producer/properties",
	}
}

// Device is the public controller: it owns the interface registry,
// MQTT session, and the invariant that every outbound publish has
// already been validated and encoded before it is handed to the
// session, with the session publish itself made under deviceMu (spec
// §4.10, §5).
type Device struct {
	cfg    Config
	topics Topics

	registry  *introspection.Registry
	session   *mqtt.Session
	transport mqtt.Transport
	cb        Callbacks
	debug     *debugserver.Server

	deviceMu sync.Mutex
}

// New constructs a Device over transport, generating a random device
// id when cfg.DeviceID is empty.
func New(transport mqtt.Transport, cfg Config, cb Callbacks) (*Device, error) {
	cfg = cfg.withDefaults()
	if cfg.Realm == "" {
		return nil, beaconerr.New(beaconerr.InvalidConfiguration, "realm must not be empty")
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		id, err := uuidgen.NewV4()
		if err != nil {
			return nil, err
		}
		deviceID = id.Base64URL()
	}

	reg := introspection.New()
	bo, err := backoff.New(cfg.BackoffMul, cfg.BackoffCutoff)
	if err != nil {
		return nil, err
	}

	d := &Device{
		cfg:       cfg,
		topics:    newTopics(cfg.Realm, deviceID),
		registry:  reg,
		transport: transport,
		cb:        cb,
		debug:     debugserver.New(),
	}

	sessionCfg := mqtt.Config{
		ClientID:          deviceID,
		ConnectTimeout:    cfg.ConnectTimeout,
		PollTimeout:       cfg.PollTimeout,
		AckTimeout:        cfg.AckTimeout,
		RefreshCredential: cfg.RefreshCredential,
	}
	d.session = mqtt.New(transport, sessionCfg, mqtt.Callbacks{
		OnStateChange:         d.onStateChange,
		OnPublish:             d.onPublish,
		OnSubscriptionFailure: func(topic string) { cfg.Logger.Warn("subscription failed", "topic", topic) },
	}, bo)

	d.debug.Introspection = reg
	d.debug.State = stateString{d: d}

	return d, nil
}

// stateString adapts Device to debugserver.StateProvider without
// exposing the session directly.
type stateString struct{ d *Device }

func (s stateString) String() string { return s.d.session.State().String() }

// DeviceID returns the identity this device publishes under.
func (d *Device) DeviceID() string {
	return strings.TrimPrefix(d.topics.Base, d.cfg.Realm+"/")
}

// Topics exposes the precomputed topic set.
func (d *Device) Topics() Topics {
	return d.topics
}

func (d *Device) onStateChange(from, to mqtt.State) {
	if to == mqtt.Connected && d.cb.OnConnected != nil {
		d.cb.OnConnected()
	}
	if to == mqtt.Disconnected && d.cb.OnDisconnected != nil {
		d.cb.OnDisconnected()
	}
	d.debug.Broadcast(debugserver.Event{Kind: "state", State: to.String()})
}

func (d *Device) onPublish(topic string, payload []byte, qos byte) {
	d.debug.Broadcast(debugserver.Event{Kind: "publish", Topic: topic, Payload: string(payload)})

	switch {
	case topic == d.topics.ControlConsumerProps:
		endpoints, err := propsync.DecodeList(payload)
		if err != nil {
			d.cfg.Logger.Error("failed to decode consumer property sync", "error", err)
			return
		}
		if d.cb.OnConsumerPropertySync != nil {
			d.cb.OnConsumerPropertySync(endpoints)
		}
	default:
		d.routeDataTopic(topic, payload)
	}
}

// routeDataTopic dispatches an incoming data-topic publish to the
// appropriate callback, decoding per the interface's declared
// aggregation.
func (d *Device) routeDataTopic(topic string, payload []byte) {
	ifaceName, path, ok := d.splitDataTopic(topic)
	if !ok {
		return
	}

	d.deviceMu.Lock()
	iface, ok := d.registry.Get(ifaceName)
	d.deviceMu.Unlock()
	if !ok {
		d.cfg.Logger.Warn("publish on unknown interface", "interface", ifaceName)
		return
	}

	if len(payload) == 0 {
		if d.cb.OnPropertyUnset != nil {
			d.cb.OnPropertyUnset(ifaceName, path)
		}
		return
	}

	if iface.Aggregation == schema.Object {
		typeForPath := func(p string) (value.Type, bool) {
			m, err := iface.GetMappingFromPaths(path, p)
			if err != nil {
				return 0, false
			}
			return m.Type, true
		}
		entries, ts, err := bsondoc.DecodeObject(payload, typeForPath)
		if err != nil {
			d.cfg.Logger.Error("failed to decode object publish", "topic", topic, "error", err)
			return
		}
		if d.cb.OnObjectDatastream != nil {
			d.cb.OnObjectDatastream(ifaceName, path, entries, ts)
		}
		return
	}

	m, err := iface.GetMappingFromPath(path)
	if err != nil {
		d.cfg.Logger.Error("no mapping for incoming publish", "topic", topic, "error", err)
		return
	}
	v, ts, err := bsondoc.DecodeIndividual(payload, m.Type)
	if err != nil {
		d.cfg.Logger.Error("failed to decode individual publish", "topic", topic, "error", err)
		return
	}

	if iface.Type == schema.Properties {
		if d.cb.OnPropertySet != nil {
			d.cb.OnPropertySet(ifaceName, path, v)
		}
		return
	}
	if d.cb.OnIndividualDatastream != nil {
		d.cb.OnIndividualDatastream(ifaceName, path, v, ts)
	}
}

func (d *Device) splitDataTopic(topic string) (ifaceName, path string, ok bool) {
	prefix := d.topics.Base + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(topic, prefix)
	idx := strings.Index(rest, "/")
	if idx < 0 {
		return rest, "/", true
	}
	return rest[:idx], rest[idx:], true
}

// AddInterface registers iface. Only legal while disconnected (spec
// §4.10, §5).
func (d *Device) AddInterface(iface schema.Interface) error {
	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	if d.session.State() != mqtt.Disconnected {
		return beaconerr.New(beaconerr.InvalidParam, "add_interface requires a disconnected session")
	}
	return d.registry.Add(iface)
}

// RemoveInterface unregisters name. Only legal while disconnected.
func (d *Device) RemoveInterface(name string) error {
	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	if d.session.State() != mqtt.Disconnected {
		return beaconerr.New(beaconerr.InvalidParam, "remove_interface requires a disconnected session")
	}
	d.registry.Remove(name)
	return nil
}

func (d *Device) serverOwnedSubs() []mqtt.TopicSub {
	subs := []mqtt.TopicSub{
		{Topic: d.topics.ControlConsumerProps, QoS: 1},
	}
	for _, iface := range d.registry.All() {
		if iface.Ownership != schema.Server {
			continue
		}
		subs = append(subs, mqtt.TopicSub{Topic: d.topics.Base + "/" + iface.Name + "/#", QoS: byte(maxMappingQoS(iface))})
	}
	return subs
}

func maxMappingQoS(iface schema.Interface) byte {
	var max byte
	for _, m := range iface.Mappings {
		if q := m.Reliability.QoS(); q > max {
			max = q
		}
	}
	return max
}

// Connect opens the MQTT session and arms the handshake with the
// server-owned subscriptions and the three handshake_start publishes
// (introspection string, empty-cache marker, producer properties).
func (d *Device) Connect(ctx context.Context) error {
	d.deviceMu.Lock()
	introspectionStr := d.registry.String()
	producerPayload, err := propsync.EncodeList(d.producerPropertyEndpoints())
	d.deviceMu.Unlock()
	if err != nil {
		return err
	}

	d.session.ArmHandshake(d.serverOwnedSubs(), []mqtt.PublishSpec{
		{Topic: d.topics.Base, Payload: []byte(introspectionStr), QoS: 1},
		{Topic: d.topics.ControlEmptyCache, Payload: nil, QoS: 1},
		{Topic: d.topics.ControlProducerProps, Payload: producerPayload, QoS: 1},
	})
	return d.session.Connect(ctx)
}

func (d *Device) producerPropertyEndpoints() []string {
	var out []string
	for _, iface := range d.registry.All() {
		if iface.Type != schema.Properties || iface.Ownership != schema.Device {
			continue
		}
		for _, m := range iface.Mappings {
			out = append(out, "/"+iface.Name+m.Endpoint)
		}
	}
	return out
}

// Disconnect sends DISCONNECT and returns to the disconnected state.
func (d *Device) Disconnect(ctx context.Context) error {
	return d.session.Disconnect(ctx)
}

// Poll drives the session's state machine for one event (spec §4.9,
// §5).
func (d *Device) Poll(ctx context.Context) error {
	return d.session.Poll(ctx)
}

// SendIndividual validates, encodes, and publishes a single value to
// path under ifaceName.
func (d *Device) SendIndividual(ctx context.Context, ifaceName, path string, v value.Value, timestampMS *int64) error {
	d.deviceMu.Lock()
	iface, ok := d.registry.Get(ifaceName)
	d.deviceMu.Unlock()
	if !ok {
		return beaconerr.Newf(beaconerr.InterfaceNotFound, "interface %q not registered", ifaceName)
	}

	m, err := validator.IndividualDatastream(iface, path, v, timestampMS != nil)
	if err != nil {
		return err
	}
	payload, err := bsondoc.EncodeIndividual(v, timestampMS)
	if err != nil {
		return err
	}

	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	return d.session.Publish(ctx, d.topics.Base+"/"+ifaceName+path, payload, m.Reliability.QoS())
}

// SendObject validates, encodes, and publishes an object aggregate.
func (d *Device) SendObject(ctx context.Context, ifaceName, path string, entries []bsondoc.ObjectEntry, timestampMS *int64) error {
	d.deviceMu.Lock()
	iface, ok := d.registry.Get(ifaceName)
	d.deviceMu.Unlock()
	if !ok {
		return beaconerr.Newf(beaconerr.InterfaceNotFound, "interface %q not registered", ifaceName)
	}

	vEntries := make([]validator.ObjectEntry, len(entries))
	for i, e := range entries {
		vEntries[i] = validator.ObjectEntry{Endpoint: e.Path, Value: e.Value}
	}
	mappings, err := validator.AggregatedDatastream(iface, path, vEntries, timestampMS != nil)
	if err != nil {
		return err
	}
	payload, err := bsondoc.EncodeObject(entries, timestampMS)
	if err != nil {
		return err
	}

	qos := byte(0)
	if len(mappings) > 0 {
		qos = mappings[0].Reliability.QoS()
	}

	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	return d.session.Publish(ctx, d.topics.Base+"/"+ifaceName+path, payload, qos)
}

// SetProperty validates, encodes, and publishes a property write.
func (d *Device) SetProperty(ctx context.Context, ifaceName, path string, v value.Value) error {
	d.deviceMu.Lock()
	iface, ok := d.registry.Get(ifaceName)
	d.deviceMu.Unlock()
	if !ok {
		return beaconerr.Newf(beaconerr.InterfaceNotFound, "interface %q not registered", ifaceName)
	}

	m, err := validator.SetProperty(iface, path, v)
	if err != nil {
		return err
	}
	payload, err := bsondoc.EncodeIndividual(v, nil)
	if err != nil {
		return err
	}

	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	return d.session.Publish(ctx, d.topics.Base+"/"+ifaceName+path, payload, m.Reliability.QoS())
}

// UnsetProperty publishes an empty payload to signal a property unset
// (spec §6).
func (d *Device) UnsetProperty(ctx context.Context, ifaceName, path string) error {
	d.deviceMu.Lock()
	iface, ok := d.registry.Get(ifaceName)
	d.deviceMu.Unlock()
	if !ok {
		return beaconerr.Newf(beaconerr.InterfaceNotFound, "interface %q not registered", ifaceName)
	}

	m, err := validator.UnsetProperty(iface, path)
	if err != nil {
		return err
	}

	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	return d.session.Publish(ctx, d.topics.Base+"/"+ifaceName+path, nil, m.Reliability.QoS())
}

// SyncProperties publishes the device's currently-known producer
// property endpoints (spec §6, §9) so the broker can answer with the
// authoritative set on the consumer-properties topic.
func (d *Device) SyncProperties(ctx context.Context) error {
	d.deviceMu.Lock()
	payload, err := propsync.EncodeList(d.producerPropertyEndpoints())
	d.deviceMu.Unlock()
	if err != nil {
		return err
	}

	d.deviceMu.Lock()
	defer d.deviceMu.Unlock()
	return d.session.Publish(ctx, d.topics.ControlProducerProps, payload, 1)
}

// DebugHandler returns the mountable HTTP+WS observability surface
// (spec SPEC_FULL.md §4.10 addition).
func (d *Device) DebugHandler() http.Handler {
	return d.debug.Handler()
}

// ParseDeviceID parses a 128-bit device id supplied as a canonical
// UUID string, for callers that want a user-chosen id rather than a
// generated one.
func ParseDeviceID(s string) (string, error) {
	u, err := uuidgen.Parse(s)
	if err == nil {
		return u.Base64URL(), nil
	}
	raw, decErr := base64.RawURLEncoding.DecodeString(s)
	if decErr != nil || len(raw) != 16 {
		return "", beaconerr.Newf(beaconerr.InvalidParam, "device id %q is neither a canonical uuid nor a base64url 128-bit id", s)
	}
	return s, nil
}
