// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lanserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/cremalink/internal/devicemap"
	"github.com/ManuGH/cremalink/internal/ecam/monitor"
	"github.com/ManuGH/cremalink/internal/lancrypto"
	"github.com/ManuGH/cremalink/internal/metrics"
	"github.com/ManuGH/cremalink/internal/netutil"
)

var (
	// ErrQueueFull is returned when the command queue is at capacity.
	ErrQueueFull = errors.New("command queue full")
	// ErrNotConfigured is returned before /configure has been called.
	ErrNotConfigured = errors.New("device not configured")
	// ErrNoSession is returned before the machine has completed a key exchange.
	ErrNoSession = errors.New("no LAN session, key exchange required")
	// ErrInvalidDevice is returned for incomplete device configurations.
	ErrInvalidDevice = errors.New("invalid device configuration")
)

// PendingTimeout bounds how long a monitor request waits for its datapoint.
const PendingTimeout = 30 * time.Second

// DeviceConfig is what a client hands over through /configure.
type DeviceConfig struct {
	DSN             string `json:"dsn"`
	DeviceIP        string `json:"device_ip"`
	LANKey          string `json:"lan_key"`
	Scheme          string `json:"device_scheme"`
	MonitorProperty string `json:"monitor_property_name,omitempty"`
}

func (c DeviceConfig) normalized() (DeviceConfig, error) {
	c.DSN = strings.TrimSpace(c.DSN)
	c.DeviceIP = strings.TrimSpace(c.DeviceIP)
	var missing []string
	if c.DSN == "" {
		missing = append(missing, "dsn")
	}
	if c.DeviceIP == "" {
		missing = append(missing, "device_ip")
	}
	if c.LANKey == "" {
		missing = append(missing, "lan_key")
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("%w: missing %s", ErrInvalidDevice, strings.Join(missing, ", "))
	}
	if c.Scheme == "" {
		c.Scheme = "https"
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return c, fmt.Errorf("%w: device_scheme must be http or https", ErrInvalidDevice)
	}
	scheme, addr, err := netutil.NormalizeAuthority(c.DeviceIP, c.Scheme)
	if err != nil {
		return c, fmt.Errorf("%w: device_ip: %w", ErrInvalidDevice, err)
	}
	c.Scheme, c.DeviceIP = scheme, addr
	if c.MonitorProperty == "" {
		c.MonitorProperty = devicemap.DefaultMonitorProperty
	}
	return c, nil
}

// Poll is one encrypted reply to the machine's command poll.
type Poll struct {
	Enc  string `json:"enc"`
	Sign string `json:"sign"`
	Seq  int    `json:"seq"`
	More bool   `json:"-"`
}

// Datapoint is a decrypted property update pushed by the machine.
type Datapoint struct {
	SeqNo   any
	Name    string
	Value   any
	Data    map[string]any
	Monitor bool
}

// State is the LAN server's view of the one machine it serves.
type State struct {
	mu sync.Mutex

	dev        DeviceConfig
	configured bool

	keys       *lancrypto.Keys
	appIV      []byte
	devIV      []byte
	seq        int
	cmdID      int
	registered bool
	exchangeAt time.Time

	queue    []json.RawMessage
	maxQueue int

	monitor        map[string]any
	monitorAt      time.Time
	monitorPending bool
	requestedAt    time.Time

	props   map[string]any
	propsAt time.Time

	now func() time.Time
}

// NewState returns an unconfigured state with a queue bounded to maxQueue.
func NewState(maxQueue int) *State {
	if maxQueue <= 0 {
		maxQueue = 200
	}
	return &State{
		maxQueue: maxQueue,
		props:    map[string]any{},
		now:      time.Now,
	}
}

// Configure installs a device and drops the current session.
func (s *State) Configure(dev DeviceConfig) (DeviceConfig, error) {
	dev, err := dev.normalized()
	if err != nil {
		return dev, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev.DSN != dev.DSN {
		s.queue = nil
		metrics.SetQueueDepth(0)
		s.props = map[string]any{}
		s.propsAt = time.Time{}
		s.monitor = nil
		s.monitorAt = time.Time{}
	}
	s.dev = dev
	s.configured = true
	s.monitorPending = false
	s.rekeyLocked()
	return dev, nil
}

// Device returns the configured device.
func (s *State) Device() (DeviceConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev, s.configured
}

// IsConfigured reports whether a device has been configured.
func (s *State) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// Rekey drops the session keys. The machine starts a new key exchange after
// the next registration.
func (s *State) Rekey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rekeyLocked()
}

func (s *State) rekeyLocked() {
	s.keys = nil
	s.appIV = nil
	s.devIV = nil
	s.seq = 0
	s.registered = false
}

// SetRegistered records the outcome of the last local_reg call.
func (s *State) SetRegistered(ok bool) {
	s.mu.Lock()
	s.registered = ok
	s.mu.Unlock()
}

// Registered reports whether the machine accepted the last registration.
func (s *State) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// HasSession reports whether session keys exist.
func (s *State) HasSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys != nil
}

// KeyExchange derives the session keys from both randoms and times.
func (s *State) KeyExchange(random1, time1, random2, time2 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return ErrNotConfigured
	}
	keys, err := lancrypto.DeriveKeys(s.dev.LANKey, random1, random2, time1, time2)
	if err != nil {
		return err
	}
	s.keys = &keys
	s.appIV = append([]byte(nil), keys.AppIVSeed...)
	s.devIV = append([]byte(nil), keys.DevIVSeed...)
	s.seq = 0
	s.exchangeAt = s.now()
	return nil
}

// Enqueue appends a command document for the machine to poll.
func (s *State) Enqueue(doc json.RawMessage) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueueLocked(doc)
}

func (s *State) enqueueLocked(doc json.RawMessage) (int, error) {
	if len(s.queue) >= s.maxQueue {
		metrics.RecordQueueRejected()
		return len(s.queue), ErrQueueFull
	}
	s.queue = append(s.queue, doc)
	metrics.SetQueueDepth(len(s.queue))
	return len(s.queue), nil
}

// QueueCommand wraps a hex frame into a data_request datapoint and queues it.
func (s *State) QueueCommand(frameHex string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return 0, ErrNotConfigured
	}
	doc, err := setPropertyDoc(s.dev.DSN, frameHex, s.now())
	if err != nil {
		return len(s.queue), err
	}
	return s.enqueueLocked(doc)
}

// QueueMonitorRequest asks the machine for its monitor property and marks
// the request pending until the datapoint arrives.
func (s *State) QueueMonitorRequest() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return 0, ErrNotConfigured
	}
	s.cmdID++
	doc, err := getPropertyDoc(s.cmdID, s.dev.MonitorProperty)
	if err != nil {
		return len(s.queue), err
	}
	n, err := s.enqueueLocked(doc)
	if err == nil {
		s.monitorPending = true
		s.requestedAt = s.now()
	}
	return n, err
}

// MonitorPending reports whether a monitor request is in flight. Requests
// unanswered for PendingTimeout no longer count.
func (s *State) MonitorPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorPending && s.now().Sub(s.requestedAt) < PendingTimeout
}

// QueueLen is the number of commands waiting.
func (s *State) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// NextPoll pops one queued command (or nothing), encrypts it for the machine
// and advances the app IV and sequence number.
func (s *State) NextPoll() (Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		return Poll{}, ErrNoSession
	}

	var doc json.RawMessage
	if len(s.queue) > 0 {
		doc = s.queue[0]
		s.queue = s.queue[1:]
		metrics.SetQueueDepth(len(s.queue))
	}
	metrics.RecordCommandPoll(doc == nil)

	seq := s.seq
	payload, err := lancrypto.WrapPayload(seq, doc)
	if err != nil {
		return Poll{}, err
	}
	enc, iv, err := lancrypto.Encrypt(payload, s.keys.AppCryptoKey, s.appIV)
	if err != nil {
		return Poll{}, err
	}
	s.appIV = iv
	s.seq++
	return Poll{
		Enc:  enc,
		Sign: lancrypto.Sign(payload, s.keys.AppSignKey),
		Seq:  seq,
		More: len(s.queue) > 0,
	}, nil
}

// AcceptDatapoint decrypts a pushed property and stores it. A monitor
// property also replaces the monitor payload.
func (s *State) AcceptDatapoint(enc string) (Datapoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		return Datapoint{}, ErrNoSession
	}
	plain, iv, err := lancrypto.Decrypt(enc, s.keys.DevCryptoKey, s.devIV)
	if err != nil {
		return Datapoint{}, err
	}
	s.devIV = iv

	var body struct {
		SeqNo any            `json:"seq_no"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(plain, &body); err != nil {
		return Datapoint{}, fmt.Errorf("decode datapoint: %w", err)
	}
	name, _ := body.Data["name"].(string)
	if name == "" {
		return Datapoint{}, fmt.Errorf("decode datapoint: missing property name")
	}

	now := s.now()
	s.props[name] = map[string]any{"property": body.Data}
	s.propsAt = now

	dp := Datapoint{SeqNo: body.SeqNo, Name: name, Value: body.Data["value"], Data: body.Data}
	if name == s.dev.MonitorProperty {
		value, _ := body.Data["value"].(string)
		s.monitor = monitorPayload(body.Data, value, now)
		s.monitorAt = now
		s.monitorPending = false
		dp.Monitor = true
	}
	return dp, nil
}

// SeedMonitor installs a monitor value restored from storage.
func (s *State) SeedMonitor(rawB64 string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := map[string]any{"name": s.dev.MonitorProperty, "value": rawB64}
	s.monitor = monitorPayload(data, rawB64, at)
	s.monitorAt = at
}

func monitorPayload(data map[string]any, rawB64 string, at time.Time) map[string]any {
	return map[string]any{
		"monitor":     map[string]any{"data": data},
		"monitor_b64": rawB64,
		"received_at": unixSeconds(at),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Properties returns a copy of the property map and when it last changed.
func (s *State) Properties() (map[string]any, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.props), s.propsAt
}

// Property returns the stored datapoint for name.
func (s *State) Property(name string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wrapped, ok := s.props[name].(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := wrapped["property"].(map[string]any)
	return data, ok
}

// MonitorPayload returns {monitor, monitor_b64, received_at}; all nil when
// nothing has arrived yet.
func (s *State) MonitorPayload() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.monitor == nil {
		return map[string]any{"monitor": nil, "monitor_b64": nil, "received_at": nil}
	}
	return maps.Clone(s.monitor)
}

// MonitorSnapshot decodes the current monitor payload.
func (s *State) MonitorSnapshot() monitor.Snapshot {
	payload := s.MonitorPayload()
	s.mu.Lock()
	dsn := s.dev.DSN
	s.mu.Unlock()
	if payload["monitor_b64"] == nil {
		payload = map[string]any{}
	}
	return monitor.BuildSnapshot(payload, monitor.SourceLocal, dsn)
}

// LastMonitorAt is when the last monitor frame arrived.
func (s *State) LastMonitorAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorAt
}

// Status summarises the state for /health.
type Status struct {
	Configured     bool   `json:"configured"`
	Registered     bool   `json:"registered"`
	Session        bool   `json:"session"`
	QueueLength    int    `json:"queue_length"`
	MonitorPending bool   `json:"monitor_pending"`
	DSN            string `json:"dsn,omitempty"`
}

// Status returns a consistent summary.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Configured:     s.configured,
		Registered:     s.registered,
		Session:        s.keys != nil,
		QueueLength:    len(s.queue),
		MonitorPending: s.monitorPending,
		DSN:            s.dev.DSN,
	}
}
