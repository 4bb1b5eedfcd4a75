package mqttsn

import (
	"sync"
	"sync/atomic"
	"time"
)

// ConnState is a connection's position in the per-peer lifecycle (spec
// §4.2). Modeled on the teacher's ConnState enum (conn.go), stored in the
// Conn under its mutex rather than in an atomic, swapping the teacher's New/Active/Idle/
// Hijacked/Closed set for the MQTT-SN state table.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateAwaitingWillTopic
	StateAwaitingWillMsg
	StateActive
	StateAsleep
	StateAwake
	StateLost
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateAwaitingWillTopic:
		return "AWAITING_WILL_TOPIC"
	case StateAwaitingWillMsg:
		return "AWAITING_WILL_MSG"
	case StateActive:
		return "ACTIVE"
	case StateAsleep:
		return "ASLEEP"
	case StateAwake:
		return "AWAKE"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// Conn is one peer's connection record (spec §3 "Connection"). Modeled on
// the teacher's conn struct, trimmed of the TCP/TLS/HTTP plumbing that has
// no UDP equivalent and given the Will/keep-alive fields spec §3 and §4.2
// require.
type Conn struct {
	Peer PeerAddr

	mu           sync.Mutex
	state        ConnState
	duration     uint16 // advertised keep-alive, seconds
	clientID     []byte
	lastActivity time.Time

	willTopicID uint16 // 0 until Name is registered/known
	willTopic   string
	willMessage []byte
	willQoS     byte
	willRetain  bool

	// sleepUntil is not written by any handler; the sleep timeout is
	// enforced by Dispatcher.CheckTimeouts from KeepAliveDeadline (last
	// activity plus 1.5x the sleep duration), not by the time wheel.
	sleepUntil time.Time

	nextMsgID atomic.Uint32
}

// NewConn constructs a fresh connection record for peer, in DISCONNECTED
// state (not yet accepted).
func NewConn(peer PeerAddr) *Conn {
	return &Conn{Peer: peer, state: StateDisconnected, lastActivity: time.Now()}
}

// State returns the connection's current state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState transitions the connection. Callers are the state-machine
// handlers in dispatch.go; SetState itself does not validate that the
// transition is legal, since the legality table lives in the handlers.
func (c *Conn) SetState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Touch records a datagram's arrival time. Spec §4.2: "Any received
// datagram from a known peer reschedules the [keep-alive] timer; this is
// done before message-type dispatch so malformed frames still refresh
// liveness."
func (c *Conn) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// KeepAliveDeadline returns the instant at which, absent further traffic,
// this connection's keep-alive timer fires: 1.5x the advertised duration
// after the last received datagram (spec §4.2).
func (c *Conn) KeepAliveDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity.Add(time.Duration(float64(c.duration)*1.5) * time.Second)
}

// SetDuration records the keep-alive duration advertised in CONNECT.
func (c *Conn) SetDuration(seconds uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = seconds
}

// ClientID returns the client identifier given at CONNECT time.
func (c *Conn) ClientID() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientID
}

// SetClientID records the client identifier given at CONNECT time.
func (c *Conn) SetClientID(id []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = id
}

// SetWillTopic records the Will topic and its QoS/retain flags, staged
// during AWAITING_WILL_TOPIC (spec §4.2).
func (c *Conn) SetWillTopic(topic string, qos byte, retain bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willTopic = topic
	c.willQoS = qos
	c.willRetain = retain
}

// SetWillMessage records the Will payload, staged during
// AWAITING_WILL_MSG (spec §4.2).
func (c *Conn) SetWillMessage(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willMessage = msg
}

// Will returns the stored Will topic, message, QoS, and retain flag, and
// whether a Will is set at all (an empty topic means no Will).
func (c *Conn) Will() (topic string, message []byte, qos byte, retain bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.willTopic == "" {
		return "", nil, 0, false, false
	}
	return c.willTopic, c.willMessage, c.willQoS, c.willRetain, true
}

// ClearWill drops any stored Will. The dispatcher calls it for a CONNECT
// without the Will flag and for a WILLTOPICUPD with an empty topic; a
// DISCONNECT does not clear the Will (destroyConnection publishes it).
func (c *Conn) ClearWill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.willTopic, c.willMessage = "", nil
}

// NextMsgID returns a broker-assigned message id for a broker-initiated
// PUBLISH to this peer (e.g. fan-out delivery), monotonically increasing
// per connection.
func (c *Conn) NextMsgID() uint16 {
	return uint16(c.nextMsgID.Add(1))
}

// ConnTable is the process-global peer->Conn map (spec §3), modeled on the
// teacher's Server.activeConn map guarded by an RWMutex (server.go).
type ConnTable struct {
	mu    sync.RWMutex
	conns map[PeerAddr]*Conn
}

// NewConnTable returns an empty connection table.
func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[PeerAddr]*Conn)}
}

// Get returns the connection record for peer, if one exists.
func (t *ConnTable) Get(peer PeerAddr) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[peer]
	return c, ok
}

// GetOrCreate returns the existing connection for peer, or creates and
// stores a fresh DISCONNECTED one.
func (t *ConnTable) GetOrCreate(peer PeerAddr) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[peer]; ok {
		return c
	}
	c := NewConn(peer)
	t.conns[peer] = c
	return c
}

// Remove destroys the connection record for peer.
func (t *ConnTable) Remove(peer PeerAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, peer)
}

// Range calls fn for every connection currently tracked. fn must not call
// back into the table (Remove/GetOrCreate) while Range is in progress.
func (t *ConnTable) Range(fn func(*Conn)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.conns {
		fn(c)
	}
}

// Len reports the number of tracked connections, for metrics.
func (t *ConnTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
