package mqttsn

import (
	"sync"

	"github.com/golang-io/mqttsn/packet"
)

// RetainedEntry is the last-known PUBLISH payload for a topic id (spec §3
// "Retained store").
type RetainedEntry struct {
	Data []byte
	QoS  byte
}

// RetainedStore is the process-global topic-id -> retained-payload map
// (spec §4.4 "Retained messages"). Read-mostly, like the teacher's
// subscription maps (mem_topic.go), so it uses the same RWMutex idiom.
type RetainedStore struct {
	mu      sync.RWMutex
	entries map[uint16]RetainedEntry
}

// NewRetainedStore returns an empty retained-message store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{entries: make(map[uint16]RetainedEntry)}
}

// Set overwrites (or, for an empty payload, clears) the retained entry for
// topicID.
func (r *RetainedStore) Set(topicID uint16, data []byte, qos byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(data) == 0 {
		delete(r.entries, topicID)
		return
	}
	r.entries[topicID] = RetainedEntry{Data: data, QoS: qos}
}

// Get returns the retained entry for topicID, if any.
func (r *RetainedStore) Get(topicID uint16) (RetainedEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[topicID]
	return e, ok
}

// AsleepQueues holds, per ASLEEP peer, the FIFO of PUBLISH messages queued
// for delivery on the peer's next wake (spec §4.4 "Asleep delivery").
type AsleepQueues struct {
	mu     sync.Mutex
	queues map[PeerAddr][]*packet.Publish
}

// NewAsleepQueues returns an empty set of per-peer asleep queues.
func NewAsleepQueues() *AsleepQueues {
	return &AsleepQueues{queues: make(map[PeerAddr][]*packet.Publish)}
}

// Enqueue appends pub to peer's asleep queue.
func (a *AsleepQueues) Enqueue(peer PeerAddr, pub *packet.Publish) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queues[peer] = append(a.queues[peer], pub)
}

// Drain removes and returns peer's entire queue, in FIFO order, clearing it.
func (a *AsleepQueues) Drain(peer PeerAddr) []*packet.Publish {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := a.queues[peer]
	delete(a.queues, peer)
	return q
}

// Depth reports the total queued-message count across all peers, for
// metrics.
func (a *AsleepQueues) Depth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, q := range a.queues {
		n += len(q)
	}
	return n
}

// pendingQoS2Key identifies a QoS 2 exchange in flight: the publisher peer
// and the message id it used (spec §3 "Pending-QoS2 cache").
type pendingQoS2Key struct {
	Publisher PeerAddr
	MsgID     uint16
}

// PendingQoS2 stashes a received PUBLISH and the subscriber snapshot it
// will fan out to once the matching PUBREL arrives (spec §4.4 step 1).
type PendingQoS2 struct {
	Publish     *packet.Publish
	TopicName   string
	Subscribers []Subscriber
}

// Pending2Cache is the process-global (publisher, msg-id) -> PendingQoS2
// map.
type Pending2Cache struct {
	mu      sync.Mutex
	entries map[pendingQoS2Key]*PendingQoS2
}

// NewPending2Cache returns an empty QoS 2 pending cache.
func NewPending2Cache() *Pending2Cache {
	return &Pending2Cache{entries: make(map[pendingQoS2Key]*PendingQoS2)}
}

// Put stashes entry under (publisher, msgID).
func (c *Pending2Cache) Put(publisher PeerAddr, msgID uint16, entry *PendingQoS2) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pendingQoS2Key{publisher, msgID}] = entry
}

// Take removes and returns the entry for (publisher, msgID), if present.
func (c *Pending2Cache) Take(publisher PeerAddr, msgID uint16) (*PendingQoS2, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pendingQoS2Key{publisher, msgID}
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return e, ok
}

// Evict removes the entry for (publisher, msgID) without returning it,
// used when the PUBREC retransmit exhausts before a PUBREL arrives (spec
// §4.4 step 3).
func (c *Pending2Cache) Evict(publisher PeerAddr, msgID uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, pendingQoS2Key{publisher, msgID})
}

// QoSEngine ties the retransmission time wheel, the retained store, and
// the asleep queues together into the per-flow handshakes spec §4.4
// describes. It holds no connection or subscription state of its own —
// those live in ConnTable and Index — matching the "BrokerState passed by
// reference" design spec §9 recommends over the teacher's process-global
// maps.
type QoSEngine struct {
	wheel    *TimeWheel
	retained *RetainedStore
	asleep   *AsleepQueues
	pending2 *Pending2Cache
	conns    *ConnTable
	egress   chan<- Datagram
	stat     *Stat
	log      Logger
}

// NewQoSEngine wires a QoSEngine from its collaborators.
func NewQoSEngine(wheel *TimeWheel, conns *ConnTable, egress chan<- Datagram, stat *Stat, logger Logger) *QoSEngine {
	if logger == nil {
		logger = NewStdLogger()
	}
	return &QoSEngine{
		wheel:    wheel,
		retained: NewRetainedStore(),
		asleep:   NewAsleepQueues(),
		pending2: NewPending2Cache(),
		conns:    conns,
		egress:   egress,
		stat:     stat,
		log:      logger,
	}
}

// send encodes msg and writes it to the egress queue for peer, without
// holding any lock across the channel send (spec §5).
func (q *QoSEngine) send(peer PeerAddr, msg packet.Message) {
	frame, err := packet.Encode(msg)
	if err != nil {
		q.log.Log(LevelError, "encode %s for %s: %v", msg.Kind(), peer, err)
		return
	}
	q.egress <- Datagram{Peer: peer, Frame: frame}
	if q.stat != nil {
		q.stat.PacketsOut.Inc()
		q.stat.BytesOut.Add(float64(len(frame)))
	}
}

// DeliverToSubscriber sends pub to sub, or — if sub's connection is
// ASLEEP — queues it for delivery on next wake (spec §4.4 "Asleep
// delivery"). QoS 1/2 deliveries schedule their own retransmit.
func (q *QoSEngine) DeliverToSubscriber(sub Subscriber, topicID uint16, data []byte, dup bool) {
	conn, ok := q.conns.Get(sub.Peer)
	if !ok {
		return
	}
	out := &packet.Publish{
		Flags:   packet.Flags{QoS: packet.QoS(sub.QoS), Dup: dup},
		TopicID: topicID,
		Data:    data,
	}
	if sub.QoS > 0 {
		out.MsgID = conn.NextMsgID()
	}

	if conn.State() == StateAsleep {
		q.asleep.Enqueue(sub.Peer, out)
		if q.stat != nil {
			q.stat.AsleepQueueDepth.Set(float64(q.asleep.Depth()))
		}
		return
	}
	q.sendPublishWithRetry(sub.Peer, out)
}

func (q *QoSEngine) sendPublishWithRetry(peer PeerAddr, pub *packet.Publish) {
	q.send(peer, pub)
	if pub.Flags.QoS == packet.QoS0 {
		return
	}
	frame, err := packet.Encode(pub)
	if err != nil {
		return
	}
	// PUBACK carries a topic id, so including it disambiguates; PUBREC
	// does not, so that key only ever carries the (peer, msgID) pair —
	// callers cancelling a PUBREC-expected entry must pass TopicID 0.
	expect := packet.PUBACK
	topicID := pub.TopicID
	if pub.Flags.QoS == packet.QoS2 {
		expect = packet.PUBREC
		topicID = 0
	}
	key := RetryKey{Peer: peer, ExpectedKind: expect, TopicID: topicID, MsgID: pub.MsgID}
	q.wheel.Schedule(key, frame, CONFIG.MaxRetries, func() {
		if q.stat != nil {
			q.stat.RetriesExhausted.Inc()
		}
	})
}

// DrainAsleep sends every queued message for peer in FIFO order, used when
// an ASLEEP peer sends PINGREQ (spec §4.2, §4.4).
func (q *QoSEngine) DrainAsleep(peer PeerAddr) {
	for _, pub := range q.asleep.Drain(peer) {
		q.sendPublishWithRetry(peer, pub)
	}
	if q.stat != nil {
		q.stat.AsleepQueueDepth.Set(float64(q.asleep.Depth()))
	}
}

// HandlePublishQoS1 implements spec §4.4's QoS 1 flow: immediately reply
// PUBACK, then fan out to subscribers (each leg scheduling its own
// retransmit).
func (q *QoSEngine) HandlePublishQoS1(publisher PeerAddr, msg *packet.Publish, subscribers []Subscriber) {
	q.send(publisher, &packet.Puback{TopicID: msg.TopicID, MsgID: msg.MsgID, Code: packet.Accepted})
	q.fanOut(msg.TopicID, msg.Data, subscribers)
}

// HandlePublishQoS0 fans out immediately with no acknowledgment.
func (q *QoSEngine) HandlePublishQoS0(msg *packet.Publish, subscribers []Subscriber) {
	q.fanOut(msg.TopicID, msg.Data, subscribers)
}

func (q *QoSEngine) fanOut(topicID uint16, data []byte, subscribers []Subscriber) {
	for _, sub := range subscribers {
		q.DeliverToSubscriber(sub, topicID, data, false)
	}
}

// HandlePublishQoS2Start implements spec §4.4 step 1: stash the PUBLISH
// and its subscriber snapshot, reply PUBREC, and schedule a PUBREC
// retransmit pending PUBREL.
func (q *QoSEngine) HandlePublishQoS2Start(publisher PeerAddr, topicName string, msg *packet.Publish, subscribers []Subscriber) {
	q.pending2.Put(publisher, msg.MsgID, &PendingQoS2{Publish: msg, TopicName: topicName, Subscribers: subscribers})

	pubrec := &packet.Pubrec{}
	pubrec.MsgID = msg.MsgID
	q.send(publisher, pubrec)

	frame, err := packet.Encode(pubrec)
	if err != nil {
		return
	}
	key := RetryKey{Peer: publisher, ExpectedKind: packet.PUBREL, MsgID: msg.MsgID}
	q.wheel.Schedule(key, frame, CONFIG.MaxRetries, func() {
		q.pending2.Evict(publisher, msg.MsgID)
		if q.stat != nil {
			q.stat.RetriesExhausted.Inc()
		}
	})
}

// HandlePubrel implements spec §4.4 step 2: cancel the PUBREC retransmit,
// fan out to the snapshotted subscribers, and reply PUBCOMP. The fan-out
// only begins once PUBREL is observed (spec §5 ordering guarantee).
func (q *QoSEngine) HandlePubrel(publisher PeerAddr, msgID uint16) {
	q.wheel.Cancel(RetryKey{Peer: publisher, ExpectedKind: packet.PUBREL, MsgID: msgID})

	entry, ok := q.pending2.Take(publisher, msgID)
	if ok {
		q.fanOut(entry.Publish.TopicID, entry.Publish.Data, entry.Subscribers)
	}

	pubcomp := &packet.Pubcomp{}
	pubcomp.MsgID = msgID
	q.send(publisher, pubcomp)
}

// SendPublishQoS2 implements the broker-as-sender QoS 2 leg (spec §4.4):
// send PUBLISH and schedule a PUBREC-expected retransmit.
func (q *QoSEngine) SendPublishQoS2(peer PeerAddr, pub *packet.Publish) {
	q.sendPublishWithRetry(peer, pub)
}

// HandlePubrecAsSender cancels the PUBLISH retransmit, sends PUBREL, and
// schedules a PUBCOMP-expected retransmit (broker-as-sender leg).
func (q *QoSEngine) HandlePubrecAsSender(peer PeerAddr, topicID, msgID uint16) {
	q.wheel.Cancel(RetryKey{Peer: peer, ExpectedKind: packet.PUBREC, TopicID: topicID, MsgID: msgID})

	pubrel := &packet.Pubrel{}
	pubrel.MsgID = msgID
	q.send(peer, pubrel)

	frame, err := packet.Encode(pubrel)
	if err != nil {
		return
	}
	key := RetryKey{Peer: peer, ExpectedKind: packet.PUBCOMP, TopicID: topicID, MsgID: msgID}
	q.wheel.Schedule(key, frame, CONFIG.MaxRetries, func() {
		if q.stat != nil {
			q.stat.RetriesExhausted.Inc()
		}
	})
}

// HandlePubcompAsSender cancels the PUBREL retransmit (broker-as-sender
// leg complete).
func (q *QoSEngine) HandlePubcompAsSender(peer PeerAddr, topicID, msgID uint16) {
	q.wheel.Cancel(RetryKey{Peer: peer, ExpectedKind: packet.PUBCOMP, TopicID: topicID, MsgID: msgID})
}

// HandlePubackAsSender cancels the PUBLISH retransmit for a completed
// QoS 1 broker-as-sender leg.
func (q *QoSEngine) HandlePubackAsSender(peer PeerAddr, topicID, msgID uint16) {
	q.wheel.Cancel(RetryKey{Peer: peer, ExpectedKind: packet.PUBACK, TopicID: topicID, MsgID: msgID})
}

// ApplyRetain overwrites (or clears) the retained entry for topicID when
// msg carries RETAIN=1 (spec §4.4 "Retained messages").
func (q *QoSEngine) ApplyRetain(topicID uint16, data []byte, qos byte) {
	q.retained.Set(topicID, data, qos)
}

// DeliverRetained sends the retained message for topicID to sub, if one
// exists, used right after SUBACK for a newly subscribed topic.
func (q *QoSEngine) DeliverRetained(sub Subscriber, topicID uint16) {
	entry, ok := q.retained.Get(topicID)
	if !ok {
		return
	}
	out := &packet.Publish{
		Flags:   packet.Flags{QoS: packet.QoS(entry.QoS), Retain: true},
		TopicID: topicID,
		Data:    entry.Data,
	}
	conn, ok := q.conns.Get(sub.Peer)
	if ok && entry.QoS > 0 {
		out.MsgID = conn.NextMsgID()
	}
	q.sendPublishWithRetry(sub.Peer, out)
}

// CleanupPeer cancels every retransmission entry for peer and drops its
// asleep-cache queue (spec §5 "On connection destruction... all
// retransmission entries for that peer must be cancelled and asleep-cache
// entries dropped before the connection record is freed").
func (q *QoSEngine) CleanupPeer(peer PeerAddr) {
	q.wheel.CancelPeer(peer)
	q.asleep.Drain(peer)
}
