package mqttsn

import (
	"testing"

	"github.com/golang-io/mqttsn/packet"
)

func TestRetainedStoreSetGetClear(t *testing.T) {
	r := NewRetainedStore()
	if _, ok := r.Get(1); ok {
		t.Fatal("empty store should have no entry for topic 1")
	}

	r.Set(1, []byte("hello"), 1)
	entry, ok := r.Get(1)
	if !ok || string(entry.Data) != "hello" || entry.QoS != 1 {
		t.Fatalf("unexpected entry: %+v ok=%v", entry, ok)
	}

	r.Set(1, nil, 0)
	if _, ok := r.Get(1); ok {
		t.Fatal("setting an empty payload should clear the retained entry")
	}
}

func TestAsleepQueuesEnqueueDrain(t *testing.T) {
	a := NewAsleepQueues()
	p1 := &packet.Publish{TopicID: 1, Data: []byte("a")}
	p2 := &packet.Publish{TopicID: 1, Data: []byte("b")}
	a.Enqueue("peer:1", p1)
	a.Enqueue("peer:1", p2)

	if got := a.Depth(); got != 2 {
		t.Fatalf("Depth() = %d, want 2", got)
	}

	drained := a.Drain("peer:1")
	if len(drained) != 2 || string(drained[0].Data) != "a" || string(drained[1].Data) != "b" {
		t.Fatalf("unexpected drain order: %+v", drained)
	}
	if got := a.Depth(); got != 0 {
		t.Fatalf("Depth() after drain = %d, want 0", got)
	}
	if got := a.Drain("peer:1"); got != nil {
		t.Fatalf("draining an empty queue should return nil, got %+v", got)
	}
}

func TestPending2CachePutTakeEvict(t *testing.T) {
	c := NewPending2Cache()
	entry := &PendingQoS2{Publish: &packet.Publish{TopicID: 1}}
	c.Put("peer:1", 7, entry)

	got, ok := c.Take("peer:1", 7)
	if !ok || got != entry {
		t.Fatalf("Take returned %+v, ok=%v", got, ok)
	}
	if _, ok := c.Take("peer:1", 7); ok {
		t.Fatal("Take should remove the entry")
	}

	c.Put("peer:1", 8, entry)
	c.Evict("peer:1", 8)
	if _, ok := c.Take("peer:1", 8); ok {
		t.Fatal("Evict should remove the entry without returning it")
	}
}

func newTestQoSEngine() (*QoSEngine, chan Datagram) {
	egress := make(chan Datagram, 64)
	wheel := NewTimeWheel(8, egress, nil)
	conns := NewConnTable()
	return NewQoSEngine(wheel, conns, egress, nil, nil), egress
}

func decodePublish(t *testing.T, frame []byte) *packet.Publish {
	t.Helper()
	msg, err := packet.Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	pub, ok := msg.(*packet.Publish)
	if !ok {
		t.Fatalf("expected a PUBLISH, got %T", msg)
	}
	return pub
}

func TestQoSEngineQoS0FanOut(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateActive)

	subs := []Subscriber{{Peer: "sub:1", QoS: 0}}
	msg := &packet.Publish{Flags: packet.Flags{QoS: packet.QoS0}, TopicID: 5, Data: []byte("hi")}
	q.HandlePublishQoS0(msg, subs)

	select {
	case dg := <-egress:
		pub := decodePublish(t, dg.Frame)
		if pub.TopicID != 5 || string(pub.Data) != "hi" {
			t.Fatalf("unexpected fan-out publish: %+v", pub)
		}
	default:
		t.Fatal("expected a fanned-out PUBLISH")
	}
}

func TestQoSEngineQoS1SendsPubackThenFansOut(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateActive)

	subs := []Subscriber{{Peer: "sub:1", QoS: 1}}
	msg := &packet.Publish{Flags: packet.Flags{QoS: packet.QoS1}, TopicID: 5, MsgID: 42, Data: []byte("hi")}
	q.HandlePublishQoS1("pub:1", msg, subs)

	first, err := packet.Decode((<-egress).Frame)
	if err != nil {
		t.Fatalf("decode puback: %v", err)
	}
	puback, ok := first.(*packet.Puback)
	if !ok || puback.MsgID != 42 || puback.Code != packet.Accepted {
		t.Fatalf("unexpected first datagram: %+v ok=%v", first, ok)
	}

	second := decodePublish(t, (<-egress).Frame)
	if second.Flags.QoS != packet.QoS1 || second.TopicID != 5 {
		t.Fatalf("unexpected fanned-out publish: %+v", second)
	}
}

func TestQoSEngineDeliverToAsleepSubscriberQueues(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateAsleep)

	q.DeliverToSubscriber(Subscriber{Peer: "sub:1", QoS: 1}, 5, []byte("hi"), false)
	select {
	case dg := <-egress:
		t.Fatalf("asleep subscriber should not receive immediately, got %+v", dg)
	default:
	}
	if got := q.asleep.Depth(); got != 1 {
		t.Fatalf("expected one queued message for asleep subscriber, got %d", got)
	}

	q.DrainAsleep("sub:1")
	select {
	case dg := <-egress:
		decodePublish(t, dg.Frame)
	default:
		t.Fatal("expected the queued message to be sent on drain")
	}
}

func TestQoSEngineQoS2RoundTrip(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateActive)
	subs := []Subscriber{{Peer: "sub:1", QoS: 2}}

	msg := &packet.Publish{Flags: packet.Flags{QoS: packet.QoS2}, TopicID: 5, MsgID: 9, Data: []byte("once")}
	q.HandlePublishQoS2Start("pub:1", "a/b", msg, subs)

	pubrecFrame := (<-egress).Frame
	pubrecMsg, err := packet.Decode(pubrecFrame)
	if err != nil {
		t.Fatalf("decode pubrec: %v", err)
	}
	pubrec, ok := pubrecMsg.(*packet.Pubrec)
	if !ok || pubrec.MsgID != 9 {
		t.Fatalf("unexpected PUBREC: %+v ok=%v", pubrecMsg, ok)
	}

	if _, ok := q.pending2.Take("pub:1", 9); !ok {
		t.Fatal("expected a pending QoS2 entry before PUBREL")
	}
	q.pending2.Put("pub:1", 9, &PendingQoS2{Publish: msg, TopicName: "a/b", Subscribers: subs})

	q.HandlePubrel("pub:1", 9)

	fanned := decodePublish(t, (<-egress).Frame)
	if fanned.TopicID != 5 || string(fanned.Data) != "once" {
		t.Fatalf("unexpected fanned-out QoS2 publish: %+v", fanned)
	}

	pubcompMsg, err := packet.Decode((<-egress).Frame)
	if err != nil {
		t.Fatalf("decode pubcomp: %v", err)
	}
	if pubcomp, ok := pubcompMsg.(*packet.Pubcomp); !ok || pubcomp.MsgID != 9 {
		t.Fatalf("unexpected PUBCOMP: %+v ok=%v", pubcompMsg, ok)
	}

	if _, ok := q.pending2.Take("pub:1", 9); ok {
		t.Fatal("PUBREL should consume the pending QoS2 entry")
	}
}

func TestQoSEngineApplyAndDeliverRetained(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateActive)

	q.ApplyRetain(5, []byte("sticky"), 1)
	q.DeliverRetained(Subscriber{Peer: "sub:1", QoS: 1}, 5)

	pub := decodePublish(t, (<-egress).Frame)
	if !pub.Flags.Retain || string(pub.Data) != "sticky" {
		t.Fatalf("unexpected retained delivery: %+v", pub)
	}
}

func TestQoSEngineCleanupPeerCancelsRetriesAndAsleepQueue(t *testing.T) {
	q, egress := newTestQoSEngine()
	q.conns.GetOrCreate("sub:1").SetState(StateAsleep)
	q.DeliverToSubscriber(Subscriber{Peer: "sub:1", QoS: 1}, 5, []byte("hi"), false)

	q.conns.GetOrCreate("sub:2").SetState(StateActive)
	msg := &packet.Publish{Flags: packet.Flags{QoS: packet.QoS1}, TopicID: 5, MsgID: 1, Data: []byte("x")}
	q.sendPublishWithRetry("sub:2", msg)
	<-egress // drain the initial send

	q.CleanupPeer("sub:1")
	q.CleanupPeer("sub:2")

	if got := q.asleep.Depth(); got != 0 {
		t.Fatalf("expected asleep queue cleared, got depth %d", got)
	}
	if len(q.wheel.locate) != 0 {
		t.Fatalf("expected no scheduled retries after cleanup, got %d", len(q.wheel.locate))
	}
}
