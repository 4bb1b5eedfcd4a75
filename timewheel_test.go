package mqttsn

import (
	"context"
	"testing"

	"github.com/golang-io/mqttsn/packet"
)

func TestTimeWheelResendsAndExhausts(t *testing.T) {
	egress := make(chan Datagram, 16)
	w := NewTimeWheel(8, egress, nil)

	key := RetryKey{Peer: "10.0.0.1:1000", ExpectedKind: packet.PUBACK, TopicID: 1, MsgID: 1}
	exhaustedCh := make(chan struct{}, 1)
	w.Schedule(key, []byte("frame"), 2, func() { exhaustedCh <- struct{}{} })

	ctx := context.Background()
	// advance the hand 1 slot ahead, where the entry was scheduled.
	w.Tick(ctx)
	select {
	case dg := <-egress:
		if dg.Peer != key.Peer {
			t.Fatalf("resent to wrong peer: %s", dg.Peer)
		}
	default:
		t.Fatal("expected a resend on first tick")
	}

	// first retry rescheduled 2^1=2 slots ahead; tick forward to it.
	w.Tick(ctx)
	w.Tick(ctx)
	select {
	case <-egress:
	default:
		t.Fatal("expected a second resend")
	}

	// second retry rescheduled 2^2=4 slots ahead.
	for i := 0; i < 4; i++ {
		w.Tick(ctx)
	}
	select {
	case <-exhaustedCh:
	default:
		t.Fatal("expected exhaustion callback after retry budget spent")
	}
}

func TestTimeWheelCancel(t *testing.T) {
	egress := make(chan Datagram, 16)
	w := NewTimeWheel(8, egress, nil)

	key := RetryKey{Peer: "10.0.0.1:1000", ExpectedKind: packet.PUBACK, TopicID: 1, MsgID: 1}
	w.Schedule(key, []byte("frame"), 2, nil)
	w.Cancel(key)

	ctx := context.Background()
	w.Tick(ctx)
	select {
	case dg := <-egress:
		t.Fatalf("expected no resend after cancel, got %+v", dg)
	default:
	}
}

func TestTimeWheelCancelPeer(t *testing.T) {
	egress := make(chan Datagram, 16)
	w := NewTimeWheel(8, egress, nil)

	peer := PeerAddr("10.0.0.1:1000")
	w.Schedule(RetryKey{Peer: peer, ExpectedKind: packet.PUBACK, MsgID: 1}, []byte("a"), 1, nil)
	w.Schedule(RetryKey{Peer: peer, ExpectedKind: packet.PUBREC, MsgID: 2}, []byte("b"), 1, nil)
	w.CancelPeer(peer)

	if len(w.locate) != 0 {
		t.Fatalf("expected all entries for peer cancelled, got %d remaining", len(w.locate))
	}
}
