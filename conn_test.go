package mqttsn

import (
	"testing"
	"time"
)

func TestConnStateString(t *testing.T) {
	cases := map[ConnState]string{
		StateDisconnected:      "DISCONNECTED",
		StateAwaitingWillTopic: "AWAITING_WILL_TOPIC",
		StateAwaitingWillMsg:   "AWAITING_WILL_MSG",
		StateActive:            "ACTIVE",
		StateAsleep:            "ASLEEP",
		StateAwake:             "AWAKE",
		StateLost:              "LOST",
		ConnState(99):          "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ConnState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestConnKeepAliveDeadline(t *testing.T) {
	c := NewConn("peer:1")
	c.SetDuration(10)
	before := time.Now()
	c.Touch()
	deadline := c.KeepAliveDeadline()

	want := before.Add(15 * time.Second)
	if deadline.Before(want.Add(-time.Second)) || deadline.After(want.Add(time.Second)) {
		t.Fatalf("deadline %v not within tolerance of 1.5x duration from touch (%v)", deadline, want)
	}
}

func TestConnWillLifecycle(t *testing.T) {
	c := NewConn("peer:1")
	if _, _, _, _, ok := c.Will(); ok {
		t.Fatal("fresh connection should have no Will")
	}

	c.SetWillTopic("a/b", 1, true)
	c.SetWillMessage([]byte("bye"))
	topic, msg, qos, retain, ok := c.Will()
	if !ok || topic != "a/b" || string(msg) != "bye" || qos != 1 || !retain {
		t.Fatalf("unexpected Will: topic=%q msg=%q qos=%d retain=%v ok=%v", topic, msg, qos, retain, ok)
	}

	c.ClearWill()
	if _, _, _, _, ok := c.Will(); ok {
		t.Fatal("ClearWill should drop the stored Will")
	}
}

func TestConnNextMsgIDMonotonic(t *testing.T) {
	c := NewConn("peer:1")
	first := c.NextMsgID()
	second := c.NextMsgID()
	if second != first+1 {
		t.Fatalf("expected monotonically increasing msg ids, got %d then %d", first, second)
	}
}

func TestConnTableLifecycle(t *testing.T) {
	tbl := NewConnTable()

	if _, ok := tbl.Get("peer:1"); ok {
		t.Fatal("empty table should not contain peer:1")
	}

	c := tbl.GetOrCreate("peer:1")
	if c.Peer != "peer:1" {
		t.Fatalf("GetOrCreate stored wrong peer: %s", c.Peer)
	}
	if again := tbl.GetOrCreate("peer:1"); again != c {
		t.Fatal("GetOrCreate should return the existing record on a second call")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 tracked connection, got %d", tbl.Len())
	}

	tbl.GetOrCreate("peer:2")
	count := 0
	tbl.Range(func(*Conn) { count++ })
	if count != 2 {
		t.Fatalf("Range visited %d connections, want 2", count)
	}

	tbl.Remove("peer:1")
	if _, ok := tbl.Get("peer:1"); ok {
		t.Fatal("peer:1 should be gone after Remove")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 tracked connection after Remove, got %d", tbl.Len())
	}
}
