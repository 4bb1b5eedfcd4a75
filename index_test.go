package mqttsn

import "testing"

func TestValidateFilter(t *testing.T) {
	cases := []struct {
		name   string
		filter string
		want   bool
	}{
		{"empty", "", false},
		{"plain", "sensors/temp", true},
		{"single-level", "sensors/+/temp", true},
		{"multi-level terminal", "sensors/#", true},
		{"multi-level bare", "#", false},
		{"multi-level not terminal", "sensors/#/temp", false},
		{"plus glued to segment", "sensors/a+b", false},
		{"hash glued to segment", "sensors/a#", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateFilter(tc.filter); got != tc.want {
				t.Errorf("ValidateFilter(%q) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}
}

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		name   string
		topic  string
		filter string
		want   bool
	}{
		{"exact", "sensors/temp", "sensors/temp", true},
		{"plus matches one level", "sensors/temp", "sensors/+", true},
		{"plus does not cross levels", "sensors/a/b", "sensors/+", false},
		{"hash matches trailing", "sensors/a/b", "sensors/#", true},
		{"hash matches zero trailing", "sensors", "sensors/#", true},
		{"mismatch", "sensors/temp", "actuators/+", false},
		{"system topic shielded bare hash", "$SYS/uptime", "#", false},
		{"system topic shielded $SYS filter", "$SYS/uptime", "$SYS/#", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchTopic(tc.topic, tc.filter); got != tc.want {
				t.Errorf("MatchTopic(%q, %q) = %v, want %v", tc.topic, tc.filter, got, tc.want)
			}
		})
	}
}

func TestMatchTopicIdempotent(t *testing.T) {
	topic, filter := "sensors/a/b", "sensors/#"
	first := MatchTopic(topic, filter)
	for i := 0; i < 5; i++ {
		if got := MatchTopic(topic, filter); got != first {
			t.Fatalf("MatchTopic not idempotent: call %d = %v, first = %v", i, got, first)
		}
	}
}

func TestIndexResolveConcreteAndWildcard(t *testing.T) {
	idx := NewIndex()
	a := PeerAddr("10.0.0.1:1000")
	b := PeerAddr("10.0.0.2:1000")

	idx.SubscribeConcrete("sensors/temp", Subscriber{Peer: a, QoS: 1})
	idx.SubscribeWildcard("sensors/#", Subscriber{Peer: b, QoS: 0})

	subs := idx.Resolve("sensors/temp", 0)
	if len(subs) != 2 {
		t.Fatalf("Resolve returned %d subscribers, want 2: %+v", len(subs), subs)
	}

	var sawA, sawB bool
	for _, s := range subs {
		switch s.Peer {
		case a:
			sawA = true
		case b:
			sawB = true
		}
	}
	if !sawA || !sawB {
		t.Fatalf("missing expected subscriber: sawA=%v sawB=%v", sawA, sawB)
	}
}

func TestIndexWildcardCacheInvalidatedOnLateSubscribe(t *testing.T) {
	idx := NewIndex()
	a := PeerAddr("10.0.0.1:1000")
	b := PeerAddr("10.0.0.2:1000")

	idx.SubscribeWildcard("a/#", Subscriber{Peer: a, QoS: 0})
	// Populate the resolved cache for "a/x" before b subscribes.
	if subs := idx.Resolve("a/x", 0); len(subs) != 1 {
		t.Fatalf("expected 1 subscriber before b joins, got %d", len(subs))
	}

	idx.SubscribeWildcard("a/#", Subscriber{Peer: b, QoS: 0})

	subs := idx.Resolve("a/x", 0)
	if len(subs) != 2 {
		t.Fatalf("expected cache purge to pick up late subscriber b, got %d subscribers", len(subs))
	}
}

func TestIndexRemovePeerClearsAllTables(t *testing.T) {
	idx := NewIndex()
	a := PeerAddr("10.0.0.1:1000")

	idx.SubscribeConcrete("sensors/temp", Subscriber{Peer: a, QoS: 1})
	idx.SubscribeWildcard("sensors/#", Subscriber{Peer: a, QoS: 1})
	idx.SubscribePredefined(5, Subscriber{Peer: a, QoS: 0})
	idx.Resolve("sensors/temp", 0) // populate resolved cache

	idx.RemovePeer(a)

	if subs := idx.Resolve("sensors/temp", 5); len(subs) != 0 {
		t.Fatalf("expected no subscribers after RemovePeer, got %+v", subs)
	}
	if keys := idx.byPeer[a]; len(keys) != 0 {
		t.Fatalf("expected empty reverse index for peer, got %+v", keys)
	}
}

func TestRegistryInternAndLookup(t *testing.T) {
	reg := NewRegistry(map[uint16]string{5: "predefined/topic"})

	id, err := reg.Intern("sensors/temp")
	if err != nil {
		t.Fatalf("Intern: %v", err)
	}
	if id == 0 {
		t.Fatalf("Intern returned reserved id 0")
	}

	again, err := reg.Intern("sensors/temp")
	if err != nil || again != id {
		t.Fatalf("second Intern should return same id: got %d, %v", again, err)
	}

	name, ok := reg.Name(id)
	if !ok || name != "sensors/temp" {
		t.Fatalf("Name(%d) = %q, %v", id, name, ok)
	}

	name, ok = reg.Name(5)
	if !ok || name != "predefined/topic" {
		t.Fatalf("predefined Name(5) = %q, %v", name, ok)
	}
}

func TestRegistryExhaustion(t *testing.T) {
	reg := NewRegistry(nil)
	reg.next = maxTopicID // force exhaustion after one more allocation
	if _, err := reg.Intern("one"); err != nil {
		t.Fatalf("unexpected error on last id: %v", err)
	}
	if _, err := reg.Intern("two"); err != ErrRegistryExhausted {
		t.Fatalf("expected ErrRegistryExhausted, got %v", err)
	}
}
