package mqttsn

import (
	"strings"
	"sync"
)

// Subscriber is one entry in a subscriber set: a peer plus the QoS it
// asked for when it subscribed. Spec §3 "Concrete subscriptions" /
// "Predefined topic-id subscriptions".
type Subscriber struct {
	Peer PeerAddr
	QoS  byte
}

// subKey identifies one subscription the reverse index needs to be able to
// erase in one pass: which of the three subscription maps (concrete,
// wildcard, predefined) it lives in, and under what key. The resolved
// cache has no reverse entries; it is purged by filter match instead.
type subTable int

const (
	tableConcrete subTable = iota
	tableWildcard
	tablePredefined
)

type subKey struct {
	table subTable
	key   string // topic name or filter string, for tableConcrete/tableWildcard
	id    uint16 // topic id, for tablePredefined
}

// Index is the subscription/routing index (spec §3, §4.3, §9): concrete
// subscriptions, wildcard filters, a resolved-wildcard cache, and
// predefined topic-id subscriptions, each a forward map of key->subscriber
// set, paired with a peer->keys reverse map so a connection teardown can
// erase every trace of a peer in O(entries-for-that-peer) rather than a
// full scan. Modeled on the teacher's MemorySubscribed/TopicSubscribed
// map-of-sets (mem_topic.go), generalized from one table to four and given
// the reverse index the teacher's design lacks (design note §9).
type Index struct {
	mu sync.RWMutex

	concrete   map[string]map[PeerAddr]Subscriber // topic name -> subs
	wildcard   map[string]map[PeerAddr]Subscriber // filter -> subs
	resolved   map[string]map[PeerAddr]Subscriber // topic name -> cached wildcard subs
	predefined map[uint16]map[PeerAddr]Subscriber // topic id -> subs

	byPeer map[PeerAddr]map[subKey]struct{}
}

// NewIndex returns an empty subscription index.
func NewIndex() *Index {
	return &Index{
		concrete:   make(map[string]map[PeerAddr]Subscriber),
		wildcard:   make(map[string]map[PeerAddr]Subscriber),
		resolved:   make(map[string]map[PeerAddr]Subscriber),
		predefined: make(map[uint16]map[PeerAddr]Subscriber),
		byPeer:     make(map[PeerAddr]map[subKey]struct{}),
	}
}

// ValidateFilter applies spec §4.3's strict wildcard rule: empty strings
// are rejected; '#' is legal only as the final character, preceded by '/';
// '+' is legal only as a complete path segment. This is stricter than the
// source's permissive, TODO-laden check (design note, single-level wildcard
// validation) — callers must not relax it.
func ValidateFilter(filter string) bool {
	if filter == "" {
		return false
	}
	segments := strings.Split(filter, "/")
	for i, seg := range segments {
		switch {
		case seg == "#":
			if i != len(segments)-1 || i == 0 {
				return false
			}
		case strings.Contains(seg, "#"):
			return false
		case seg == "+":
			// complete segment, always fine
		case strings.Contains(seg, "+"):
			return false
		}
	}
	return true
}

// isWildcard reports whether filter contains a '+' or '#' wildcard token.
func isWildcard(filter string) bool {
	return strings.Contains(filter, "+") || strings.Contains(filter, "#")
}

// MatchTopic implements spec §4.3's topic-match rule: split both on '/',
// '+' matches exactly one level, '#' matches zero or more trailing levels
// and must be terminal, and a topic beginning with '$' never matches any
// wildcard filter (system-topic shielding, spec §8 property 4). Pure: for
// fixed inputs MatchTopic always returns the same result (spec §8
// property 3).
func MatchTopic(topic, filter string) bool {
	if strings.HasPrefix(topic, "$") {
		return false
	}
	tSegs := strings.Split(topic, "/")
	fSegs := strings.Split(filter, "/")

	i := 0
	for ; i < len(fSegs); i++ {
		if fSegs[i] == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if fSegs[i] != "+" && fSegs[i] != tSegs[i] {
			return false
		}
	}
	return i == len(tSegs)
}

func (idx *Index) addReverse(peer PeerAddr, k subKey) {
	keys, ok := idx.byPeer[peer]
	if !ok {
		keys = make(map[subKey]struct{})
		idx.byPeer[peer] = keys
	}
	keys[k] = struct{}{}
}

// SubscribeConcrete adds a subscription to a registered topic name.
func (idx *Index) SubscribeConcrete(topic string, sub Subscriber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.concrete[topic]
	if !ok {
		set = make(map[PeerAddr]Subscriber)
		idx.concrete[topic] = set
	}
	set[sub.Peer] = sub
	idx.addReverse(sub.Peer, subKey{table: tableConcrete, key: topic})
}

// SubscribeWildcard adds a subscription to a wildcard filter and purges
// any resolved-cache entries so stale-before-subscribe cache state can't
// shadow the new subscriber (design note, wildcard cache invalidation:
// fix-forward, not replicate-the-bug).
func (idx *Index) SubscribeWildcard(filter string, sub Subscriber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.wildcard[filter]
	if !ok {
		set = make(map[PeerAddr]Subscriber)
		idx.wildcard[filter] = set
	}
	set[sub.Peer] = sub
	idx.addReverse(sub.Peer, subKey{table: tableWildcard, key: filter})
	idx.purgeResolvedLocked(filter)
}

// SubscribePredefined adds a subscription to a predefined numeric topic id.
func (idx *Index) SubscribePredefined(topicID uint16, sub Subscriber) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	set, ok := idx.predefined[topicID]
	if !ok {
		set = make(map[PeerAddr]Subscriber)
		idx.predefined[topicID] = set
	}
	set[sub.Peer] = sub
	idx.addReverse(sub.Peer, subKey{table: tablePredefined, id: topicID})
}

// purgeResolvedLocked drops every resolved-cache entry whose subscriber
// set could include a subscriber of filter, since the cache is only a
// cached view of wildcard matches. Called with idx.mu already held.
func (idx *Index) purgeResolvedLocked(filter string) {
	for topic := range idx.resolved {
		if MatchTopic(topic, filter) {
			delete(idx.resolved, topic)
		}
	}
}

// Unsubscribe removes one peer's subscription to topic (a concrete name or
// a wildcard filter; predefined ids go through UnsubscribePredefined).
func (idx *Index) Unsubscribe(topic string, peer PeerAddr) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if isWildcard(topic) {
		idx.removeFromLocked(idx.wildcard, topic, peer)
		delete(idx.byPeer[peer], subKey{table: tableWildcard, key: topic})
		idx.purgeResolvedLocked(topic)
		return
	}
	idx.removeFromLocked(idx.concrete, topic, peer)
	delete(idx.byPeer[peer], subKey{table: tableConcrete, key: topic})
}

// UnsubscribePredefined removes one peer's subscription to a predefined id.
func (idx *Index) UnsubscribePredefined(topicID uint16, peer PeerAddr) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if set, ok := idx.predefined[topicID]; ok {
		delete(set, peer)
		if len(set) == 0 {
			delete(idx.predefined, topicID)
		}
	}
	delete(idx.byPeer[peer], subKey{table: tablePredefined, id: topicID})
}

func (idx *Index) removeFromLocked(table map[string]map[PeerAddr]Subscriber, key string, peer PeerAddr) {
	set, ok := table[key]
	if !ok {
		return
	}
	delete(set, peer)
	if len(set) == 0 {
		delete(table, key)
	}
}

// Resolve returns the delivery set for a PUBLISH on topic name topic and/or
// predefined topic id topicID (pass 0 if not applicable): concrete
// subscribers of the name, subscribers of the predefined id, and wildcard
// subscribers resolved from (and cached into) the resolved-wildcard cache.
// Spec §4.3 "Resolution".
func (idx *Index) Resolve(topic string, topicID uint16) []Subscriber {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	seen := make(map[PeerAddr]struct{})
	var out []Subscriber

	add := func(set map[PeerAddr]Subscriber) {
		for peer, sub := range set {
			if _, dup := seen[peer]; dup {
				continue
			}
			seen[peer] = struct{}{}
			out = append(out, sub)
		}
	}

	if topic != "" {
		add(idx.concrete[topic])
	}
	if topicID != 0 {
		add(idx.predefined[topicID])
	}

	if topic != "" {
		cached, ok := idx.resolved[topic]
		if !ok {
			cached = make(map[PeerAddr]Subscriber)
			for filter, set := range idx.wildcard {
				if !MatchTopic(topic, filter) {
					continue
				}
				for peer, sub := range set {
					cached[peer] = sub
				}
			}
			idx.resolved[topic] = cached
		}
		add(cached)
	}

	return out
}

// RemovePeer erases every subscription belonging to peer, across all four
// tables, in one pass using the reverse index (spec §4.3 "Removal", §9
// "Reverse-indexed maps"). Spec §8 property 6: after this call, a fresh
// reverse lookup for peer returns empty everywhere.
func (idx *Index) RemovePeer(peer PeerAddr) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	keys := idx.byPeer[peer]
	for k := range keys {
		switch k.table {
		case tableConcrete:
			idx.removeFromLocked(idx.concrete, k.key, peer)
		case tableWildcard:
			idx.removeFromLocked(idx.wildcard, k.key, peer)
			idx.purgeResolvedLocked(k.key)
		case tablePredefined:
			if set, ok := idx.predefined[k.id]; ok {
				delete(set, peer)
				if len(set) == 0 {
					delete(idx.predefined, k.id)
				}
			}
		}
	}
	delete(idx.byPeer, peer)
}
