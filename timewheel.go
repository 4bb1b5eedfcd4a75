package mqttsn

import (
	"context"
	"sync"

	"github.com/golang-io/mqttsn/packet"
	"golang.org/x/sync/errgroup"
)

// RetryKey identifies one retransmission flow: a peer waiting on a
// specific reply type for a specific (topic-id, msg-id) pair (spec §3
// "Retransmission entry").
type RetryKey struct {
	Peer         PeerAddr
	ExpectedKind packet.Kind
	TopicID      uint16
	MsgID        uint16
}

// retryEntry is one slot's payload: the frame to resend, retries
// remaining, and what to do once the budget is exhausted.
type retryEntry struct {
	key         RetryKey
	frame       []byte
	retries     int // retries remaining
	tried       int // attempts already made, for the backoff exponent
	onExhausted func()
}

// TimeWheel is the bounded ring-of-one-second-slots retransmission
// scheduler (spec §4.4), modeled on the teacher's errgroup-based fan-out
// in MemorySubscribed.Exchange (mem_topic.go) but driving retransmits
// instead of first-time fan-out.
type TimeWheel struct {
	mu     sync.Mutex
	slots  []map[RetryKey]*retryEntry
	hand   int
	locate map[RetryKey]int // key -> slot index, for O(1) cancel
	egress chan<- Datagram
	log    Logger
}

// NewTimeWheel returns a wheel with n slots, writing retransmitted frames
// to egress.
func NewTimeWheel(n int, egress chan<- Datagram, logger Logger) *TimeWheel {
	if n <= 0 {
		n = 3600
	}
	slots := make([]map[RetryKey]*retryEntry, n)
	for i := range slots {
		slots[i] = make(map[RetryKey]*retryEntry)
	}
	if logger == nil {
		logger = NewStdLogger()
	}
	return &TimeWheel{slots: slots, locate: make(map[RetryKey]int), egress: egress, log: logger}
}

// Schedule inserts a new retransmission entry one slot ahead of the hand,
// per spec §4.4's schedule operation.
func (w *TimeWheel) Schedule(key RetryKey, frame []byte, retries int, onExhausted func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleAtLocked(key, frame, retries, onExhausted, 1)
}

func (w *TimeWheel) scheduleAtLocked(key RetryKey, frame []byte, retries int, onExhausted func(), secondsAhead int) {
	if secondsAhead < 1 {
		secondsAhead = 1
	}
	n := len(w.slots)
	idx := (w.hand + secondsAhead) % n
	w.slots[idx][key] = &retryEntry{key: key, frame: frame, retries: retries, onExhausted: onExhausted}
	w.locate[key] = idx
}

func (w *TimeWheel) rescheduleAtLocked(e *retryEntry, secondsAhead int) {
	n := len(w.slots)
	idx := (w.hand + secondsAhead) % n
	w.slots[idx][e.key] = e
	w.locate[e.key] = idx
}

// Cancel removes the entry for key, if present. Called by the matching
// acknowledgment handler (spec §4.4).
func (w *TimeWheel) Cancel(key RetryKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelLocked(key)
}

func (w *TimeWheel) cancelLocked(key RetryKey) {
	idx, ok := w.locate[key]
	if !ok {
		return
	}
	delete(w.slots[idx], key)
	delete(w.locate, key)
}

// CancelPeer cancels every retransmission entry belonging to peer, used
// when a connection is destroyed (spec §5 "Cancellation and timeouts").
func (w *TimeWheel) CancelPeer(peer PeerAddr) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, idx := range w.locate {
		if key.Peer != peer {
			continue
		}
		delete(w.slots[idx], key)
		delete(w.locate, key)
	}
}

// Tick advances the hand by one slot and processes every entry due this
// second: entries with retries remaining are resent and rescheduled with
// exponential backoff; exhausted entries fire onExhausted and are dropped.
// Resends fan out concurrently via errgroup, matching the teacher's
// Exchange pattern (mem_topic.go), with no lock held across the egress
// send (spec §5 "no handler holds a lock across a queue send").
func (w *TimeWheel) Tick(ctx context.Context) {
	w.mu.Lock()
	n := len(w.slots)
	w.hand = (w.hand + 1) % n
	due := w.slots[w.hand]
	w.slots[w.hand] = make(map[RetryKey]*retryEntry)
	entries := make([]*retryEntry, 0, len(due))
	for key, e := range due {
		delete(w.locate, key)
		entries = append(entries, e)
	}
	w.mu.Unlock()

	var exhausted []*retryEntry
	var toResend []*retryEntry
	for _, e := range entries {
		if e.retries <= 0 {
			exhausted = append(exhausted, e)
			continue
		}
		toResend = append(toResend, e)
	}

	for _, e := range exhausted {
		if e.onExhausted != nil {
			e.onExhausted()
		}
	}

	group, _ := errgroup.WithContext(ctx)
	for _, e := range toResend {
		e := e
		group.Go(func() error {
			select {
			case w.egress <- Datagram{Peer: e.key.Peer, Frame: e.frame}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}
	_ = group.Wait()

	w.mu.Lock()
	for _, e := range toResend {
		e.retries--
		e.tried++
		backoff := 1 << uint(e.tried)
		w.rescheduleAtLocked(e, backoff)
	}
	w.mu.Unlock()
}

// Run drives Tick off clk's tick signal until stop is closed.
func (w *TimeWheel) Run(ctx context.Context, clk Clock, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-clk.Tick():
			w.Tick(ctx)
		}
	}
}
