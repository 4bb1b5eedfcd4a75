package mqttsn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Broker runs the ingress and time-wheel tick flows spec §5 describes
// (egress is left to the Transport), wired around a shared Transport,
// Clock, and Logger. Modeled on the teacher's Server (server.go): where the
// teacher's Server fans out a goroutine per accepted TCP connection, a
// Broker fans out a fixed set of long-lived goroutines (ingress loop,
// time-wheel tick loop, keep-alive/sleep timeout sweep, and the uptime
// counter when Stat is set) over one shared UDP transport, since MQTT-SN
// has no per-client socket.
type Broker struct {
	Transport Transport
	Clock     Clock
	Logger    Logger

	Conns    *ConnTable
	Registry *Registry
	Index    *Index
	Wheel    *TimeWheel
	QoS      *QoSEngine
	Dispatch *Dispatcher
	Stat     *Stat
}

// NewBroker constructs a Broker with fresh, empty state, wiring every
// collaborator together (spec §9: "capture these in a BrokerState value
// passed by reference into every handler" rather than process-global
// vars — each Broker instance owns its own tables, so tests can run
// several in one process without interference).
func NewBroker(transport Transport, clock Clock, logger Logger, stat *Stat) *Broker {
	if logger == nil {
		logger = NewStdLogger()
	}
	if stat == nil {
		stat = NewStat()
	}
	conns := NewConnTable()
	registry := NewRegistry(CONFIG.PredefinedTopics)
	index := NewIndex()
	wheel := NewTimeWheel(CONFIG.TimeWheelSlots, transport.Egress(), logger)
	qosEngine := NewQoSEngine(wheel, conns, transport.Egress(), stat, logger)
	dispatch := NewDispatcher(conns, registry, index, qosEngine, transport.Egress(), stat, logger)

	return &Broker{
		Transport: transport,
		Clock:     clock,
		Logger:    logger,
		Conns:     conns,
		Registry:  registry,
		Index:     index,
		Wheel:     wheel,
		QoS:       qosEngine,
		Dispatch:  dispatch,
		Stat:      stat,
	}
}

// Run starts the ingress loop, the time-wheel tick loop, and a
// keep-alive/sleep-timeout sweep, and blocks until ctx is cancelled or one
// of the flows errors. Egress is the Transport's concern (transport.go's
// UDPTransport.Run) — the Broker only produces datagrams onto the egress
// channel the Transport gave it, matching spec §5's "egress is a consumer
// of a multi-producer single-consumer queue" and "no handler holds a lock
// across a queue send".
func (b *Broker) Run(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return b.ingressLoop(gctx)
	})
	group.Go(func() error {
		b.Wheel.Run(gctx, b.Clock, gctx.Done())
		return nil
	})
	group.Go(func() error {
		return b.timeoutLoop(gctx)
	})
	if b.Stat != nil {
		group.Go(func() error {
			b.Stat.RunUptimeCounter(gctx.Done())
			return nil
		})
	}

	return group.Wait()
}

func (b *Broker) ingressLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dg, ok := <-b.Transport.Ingress():
			if !ok {
				return nil
			}
			b.Dispatch.HandleDatagram(dg)
		}
	}
}

// timeoutLoop sweeps for expired keep-alive/sleep timers once per clock
// tick, piggy-backing on the same one-second signal the time wheel uses
// (spec §4.2's timers and §4.4's retransmission wheel are distinct
// concerns but share a tick granularity).
func (b *Broker) timeoutLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.Clock.Tick():
			b.Dispatch.CheckTimeouts(b.Clock)
		}
	}
}
