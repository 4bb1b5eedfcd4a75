package mqttsn

import (
	"github.com/golang-io/mqttsn/packet"
)

// Dispatcher wires the codec, connection table, registry, subscription
// index, and QoS engine together into the per-datagram handling spec §4.5
// describes. Modeled on the teacher's defaultHandler.ServeMQTT type switch
// (conn.go), generalized from per-TCP-connection dispatch to a
// peer-address-keyed ingress loop, since MQTT-SN has no persistent socket
// per client.
type Dispatcher struct {
	conns    *ConnTable
	registry *Registry
	index    *Index
	qos      *QoSEngine
	egress   chan<- Datagram
	stat     *Stat
	log      Logger
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(conns *ConnTable, registry *Registry, index *Index, qos *QoSEngine, egress chan<- Datagram, stat *Stat, logger Logger) *Dispatcher {
	if logger == nil {
		logger = NewStdLogger()
	}
	return &Dispatcher{conns: conns, registry: registry, index: index, qos: qos, egress: egress, stat: stat, log: logger}
}

func (d *Dispatcher) send(peer PeerAddr, msg packet.Message) {
	frame, err := packet.Encode(msg)
	if err != nil {
		d.log.Log(LevelError, "encode %s for %s: %v", msg.Kind(), peer, err)
		return
	}
	d.egress <- Datagram{Peer: peer, Frame: frame}
	if d.stat != nil {
		d.stat.PacketsOut.Inc()
		d.stat.BytesOut.Add(float64(len(frame)))
	}
}

// HandleDatagram decodes and dispatches one ingress datagram. Spec §4.2:
// "Any received datagram from a known peer reschedules the [keep-alive]
// timer... done before message-type dispatch so malformed frames still
// refresh liveness."
func (d *Dispatcher) HandleDatagram(dg Datagram) {
	if d.stat != nil {
		d.stat.PacketsIn.Inc()
		d.stat.BytesIn.Add(float64(len(dg.Frame)))
	}

	if conn, known := d.conns.Get(dg.Peer); known {
		conn.Touch()
	}

	msg, err := packet.Decode(dg.Frame)
	if err != nil {
		// Decode errors (spec §7): log at warn, drop frame, no teardown.
		d.log.Log(LevelWarn, "decode from %s: %v", dg.Peer, err)
		return
	}

	conn, known := d.conns.Get(dg.Peer)

	switch msg.Kind() {
	case packet.CONNECT:
		d.handleConnect(dg.Peer, msg.(*packet.Connect))
		return
	case packet.PUBLISH:
		d.handlePublish(dg.Peer, conn, msg.(*packet.Publish))
		return
	case packet.ADVERTISE, packet.SEARCHGW, packet.GWINFO:
		// Gateway-discovery beacons: collaborator concern (spec §4.5,
		// §6). The core recognises them only to avoid a BadType drop.
		return
	}

	if !known {
		// Unknown peers may only CONNECT or PUBLISH (spec §4.5).
		d.log.Log(LevelInfo, "unknown peer %s sent %s, dropping", dg.Peer, msg.Kind())
		return
	}

	switch m := msg.(type) {
	case *packet.WillTopic:
		d.handleWillTopic(conn, m)
	case *packet.WillMsg:
		d.handleWillMsg(conn, m)
	case *packet.WillTopicUpdate:
		d.handleWillTopicUpdate(conn, m)
	case *packet.WillMsgUpdate:
		d.handleWillMsgUpdate(conn, m)
	case *packet.Register:
		d.handleRegister(conn, m)
	case *packet.Puback:
		d.qos.HandlePubackAsSender(conn.Peer, m.TopicID, m.MsgID)
	case *packet.Pubrec:
		d.qos.HandlePubrecAsSender(conn.Peer, 0, m.MsgID)
	case *packet.Pubrel:
		d.qos.HandlePubrel(conn.Peer, m.MsgID)
	case *packet.Pubcomp:
		d.qos.HandlePubcompAsSender(conn.Peer, 0, m.MsgID)
	case *packet.Subscribe:
		d.handleSubscribe(conn, m)
	case *packet.Unsubscribe:
		d.handleUnsubscribe(conn, m)
	case *packet.Pingreq:
		d.handlePingreq(conn)
	case *packet.Disconnect:
		d.handleDisconnect(conn, m)
	default:
		d.log.Log(LevelWarn, "no handler for %s from %s", msg.Kind(), dg.Peer)
	}
}

// setConnState transitions conn and keeps the per-state connection gauge
// (stat.go's ConnectionsByState) in sync, the same Inc-on-create/Dec-on-
// destroy pairing the teacher uses for its single ActiveConnections
// counter (server.go), generalized to one gauge per state.
func (d *Dispatcher) setConnState(conn *Conn, s ConnState) {
	prev := conn.State()
	conn.SetState(s)
	if d.stat == nil || prev == s {
		return
	}
	d.stat.ConnectionsByState.WithLabelValues(prev.String()).Dec()
	d.stat.ConnectionsByState.WithLabelValues(s.String()).Inc()
}

// protocolError implements spec §7's "Protocol-state errors": log at
// info, reply with DISCONNECT if the peer appears ACTIVE, otherwise drop.
// It never tears the connection down itself.
func (d *Dispatcher) protocolError(conn *Conn, event string) {
	d.log.Log(LevelInfo, "protocol error: peer=%s state=%s event=%s", conn.Peer, conn.State(), event)
	if conn.State() == StateActive {
		d.send(conn.Peer, &packet.Disconnect{})
	}
}

func (d *Dispatcher) handleConnect(peer PeerAddr, m *packet.Connect) {
	if m.Duration < CONFIG.MinKeepAlive || m.Duration > CONFIG.MaxKeepAlive {
		d.send(peer, &packet.Connack{Code: packet.RejectedNotSupported})
		return
	}
	_, existed := d.conns.Get(peer)
	conn := d.conns.GetOrCreate(peer)
	if !existed && d.stat != nil {
		d.stat.ConnectionsByState.WithLabelValues(StateDisconnected.String()).Inc()
	}
	conn.SetClientID(m.ClientID)
	conn.SetDuration(m.Duration)
	conn.Touch()

	if m.Flags.Will {
		d.setConnState(conn, StateAwaitingWillTopic)
		d.send(peer, &packet.WillTopicReq{})
		return
	}
	conn.ClearWill()
	d.setConnState(conn, StateActive)
	d.send(peer, &packet.Connack{Code: packet.Accepted})
}

func (d *Dispatcher) handleWillTopic(conn *Conn, m *packet.WillTopic) {
	if conn.State() != StateAwaitingWillTopic {
		d.protocolError(conn, "WILLTOPIC")
		return
	}
	conn.SetWillTopic(m.Topic, byte(m.Flags.QoS), m.Flags.Retain)
	d.setConnState(conn, StateAwaitingWillMsg)
	d.send(conn.Peer, &packet.WillMsgReq{})
}

func (d *Dispatcher) handleWillMsg(conn *Conn, m *packet.WillMsg) {
	if conn.State() != StateAwaitingWillMsg {
		d.protocolError(conn, "WILLMSG")
		return
	}
	conn.SetWillMessage(m.Message)
	d.setConnState(conn, StateActive)
	d.send(conn.Peer, &packet.Connack{Code: packet.Accepted})
}

// handleWillTopicUpdate implements the supplemented WILLTOPICUPD flow
// (SPEC_FULL.md §D): an ACTIVE client replaces its Will topic without a
// full reconnect. An empty topic clears the Will entirely.
func (d *Dispatcher) handleWillTopicUpdate(conn *Conn, m *packet.WillTopicUpdate) {
	if conn.State() != StateActive {
		d.protocolError(conn, "WILLTOPICUPD")
		return
	}
	if m.Topic == "" {
		conn.ClearWill()
	} else {
		conn.SetWillTopic(m.Topic, byte(m.Flags.QoS), m.Flags.Retain)
	}
	d.send(conn.Peer, &packet.WillTopicResp{Code: packet.Accepted})
}

func (d *Dispatcher) handleWillMsgUpdate(conn *Conn, m *packet.WillMsgUpdate) {
	if conn.State() != StateActive {
		d.protocolError(conn, "WILLMSGUPD")
		return
	}
	conn.SetWillMessage(m.Message)
	d.send(conn.Peer, &packet.WillMsgResp{Code: packet.Accepted})
}

func (d *Dispatcher) handleRegister(conn *Conn, m *packet.Register) {
	if id, ok := d.registry.PredefinedID(m.TopicName); ok {
		d.send(conn.Peer, &packet.Regack{TopicID: id, MsgID: m.MsgID, Code: packet.Accepted})
		return
	}

	id, err := d.registry.Intern(m.TopicName)
	if err != nil {
		d.send(conn.Peer, &packet.Regack{TopicID: 0, MsgID: m.MsgID, Code: packet.RejectedCongestion})
		return
	}
	if d.stat != nil {
		d.stat.RegistrySize.Set(float64(d.registry.Size()))
	}
	d.send(conn.Peer, &packet.Regack{TopicID: id, MsgID: m.MsgID, Code: packet.Accepted})
}

// handlePublish implements spec §4.4's QoS 0/1/2 receive flows, dispatched
// by m.Flags.QoS. A PUBLISH from an unknown peer is only valid at QoS 3
// (anonymous, no session) per spec §4.5; any other QoS from an unknown
// peer is dropped.
func (d *Dispatcher) handlePublish(peer PeerAddr, conn *Conn, m *packet.Publish) {
	if conn == nil {
		if m.Flags.QoS != packet.QoSNoSess {
			d.log.Log(LevelInfo, "unknown peer %s PUBLISH at qos=%d, dropping", peer, m.Flags.QoS)
			return
		}
	} else if conn.State() != StateActive && conn.State() != StateAwake {
		d.protocolError(conn, "PUBLISH")
		return
	}

	topicName, topicID := d.resolvePublishTopic(m)
	if m.Flags.Retain {
		d.qos.ApplyRetain(m.TopicID, m.Data, byte(m.Flags.QoS))
	}

	subscribers := d.index.Resolve(topicName, topicID)

	switch m.Flags.QoS {
	case packet.QoS0, packet.QoSNoSess:
		d.qos.HandlePublishQoS0(m, subscribers)
	case packet.QoS1:
		d.qos.HandlePublishQoS1(peer, m, subscribers)
	case packet.QoS2:
		d.qos.HandlePublishQoS2Start(peer, topicName, m, subscribers)
	}
}

// resolvePublishTopic maps m's topic-id field to a registry name (for
// TopicIDNormal) and/or leaves it as a bare numeric id (for
// TopicIDPredefined); a short name has no registry entry so both come
// back empty/as-is.
func (d *Dispatcher) resolvePublishTopic(m *packet.Publish) (name string, id uint16) {
	switch m.Flags.TopicIDType {
	case packet.TopicIDPredefined:
		return "", m.TopicID
	default:
		name, _ = d.registry.Name(m.TopicID)
		return name, m.TopicID
	}
}

// handleSubscribe implements spec §4.3 "Registration": intern the name
// (unless the subscription uses a predefined id), insert the subscription,
// and reply SUBACK echoing the resolved topic id and granted QoS, then
// deliver any retained message.
func (d *Dispatcher) handleSubscribe(conn *Conn, m *packet.Subscribe) {
	if conn.State() != StateActive && conn.State() != StateAwake {
		d.protocolError(conn, "SUBSCRIBE")
		return
	}

	sub := Subscriber{Peer: conn.Peer, QoS: byte(m.Flags.QoS)}

	if m.Flags.TopicIDType == packet.TopicIDPredefined {
		d.index.SubscribePredefined(m.TopicID, sub)
		d.send(conn.Peer, &packet.Suback{Flags: m.Flags, TopicID: m.TopicID, MsgID: m.MsgID, Code: packet.Accepted})
		d.qos.DeliverRetained(sub, m.TopicID)
		return
	}

	if isWildcard(m.TopicName) {
		if !ValidateFilter(m.TopicName) {
			d.send(conn.Peer, &packet.Suback{Flags: m.Flags, TopicID: 0, MsgID: m.MsgID, Code: packet.RejectedInvalidTopic})
			return
		}
		d.index.SubscribeWildcard(m.TopicName, sub)
		d.send(conn.Peer, &packet.Suback{Flags: m.Flags, TopicID: 0, MsgID: m.MsgID, Code: packet.Accepted})
		return
	}

	id, ok := d.registry.PredefinedID(m.TopicName)
	if !ok {
		var err error
		id, err = d.registry.Intern(m.TopicName)
		if err != nil {
			d.send(conn.Peer, &packet.Suback{Flags: m.Flags, TopicID: 0, MsgID: m.MsgID, Code: packet.RejectedCongestion})
			return
		}
		if d.stat != nil {
			d.stat.RegistrySize.Set(float64(d.registry.Size()))
		}
	}
	d.index.SubscribeConcrete(m.TopicName, sub)
	d.send(conn.Peer, &packet.Suback{Flags: m.Flags, TopicID: id, MsgID: m.MsgID, Code: packet.Accepted})
	d.qos.DeliverRetained(sub, id)
}

func (d *Dispatcher) handleUnsubscribe(conn *Conn, m *packet.Unsubscribe) {
	if m.Flags.TopicIDType == packet.TopicIDPredefined {
		d.index.UnsubscribePredefined(m.TopicID, conn.Peer)
	} else {
		d.index.Unsubscribe(m.TopicName, conn.Peer)
	}
	d.send(conn.Peer, &packet.Unsuback{MsgID: m.MsgID})
}

// handlePingreq implements spec §4.2's ACTIVE and ASLEEP PINGREQ rows: an
// ACTIVE peer just gets its keep-alive refreshed (already done in
// HandleDatagram) and a PINGRESP; an ASLEEP peer transitions through
// AWAKE, drains its queue, then returns to ASLEEP.
func (d *Dispatcher) handlePingreq(conn *Conn) {
	if conn.State() == StateAsleep {
		d.setConnState(conn, StateAwake)
		d.qos.DrainAsleep(conn.Peer)
		d.setConnState(conn, StateAsleep)
	}
	d.send(conn.Peer, &packet.Pingresp{})
}

// handleDisconnect implements spec §4.2's two DISCONNECT rows, both of
// which fire only from ACTIVE: no duration tears the connection down
// (after replying DISCONNECT and publishing any Will); a duration instead
// transitions to ASLEEP. A DISCONNECT arriving outside ACTIVE is a
// protocol-state error (spec §7): logged, replied to only if the peer
// still appears ACTIVE (it won't, here), never torn down.
func (d *Dispatcher) handleDisconnect(conn *Conn, m *packet.Disconnect) {
	if conn.State() != StateActive {
		d.protocolError(conn, "DISCONNECT")
		return
	}
	d.send(conn.Peer, &packet.Disconnect{})

	if m.HasDuration {
		conn.SetDuration(m.Duration)
		d.setConnState(conn, StateAsleep)
		return
	}

	d.destroyConnection(conn, true)
}

// destroyConnection tears conn down: cancels its retransmission and
// asleep-queue state, removes it from the subscription index and
// connection table, and, if publishWill is set, routes its Will payload
// to the Will topic's subscribers (spec §4.2 LOST/DISCONNECT rows, §5
// "On connection destruction...").
func (d *Dispatcher) destroyConnection(conn *Conn, publishWill bool) {
	d.setConnState(conn, StateLost)
	d.qos.CleanupPeer(conn.Peer)
	d.index.RemovePeer(conn.Peer)
	d.conns.Remove(conn.Peer)
	if d.stat != nil {
		d.stat.ConnectionsByState.WithLabelValues(StateLost.String()).Dec()
	}

	if !publishWill {
		return
	}
	topic, data, qos, _, ok := conn.Will()
	if !ok {
		return
	}
	id, idOK := d.registry.Lookup(topic)
	if !idOK {
		var err error
		id, err = d.registry.Intern(topic)
		if err != nil {
			d.log.Log(LevelError, "intern will topic %q: %v", topic, err)
			return
		}
	}
	subscribers := d.index.Resolve(topic, 0)
	willPub := &packet.Publish{Flags: packet.Flags{QoS: packet.QoS(qos)}, TopicID: id, Data: data}
	d.qos.fanOut(willPub.TopicID, willPub.Data, subscribers)
}

// CheckTimeouts scans every tracked connection for an expired keep-alive
// or sleep timer and destroys it, publishing its Will (spec §4.2 "keep-alive
// expires", "sleep timer expires"; this is the dispatcher-side half of the
// time-wheel tick — the wheel itself only tracks retransmissions).
func (d *Dispatcher) CheckTimeouts(clk Clock) {
	var expired []*Conn
	d.conns.Range(func(c *Conn) {
		switch c.State() {
		case StateActive, StateAsleep:
			if clk.Now().After(c.KeepAliveDeadline()) {
				expired = append(expired, c)
			}
		}
	})
	for _, c := range expired {
		d.destroyConnection(c, true)
	}
}
