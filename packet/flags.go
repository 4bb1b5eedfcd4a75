package packet

// Flags is the packed flags octet carried by CONNECT, WILLTOPIC, PUBLISH,
// SUBSCRIBE, SUBACK, and UNSUBSCRIBE. Bit layout (bit 7 -> bit 0), per
// spec §4.1:
//
//	DUP(1) QoS(2) RETAIN(1) WILL(1) CLEAN_SESSION(1) TOPIC_ID_TYPE(2)
type Flags struct {
	Dup          bool
	QoS          QoS
	Retain       bool
	Will         bool
	CleanSession bool
	TopicIDType  TopicIDType
}

func (f Flags) Pack() byte {
	var b byte
	if f.Dup {
		b |= 1 << 7
	}
	b |= byte(f.QoS&0x03) << 5
	if f.Retain {
		b |= 1 << 4
	}
	if f.Will {
		b |= 1 << 3
	}
	if f.CleanSession {
		b |= 1 << 2
	}
	b |= byte(f.TopicIDType & 0x03)
	return b
}

func UnpackFlags(b byte) Flags {
	return Flags{
		Dup:          b&(1<<7) != 0,
		QoS:          QoS(b>>5) & 0x03,
		Retain:       b&(1<<4) != 0,
		Will:         b&(1<<3) != 0,
		CleanSession: b&(1<<2) != 0,
		TopicIDType:  TopicIDType(b & 0x03),
	}
}
