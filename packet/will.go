package packet

// The Will sub-protocol (spec §4.2): after a CONNECT with the WILL flag
// set, the broker requests the Will topic and message in two round-trips
// before issuing CONNACK. WILLTOPICUPD/WILLTOPICRESP/WILLMSGUPD/
// WILLMSGRESP (spec SPEC_FULL.md §D) let an already-ACTIVE client update
// its Will without a full reconnect.

// WillTopicReq carries no payload: it's the broker's prompt for WILLTOPIC.
type WillTopicReq struct{}

func (WillTopicReq) Kind() Kind                       { return WILLTOPICREQ }
func (*WillTopicReq) MarshalPayload() ([]byte, error) { return nil, nil }
func (*WillTopicReq) UnmarshalPayload([]byte) error   { return nil }

// WillTopic is the client's reply: its Will flags (QoS, retain) and topic.
type WillTopic struct {
	Flags Flags
	Topic string
}

func (WillTopic) Kind() Kind { return WILLTOPIC }

func (m *WillTopic) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 1+len(m.Topic))
	out = append(out, m.Flags.Pack())
	out = append(out, m.Topic...)
	return out, nil
}

func (m *WillTopic) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "WILLTOPIC needs >= 1 byte")
	}
	m.Flags = UnpackFlags(b[0])
	m.Topic = string(b[1:])
	return nil
}

// WillMsgReq carries no payload: the broker's prompt for WILLMSG.
type WillMsgReq struct{}

func (WillMsgReq) Kind() Kind                       { return WILLMSGREQ }
func (*WillMsgReq) MarshalPayload() ([]byte, error) { return nil, nil }
func (*WillMsgReq) UnmarshalPayload([]byte) error   { return nil }

// WillMsg is the client's Will payload.
type WillMsg struct {
	Message []byte
}

func (WillMsg) Kind() Kind { return WILLMSG }

func (m *WillMsg) MarshalPayload() ([]byte, error) { return cloneBytes(m.Message), nil }

func (m *WillMsg) UnmarshalPayload(b []byte) error {
	m.Message = cloneBytes(b)
	return nil
}

// WillTopicUpdate lets an ACTIVE client replace its Will topic in place.
// An empty Topic clears the Will. Supplemented feature, SPEC_FULL.md §D.
type WillTopicUpdate struct {
	Flags Flags
	Topic string
}

func (WillTopicUpdate) Kind() Kind { return WILLTOPICUPD }

func (m *WillTopicUpdate) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 1+len(m.Topic))
	out = append(out, m.Flags.Pack())
	out = append(out, m.Topic...)
	return out, nil
}

func (m *WillTopicUpdate) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "WILLTOPICUPD needs >= 1 byte")
	}
	m.Flags = UnpackFlags(b[0])
	m.Topic = string(b[1:])
	return nil
}

// WillTopicResp acknowledges a WILLTOPICUPD.
type WillTopicResp struct{ Code ReturnCode }

func (WillTopicResp) Kind() Kind                         { return WILLTOPICRESP }
func (m *WillTopicResp) MarshalPayload() ([]byte, error) { return []byte{byte(m.Code)}, nil }
func (m *WillTopicResp) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "WILLTOPICRESP needs 1 byte")
	}
	m.Code = ReturnCode(b[0])
	return nil
}

// WillMsgUpdate lets an ACTIVE client replace its Will payload in place.
type WillMsgUpdate struct{ Message []byte }

func (WillMsgUpdate) Kind() Kind { return WILLMSGUPD }

func (m *WillMsgUpdate) MarshalPayload() ([]byte, error) { return cloneBytes(m.Message), nil }
func (m *WillMsgUpdate) UnmarshalPayload(b []byte) error {
	m.Message = cloneBytes(b)
	return nil
}

// WillMsgResp acknowledges a WILLMSGUPD.
type WillMsgResp struct{ Code ReturnCode }

func (WillMsgResp) Kind() Kind                         { return WILLMSGRESP }
func (m *WillMsgResp) MarshalPayload() ([]byte, error) { return []byte{byte(m.Code)}, nil }
func (m *WillMsgResp) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "WILLMSGRESP needs 1 byte")
	}
	m.Code = ReturnCode(b[0])
	return nil
}
