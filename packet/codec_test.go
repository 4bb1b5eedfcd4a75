package packet

import (
	"bytes"
	"strings"
	"testing"
)

// TestRoundTrip covers spec §8 property 1: decode(encode(v)) == v, for one
// representative value of every message kind the broker core handles.
func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
	}{
		{"CONNECT", &Connect{Flags: Flags{Will: true, CleanSession: true}, Duration: 60, ClientID: []byte("c1")}},
		{"CONNACK", &Connack{Code: Accepted}},
		{"WILLTOPICREQ", &WillTopicReq{}},
		{"WILLTOPIC", &WillTopic{Flags: Flags{QoS: QoS1}, Topic: "alarms"}},
		{"WILLMSGREQ", &WillMsgReq{}},
		{"WILLMSG", &WillMsg{Message: []byte("down")}},
		{"REGISTER", &Register{TopicID: 0, MsgID: 7, TopicName: "sensors/temp"}},
		{"REGACK", &Regack{TopicID: 1, MsgID: 7, Code: Accepted}},
		{"PUBLISH", &Publish{Flags: Flags{QoS: QoS1}, TopicID: 1, MsgID: 42, Data: []byte("25")}},
		{"PUBACK", &Puback{TopicID: 1, MsgID: 42, Code: Accepted}},
		{"PUBREC", &Pubrec{msgIDOnly{MsgID: 99}}},
		{"PUBREL", &Pubrel{msgIDOnly{MsgID: 99}}},
		{"PUBCOMP", &Pubcomp{msgIDOnly{MsgID: 99}}},
		{"SUBSCRIBE", &Subscribe{Flags: Flags{QoS: QoS1}, MsgID: 7, TopicName: "sensors/temp"}},
		{"SUBSCRIBE predefined", &Subscribe{Flags: Flags{QoS: QoS1, TopicIDType: TopicIDPredefined}, MsgID: 8, TopicID: 5}},
		{"SUBACK", &Suback{Flags: Flags{QoS: QoS1}, TopicID: 1, MsgID: 7, Code: Accepted}},
		{"UNSUBSCRIBE", &Unsubscribe{MsgID: 9, TopicName: "sensors/temp"}},
		{"UNSUBACK", &Unsuback{MsgID: 9}},
		{"PINGREQ", &Pingreq{ClientID: []byte("c1")}},
		{"PINGREQ empty", &Pingreq{}},
		{"PINGRESP", &Pingresp{}},
		{"DISCONNECT", &Disconnect{}},
		{"DISCONNECT with duration", &Disconnect{HasDuration: true, Duration: 30}},
		{"ADVERTISE", &Advertise{GwID: 1, Duration: 900}},
		{"SEARCHGW", &SearchGw{Radius: 1}},
		{"GWINFO", &GwInfo{GwID: 1}},
		{"WILLTOPICUPD", &WillTopicUpdate{Flags: Flags{QoS: QoS1}, Topic: "alarms"}},
		{"WILLTOPICRESP", &WillTopicResp{Code: Accepted}},
		{"WILLMSGUPD", &WillMsgUpdate{Message: []byte("down")}},
		{"WILLMSGRESP", &WillMsgResp{Code: Accepted}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.Kind() != tc.msg.Kind() {
				t.Fatalf("kind mismatch: got %v want %v", decoded.Kind(), tc.msg.Kind())
			}
			rePacked, err := Encode(decoded)
			if err != nil {
				t.Fatalf("re-Encode: %v", err)
			}
			if !bytes.Equal(rePacked, encoded) {
				t.Fatalf("round trip mismatch:\n got  % x\n want % x", rePacked, encoded)
			}
		})
	}
}

// TestLengthPrefixCompatibility covers spec §8 property 2: a frame of
// total length 2..255 encodes with the one-byte prefix, and 256..65535
// encodes with the 0x01-tagged three-byte prefix; the decoder accepts
// both without needing to know in advance which form it'll see.
func TestLengthPrefixCompatibility(t *testing.T) {
	short := &Publish{TopicID: 1, MsgID: 1, Data: []byte("x")}
	encoded, err := Encode(short)
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] == 0x01 {
		t.Fatalf("short frame (%d bytes) should not use the long prefix", len(encoded))
	}
	if int(encoded[0]) != len(encoded) {
		t.Fatalf("short prefix byte = %d, want %d", encoded[0], len(encoded))
	}

	long := &Publish{TopicID: 1, MsgID: 1, Data: bytes.Repeat([]byte("x"), 300)}
	encoded, err = Encode(long)
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != 0x01 {
		t.Fatalf("long frame (%d bytes) should use the 0x01 prefix, got %#x", len(encoded), encoded[0])
	}
	hdr, _, err := DecodeHeader(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.Len != len(encoded) {
		t.Fatalf("decoded length = %d, want %d", hdr.Len, len(encoded))
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode long frame: %v", err)
	}
	if pub, ok := decoded.(*Publish); !ok || len(pub.Data) != 300 {
		t.Fatalf("long frame payload not preserved: %#v", decoded)
	}
}

func TestDecodeHeaderLenMismatch(t *testing.T) {
	buf := []byte{5, byte(PINGREQ), 1, 2} // declares 5, actual 4
	_, _, err := DecodeHeader(buf)
	if !strings.Contains(err.Error(), ErrLenMismatch.Error()) {
		t.Fatalf("expected ErrLenMismatch, got %v", err)
	}
}

func TestDecodeBadType(t *testing.T) {
	buf := []byte{2, 0x7F} // unknown type
	_, err := Decode(buf)
	if err != ErrBadType {
		t.Fatalf("expected ErrBadType, got %v", err)
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	if _, _, err := DecodeHeader([]byte{1}); err != ErrFrameTooShort {
		t.Fatalf("expected ErrFrameTooShort, got %v", err)
	}
}
