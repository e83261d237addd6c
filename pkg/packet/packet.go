package packet

import (
	"encoding/binary"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
)

const (
	DefaultProtocolId uint32 = 0xC68BB822

	HeaderSize  = 16
	DataLenSize = 4
	MaxDataSize = 1024

	MaxPacketSize = HeaderSize + DataLenSize + MaxDataSize
)

type Type uint8

const (
	Type_Init Type = iota
	Type_ConnectRequest
	Type_ConnectChallenge
	Type_ConnectChallengeResponse
	Type_ConnectAccepted
	Type_ConnectRejected
	Type_Disconnect
	Type_Ping
	Type_Input
	Type_Settings
	Type_State
	Type_Error

	Type_NONE
)

func (t Type) String() string {
	switch t {
	case Type_Init:
		return "INIT"
	case Type_ConnectRequest:
		return "CONNECT_REQUEST"
	case Type_ConnectChallenge:
		return "CONNECT_CHALLENGE"
	case Type_ConnectChallengeResponse:
		return "CONNECT_CHALLENGE_RESP"
	case Type_ConnectAccepted:
		return "CONNECT_ACCEPTED"
	case Type_ConnectRejected:
		return "CONNECT_REJECTED"
	case Type_Disconnect:
		return "DISCONNECT"
	case Type_Ping:
		return "PING"
	case Type_Input:
		return "INPUT"
	case Type_Settings:
		return "SETTINGS"
	case Type_State:
		return "STATE"
	case Type_Error:
		return "ERROR"
	}
	return "UNKNOWN"
}

func (t Type) Valid() bool {
	return t < Type_NONE
}

// Header is laid out exactly like the packed C struct the game has always sent:
// fields in host (little-endian) order followed by three bytes of padding.
type Header struct {
	ProtocolId  uint32
	Sequence    uint16
	Ack         uint16
	AckBitfield uint32
	Type        Type
}

type Packet struct {
	Header Header
	Data   []byte
}

func (p *Packet) Size() int {
	return HeaderSize + DataLenSize + len(p.Data)
}

type Serializer struct {
	ProtocolId uint32
}

func (s Serializer) protocolId() uint32 {
	if s.ProtocolId == 0 {
		return DefaultProtocolId
	}
	return s.ProtocolId
}

// NewPacket stamps the serializer's protocol id onto a fresh packet.
func (s Serializer) NewPacket(t Type, sequence, ack uint16, data []byte) *Packet {
	return &Packet{
		Header: Header{
			ProtocolId: s.protocolId(),
			Sequence:   sequence,
			Ack:        ack,
			Type:       t,
		},
		Data: data,
	}
}

func (s Serializer) Marshal(p *Packet) ([]byte, error) {
	if len(p.Data) > MaxDataSize {
		return nil, &errors.Overrun{
			Operation: "Marshal",
			Offset:    0,
			Size:      len(p.Data),
			Capacity:  MaxDataSize,
		}
	}
	if !p.Header.Type.Valid() {
		return nil, &errors.InvalidEnumValue{
			EnumName: "packet::Type",
			IntValue: uint8(p.Header.Type),
		}
	}

	out := make([]byte, HeaderSize+DataLenSize, p.Size())
	binary.LittleEndian.PutUint32(out[0:4], p.Header.ProtocolId)
	binary.LittleEndian.PutUint16(out[4:6], p.Header.Sequence)
	binary.LittleEndian.PutUint16(out[6:8], p.Header.Ack)
	binary.LittleEndian.PutUint32(out[8:12], p.Header.AckBitfield)
	out[12] = uint8(p.Header.Type)
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(p.Data)))

	return append(out, p.Data...), nil
}

// Parse validates the envelope of a datagram. The protocol id is checked before
// anything else is looked at. The returned packet's Data aliases msg.
func (s Serializer) Parse(msg []byte) (*Packet, error) {
	if len(msg) < 4 {
		return nil, &errors.Underflow{
			MessageName: "Packet::ProtocolId",
			MsgSize:     len(msg),
			MinimumSize: 4,
		}
	}

	protocolId := binary.LittleEndian.Uint32(msg[0:4])
	if protocolId != s.protocolId() {
		return nil, &errors.InvalidHeader{
			ExpectedProtocolId: s.protocolId(),
			ActualProtocolId:   protocolId,
		}
	}

	if len(msg) < HeaderSize+DataLenSize {
		return nil, &errors.Underflow{
			MessageName: "Packet::Header",
			MsgSize:     len(msg),
			MinimumSize: HeaderSize + DataLenSize,
		}
	}

	t := Type(msg[12])
	if !t.Valid() {
		return nil, &errors.InvalidEnumValue{
			EnumName: "packet::Type",
			IntValue: msg[12],
		}
	}

	dataLen := int(binary.LittleEndian.Uint32(msg[16:20]))
	if dataLen > MaxDataSize {
		return nil, &errors.Overrun{
			Operation: "Parse",
			Offset:    HeaderSize + DataLenSize,
			Size:      dataLen,
			Capacity:  MaxDataSize,
		}
	}
	if len(msg) < HeaderSize+DataLenSize+dataLen {
		return nil, &errors.Underflow{
			MessageName: "Packet::Data",
			MsgSize:     len(msg) - HeaderSize - DataLenSize,
			MinimumSize: dataLen,
		}
	}

	return &Packet{
		Header: Header{
			ProtocolId:  protocolId,
			Sequence:    binary.LittleEndian.Uint16(msg[4:6]),
			Ack:         binary.LittleEndian.Uint16(msg[6:8]),
			AckBitfield: binary.LittleEndian.Uint32(msg[8:12]),
			Type:        t,
		},
		Data: msg[HeaderSize+DataLenSize : HeaderSize+DataLenSize+dataLen],
	}, nil
}

// IsSequenceNewer reports whether id comes after cmp on the 16-bit ring.
func IsSequenceNewer(id, cmp uint16) bool {
	if id == cmp {
		return false
	}
	return (id >= cmp && id-cmp <= 32768) || (id <= cmp && cmp-id > 32768)
}
