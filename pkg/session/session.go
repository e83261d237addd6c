package session

import (
	"net/netip"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
)

type ConnectionState uint8

const (
	ConnectionState_Disconnected ConnectionState = iota
	ConnectionState_SendingConnectionRequest
	ConnectionState_SendingChallengeResponse
	ConnectionState_Connected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionState_Disconnected:
		return "DISCONNECTED"
	case ConnectionState_SendingConnectionRequest:
		return "SENDING_CONNECTION_REQUEST"
	case ConnectionState_SendingChallengeResponse:
		return "SENDING_CHALLENGE_RESPONSE"
	case ConnectionState_Connected:
		return "CONNECTED"
	}
	return "UNKNOWN"
}

// DisconnectRepeat is how many times a DISCONNECT is sent, each with its own
// sequence number, since nothing acknowledges it.
const DisconnectRepeat = 3

// Session is one end of a connection as seen by its owner. A session is owned
// by exactly one goroutine and is not safe for concurrent use.
type Session struct {
	Addr  netip.AddrPort
	State ConnectionState

	LocalSequence  uint16
	RemoteSequence uint16
	hasRemote      bool

	LastAccepted time.Time

	ClientSalt packet.Salt
	ServerSalt packet.Salt
	XorSalt    packet.Salt
}

func New(addr netip.AddrPort) *Session {
	return &Session{Addr: addr}
}

// Reset returns the session to Disconnected and forgets every salt and
// sequence. The address is kept.
func (s *Session) Reset() {
	addr := s.Addr
	*s = Session{Addr: addr}
}

// NextSequence returns the sequence id for the next outgoing packet.
func (s *Session) NextSequence() uint16 {
	seq := s.LocalSequence
	s.LocalSequence++
	return seq
}

// SetSalts stores both halves of the handshake and derives the xor salt.
func (s *Session) SetSalts(client, server packet.Salt) {
	s.ClientSalt = client
	s.ServerSalt = server
	s.XorSalt = client.Xor(server)
}

// AcceptSequence records seq as the newest remote sequence, or reports it as
// stale when it is not newer than the last one accepted. The first packet of a
// session is always accepted.
func (s *Session) AcceptSequence(seq uint16, now time.Time) error {
	if s.hasRemote && !packet.IsSequenceNewer(seq, s.RemoteSequence) {
		return &errors.StaleSequence{Sequence: seq, Latest: s.RemoteSequence}
	}
	s.RemoteSequence = seq
	s.hasRemote = true
	s.LastAccepted = now
	return nil
}

// Touch refreshes the idle timer without touching sequence state.
func (s *Session) Touch(now time.Time) {
	s.LastAccepted = now
}

func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastAccepted)
}

// Authenticate checks a client packet against this session's salts.
//
// CONNECT_REQUEST and CONNECT_CHALLENGE_RESP must carry a full padded payload.
// The challenge response must carry the xor salt; every later packet must be
// prefixed by it.
func (s *Session) Authenticate(pkt *packet.Packet) error {
	t := pkt.Header.Type

	switch t {
	case packet.Type_ConnectRequest:
		return checkPadding(pkt)
	case packet.Type_ConnectChallengeResponse:
		if err := checkPadding(pkt); err != nil {
			return err
		}
	}

	salt, err := packet.ReadSalt(pkt.Data)
	if err != nil {
		return err
	}
	if s.XorSalt.IsZero() || salt != s.XorSalt {
		return &errors.AuthenticationFailed{MessageName: t.String()}
	}
	return nil
}

func checkPadding(pkt *packet.Packet) error {
	if len(pkt.Data) != packet.MaxDataSize {
		return &errors.InvalidPadding{
			MessageName: pkt.Header.Type.String(),
			DataLen:     len(pkt.Data),
			Required:    packet.MaxDataSize,
		}
	}
	return nil
}
