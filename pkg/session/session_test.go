package session

import (
	goerrs "errors"
	"net/netip"
	"testing"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
)

var testAddr = netip.MustParseAddrPort("10.0.0.2:40000")

func mustPacket(t *testing.T, typ packet.Type, seq uint16, p packet.Payload, salt *packet.Salt) *packet.Packet {
	t.Helper()
	var data []byte
	var err error
	if salt != nil {
		data, err = packet.EncodeWithSalt(*salt, p)
	} else {
		data, err = packet.Encode(p)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	return packet.Serializer{}.NewPacket(typ, seq, 0, data)
}

func TestConnectionStateString(t *testing.T) {
	if ConnectionState_Connected.String() != "CONNECTED" {
		t.Fatal(ConnectionState_Connected.String())
	}
	if ConnectionState(99).String() != "UNKNOWN" {
		t.Fatal("out of range state should be UNKNOWN")
	}
}

func TestAcceptSequence(t *testing.T) {
	s := New(testAddr)
	now := time.Unix(100, 0)

	if err := s.AcceptSequence(65534, now); err != nil {
		t.Fatalf("first packet must be accepted: %v", err)
	}
	if err := s.AcceptSequence(1, now.Add(time.Second)); err != nil {
		t.Fatalf("wrapped sequence must be accepted: %v", err)
	}
	if !s.LastAccepted.Equal(now.Add(time.Second)) {
		t.Fatalf("last accepted time not updated: %v", s.LastAccepted)
	}

	for _, stale := range []uint16{1, 0, 65534} {
		err := s.AcceptSequence(stale, now.Add(2*time.Second))
		var staleErr *errors.StaleSequence
		if !goerrs.As(err, &staleErr) {
			t.Fatalf("seq %d: expected StaleSequence, got %v", stale, err)
		}
	}
	if !s.LastAccepted.Equal(now.Add(time.Second)) {
		t.Fatal("stale packet must not refresh the idle timer")
	}
}

func TestNextSequenceWraps(t *testing.T) {
	s := New(testAddr)
	s.LocalSequence = 65535
	if got := s.NextSequence(); got != 65535 {
		t.Fatalf("got %d", got)
	}
	if got := s.NextSequence(); got != 0 {
		t.Fatalf("got %d after wrap", got)
	}
}

func TestResetKeepsAddress(t *testing.T) {
	s := New(testAddr)
	s.State = ConnectionState_Connected
	s.SetSalts(packet.Salt{1}, packet.Salt{2})
	_ = s.AcceptSequence(10, time.Now())
	s.Reset()

	if s.Addr != testAddr || s.State != ConnectionState_Disconnected || !s.XorSalt.IsZero() {
		t.Fatalf("reset left state behind: %+v", s)
	}
	if err := s.AcceptSequence(3, time.Now()); err != nil {
		t.Fatalf("sequence history must be cleared: %v", err)
	}
}

func TestAuthenticateConnectRequestPadding(t *testing.T) {
	s := New(testAddr)

	good := mustPacket(t, packet.Type_ConnectRequest, 0, packet.ConnectRequest{}, nil)
	if err := s.Authenticate(good); err != nil {
		t.Fatalf("padded request rejected: %v", err)
	}

	short := packet.Serializer{}.NewPacket(packet.Type_ConnectRequest, 0, 0, make([]byte, packet.SaltSize))
	var padErr *errors.InvalidPadding
	if err := s.Authenticate(short); !goerrs.As(err, &padErr) {
		t.Fatalf("expected InvalidPadding, got %v", err)
	}
}

func TestAuthenticateChallengeResponse(t *testing.T) {
	s := New(testAddr)
	s.SetSalts(packet.Salt{1, 2, 3, 4, 5, 6, 7, 8}, packet.Salt{9, 9, 9, 9, 9, 9, 9, 9})

	good := mustPacket(t, packet.Type_ConnectChallengeResponse, 0, packet.ChallengeResponse{XorSalt: s.XorSalt}, nil)
	if err := s.Authenticate(good); err != nil {
		t.Fatalf("valid response rejected: %v", err)
	}

	bad := mustPacket(t, packet.Type_ConnectChallengeResponse, 0, packet.ChallengeResponse{XorSalt: s.ClientSalt}, nil)
	var authErr *errors.AuthenticationFailed
	if err := s.Authenticate(bad); !goerrs.As(err, &authErr) {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}

	short := packet.Serializer{}.NewPacket(packet.Type_ConnectChallengeResponse, 0, 0, s.XorSalt[:])
	var padErr *errors.InvalidPadding
	if err := s.Authenticate(short); !goerrs.As(err, &padErr) {
		t.Fatalf("expected InvalidPadding, got %v", err)
	}
}

func TestAuthenticateSaltedPayloads(t *testing.T) {
	s := New(testAddr)

	unsalted := mustPacket(t, packet.Type_Ping, 1, packet.Ping{}, &packet.Salt{})
	if err := s.Authenticate(unsalted); err == nil {
		t.Fatal("a session without salts must not authenticate anything")
	}

	s.SetSalts(packet.Salt{0xAA}, packet.Salt{0x55})
	salt := s.XorSalt
	if err := s.Authenticate(mustPacket(t, packet.Type_Ping, 1, packet.Ping{}, &salt)); err != nil {
		t.Fatalf("salted ping rejected: %v", err)
	}

	wrong := salt
	wrong[7] ^= 1
	if err := s.Authenticate(mustPacket(t, packet.Type_Input, 2, packet.Input{}, &wrong)); err == nil {
		t.Fatal("wrong salt accepted")
	}

	empty := packet.Serializer{}.NewPacket(packet.Type_Disconnect, 3, 0, nil)
	var under *errors.Underflow
	if err := s.Authenticate(empty); !goerrs.As(err, &under) {
		t.Fatalf("expected Underflow for missing salt, got %v", err)
	}
}

func TestRetry(t *testing.T) {
	r := NewRetry(RetryPolicy{Interval: time.Second, MaxAttempts: 2})
	now := time.Unix(0, 0)

	if r.Expired(now) {
		t.Fatal("nothing was attempted yet")
	}

	r.Begin(now)
	if r.Expired(now.Add(999 * time.Millisecond)) {
		t.Fatal("expired early")
	}
	if !r.Expired(now.Add(time.Second)) {
		t.Fatal("should expire at the interval")
	}
	if r.Exhausted() {
		t.Fatal("one attempt of two used")
	}

	r.Begin(now.Add(time.Second))
	if !r.Exhausted() {
		t.Fatal("both attempts used")
	}

	r.Reset()
	if r.Attempts() != 0 || r.Exhausted() {
		t.Fatal("reset did not clear attempts")
	}
}

func TestRetryUnbounded(t *testing.T) {
	r := NewRetry(RetryPolicy{})
	for i := 0; i < 100; i++ {
		r.Begin(time.Unix(int64(i), 0))
	}
	if r.Exhausted() {
		t.Fatal("MaxAttempts 0 must never give up")
	}
	if r.Policy.Interval != DefaultHandshakePolicy.Interval {
		t.Fatalf("zero interval should default, got %v", r.Policy.Interval)
	}
}
