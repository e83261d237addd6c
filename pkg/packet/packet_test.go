package packet

import (
	"bytes"
	goerrs "errors"
	"testing"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
	"github.com/sessamekesh/arena-netcode/pkg/wire"
)

func TestIsSequenceNewer(t *testing.T) {
	cases := []struct {
		id, cmp uint16
		want    bool
	}{
		{5, 3, true},
		{3, 5, false},
		{1, 65534, true},
		{65534, 1, false},
		{0, 0, false},
		{7, 7, false},
		{65535, 65535, false},
		{32768, 0, true},
		{32769, 0, false},
		{0, 32769, true},
	}

	for _, c := range cases {
		if got := IsSequenceNewer(c.id, c.cmp); got != c.want {
			t.Errorf("IsSequenceNewer(%d, %d) = %v, want %v", c.id, c.cmp, got, c.want)
		}
	}
}

func TestMarshalParseEnvelope(t *testing.T) {
	s := Serializer{}
	pkt := s.NewPacket(Type_Ping, 513, 77, []byte{1, 2, 3})
	pkt.Header.AckBitfield = 0xDEADBEEF

	raw, err := s.Marshal(pkt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(raw) != HeaderSize+DataLenSize+3 {
		t.Fatalf("marshalled size = %d", len(raw))
	}
	if !bytes.Equal(raw[0:4], []byte{0x22, 0xB8, 0x8B, 0xC6}) {
		t.Fatalf("protocol id bytes = % x", raw[0:4])
	}
	if !bytes.Equal(raw[13:16], []byte{0, 0, 0}) {
		t.Fatalf("header padding not zero: % x", raw[13:16])
	}

	parsed, err := s.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Header != pkt.Header {
		t.Fatalf("header mismatch: %+v != %+v", parsed.Header, pkt.Header)
	}
	if !bytes.Equal(parsed.Data, pkt.Data) {
		t.Fatalf("data mismatch: % x", parsed.Data)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	s := Serializer{}
	good, _ := s.Marshal(s.NewPacket(Type_State, 1, 0, []byte{0, 0, 0}))

	t.Run("bad magic", func(t *testing.T) {
		raw := append([]byte(nil), good...)
		raw[0] ^= 0xFF
		_, err := s.Parse(raw)
		var hdrErr *errors.InvalidHeader
		if !goerrs.As(err, &hdrErr) {
			t.Fatalf("expected InvalidHeader, got %v", err)
		}
	})

	t.Run("type out of range", func(t *testing.T) {
		raw := append([]byte(nil), good...)
		raw[12] = uint8(Type_NONE)
		_, err := s.Parse(raw)
		var enumErr *errors.InvalidEnumValue
		if !goerrs.As(err, &enumErr) {
			t.Fatalf("expected InvalidEnumValue, got %v", err)
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := s.Parse(good[:len(good)-1])
		var under *errors.Underflow
		if !goerrs.As(err, &under) {
			t.Fatalf("expected Underflow, got %v", err)
		}
	})

	t.Run("oversized data_len", func(t *testing.T) {
		raw := append([]byte(nil), good...)
		raw[16], raw[17] = 0x01, 0x08 // 2049
		_, err := s.Parse(raw)
		var over *errors.Overrun
		if !goerrs.As(err, &over) {
			t.Fatalf("expected Overrun, got %v", err)
		}
	})

	t.Run("short datagram", func(t *testing.T) {
		if _, err := s.Parse([]byte{1, 2}); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestCustomProtocolId(t *testing.T) {
	a := Serializer{ProtocolId: 0x11223344}
	b := Serializer{}

	raw, err := a.Marshal(a.NewPacket(Type_Init, 0, 0, nil))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Parse(raw); err == nil {
		t.Fatal("default serializer accepted foreign protocol id")
	}
	if _, err := a.Parse(raw); err != nil {
		t.Fatalf("own protocol id rejected: %v", err)
	}
}

func TestHandshakePayloadsArePadded(t *testing.T) {
	for _, p := range []Payload{
		ConnectRequest{ClientSalt: Salt{1, 2, 3, 4, 5, 6, 7, 8}},
		ChallengeResponse{XorSalt: Salt{8, 7, 6, 5, 4, 3, 2, 1}},
	} {
		data, err := Encode(p)
		if err != nil {
			t.Fatalf("%s: %v", p.Type(), err)
		}
		if len(data) != MaxDataSize {
			t.Fatalf("%s payload is %d bytes, want %d", p.Type(), len(data), MaxDataSize)
		}
	}

	data, _ := Encode(ConnectChallenge{})
	if len(data) != 2*SaltSize {
		t.Fatalf("challenge should not be padded, got %d bytes", len(data))
	}
}

func TestStateRoundTrip(t *testing.T) {
	in := State{
		Status: GameStatus_Running,
		Players: []PlayerState{
			{ClientId: 0, Pos: vec.Vec2{X: 10, Y: 20}, Angle: 90, Energy: 50, Hp: 100},
			{ClientId: 3, Pos: vec.Vec2{X: -1.5, Y: 3}, Angle: 359.5, Energy: 0, Hp: 12},
		},
		Projectiles: []ProjectileState{
			{Id: 65535, Pos: vec.Vec2{X: 1, Y: 2}, Angle: 45, OwnerId: 3},
		},
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1+1+2*playerStateSize+1+projectileStateSize {
		t.Fatalf("state payload size = %d", len(data))
	}
	if data[0] != uint8(GameStatus_Running) {
		t.Fatalf("status must be the first byte, got %d", data[0])
	}

	p, err := DecodeFromServer(Type_State, wire.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	out := p.(*State)
	if out.Status != in.Status || len(out.Players) != 2 || len(out.Projectiles) != 1 {
		t.Fatalf("decoded %+v", out)
	}
	for i := range in.Players {
		if out.Players[i] != in.Players[i] {
			t.Errorf("player %d: %+v != %+v", i, out.Players[i], in.Players[i])
		}
	}
	if out.Projectiles[0] != in.Projectiles[0] {
		t.Errorf("projectile: %+v != %+v", out.Projectiles[0], in.Projectiles[0])
	}
}

func TestStateDropsProjectilesThatDoNotFit(t *testing.T) {
	in := State{Projectiles: make([]ProjectileState, 200)}
	for i := range in.Projectiles {
		in.Projectiles[i].Id = uint16(i)
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("oversized state should truncate, not fail: %v", err)
	}
	p, err := DecodeFromServer(Type_State, wire.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	want := (MaxDataSize - 3) / projectileStateSize
	if got := len(p.(*State).Projectiles); got != want {
		t.Fatalf("packed %d projectiles, want %d", got, want)
	}
}

func TestInputWithSaltRoundTrip(t *testing.T) {
	salt := Salt{0xAA, 0xBB, 0xCC, 0xDD, 0x01, 0x02, 0x03, 0x04}
	in := Input{Records: []InputRecord{
		{DeltaTime: 1.0 / 60.0, Actions: 0b101},
		{DeltaTime: 0.02, Actions: 0},
	}}

	data, err := EncodeWithSalt(salt, in)
	if err != nil {
		t.Fatal(err)
	}

	got, err := ReadSalt(data)
	if err != nil || got != salt {
		t.Fatalf("salt prefix = %x (%v)", got, err)
	}

	p, err := DecodeFromClient(Type_Input, wire.NewReaderAt(data, SaltSize))
	if err != nil {
		t.Fatal(err)
	}
	out := p.(*Input)
	if len(out.Records) != 2 || out.Records[0] != in.Records[0] || out.Records[1] != in.Records[1] {
		t.Fatalf("records = %+v", out.Records)
	}
}

func TestInputClaimingTooManyRecordsFails(t *testing.T) {
	data := []byte{200, 0, 0, 0}
	if _, err := DecodeFromClient(Type_Input, wire.NewReader(data)); err == nil {
		t.Fatal("expected underflow for lying record count")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	data, err := Encode(SettingsBroadcast{Entries: []SettingsEntry{
		{ClientId: 2, Settings: Settings{SpriteIndex: 4, Color: 0x00FF00FF, Name: "a-very-long-pilot-name"}},
		{ClientId: 5, Settings: Settings{SpriteIndex: 1, Color: 7, Name: "bo"}},
	}})
	if err != nil {
		t.Fatal(err)
	}

	p, err := DecodeFromServer(Type_Settings, wire.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	out := p.(*SettingsBroadcast)
	if len(out.Entries) != 2 {
		t.Fatalf("entries = %+v", out.Entries)
	}
	if out.Entries[0].Name != "a-very-long-pilo" || out.Entries[0].Color != 0x00FF00FF {
		t.Errorf("entry 0 = %+v", out.Entries[0])
	}
	if out.Entries[1].ClientId != 5 || out.Entries[1].Name != "bo" {
		t.Errorf("entry 1 = %+v", out.Entries[1])
	}
}

func TestDecodeRejectsWrongDirection(t *testing.T) {
	if _, err := DecodeFromClient(Type_State, wire.NewReader(nil)); err == nil {
		t.Fatal("clients never send STATE")
	}
	if _, err := DecodeFromServer(Type_Input, wire.NewReader(nil)); err == nil {
		t.Fatal("servers never send INPUT")
	}
}

func TestSaltXor(t *testing.T) {
	a := Salt{0xFF, 0x00, 0x0F, 0xF0, 1, 2, 3, 4}
	b := Salt{0x0F, 0x0F, 0x0F, 0x0F, 1, 2, 3, 5}
	x := a.Xor(b)
	if x != (Salt{0xF0, 0x0F, 0x00, 0xFF, 0, 0, 0, 1}) {
		t.Fatalf("xor = %x", x)
	}
	if x.Xor(b) != a {
		t.Fatal("xor must be its own inverse")
	}
}
