package packet

import (
	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
	"github.com/sessamekesh/arena-netcode/pkg/wire"
)

const (
	SaltSize = 8

	MaxClients      = 8
	MaxInputRecords = 16
	PlayerNameMax   = 16

	inputRecordSize     = 12
	playerStateSize     = 21
	projectileStateSize = 15
)

type Salt [SaltSize]byte

func (s Salt) Xor(o Salt) Salt {
	var out Salt
	for i := range s {
		out[i] = s[i] ^ o[i]
	}
	return out
}

func (s Salt) IsZero() bool {
	return s == Salt{}
}

type RejectReason uint8

const (
	RejectReason_ServerFull RejectReason = iota
	RejectReason_InvalidPacket
	RejectReason_FailedChallenge
)

func (r RejectReason) String() string {
	switch r {
	case RejectReason_ServerFull:
		return "SERVER FULL"
	case RejectReason_InvalidPacket:
		return "INVALID PACKET FORMAT"
	case RejectReason_FailedChallenge:
		return "FAILED CHALLENGE"
	}
	return "UNKNOWN"
}

type GameStatus uint8

const (
	GameStatus_Limbo GameStatus = iota
	GameStatus_Running
	GameStatus_Complete

	GameStatus_NONE
)

func (g GameStatus) String() string {
	switch g {
	case GameStatus_Limbo:
		return "LIMBO"
	case GameStatus_Running:
		return "RUNNING"
	case GameStatus_Complete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

type ErrorCode uint8

const (
	ErrorCode_None ErrorCode = iota
	ErrorCode_BadFormat
	ErrorCode_Invalid
)

// Payload is one variant of the packet body, keyed by its packet type.
type Payload interface {
	Type() Type
	encode(w *wire.Writer)
}

type Init struct{}

type ConnectRequest struct {
	ClientSalt Salt
}

type ConnectChallenge struct {
	ClientSalt Salt
	ServerSalt Salt
}

type ChallengeResponse struct {
	XorSalt Salt
}

type ConnectAccepted struct {
	ClientId uint8
}

type ConnectRejected struct {
	Reason RejectReason
}

type Disconnect struct{}

type Ping struct{}

type InputRecord struct {
	DeltaTime float64
	Actions   uint32
}

type Input struct {
	Records []InputRecord
}

type Settings struct {
	SpriteIndex uint8
	Color       uint32
	Name        string
}

type SettingsEntry struct {
	ClientId uint8
	Settings
}

type SettingsBroadcast struct {
	Entries []SettingsEntry
}

type PlayerState struct {
	ClientId uint8
	Pos      vec.Vec2
	Angle    float32
	Energy   float32
	Hp       float32
}

type ProjectileState struct {
	Id      uint16
	Pos     vec.Vec2
	Angle   float32
	OwnerId uint8
}

type State struct {
	Status      GameStatus
	Players     []PlayerState
	Projectiles []ProjectileState
}

type Error struct {
	Code ErrorCode
}

func (Init) Type() Type              { return Type_Init }
func (ConnectRequest) Type() Type    { return Type_ConnectRequest }
func (ConnectChallenge) Type() Type  { return Type_ConnectChallenge }
func (ChallengeResponse) Type() Type { return Type_ConnectChallengeResponse }
func (ConnectAccepted) Type() Type   { return Type_ConnectAccepted }
func (ConnectRejected) Type() Type   { return Type_ConnectRejected }
func (Disconnect) Type() Type        { return Type_Disconnect }
func (Ping) Type() Type              { return Type_Ping }
func (Input) Type() Type             { return Type_Input }
func (Settings) Type() Type          { return Type_Settings }
func (SettingsBroadcast) Type() Type { return Type_Settings }
func (State) Type() Type             { return Type_State }
func (Error) Type() Type             { return Type_Error }

func (Init) encode(_ *wire.Writer) {}

// Connection requests are padded out to the full payload so the server never
// answers with more bytes than it was sent.
func (m ConnectRequest) encode(w *wire.Writer) {
	w.PutBytes(m.ClientSalt[:])
	w.Pad(MaxDataSize)
}

func (m ConnectChallenge) encode(w *wire.Writer) {
	w.PutBytes(m.ClientSalt[:])
	w.PutBytes(m.ServerSalt[:])
}

func (m ChallengeResponse) encode(w *wire.Writer) {
	w.PutBytes(m.XorSalt[:])
	w.Pad(MaxDataSize)
}

func (m ConnectAccepted) encode(w *wire.Writer) {
	w.PutU8(m.ClientId)
}

func (m ConnectRejected) encode(w *wire.Writer) {
	w.PutU8(uint8(m.Reason))
}

func (Disconnect) encode(_ *wire.Writer) {}

func (Ping) encode(_ *wire.Writer) {}

func (m Input) encode(w *wire.Writer) {
	w.PutU8(uint8(len(m.Records)))
	for _, rec := range m.Records {
		w.PutF64(rec.DeltaTime)
		w.PutU32(rec.Actions)
	}
}

func (m Settings) encode(w *wire.Writer) {
	w.PutU8(m.SpriteIndex)
	w.PutU32(m.Color)
	w.PutString(m.Name, PlayerNameMax)
}

func (m SettingsBroadcast) encode(w *wire.Writer) {
	w.PutU8(uint8(len(m.Entries)))
	for _, e := range m.Entries {
		w.PutU8(e.ClientId)
		e.Settings.encode(w)
	}
}

// Projectiles that do not fit in the remaining payload are left out, and the
// count reflects what was actually packed.
func (m State) encode(w *wire.Writer) {
	w.PutU8(uint8(m.Status))
	w.PutU8(uint8(len(m.Players)))
	for _, p := range m.Players {
		w.PutU8(p.ClientId)
		w.PutVec2(p.Pos)
		w.PutF32(p.Angle)
		w.PutF32(p.Energy)
		w.PutF32(p.Hp)
	}

	count := len(m.Projectiles)
	if fit := (w.Remaining() - 1) / projectileStateSize; count > fit {
		count = max(fit, 0)
	}
	count = min(count, 255)
	w.PutU8(uint8(count))
	for _, p := range m.Projectiles[:count] {
		w.PutU16(p.Id)
		w.PutVec2(p.Pos)
		w.PutF32(p.Angle)
		w.PutU8(p.OwnerId)
	}
}

func (m Error) encode(w *wire.Writer) {
	w.PutU8(uint8(m.Code))
}

// Encode packs a payload into a fresh MaxDataSize buffer.
func Encode(p Payload) ([]byte, error) {
	w := wire.NewWriter(make([]byte, MaxDataSize))
	p.encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// EncodeWithSalt prefixes the payload with the session's xor salt, which every
// client packet after the handshake has to carry.
func EncodeWithSalt(salt Salt, p Payload) ([]byte, error) {
	w := wire.NewWriter(make([]byte, MaxDataSize))
	w.PutBytes(salt[:])
	p.encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ReadSalt returns the leading salt of a payload.
func ReadSalt(data []byte) (Salt, error) {
	var s Salt
	if len(data) < SaltSize {
		return s, &errors.Underflow{
			MessageName: "Payload::Salt",
			MsgSize:     len(data),
			MinimumSize: SaltSize,
		}
	}
	copy(s[:], data[:SaltSize])
	return s, nil
}

func decodeConnectRequest(r *wire.Reader) (*ConnectRequest, error) {
	m := &ConnectRequest{}
	r.Bytes(m.ClientSalt[:])
	return m, r.Err()
}

func decodeConnectChallenge(r *wire.Reader) (*ConnectChallenge, error) {
	m := &ConnectChallenge{}
	r.Bytes(m.ClientSalt[:])
	r.Bytes(m.ServerSalt[:])
	return m, r.Err()
}

func decodeChallengeResponse(r *wire.Reader) (*ChallengeResponse, error) {
	m := &ChallengeResponse{}
	r.Bytes(m.XorSalt[:])
	return m, r.Err()
}

func decodeConnectAccepted(r *wire.Reader) (*ConnectAccepted, error) {
	m := &ConnectAccepted{ClientId: r.U8()}
	return m, r.Err()
}

func decodeConnectRejected(r *wire.Reader) (*ConnectRejected, error) {
	m := &ConnectRejected{Reason: RejectReason(r.U8())}
	return m, r.Err()
}

func decodeInput(r *wire.Reader) (*Input, error) {
	count := int(r.U8())
	if count*inputRecordSize > r.Remaining() {
		return nil, &errors.Underflow{
			MessageName: "Input::Records",
			MsgSize:     r.Remaining(),
			MinimumSize: count * inputRecordSize,
		}
	}
	m := &Input{Records: make([]InputRecord, 0, count)}
	for i := 0; i < count; i++ {
		m.Records = append(m.Records, InputRecord{
			DeltaTime: r.F64(),
			Actions:   r.U32(),
		})
	}
	return m, r.Err()
}

func decodeSettings(r *wire.Reader) (*Settings, error) {
	m := &Settings{
		SpriteIndex: r.U8(),
		Color:       r.U32(),
	}
	m.Name, _ = r.String(PlayerNameMax)
	return m, r.Err()
}

func decodeSettingsBroadcast(r *wire.Reader) (*SettingsBroadcast, error) {
	count := int(r.U8())
	m := &SettingsBroadcast{}
	for i := 0; i < count; i++ {
		e := SettingsEntry{ClientId: r.U8()}
		s, err := decodeSettings(r)
		if err != nil {
			return nil, err
		}
		e.Settings = *s
		m.Entries = append(m.Entries, e)
	}
	return m, r.Err()
}

func decodeState(r *wire.Reader) (*State, error) {
	m := &State{}
	status := r.U8()
	if status >= uint8(GameStatus_NONE) {
		return nil, &errors.InvalidEnumValue{
			EnumName: "packet::GameStatus",
			IntValue: status,
		}
	}
	m.Status = GameStatus(status)

	playerCount := int(r.U8())
	if playerCount*playerStateSize > r.Remaining() {
		return nil, &errors.Underflow{
			MessageName: "State::Players",
			MsgSize:     r.Remaining(),
			MinimumSize: playerCount * playerStateSize,
		}
	}
	m.Players = make([]PlayerState, 0, playerCount)
	for i := 0; i < playerCount; i++ {
		m.Players = append(m.Players, PlayerState{
			ClientId: r.U8(),
			Pos:      r.Vec2(),
			Angle:    r.F32(),
			Energy:   r.F32(),
			Hp:       r.F32(),
		})
	}

	projectileCount := int(r.U8())
	if projectileCount*projectileStateSize > r.Remaining() {
		return nil, &errors.Underflow{
			MessageName: "State::Projectiles",
			MsgSize:     r.Remaining(),
			MinimumSize: projectileCount * projectileStateSize,
		}
	}
	m.Projectiles = make([]ProjectileState, 0, projectileCount)
	for i := 0; i < projectileCount; i++ {
		m.Projectiles = append(m.Projectiles, ProjectileState{
			Id:      r.U16(),
			Pos:     r.Vec2(),
			Angle:   r.F32(),
			OwnerId: r.U8(),
		})
	}
	return m, r.Err()
}

func decodeError(r *wire.Reader) (*Error, error) {
	m := &Error{Code: ErrorCode(r.U8())}
	return m, r.Err()
}

// DecodeFromClient decodes a body sent by a client into a pointer to its
// variant. r must already be past the salt prefix for packet types that carry
// one.
func DecodeFromClient(t Type, r *wire.Reader) (Payload, error) {
	var p Payload
	var err error

	switch t {
	case Type_ConnectRequest:
		p, err = decodeConnectRequest(r)
	case Type_ConnectChallengeResponse:
		p, err = decodeChallengeResponse(r)
	case Type_Disconnect:
		p, err = &Disconnect{}, r.Err()
	case Type_Ping:
		p, err = &Ping{}, r.Err()
	case Type_Input:
		p, err = decodeInput(r)
	case Type_Settings:
		p, err = decodeSettings(r)
	case Type_Init:
		p, err = &Init{}, r.Err()
	default:
		return nil, &errors.InvalidEnumValue{
			EnumName: "packet::Type (client)",
			IntValue: uint8(t),
		}
	}

	if err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeFromServer decodes a body sent by the server into a pointer to its
// variant.
func DecodeFromServer(t Type, r *wire.Reader) (Payload, error) {
	var p Payload
	var err error

	switch t {
	case Type_ConnectChallenge:
		p, err = decodeConnectChallenge(r)
	case Type_ConnectAccepted:
		p, err = decodeConnectAccepted(r)
	case Type_ConnectRejected:
		p, err = decodeConnectRejected(r)
	case Type_Disconnect:
		p, err = &Disconnect{}, r.Err()
	case Type_Ping:
		p, err = &Ping{}, r.Err()
	case Type_Settings:
		p, err = decodeSettingsBroadcast(r)
	case Type_State:
		p, err = decodeState(r)
	case Type_Error:
		p, err = decodeError(r)
	case Type_Init:
		p, err = &Init{}, r.Err()
	default:
		return nil, &errors.InvalidEnumValue{
			EnumName: "packet::Type (server)",
			IntValue: uint8(t),
		}
	}

	if err != nil {
		return nil, err
	}
	return p, nil
}
