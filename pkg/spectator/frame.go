package spectator

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/server"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

// Wire layout of a spectator frame, as a FlatBuffers schema:
//
//	table Player     { client_id:ubyte; x:float; y:float; angle:float; energy:float; hp:float; name:string; color:uint; sprite:ubyte; }
//	table Projectile { id:ushort; x:float; y:float; angle:float; owner:ubyte; }
//	table Frame      { tick:ulong; time_ms:long; status:ubyte; players:[Player]; projectiles:[Projectile]; }
//	root_type Frame;

const (
	frameTick = iota
	frameTimeMs
	frameStatus
	framePlayers
	frameProjectiles
	frameFieldCount
)

const (
	playerClientId = iota
	playerX
	playerY
	playerAngle
	playerEnergy
	playerHp
	playerName
	playerColor
	playerSprite
	playerFieldCount
)

const (
	projectileId = iota
	projectileX
	projectileY
	projectileAngle
	projectileOwner
	projectileFieldCount
)

type FramePlayer struct {
	ClientId    uint8
	Pos         vec.Vec2
	Angle       float32
	Energy      float32
	Hp          float32
	Name        string
	Color       uint32
	SpriteIndex uint8
}

type FrameProjectile struct {
	Id      uint16
	Pos     vec.Vec2
	Angle   float32
	OwnerId uint8
}

// Frame is the decoded form of one spectator message.
type Frame struct {
	Tick        uint64
	TimeMs      int64
	Status      packet.GameStatus
	Players     []FramePlayer
	Projectiles []FrameProjectile
}

// EncodeFrame serializes a snapshot into b and returns the finished bytes.
// The result aliases b's buffer and is invalidated by the next use of b.
func EncodeFrame(b *flatbuffers.Builder, snap server.Snapshot) []byte {
	b.Reset()

	settings := make(map[uint8]packet.Settings, len(snap.Settings))
	for _, e := range snap.Settings {
		settings[e.ClientId] = e.Settings
	}

	playerOffsets := make([]flatbuffers.UOffsetT, len(snap.State.Players))
	for i, p := range snap.State.Players {
		s := settings[p.ClientId]
		var name flatbuffers.UOffsetT
		if s.Name != "" {
			name = b.CreateString(s.Name)
		}
		b.StartObject(playerFieldCount)
		b.PrependUint8Slot(playerClientId, p.ClientId, 0)
		b.PrependFloat32Slot(playerX, p.Pos.X, 0)
		b.PrependFloat32Slot(playerY, p.Pos.Y, 0)
		b.PrependFloat32Slot(playerAngle, p.Angle, 0)
		b.PrependFloat32Slot(playerEnergy, p.Energy, 0)
		b.PrependFloat32Slot(playerHp, p.Hp, 0)
		b.PrependUOffsetTSlot(playerName, name, 0)
		b.PrependUint32Slot(playerColor, s.Color, 0)
		b.PrependUint8Slot(playerSprite, s.SpriteIndex, 0)
		playerOffsets[i] = b.EndObject()
	}
	players := prependOffsets(b, playerOffsets)

	projectileOffsets := make([]flatbuffers.UOffsetT, len(snap.State.Projectiles))
	for i, p := range snap.State.Projectiles {
		b.StartObject(projectileFieldCount)
		b.PrependUint16Slot(projectileId, p.Id, 0)
		b.PrependFloat32Slot(projectileX, p.Pos.X, 0)
		b.PrependFloat32Slot(projectileY, p.Pos.Y, 0)
		b.PrependFloat32Slot(projectileAngle, p.Angle, 0)
		b.PrependUint8Slot(projectileOwner, p.OwnerId, 0)
		projectileOffsets[i] = b.EndObject()
	}
	projectiles := prependOffsets(b, projectileOffsets)

	b.StartObject(frameFieldCount)
	b.PrependUint64Slot(frameTick, snap.Tick, 0)
	b.PrependInt64Slot(frameTimeMs, snap.Time.UnixMilli(), 0)
	b.PrependUint8Slot(frameStatus, uint8(snap.State.Status), 0)
	b.PrependUOffsetTSlot(framePlayers, players, 0)
	b.PrependUOffsetTSlot(frameProjectiles, projectiles, 0)
	b.Finish(b.EndObject())

	return b.FinishedBytes()
}

func prependOffsets(b *flatbuffers.Builder, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(flatbuffers.SizeUOffsetT, len(offsets), flatbuffers.SizeUOffsetT)
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	return b.EndVector(len(offsets))
}

// DecodeFrame reads a frame produced by EncodeFrame. FlatBuffers accessors
// panic on truncated input, so that is turned into an error here.
func DecodeFrame(buf []byte) (frame Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			frame = Frame{}
			err = fmt.Errorf("deformed spectator frame: %v", r)
		}
	}()

	if len(buf) < flatbuffers.SizeUOffsetT {
		return Frame{}, fmt.Errorf("deformed spectator frame: %d bytes", len(buf))
	}

	root := &flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}
	frame.Tick = fieldUint64(root, frameTick)
	frame.TimeMs = int64(fieldUint64(root, frameTimeMs))
	frame.Status = packet.GameStatus(fieldUint8(root, frameStatus))

	for _, t := range fieldTables(root, framePlayers) {
		frame.Players = append(frame.Players, FramePlayer{
			ClientId:    fieldUint8(t, playerClientId),
			Pos:         vec.Vec2{X: fieldFloat32(t, playerX), Y: fieldFloat32(t, playerY)},
			Angle:       fieldFloat32(t, playerAngle),
			Energy:      fieldFloat32(t, playerEnergy),
			Hp:          fieldFloat32(t, playerHp),
			Name:        fieldString(t, playerName),
			Color:       fieldUint32(t, playerColor),
			SpriteIndex: fieldUint8(t, playerSprite),
		})
	}
	for _, t := range fieldTables(root, frameProjectiles) {
		frame.Projectiles = append(frame.Projectiles, FrameProjectile{
			Id:      fieldUint16(t, projectileId),
			Pos:     vec.Vec2{X: fieldFloat32(t, projectileX), Y: fieldFloat32(t, projectileY)},
			Angle:   fieldFloat32(t, projectileAngle),
			OwnerId: fieldUint8(t, projectileOwner),
		})
	}

	return frame, nil
}

func slotOffset(slot int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*slot)
}

func fieldUint8(t *flatbuffers.Table, slot int) uint8 {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return t.GetUint8(o + t.Pos)
	}
	return 0
}

func fieldUint16(t *flatbuffers.Table, slot int) uint16 {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return t.GetUint16(o + t.Pos)
	}
	return 0
}

func fieldUint32(t *flatbuffers.Table, slot int) uint32 {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return t.GetUint32(o + t.Pos)
	}
	return 0
}

func fieldUint64(t *flatbuffers.Table, slot int) uint64 {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return t.GetUint64(o + t.Pos)
	}
	return 0
}

func fieldFloat32(t *flatbuffers.Table, slot int) float32 {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return t.GetFloat32(o + t.Pos)
	}
	return 0
}

func fieldString(t *flatbuffers.Table, slot int) string {
	if o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot))); o != 0 {
		return string(t.ByteVector(o + t.Pos))
	}
	return ""
}

func fieldTables(t *flatbuffers.Table, slot int) []*flatbuffers.Table {
	o := flatbuffers.UOffsetT(t.Offset(slotOffset(slot)))
	if o == 0 {
		return nil
	}
	n := t.VectorLen(o)
	start := t.Vector(o)
	rtn := make([]*flatbuffers.Table, 0, n)
	for i := 0; i < n; i++ {
		x := t.Indirect(start + flatbuffers.UOffsetT(i)*flatbuffers.SizeUOffsetT)
		rtn = append(rtn, &flatbuffers.Table{Bytes: t.Bytes, Pos: x})
	}
	return rtn
}
