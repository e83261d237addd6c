package game

import (
	"math"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

// Action bits carried in an input record's bitmask.
const (
	Action_Forward uint32 = 1 << iota
	Action_Backward
	Action_Left
	Action_Right
	Action_Shoot
	Action_Shield
)

type Params struct {
	Arena     vec.Rect
	ReadyZone vec.Rect

	PlayerSize    float32
	Accel         float32
	VelocityLimit float32
	Drag          float32
	TurnRate      float32

	MaxEnergy   float32
	EnergyRegen float32
	ShieldDrain float32
	MaxHp       float32

	ShotCost      float32
	ShotCooldown  float32
	ShotSpeed     float32
	ShotTtl       float32
	ShotDamage    float32
	ProjectileMax int
}

func DefaultParams() Params {
	return Params{
		Arena:     vec.Rect{X: 600, Y: 400, W: 1200, H: 800},
		ReadyZone: vec.Rect{X: 600, Y: 150, W: 300, H: 200},

		PlayerSize:    32,
		Accel:         400,
		VelocityLimit: 300,
		Drag:          0.8,
		TurnRate:      270,

		MaxEnergy:   100,
		EnergyRegen: 15,
		ShieldDrain: 30,
		MaxHp:       100,

		ShotCost:      10,
		ShotCooldown:  0.15,
		ShotSpeed:     400,
		ShotTtl:       1.2,
		ShotDamage:    10,
		ProjectileMax: 1024,
	}
}

type Player struct {
	Id     uint8
	Pos    vec.Vec2
	Vel    vec.Vec2
	Angle  float32
	Energy float32
	Hp     float32

	Shielded bool
	cooldown float32
}

func (p *Player) Alive() bool {
	return p.Hp > 0
}

type Projectile struct {
	Id      uint16
	OwnerId uint8
	Pos     vec.Vec2
	Vel     vec.Vec2
	Angle   float32
	Ttl     float32
}

// World is a small ship arena: players thrust, turn and shoot, projectiles
// fly straight and damage anyone but their owner. It is driven from a single
// goroutine.
type World struct {
	params Params

	players     map[uint8]*Player
	projectiles []Projectile
	nextId      uint16
	started     bool
}

func NewWorld(params Params) *World {
	return &World{
		params:  params,
		players: make(map[uint8]*Player),
	}
}

func (w *World) Params() Params {
	return w.params
}

func (w *World) spawnPoint(id uint8) vec.Vec2 {
	a := w.params.Arena
	step := a.W / float32(packet.MaxClients+1)
	return vec.Vec2{
		X: a.X - a.W/2 + step*float32(int(id)+1),
		Y: a.Y + a.H/2 - 2*w.params.PlayerSize,
	}
}

func (w *World) AddPlayer(id uint8) {
	w.players[id] = &Player{
		Id:     id,
		Pos:    w.spawnPoint(id),
		Angle:  90,
		Energy: w.params.MaxEnergy,
		Hp:     w.params.MaxHp,
	}
}

func (w *World) RemovePlayer(id uint8) {
	delete(w.players, id)
}

func (w *World) HasPlayer(id uint8) bool {
	_, has := w.players[id]
	return has
}

func (w *World) Get(id uint8) (*Player, bool) {
	p, has := w.players[id]
	return p, has
}

func (w *World) hitBox(pos vec.Vec2) vec.Rect {
	return vec.Rect{X: pos.X, Y: pos.Y, W: w.params.PlayerSize, H: w.params.PlayerSize}
}

// ApplyInput advances one player by dt with the given actions held.
func (w *World) ApplyInput(id uint8, actions uint32, dt float64) {
	p, has := w.players[id]
	if !has || !p.Alive() || dt <= 0 {
		return
	}
	pm := w.params
	t := float32(dt)

	if actions&Action_Left != 0 {
		p.Angle += pm.TurnRate * t
	}
	if actions&Action_Right != 0 {
		p.Angle -= pm.TurnRate * t
	}
	p.Angle = vec.NormalizeDeg(p.Angle)

	rad := vec.Radians(p.Angle)
	heading := vec.Vec2{X: float32(math.Cos(rad)), Y: -float32(math.Sin(rad))}
	var accel float32
	if actions&Action_Forward != 0 {
		accel += pm.Accel
	}
	if actions&Action_Backward != 0 {
		accel -= pm.Accel / 2
	}
	p.Vel = p.Vel.Add(heading.Scale(accel * t))
	p.Vel = p.Vel.Scale(vec.Clamp(1-pm.Drag*t, 0, 1))
	if speed := p.Vel.Len(); speed > pm.VelocityLimit {
		p.Vel = p.Vel.Scale(pm.VelocityLimit / speed)
	}

	p.Pos = p.Pos.Add(p.Vel.Scale(t))
	half := pm.PlayerSize / 2
	a := pm.Arena
	p.Pos.X = vec.Clamp(p.Pos.X, a.X-a.W/2+half, a.X+a.W/2-half)
	p.Pos.Y = vec.Clamp(p.Pos.Y, a.Y-a.H/2+half, a.Y+a.H/2-half)

	p.Shielded = actions&Action_Shield != 0 && p.Energy > 0
	if p.Shielded {
		p.Energy -= pm.ShieldDrain * t
	} else {
		p.Energy += pm.EnergyRegen * t
	}
	p.Energy = vec.Clamp(p.Energy, 0, pm.MaxEnergy)

	p.cooldown -= t
	if actions&Action_Shoot != 0 && p.cooldown <= 0 && p.Energy >= pm.ShotCost && len(w.projectiles) < pm.ProjectileMax {
		p.Energy -= pm.ShotCost
		p.cooldown = pm.ShotCooldown
		w.projectiles = append(w.projectiles, Projectile{
			Id:      w.newProjectileId(),
			OwnerId: p.Id,
			Pos:     p.Pos,
			Vel:     p.Vel.Add(heading.Scale(pm.ShotSpeed)),
			Angle:   p.Angle,
			Ttl:     pm.ShotTtl,
		})
	}
}

// Projectile ids run 0..65534 and then start over.
func (w *World) newProjectileId() uint16 {
	if w.nextId >= math.MaxUint16 {
		w.nextId = 0
	}
	id := w.nextId
	w.nextId++
	return id
}

// Tick moves projectiles and resolves their hits. It runs once per simulation
// step regardless of how many inputs were applied.
func (w *World) Tick(dt float64) {
	t := float32(dt)
	live := w.projectiles[:0]
	for _, proj := range w.projectiles {
		proj.Ttl -= t
		proj.Pos = proj.Pos.Add(proj.Vel.Scale(t))
		if proj.Ttl <= 0 || !w.params.Arena.Contains(proj.Pos) {
			continue
		}

		hit := false
		for _, p := range w.players {
			if p.Id == proj.OwnerId || !p.Alive() || !w.hitBox(p.Pos).Contains(proj.Pos) {
				continue
			}
			hit = true
			if !p.Shielded {
				p.Hp = max(p.Hp-w.params.ShotDamage, 0)
			}
			break
		}
		if !hit {
			live = append(live, proj)
		}
	}
	w.projectiles = live
}

func (w *World) Player(id uint8) (packet.PlayerState, bool) {
	p, has := w.players[id]
	if !has {
		return packet.PlayerState{}, false
	}
	return packet.PlayerState{
		ClientId: p.Id,
		Pos:      p.Pos,
		Angle:    p.Angle,
		Energy:   p.Energy,
		Hp:       p.Hp,
	}, true
}

// SetPlayer overwrites a player with authoritative values, adding it if absent.
func (w *World) SetPlayer(s packet.PlayerState) {
	p, has := w.players[s.ClientId]
	if !has {
		w.AddPlayer(s.ClientId)
		p = w.players[s.ClientId]
	}
	p.Pos = s.Pos
	p.Angle = s.Angle
	p.Energy = s.Energy
	p.Hp = s.Hp
}

func (w *World) Projectiles() []packet.ProjectileState {
	out := make([]packet.ProjectileState, 0, len(w.projectiles))
	for _, proj := range w.projectiles {
		out = append(out, packet.ProjectileState{
			Id:      proj.Id,
			Pos:     proj.Pos,
			Angle:   proj.Angle,
			OwnerId: proj.OwnerId,
		})
	}
	return out
}

func (w *World) InReadyZone(id uint8) bool {
	p, has := w.players[id]
	if !has {
		return false
	}
	return w.hitBox(p.Pos).Overlaps(w.params.ReadyZone)
}

// Start resets every ship to full health and clears the field for a round.
func (w *World) Start() {
	w.started = true
	w.projectiles = w.projectiles[:0]
	for id, p := range w.players {
		p.Hp = w.params.MaxHp
		p.Energy = w.params.MaxEnergy
		p.Vel = vec.Vec2{}
		p.Pos = w.spawnPoint(id)
	}
}

// Complete reports whether a started round is down to one ship or none.
func (w *World) Complete() bool {
	if !w.started {
		return false
	}
	alive := 0
	for _, p := range w.players {
		if p.Alive() {
			alive++
		}
	}
	return alive <= 1
}
