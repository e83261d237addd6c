package client

import (
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

// ObjectState is the renderable state of a remote player.
type ObjectState struct {
	Id     uint8
	Pos    vec.Vec2
	Angle  float32
	Energy float32
	Hp     float32
}

func objectFromPacket(p packet.PlayerState) ObjectState {
	return ObjectState{Id: p.ClientId, Pos: p.Pos, Angle: p.Angle, Energy: p.Energy, Hp: p.Hp}
}

func lerpObject(a, b ObjectState, t float32) ObjectState {
	return ObjectState{
		Id:     b.Id,
		Pos:    vec.Lerp2(a.Pos, b.Pos, t),
		Angle:  vec.LerpAngleDeg(a.Angle, b.Angle, t),
		Energy: vec.Lerp(a.Energy, b.Energy, t),
		Hp:     vec.Lerp(a.Hp, b.Hp, t),
	}
}

// Snapshot interpolates one remote player from Prior to Target over one
// broadcast period. Prior is whatever was on screen when Target arrived.
type Snapshot struct {
	Active  bool
	Prior   ObjectState
	Target  ObjectState
	Current ObjectState
	// Seconds since Target arrived.
	LerpT float64
}

func (s *Snapshot) retarget(target ObjectState) {
	if !s.Active {
		s.Prior = target
		s.Current = target
	} else {
		s.Prior = s.Current
	}
	s.Target = target
	s.LerpT = 0
	s.Active = true
}

func (s *Snapshot) advance(dt, period float64) {
	if !s.Active {
		return
	}
	s.LerpT += dt
	s.Current = lerpObject(s.Prior, s.Target, lerpFraction(s.LerpT, period))
}

type ProjectileSnapshot struct {
	Prior   packet.ProjectileState
	Target  packet.ProjectileState
	Current packet.ProjectileState
	LerpT   float64
}

func (s *ProjectileSnapshot) advance(dt, period float64) {
	s.LerpT += dt
	t := lerpFraction(s.LerpT, period)
	s.Current = packet.ProjectileState{
		Id:      s.Target.Id,
		OwnerId: s.Target.OwnerId,
		Pos:     vec.Lerp2(s.Prior.Pos, s.Target.Pos, t),
		Angle:   vec.LerpAngleDeg(s.Prior.Angle, s.Target.Angle, t),
	}
}

// retargetProjectiles lines the new list up with the old one by position. A
// projectile whose id differs from the one previously at its position is new
// and snaps straight to its target.
func retargetProjectiles(old []ProjectileSnapshot, incoming []packet.ProjectileState) []ProjectileSnapshot {
	out := make([]ProjectileSnapshot, len(incoming))
	for i, target := range incoming {
		prior := target
		if i < len(old) && old[i].Target.Id == target.Id {
			prior = old[i].Current
		}
		out[i] = ProjectileSnapshot{Prior: prior, Target: target, Current: prior}
	}
	return out
}

func lerpFraction(elapsed, period float64) float32 {
	if period <= 0 {
		return 1
	}
	return vec.Clamp(float32(elapsed/period), 0, 1)
}
