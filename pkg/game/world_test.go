package game

import (
	"testing"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/vec"
)

const dt = 1.0 / 60.0

func TestForwardThrustMovesAlongHeading(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.AddPlayer(0)
	start, _ := w.Player(0)

	for i := 0; i < 30; i++ {
		w.ApplyInput(0, Action_Forward, dt)
	}
	end, _ := w.Player(0)

	// Heading 90 degrees points up the screen, i.e. towards smaller y.
	if end.Pos.Y >= start.Pos.Y {
		t.Fatalf("ship did not move up: %+v -> %+v", start.Pos, end.Pos)
	}
	if d := end.Pos.X - start.Pos.X; d > 0.01 || d < -0.01 {
		t.Fatalf("ship drifted sideways by %f", d)
	}
}

func TestIdleShipStaysPut(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.AddPlayer(3)
	before, _ := w.Player(3)
	w.ApplyInput(3, 0, dt)
	after, _ := w.Player(3)
	if before.Pos != after.Pos || before.Angle != after.Angle {
		t.Fatalf("idle ship changed: %+v -> %+v", before, after)
	}
}

func TestTurningWrapsAngle(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.AddPlayer(0)
	for i := 0; i < 40; i++ {
		w.ApplyInput(0, Action_Right, dt)
	}
	p, _ := w.Player(0)
	if p.Angle < 0 || p.Angle >= 360 {
		t.Fatalf("angle out of range: %f", p.Angle)
	}
	if p.Angle < 260 || p.Angle > 280 {
		t.Fatalf("expected roughly 270 after turning right 180 degrees, got %f", p.Angle)
	}
}

func TestShootingSpendsEnergyAndHits(t *testing.T) {
	params := DefaultParams()
	w := NewWorld(params)
	w.AddPlayer(0)
	w.AddPlayer(1)

	shooter, _ := w.Get(0)
	target, _ := w.Get(1)
	shooter.Pos = vec.Vec2{X: 100, Y: 400}
	shooter.Angle = 0
	target.Pos = vec.Vec2{X: 160, Y: 400}

	w.ApplyInput(0, Action_Shoot, dt)
	if shooter.Energy > params.MaxEnergy-params.ShotCost+1 {
		t.Fatalf("shot was free, energy = %f", shooter.Energy)
	}
	projectiles := w.Projectiles()
	if len(projectiles) != 1 || projectiles[0].OwnerId != 0 || projectiles[0].Id != 0 {
		t.Fatalf("projectiles = %+v", projectiles)
	}

	w.ApplyInput(0, Action_Shoot, dt)
	if len(w.Projectiles()) != 1 {
		t.Fatal("cooldown ignored")
	}

	for i := 0; i < 30 && len(w.Projectiles()) > 0; i++ {
		w.Tick(dt)
	}
	if target.Hp != params.MaxHp-params.ShotDamage {
		t.Fatalf("target hp = %f", target.Hp)
	}
	if len(w.Projectiles()) != 0 {
		t.Fatal("projectile survived the hit")
	}
	if shooter.Hp != params.MaxHp {
		t.Fatal("owner hit by own projectile")
	}
}

func TestShieldBlocksDamage(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.AddPlayer(0)
	w.AddPlayer(1)
	target, _ := w.Get(1)
	w.ApplyInput(1, Action_Shield, dt)
	if !target.Shielded {
		t.Fatal("shield not raised")
	}

	w.projectiles = append(w.projectiles, Projectile{Id: 7, OwnerId: 0, Pos: target.Pos, Ttl: 1})
	w.Tick(dt)
	if target.Hp != w.params.MaxHp {
		t.Fatalf("shielded ship took damage, hp = %f", target.Hp)
	}
	if len(w.Projectiles()) != 0 {
		t.Fatal("shield should still absorb the projectile")
	}
}

func TestProjectileIdsWrap(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.nextId = 65534
	if id := w.newProjectileId(); id != 65534 {
		t.Fatalf("got %d", id)
	}
	if id := w.newProjectileId(); id != 0 {
		t.Fatalf("expected wrap to 0, got %d", id)
	}
}

func TestProjectilesExpire(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.projectiles = append(w.projectiles, Projectile{Pos: vec.Vec2{X: 600, Y: 400}, Ttl: 0.01})
	w.Tick(dt)
	if len(w.Projectiles()) != 0 {
		t.Fatal("expired projectile kept")
	}
}

func TestReadyZoneAndCompletion(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.AddPlayer(0)
	w.AddPlayer(1)

	if w.InReadyZone(0) {
		t.Fatal("ships spawn outside the ready zone")
	}
	p, _ := w.Get(0)
	p.Pos = vec.Vec2{X: w.params.ReadyZone.X, Y: w.params.ReadyZone.Y}
	if !w.InReadyZone(0) {
		t.Fatal("ship in the middle of the zone")
	}
	if w.InReadyZone(5) {
		t.Fatal("missing player can't be ready")
	}

	if w.Complete() {
		t.Fatal("round not started")
	}
	w.Start()
	if w.Complete() {
		t.Fatal("two live ships")
	}
	p.Hp = 0
	if !w.Complete() {
		t.Fatal("one ship left")
	}
}

func TestSetPlayerSnaps(t *testing.T) {
	w := NewWorld(DefaultParams())
	w.SetPlayer(playerState(4, 10, 20))
	got, ok := w.Player(4)
	if !ok || got.Pos != (vec.Vec2{X: 10, Y: 20}) {
		t.Fatalf("SetPlayer did not add/overwrite: %+v", got)
	}
	w.RemovePlayer(4)
	if w.HasPlayer(4) {
		t.Fatal("player not removed")
	}
}

func playerState(id uint8, x, y float32) packet.PlayerState {
	return packet.PlayerState{ClientId: id, Pos: vec.Vec2{X: x, Y: y}, Angle: 0, Energy: 50, Hp: 80}
}
