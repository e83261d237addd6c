package server

import (
	"bytes"
	"math"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"go.uber.org/zap"
)

// simulate runs one fixed step: every connected player replays its queued
// inputs in arrival order, or holds its last actions for one step if nothing
// arrived. Projectiles and collisions then advance once.
func (s *Server) simulate(dt float64) {
	maxDt := s.params.MaxInputDelta.Seconds()

	for _, slot := range s.registry.Connected() {
		if len(slot.Inputs) == 0 {
			s.sim.ApplyInput(slot.Id, slot.HeldActions, dt)
			continue
		}
		for _, rec := range slot.Inputs {
			if math.IsNaN(rec.DeltaTime) || rec.DeltaTime <= 0 {
				continue
			}
			s.sim.ApplyInput(slot.Id, rec.Actions, min(rec.DeltaTime, maxDt))
			slot.HeldActions = rec.Actions
		}
		slot.Inputs = slot.Inputs[:0]
	}

	s.sim.Tick(dt)
	s.updateStatus()
	s.metrics.SimulationTicks.Add(1)
}

func (s *Server) updateStatus() {
	connected := s.registry.Connected()
	prior := s.status

	switch s.status {
	case packet.GameStatus_Limbo:
		if len(connected) < 2 {
			break
		}
		ready := true
		for _, slot := range connected {
			if !s.sim.InReadyZone(slot.Id) {
				ready = false
				break
			}
		}
		if ready {
			s.status = packet.GameStatus_Running
			s.sim.Start()
		}
	case packet.GameStatus_Running:
		if s.sim.Complete() {
			s.status = packet.GameStatus_Complete
		}
	}

	if len(connected) == 0 {
		s.status = packet.GameStatus_Limbo
	}

	if prior != s.status {
		s.log.Info("Game status changed", zap.Stringer("from", prior), zap.Stringer("to", s.status), zap.Int("players", len(connected)))
	}
}

func (s *Server) buildState() packet.State {
	connected := s.registry.Connected()
	state := packet.State{
		Status:      s.status,
		Players:     make([]packet.PlayerState, 0, len(connected)),
		Projectiles: s.sim.Projectiles(),
	}
	for _, slot := range connected {
		ps, ok := s.sim.Player(slot.Id)
		if !ok {
			continue
		}
		ps.ClientId = slot.Id
		state.Players = append(state.Players, ps)
	}
	return state
}

// broadcast expires idle clients, then sends the current STATE to everyone
// still connected, skipping clients whose last STATE was byte-identical.
func (s *Server) broadcast(now time.Time) {
	s.tick++
	s.metrics.BroadcastTicks.Add(1)

	for _, id := range s.registry.GetTimeoutClientList(now.Add(-s.params.DisconnectTimeout)) {
		slot, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		s.log.Info("Client timed out", zap.Uint8("clientId", id), zap.Duration("idle", slot.Session.IdleFor(now)))
		s.metrics.Timeouts.Add(1)
		s.removeClient(slot, true)
	}

	state := s.buildState()
	data, err := packet.Encode(state)
	if err != nil {
		s.log.Error("Failed to encode state", zap.Error(err))
		return
	}

	for _, slot := range s.registry.Connected() {
		if bytes.Equal(data, slot.LastState) {
			s.metrics.StatesDeduped.Add(1)
			continue
		}
		s.sendData(&slot.Session, packet.Type_State, data)
		slot.LastState = append(slot.LastState[:0], data...)
		s.metrics.StatesSent.Add(1)
	}

	if s.params.OnSnapshot != nil {
		s.params.OnSnapshot(Snapshot{
			Tick:     s.tick,
			Time:     now,
			State:    state,
			Settings: s.settingsEntries(),
		})
	}
}
