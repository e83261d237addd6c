package server

import (
	"context"
	"time"

	"github.com/sessamekesh/arena-netcode/internal/registry"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
	"github.com/sessamekesh/arena-netcode/pkg/transport"
	utils "github.com/sessamekesh/arena-netcode/pkg/util"
	"go.uber.org/zap"
)

// Simulation is the game the server is authoritative over. Every method is
// called from the server goroutine only.
type Simulation interface {
	AddPlayer(id uint8)
	RemovePlayer(id uint8)

	// ApplyInput advances one player by dt with an action bitmask held.
	ApplyInput(id uint8, actions uint32, dt float64)
	// Tick advances everything not owned by a player (projectiles, collisions).
	Tick(dt float64)

	Player(id uint8) (packet.PlayerState, bool)
	Projectiles() []packet.ProjectileState

	InReadyZone(id uint8) bool
	// Start is called when the round goes from LIMBO to RUNNING.
	Start()
	// Complete reports whether a running round is over.
	Complete() bool
}

// Snapshot is handed to ServerParams.OnSnapshot after every broadcast tick.
// It is a copy and may be kept.
type Snapshot struct {
	Tick     uint64
	Time     time.Time
	State    packet.State
	Settings []packet.SettingsEntry
}

type ServerParams struct {
	ProtocolId uint32
	MaxClients int

	// Broadcast rate, in STATE packets per second.
	TickRate int
	// Simulation rate, in steps per second.
	TargetFps int

	DisconnectTimeout time.Duration
	PollInterval      time.Duration

	// Largest dt a single input record may advance a player by.
	MaxInputDelta time.Duration

	SaltSeed int64

	Logger     *zap.Logger
	OnSnapshot func(Snapshot)
	Now        func() time.Time
}

type Server struct {
	params     ServerParams
	log        *zap.Logger
	conn       transport.PacketConn
	sim        Simulation
	serializer packet.Serializer
	salts      *utils.SaltGenerator
	registry   *registry.ConnectionRegistry
	metrics    *Metrics

	status packet.GameStatus

	simPeriod time.Duration
	netPeriod time.Duration
	lastStep  time.Time
	simAccum  time.Duration
	netAccum  time.Duration
	tick      uint64
}

const maxCatchUpSteps = 5

func CreateServer(conn transport.PacketConn, sim Simulation, params ServerParams) *Server {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.MaxClients <= 0 || params.MaxClients > packet.MaxClients {
		params.MaxClients = packet.MaxClients
	}
	if params.TargetFps <= 0 {
		params.TargetFps = 60
	}
	if params.TickRate <= 0 {
		params.TickRate = 20
	}
	if params.TickRate > params.TargetFps {
		params.TickRate = params.TargetFps
	}
	if params.DisconnectTimeout <= 0 {
		params.DisconnectTimeout = 7 * time.Second
	}
	if params.PollInterval <= 0 {
		params.PollInterval = time.Millisecond
	}
	if params.MaxInputDelta <= 0 {
		params.MaxInputDelta = 250 * time.Millisecond
	}
	if params.SaltSeed == 0 {
		params.SaltSeed = time.Now().UnixNano()
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	return &Server{
		params:     params,
		log:        logger.With(zap.String("handler", "arenaServer")),
		conn:       conn,
		sim:        sim,
		serializer: packet.Serializer{ProtocolId: params.ProtocolId},
		salts:      utils.CreateSaltGenerator(params.SaltSeed),
		registry:   registry.CreateConnectionRegistry(params.MaxClients),
		metrics:    &Metrics{},
		status:     packet.GameStatus_Limbo,
		simPeriod:  time.Second / time.Duration(params.TargetFps),
		netPeriod:  time.Second / time.Duration(params.TickRate),
	}
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) Status() packet.GameStatus {
	return s.status
}

// Run polls the socket and drives both fixed-rate loops until ctx is done.
// Connected clients are told about the shutdown before it returns.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.params.PollInterval)
	defer ticker.Stop()

	s.log.Info("Arena server loop starting",
		zap.String("addr", s.conn.LocalAddr().String()),
		zap.Int("tickRate", s.params.TickRate),
		zap.Int("targetFps", s.params.TargetFps),
		zap.Int("maxClients", s.params.MaxClients))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Arena server loop shutting down")
			s.disconnectAll()
			return nil
		case <-ticker.C:
			s.Step(s.params.Now())
		}
	}
}

// Step runs one outer iteration at the given time: drain the socket, then run
// as many simulation and broadcast ticks as the elapsed time calls for.
func (s *Server) Step(now time.Time) {
	s.ingest(now)

	if s.lastStep.IsZero() {
		s.lastStep = now
		return
	}
	elapsed := now.Sub(s.lastStep)
	s.lastStep = now
	if elapsed < 0 {
		return
	}

	s.simAccum += elapsed
	steps := 0
	for s.simAccum >= s.simPeriod {
		if steps == maxCatchUpSteps {
			s.log.Warn("Simulation fell behind, dropping accumulated time", zap.Duration("behind", s.simAccum))
			s.simAccum = 0
			break
		}
		s.simulate(s.simPeriod.Seconds())
		s.simAccum -= s.simPeriod
		steps++
	}

	s.netAccum += elapsed
	if s.netAccum >= s.netPeriod {
		s.netAccum %= s.netPeriod
		s.broadcast(now)
	}
}

func (s *Server) send(sess *session.Session, p packet.Payload) {
	data, err := packet.Encode(p)
	if err != nil {
		s.log.Error("Failed to encode payload", zap.Stringer("type", p.Type()), zap.Error(err))
		return
	}
	s.sendData(sess, p.Type(), data)
}

func (s *Server) sendData(sess *session.Session, t packet.Type, data []byte) {
	pkt := s.serializer.NewPacket(t, sess.NextSequence(), sess.RemoteSequence, data)
	raw, err := s.serializer.Marshal(pkt)
	if err != nil {
		s.log.Error("Failed to marshal packet", zap.Stringer("type", t), zap.Error(err))
		return
	}
	if err := s.conn.SendTo(raw, sess.Addr); err != nil {
		s.log.Warn("Failed to send packet", zap.Stringer("type", t), zap.String("addr", sess.Addr.String()), zap.Error(err))
		return
	}
	s.metrics.PacketsOut.Add(1)
}

// removeClient frees a slot. When notify is set the client is sent a
// DISCONNECT first, repeated since nothing acknowledges it.
func (s *Server) removeClient(slot *registry.Slot, notify bool) {
	if notify {
		for i := 0; i < session.DisconnectRepeat; i++ {
			s.send(&slot.Session, packet.Disconnect{})
		}
	}
	if slot.Connected() {
		s.sim.RemovePlayer(slot.Id)
	}
	s.log.Info("Client removed", zap.Uint8("clientId", slot.Id), zap.String("addr", slot.Session.Addr.String()))
	s.registry.Free(slot.Id)
	s.metrics.Connected.Store(int64(len(s.registry.Connected())))
}

func (s *Server) disconnectAll() {
	for i := 0; i < s.registry.MaxConnections; i++ {
		slot, err := s.registry.Get(uint8(i))
		if err != nil {
			continue
		}
		s.removeClient(slot, true)
	}
}
