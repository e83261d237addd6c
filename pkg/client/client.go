package client

import (
	"net/netip"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
	"github.com/sessamekesh/arena-netcode/pkg/transport"
	utils "github.com/sessamekesh/arena-netcode/pkg/util"
	"github.com/sessamekesh/arena-netcode/pkg/wire"
	"go.uber.org/zap"
)

type ConnectResult uint8

const (
	ConnectResult_NoData ConnectResult = iota
	ConnectResult_Challenged
	ConnectResult_Accepted
	ConnectResult_Rejected
	ConnectResult_InvalidSalt
	ConnectResult_TimedOut
	ConnectResult_GaveUp
)

func (r ConnectResult) String() string {
	switch r {
	case ConnectResult_NoData:
		return "NO_DATA"
	case ConnectResult_Challenged:
		return "CHALLENGED"
	case ConnectResult_Accepted:
		return "ACCEPTED"
	case ConnectResult_Rejected:
		return "REJECTED"
	case ConnectResult_InvalidSalt:
		return "INVALID_SALT"
	case ConnectResult_TimedOut:
		return "TIMED_OUT"
	case ConnectResult_GaveUp:
		return "GAVE_UP"
	}
	return "UNKNOWN"
}

// Predictor runs the same player update the server runs, so the local ship
// responds before the server has confirmed anything.
type Predictor interface {
	AddPlayer(id uint8)
	RemovePlayer(id uint8)
	ApplyInput(id uint8, actions uint32, dt float64)
	Player(id uint8) (packet.PlayerState, bool)
	SetPlayer(state packet.PlayerState)
}

type ClientParams struct {
	ServerAddr netip.AddrPort
	ProtocolId uint32

	// Server broadcast rate; one period is the interpolation window.
	TickRate        int
	InputsPerPacket int
	PingPeriod      time.Duration
	// Server silence after which the connection is considered lost.
	DisconnectTimeout time.Duration
	Handshake         session.RetryPolicy

	// Predicted position error beyond which the local ship snaps to the
	// server's position.
	ReconcileThreshold float32

	Predictor Predictor
	SaltSeed  int64
	Logger    *zap.Logger
}

type Client struct {
	params     ClientParams
	log        *zap.Logger
	conn       transport.PacketConn
	serializer packet.Serializer
	salts      *utils.SaltGenerator

	sess        session.Session
	retry       *session.Retry
	lastRequest packet.Payload
	rejection   packet.RejectReason

	id     uint8
	status packet.GameStatus

	inputs []packet.InputRecord

	players     [packet.MaxClients]Snapshot
	projectiles []ProjectileSnapshot
	settings    map[uint8]packet.Settings

	local    packet.PlayerState
	hasLocal bool

	rtt             time.Duration
	lastPing        time.Time
	pingSent        time.Time
	pingOutstanding bool
}

func CreateClient(conn transport.PacketConn, params ClientParams) *Client {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	if params.TickRate <= 0 {
		params.TickRate = 20
	}
	if params.InputsPerPacket <= 0 {
		params.InputsPerPacket = 1
	}
	if params.InputsPerPacket > packet.MaxInputRecords {
		params.InputsPerPacket = packet.MaxInputRecords
	}
	if params.PingPeriod <= 0 {
		params.PingPeriod = 3 * time.Second
	}
	if params.DisconnectTimeout <= 0 {
		params.DisconnectTimeout = 7 * time.Second
	}
	if params.Handshake.Interval <= 0 {
		params.Handshake = session.DefaultHandshakePolicy
	}
	if params.ReconcileThreshold <= 0 {
		params.ReconcileThreshold = 32
	}
	if params.SaltSeed == 0 {
		params.SaltSeed = time.Now().UnixNano()
	}

	return &Client{
		params:     params,
		log:        logger.With(zap.String("handler", "arenaClient"), zap.String("server", params.ServerAddr.String())),
		conn:       conn,
		serializer: packet.Serializer{ProtocolId: params.ProtocolId},
		salts:      utils.CreateSaltGenerator(params.SaltSeed),
		sess:       session.Session{Addr: params.ServerAddr},
		retry:      session.NewRetry(params.Handshake),
		inputs:     make([]packet.InputRecord, 0, packet.MaxInputRecords),
		settings:   make(map[uint8]packet.Settings),
	}
}

func (c *Client) State() session.ConnectionState {
	return c.sess.State
}

func (c *Client) Connected() bool {
	return c.sess.State == session.ConnectionState_Connected
}

// Id is the slot the server assigned. Only meaningful once connected.
func (c *Client) Id() uint8 {
	return c.id
}

func (c *Client) GameStatus() packet.GameStatus {
	return c.status
}

// Rejection describes why the server refused the last connection attempt.
func (c *Client) Rejection() error {
	return &errors.Rejected{Reason: c.rejection.String()}
}

// RTT is the last measured ping round trip, zero until one completes.
func (c *Client) RTT() time.Duration {
	return c.rtt
}

func (c *Client) send(p packet.Payload) error {
	var data []byte
	var err error
	switch p.Type() {
	case packet.Type_ConnectRequest, packet.Type_ConnectChallengeResponse:
		data, err = packet.Encode(p)
	default:
		data, err = packet.EncodeWithSalt(c.sess.XorSalt, p)
	}
	if err != nil {
		return err
	}

	pkt := c.serializer.NewPacket(p.Type(), c.sess.NextSequence(), c.sess.RemoteSequence, data)
	raw, err := c.serializer.Marshal(pkt)
	if err != nil {
		return err
	}
	return c.conn.SendTo(raw, c.params.ServerAddr)
}

func (c *Client) sendHandshake(p packet.Payload, now time.Time) error {
	c.lastRequest = p
	c.retry.Begin(now)
	return c.send(p)
}

// Connect starts a new handshake, abandoning any previous session.
func (c *Client) Connect(now time.Time) error {
	c.reset()
	c.sess.ClientSalt = c.salts.NewSalt()
	c.sess.State = session.ConnectionState_SendingConnectionRequest
	c.log.Info("Connecting")
	return c.sendHandshake(packet.ConnectRequest{ClientSalt: c.sess.ClientSalt}, now)
}

func (c *Client) reset() {
	c.sess = session.Session{Addr: c.params.ServerAddr}
	c.retry.Reset()
	c.lastRequest = nil
	c.id = 0
	c.status = packet.GameStatus_Limbo
	c.inputs = c.inputs[:0]
	c.players = [packet.MaxClients]Snapshot{}
	c.projectiles = nil
	c.settings = make(map[uint8]packet.Settings)
	c.hasLocal = false
	c.rtt = 0
	c.pingOutstanding = false
}

// receive returns the next packet from the server, skipping anything from
// other addresses or anything that does not parse.
func (c *Client) receive() (*packet.Packet, packet.Payload, bool) {
	for {
		d, ok := c.conn.Poll()
		if !ok {
			return nil, nil, false
		}
		if d.Addr != c.params.ServerAddr {
			c.log.Debug("Dropping datagram from unexpected address", zap.String("addr", d.Addr.String()))
			continue
		}
		pkt, err := c.serializer.Parse(d.Data)
		if err != nil {
			c.log.Debug("Dropping malformed datagram", zap.Error(err))
			continue
		}
		payload, err := packet.DecodeFromServer(pkt.Header.Type, wire.NewReader(pkt.Data))
		if err != nil {
			c.log.Debug("Dropping undecodable packet", zap.Stringer("type", pkt.Header.Type), zap.Error(err))
			continue
		}
		return pkt, payload, true
	}
}

// PollConnect advances the handshake without blocking. Call it every frame
// until it reports Accepted, Rejected or GaveUp.
func (c *Client) PollConnect(now time.Time) ConnectResult {
	switch c.sess.State {
	case session.ConnectionState_Connected:
		return ConnectResult_Accepted
	case session.ConnectionState_Disconnected:
		return ConnectResult_NoData
	}

	for {
		pkt, payload, ok := c.receive()
		if !ok {
			break
		}

		switch p := payload.(type) {
		case *packet.ConnectRejected:
			c.rejection = p.Reason
			c.log.Info("Connection rejected", zap.Stringer("reason", p.Reason))
			c.sess.State = session.ConnectionState_Disconnected
			return ConnectResult_Rejected

		case *packet.ConnectChallenge:
			if c.sess.State != session.ConnectionState_SendingConnectionRequest {
				continue
			}
			if p.ClientSalt != c.sess.ClientSalt {
				c.log.Warn("Challenge carried the wrong client salt")
				return ConnectResult_InvalidSalt
			}
			c.sess.SetSalts(p.ClientSalt, p.ServerSalt)
			c.sess.State = session.ConnectionState_SendingChallengeResponse
			c.retry.Reset()
			if err := c.sendHandshake(packet.ChallengeResponse{XorSalt: c.sess.XorSalt}, now); err != nil {
				c.log.Warn("Failed to send challenge response", zap.Error(err))
			}
			return ConnectResult_Challenged

		case *packet.ConnectAccepted:
			if c.sess.State != session.ConnectionState_SendingChallengeResponse {
				continue
			}
			c.id = p.ClientId
			c.sess.State = session.ConnectionState_Connected
			c.sess.AcceptSequence(pkt.Header.Sequence, now)
			c.lastPing = now
			if c.params.Predictor != nil {
				c.params.Predictor.AddPlayer(c.id)
			}
			c.log.Info("Connected", zap.Uint8("clientId", c.id))
			return ConnectResult_Accepted
		}
	}

	if c.retry.Expired(now) {
		if c.retry.Exhausted() {
			c.log.Warn("Giving up on connection", zap.Int("attempts", c.retry.Attempts()))
			c.sess.State = session.ConnectionState_Disconnected
			return ConnectResult_GaveUp
		}
		c.log.Debug("Handshake attempt timed out, resending", zap.Stringer("state", c.sess.State))
		if err := c.sendHandshake(c.lastRequest, now); err != nil {
			c.log.Warn("Failed to resend handshake", zap.Error(err))
		}
		return ConnectResult_TimedOut
	}
	return ConnectResult_NoData
}

// AddInput predicts the input locally and queues it for the server. The queue
// is flushed as one INPUT once it holds InputsPerPacket records.
//
// Submit one record per frame, including frames where the actions did not
// change. Each record advances the local prediction by its DeltaTime and the
// server replays it with the same DeltaTime; a skipped frame is a frame the
// local ship does not move.
func (c *Client) AddInput(rec packet.InputRecord) error {
	if !c.Connected() {
		return nil
	}
	if c.params.Predictor != nil {
		c.params.Predictor.ApplyInput(c.id, rec.Actions, rec.DeltaTime)
	}
	if len(c.inputs) >= packet.MaxInputRecords {
		c.log.Debug("Input queue full, dropping record")
		return nil
	}
	c.inputs = append(c.inputs, rec)
	if len(c.inputs) >= c.params.InputsPerPacket {
		return c.flushInputs()
	}
	return nil
}

func (c *Client) flushInputs() error {
	if len(c.inputs) == 0 {
		return nil
	}
	err := c.send(packet.Input{Records: c.inputs})
	c.inputs = c.inputs[:0]
	return err
}

func (c *Client) SendSettings(s packet.Settings) error {
	if !c.Connected() {
		return nil
	}
	return c.send(s)
}

// Disconnect tells the server we are leaving. DISCONNECT is not acknowledged,
// so it is sent several times.
func (c *Client) Disconnect() error {
	if c.sess.State == session.ConnectionState_Disconnected {
		return nil
	}
	var err error
	if c.Connected() {
		for i := 0; i < session.DisconnectRepeat; i++ {
			if sendErr := c.send(packet.Disconnect{}); sendErr != nil {
				err = sendErr
			}
		}
	}
	c.log.Info("Disconnected")
	c.reset()
	return err
}

// Update processes everything the server has sent, keeps the ping going and
// advances interpolation by dt seconds.
func (c *Client) Update(now time.Time, dt float64) error {
	if !c.Connected() {
		return nil
	}

	for {
		pkt, payload, ok := c.receive()
		if !ok {
			break
		}
		if err := c.sess.AcceptSequence(pkt.Header.Sequence, now); err != nil {
			c.log.Debug("Dropping out of order packet", zap.Error(err))
			continue
		}

		switch p := payload.(type) {
		case *packet.State:
			c.applyState(p)
		case *packet.SettingsBroadcast:
			for _, e := range p.Entries {
				c.settings[e.ClientId] = e.Settings
			}
		case *packet.Ping:
			if c.pingOutstanding {
				c.rtt = now.Sub(c.pingSent)
				c.pingOutstanding = false
				c.log.Debug("Ping", zap.Int64("rttMs", c.rtt.Milliseconds()))
			}
		case *packet.Disconnect:
			c.log.Info("Server closed the connection")
			c.reset()
			return nil
		case *packet.Error:
			c.log.Warn("Server reported an error", zap.Uint8("code", uint8(p.Code)))
		}
	}

	if c.sess.IdleFor(now) >= c.params.DisconnectTimeout {
		c.log.Warn("Server went silent, dropping connection", zap.Duration("idle", c.sess.IdleFor(now)))
		c.reset()
		return nil
	}

	var err error
	if now.Sub(c.lastPing) >= c.params.PingPeriod {
		c.lastPing = now
		c.pingSent = now
		c.pingOutstanding = true
		err = c.send(packet.Ping{})
	}

	period := 1.0 / float64(c.params.TickRate)
	for i := range c.players {
		c.players[i].advance(dt, period)
	}
	for i := range c.projectiles {
		c.projectiles[i].advance(dt, period)
	}

	return err
}

func (c *Client) applyState(s *packet.State) {
	if s.Status != c.status {
		c.log.Info("Game status changed", zap.Stringer("status", s.Status))
	}
	c.status = s.Status

	var seen [packet.MaxClients]bool
	for _, ps := range s.Players {
		if int(ps.ClientId) >= packet.MaxClients {
			continue
		}
		seen[ps.ClientId] = true

		if ps.ClientId == c.id {
			c.reconcile(ps)
			continue
		}
		c.players[ps.ClientId].retarget(objectFromPacket(ps))
	}
	for i := range c.players {
		if !seen[i] {
			c.players[i] = Snapshot{}
		}
	}

	c.projectiles = retargetProjectiles(c.projectiles, s.Projectiles)
}

// reconcile keeps the server's view of the local ship. The predicted ship
// snaps to it only once it has drifted past the threshold; energy and hp are
// always taken from the server.
func (c *Client) reconcile(ps packet.PlayerState) {
	c.local = ps
	c.hasLocal = true

	pred := c.params.Predictor
	if pred == nil {
		return
	}
	mine, ok := pred.Player(c.id)
	if !ok || mine.Pos.Sub(ps.Pos).Len() > c.params.ReconcileThreshold {
		if ok {
			c.log.Debug("Snapping predicted ship to server position", zap.Float32("error", mine.Pos.Sub(ps.Pos).Len()))
		}
		pred.SetPlayer(ps)
		return
	}
	mine.Energy = ps.Energy
	mine.Hp = ps.Hp
	pred.SetPlayer(mine)
}

// LocalPlayer is the predicted local ship if there is a predictor, otherwise
// the last authoritative state.
func (c *Client) LocalPlayer() (packet.PlayerState, bool) {
	if c.params.Predictor != nil {
		return c.params.Predictor.Player(c.id)
	}
	return c.local, c.hasLocal
}

// AuthoritativeLocal is the last state the server sent for the local ship.
func (c *Client) AuthoritativeLocal() (packet.PlayerState, bool) {
	return c.local, c.hasLocal
}

// RemotePlayers returns the interpolated state of every other active player.
func (c *Client) RemotePlayers() []ObjectState {
	out := []ObjectState{}
	for i := range c.players {
		if c.players[i].Active {
			out = append(out, c.players[i].Current)
		}
	}
	return out
}

func (c *Client) RemotePlayer(id uint8) (Snapshot, bool) {
	if int(id) >= len(c.players) || !c.players[id].Active {
		return Snapshot{}, false
	}
	return c.players[id], true
}

func (c *Client) Projectiles() []packet.ProjectileState {
	out := make([]packet.ProjectileState, len(c.projectiles))
	for i := range c.projectiles {
		out[i] = c.projectiles[i].Current
	}
	return out
}

func (c *Client) Settings(id uint8) (packet.Settings, bool) {
	s, has := c.settings[id]
	return s, has
}
