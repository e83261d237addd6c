package server

import (
	goerrs "errors"
	"net/netip"
	"time"

	"github.com/sessamekesh/arena-netcode/internal/registry"
	"github.com/sessamekesh/arena-netcode/pkg/errors"
	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
	"github.com/sessamekesh/arena-netcode/pkg/transport"
	"github.com/sessamekesh/arena-netcode/pkg/wire"
	"go.uber.org/zap"
)

// ingest drains every datagram that is already waiting.
func (s *Server) ingest(now time.Time) {
	for {
		d, ok := s.conn.Poll()
		if !ok {
			return
		}
		s.metrics.PacketsIn.Add(1)
		s.handleDatagram(d, now)
	}
}

func (s *Server) handleDatagram(d transport.Datagram, now time.Time) {
	pkt, err := s.serializer.Parse(d.Data)
	if err != nil {
		s.metrics.Malformed.Add(1)
		s.log.Debug("Dropping malformed datagram", zap.String("addr", d.Addr.String()), zap.Error(err))
		return
	}

	slot, found := s.registry.FindByAddr(d.Addr)
	if !found {
		if pkt.Header.Type != packet.Type_ConnectRequest {
			s.log.Debug("Dropping packet from unknown address", zap.String("addr", d.Addr.String()), zap.Stringer("type", pkt.Header.Type))
			return
		}
		s.admit(d.Addr, pkt, now)
		return
	}

	if pkt.Header.Type == packet.Type_ConnectRequest {
		s.rechallenge(slot, pkt, now)
		return
	}

	s.handleClientPacket(slot, pkt, now)
}

func (s *Server) readConnectRequest(sess *session.Session, pkt *packet.Packet) (*packet.ConnectRequest, bool) {
	if err := sess.Authenticate(pkt); err != nil {
		s.metrics.Malformed.Add(1)
		s.log.Debug("Dropping connection request", zap.String("addr", sess.Addr.String()), zap.Error(err))
		return nil, false
	}
	payload, err := packet.DecodeFromClient(pkt.Header.Type, wire.NewReader(pkt.Data))
	if err != nil {
		s.metrics.Malformed.Add(1)
		s.log.Debug("Dropping undecodable connection request", zap.String("addr", sess.Addr.String()), zap.Error(err))
		return nil, false
	}
	return payload.(*packet.ConnectRequest), true
}

// admit handles a CONNECT_REQUEST from an address with no slot. A request
// that is not fully padded allocates nothing and gets no answer.
func (s *Server) admit(addr netip.AddrPort, pkt *packet.Packet, now time.Time) {
	req, ok := s.readConnectRequest(session.New(addr), pkt)
	if !ok {
		return
	}

	slot, err := s.registry.Allocate(addr, now)
	if err != nil {
		var tooMany *registry.TooManyClientsError
		if goerrs.As(err, &tooMany) {
			s.log.Info("Rejecting client, server is full", zap.String("addr", addr.String()))
			s.metrics.Rejected.Add(1)
			throwaway := session.New(addr)
			throwaway.RemoteSequence = pkt.Header.Sequence
			s.send(throwaway, packet.ConnectRejected{Reason: packet.RejectReason_ServerFull})
			return
		}
		s.log.Error("Failed to allocate client slot", zap.String("addr", addr.String()), zap.Error(err))
		return
	}

	s.challenge(slot, req.ClientSalt, s.salts.NewSalt(), pkt.Header.Sequence, now)
	s.log.Info("Client slot allocated, challenge sent", zap.Uint8("clientId", slot.Id), zap.String("addr", addr.String()))
}

// rechallenge answers a repeated CONNECT_REQUEST from an address whose
// handshake is still pending: the newest client salt wins and a fresh
// challenge goes out. Requests from connected clients are ignored.
func (s *Server) rechallenge(slot *registry.Slot, pkt *packet.Packet, now time.Time) {
	if slot.Connected() {
		s.log.Debug("Ignoring connection request from connected client", zap.Uint8("clientId", slot.Id))
		return
	}
	req, ok := s.readConnectRequest(&slot.Session, pkt)
	if !ok {
		return
	}
	s.challenge(slot, req.ClientSalt, slot.Session.ServerSalt, pkt.Header.Sequence, now)
	s.log.Debug("Re-sent challenge to pending client", zap.Uint8("clientId", slot.Id))
}

func (s *Server) challenge(slot *registry.Slot, clientSalt, serverSalt packet.Salt, sequence uint16, now time.Time) {
	sess := &slot.Session
	sess.Reset()
	sess.State = session.ConnectionState_SendingChallengeResponse
	sess.SetSalts(clientSalt, serverSalt)
	sess.AcceptSequence(sequence, now)

	s.send(sess, packet.ConnectChallenge{ClientSalt: clientSalt, ServerSalt: serverSalt})
}

func (s *Server) handleClientPacket(slot *registry.Slot, pkt *packet.Packet, now time.Time) {
	sess := &slot.Session
	t := pkt.Header.Type
	log := s.log.With(zap.Uint8("clientId", slot.Id), zap.Stringer("type", t))

	if err := sess.Authenticate(pkt); err != nil {
		s.metrics.AuthFailures.Add(1)
		var authErr *errors.AuthenticationFailed
		if t == packet.Type_ConnectChallengeResponse && !slot.Connected() && goerrs.As(err, &authErr) {
			log.Info("Client failed the challenge")
			s.metrics.Rejected.Add(1)
			s.send(sess, packet.ConnectRejected{Reason: packet.RejectReason_FailedChallenge})
			s.removeClient(slot, false)
			return
		}
		log.Debug("Dropping unauthenticated packet", zap.Error(err))
		return
	}

	if err := sess.AcceptSequence(pkt.Header.Sequence, now); err != nil {
		s.metrics.StaleDropped.Add(1)
		log.Debug("Dropping out of order packet", zap.Error(err))
		return
	}

	// The challenge response body is the salt itself; everything else follows it.
	var r *wire.Reader
	if t == packet.Type_ConnectChallengeResponse {
		r = wire.NewReader(pkt.Data)
	} else {
		r = wire.NewReaderAt(pkt.Data, packet.SaltSize)
	}
	payload, err := packet.DecodeFromClient(t, r)
	if err != nil {
		s.metrics.Malformed.Add(1)
		log.Debug("Dropping undecodable packet", zap.Error(err))
		return
	}

	switch p := payload.(type) {
	case *packet.ChallengeResponse:
		s.onChallengeResponse(slot)
	case *packet.Ping:
		s.send(sess, packet.Ping{})
	case *packet.Disconnect:
		log.Info("Client disconnected")
		s.removeClient(slot, false)
	case *packet.Input:
		if !slot.Connected() {
			return
		}
		s.metrics.InputsAccepted.Add(uint64(len(p.Records)))
		if dropped := slot.QueueInputs(p.Records); dropped > 0 {
			s.metrics.InputsDropped.Add(uint64(dropped))
			log.Debug("Input queue full", zap.Int("dropped", dropped))
		}
	case *packet.Settings:
		if !slot.Connected() {
			return
		}
		slot.Settings = *p
		log.Info("Client settings updated", zap.String("name", p.Name), zap.Uint8("sprite", p.SpriteIndex))
		s.broadcastSettings()
	default:
		log.Debug("Ignoring packet type from client")
	}
}

// onChallengeResponse activates the player. A repeated response from an
// already connected client only repeats the ACCEPTED.
func (s *Server) onChallengeResponse(slot *registry.Slot) {
	sess := &slot.Session
	if slot.Connected() {
		s.send(sess, packet.ConnectAccepted{ClientId: slot.Id})
		return
	}

	sess.State = session.ConnectionState_Connected
	s.sim.AddPlayer(slot.Id)
	s.metrics.Connected.Store(int64(len(s.registry.Connected())))
	s.log.Info("Client connected", zap.Uint8("clientId", slot.Id), zap.String("addr", sess.Addr.String()))

	s.send(sess, packet.ConnectAccepted{ClientId: slot.Id})

	data, err := packet.Encode(s.buildState())
	if err != nil {
		s.log.Error("Failed to encode initial state", zap.Error(err))
		return
	}
	s.sendData(sess, packet.Type_State, data)
	slot.LastState = append(slot.LastState[:0], data...)
	s.metrics.StatesSent.Add(1)

	s.broadcastSettings()
}

func (s *Server) settingsEntries() []packet.SettingsEntry {
	connected := s.registry.Connected()
	entries := make([]packet.SettingsEntry, 0, len(connected))
	for _, slot := range connected {
		entries = append(entries, packet.SettingsEntry{ClientId: slot.Id, Settings: slot.Settings})
	}
	return entries
}

func (s *Server) broadcastSettings() {
	msg := packet.SettingsBroadcast{Entries: s.settingsEntries()}
	for _, slot := range s.registry.Connected() {
		s.send(&slot.Session, msg)
	}
}
