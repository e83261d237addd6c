package registry

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
)

type DuplicateAddressError struct {
	Addr netip.AddrPort
}

func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("Attempted to create client for address %s which already has a slot", e.Addr)
}

type MissingClientIdError struct {
	Id uint8
}

func (e *MissingClientIdError) Error() string {
	return fmt.Sprintf("Missing client with id=%d", e.Id)
}

type TooManyClientsError struct {
	MaxConnections int
}

func (e *TooManyClientsError) Error() string {
	return fmt.Sprintf("Too many clients are connected (%d) - cannot create new client", e.MaxConnections)
}

// Slot is the server's record of one client. The slot index doubles as the
// client id sent in CONNECT_ACCEPTED.
type Slot struct {
	Id      uint8
	Session session.Session

	CreatedTime time.Time

	Inputs      []packet.InputRecord
	HeldActions uint32

	Settings packet.Settings

	// Payload of the last STATE sent to this client, for deduplication.
	LastState []byte
}

func (s *Slot) InUse() bool {
	return s.Session.State != session.ConnectionState_Disconnected
}

func (s *Slot) Connected() bool {
	return s.Session.State == session.ConnectionState_Connected
}

// QueueInputs appends records to the bounded input queue and returns how many
// had to be dropped.
func (s *Slot) QueueInputs(records []packet.InputRecord) int {
	room := packet.MaxInputRecords - len(s.Inputs)
	if room <= 0 {
		return len(records)
	}
	if len(records) > room {
		s.Inputs = append(s.Inputs, records[:room]...)
		return len(records) - room
	}
	s.Inputs = append(s.Inputs, records...)
	return 0
}

// ConnectionRegistry is a fixed table of client slots. It is owned by the
// server goroutine and is not safe for concurrent use.
type ConnectionRegistry struct {
	MaxConnections int

	slots []Slot
}

func CreateConnectionRegistry(maxConnections int) *ConnectionRegistry {
	if maxConnections <= 0 || maxConnections > packet.MaxClients {
		maxConnections = packet.MaxClients
	}

	slots := make([]Slot, maxConnections)
	for i := range slots {
		slots[i].Id = uint8(i)
	}

	return &ConnectionRegistry{
		MaxConnections: maxConnections,
		slots:          slots,
	}
}

func (r *ConnectionRegistry) FindByAddr(addr netip.AddrPort) (*Slot, bool) {
	for i := range r.slots {
		if r.slots[i].InUse() && r.slots[i].Session.Addr == addr {
			return &r.slots[i], true
		}
	}
	return nil, false
}

func (r *ConnectionRegistry) Get(id uint8) (*Slot, error) {
	if int(id) >= len(r.slots) || !r.slots[id].InUse() {
		return nil, &MissingClientIdError{Id: id}
	}
	return &r.slots[id], nil
}

// Allocate claims the lowest free slot for addr and puts it in
// SendingConnectionRequest. The idle timer starts at now so that a handshake
// that is never completed still expires.
func (r *ConnectionRegistry) Allocate(addr netip.AddrPort, now time.Time) (*Slot, error) {
	if _, has := r.FindByAddr(addr); has {
		return nil, &DuplicateAddressError{Addr: addr}
	}

	for i := range r.slots {
		slot := &r.slots[i]
		if slot.InUse() {
			continue
		}
		*slot = Slot{
			Id:          uint8(i),
			Session:     session.Session{Addr: addr, State: session.ConnectionState_SendingConnectionRequest},
			CreatedTime: now,
			Inputs:      make([]packet.InputRecord, 0, packet.MaxInputRecords),
		}
		slot.Session.Touch(now)
		return slot, nil
	}

	return nil, &TooManyClientsError{MaxConnections: r.MaxConnections}
}

// Free zeroes a slot so nothing from the previous client leaks to the next.
func (r *ConnectionRegistry) Free(id uint8) error {
	if int(id) >= len(r.slots) {
		return &MissingClientIdError{Id: id}
	}
	r.slots[id] = Slot{Id: id}
	return nil
}

// Count is the number of slots in use, connected or mid-handshake.
func (r *ConnectionRegistry) Count() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].InUse() {
			n++
		}
	}
	return n
}

// Connected lists fully connected slots in id order.
func (r *ConnectionRegistry) Connected() []*Slot {
	out := make([]*Slot, 0, len(r.slots))
	for i := range r.slots {
		if r.slots[i].Connected() {
			out = append(out, &r.slots[i])
		}
	}
	return out
}

// GetTimeoutClientList returns slots in use whose last accepted packet is at
// or before deadline.
func (r *ConnectionRegistry) GetTimeoutClientList(deadline time.Time) []uint8 {
	clientsToKick := []uint8{}
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.InUse() && !slot.Session.LastAccepted.After(deadline) {
			clientsToKick = append(clientsToKick, slot.Id)
		}
	}
	return clientsToKick
}
