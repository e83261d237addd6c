package registry

import (
	goerrs "errors"
	"net/netip"
	"testing"
	"time"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"github.com/sessamekesh/arena-netcode/pkg/session"
)

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestAllocateFillsLowestSlot(t *testing.T) {
	r := CreateConnectionRegistry(3)
	now := time.Unix(10, 0)

	for i := 0; i < 3; i++ {
		slot, err := r.Allocate(addr(uint16(5000+i)), now)
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if slot.Id != uint8(i) {
			t.Fatalf("allocate %d got slot %d", i, slot.Id)
		}
		if slot.Session.State != session.ConnectionState_SendingConnectionRequest {
			t.Fatalf("new slot state = %s", slot.Session.State)
		}
	}

	_, err := r.Allocate(addr(6000), now)
	var full *TooManyClientsError
	if !goerrs.As(err, &full) {
		t.Fatalf("expected TooManyClientsError, got %v", err)
	}

	if err := r.Free(1); err != nil {
		t.Fatal(err)
	}
	slot, err := r.Allocate(addr(6000), now)
	if err != nil || slot.Id != 1 {
		t.Fatalf("freed slot not reused: %v %v", slot, err)
	}
}

func TestAllocateRejectsDuplicateAddress(t *testing.T) {
	r := CreateConnectionRegistry(packet.MaxClients)
	if _, err := r.Allocate(addr(1), time.Now()); err != nil {
		t.Fatal(err)
	}
	_, err := r.Allocate(addr(1), time.Now())
	var dup *DuplicateAddressError
	if !goerrs.As(err, &dup) {
		t.Fatalf("expected DuplicateAddressError, got %v", err)
	}
}

func TestFreeZeroesSlot(t *testing.T) {
	r := CreateConnectionRegistry(2)
	slot, _ := r.Allocate(addr(1), time.Now())
	slot.Session.State = session.ConnectionState_Connected
	slot.Settings.Name = "ghost"
	slot.LastState = []byte{1, 2, 3}
	slot.QueueInputs([]packet.InputRecord{{DeltaTime: 0.1, Actions: 1}})

	_ = r.Free(slot.Id)

	if _, found := r.FindByAddr(addr(1)); found {
		t.Fatal("freed slot still resolvable by address")
	}
	if slot.Settings.Name != "" || slot.LastState != nil || len(slot.Inputs) != 0 {
		t.Fatalf("slot not zeroed: %+v", slot)
	}
	if _, err := r.Get(slot.Id); err == nil {
		t.Fatal("Get on a free slot must fail")
	}
	if r.Count() != 0 {
		t.Fatalf("count = %d", r.Count())
	}
}

func TestOversizedRegistryIsClamped(t *testing.T) {
	r := CreateConnectionRegistry(100)
	if r.MaxConnections != packet.MaxClients {
		t.Fatalf("max connections = %d", r.MaxConnections)
	}
}

func TestConnectedAndTimeouts(t *testing.T) {
	r := CreateConnectionRegistry(4)
	start := time.Unix(1000, 0)

	a, _ := r.Allocate(addr(1), start)
	b, _ := r.Allocate(addr(2), start)
	c, _ := r.Allocate(addr(3), start)
	a.Session.State = session.ConnectionState_Connected
	c.Session.State = session.ConnectionState_Connected

	a.Session.Touch(start.Add(8 * time.Second))

	connected := r.Connected()
	if len(connected) != 2 || connected[0].Id != a.Id || connected[1].Id != c.Id {
		t.Fatalf("connected = %+v", connected)
	}

	kick := r.GetTimeoutClientList(start.Add(time.Second))
	if len(kick) != 2 || kick[0] != b.Id || kick[1] != c.Id {
		t.Fatalf("timed out = %v", kick)
	}
}

func TestTimeoutDeadlineIsInclusive(t *testing.T) {
	r := CreateConnectionRegistry(4)
	start := time.Unix(1000, 0)
	a, _ := r.Allocate(addr(1), start)

	if kick := r.GetTimeoutClientList(start.Add(-time.Nanosecond)); len(kick) != 0 {
		t.Fatalf("kicked before the deadline: %v", kick)
	}
	if kick := r.GetTimeoutClientList(start); len(kick) != 1 || kick[0] != a.Id {
		t.Fatalf("not kicked at the deadline: %v", kick)
	}
}

func TestQueueInputsIsBounded(t *testing.T) {
	r := CreateConnectionRegistry(1)
	slot, _ := r.Allocate(addr(1), time.Now())

	batch := make([]packet.InputRecord, 10)
	if dropped := slot.QueueInputs(batch); dropped != 0 {
		t.Fatalf("dropped %d of first batch", dropped)
	}
	if dropped := slot.QueueInputs(batch); dropped != 4 {
		t.Fatalf("dropped %d, want 4", dropped)
	}
	if dropped := slot.QueueInputs(batch[:1]); dropped != 1 {
		t.Fatalf("full queue accepted input")
	}
	if len(slot.Inputs) != packet.MaxInputRecords {
		t.Fatalf("queue length = %d", len(slot.Inputs))
	}
}
