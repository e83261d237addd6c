package transport

import (
	"net"
	"net/netip"
	"sync"

	"github.com/sessamekesh/arena-netcode/pkg/errors"
)

// MemoryNetwork delivers datagrams between in-process endpoints. Like UDP it
// silently drops datagrams sent to nobody, and Drop can be set to simulate
// loss.
type MemoryNetwork struct {
	// Drop, when set, is consulted for every datagram. Returning true loses it.
	Drop func(from, to netip.AddrPort, b []byte) bool

	mut_endpoints sync.RWMutex
	endpoints     map[netip.AddrPort]*MemoryConn
}

func CreateMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		endpoints: make(map[netip.AddrPort]*MemoryConn),
	}
}

func (n *MemoryNetwork) Listen(addr netip.AddrPort) (*MemoryConn, error) {
	n.mut_endpoints.Lock()
	defer n.mut_endpoints.Unlock()

	if _, has := n.endpoints[addr]; has {
		return nil, &errors.NameCollision{
			CollisionContext: "MemoryNetwork",
			Name:             addr.String(),
		}
	}

	conn := &MemoryConn{
		network: n,
		addr:    addr,
	}
	n.endpoints[addr] = conn
	return conn, nil
}

func (n *MemoryNetwork) deliver(from, to netip.AddrPort, b []byte) {
	if n.Drop != nil && n.Drop(from, to, b) {
		return
	}

	n.mut_endpoints.RLock()
	dest, has := n.endpoints[to]
	n.mut_endpoints.RUnlock()
	if !has {
		return
	}

	dest.mut_queue.Lock()
	defer dest.mut_queue.Unlock()
	dest.queue = append(dest.queue, Datagram{Addr: from, Data: append([]byte(nil), b...)})
}

func (n *MemoryNetwork) remove(addr netip.AddrPort) {
	n.mut_endpoints.Lock()
	defer n.mut_endpoints.Unlock()
	delete(n.endpoints, addr)
}

type MemoryConn struct {
	network *MemoryNetwork
	addr    netip.AddrPort

	mut_queue sync.Mutex
	queue     []Datagram
	closed    bool
}

func (c *MemoryConn) SendTo(b []byte, addr netip.AddrPort) error {
	c.mut_queue.Lock()
	closed := c.closed
	c.mut_queue.Unlock()
	if closed {
		return net.ErrClosed
	}

	c.network.deliver(c.addr, addr, b)
	return nil
}

func (c *MemoryConn) Poll() (Datagram, bool) {
	c.mut_queue.Lock()
	defer c.mut_queue.Unlock()

	if len(c.queue) == 0 {
		return Datagram{}, false
	}
	d := c.queue[0]
	c.queue = c.queue[1:]
	return d, true
}

// Pending is the number of datagrams waiting to be polled.
func (c *MemoryConn) Pending() int {
	c.mut_queue.Lock()
	defer c.mut_queue.Unlock()
	return len(c.queue)
}

func (c *MemoryConn) LocalAddr() netip.AddrPort {
	return c.addr
}

func (c *MemoryConn) Close() error {
	c.mut_queue.Lock()
	c.closed = true
	c.queue = nil
	c.mut_queue.Unlock()

	c.network.remove(c.addr)
	return nil
}
