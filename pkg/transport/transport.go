package transport

import "net/netip"

type Datagram struct {
	Addr netip.AddrPort
	Data []byte
}

// PacketConn is the only view of the network the game loops have: send bytes
// to an address, and poll for a received datagram without blocking.
type PacketConn interface {
	SendTo(b []byte, addr netip.AddrPort) error
	Poll() (Datagram, bool)
	LocalAddr() netip.AddrPort
	Close() error
}
