package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/sessamekesh/arena-netcode/pkg/packet"
	"go.uber.org/zap"
)

type UdpSocketParams struct {
	// Host may be empty to listen on every interface.
	Host string
	// Port 0 picks an ephemeral port, which is what clients want.
	Port int

	// Received datagrams waiting for Poll. Once full, new datagrams are dropped.
	QueueSize int

	ReadBufferSize  int
	WriteBufferSize int

	Logger *zap.Logger
}

type UdpSocket struct {
	log  *zap.Logger
	conn *net.UDPConn

	incoming chan Datagram
	dropped  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// ListenUdp binds a UDP socket and starts its reader goroutine. The socket is
// closed when ctx is cancelled or Close is called.
func ListenUdp(ctx context.Context, params UdpSocketParams) (*UdpSocket, error) {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}
	queueSize := params.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	hostAddr, hostAddrErr := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", params.Host, params.Port))
	if hostAddrErr != nil {
		return nil, hostAddrErr
	}

	conn, listenErr := net.ListenUDP("udp", hostAddr)
	if listenErr != nil {
		return nil, listenErr
	}

	if params.ReadBufferSize > 0 {
		conn.SetReadBuffer(params.ReadBufferSize)
	}
	if params.WriteBufferSize > 0 {
		conn.SetWriteBuffer(params.WriteBufferSize)
	}

	s := &UdpSocket{
		log:      logger.With(zap.String("handler", "udpSocket"), zap.String("localAddr", conn.LocalAddr().String())),
		conn:     conn,
		incoming: make(chan Datagram, queueSize),
		done:     make(chan struct{}),
	}

	//
	// Connection closing goroutine
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	//
	// Datagram listening goroutine
	go s.readLoop()

	return s, nil
}

func (s *UdpSocket) readLoop() {
	for {
		var buf [packet.MaxPacketSize]byte
		bytesRead, clientAddr, err := s.conn.ReadFromUDPAddrPort(buf[0:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.log.Info("UDP socket close requested - exiting datagram listening goroutine")
			} else {
				s.log.Error("Error reading UDP datagram from connection, closing!", zap.Error(err))
			}
			close(s.incoming)
			return
		}

		datagram := Datagram{
			Addr: netip.AddrPortFrom(clientAddr.Addr().Unmap(), clientAddr.Port()),
			Data: append([]byte(nil), buf[0:bytesRead]...),
		}

		select {
		case s.incoming <- datagram:
		default:
			if s.dropped.Add(1)%100 == 1 {
				s.log.Warn("Incoming datagram queue full, dropping", zap.Uint64("dropped", s.dropped.Load()))
			}
		}
	}
}

func (s *UdpSocket) SendTo(b []byte, addr netip.AddrPort) error {
	_, err := s.conn.WriteToUDPAddrPort(b, addr)
	return err
}

func (s *UdpSocket) Poll() (Datagram, bool) {
	select {
	case d, ok := <-s.incoming:
		return d, ok
	default:
		return Datagram{}, false
	}
}

func (s *UdpSocket) LocalAddr() netip.AddrPort {
	ap := s.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Dropped is the number of datagrams discarded because Poll fell behind.
func (s *UdpSocket) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *UdpSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
