package udp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
)

const localhost = "127.0.0.1"

// Listen opens UDP socket on localhost, port 0 means random port
func Listen(port uint16) (*net.UDPConn, error) {
	return net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP(localhost), Port: int(port)})
}

// FreePortPair returns an even port P so that P and P+1 (RTP and RTCP) are free.
// Ports are released before return, so there is a small chance of a race with other programs.
func FreePortPair() (uint16, error) {
	for i := 0; i < 20; i++ {
		conn, err := Listen(0)
		if err != nil {
			return 0, err
		}

		port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
		if port%2 == 1 || port == 65534 {
			_ = conn.Close()
			continue
		}

		conn2, err := Listen(port + 1)
		_ = conn.Close()
		if err != nil {
			continue
		}
		_ = conn2.Close()

		return port, nil
	}

	return 0, errors.New("udp: can't find free port pair")
}

// Relay keeps two adjacent ports (media and control) bound and drains
// everything sent to them, so the sender never gets "port unreachable".
type Relay struct {
	port  uint16
	conns []*net.UDPConn
	recv  atomic.Int64
	wg    sync.WaitGroup
	once  sync.Once
}

// Bind binds port and port+1 on localhost
func Bind(port uint16) (*Relay, error) {
	media, err := Listen(port)
	if err != nil {
		return nil, err
	}

	control, err := Listen(port + 1)
	if err != nil {
		_ = media.Close()
		return nil, err
	}

	r := &Relay{port: port, conns: []*net.UDPConn{media, control}}
	for _, conn := range r.conns {
		r.wg.Add(1)
		go r.drain(conn)
	}
	return r, nil
}

func (r *Relay) drain(conn *net.UDPConn) {
	defer r.wg.Done()

	b := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFromUDP(b)
		if err != nil {
			return
		}
		r.recv.Add(int64(n))
	}
}

func (r *Relay) Port() uint16 {
	return r.port
}

// Recv returns total bytes received on both ports
func (r *Relay) Recv() int64 {
	return r.recv.Load()
}

// Close unbinds both ports, after return they can be bound by another process
func (r *Relay) Close() error {
	var err error
	r.once.Do(func() {
		for _, conn := range r.conns {
			err = errors.Join(err, conn.Close())
		}
		r.wg.Wait()
	})
	return err
}

// Sender writes datagrams to a local port
type Sender struct {
	conn *net.UDPConn
	sent atomic.Int64
}

func NewSender(port uint16) (*Sender, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.ParseIP(localhost), Port: int(port)})
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn}, nil
}

// Write never returns "connection refused" from previous datagrams,
// nobody listening on the port is a normal state for a sender.
func (s *Sender) Write(b []byte) (int, error) {
	n, err := s.conn.Write(b)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return len(b), nil
		}
		return n, err
	}
	s.sent.Add(int64(n))
	return n, nil
}

func (s *Sender) Sent() int64 {
	return s.sent.Load()
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
