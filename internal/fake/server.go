// Package fake provides a fake legacy status server for tests and local development.
package fake

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/legacyping/internal/legacy"
)

// Responder builds the bytes written back for a received request.
// A nil result makes the server stay silent until the client hangs up.
type Responder func(req []byte) []byte

// Server is a TCP listener answering every connection with its Responder.
type Server struct {
	ln      net.Listener
	respond Responder

	done     chan struct{}
	lastReq  atomic.Value
	wg       sync.WaitGroup
	started  atomic.Bool
	accepted atomic.Int64
	released atomic.Int64

	// Delay is applied before the response is written.
	Delay time.Duration
}

// Listen binds addr (use "127.0.0.1:0" for an ephemeral port).
func Listen(addr string, respond Responder) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{ln: ln, respond: respond, done: make(chan struct{})}, nil
}

// Start is Listen followed by Serve in a new goroutine.
func Start(addr string, respond Responder) (*Server, error) {
	s, err := Listen(addr, respond)
	if err != nil {
		return nil, err
	}

	go s.Serve()

	return s, nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	s.started.Store(true)
	defer close(s.done)

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Msg("Fake server accept failed")
			}
			return
		}

		s.accepted.Add(1)
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops accepting and waits for open connections to be released by their clients.
func (s *Server) Close() error {
	err := s.ln.Close()
	if s.started.Load() {
		<-s.done
	}
	s.wg.Wait()
	return err
}

// Address returns the listening address.
func (s *Server) Address() legacy.Address {
	tcp := s.ln.Addr().(*net.TCPAddr)
	return legacy.Address{Host: tcp.IP.String(), Port: uint16(tcp.Port)}
}

// Accepted is the number of accepted connections.
func (s *Server) Accepted() int64 { return s.accepted.Load() }

// Released is the number of connections the client side closed.
func (s *Server) Released() int64 { return s.released.Load() }

// WaitReleased blocks until n connections have been released or timeout passes.
func (s *Server) WaitReleased(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.released.Load() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}

	return s.released.Load() >= n
}

// LastRequest returns the bytes received on the most recent connection.
func (s *Server) LastRequest() []byte {
	if v, ok := s.lastReq.Load().([]byte); ok {
		return v
	}
	return nil
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	// Clients that never hang up must not pin the server forever.
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	req := make([]byte, len(legacy.Request))
	n, err := io.ReadFull(conn, req)
	s.lastReq.Store(append([]byte(nil), req[:n]...))
	if err != nil {
		s.drain(conn)
		return
	}

	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	if out := s.respond(req); out != nil {
		if _, err := conn.Write(out); err != nil {
			log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("Fake server write failed")
		}
		// half-close so truncated frames reach the client as end of stream
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
	}

	s.drain(conn)
}

// drain reads until the client closes its side. A reset counts as a close,
// since clients abandoning unread bytes trigger one.
func (s *Server) drain(conn net.Conn) {
	_, err := io.Copy(io.Discard, conn)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Fake server client never hung up")
		return
	}

	s.released.Add(1)
}
