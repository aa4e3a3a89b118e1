package mjpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("mjpeg")

// ErrBindFailed is the fatal startup error for a failed loopback bind.
var ErrBindFailed = errors.New("mjpeg: failed to bind loopback listener")

const (
	boundary = "--mjpegstream"

	// maxRequestBytes bounds how much of the client's request line/headers
	// are read and discarded before the response is written.
	maxRequestBytes = 4096

	// pollInterval is how often an idle client worker rechecks the ring for
	// new frames.
	pollInterval = time.Millisecond
)

// Server owns the ring, the loopback listener, and one goroutine per
// connected client. The URL path is ignored: any request to any path gets
// the stream.
type Server struct {
	ring *Ring

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewServer constructs a Server around ring. ring is shared with the
// encoder-dispatch side, which calls Submit.
func NewServer(ring *Ring) *Server {
	return &Server{ring: ring, conns: make(map[net.Conn]struct{})}
}

// Start binds 127.0.0.1:port (0 for ephemeral), begins accepting
// connections, and returns the bound port.
func (s *Server) Start(port uint16) (uint16, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	boundPort := listener.Addr().(*net.TCPAddr).Port

	s.wg.Add(1)
	go s.acceptLoop(listener)

	return uint16(boundPort), nil
}

// Submit appends an encoded frame to the shared ring.
func (s *Server) Submit(jpegBytes []byte) {
	s.ring.Append(Frame{Bytes: jpegBytes, Timestamp: time.Now()})
}

// Stop closes the listener and every connected client socket; in-flight
// client writes are aborted by socket close.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	if listener == nil {
		return nil
	}
	err := listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			log.Warn("accept failed", "error", err)
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveClient(conn)
	}
}

// serveClient discards the request, writes the multipart response headers,
// snapshots the ring as a warm-up, then polls for new frames until a write
// fails.
func (s *Server) serveClient(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	clientLog := log.With("remote", conn.RemoteAddr().String())

	if err := discardRequest(conn); err != nil {
		clientLog.Debug("client disconnected before sending a request", "error", err)
		return
	}

	if err := writeResponseHeader(conn); err != nil {
		clientLog.Debug("client write error on response header", "error", err)
		return
	}

	frames, cursor := s.ring.Snapshot()
	for _, f := range frames {
		if err := writeFrame(conn, f); err != nil {
			clientLog.Debug("client write error during warm-up", "error", err)
			return
		}
	}

	for {
		newFrames, newCursor := s.ring.Since(cursor)
		if len(newFrames) == 0 {
			if s.isClosed() {
				return
			}
			time.Sleep(pollInterval)
			continue
		}
		for _, f := range newFrames {
			if err := writeFrame(conn, f); err != nil {
				clientLog.Debug("client write error", "error", err)
				return
			}
		}
		cursor = newCursor
	}
}

// discardRequest reads and throws away bytes up to the first CRLFCRLF,
// bounded to maxRequestBytes; the request path and method are never
// inspected.
func discardRequest(conn net.Conn) error {
	reader := bufio.NewReaderSize(conn, maxRequestBytes)
	seen := 0
	match := 0
	crlfcrlf := "\r\n\r\n"

	for seen < maxRequestBytes {
		b, err := reader.ReadByte()
		if err != nil {
			return err
		}
		seen++

		if b == crlfcrlf[match] {
			match++
			if match == len(crlfcrlf) {
				return nil
			}
		} else if b == crlfcrlf[0] {
			match = 1
		} else {
			match = 0
		}
	}
	return nil
}

func writeResponseHeader(conn net.Conn) error {
	header := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: multipart/x-mixed-replace; boundary=" + boundary + "\r\n" +
		"Cache-Control: no-cache, no-store, must-revalidate\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	_, err := conn.Write([]byte(header))
	return err
}

// writeFrame emits one multipart part: boundary, part headers, JPEG bytes,
// trailing CRLF. No terminating boundary is ever written.
func writeFrame(conn net.Conn, f Frame) error {
	head := boundary + "\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Length: " + strconv.Itoa(len(f.Bytes)) + "\r\n\r\n"

	if _, err := conn.Write([]byte(head)); err != nil {
		return err
	}
	if _, err := conn.Write(f.Bytes); err != nil {
		return err
	}
	_, err := conn.Write([]byte("\r\n"))
	return err
}
