// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/winkstreaming/rtspstack/internal/transport"
)

// InterleavedReceiver is implemented by a SessionHooks value that wants to
// observe inbound TCP-interleaved frames (RFC 2326 §10.12) the server's
// per-connection demux goroutine pulls off the wire for channels that
// aren't part of an RTSP request/response — in practice, client-to-server
// RTCP receiver reports on an interleaved track's RTCP channel. A
// SessionHooks that doesn't implement this simply never sees them.
type InterleavedReceiver interface {
	HandleInterleaved(channel uint8, payload []byte)
}

// HooksFactory builds the SessionHooks implementation for one freshly
// accepted connection. Server is intentionally ignorant of the media
// package (rtsp is the layer media builds on, not the reverse), so the
// caller supplies this, the same way rtsp.NewClient is handed its own
// Listener, rather than the server reaching into a concrete stream registry
// itself.
type HooksFactory func(conn net.Conn, writeMu *sync.Mutex) SessionHooks

// Server accepts RTSP control connections, runs one ServerSession's state
// machine per connection, and demultiplexes each connection's TCP-
// interleaved media frames from its RTSP request stream with one read task
// per accepted connection.
type Server struct {
	hooksFactory HooksFactory
	registry     *SessionRegistry
	log          zerolog.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateLimit rate.Limit
	rateBurst int

	listener net.Listener
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithAcceptRate sets the per-remote-address token-bucket rate (connections
// per second) and burst applied to inbound TCP accepts, guarding against a
// single misbehaving or malicious address opening connections faster than
// the server can usefully service; this is the accept-loop counterpart to
// internal/loadtest's own use of golang.org/x/time/rate for pacing the
// other direction.
func WithAcceptRate(perSecond rate.Limit, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

// NewServer creates a Server. hooksFactory is called once per accepted
// connection to build that connection's SessionHooks.
func NewServer(hooksFactory HooksFactory, log zerolog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		hooksFactory: hooksFactory,
		registry:     NewSessionRegistry(10 * time.Second),
		log:          log,
		limiters:     make(map[string]*rate.Limiter),
		rateLimit:    rate.Limit(20),
		rateBurst:    5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe binds addr and serves until Close is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rtsp: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close is called or Accept fails.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("rtsp: accept: %w", err)
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if !s.allow(host) {
			s.log.Warn().Str("remote", host).Msg("rejecting connection: rate limit exceeded")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// allow applies a per-remote-address token bucket to inbound accepts.
func (s *Server) allow(host string) bool {
	s.limiterMu.Lock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.rateLimit, s.rateBurst)
		s.limiters[host] = l
	}
	s.limiterMu.Unlock()
	return l.Allow()
}

// Close stops accepting new connections. In-flight connections are not
// forcibly closed; they drain on their own TEARDOWN or read error.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	s.registry.Close()
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// serverConn holds the per-connection state the request/frame demux loop
// needs: the shared writer lock every response and every TCP-interleaved
// media write serializes on, and the connection's session, created when the
// connection is accepted (this stack runs one session per connection).
type serverConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	demux   *transport.Demuxer
	writeMu sync.Mutex

	session *ServerSession
	hooks   SessionHooks
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	sc := &serverConn{
		conn: conn,
	}
	sc.reader = bufio.NewReader(conn)
	sc.demux = transport.NewDemuxer(sc.reader)
	sc.hooks = s.hooksFactory(conn, &sc.writeMu)
	sc.session = NewServerSession(sc.hooks, func(b []byte) error {
		sc.writeMu.Lock()
		defer sc.writeMu.Unlock()
		_, err := conn.Write(b)
		return err
	})
	s.registry.Add(sc.session)

	remote := conn.RemoteAddr().String()
	s.log.Debug().Str("remote", remote).Msg("connection accepted")
	defer func() {
		s.registry.Remove(sc.session.ID())
		_ = sc.hooks.Teardown(&Request{Headers: Headers{{Name: "Session", Value: sc.session.ID()}}})
		s.log.Debug().Str("remote", remote).Msg("connection closed")
	}()

	for {
		req, err := sc.nextRequest()
		if err != nil {
			if err != errConnectionClosed {
				s.log.Debug().Err(err).Str("remote", remote).Msg("connection read error")
			}
			return
		}

		resp := sc.session.HandleRequest(req)
		if cseq := req.Headers.Get("CSeq"); cseq != "" {
			resp.Headers.Set("CSeq", cseq)
		}

		sc.writeMu.Lock()
		_, writeErr := conn.Write(resp.Bytes())
		sc.writeMu.Unlock()
		if writeErr != nil {
			s.log.Debug().Err(writeErr).Str("remote", remote).Msg("response write failed")
			return
		}
	}
}

var errConnectionClosed = fmt.Errorf("rtsp: connection closed")

// nextRequest reads the next RTSP request off the connection, transparently
// routing any TCP-interleaved frame that arrives ahead of it (a client's
// RTCP receiver report on an interleaved track) to the session's hooks.
func (sc *serverConn) nextRequest() (*Request, error) {
	for {
		frame, ok, err := sc.demux.ReadNext()
		if err != nil {
			return nil, errConnectionClosed
		}
		if ok {
			if recv, ok := sc.hooks.(InterleavedReceiver); ok {
				recv.HandleInterleaved(frame.Channel, frame.Payload)
			}
			continue
		}

		line, err := sc.reader.ReadString('\n')
		if err != nil {
			return nil, errConnectionClosed
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return sc.readRequestTail(line)
	}
}

// readRequestTail parses one request given its already-read request line,
// reading headers and any Content-Length body off the shared bufio.Reader.
func (sc *serverConn) readRequestTail(requestLine string) (*Request, error) {
	requestLine = strings.TrimRight(requestLine, "\r\n")
	fields := strings.Fields(requestLine)
	if len(fields) != 3 {
		return nil, fmt.Errorf("rtsp: malformed request line %q", requestLine)
	}
	method, uri, version := fields[0], fields[1], fields[2]

	headers := Headers{}
	contentLength := 0
	for {
		line, err := sc.reader.ReadString('\n')
		if err != nil {
			return nil, errConnectionClosed
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers.Add(name, value)
		if strings.EqualFold(name, "Content-Length") {
			contentLength, _ = strconv.Atoi(value)
		}
	}

	var body []byte
	if contentLength > 0 {
		body = make([]byte, contentLength)
		if _, err := io.ReadFull(sc.reader, body); err != nil {
			return nil, errConnectionClosed
		}
	}

	return &Request{Method: Method(method), URI: uri, Version: version, Headers: headers, Body: body}, nil
}
