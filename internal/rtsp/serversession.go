// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTimeout is the inactivity window after which a server sweeps
// a session with no keepalive/request traffic (RFC 2326 §12.37 default).
const DefaultSessionTimeout = 60 * time.Second

// ServerSession tracks one RTSP session on the server side: its state-machine
// position, its hooks into the media layer, and the bookkeeping the session
// registry's timeout sweep needs. One ServerSession is touched only by the
// connection goroutine that owns it, except for LastActivity/State reads by
// the sweep goroutine, which is why those are guarded by mu.
type ServerSession struct {
	id    string
	hooks SessionHooks
	push  func([]byte) error

	mu           sync.Mutex
	state        ServerState
	lastActivity time.Time
	timeout      time.Duration
	redirectSeq  int
}

// NewServerSession creates a session in the INIT state with a random
// 8-hex-character id.
// push, if non-nil, is the connection write used by Redirect to deliver an
// unsolicited REDIRECT request; a nil push makes Redirect a no-op error,
// which is fine for sessions built outside a live connection (tests).
func NewServerSession(hooks SessionHooks, push func([]byte) error) *ServerSession {
	return &ServerSession{
		id:           uuid.NewString()[:8],
		hooks:        hooks,
		push:         push,
		state:        StateInit,
		lastActivity: timeNow(),
		timeout:      DefaultSessionTimeout,
	}
}

// Redirect sends an unsolicited REDIRECT request (RFC 2326 §10.10) to this
// session's client, pointing it at location. It is only meaningful once the
// session has reached PLAYING; the server never solicits REDIRECT itself,
// it only offers the operation to callers that want to migrate a live
// session elsewhere.
func (s *ServerSession) Redirect(location string) error {
	if s.push == nil {
		return fmt.Errorf("rtsp: session %s has no connection to redirect on", s.id)
	}
	s.mu.Lock()
	s.redirectSeq++
	seq := s.redirectSeq
	s.mu.Unlock()

	req := &Request{
		Method:  MethodRedirect,
		URI:     "*",
		Version: Version,
		Headers: Headers{
			{Name: "CSeq", Value: strconv.Itoa(seq)},
			{Name: "Session", Value: s.id},
			{Name: "Location", Value: location},
		},
	}
	return s.push(req.Bytes())
}

// timeNow is a var so tests can freeze time for timeout-sweep assertions.
var timeNow = time.Now

// ID returns the session identifier placed in the Session response header.
func (s *ServerSession) ID() string { return s.id }

// State returns the current FSM state.
func (s *ServerSession) State() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Idle reports whether the session has been inactive longer than its
// configured timeout.
func (s *ServerSession) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return timeNow().Sub(s.lastActivity) > s.timeout
}

// HandleRequest dispatches req to the handler for the session's current
// state, applies the resulting transition, and stamps the activity clock.
// It is the single entry point the server connection loop calls for every
// request on the connection, the first SETUP included; the session itself
// is created when the connection is accepted.
func (s *ServerSession) HandleRequest(req *Request) *Response {
	s.mu.Lock()
	h := handlerFor(s.state)
	s.mu.Unlock()

	var resp *Response
	var next ServerState

	switch req.Method {
	case MethodOptions:
		resp, next = h.OnOptionsRequest(s, req)
	case MethodDescribe:
		resp, next = h.OnDescribeRequest(s, req)
	case MethodAnnounce:
		resp, next = h.OnAnnounceRequest(s, req)
	case MethodSetup:
		resp, next = h.OnSetupRequest(s, req)
	case MethodPlay:
		resp, next = h.OnPlayRequest(s, req)
	case MethodRecord:
		resp, next = h.OnRecordRequest(s, req)
	case MethodPause:
		resp, next = h.OnPauseRequest(s, req)
	case MethodTeardown:
		resp, next = h.OnTeardownRequest(s, req)
	case MethodGetParameter:
		resp, next = h.OnGetParameterRequest(s, req)
	case MethodSetParameter:
		resp, next = h.OnSetParameterRequest(s, req)
	default:
		resp, next = statusResponse(req, StatusNotImplemented), s.State()
	}

	s.mu.Lock()
	s.state = next
	s.lastActivity = timeNow()
	s.mu.Unlock()

	return resp
}

// SessionRegistry is a concurrency-safe map of session id to ServerSession,
// with a background sweep that tears down idle sessions the client never
// sent TEARDOWN for.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*ServerSession

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewSessionRegistry creates a registry and starts its sweep goroutine.
func NewSessionRegistry(sweepInterval time.Duration) *SessionRegistry {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	r := &SessionRegistry{
		sessions:      make(map[string]*ServerSession),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Add registers a newly created session.
func (r *SessionRegistry) Add(s *ServerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// Get looks up a session by id.
func (r *SessionRegistry) Get(id string) (*ServerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session, typically after TEARDOWN.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Close stops the sweep goroutine.
func (r *SessionRegistry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *SessionRegistry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepIdle()
		case <-r.stop:
			return
		}
	}
}

func (r *SessionRegistry) sweepIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.Idle() {
			if err := s.hooks.Teardown(&Request{Headers: Headers{{Name: "Session", Value: id}}}); err != nil {
				_ = err // best-effort: the session is gone from the registry either way
			}
			delete(r.sessions, id)
		}
	}
}
