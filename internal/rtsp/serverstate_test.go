package rtsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHooks struct {
	setupErr    error
	playErr     error
	teardownErr error
	recordErr   error
	torndown    bool
}

func (f *fakeHooks) Describe(req *Request) ([]byte, error) { return []byte("v=0\r\n"), nil }
func (f *fakeHooks) Setup(req *Request) (string, error) {
	if f.setupErr != nil {
		return "", f.setupErr
	}
	return "RTP/AVP;unicast;client_port=5004-5005;server_port=6000-6001", nil
}
func (f *fakeHooks) Play(req *Request) (string, error) {
	if f.playErr != nil {
		return "", f.playErr
	}
	return "url=rtsp://host/stream/trackID=0;seq=100;rtptime=0", nil
}
func (f *fakeHooks) Pause(req *Request) error { return nil }
func (f *fakeHooks) Record(req *Request) error {
	return f.recordErr
}
func (f *fakeHooks) Teardown(req *Request) error {
	f.torndown = true
	return f.teardownErr
}
func (f *fakeHooks) SetParameter(req *Request) error          { return nil }
func (f *fakeHooks) GetParameter(req *Request) ([]byte, error) { return nil, nil }

func requestWithCSeq(method Method, cseq string) *Request {
	return &Request{Method: method, URI: "rtsp://host/stream", Headers: Headers{{Name: "CSeq", Value: cseq}}}
}

func TestServerSessionFullHappyPath(t *testing.T) {
	hooks := &fakeHooks{}
	s := NewServerSession(hooks, nil)
	assert.Equal(t, StateInit, s.State())

	resp := s.HandleRequest(requestWithCSeq(MethodOptions, "1"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StateInit, s.State())

	resp = s.HandleRequest(requestWithCSeq(MethodDescribe, "2"))
	assert.Equal(t, StatusOK, resp.Status)

	resp = s.HandleRequest(requestWithCSeq(MethodSetup, "3"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, s.ID(), resp.Headers.Get("Session"))
	assert.Equal(t, StateReady, s.State())

	resp = s.HandleRequest(requestWithCSeq(MethodPlay, "4"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Headers.Get("RTP-Info"))
	assert.Equal(t, StatePlaying, s.State())

	resp = s.HandleRequest(requestWithCSeq(MethodPause, "5"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StatePaused, s.State())

	resp = s.HandleRequest(requestWithCSeq(MethodTeardown, "6"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StateInit, s.State())
	assert.True(t, hooks.torndown)
}

func TestServerSessionPausedStateTransitions(t *testing.T) {
	hooks := &fakeHooks{}
	s := NewServerSession(hooks, nil)

	require.Equal(t, StatusOK, s.HandleRequest(requestWithCSeq(MethodSetup, "1")).Status)
	require.Equal(t, StatusOK, s.HandleRequest(requestWithCSeq(MethodPlay, "2")).Status)
	require.Equal(t, StatusOK, s.HandleRequest(requestWithCSeq(MethodPause, "3")).Status)
	require.Equal(t, StatePaused, s.State())

	// SETUP while paused is rejected, unlike the READY/PLAYING states.
	resp := s.HandleRequest(requestWithCSeq(MethodSetup, "4"))
	assert.Equal(t, StatusMethodNotValidInThisState, resp.Status)
	assert.Equal(t, StatePaused, s.State())

	// PAUSE while already paused is an idempotent no-op.
	resp = s.HandleRequest(requestWithCSeq(MethodPause, "5"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StatePaused, s.State())

	// PLAY resumes into PLAYING.
	resp = s.HandleRequest(requestWithCSeq(MethodPlay, "6"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StatePlaying, s.State())

	require.Equal(t, StatusOK, s.HandleRequest(requestWithCSeq(MethodPause, "7")).Status)
	require.Equal(t, StatePaused, s.State())

	resp = s.HandleRequest(requestWithCSeq(MethodTeardown, "8"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StateInit, s.State())
	assert.True(t, hooks.torndown)
}

func TestServerSessionTeardownBeforeSetupIsNoOp(t *testing.T) {
	hooks := &fakeHooks{}
	s := NewServerSession(hooks, nil)
	resp := s.HandleRequest(requestWithCSeq(MethodTeardown, "1"))
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StateInit, s.State())
	assert.False(t, hooks.torndown)
}

func TestServerSessionPlayBeforeSetupRejected(t *testing.T) {
	s := NewServerSession(&fakeHooks{}, nil)
	resp := s.HandleRequest(requestWithCSeq(MethodPlay, "1"))
	assert.Equal(t, StatusMethodNotValidInThisState, resp.Status)
	assert.Equal(t, StateInit, s.State())
}

func TestServerSessionAnnounceRecordAlwaysNotImplemented(t *testing.T) {
	s := NewServerSession(&fakeHooks{}, nil)
	resp := s.HandleRequest(requestWithCSeq(MethodAnnounce, "1"))
	assert.Equal(t, StatusNotImplemented, resp.Status)

	resp = s.HandleRequest(requestWithCSeq(MethodRecord, "2"))
	assert.Equal(t, StatusNotImplemented, resp.Status)
}

func TestServerSessionSetupFailureStaysInState(t *testing.T) {
	hooks := &fakeHooks{setupErr: assertErr}
	s := NewServerSession(hooks, nil)
	resp := s.HandleRequest(requestWithCSeq(MethodSetup, "1"))
	assert.Equal(t, StatusUnsupportedTransport, resp.Status)
	assert.Equal(t, StateInit, s.State())
}

func TestSessionRegistryAddGetRemove(t *testing.T) {
	hooks := &fakeHooks{}
	s := NewServerSession(hooks, nil)

	reg := NewSessionRegistry(time.Hour)
	defer reg.Close()
	reg.Add(s)

	got, ok := reg.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	reg.Remove(s.ID())
	_, ok = reg.Get(s.ID())
	assert.False(t, ok)
}

func TestServerSessionIdleAfterTimeout(t *testing.T) {
	s := NewServerSession(&fakeHooks{}, nil)
	s.timeout = 0
	assert.True(t, s.Idle())

	s.timeout = time.Hour
	s.lastActivity = timeNow()
	assert.False(t, s.Idle())
}

var assertErr = &simpleErr{"setup failed"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
