// Created by WINK Streaming (https://www.wink.co)
package rtsp

import "fmt"

// ServerState is a node in the server-side session state machine (RFC 2326
// §A.1). Transitions are driven by the per-state On*Request methods below.
type ServerState int

const (
	StateInit ServerState = iota
	StateReady
	StatePlaying
	StatePaused
	StateRecording
)

func (s ServerState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePaused:
		return "PAUSED"
	case StateRecording:
		return "RECORDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// SessionHooks is implemented by the caller to supply the media-specific
// behavior behind each RTSP method. The state machine itself only knows
// which methods are valid in which state and what status code to answer
// with; the hooks do the actual work (SDP generation, transport allocation,
// starting/stopping the media pump, ...).
type SessionHooks interface {
	Describe(req *Request) (sdp []byte, err error)
	Setup(req *Request) (transportHeader string, err error)
	Play(req *Request) (rtpInfoHeader string, err error)
	Pause(req *Request) error
	Record(req *Request) error
	Teardown(req *Request) error
	SetParameter(req *Request) error
	GetParameter(req *Request) (body []byte, err error)
}

// stateHandler is implemented by each concrete server state. Handlers return
// the outgoing response plus the state to transition to; for a rejected
// request the returned state equals the state the handler was invoked on.
type stateHandler interface {
	OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState)
	OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState)
}

func statusResponse(req *Request, code StatusCode) *Response {
	resp := &Response{Status: code, Headers: Headers{}}
	if cseq := req.Headers.Get("CSeq"); cseq != "" {
		resp.Headers.Set("CSeq", cseq)
	}
	return resp
}

// handleOptions, handleDescribe, handleGetParameter and handleSetParameter
// behave identically in every state (RFC 2326 §10.1, §10.2, §10.8, §10.9),
// so they are shared free functions rather than duplicated per state.
func handleOptions(s *ServerSession, req *Request) *Response {
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Public", "OPTIONS, DESCRIBE, SETUP, PLAY, PAUSE, TEARDOWN, GET_PARAMETER, SET_PARAMETER")
	return resp
}

func handleDescribe(s *ServerSession, req *Request) *Response {
	sdp, err := s.hooks.Describe(req)
	if err != nil {
		return statusResponse(req, StatusNotFound)
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Content-Base", req.URI)
	resp.Headers.Set("Content-Type", "application/sdp")
	resp.Body = sdp
	return resp
}

func handleGetParameter(s *ServerSession, req *Request) *Response {
	body, err := s.hooks.GetParameter(req)
	if err != nil {
		return statusResponse(req, StatusParameterNotUnderstood)
	}
	resp := statusResponse(req, StatusOK)
	resp.Body = body
	return resp
}

func handleSetParameter(s *ServerSession, req *Request) *Response {
	if err := s.hooks.SetParameter(req); err != nil {
		return statusResponse(req, StatusParameterNotUnderstood)
	}
	return statusResponse(req, StatusOK)
}

func handleAnnounceUnsupported(req *Request) *Response {
	return statusResponse(req, StatusNotImplemented)
}

func handleRecordUnsupported(req *Request) *Response {
	return statusResponse(req, StatusNotImplemented)
}

// --- INIT ---

type initState struct{}

func (initState) OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleOptions(s, req), StateInit
}

func (initState) OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleDescribe(s, req), StateInit
}

func (initState) OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleAnnounceUnsupported(req), StateInit
}

func (initState) OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	transport, err := s.hooks.Setup(req)
	if err != nil {
		return statusResponse(req, StatusUnsupportedTransport), StateInit
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	resp.Headers.Set("Transport", transport)
	return resp, StateReady
}

func (initState) OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StateInit
}

func (initState) OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleRecordUnsupported(req), StateInit
}

func (initState) OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StateInit
}

func (initState) OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	// No session has been set up yet, so TEARDOWN here is a no-op, not an
	// error: it still answers 200.
	return statusResponse(req, StatusOK), StateInit
}

func (initState) OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleGetParameter(s, req), StateInit
}

func (initState) OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleSetParameter(s, req), StateInit
}

// --- READY ---

type readyState struct{}

func (readyState) OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleOptions(s, req), StateReady
}

func (readyState) OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleDescribe(s, req), StateReady
}

func (readyState) OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleAnnounceUnsupported(req), StateReady
}

func (readyState) OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	transport, err := s.hooks.Setup(req)
	if err != nil {
		return statusResponse(req, StatusUnsupportedTransport), StateReady
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	resp.Headers.Set("Transport", transport)
	return resp, StateReady
}

func (readyState) OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	rtpInfo, err := s.hooks.Play(req)
	if err != nil {
		return statusResponse(req, StatusInternalServerError), StateReady
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	if rtpInfo != "" {
		resp.Headers.Set("RTP-Info", rtpInfo)
	}
	return resp, StatePlaying
}

func (readyState) OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleRecordUnsupported(req), StateReady
}

func (readyState) OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StateReady
}

func (readyState) OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	_ = s.hooks.Teardown(req)
	return statusResponse(req, StatusOK), StateInit
}

func (readyState) OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleGetParameter(s, req), StateReady
}

func (readyState) OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleSetParameter(s, req), StateReady
}

// --- PLAYING ---

type playingState struct{}

func (playingState) OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleOptions(s, req), StatePlaying
}

func (playingState) OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleDescribe(s, req), StatePlaying
}

func (playingState) OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleAnnounceUnsupported(req), StatePlaying
}

func (playingState) OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	// Aggregate control: SETUP on an already-playing session adds a track
	// without tearing down the others.
	transport, err := s.hooks.Setup(req)
	if err != nil {
		return statusResponse(req, StatusUnsupportedTransport), StatePlaying
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	resp.Headers.Set("Transport", transport)
	return resp, StatePlaying
}

func (playingState) OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	rtpInfo, err := s.hooks.Play(req)
	if err != nil {
		return statusResponse(req, StatusInternalServerError), StatePlaying
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	if rtpInfo != "" {
		resp.Headers.Set("RTP-Info", rtpInfo)
	}
	return resp, StatePlaying
}

func (playingState) OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleRecordUnsupported(req), StatePlaying
}

func (playingState) OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	if err := s.hooks.Pause(req); err != nil {
		return statusResponse(req, StatusInternalServerError), StatePlaying
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	return resp, StatePaused
}

func (playingState) OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	_ = s.hooks.Teardown(req)
	return statusResponse(req, StatusOK), StateInit
}

func (playingState) OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleGetParameter(s, req), StatePlaying
}

func (playingState) OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleSetParameter(s, req), StatePlaying
}

// --- PAUSED ---

type pausedState struct{}

func (pausedState) OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleOptions(s, req), StatePaused
}

func (pausedState) OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleDescribe(s, req), StatePaused
}

func (pausedState) OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleAnnounceUnsupported(req), StatePaused
}

func (pausedState) OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StatePaused
}

func (pausedState) OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	rtpInfo, err := s.hooks.Play(req)
	if err != nil {
		return statusResponse(req, StatusInternalServerError), StatePaused
	}
	resp := statusResponse(req, StatusOK)
	resp.Headers.Set("Session", s.id)
	if rtpInfo != "" {
		resp.Headers.Set("RTP-Info", rtpInfo)
	}
	return resp, StatePlaying
}

func (pausedState) OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleRecordUnsupported(req), StatePaused
}

func (pausedState) OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	// Already paused: idempotent no-op, still answers 200.
	return statusResponse(req, StatusOK), StatePaused
}

func (pausedState) OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	_ = s.hooks.Teardown(req)
	return statusResponse(req, StatusOK), StateInit
}

func (pausedState) OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleGetParameter(s, req), StatePaused
}

func (pausedState) OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleSetParameter(s, req), StatePaused
}

// --- RECORDING (ANNOUNCE/RECORD push, kept for completeness though this
// stack answers ANNOUNCE/RECORD with 501 — see SessionHooks.Record) ---

type recordingState struct{}

func (recordingState) OnOptionsRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleOptions(s, req), StateRecording
}

func (recordingState) OnDescribeRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleDescribe(s, req), StateRecording
}

func (recordingState) OnAnnounceRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleAnnounceUnsupported(req), StateRecording
}

func (recordingState) OnSetupRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StateRecording
}

func (recordingState) OnPlayRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return statusResponse(req, StatusMethodNotValidInThisState), StateRecording
}

func (recordingState) OnRecordRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleRecordUnsupported(req), StateRecording
}

func (recordingState) OnPauseRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	if err := s.hooks.Pause(req); err != nil {
		return statusResponse(req, StatusInternalServerError), StateRecording
	}
	return statusResponse(req, StatusOK), StateReady
}

func (recordingState) OnTeardownRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	_ = s.hooks.Teardown(req)
	return statusResponse(req, StatusOK), StateInit
}

func (recordingState) OnGetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleGetParameter(s, req), StateRecording
}

func (recordingState) OnSetParameterRequest(s *ServerSession, req *Request) (*Response, ServerState) {
	return handleSetParameter(s, req), StateRecording
}

func handlerFor(state ServerState) stateHandler {
	switch state {
	case StateReady:
		return readyState{}
	case StatePlaying:
		return playingState{}
	case StatePaused:
		return pausedState{}
	case StateRecording:
		return recordingState{}
	default:
		return initState{}
	}
}
