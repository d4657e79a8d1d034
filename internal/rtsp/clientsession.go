// Created by WINK Streaming (https://www.wink.co)
package rtsp

// ClientSession holds the handshake state and SDP-derived facts the client
// state machine needs: the base URL, the control URL and transport string
// pulled from the SDP/SETUP exchange, and the Session id the server handed
// back. One ClientSession belongs to one Client and is only ever touched
// from that client's response-reading goroutine.
type ClientSession struct {
	url           string
	controlURL    string
	transportInfo string
	sessionID     string
	state         ClientState
}

// NewClientSession creates a session in the INIT state for url.
func NewClientSession(url string) *ClientSession {
	return &ClientSession{url: url, state: ClientStateInit}
}

// State returns the current handshake state.
func (s *ClientSession) State() ClientState { return s.state }

// SessionID returns the Session header value the server assigned at SETUP.
func (s *ClientSession) SessionID() string { return s.sessionID }

// SetControlURL records the control URL parsed out of the SDP description
// (the "a=control" attribute), consulted when the DESCRIBE response arrives.
func (s *ClientSession) SetControlURL(control string) { s.controlURL = control }

// SetTransportInfo overrides the default SETUP Transport header the
// handshake sends; leaving it unset falls back to defaultClientTransport.
func (s *ClientSession) SetTransportInfo(transport string) { s.transportInfo = transport }

// HandleResponse runs resp through the handler for the session's current
// state and returns the resulting action. c is the transport the handler
// uses to issue the handshake's next request.
func (s *ClientSession) HandleResponse(method Method, c ClientRequester, resp *Response) ClientAction {
	h := clientHandlerFor(s.state)
	switch method {
	case MethodOptions:
		return h.OnOptionsResponse(s, c, resp)
	case MethodDescribe:
		return h.OnDescribeResponse(s, c, resp)
	case MethodSetup:
		return h.OnSetupResponse(s, c, resp)
	case MethodPlay:
		return h.OnPlayResponse(s, c, resp)
	case MethodPause:
		return h.OnPauseResponse(s, c, resp)
	case MethodTeardown:
		return h.OnTeardownResponse(s, c, resp)
	default:
		return ActionWait
	}
}
