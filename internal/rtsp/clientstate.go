// Created by WINK Streaming (https://www.wink.co)
package rtsp

import "strings"

// ClientAction tells the client's response-reading loop what to do after a
// response has been run through the state machine.
type ClientAction int

const (
	// ActionContinue means the handshake issued its next request and the
	// loop should keep reading responses.
	ActionContinue ClientAction = iota
	// ActionWait means the response was unsolicited/informational once the
	// session is already PLAYING (keepalive OPTIONS, late DESCRIBE, ...)
	// and the loop should simply keep reading.
	ActionWait
	// ActionSuccess means the handshake (or a TEARDOWN) completed.
	ActionSuccess
	// ActionFail means the handshake cannot proceed.
	ActionFail
)

// ClientState is a node in the client-side handshake state machine (RFC 2326
// §A.2, client's perspective).
type ClientState int

const (
	ClientStateInit ClientState = iota
	ClientStateOptionsSent
	ClientStateDescribeSent
	ClientStateSetupSent
	ClientStatePlaySent
	ClientStatePlaying
)

// ClientRequester is the set of outbound actions a client state handler can
// trigger. Client implements it by sending each request on its connection.
type ClientRequester interface {
	SendDescribeRequest(url string) bool
	SendSetupRequest(url, transport string) bool
	SendPlayRequest(url, sessionID string) bool
}

type clientStateHandler interface {
	OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
	OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
	OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
	OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
	OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
	OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction
}

// defaultClientTransport is the fallback SETUP transport spec when the
// caller hasn't configured one (matches the original's literal default).
const defaultClientTransport = "RTP/AVP;unicast;client_port=5000-5001"

// resolveSetupURL applies RFC 2326 §C.3's control-URL resolution rules:
// an empty or "*" control attribute means aggregate control on the base
// URL, an rtsp:// control attribute is already absolute, anything else is
// relative to the base URL.
func resolveSetupURL(baseURL, controlURL string) string {
	switch {
	case controlURL == "" || controlURL == "*":
		return baseURL
	case strings.HasPrefix(controlURL, "rtsp://"):
		return controlURL
	default:
		if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
			return baseURL + "/" + controlURL
		}
		return baseURL + controlURL
	}
}

// ensureTrailingSlash is used to build the aggregate-control PLAY URL.
func ensureTrailingSlash(url string) string {
	if url != "" && !strings.HasSuffix(url, "/") {
		return url + "/"
	}
	return url
}

// --- INIT ---

type clientInitState struct{}

func (clientInitState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	s.state = ClientStateOptionsSent
	// OPTIONS is optional (RFC 2326 §10.1): even a failing response still
	// advances to DESCRIBE.
	if c.SendDescribeRequest(s.url) {
		s.state = ClientStateDescribeSent
		return ActionContinue
	}
	return ActionFail
}

func (clientInitState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientInitState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientInitState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientInitState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientInitState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

// --- OPTIONS SENT ---

type clientOptionsSentState struct{}

func (clientOptionsSentState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	if c.SendDescribeRequest(s.url) {
		s.state = ClientStateDescribeSent
		return ActionContinue
	}
	return ActionFail
}

func (clientOptionsSentState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientOptionsSentState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientOptionsSentState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientOptionsSentState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientOptionsSentState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

// --- DESCRIBE SENT ---

type clientDescribeSentState struct{}

func (clientDescribeSentState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientDescribeSentState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	if resp.Status != StatusOK {
		return ActionFail
	}
	setupURL := resolveSetupURL(s.url, s.controlURL)
	transport := s.transportInfo
	if transport == "" {
		transport = defaultClientTransport
	}
	if c.SendSetupRequest(setupURL, transport) {
		s.state = ClientStateSetupSent
		return ActionContinue
	}
	return ActionFail
}

func (clientDescribeSentState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientDescribeSentState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientDescribeSentState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientDescribeSentState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

// --- SETUP SENT ---

type clientSetupSentState struct{}

func (clientSetupSentState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientSetupSentState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientSetupSentState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	if resp.Status != StatusOK {
		return ActionFail
	}
	if sid := resp.Session(); sid != "" {
		s.sessionID = sid
	}
	playURL := ensureTrailingSlash(s.url)
	if c.SendPlayRequest(playURL, s.sessionID) {
		s.state = ClientStatePlaySent
		return ActionContinue
	}
	return ActionFail
}

func (clientSetupSentState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientSetupSentState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientSetupSentState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

// --- PLAY SENT ---

type clientPlaySentState struct{}

func (clientPlaySentState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientPlaySentState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientPlaySentState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientPlaySentState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	if resp.Status != StatusOK {
		return ActionFail
	}
	s.state = ClientStatePlaying
	return ActionSuccess
}

func (clientPlaySentState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionFail
}

func (clientPlaySentState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

// --- PLAYING ---

type clientPlayingState struct{}

func (clientPlayingState) OnOptionsResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionWait
}

func (clientPlayingState) OnDescribeResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionWait
}

func (clientPlayingState) OnSetupResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionWait
}

func (clientPlayingState) OnPlayResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionWait
}

func (clientPlayingState) OnPauseResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionWait
}

func (clientPlayingState) OnTeardownResponse(s *ClientSession, c ClientRequester, resp *Response) ClientAction {
	return ActionSuccess
}

func clientHandlerFor(state ClientState) clientStateHandler {
	switch state {
	case ClientStateOptionsSent:
		return clientOptionsSentState{}
	case ClientStateDescribeSent:
		return clientDescribeSentState{}
	case ClientStateSetupSent:
		return clientSetupSentState{}
	case ClientStatePlaySent:
		return clientPlaySentState{}
	case ClientStatePlaying:
		return clientPlayingState{}
	default:
		return clientInitState{}
	}
}
