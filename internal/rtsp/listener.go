// Created by WINK Streaming (https://www.wink.co)
package rtsp

// Listener receives asynchronous, best-effort notifications of observable
// client-session events. Every method is optional: embed BaseListener and
// override only the callbacks of interest.
type Listener interface {
	OnConnected()
	OnDescribeReceived(sdp []byte)
	OnSetupReceived(trackIndex int, transportHeader string)
	OnPlayReceived(rtpInfoHeader string)
	OnPauseReceived()
	OnTeardownReceived()
	OnFrame(trackIndex int, payload []byte, timestamp uint32)
	OnError(code int, message string)
	OnStateChanged(state ClientState)
}

// BaseListener is a no-op Listener. Embed it in a concrete listener type
// and override only the callbacks that matter, the common Go pattern for
// optional callback sets.
type BaseListener struct{}

func (BaseListener) OnConnected()                                        {}
func (BaseListener) OnDescribeReceived(sdp []byte)                       {}
func (BaseListener) OnSetupReceived(trackIndex int, transportHeader string) {}
func (BaseListener) OnPlayReceived(rtpInfoHeader string)                  {}
func (BaseListener) OnPauseReceived()                                     {}
func (BaseListener) OnTeardownReceived()                                  {}
func (BaseListener) OnFrame(trackIndex int, payload []byte, timestamp uint32) {}
func (BaseListener) OnError(code int, message string)                    {}
func (BaseListener) OnStateChanged(state ClientState)                    {}

var _ Listener = BaseListener{}
