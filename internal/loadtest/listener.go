// Created by WINK Streaming (https://www.wink.co)
package loadtest

import "github.com/winkstreaming/rtspstack/internal/rtsp"

// quietListener discards every callback. It exists only so Runner doesn't
// have to implement every Listener method on itself; per-connection RTP
// statistics come from Client.Stats() after the run ends, not from
// OnFrame, since the load test cares about aggregate throughput, not frame
// content.
type quietListener struct {
	rtsp.BaseListener
}

var _ rtsp.Listener = quietListener{}
