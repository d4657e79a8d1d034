// Created by WINK Streaming (https://www.wink.co)
package sdp

import (
	"fmt"
	"strings"
)

// TrackParams describes one media track to advertise in a generated SDP
// description.
type TrackParams struct {
	// MediaType is "video" or "audio".
	MediaType string
	// PayloadType is the RTP payload type number (dynamic range 96-127 for
	// H.264, H.265 and AAC; the static type 33 for MPEG-2 TS).
	PayloadType uint8
	// EncodingName is the rtpmap encoding name: "H264", "H265",
	// "mpeg4-generic", or "MP2T".
	EncodingName string
	ClockRate    uint32
	// Channels is only meaningful for audio (AAC).
	Channels int
	// Control is this track's relative control attribute, e.g. "trackID=0".
	Control string
	// FmtpParams is the a=fmtp parameter string (without the "<pt> "
	// prefix), e.g. "sprop-parameter-sets=<b64-sps>,<b64-pps>" for H.264 or
	// "streamtype=5;profile-level-id=1;mode=AAC-hbr;sizelength=13;
	// indexlength=3;indexdeltalength=3;config=<hex>" for AAC.
	FmtpParams string
}

// Config holds the session-level facts Generate needs beyond the track
// list.
type Config struct {
	SessionName  string
	OriginUser   string
	ServerAddr   string // IPv4 literal, used in o= and c= (both written as IN IP4)
	SessionRange string // e.g. "npt=0-" for a live, unbounded stream
	Tracks       []TrackParams
}

// Generate builds an SDP message (RFC 4566) describing Config's tracks, in
// the form this stack's RTSP server returns from DESCRIBE. Session id and
// version are both 0, matching the common "we don't support re-DESCRIBE
// versioning" convention real RTSP servers use for live streams.
func Generate(cfg Config) []byte {
	var b strings.Builder

	originAddr := cfg.ServerAddr
	if originAddr == "" {
		originAddr = "0.0.0.0"
	}
	sessionName := cfg.SessionName
	if sessionName == "" {
		sessionName = "stream"
	}

	fmt.Fprintf(&b, "v=0\r\n")
	fmt.Fprintf(&b, "o=%s 0 0 IN IP4 %s\r\n", nonEmpty(cfg.OriginUser, "-"), originAddr)
	fmt.Fprintf(&b, "s=%s\r\n", sessionName)
	fmt.Fprintf(&b, "c=IN IP4 %s\r\n", originAddr)
	fmt.Fprintf(&b, "t=0 0\r\n")
	if cfg.SessionRange != "" {
		fmt.Fprintf(&b, "a=range:%s\r\n", cfg.SessionRange)
	}
	fmt.Fprintf(&b, "a=control:*\r\n")

	for _, t := range cfg.Tracks {
		fmt.Fprintf(&b, "m=%s 0 RTP/AVP %d\r\n", t.MediaType, t.PayloadType)
		rtpmap := fmt.Sprintf("%d %s/%d", t.PayloadType, t.EncodingName, t.ClockRate)
		if t.Channels > 0 {
			rtpmap += fmt.Sprintf("/%d", t.Channels)
		}
		fmt.Fprintf(&b, "a=rtpmap:%s\r\n", rtpmap)
		if t.FmtpParams != "" {
			fmt.Fprintf(&b, "a=fmtp:%d %s\r\n", t.PayloadType, t.FmtpParams)
		}
		if t.Control != "" {
			fmt.Fprintf(&b, "a=control:%s\r\n", t.Control)
		}
	}

	return []byte(b.String())
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
