// Created by WINK Streaming (https://www.wink.co)
// Package media implements the media-stream manager: the per-track send
// queue that bridges application-fed MediaFrames to the RTP packetizer and
// transport adapter a SETUP negotiated, plus the stream registry a
// DESCRIBE consults for SDP.
package media

// CodecKind identifies the elementary-stream codec a Frame carries or a
// StreamInfo advertises.
type CodecKind int

const (
	CodecH264 CodecKind = iota
	CodecH265
	CodecAAC
	CodecTS
)

func (c CodecKind) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	case CodecAAC:
		return "AAC"
	case CodecTS:
		return "TS"
	default:
		return "unknown"
	}
}

// Kind distinguishes a track's media type: video, audio, or a multi-track
// container.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
	KindMulti
)

// Frame is one access unit awaiting transmission (server side) or just
// reassembled (client side). For H.264/H.265, Payload is Annex-B with
// 4-byte start codes; for AAC, a raw access unit; for TS, an integral
// number of 188-byte packets.
type Frame struct {
	Payload   []byte
	Timestamp uint32
	Codec     CodecKind

	// Video-only fields.
	KeyFrame  bool
	Width     int
	Height    int
	FrameRate float64

	// Audio-only fields.
	SampleRate uint32
	Channels   int
}
