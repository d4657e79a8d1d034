// Created by WINK Streaming (https://www.wink.co)
package media

// StreamInfo is what the server advertises per stream path: media kind,
// codec, payload type/clock rate, the video or audio parameters, and the
// codec-specific parameter sets SDP generation needs (H.264 SPS+PPS, H.265
// VPS+SPS+PPS).
type StreamInfo struct {
	Kind        Kind
	Codec       CodecKind
	PayloadType uint8
	ClockRate   uint32

	// Video.
	Width     int
	Height    int
	FrameRate float64

	// Audio.
	SampleRate uint32
	Channels   int

	// Parameter sets, codec-dependent: H.264 uses SPS/PPS, H.265 adds VPS.
	VPS []byte
	SPS []byte
	PPS []byte

	// Control is this track's SDP "a=control" attribute, e.g. "trackID=0".
	Control string

	// SubTracks lists additional tracks for container streams advertising
	// more than one elementary stream under one control URL.
	SubTracks []StreamInfo
}

// TransportKind is the negotiated transport family for one track.
type TransportKind int

const (
	TransportUDP TransportKind = iota
	TransportTCP
)

// TransportRole distinguishes which end of a track's transport a
// TransportConfig describes.
type TransportRole int

const (
	RoleSource TransportRole = iota
	RoleSink
)

// TransportConfig is what SETUP negotiates: transport kind/role, peer
// address, the client's and server's RTP/RTCP ports (UDP) or the
// interleaved channel pair (TCP).
type TransportConfig struct {
	Kind TransportKind
	Role TransportRole

	PeerAddr string

	ClientRTPPort  int
	ClientRTCPPort int
	ServerRTPPort  int
	ServerRTCPPort int

	InterleavedRTPChannel  uint8
	InterleavedRTCPChannel uint8
}
