// Created by WINK Streaming (https://www.wink.co)
package media

import (
	"fmt"
	"sync"

	"github.com/winkstreaming/rtspstack/internal/sdp"
)

// StreamSource is one registered stream path: its track descriptions, a
// cached SDP body, and the set of currently-playing StreamManagers to fan
// frames out to. Read-mostly, protected by a mutex.
type StreamSource struct {
	Path   string
	Tracks []StreamInfo

	sdpBody []byte

	mu          sync.RWMutex
	subscribers map[*StreamManager]struct{}
}

// NewStreamSource builds a StreamSource and pre-renders its SDP body from
// tracks.
func NewStreamSource(path string, serverAddr string, tracks []StreamInfo) *StreamSource {
	s := &StreamSource{Path: path, Tracks: tracks, subscribers: make(map[*StreamManager]struct{})}
	s.sdpBody = buildSDP(serverAddr, tracks)
	return s
}

// SDP returns the cached DESCRIBE body.
func (s *StreamSource) SDP() []byte { return s.sdpBody }

func (s *StreamSource) subscribe(m *StreamManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[m] = struct{}{}
}

func (s *StreamSource) unsubscribe(m *StreamManager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, m)
}

// PushFrame delivers frame for trackIndex to every subscribed session's
// matching track. This is the application's sole feed point: it never
// blocks (each Track.PushFrame call is itself non-blocking).
func (s *StreamSource) PushFrame(trackIndex int, frame Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for m := range s.subscribers {
		m.pushFrame(trackIndex, frame)
	}
}

func buildSDP(serverAddr string, tracks []StreamInfo) []byte {
	cfg := sdp.Config{
		SessionName:  "RTSP Session",
		ServerAddr:   serverAddr,
		SessionRange: "npt=0-",
	}
	for _, t := range tracks {
		cfg.Tracks = append(cfg.Tracks, trackParamsFor(t))
	}
	return sdp.Generate(cfg)
}

func trackParamsFor(info StreamInfo) sdp.TrackParams {
	switch info.Codec {
	case CodecH264:
		return sdp.H264Track(info.PayloadType, info.ClockRate, info.SPS, info.PPS, info.Control)
	case CodecH265:
		return sdp.H265Track(info.PayloadType, info.ClockRate, info.VPS, info.SPS, info.PPS, info.Control)
	case CodecAAC:
		return sdp.AACTrack(info.PayloadType, info.SampleRate, info.Channels, info.Control)
	case CodecTS:
		return sdp.TSTrack(info.Control)
	default:
		return sdp.TrackParams{Control: info.Control}
	}
}

// Registry is the server's path -> StreamSource map: read-mostly,
// protected by a mutex.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*StreamSource
}

// NewRegistry creates an empty stream registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*StreamSource)}
}

// Register adds or replaces the stream at path.
func (r *Registry) Register(source *StreamSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[source.Path] = source
}

// Unregister removes the stream at path.
func (r *Registry) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, path)
}

// Lookup returns the stream registered at path, if any.
func (r *Registry) Lookup(path string) (*StreamSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[path]
	return s, ok
}

// ErrUnknownStream is returned by StreamManager.Describe/Setup when the
// request's path has no registered StreamSource.
var ErrUnknownStream = fmt.Errorf("media: unknown stream path")
