// Created by WINK Streaming (https://www.wink.co)
package media

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/winkstreaming/rtspstack/internal/rtcp"
	"github.com/winkstreaming/rtspstack/internal/rtp"
	"github.com/winkstreaming/rtspstack/internal/rtsp"
	"github.com/winkstreaming/rtspstack/internal/transport"
)

// StreamManager implements rtsp.SessionHooks, bridging one server session's
// RTSP requests to the per-track send machinery in this package. One
// StreamManager belongs to one rtsp.ServerSession. RTSP requests reach it
// from that session's connection goroutine; frames from StreamSource and
// inbound UDP RTCP reach it from other goroutines, so its state is guarded
// by mu.
type StreamManager struct {
	registry *Registry
	conn     net.Conn
	writeMu  *sync.Mutex
	log      zerolog.Logger

	mu           sync.Mutex
	source       *StreamSource
	baseURI      string
	tracks       map[int]*Track
	order        []int
	cname        string
	rtcpChannels map[uint8]int
}

// NewStreamManager creates a session's media bridge. conn and writeMu are
// shared with the owning connection so TCP-interleaved tracks serialize
// their writes against RTSP responses on the same socket.
func NewStreamManager(registry *Registry, conn net.Conn, writeMu *sync.Mutex, log zerolog.Logger) *StreamManager {
	return &StreamManager{
		registry: registry,
		conn:     conn,
		writeMu:  writeMu,
		log:          log,
		tracks:       make(map[int]*Track),
		cname:        uuid.NewString(),
		rtcpChannels: make(map[uint8]int),
	}
}

var _ rtsp.SessionHooks = (*StreamManager)(nil)

// Describe resolves the stream registered at req.URI's path and returns its
// cached SDP body.
func (m *StreamManager) Describe(req *rtsp.Request) ([]byte, error) {
	source, ok := m.registry.Lookup(urlPath(req.URI))
	if !ok {
		return nil, ErrUnknownStream
	}
	m.mu.Lock()
	m.source = source
	m.mu.Unlock()
	return source.SDP(), nil
}

// Setup negotiates one track's transport: it resolves the stream (if
// DESCRIBE wasn't called on this connection), determines which track the
// request's URI addresses, allocates a UDP port pair or binds the
// client-proposed TCP interleaved channels, and creates the Track.
func (m *StreamManager) Setup(req *rtsp.Request) (string, error) {
	m.mu.Lock()
	source := m.source
	m.mu.Unlock()
	if source == nil {
		var ok bool
		source, ok = m.registry.Lookup(urlPath(stripTrackSuffix(req.URI)))
		if !ok {
			return "", ErrUnknownStream
		}
		m.mu.Lock()
		m.source = source
		m.mu.Unlock()
	}

	idx := trackIndexFromURI(req.URI, len(source.Tracks))
	if idx < 0 || idx >= len(source.Tracks) {
		return "", fmt.Errorf("media: no track %d on %s", idx, source.Path)
	}
	info := source.Tracks[idx]

	m.mu.Lock()
	if m.baseURI == "" {
		m.baseURI = stripTrackSuffix(req.URI)
	}
	m.mu.Unlock()

	header := req.Headers.Get("Transport")
	ssrc := rand.Uint32()
	packetizer := packetizerFor(info, ssrc)

	var adapter transport.Adapter
	var responseHeader string

	if transport.IsInterleaved(header) {
		rtpCh, rtcpCh, ok := transport.ParseInterleavedChannels(header)
		if !ok {
			return "", fmt.Errorf("media: malformed interleaved transport header %q", header)
		}
		t := transport.NewTCPTransport(m.conn, m.writeMu, rtpCh, rtcpCh)
		adapter = t
		responseHeader = fmt.Sprintf("RTP/AVP/TCP;unicast;interleaved=%d-%d", rtpCh, rtcpCh)
		m.mu.Lock()
		m.rtcpChannels[rtcpCh] = idx
		m.mu.Unlock()
	} else {
		clientRTP, clientRTCP, ok := transport.ParseClientPort(header)
		if !ok {
			return "", fmt.Errorf("media: malformed client_port in transport header %q", header)
		}
		pair, err := transport.AllocatePortPair(20)
		if err != nil {
			return "", fmt.Errorf("media: port allocation failed: %w", err)
		}
		peerHost, _, _ := net.SplitHostPort(req.Headers.Get("X-Remote-Addr"))
		if peerHost == "" {
			peerHost = remoteHostOf(m.conn)
		}

		udp := transport.NewUDPTransport(pair, nil, func(payload []byte) {
			m.handleInboundRTCP(idx, payload)
		})
		udp.SetRemote(
			&net.UDPAddr{IP: net.ParseIP(peerHost), Port: clientRTP},
			&net.UDPAddr{IP: net.ParseIP(peerHost), Port: clientRTCP},
		)
		udp.Start()
		adapter = udp
		responseHeader = fmt.Sprintf(
			"RTP/AVP;unicast;client_port=%d-%d;server_port=%d-%d",
			clientRTP, clientRTCP, pair.RTPPort(), pair.RTCPPort(),
		)
	}

	t := NewTrack(idx, info, packetizer, adapter, ssrc, m.cname, m.log)

	m.mu.Lock()
	m.tracks[idx] = t
	m.order = append(m.order, idx)
	m.mu.Unlock()

	source.subscribe(m)

	return responseHeader, nil
}

// HandleInterleaved routes an inbound TCP-interleaved frame from the
// connection's demultiplexer to the track whose SETUP negotiated that RTCP
// channel number. The server's per-connection read goroutine calls this for
// every interleaved frame it pulls off the connection; a frame on a channel
// that no track negotiated as its RTCP channel is ignored.
func (m *StreamManager) HandleInterleaved(channel uint8, payload []byte) {
	m.mu.Lock()
	idx, ok := m.rtcpChannels[channel]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.handleInboundRTCP(idx, payload)
}

func (m *StreamManager) handleInboundRTCP(trackIndex int, payload []byte) {
	m.mu.Lock()
	t := m.tracks[trackIndex]
	m.mu.Unlock()
	if t != nil {
		t.HandleRTCP(payload)
	}
}

// Play starts every negotiated track and builds the PLAY response's
// RTP-Info header, one comma-separated entry per track in SETUP order.
func (m *StreamManager) Play(req *rtsp.Request) (string, error) {
	m.mu.Lock()
	order := append([]int(nil), m.order...)
	base := m.baseURI
	tracks := m.tracks
	source := m.source
	m.mu.Unlock()

	var entries []string
	for _, idx := range order {
		t := tracks[idx]
		t.Play()
		control := ""
		if source != nil && idx < len(source.Tracks) {
			control = source.Tracks[idx].Control
		}
		url := base
		if control != "" {
			url = joinControlURL(base, control)
		}
		entries = append(entries, fmt.Sprintf("url=%s;seq=%d;rtptime=%d", url, t.NextSequence(), t.LastTimestamp()))
	}
	return strings.Join(entries, ","), nil
}

// Pause stops delivery on every active track without releasing transport.
func (m *StreamManager) Pause(req *rtsp.Request) error {
	m.mu.Lock()
	tracks := m.snapshotTracks()
	m.mu.Unlock()
	for _, t := range tracks {
		t.Pause()
	}
	return nil
}

// Record is unused: this stack answers ANNOUNCE/RECORD with 501 at the
// state-machine level (see the RECORDING state in rtsp's serverstate.go), so
// Record never runs; it
// exists only to satisfy SessionHooks and give a future push-mode
// implementation a real seam.
func (m *StreamManager) Record(req *rtsp.Request) error {
	return fmt.Errorf("media: record mode not supported")
}

// Teardown closes every track's transport and unsubscribes from the stream
// source.
func (m *StreamManager) Teardown(req *rtsp.Request) error {
	m.mu.Lock()
	tracks := m.snapshotTracks()
	source := m.source
	m.tracks = make(map[int]*Track)
	m.order = nil
	m.mu.Unlock()

	for _, t := range tracks {
		if err := t.Close(); err != nil {
			m.log.Warn().Err(err).Int("track", t.Index).Msg("error closing track transport")
		}
	}
	if source != nil {
		source.unsubscribe(m)
	}
	return nil
}

// SetParameter/GetParameter answer unconditionally (keepalive usage), per
// original_source's HandleSetParameter/HandleGetParameter.
func (m *StreamManager) SetParameter(req *rtsp.Request) error { return nil }

func (m *StreamManager) GetParameter(req *rtsp.Request) ([]byte, error) { return nil, nil }

func (m *StreamManager) snapshotTracks() []*Track {
	out := make([]*Track, 0, len(m.tracks))
	for _, idx := range m.order {
		if t, ok := m.tracks[idx]; ok {
			out = append(out, t)
		}
	}
	return out
}

// pushFrame delivers one frame to trackIndex's Track, if this session has
// set that track up and it's playing.
func (m *StreamManager) pushFrame(trackIndex int, frame Frame) {
	m.mu.Lock()
	t := m.tracks[trackIndex]
	m.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.PushFrame(frame); err != nil {
		m.log.Debug().Err(err).Int("track", trackIndex).Msg("frame dropped: track not playing")
	}
}

func packetizerFor(info StreamInfo, ssrc uint32) Packetizer {
	switch info.Codec {
	case CodecH264:
		return rtp.NewH264Packetizer(info.PayloadType, ssrc, rtp.DefaultMTU)
	case CodecH265:
		return rtp.NewH265Packetizer(info.PayloadType, ssrc, rtp.DefaultMTU)
	case CodecAAC:
		return rtp.NewAACPacketizer(info.PayloadType, ssrc, rtp.DefaultMTU)
	default:
		return rtp.NewTSPacketizer(info.PayloadType, ssrc, rtp.DefaultMTU)
	}
}

// urlPath strips scheme and host from a full rtsp:// URI (or returns it
// unchanged if it's already a bare path). It does not remove a trailing
// track segment; Setup calls stripTrackSuffix first for that.
func urlPath(uri string) string {
	p := uri
	if idx := strings.Index(p, "://"); idx >= 0 {
		rest := p[idx+3:]
		if slash := strings.Index(rest, "/"); slash >= 0 {
			p = rest[slash:]
		} else {
			p = "/"
		}
	}
	return p
}

// stripTrackSuffix removes a trailing "/trackID=N" or "/trackN" path
// segment, yielding the stream's aggregate URI.
func stripTrackSuffix(uri string) string {
	idx := strings.LastIndex(uri, "/")
	if idx < 0 {
		return uri
	}
	seg := uri[idx+1:]
	if strings.HasPrefix(seg, "trackID=") || (strings.HasPrefix(seg, "track") && isAllDigitsAfter(seg, len("track"))) {
		return uri[:idx]
	}
	return uri
}

func isAllDigitsAfter(s string, from int) bool {
	if from >= len(s) {
		return false
	}
	for _, r := range s[from:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// trackIndexFromURI extracts the numeric suffix from a "trackID=N" or
// "trackN" path segment; if the URI names no specific track (aggregate
// control) and there is exactly one track, that track is assumed.
func trackIndexFromURI(uri string, numTracks int) int {
	idx := strings.LastIndex(uri, "/")
	seg := uri
	if idx >= 0 {
		seg = uri[idx+1:]
	}
	seg = strings.TrimPrefix(seg, "trackID=")
	seg = strings.TrimPrefix(seg, "track")
	if n, err := strconv.Atoi(seg); err == nil {
		return n
	}
	if numTracks == 1 {
		return 0
	}
	return -1
}

func joinControlURL(base, control string) string {
	if strings.HasPrefix(control, "rtsp://") {
		return control
	}
	if base != "" && !strings.HasSuffix(base, "/") {
		return base + "/" + control
	}
	return base + control
}

func remoteHostOf(conn net.Conn) string {
	if conn == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// ensure rtcp is referenced (RTT logging lives in Track, but keep the
// import used at package scope for godoc grouping of the RTCP seam).
var _ = rtcp.MaxDropout
