// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/winkstreaming/rtspstack/internal/rtcp"
	"github.com/winkstreaming/rtspstack/internal/rtp"
	"github.com/winkstreaming/rtspstack/internal/sdp"
	"github.com/winkstreaming/rtspstack/internal/transport"
)

// depacketizer is the common shape of the four codec depacketizers in
// internal/rtp: every one exposes SubmitPacket and reassembles access
// units on its own schedule, invoking the callback given to its
// constructor.
type depacketizer interface {
	SubmitPacket(pkt *rtp.Packet)
}

// Client drives one RTSP handshake (OPTIONS/DESCRIBE/SETUP/PLAY) against a
// server URL using ClientSession's state machine, then depacketizes the
// negotiated primary track's RTP stream and reports frames, errors, and
// state transitions to a Listener.
type Client struct {
	rawURL string
	target *url.URL
	useTCP bool

	conn    net.Conn
	reader  *bufio.Reader
	demux   *transport.Demuxer
	writeMu sync.Mutex

	cseq          int
	pendingMethod Method
	session       *ClientSession
	listener      Listener

	sdpDoc    *sdp.SessionDescription
	trackInfo sdp.RTPMap
	trackCtrl string
	depacket  depacketizer
	receiver  *rtcp.ReceiverContext
	adapter   transport.Adapter
	udpPair   *transport.PortPair
	rtpSSRC   uint32
	cname     string

	packetsReceived uint64
	bytesReceived   uint64

	mu     sync.Mutex
	closed bool

	log zerolog.Logger
}

// ClientStats is a point-in-time snapshot of the primary track's receive
// counters, for load-testing callers that want aggregate throughput/loss
// numbers without implementing a Listener themselves.
type ClientStats struct {
	Packets  uint64
	Lost     uint64
	Bytes    uint64
	LossRate float64
}

// Stats returns the current receive counters and the receiver context's
// loss estimate (RFC 3550 appendix A.3).
func (c *Client) Stats() ClientStats {
	stats := ClientStats{
		Packets: atomic.LoadUint64(&c.packetsReceived),
		Bytes:   atomic.LoadUint64(&c.bytesReceived),
	}
	if c.receiver != nil {
		stats.LossRate = c.receiver.LossRate()
		stats.Lost = uint64(c.receiver.CumulativeLost())
	}
	return stats
}

// NewClient creates a client for rawURL. useTCP selects TCP-interleaved
// media transport for SETUP; otherwise UDP unicast ports are allocated.
func NewClient(rawURL string, useTCP bool, listener Listener, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rtsp: invalid url %q: %w", rawURL, err)
	}
	if listener == nil {
		listener = BaseListener{}
	}
	return &Client{
		rawURL:   rawURL,
		target:   u,
		useTCP:   useTCP,
		session:  NewClientSession(rawURL),
		listener: listener,
		cname:    uuid.NewString(),
		log:      log,
	}, nil
}

// Connect dials the server's RTSP control connection.
func (c *Client) Connect() error {
	host := c.target.Host
	if !strings.Contains(host, ":") {
		host = host + ":554"
	}
	conn, err := net.DialTimeout("tcp", host, 10*time.Second)
	if err != nil {
		return fmt.Errorf("rtsp: dial %s: %w", host, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.demux = transport.NewDemuxer(c.reader)
	c.listener.OnConnected()
	return nil
}

// Run executes the handshake to completion (PLAYING) and then services the
// connection until Close or a fatal read error, delivering media frames on
// the side channel the negotiated transport chose.
func (c *Client) Run() error {
	if err := c.sendRaw(MethodOptions, c.rawURL, nil); err != nil {
		return err
	}
	c.pendingMethod = MethodOptions
	c.notifyState()

	for {
		resp, err := c.nextResponse()
		if err != nil {
			c.listener.OnError(0, err.Error())
			return err
		}

		method := c.pendingMethod
		action := c.session.HandleResponse(method, c, resp)
		c.notifyState()

		switch action {
		case ActionFail:
			err := fmt.Errorf("rtsp: handshake failed at %s: %d %s", method, resp.Status, resp.Reason)
			c.listener.OnError(int(resp.Status), err.Error())
			return err
		case ActionSuccess:
			if method == MethodTeardown {
				c.listener.OnTeardownReceived()
				return nil
			}
			c.listener.OnPlayReceived(resp.Headers.Get("RTP-Info"))
			return c.serveMedia()
		case ActionContinue, ActionWait:
			// the state machine already issued the next request via the
			// ClientRequester callbacks below; keep reading.
		}
	}
}

func (c *Client) notifyState() {
	c.listener.OnStateChanged(c.session.State())
}

// serveMedia blocks reading the control connection for as long as the
// session is playing, handling keepalive responses and any
// server-initiated TEARDOWN notification. For TCP-interleaved transport
// this same loop demultiplexes RTP/RTCP frames via nextResponse; for UDP
// transport, media arrives on the separate goroutines onSetupResponse
// started and this loop only has RTSP traffic to read.
func (c *Client) serveMedia() error {
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil
		}

		if _, err := c.nextResponse(); err != nil {
			return err
		}
		// Any response read here (keepalive OPTIONS, a late GET_PARAMETER
		// reply, ...) is purely informational: the session is already
		// PLAYING and nextResponse has already dispatched RTP/RTCP frames.
	}
}

func (c *Client) handleInboundFrame(payload []byte, isRTP bool) {
	if isRTP {
		pkt, err := rtp.Unmarshal(payload)
		if err != nil {
			return
		}
		atomic.AddUint64(&c.packetsReceived, 1)
		atomic.AddUint64(&c.bytesReceived, uint64(len(payload)))
		if c.receiver != nil {
			c.receiver.ProcessPacket(pkt.SequenceNumber, pkt.Timestamp, time.Now())
		}
		if c.depacket != nil {
			c.depacket.SubmitPacket(pkt)
		}
		return
	}
	compound, err := rtcp.Unmarshal(payload)
	if err != nil {
		return
	}
	for _, sr := range compound.SenderReports {
		if c.receiver != nil {
			c.receiver.ProcessSenderReport(sr, time.Now())
		}
	}
}

// --- ClientRequester ---

var _ ClientRequester = (*Client)(nil)

func (c *Client) SendDescribeRequest(url string) bool {
	if err := c.sendRaw(MethodDescribe, url, Headers{{Name: "Accept", Value: "application/sdp"}}); err != nil {
		return false
	}
	c.pendingMethod = MethodDescribe
	return true
}

func (c *Client) SendSetupRequest(url, transportHeader string) bool {
	if err := c.sendRaw(MethodSetup, url, Headers{{Name: "Transport", Value: transportHeader}}); err != nil {
		return false
	}
	c.pendingMethod = MethodSetup
	return true
}

func (c *Client) SendPlayRequest(url, sessionID string) bool {
	headers := Headers{}
	if sessionID != "" {
		headers.Set("Session", sessionID)
	}
	if err := c.sendRaw(MethodPlay, url, headers); err != nil {
		return false
	}
	c.pendingMethod = MethodPlay
	return true
}

// SendPause and SendTeardown are application-triggered, not part of the
// ClientRequester handshake seam, since they can fire any time after PLAY.

func (c *Client) SendPause() error {
	headers := Headers{}
	headers.Set("Session", c.session.SessionID())
	if err := c.sendRaw(MethodPause, ensureTrailingSlash(c.rawURL), headers); err != nil {
		return err
	}
	c.pendingMethod = MethodPause
	return nil
}

func (c *Client) SendTeardown() error {
	headers := Headers{}
	headers.Set("Session", c.session.SessionID())
	if err := c.sendRaw(MethodTeardown, ensureTrailingSlash(c.rawURL), headers); err != nil {
		return err
	}
	c.pendingMethod = MethodTeardown
	return nil
}

func (c *Client) sendRaw(method Method, uri string, extra Headers) error {
	c.cseq++
	headers := Headers{}
	headers.Set("CSeq", strconv.Itoa(c.cseq))
	headers.Set("User-Agent", "rtspstack-client")
	for _, h := range extra {
		headers.Set(h.Name, h.Value)
	}
	req := &Request{Method: method, URI: uri, Version: Version, Headers: headers}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(req.Bytes())
	return err
}

// nextResponse reads the next RTSP response, transparently absorbing any
// interleaved media frames that arrive ahead of it — media can start
// flowing on TCP the instant PLAY succeeds, racing with a keepalive
// OPTIONS or a server-initiated TEARDOWN notification on the same socket.
func (c *Client) nextResponse() (*Response, error) {
	for {
		if c.useTCP && c.demux != nil {
			frame, ok, err := c.demux.ReadNext()
			if err != nil {
				return nil, err
			}
			if ok {
				c.handleInboundFrame(frame.Payload, frame.Channel%2 == 0)
				continue
			}
		}
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return c.readResponseBody(line)
	}
}

// readResponseBody parses one RTSP response given its already-read status
// line, reading headers and any Content-Length body off c.reader.
func (c *Client) readResponseBody(statusLine string) (*Response, error) {
	statusLine = strings.TrimRight(statusLine, "\r\n")
	fields := strings.SplitN(statusLine, " ", 3)
	if len(fields) < 2 {
		return nil, fmt.Errorf("rtsp: malformed status line %q", statusLine)
	}
	code, _ := strconv.Atoi(fields[1])
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}

	headers := Headers{}
	contentLength := 0
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		headers.Add(name, value)
		if strings.EqualFold(name, "Content-Length") {
			contentLength, _ = strconv.Atoi(value)
		}
	}

	var body []byte
	if contentLength > 0 {
		body = make([]byte, contentLength)
		if _, err := io.ReadFull(c.reader, body); err != nil {
			return nil, err
		}
	}

	resp := &Response{Version: fields[0], Status: StatusCode(code), Reason: reason, Headers: headers, Body: body}

	switch c.pendingMethod {
	case MethodDescribe:
		if err := c.onDescribeResponse(resp); err != nil {
			c.listener.OnError(0, err.Error())
		}
	case MethodSetup:
		c.onSetupResponse(resp)
	}

	return resp, nil
}

// onDescribeResponse parses the SDP body, selecting the first media block
// as the primary track the client depacketizes.
func (c *Client) onDescribeResponse(resp *Response) error {
	if resp.Status != StatusOK || len(resp.Body) == 0 {
		return nil
	}
	doc, err := sdp.Parse(resp.Body)
	if err != nil {
		return fmt.Errorf("rtsp: sdp parse: %w", err)
	}
	c.sdpDoc = doc
	c.listener.OnDescribeReceived(resp.Body)

	if len(doc.Media) == 0 {
		return fmt.Errorf("rtsp: sdp describes no media")
	}
	primary := doc.Media[0]
	if len(primary.Formats) == 0 {
		return fmt.Errorf("rtsp: media block has no payload formats")
	}
	pt, _ := strconv.Atoi(primary.Formats[0])
	rm, _ := primary.RTPMapFor(pt)
	c.trackInfo = rm
	c.trackCtrl = primary.Value("control")
	c.session.SetControlURL(c.trackCtrl)

	if c.useTCP {
		c.session.SetTransportInfo("RTP/AVP/TCP;unicast;interleaved=0-1")
	} else {
		c.session.SetTransportInfo(defaultClientTransport)
	}

	c.depacket = depacketizerFor(rm.EncodingName, func(payload []byte, timestamp uint32) {
		c.listener.OnFrame(0, payload, timestamp)
	})
	c.receiver = rtcp.NewReceiverContext(rm.ClockRate)
	c.rtpSSRC = uint32(time.Now().UnixNano())
	return nil
}

// onSetupResponse binds the negotiated transport: for UDP it learns the
// server's ports from the Transport header and starts the receive
// goroutines; for TCP the shared connection, already demultiplexed by
// nextResponse, needs no extra setup.
func (c *Client) onSetupResponse(resp *Response) {
	if resp.Status != StatusOK {
		return
	}
	c.listener.OnSetupReceived(0, resp.Headers.Get("Transport"))
	if c.useTCP {
		return
	}

	header := resp.Headers.Get("Transport")
	serverRTP, serverRTCP, ok := parseServerPort(header)
	if !ok {
		return
	}

	pair, err := transport.AllocatePortPair(20)
	if err != nil {
		c.listener.OnError(0, fmt.Sprintf("rtsp: port allocation failed: %v", err))
		return
	}
	c.udpPair = pair

	udp := transport.NewUDPTransport(pair, func(payload []byte) {
		c.handleInboundFrame(payload, true)
	}, func(payload []byte) {
		c.handleInboundFrame(payload, false)
	})
	host, _, _ := net.SplitHostPort(c.conn.RemoteAddr().String())
	udp.SetRemote(
		&net.UDPAddr{IP: net.ParseIP(host), Port: serverRTP},
		&net.UDPAddr{IP: net.ParseIP(host), Port: serverRTCP},
	)
	udp.Start()
	c.adapter = udp
}

func parseServerPort(transportHeader string) (rtpPort, rtcpPort int, ok bool) {
	for _, field := range strings.Split(transportHeader, ";") {
		if !strings.HasPrefix(field, "server_port=") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(field, "server_port="), "-", 2)
		if len(parts) != 2 {
			return 0, 0, false
		}
		rtp, err1 := strconv.Atoi(parts[0])
		rtcp, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return rtp, rtcp, true
	}
	return 0, 0, false
}

func depacketizerFor(encodingName string, onAccessUnit func(payload []byte, timestamp uint32)) depacketizer {
	switch strings.ToUpper(encodingName) {
	case "H264":
		return rtp.NewH264Depacketizer(onAccessUnit)
	case "H265":
		return rtp.NewH265Depacketizer(onAccessUnit)
	case "MPEG4-GENERIC":
		return rtp.NewAACDepacketizer(onAccessUnit)
	default:
		return rtp.NewTSDepacketizer(onAccessUnit)
	}
}

// Close tears the connection down: any SETUP'd UDP sockets are released,
// the control connection is closed, and the serveMedia read loop observes
// closed and returns.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.udpPair != nil {
		c.udpPair.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
