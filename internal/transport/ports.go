// Created by WINK Streaming (https://www.wink.co)
// Package transport implements the RTSP dual transport layer: UDP unicast
// (RTP/RTCP on a consecutive even/odd port pair) and TCP interleaved
// (RFC 2326 §10.12, both channels multiplexed onto the RTSP control
// connection).
package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// PortPair is an allocated, bound even/odd UDP socket pair for one media
// track: RTP always takes the even port, RTCP the odd port immediately
// above it, per RFC 3550 §11's convention that RTSP/SDP negotiation relies
// on.
type PortPair struct {
	RTP  net.PacketConn
	RTCP net.PacketConn
}

// Close closes both sockets.
func (p *PortPair) Close() error {
	var err error
	if p.RTP != nil {
		if e := p.RTP.Close(); e != nil {
			err = e
		}
	}
	if p.RTCP != nil {
		if e := p.RTCP.Close(); e != nil {
			err = e
		}
	}
	return err
}

// RTPPort returns the bound RTP port.
func (p *PortPair) RTPPort() int {
	return p.RTP.LocalAddr().(*net.UDPAddr).Port
}

// RTCPPort returns the bound RTCP port.
func (p *PortPair) RTCPPort() int {
	return p.RTCP.LocalAddr().(*net.UDPAddr).Port
}

// AllocatePortPair binds a fresh even-RTP/odd-RTCP UDP port pair, retrying
// up to maxAttempts times against ephemeral ports when the kernel hands out
// an odd RTP port (which happens rarely, since ":0" doesn't let us request
// parity directly).
func AllocatePortPair(maxAttempts int) (*PortPair, error) {
	if maxAttempts <= 0 {
		maxAttempts = 20
	}

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		rtp, err := net.ListenPacket("udp", ":0")
		if err != nil {
			lastErr = err
			continue
		}
		rtpPort := rtp.LocalAddr().(*net.UDPAddr).Port
		if rtpPort%2 != 0 {
			rtp.Close()
			continue
		}

		rtcp, err := net.ListenPacket("udp", fmt.Sprintf(":%d", rtpPort+1))
		if err != nil {
			rtp.Close()
			lastErr = err
			continue
		}

		return &PortPair{RTP: rtp, RTCP: rtcp}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("transport: could not allocate an even/odd port pair after %d attempts", maxAttempts)
	}
	return nil, lastErr
}

// ParseClientPort parses a SETUP Transport header's "client_port=<rtp>-<rtcp>"
// parameter for UDP unicast transport.
func ParseClientPort(transportHeader string) (rtpPort, rtcpPort int, ok bool) {
	for _, field := range strings.Split(transportHeader, ";") {
		if !strings.HasPrefix(field, "client_port=") {
			continue
		}
		ports := strings.SplitN(strings.TrimPrefix(field, "client_port="), "-", 2)
		if len(ports) != 2 {
			return 0, 0, false
		}
		rtp, err1 := strconv.Atoi(ports[0])
		rtcp, err2 := strconv.Atoi(ports[1])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return rtp, rtcp, true
	}
	return 0, 0, false
}

// IsInterleaved reports whether a SETUP Transport header specifies
// TCP-interleaved transport (RTP/AVP/TCP) rather than UDP unicast.
func IsInterleaved(transportHeader string) bool {
	return strings.Contains(transportHeader, "RTP/AVP/TCP")
}
