// Created by WINK Streaming (https://www.wink.co)
package transport

import (
	"net"
	"time"
)

// UDPReadBufferSize is the socket receive buffer this stack requests on
// every RTP/RTCP UDP socket, sized for bursty media traffic.
const UDPReadBufferSize = 2 * 1024 * 1024

// UDPTransport carries one track's RTP and RTCP over a pair of UDP sockets
// to/from a fixed remote address (set once SETUP's Transport header
// negotiation completes).
type UDPTransport struct {
	pair       *PortPair
	remoteRTP  *net.UDPAddr
	remoteRTCP *net.UDPAddr

	onRTP  func(payload []byte)
	onRTCP func(payload []byte)

	stop chan struct{}
}

// NewUDPTransport wraps an already-allocated port pair. SetRemote must be
// called before Start if the remote address isn't known yet (typical for a
// server, which learns it from the SETUP request's client_port).
func NewUDPTransport(pair *PortPair, onRTP, onRTCP func(payload []byte)) *UDPTransport {
	if v, ok := pair.RTP.(*net.UDPConn); ok {
		v.SetReadBuffer(UDPReadBufferSize)
	}
	if v, ok := pair.RTCP.(*net.UDPConn); ok {
		v.SetReadBuffer(UDPReadBufferSize)
	}
	return &UDPTransport{pair: pair, onRTP: onRTP, onRTCP: onRTCP, stop: make(chan struct{})}
}

// SetRemote fixes the peer address RTP/RTCP packets are sent to.
func (t *UDPTransport) SetRemote(rtpAddr, rtcpAddr *net.UDPAddr) {
	t.remoteRTP = rtpAddr
	t.remoteRTCP = rtcpAddr
}

// Start launches the read-loop goroutines for both sockets.
func (t *UDPTransport) Start() {
	go t.readLoop(t.pair.RTP, t.onRTP)
	go t.readLoop(t.pair.RTCP, t.onRTCP)
}

func (t *UDPTransport) readLoop(conn net.PacketConn, deliver func([]byte)) {
	buf := make([]byte, 65536)
	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if n == 0 || deliver == nil {
			continue
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		deliver(packet)
	}
}

// SendRTP writes payload to the negotiated remote RTP port.
func (t *UDPTransport) SendRTP(payload []byte) error {
	_, err := t.pair.RTP.WriteTo(payload, t.remoteRTP)
	return err
}

// SendRTCP writes payload to the negotiated remote RTCP port.
func (t *UDPTransport) SendRTCP(payload []byte) error {
	_, err := t.pair.RTCP.WriteTo(payload, t.remoteRTCP)
	return err
}

// Close stops the read loops and closes both sockets.
func (t *UDPTransport) Close() error {
	close(t.stop)
	return t.pair.Close()
}
