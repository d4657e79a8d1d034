package rtsp

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestServer(hooks SessionHooks) *Server {
	return NewServer(func(conn net.Conn, writeMu *sync.Mutex) SessionHooks {
		return hooks
	}, zerolog.Nop())
}

func TestHandleConnAnswersOptionsRequest(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	s := newTestServer(&fakeHooks{})
	done := make(chan struct{})
	go func() {
		s.handleConn(serverConn)
		close(done)
	}()

	_, err := clientConn.Write([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(clientConn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "RTSP/1.0 200 OK\r\n", statusLine)

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleConn did not return after connection close")
	}
}

func TestHandleConnFullSessionLifecycle(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	hooks := &fakeHooks{}
	s := newTestServer(hooks)
	done := make(chan struct{})
	go func() {
		s.handleConn(serverConn)
		close(done)
	}()

	reader := bufio.NewReader(clientConn)
	send := func(req string) string {
		_, err := clientConn.Write([]byte(req))
		require.NoError(t, err)
		statusLine, err := reader.ReadString('\n')
		require.NoError(t, err)

		contentLength := 0
		for {
			next, err := reader.ReadString('\n')
			require.NoError(t, err)
			if next == "\r\n" {
				break
			}
			name, value, ok := strings.Cut(strings.TrimRight(next, "\r\n"), ":")
			if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
				contentLength, _ = strconv.Atoi(strings.TrimSpace(value))
			}
		}
		if contentLength > 0 {
			body := make([]byte, contentLength)
			_, err := io.ReadFull(reader, body)
			require.NoError(t, err)
		}
		return statusLine
	}

	require.Equal(t, "RTSP/1.0 200 OK\r\n", send("DESCRIBE rtsp://host/stream RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	require.Equal(t, "RTSP/1.0 200 OK\r\n", send("SETUP rtsp://host/stream/trackID=0 RTSP/1.0\r\nCSeq: 2\r\nTransport: RTP/AVP;unicast;client_port=5004-5005\r\n\r\n"))
	require.Equal(t, "RTSP/1.0 200 OK\r\n", send("TEARDOWN rtsp://host/stream RTSP/1.0\r\nCSeq: 3\r\n\r\n"))

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleConn did not return after connection close")
	}
	require.True(t, hooks.torndown)
}
