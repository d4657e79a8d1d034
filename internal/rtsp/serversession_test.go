package rtsp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerSessionRedirectWithoutPushErrors(t *testing.T) {
	s := NewServerSession(&fakeHooks{}, nil)
	err := s.Redirect("rtsp://elsewhere/stream")
	assert.Error(t, err)
}

func TestServerSessionRedirectWritesRequest(t *testing.T) {
	var pushed [][]byte
	s := NewServerSession(&fakeHooks{}, func(b []byte) error {
		pushed = append(pushed, b)
		return nil
	})

	require.NoError(t, s.Redirect("rtsp://elsewhere/stream"))
	require.Len(t, pushed, 1)

	raw := string(pushed[0])
	assert.True(t, strings.HasPrefix(raw, "REDIRECT * RTSP/1.0\r\n"))
	assert.Contains(t, raw, "Location: rtsp://elsewhere/stream\r\n")
	assert.Contains(t, raw, "Session: "+s.ID()+"\r\n")
	assert.Contains(t, raw, "CSeq: 1\r\n")

	require.NoError(t, s.Redirect("rtsp://elsewhere/stream"))
	assert.Contains(t, string(pushed[1]), "CSeq: 2\r\n")
}

func TestSessionRegistrySweepsIdleSessions(t *testing.T) {
	hooks := &fakeHooks{}
	s := NewServerSession(hooks, nil)
	s.timeout = 10 * time.Millisecond

	reg := NewSessionRegistry(5 * time.Millisecond)
	defer reg.Close()
	reg.Add(s)

	require.Eventually(t, func() bool {
		_, ok := reg.Get(s.ID())
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.True(t, hooks.torndown)
}
