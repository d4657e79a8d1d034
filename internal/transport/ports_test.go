package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatePortPairBindsEvenOddPair(t *testing.T) {
	pair, err := AllocatePortPair(20)
	require.NoError(t, err)
	defer pair.Close()

	assert.Equal(t, 0, pair.RTPPort()%2)
	assert.Equal(t, pair.RTPPort()+1, pair.RTCPPort())
}

func TestParseClientPort(t *testing.T) {
	rtp, rtcp, ok := ParseClientPort("RTP/AVP;unicast;client_port=5000-5001")
	require.True(t, ok)
	assert.Equal(t, 5000, rtp)
	assert.Equal(t, 5001, rtcp)
}

func TestParseClientPortMissing(t *testing.T) {
	_, _, ok := ParseClientPort("RTP/AVP/TCP;unicast;interleaved=0-1")
	assert.False(t, ok)
}

func TestParseClientPortMalformed(t *testing.T) {
	_, _, ok := ParseClientPort("client_port=abc-def")
	assert.False(t, ok)
}

func TestIsInterleaved(t *testing.T) {
	assert.True(t, IsInterleaved("RTP/AVP/TCP;unicast;interleaved=0-1"))
	assert.False(t, IsInterleaved("RTP/AVP;unicast;client_port=5000-5001"))
}
