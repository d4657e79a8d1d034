package rtsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerPort(t *testing.T) {
	rtp, rtcp, ok := parseServerPort("RTP/AVP;unicast;client_port=5004-5005;server_port=6000-6001")
	require.True(t, ok)
	assert.Equal(t, 6000, rtp)
	assert.Equal(t, 6001, rtcp)
}

func TestParseServerPortMissing(t *testing.T) {
	_, _, ok := parseServerPort("RTP/AVP/TCP;unicast;interleaved=0-1")
	assert.False(t, ok)
}

func TestParseServerPortMalformed(t *testing.T) {
	_, _, ok := parseServerPort("server_port=abc-def")
	assert.False(t, ok)
}

func TestDepacketizerForSelectsByEncodingName(t *testing.T) {
	noop := func(payload []byte, timestamp uint32) {}

	assert.IsType(t, depacketizerFor("H264", noop), depacketizerFor("h264", noop))
	assert.NotNil(t, depacketizerFor("H265", noop))
	assert.NotNil(t, depacketizerFor("MPEG4-GENERIC", noop))
	assert.NotNil(t, depacketizerFor("unknown-codec", noop))
}
