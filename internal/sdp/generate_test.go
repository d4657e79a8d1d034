package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIncludesSessionAndMediaLines(t *testing.T) {
	cfg := Config{
		ServerAddr: "10.0.0.5",
		Tracks: []TrackParams{
			{MediaType: "video", PayloadType: 96, EncodingName: "H264", ClockRate: 90000, Control: "trackID=0", FmtpParams: "packetization-mode=1"},
			{MediaType: "audio", PayloadType: 97, EncodingName: "mpeg4-generic", ClockRate: 48000, Channels: 2, Control: "trackID=1"},
		},
	}
	out := string(Generate(cfg))

	assert.True(t, strings.HasPrefix(out, "v=0\r\n"))
	assert.Contains(t, out, "o=- 0 0 IN IP4 10.0.0.5\r\n")
	assert.Contains(t, out, "c=IN IP4 10.0.0.5\r\n")
	assert.Contains(t, out, "m=video 0 RTP/AVP 96\r\n")
	assert.Contains(t, out, "a=rtpmap:96 H264/90000\r\n")
	assert.Contains(t, out, "a=fmtp:96 packetization-mode=1\r\n")
	assert.Contains(t, out, "a=control:trackID=0\r\n")
	assert.Contains(t, out, "m=audio 0 RTP/AVP 97\r\n")
	assert.Contains(t, out, "a=rtpmap:97 mpeg4-generic/48000/2\r\n")
}

func TestGenerateDefaultsWhenFieldsEmpty(t *testing.T) {
	out := string(Generate(Config{}))
	assert.Contains(t, out, "o=- 0 0 IN IP4 0.0.0.0\r\n")
	assert.Contains(t, out, "s=stream\r\n")
}

func TestGenerateOmitsFmtpWhenEmpty(t *testing.T) {
	cfg := Config{Tracks: []TrackParams{{MediaType: "video", PayloadType: 33, EncodingName: "MP2T", ClockRate: 90000}}}
	out := string(Generate(cfg))
	assert.NotContains(t, out, "a=fmtp:33")
}

func TestGenerateRoundTripsThroughParse(t *testing.T) {
	cfg := Config{
		ServerAddr: "127.0.0.1",
		Tracks: []TrackParams{
			{MediaType: "video", PayloadType: 96, EncodingName: "H264", ClockRate: 90000, Control: "trackID=0"},
		},
	}
	out := Generate(cfg)

	sd, err := Parse(out)
	assert := assert.New(t)
	assert.NoError(err)
	assert.Len(sd.Media, 1)
	rm, ok := sd.Media[0].RTPMapFor(96)
	assert.True(ok)
	assert.Equal("H264", rm.EncodingName)
	assert.Equal(uint32(90000), rm.ClockRate)
}
