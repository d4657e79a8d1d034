package sdp

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestH264TrackFmtpFields(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1f, 0xaa}
	pps := []byte{0x68, 0xce}

	tr := H264Track(96, 90000, sps, pps, "trackID=0")
	assert.Equal(t, "video", tr.MediaType)
	assert.Equal(t, "H264", tr.EncodingName)
	assert.Contains(t, tr.FmtpParams, "packetization-mode=1")
	assert.Contains(t, tr.FmtpParams, "profile-level-id=42001f")
	assert.Contains(t, tr.FmtpParams, base64.StdEncoding.EncodeToString(sps))
	assert.Contains(t, tr.FmtpParams, base64.StdEncoding.EncodeToString(pps))
}

func TestH265TrackFmtpFields(t *testing.T) {
	vps, sps, pps := []byte{1, 2}, []byte{3, 4}, []byte{5, 6}
	tr := H265Track(97, 90000, vps, sps, pps, "trackID=0")
	assert.Equal(t, "H265", tr.EncodingName)
	assert.Contains(t, tr.FmtpParams, "sprop-vps="+base64.StdEncoding.EncodeToString(vps))
	assert.Contains(t, tr.FmtpParams, "sprop-sps="+base64.StdEncoding.EncodeToString(sps))
	assert.Contains(t, tr.FmtpParams, "sprop-pps="+base64.StdEncoding.EncodeToString(pps))
}

func TestAACTrackFmtpFields(t *testing.T) {
	tr := AACTrack(98, 48000, 2, "trackID=1")
	assert.Equal(t, "audio", tr.MediaType)
	assert.Equal(t, "mpeg4-generic", tr.EncodingName)
	assert.Equal(t, 2, tr.Channels)
	assert.True(t, strings.Contains(tr.FmtpParams, "sizelength=13"))
	assert.True(t, strings.Contains(tr.FmtpParams, "config="))
}

func TestAACSamplingFrequencyIndexKnownAndUnknown(t *testing.T) {
	assert.Equal(t, 3, aacSamplingFrequencyIndex(48000))
	assert.Equal(t, 0x0f, aacSamplingFrequencyIndex(12345))
}

func TestTSTrackUsesStaticPayloadType(t *testing.T) {
	tr := TSTrack("trackID=2")
	assert.Equal(t, uint8(TSTrackPayloadType), tr.PayloadType)
	assert.Equal(t, uint32(90000), tr.ClockRate)
	assert.Equal(t, "", tr.FmtpParams)
}
