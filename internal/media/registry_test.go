package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTracks() []StreamInfo {
	return []StreamInfo{
		{Kind: KindVideo, Codec: CodecH264, PayloadType: 96, ClockRate: 90000, Control: "trackID=0"},
		{Kind: KindAudio, Codec: CodecAAC, PayloadType: 97, ClockRate: 48000, Channels: 2, Control: "trackID=1"},
	}
}

func TestNewStreamSourceRendersSDPOnce(t *testing.T) {
	src := NewStreamSource("/live/cam1", "10.0.0.5", sampleTracks())
	body := src.SDP()

	assert.Contains(t, string(body), "m=video 0 RTP/AVP 96")
	assert.Contains(t, string(body), "m=audio 0 RTP/AVP 97")
}

func TestRegistryRegisterLookupUnregister(t *testing.T) {
	reg := NewRegistry()
	src := NewStreamSource("/live/cam1", "127.0.0.1", sampleTracks())

	_, ok := reg.Lookup("/live/cam1")
	require.False(t, ok)

	reg.Register(src)
	got, ok := reg.Lookup("/live/cam1")
	require.True(t, ok)
	assert.Same(t, src, got)

	reg.Unregister("/live/cam1")
	_, ok = reg.Lookup("/live/cam1")
	assert.False(t, ok)
}

func TestStreamSourcePushFrameFansOutToSubscribers(t *testing.T) {
	src := NewStreamSource("/live/cam1", "127.0.0.1", sampleTracks())

	adapter := &fakeAdapter{}
	m := &StreamManager{tracks: map[int]*Track{0: newTestTrack(adapter)}}
	m.tracks[0].Play()
	defer m.tracks[0].Close()

	src.subscribe(m)
	defer src.unsubscribe(m)

	src.PushFrame(0, Frame{Payload: []byte{1, 2}, Timestamp: 10})

	require.Eventually(t, func() bool { return adapter.sentCount() == 1 }, time.Second, 5*time.Millisecond)
}
