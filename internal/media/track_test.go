package media

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winkstreaming/rtspstack/internal/rtcp"
	"github.com/winkstreaming/rtspstack/internal/rtp"
)

type fakePacketizer struct {
	seq uint16
}

func (p *fakePacketizer) Reset(startSeq uint16) { p.seq = startSeq }

func (p *fakePacketizer) Packetize(payload []byte, timestamp uint32) []*rtp.Packet {
	p.seq++
	return []*rtp.Packet{{
		SequenceNumber: p.seq,
		Timestamp:      timestamp,
		Payload:        payload,
	}}
}

type fakeAdapter struct {
	mu       sync.Mutex
	rtpSent  [][]byte
	rtcpSent [][]byte
	closed   bool
	failRTP  bool
}

func (a *fakeAdapter) SendRTP(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failRTP {
		return assertErrTrack
	}
	cp := append([]byte(nil), payload...)
	a.rtpSent = append(a.rtpSent, cp)
	return nil
}

func (a *fakeAdapter) SendRTCP(payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := append([]byte(nil), payload...)
	a.rtcpSent = append(a.rtcpSent, cp)
	return nil
}

func (a *fakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *fakeAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rtpSent)
}

type trackErr struct{ msg string }

func (e *trackErr) Error() string { return e.msg }

var assertErrTrack = &trackErr{"send failed"}

func newTestTrack(adapter *fakeAdapter) *Track {
	return NewTrack(0, StreamInfo{Codec: CodecH264, ClockRate: 90000}, &fakePacketizer{}, adapter, 0xabcd, "test-cname", zerolog.Nop())
}

func TestTrackPushFrameRejectedWhenNotPlaying(t *testing.T) {
	adapter := &fakeAdapter{}
	tr := newTestTrack(adapter)

	err := tr.PushFrame(Frame{Payload: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestTrackPlayDeliversFrameAndAdvancesSequence(t *testing.T) {
	adapter := &fakeAdapter{}
	tr := newTestTrack(adapter)

	startSeq := tr.NextSequence()
	tr.Play()
	defer tr.Close()

	require.NoError(t, tr.PushFrame(Frame{Payload: []byte{9, 9}, Timestamp: 1000}))

	require.Eventually(t, func() bool { return adapter.sentCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, startSeq, tr.NextSequence())
	assert.Equal(t, uint32(1000), tr.LastTimestamp())
}

func TestTrackPauseThenPushFrameRejected(t *testing.T) {
	adapter := &fakeAdapter{}
	tr := newTestTrack(adapter)
	tr.Play()
	tr.Pause()

	err := tr.PushFrame(Frame{Payload: []byte{1}})
	assert.Error(t, err)
}

func TestTrackCloseClosesAdapter(t *testing.T) {
	adapter := &fakeAdapter{}
	tr := newTestTrack(adapter)
	tr.Play()

	require.NoError(t, tr.Close())
	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	assert.True(t, adapter.closed)
}

func TestTrackHandleRTCPProcessesReceiverReport(t *testing.T) {
	adapter := &fakeAdapter{}
	tr := newTestTrack(adapter)
	tr.Play()
	defer tr.Close()

	sr := tr.sender.CreateSenderReport(time.Now(), 500)
	lsr := (sr.NTPSeconds&0xffff)<<16 | sr.NTPFraction>>16
	time.Sleep(5 * time.Millisecond)

	rr := &rtcp.ReceiverReport{
		SSRC: 0x1234,
		ReportBlocks: []rtcp.ReportBlock{
			{SSRC: tr.ssrc, LSR: lsr, DLSR: 0},
		},
	}
	compound := &rtcp.CompoundPacket{ReceiverReports: []*rtcp.ReceiverReport{rr}}

	tr.HandleRTCP(compound.Marshal())

	assert.Greater(t, tr.sender.AverageRTT(), time.Duration(0))
}
