// Created by WINK Streaming (https://www.wink.co)
package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/winkstreaming/rtspstack/internal/rtcp"
	"github.com/winkstreaming/rtspstack/internal/rtp"
	"github.com/winkstreaming/rtspstack/internal/transport"
)

// Packetizer is the common shape of the four codec packetizers in
// internal/rtp: H264Packetizer, H265Packetizer, AACPacketizer, TSPacketizer.
// Track depends only on this interface so it never branches on codec.
type Packetizer interface {
	Packetize(payload []byte, timestamp uint32) []*rtp.Packet
	Reset(startSeq uint16)
}

// TrackState mirrors the subset of the session state machine relevant to
// one track's send queue.
type TrackState int

const (
	TrackReady TrackState = iota
	TrackPlaying
	TrackPaused
	TrackClosed
)

// DefaultQueueCapacity is the bounded send-queue depth for a track's frame
// queue: PushFrame never blocks or delays, but a full queue drops the
// oldest frame rather than growing without bound.
const DefaultQueueCapacity = 256

// rtcpReportInterval is the period of a track's SR timer. It is a fixed 5s;
// there is no option to change it.
const rtcpReportInterval = 5 * time.Second

// Track owns one stream's packetizer, transport adapter, RTCP sender
// context, and bounded frame queue.
type Track struct {
	Index int
	Info  StreamInfo

	packetizer Packetizer
	adapter    transport.Adapter
	sender     *rtcp.SenderContext
	cname      string
	ssrc       uint32

	log zerolog.Logger

	mu            sync.Mutex
	state         TrackState
	queue         chan Frame
	stop          chan struct{}
	wg            sync.WaitGroup
	lastSeq       uint16
	lastTimestamp uint32
	haveSent      bool
}

// NewTrack creates a track in the Ready state, wired to packetizer and
// adapter (both already bound to the SETUP-negotiated transport).
func NewTrack(index int, info StreamInfo, packetizer Packetizer, adapter transport.Adapter, ssrc uint32, cname string, log zerolog.Logger) *Track {
	startSeq := uint16(time.Now().UnixNano())
	packetizer.Reset(startSeq)
	return &Track{
		Index:      index,
		Info:       info,
		packetizer: packetizer,
		adapter:    adapter,
		sender:     rtcp.NewSenderContext(ssrc, info.ClockRate),
		cname:      cname,
		ssrc:       ssrc,
		log:        log,
		state:      TrackReady,
		lastSeq:    startSeq,
	}
}

// NextSequence and LastTimestamp report the packetizer's current position
// for the PLAY response's RTP-Info header, reflecting the initial (random)
// values if PLAY fires before any frame has been sent.
func (t *Track) NextSequence() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeq
}

func (t *Track) LastTimestamp() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTimestamp
}

// Play starts the track's feed worker and RTCP timer.
func (t *Track) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TrackPlaying || t.state == TrackClosed {
		return
	}
	t.state = TrackPlaying
	if t.queue == nil {
		t.queue = make(chan Frame, DefaultQueueCapacity)
	}
	t.stop = make(chan struct{})
	t.wg.Add(2)
	go t.feedLoop(t.queue, t.stop)
	go t.rtcpLoop(t.stop)
}

// Pause stops delivery without releasing the transport adapter.
func (t *Track) Pause() {
	t.mu.Lock()
	if t.state != TrackPlaying {
		t.mu.Unlock()
		return
	}
	t.state = TrackPaused
	stop := t.stop
	t.mu.Unlock()

	close(stop)
	t.wg.Wait()
}

// Close tears the track down: stops the feed/RTCP loops and closes the
// transport adapter.
func (t *Track) Close() error {
	t.mu.Lock()
	if t.state == TrackPlaying {
		stop := t.stop
		t.mu.Unlock()
		close(stop)
		t.wg.Wait()
		t.mu.Lock()
	}
	t.state = TrackClosed
	t.mu.Unlock()
	return t.adapter.Close()
}

// PushFrame enqueues f for packetization and transmission. It is
// non-blocking: a Ready or Paused track rejects the frame, and a full queue
// on a Playing track drops the oldest frame rather than blocking the
// caller.
func (t *Track) PushFrame(f Frame) error {
	t.mu.Lock()
	state := t.state
	queue := t.queue
	t.mu.Unlock()

	if state != TrackPlaying {
		return fmt.Errorf("media: track %d not playing (state=%d)", t.Index, state)
	}

	select {
	case queue <- f:
		return nil
	default:
	}

	// Queue full: drop the oldest frame and retry once.
	select {
	case <-queue:
		t.log.Warn().Int("track", t.Index).Msg("frame queue full, dropping oldest frame")
	default:
	}
	select {
	case queue <- f:
		return nil
	default:
		t.log.Warn().Int("track", t.Index).Msg("frame dropped, queue still full")
		return nil
	}
}

func (t *Track) feedLoop(queue chan Frame, stop chan struct{}) {
	defer t.wg.Done()
	for {
		select {
		case <-stop:
			return
		case f, ok := <-queue:
			if !ok {
				return
			}
			t.sendFrame(f)
		}
	}
}

func (t *Track) sendFrame(f Frame) {
	packets := t.packetizer.Packetize(f.Payload, f.Timestamp)
	for _, pkt := range packets {
		pkt.SSRC = t.ssrc
		data := pkt.Marshal()
		if err := t.adapter.SendRTP(data); err != nil {
			t.log.Error().Err(err).Int("track", t.Index).Msg("rtp send failed")
			continue
		}
		t.sender.OnRTPSent(len(pkt.Payload))

		t.mu.Lock()
		t.lastSeq = pkt.SequenceNumber + 1
		t.lastTimestamp = pkt.Timestamp
		t.haveSent = true
		t.mu.Unlock()
	}
}

func (t *Track) rtcpLoop(stop chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(rtcpReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.sendSenderReport()
		}
	}
}

func (t *Track) sendSenderReport() {
	sr := t.sender.CreateSenderReport(time.Now(), t.LastTimestamp())
	sdes := &rtcp.SourceDescription{
		SSRC:  t.ssrc,
		Items: []rtcp.SDESItem{{Type: rtcp.SDESCNAME, Text: t.cname}},
	}
	compound := &rtcp.CompoundPacket{SenderReports: []*rtcp.SenderReport{sr}, SourceDescriptions: []*rtcp.SourceDescription{sdes}}
	if err := t.adapter.SendRTCP(compound.Marshal()); err != nil {
		t.log.Warn().Err(err).Int("track", t.Index).Msg("rtcp send failed")
	}
}

// HandleRTCP processes an inbound RTCP compound packet (typically a
// receiver report) arriving on this track's RTCP channel.
func (t *Track) HandleRTCP(payload []byte) {
	compound, err := rtcp.Unmarshal(payload)
	if err != nil {
		t.log.Warn().Err(err).Int("track", t.Index).Msg("malformed inbound rtcp")
		return
	}
	now := time.Now()
	for _, rr := range compound.ReceiverReports {
		for _, block := range rr.ReportBlocks {
			if rtt, ok := t.sender.ProcessReceiverReport(block, now); ok {
				t.log.Debug().Int("track", t.Index).Dur("rtt", rtt).Msg("rtcp rtt sample")
			}
		}
	}
}
