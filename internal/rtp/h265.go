// Created by WINK Streaming (https://www.wink.co)
package rtp

// H.265 NAL unit types relevant to RFC 7798 packetization.
const (
	nalTypeH265AP = 48
	nalTypeH265FU = 49
)

// H265Packetizer turns Annex-B access units into RTP packets per RFC 7798.
// H.265 NAL headers are two bytes (F|Type(6)|LayerId(6)|TID(3)), so the FU
// fragment header carries an extra PayloadHdr byte compared to H.264's FU-A.
type H265Packetizer struct {
	PayloadType uint8
	SSRC        uint32
	MTU         int

	seq uint16
}

// NewH265Packetizer creates a packetizer with sequence numbers starting at 0;
// use Reset to seed an unpredictable starting value.
func NewH265Packetizer(payloadType uint8, ssrc uint32, mtu int) *H265Packetizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &H265Packetizer{PayloadType: payloadType, SSRC: ssrc, MTU: mtu}
}

// Reset sets the starting sequence number.
func (p *H265Packetizer) Reset(startSeq uint16) { p.seq = startSeq }

// Packetize splits an Annex-B access unit into RTP packets stamped with
// timestamp.
func (p *H265Packetizer) Packetize(accessUnit []byte, timestamp uint32) []*Packet {
	nalUnits := splitAnnexB(accessUnit)
	var packets []*Packet

	singleNALBudget := p.MTU - HeaderSize

	for i, nal := range nalUnits {
		if len(nal) < 2 {
			continue
		}
		isLastNAL := i == len(nalUnits)-1

		if len(nal) <= singleNALBudget {
			packets = append(packets, p.next(nal, timestamp, isLastNAL))
			continue
		}
		packets = append(packets, p.packetizeFU(nal, timestamp, isLastNAL)...)
	}

	return packets
}

func (p *H265Packetizer) next(payload []byte, timestamp uint32, marker bool) *Packet {
	pkt := &Packet{
		Version:        2,
		Marker:         marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.seq,
		Timestamp:      timestamp,
		SSRC:           p.SSRC,
		Payload:        append([]byte(nil), payload...),
	}
	p.seq++
	return pkt
}

// packetizeFU fragments a two-byte-header NAL unit per RFC 7798 §4.4.3.
func (p *H265Packetizer) packetizeFU(nal []byte, timestamp uint32, isLastNAL bool) []*Packet {
	b0, b1 := nal[0], nal[1]
	nalType := (b0 >> 1) & 0x3f

	payloadHdr0 := (b0 & 0x81) | (nalTypeH265FU << 1)
	payloadHdr1 := b1

	payload := nal[2:]
	maxFragment := p.MTU - HeaderSize - 3
	if maxFragment < 1 {
		maxFragment = 1
	}

	var packets []*Packet
	for off := 0; off < len(payload); off += maxFragment {
		end := off + maxFragment
		if end > len(payload) {
			end = len(payload)
		}
		isFirst := off == 0
		isLastFragment := end == len(payload)

		fuHeader := nalType
		if isFirst {
			fuHeader |= 0x80
		}
		if isLastFragment {
			fuHeader |= 0x40
		}

		buf := make([]byte, 3+(end-off))
		buf[0] = payloadHdr0
		buf[1] = payloadHdr1
		buf[2] = fuHeader
		copy(buf[3:], payload[off:end])

		marker := isLastFragment && isLastNAL
		packets = append(packets, p.next(buf, timestamp, marker))
	}
	return packets
}

// H265Depacketizer reassembles RTP packets into Annex-B access units per
// RFC 7798. AP (type 48) aggregates are not unpacked (rare over RTSP in
// practice); a sequence-number gap detected mid-fragmentation discards the
// in-progress frame rather than emitting corrupt data.
type H265Depacketizer struct {
	pending      []byte
	haveFrame    bool
	fuActive     bool
	currentTS    uint32
	lastSeq      uint16
	seqInit      bool
	onAccessUnit func(accessUnit []byte, timestamp uint32)
}

// NewH265Depacketizer creates a depacketizer invoking onAccessUnit once per
// reassembled access unit.
func NewH265Depacketizer(onAccessUnit func(accessUnit []byte, timestamp uint32)) *H265Depacketizer {
	return &H265Depacketizer{onAccessUnit: onAccessUnit}
}

func (d *H265Depacketizer) flush() {
	if !d.haveFrame || len(d.pending) == 0 {
		return
	}
	au := d.pending
	d.pending = nil
	d.haveFrame = false
	d.fuActive = false
	if d.onAccessUnit != nil {
		d.onAccessUnit(au, d.currentTS)
	}
}

func (d *H265Depacketizer) resetState() {
	d.pending = nil
	d.haveFrame = false
	d.fuActive = false
}

// SubmitPacket feeds one received RTP packet into the reassembler.
func (d *H265Depacketizer) SubmitPacket(pkt *Packet) {
	if pkt == nil {
		return
	}

	if d.seqInit {
		expected := d.lastSeq + 1
		if pkt.SequenceNumber != expected && d.fuActive {
			d.resetState()
		}
	}
	d.lastSeq = pkt.SequenceNumber
	d.seqInit = true

	if d.haveFrame && pkt.Timestamp != d.currentTS {
		d.flush()
	}
	d.currentTS = pkt.Timestamp

	if len(pkt.Payload) < 2 {
		return
	}
	data := pkt.Payload
	nalType := (data[0] >> 1) & 0x3f

	switch {
	case nalType <= 47:
		d.pending = append(d.pending, annexBStartCode...)
		d.pending = append(d.pending, data...)
		d.haveFrame = true
		d.fuActive = false

	case nalType == nalTypeH265FU && len(data) >= 3:
		fuHeader := data[2]
		start := fuHeader&0x80 != 0
		end := fuHeader&0x40 != 0
		fuType := fuHeader & 0x3f

		reconstructed0 := (data[0] & 0x81) | (fuType << 1)
		reconstructed1 := data[1]

		fragment := data[3:]

		if !start && !d.fuActive {
			// continuation of a fragmented NAL whose start was lost or
			// discarded: drop it rather than emit a headerless fragment.
			break
		}
		if start {
			d.pending = append(d.pending, annexBStartCode...)
			d.pending = append(d.pending, reconstructed0, reconstructed1)
			d.fuActive = true
		}
		if len(fragment) > 0 {
			d.pending = append(d.pending, fragment...)
			d.haveFrame = true
		}
		if end {
			d.fuActive = false
		}

	case nalType == nalTypeH265AP:
		// Aggregation packets are rare over RTSP; not unpacked.

	default:
		// PACI (50) and reserved types are not supported.
	}

	if pkt.Marker {
		d.flush()
	}
}
