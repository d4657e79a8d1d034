// Created by WINK Streaming (https://www.wink.co)
package rtp

// H.264 NAL unit types relevant to RFC 6184 packetization.
const (
	nalTypeFUA   = 28
	nalTypeSTAPA = 24
)

// DefaultMTU is the payload budget packetizers fragment against when the
// caller doesn't size it to path MTU themselves.
const DefaultMTU = 1400

// H264Packetizer turns Annex-B access units into RTP packets per RFC 6184:
// NAL units that fit in one packet go out as single-NALU payloads, larger
// ones are split into FU-A fragments.
type H264Packetizer struct {
	PayloadType uint8
	SSRC        uint32
	MTU         int

	seq uint16
}

// NewH264Packetizer creates a packetizer with sequence numbers starting at 0;
// callers that need an unpredictable starting sequence should call Reset
// before the first Packetize call.
func NewH264Packetizer(payloadType uint8, ssrc uint32, mtu int) *H264Packetizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &H264Packetizer{PayloadType: payloadType, SSRC: ssrc, MTU: mtu}
}

// Reset sets the starting sequence number.
func (p *H264Packetizer) Reset(startSeq uint16) { p.seq = startSeq }

// Packetize splits one Annex-B access unit (possibly containing several NAL
// units back to back) into RTP packets stamped with timestamp. The marker
// bit is set only on the packet carrying the last fragment of the last NAL
// unit in the access unit, matching RFC 6184 §5.3's end-of-access-unit rule.
func (p *H264Packetizer) Packetize(accessUnit []byte, timestamp uint32) []*Packet {
	nalUnits := splitAnnexB(accessUnit)
	var packets []*Packet

	singleNALBudget := p.MTU - HeaderSize

	for i, nal := range nalUnits {
		if len(nal) == 0 {
			continue
		}
		isLastNAL := i == len(nalUnits)-1

		if len(nal) <= singleNALBudget {
			packets = append(packets, p.next(nal, timestamp, isLastNAL))
			continue
		}
		packets = append(packets, p.packetizeFUA(nal, timestamp, isLastNAL)...)
	}

	return packets
}

func (p *H264Packetizer) next(payload []byte, timestamp uint32, marker bool) *Packet {
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

// packetizeFUA fragments one NAL unit per RFC 6184 §5.8.
func (p *H264Packetizer) packetizeFUA(nal []byte, timestamp uint32, isLastNAL bool) []*Packet {
	nalHeader := nal[0]
	f := nalHeader & 0x80
	nri := nalHeader & 0x60
	originalType := nalHeader & 0x1f

	fuIndicator := f | nri | nalTypeFUA
	payload := nal[1:]

	maxFragment := p.MTU - HeaderSize - 2
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

		var fuHeader byte
		if isFirst {
			fuHeader = 0x80 | originalType
		} else if isLastFragment {
			fuHeader = 0x40 | originalType
		} else {
			fuHeader = originalType
		}

		buf := make([]byte, 2+(end-off))
		buf[0] = fuIndicator
		buf[1] = fuHeader
		copy(buf[2:], payload[off:end])

		marker := isLastFragment && isLastNAL
		packets = append(packets, p.next(buf, timestamp, marker))
	}
	return packets
}

// splitAnnexB splits an Annex-B byte stream (3- or 4-byte start codes) into
// individual NAL units with the start codes stripped.
func splitAnnexB(data []byte) [][]byte {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		if len(data) == 0 {
			return nil
		}
		return [][]byte{data}
	}

	var nals [][]byte
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].offset
		}
		nalStart := s.offset + s.length
		if nalStart < end {
			nals = append(nals, data[nalStart:end])
		}
	}
	return nals
}

type startCode struct {
	offset int
	length int
}

// findStartCodes locates every Annex-B start code (00 00 01 or 00 00 00 01)
// in data, preferring the 4-byte form when both match at the same offset.
func findStartCodes(data []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		if data[i+2] == 1 {
			codes = append(codes, startCode{offset: i, length: 3})
			i += 2
			continue
		}
		if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
			codes = append(codes, startCode{offset: i, length: 4})
			i += 3
		}
	}
	return codes
}

// H264Depacketizer reassembles RTP packets back into Annex-B access units.
// STAP-A aggregates are unpacked into their constituent NAL units (this
// stack parses STAP-A on the receive side even though its own packetizer
// never emits one); any other aggregation/fragmentation type (STAP-B, MTAP,
// FU-B) is dropped.
type H264Depacketizer struct {
	pending         []byte
	haveFrame       bool
	fuActive        bool
	currentTS       uint32
	onAccessUnit    func(accessUnit []byte, timestamp uint32)
}

// NewH264Depacketizer creates a depacketizer that invokes onAccessUnit each
// time a complete access unit (one or more NAL units sharing a timestamp,
// terminated by the marker bit or a timestamp change) is assembled.
func NewH264Depacketizer(onAccessUnit func(accessUnit []byte, timestamp uint32)) *H264Depacketizer {
	return &H264Depacketizer{onAccessUnit: onAccessUnit}
}

var annexBStartCode = []byte{0, 0, 0, 1}

func (d *H264Depacketizer) flush() {
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

// SubmitPacket feeds one received RTP packet into the reassembler.
func (d *H264Depacketizer) SubmitPacket(pkt *Packet) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return
	}

	if d.haveFrame && pkt.Timestamp != d.currentTS {
		d.flush()
	}
	d.currentTS = pkt.Timestamp

	data := pkt.Payload
	nalType := data[0] & 0x1f

	switch {
	case nalType >= 1 && nalType <= 23:
		d.pending = append(d.pending, annexBStartCode...)
		d.pending = append(d.pending, data...)
		d.haveFrame = true
		d.fuActive = false

	case nalType == nalTypeSTAPA:
		d.unpackSTAPA(data[1:])

	case nalType == nalTypeFUA && len(data) >= 2:
		fuHeader := data[1]
		start := fuHeader&0x80 != 0
		end := fuHeader&0x40 != 0
		originalType := fuHeader & 0x1f

		f := data[0] & 0x80
		nri := data[0] & 0x60
		reconstructed := f | nri | originalType

		fragment := data[2:]

		if start {
			d.pending = append(d.pending, annexBStartCode...)
			d.pending = append(d.pending, reconstructed)
			d.fuActive = true
		}
		if len(fragment) > 0 {
			d.pending = append(d.pending, fragment...)
			d.haveFrame = true
		}
		if end {
			d.fuActive = false
		}

	default:
		// STAP-B/MTAP/FU-B and reserved types are not supported.
	}

	if pkt.Marker {
		d.flush()
	}
}

// unpackSTAPA splits a STAP-A aggregation unit (RFC 6184 §5.7.1) into its
// constituent NAL units and appends each with its own start code.
func (d *H264Depacketizer) unpackSTAPA(data []byte) {
	for len(data) >= 2 {
		size := int(data[0])<<8 | int(data[1])
		data = data[2:]
		if size <= 0 || size > len(data) {
			return
		}
		d.pending = append(d.pending, annexBStartCode...)
		d.pending = append(d.pending, data[:size]...)
		d.haveFrame = true
		data = data[size:]
	}
}
