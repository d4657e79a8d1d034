// Created by WINK Streaming (https://www.wink.co)
package rtp

import "encoding/binary"

// AAC (RFC 3640, mpeg4-generic / AAC-hbr) AU-header layout: sizeLength=13,
// indexLength=3, indexDeltaLength=3 — the profile this stack's SDP always
// advertises. Each AU header is therefore 2 bytes wide.
const (
	aacAUHeaderBits  = 16
	aacSizeBits      = 13
	aacIndexBits     = 3
)

// AACPacketizer payloads AAC access units per RFC 3640 §3.2.1, emitting the
// 13-bit size / 3-bit index AU-header fields rather than concatenating raw
// ADTS-stripped frames with no framing.
type AACPacketizer struct {
	PayloadType uint8
	SSRC        uint32
	MTU         int

	seq uint16
}

// NewAACPacketizer creates a packetizer; mtu should exclude IP/UDP headers.
func NewAACPacketizer(payloadType uint8, ssrc uint32, mtu int) *AACPacketizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &AACPacketizer{PayloadType: payloadType, SSRC: ssrc, MTU: mtu}
}

// Reset sets the starting sequence number.
func (p *AACPacketizer) Reset(startSeq uint16) { p.seq = startSeq }

// Packetize emits one access unit (a single raw AAC frame, ADTS header
// already stripped by the caller) as one or more RTP packets. An AU that
// fits the MTU budget goes out as a single packet carrying a one-entry
// AU-header section; a larger AU is fragmented, with the AU-header section
// present only on the first fragment (RFC 3640 §3.2.3.2's fragmentation
// rule) and the marker bit set only on the fragment completing the AU.
func (p *AACPacketizer) Packetize(au []byte, timestamp uint32) []*Packet {
	if len(au) == 0 {
		return nil
	}
	if len(au) > 1<<aacSizeBits-1 {
		// AU too large to describe in a 13-bit size field; only its first
		// 8191 bytes are sent and the rest is dropped.
		au = au[:1<<aacSizeBits-1]
	}

	headerSection := auHeaderSection(len(au))

	budget := p.MTU - HeaderSize
	firstChunkBudget := budget - len(headerSection)
	if firstChunkBudget < 1 {
		firstChunkBudget = 1
	}

	if len(au) <= firstChunkBudget {
		payload := make([]byte, 0, len(headerSection)+len(au))
		payload = append(payload, headerSection...)
		payload = append(payload, au...)
		return []*Packet{p.next(payload, timestamp, true)}
	}

	var packets []*Packet
	offset := 0
	for offset < len(au) {
		chunkBudget := budget
		var prefix []byte
		if offset == 0 {
			prefix = headerSection
			chunkBudget = firstChunkBudget
		}
		end := offset + chunkBudget
		if end > len(au) {
			end = len(au)
		}
		isLast := end == len(au)

		payload := make([]byte, 0, len(prefix)+(end-offset))
		payload = append(payload, prefix...)
		payload = append(payload, au[offset:end]...)

		packets = append(packets, p.next(payload, timestamp, isLast))
		offset = end
	}
	return packets
}

func (p *AACPacketizer) next(payload []byte, timestamp uint32, marker bool) *Packet {
	pkt := &Packet{
		Version:        2,
		Marker:         marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.seq,
		Timestamp:      timestamp,
		SSRC:           p.SSRC,
		Payload:        payload,
	}
	p.seq++
	return pkt
}

// auHeaderSection builds the AU-headers-length field (16 bits, the bit count
// of what follows) plus a single AU header (13-bit size, 3-bit index delta
// of 0 since this stack emits one AU per RTP timestamp).
func auHeaderSection(auSize int) []byte {
	section := make([]byte, 4)
	binary.BigEndian.PutUint16(section[0:2], aacAUHeaderBits)
	header := uint16(auSize&0x1fff)<<aacIndexBits | 0
	binary.BigEndian.PutUint16(section[2:4], header)
	return section
}

// AACDepacketizer reassembles RTP packets carrying RFC 3640 AU-header
// sections back into individual AAC access units, supporting both the
// multi-AU-per-packet aggregation case and the fragmented-single-AU case
// this stack's own packetizer emits.
type AACDepacketizer struct {
	fragment    []byte
	fragWant    int
	fragActive  bool
	currentTS   uint32
	onAccessUnit func(au []byte, timestamp uint32)
}

// NewAACDepacketizer creates a depacketizer invoking onAccessUnit once per
// reassembled access unit.
func NewAACDepacketizer(onAccessUnit func(au []byte, timestamp uint32)) *AACDepacketizer {
	return &AACDepacketizer{onAccessUnit: onAccessUnit}
}

// SubmitPacket feeds one received RTP packet into the reassembler.
func (d *AACDepacketizer) SubmitPacket(pkt *Packet) {
	if pkt == nil {
		return
	}

	if d.fragActive {
		d.fragment = append(d.fragment, pkt.Payload...)
		if len(d.fragment) >= d.fragWant || pkt.Marker {
			d.emit(d.fragment, d.currentTS)
			d.fragActive = false
			d.fragment = nil
		}
		return
	}

	if len(pkt.Payload) < 2 {
		return
	}
	d.currentTS = pkt.Timestamp

	headerBits := binary.BigEndian.Uint16(pkt.Payload[0:2])
	headerBytes := int((headerBits + 7) / 8)
	numHeaders := int(headerBits) / aacAUHeaderBits
	if numHeaders == 0 || 2+headerBytes > len(pkt.Payload) {
		return
	}

	headers := pkt.Payload[2 : 2+headerBytes]
	data := pkt.Payload[2+headerBytes:]

	offset := 0
	for i := 0; i < numHeaders; i++ {
		bitOff := i * aacAUHeaderBits
		byteOff := bitOff / 8
		if byteOff+2 > len(headers) {
			return
		}
		word := binary.BigEndian.Uint16(headers[byteOff : byteOff+2])
		size := int(word >> aacIndexBits)

		if offset+size <= len(data) {
			d.emit(data[offset:offset+size], pkt.Timestamp)
			offset += size
			continue
		}

		// Declared size runs past this packet: the AU was fragmented
		// across subsequent packets with no AU-header section of their
		// own (this stack's own packetizer's fragmentation mode).
		d.fragment = append([]byte(nil), data[offset:]...)
		d.fragWant = size
		d.fragActive = true
		if pkt.Marker {
			d.emit(d.fragment, pkt.Timestamp)
			d.fragActive = false
			d.fragment = nil
		}
		return
	}
}

func (d *AACDepacketizer) emit(au []byte, timestamp uint32) {
	if d.onAccessUnit != nil && len(au) > 0 {
		d.onAccessUnit(append([]byte(nil), au...), timestamp)
	}
}
