// Created by WINK Streaming (https://www.wink.co)
package rtp

// TSPacketSize is the fixed MPEG-2 Transport Stream packet size (RFC 2250
// §2).
const TSPacketSize = 188

// TSSyncByte is the required first byte of every TS packet.
const TSSyncByte = 0x47

// TSPacketizer batches whole 188-byte TS packets into RTP payloads, as many
// as fit the MTU budget, per RFC 2250 §2.
type TSPacketizer struct {
	PayloadType uint8
	SSRC        uint32
	MTU         int

	seq uint16
}

// NewTSPacketizer creates a packetizer.
func NewTSPacketizer(payloadType uint8, ssrc uint32, mtu int) *TSPacketizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &TSPacketizer{PayloadType: payloadType, SSRC: ssrc, MTU: mtu}
}

// Reset sets the starting sequence number.
func (p *TSPacketizer) Reset(startSeq uint16) { p.seq = startSeq }

// Packetize batches ts (a concatenation of whole 188-byte TS packets) into
// RTP packets, never splitting a TS packet across two RTP payloads. Any
// trailing partial TS packet is dropped, matching the original
// implementation's behavior on a truncated buffer.
func (p *TSPacketizer) Packetize(ts []byte, timestamp uint32) []*Packet {
	tsPerRTP := (p.MTU - HeaderSize) / TSPacketSize
	if tsPerRTP <= 0 {
		tsPerRTP = 1
	}
	maxPayload := tsPerRTP * TSPacketSize

	var packets []*Packet
	offset := 0
	for offset < len(ts) {
		remaining := len(ts) - offset
		if remaining < TSPacketSize {
			break
		}
		chunk := remaining
		if chunk > maxPayload {
			chunk = maxPayload
		}
		chunk -= chunk % TSPacketSize

		pkt := &Packet{
			Version:        2,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.seq,
			Timestamp:      timestamp,
			SSRC:           p.SSRC,
			Payload:        append([]byte(nil), ts[offset:offset+chunk]...),
		}
		p.seq++
		packets = append(packets, pkt)
		offset += chunk
	}
	return packets
}

// TSDepacketizer validates and passes through RTP payloads carrying batched
// TS packets per RFC 2250 §2.
type TSDepacketizer struct {
	onPacketBatch func(ts []byte, timestamp uint32)
}

// NewTSDepacketizer creates a depacketizer invoking onPacketBatch once per
// RTP packet that passes validation.
func NewTSDepacketizer(onPacketBatch func(ts []byte, timestamp uint32)) *TSDepacketizer {
	return &TSDepacketizer{onPacketBatch: onPacketBatch}
}

// SubmitPacket validates pkt's payload as a run of whole, sync-byte-valid TS
// packets and forwards it unchanged; a malformed payload is dropped.
func (d *TSDepacketizer) SubmitPacket(pkt *Packet) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return
	}
	if len(pkt.Payload)%TSPacketSize != 0 {
		return
	}
	for i := 0; i < len(pkt.Payload); i += TSPacketSize {
		if pkt.Payload[i] != TSSyncByte {
			return
		}
	}
	if d.onPacketBatch != nil {
		d.onPacketBatch(append([]byte(nil), pkt.Payload...), pkt.Timestamp)
	}
}
