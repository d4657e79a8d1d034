// Created by WINK Streaming (https://www.wink.co)
// Package rtcp implements the RTCP (RFC 3550 §6) packet codec and the
// sender/receiver statistics engine built on top of it.
package rtcp

import (
	"encoding/binary"
	"errors"
)

// Packet type identifiers (RFC 3550 §6.1, RFC 3551 §B).
const (
	TypeSR   = 200
	TypeRR   = 201
	TypeSDES = 202
	TypeBYE  = 203
)

// SDES item types (RFC 3550 §6.5).
const (
	SDESEnd   = 0
	SDESCNAME = 1
)

const rtcpVersion = 2

// ErrTooShort is returned when a buffer is too small to contain a valid
// RTCP packet or report block.
var ErrTooShort = errors.New("rtcp: packet too short")

// ReportBlock is one reception report block (RFC 3550 §6.4.1), carried by
// both SR and RR packets.
type ReportBlock struct {
	SSRC               uint32
	FractionLost       uint8
	CumulativeLost     int32 // 24-bit signed field, sign-extended
	ExtendedHighestSeq uint32
	Jitter             uint32
	LSR                uint32
	DLSR               uint32
}

func (b *ReportBlock) marshal(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], b.SSRC)
	buf[4] = b.FractionLost
	putUint24(buf[5:8], uint32(b.CumulativeLost)&0x00ffffff)
	binary.BigEndian.PutUint32(buf[8:12], b.ExtendedHighestSeq)
	binary.BigEndian.PutUint32(buf[12:16], b.Jitter)
	binary.BigEndian.PutUint32(buf[16:20], b.LSR)
	binary.BigEndian.PutUint32(buf[20:24], b.DLSR)
}

func unmarshalReportBlock(buf []byte) ReportBlock {
	b := ReportBlock{
		SSRC:               binary.BigEndian.Uint32(buf[0:4]),
		FractionLost:       buf[4],
		ExtendedHighestSeq: binary.BigEndian.Uint32(buf[8:12]),
		Jitter:             binary.BigEndian.Uint32(buf[12:16]),
		LSR:                binary.BigEndian.Uint32(buf[16:20]),
		DLSR:               binary.BigEndian.Uint32(buf[20:24]),
	}
	raw := getUint24(buf[5:8])
	if raw&0x00800000 != 0 {
		raw |= 0xff000000 // sign-extend the 24-bit field
	}
	b.CumulativeLost = int32(raw)
	return b
}

func putUint24(buf []byte, v uint32) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

func getUint24(buf []byte) uint32 {
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

// SenderReport is an RTCP SR packet (RFC 3550 §6.4.1).
type SenderReport struct {
	SSRC           uint32
	NTPSeconds     uint32
	NTPFraction    uint32
	RTPTimestamp   uint32
	PacketCount    uint32
	OctetCount     uint32
	ReportBlocks   []ReportBlock
}

// Marshal serializes the SR packet including its RTCP header.
func (sr *SenderReport) Marshal() []byte {
	body := 24 + 24*len(sr.ReportBlocks)
	buf := make([]byte, 4+body)

	buf[0] = rtcpVersion<<6 | uint8(len(sr.ReportBlocks)&0x1f)
	buf[1] = TypeSR
	binary.BigEndian.PutUint16(buf[2:4], uint16(body/4))

	binary.BigEndian.PutUint32(buf[4:8], sr.SSRC)
	binary.BigEndian.PutUint32(buf[8:12], sr.NTPSeconds)
	binary.BigEndian.PutUint32(buf[12:16], sr.NTPFraction)
	binary.BigEndian.PutUint32(buf[16:20], sr.RTPTimestamp)
	binary.BigEndian.PutUint32(buf[20:24], sr.PacketCount)
	binary.BigEndian.PutUint32(buf[24:28], sr.OctetCount)

	off := 28
	for i := range sr.ReportBlocks {
		sr.ReportBlocks[i].marshal(buf[off : off+24])
		off += 24
	}
	return buf
}

func unmarshalSenderReport(rc int, buf []byte) (*SenderReport, error) {
	if len(buf) < 24 {
		return nil, ErrTooShort
	}
	sr := &SenderReport{
		SSRC:         binary.BigEndian.Uint32(buf[0:4]),
		NTPSeconds:   binary.BigEndian.Uint32(buf[4:8]),
		NTPFraction:  binary.BigEndian.Uint32(buf[8:12]),
		RTPTimestamp: binary.BigEndian.Uint32(buf[12:16]),
		PacketCount:  binary.BigEndian.Uint32(buf[16:20]),
		OctetCount:   binary.BigEndian.Uint32(buf[20:24]),
	}
	off := 24
	for i := 0; i < rc; i++ {
		if off+24 > len(buf) {
			return nil, ErrTooShort
		}
		sr.ReportBlocks = append(sr.ReportBlocks, unmarshalReportBlock(buf[off:off+24]))
		off += 24
	}
	return sr, nil
}

// ReceiverReport is an RTCP RR packet (RFC 3550 §6.4.2).
type ReceiverReport struct {
	SSRC         uint32
	ReportBlocks []ReportBlock
}

// Marshal serializes the RR packet including its RTCP header.
func (rr *ReceiverReport) Marshal() []byte {
	body := 4 + 24*len(rr.ReportBlocks)
	buf := make([]byte, 4+body)

	buf[0] = rtcpVersion<<6 | uint8(len(rr.ReportBlocks)&0x1f)
	buf[1] = TypeRR
	binary.BigEndian.PutUint16(buf[2:4], uint16(body/4))

	binary.BigEndian.PutUint32(buf[4:8], rr.SSRC)
	off := 8
	for i := range rr.ReportBlocks {
		rr.ReportBlocks[i].marshal(buf[off : off+24])
		off += 24
	}
	return buf
}

func unmarshalReceiverReport(rc int, buf []byte) (*ReceiverReport, error) {
	if len(buf) < 4 {
		return nil, ErrTooShort
	}
	rr := &ReceiverReport{SSRC: binary.BigEndian.Uint32(buf[0:4])}
	off := 4
	for i := 0; i < rc; i++ {
		if off+24 > len(buf) {
			return nil, ErrTooShort
		}
		rr.ReportBlocks = append(rr.ReportBlocks, unmarshalReportBlock(buf[off:off+24]))
		off += 24
	}
	return rr, nil
}

// SDESItem is one chunk item (RFC 3550 §6.5).
type SDESItem struct {
	Type uint8
	Text string
}

// SourceDescription is an RTCP SDES packet with exactly one chunk, which is
// all this stack ever needs to emit (one CNAME per session SSRC).
type SourceDescription struct {
	SSRC  uint32
	Items []SDESItem
}

// Marshal serializes the SDES packet including its RTCP header, padding the
// chunk to a 4-byte boundary as RFC 3550 §6.5 requires.
func (sd *SourceDescription) Marshal() []byte {
	var chunk []byte
	chunk = append(chunk, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(chunk[0:4], sd.SSRC)
	for _, item := range sd.Items {
		chunk = append(chunk, item.Type, uint8(len(item.Text)))
		chunk = append(chunk, item.Text...)
	}
	chunk = append(chunk, SDESEnd)
	for len(chunk)%4 != 0 {
		chunk = append(chunk, 0)
	}

	buf := make([]byte, 4+len(chunk))
	buf[0] = rtcpVersion<<6 | 1 // one source count
	buf[1] = TypeSDES
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(chunk)/4))
	copy(buf[4:], chunk)
	return buf
}

func unmarshalSourceDescription(sc int, buf []byte) (*SourceDescription, error) {
	if len(buf) < 4 {
		return nil, ErrTooShort
	}
	sd := &SourceDescription{SSRC: binary.BigEndian.Uint32(buf[0:4])}
	off := 4
	for off < len(buf) {
		if buf[off] == SDESEnd {
			break
		}
		if off+2 > len(buf) {
			return nil, ErrTooShort
		}
		itemType := buf[off]
		length := int(buf[off+1])
		off += 2
		if off+length > len(buf) {
			return nil, ErrTooShort
		}
		sd.Items = append(sd.Items, SDESItem{Type: itemType, Text: string(buf[off : off+length])})
		off += length
	}
	_ = sc
	return sd, nil
}

// Goodbye is an RTCP BYE packet (RFC 3550 §6.6).
type Goodbye struct {
	Sources []uint32
	Reason  string
}

// Marshal serializes the BYE packet including its RTCP header.
func (bye *Goodbye) Marshal() []byte {
	body := 4 * len(bye.Sources)
	var reasonBytes []byte
	if bye.Reason != "" {
		reasonBytes = append(reasonBytes, uint8(len(bye.Reason)))
		reasonBytes = append(reasonBytes, bye.Reason...)
		for len(reasonBytes)%4 != 0 {
			reasonBytes = append(reasonBytes, 0)
		}
	}
	buf := make([]byte, 4+body+len(reasonBytes))

	buf[0] = rtcpVersion<<6 | uint8(len(bye.Sources)&0x1f)
	buf[1] = TypeBYE
	binary.BigEndian.PutUint16(buf[2:4], uint16((body+len(reasonBytes))/4))

	off := 4
	for _, ssrc := range bye.Sources {
		binary.BigEndian.PutUint32(buf[off:off+4], ssrc)
		off += 4
	}
	copy(buf[off:], reasonBytes)
	return buf
}

func unmarshalGoodbye(sc int, buf []byte) (*Goodbye, error) {
	bye := &Goodbye{}
	off := 0
	for i := 0; i < sc; i++ {
		if off+4 > len(buf) {
			return nil, ErrTooShort
		}
		bye.Sources = append(bye.Sources, binary.BigEndian.Uint32(buf[off:off+4]))
		off += 4
	}
	if off < len(buf) {
		length := int(buf[off])
		if off+1+length <= len(buf) {
			bye.Reason = string(buf[off+1 : off+1+length])
		}
	}
	return bye, nil
}

// CompoundPacket is a parsed RTCP compound packet (RFC 3550 §6.1 requires
// every UDP packet carrying at least one SR/RR).
type CompoundPacket struct {
	SenderReports       []*SenderReport
	ReceiverReports     []*ReceiverReport
	SourceDescriptions  []*SourceDescription
	Goodbyes            []*Goodbye
}

// Marshal concatenates every sub-packet in the compound packet.
func (c *CompoundPacket) Marshal() []byte {
	var buf []byte
	for _, p := range c.SenderReports {
		buf = append(buf, p.Marshal()...)
	}
	for _, p := range c.ReceiverReports {
		buf = append(buf, p.Marshal()...)
	}
	for _, p := range c.SourceDescriptions {
		buf = append(buf, p.Marshal()...)
	}
	for _, p := range c.Goodbyes {
		buf = append(buf, p.Marshal()...)
	}
	return buf
}

// Unmarshal parses every sub-packet out of a compound RTCP packet.
func Unmarshal(buf []byte) (*CompoundPacket, error) {
	c := &CompoundPacket{}
	for len(buf) >= 4 {
		rc := int(buf[0] & 0x1f)
		pt := buf[1]
		length := int(binary.BigEndian.Uint16(buf[2:4])) * 4
		if 4+length > len(buf) {
			return nil, ErrTooShort
		}
		body := buf[4 : 4+length]

		switch pt {
		case TypeSR:
			sr, err := unmarshalSenderReport(rc, body)
			if err != nil {
				return nil, err
			}
			c.SenderReports = append(c.SenderReports, sr)
		case TypeRR:
			rr, err := unmarshalReceiverReport(rc, body)
			if err != nil {
				return nil, err
			}
			c.ReceiverReports = append(c.ReceiverReports, rr)
		case TypeSDES:
			sd, err := unmarshalSourceDescription(rc, body)
			if err != nil {
				return nil, err
			}
			c.SourceDescriptions = append(c.SourceDescriptions, sd)
		case TypeBYE:
			bye, err := unmarshalGoodbye(rc, body)
			if err != nil {
				return nil, err
			}
			c.Goodbyes = append(c.Goodbyes, bye)
		}

		buf = buf[4+length:]
	}
	return c, nil
}
