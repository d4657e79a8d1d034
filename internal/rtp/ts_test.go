package rtp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsPacket(fill byte) []byte {
	pkt := make([]byte, TSPacketSize)
	pkt[0] = TSSyncByte
	for i := 1; i < TSPacketSize; i++ {
		pkt[i] = fill
	}
	return pkt
}

func TestTSPacketizeBatchesWholePackets(t *testing.T) {
	p := NewTSPacketizer(33, 1, 1400)
	ts := append(append([]byte{}, tsPacket(1)...), tsPacket(2)...)
	ts = append(ts, tsPacket(3)...)

	packets := p.Packetize(ts, 42)
	require.Len(t, packets, 1)
	assert.Equal(t, ts, packets[0].Payload)
	assert.Equal(t, uint32(42), packets[0].Timestamp)
}

func TestTSPacketizeSplitsAcrossMultipleRTPWhenOverMTU(t *testing.T) {
	p := NewTSPacketizer(33, 1, HeaderSize+TSPacketSize+10)
	ts := append(append([]byte{}, tsPacket(1)...), tsPacket(2)...)

	packets := p.Packetize(ts, 1)
	require.Len(t, packets, 2)
	assert.Equal(t, tsPacket(1), packets[0].Payload)
	assert.Equal(t, tsPacket(2), packets[1].Payload)
}

func TestTSPacketizeDropsTrailingPartialPacket(t *testing.T) {
	p := NewTSPacketizer(33, 1, 1400)
	ts := append(append([]byte{}, tsPacket(1)...), []byte{1, 2, 3}...)

	packets := p.Packetize(ts, 1)
	require.Len(t, packets, 1)
	assert.Equal(t, tsPacket(1), packets[0].Payload)
}

func TestTSDepacketizeValidatesAndForwards(t *testing.T) {
	ts := append(append([]byte{}, tsPacket(1)...), tsPacket(2)...)

	var got []byte
	d := NewTSDepacketizer(func(ts []byte, timestamp uint32) { got = ts })
	d.SubmitPacket(&Packet{Timestamp: 7, Payload: ts})

	require.NotNil(t, got)
	assert.True(t, bytes.Equal(ts, got))
}

func TestTSDepacketizeRejectsBadSync(t *testing.T) {
	ts := tsPacket(1)
	ts[0] = 0x00

	var called bool
	d := NewTSDepacketizer(func(ts []byte, timestamp uint32) { called = true })
	d.SubmitPacket(&Packet{Payload: ts})

	assert.False(t, called)
}

func TestTSDepacketizeRejectsNonMultipleOfPacketSize(t *testing.T) {
	var called bool
	d := NewTSDepacketizer(func(ts []byte, timestamp uint32) { called = true })
	d.SubmitPacket(&Packet{Payload: []byte{1, 2, 3}})

	assert.False(t, called)
}
