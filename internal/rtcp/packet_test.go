package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderReportMarshalUnmarshal(t *testing.T) {
	sr := &SenderReport{
		SSRC:         1,
		NTPSeconds:   2,
		NTPFraction:  3,
		RTPTimestamp: 4,
		PacketCount:  5,
		OctetCount:   6,
		ReportBlocks: []ReportBlock{{
			SSRC:               10,
			FractionLost:       20,
			CumulativeLost:     -5,
			ExtendedHighestSeq: 30,
			Jitter:             40,
			LSR:                50,
			DLSR:               60,
		}},
	}
	buf := sr.Marshal()

	c, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Len(t, c.SenderReports, 1)
	got := c.SenderReports[0]
	assert.Equal(t, sr.SSRC, got.SSRC)
	assert.Equal(t, sr.PacketCount, got.PacketCount)
	assert.Equal(t, sr.OctetCount, got.OctetCount)
	require.Len(t, got.ReportBlocks, 1)
	assert.Equal(t, int32(-5), got.ReportBlocks[0].CumulativeLost)
	assert.Equal(t, uint32(30), got.ReportBlocks[0].ExtendedHighestSeq)
}

func TestReceiverReportMarshalUnmarshal(t *testing.T) {
	rr := &ReceiverReport{
		SSRC: 99,
		ReportBlocks: []ReportBlock{
			{SSRC: 1, FractionLost: 1},
			{SSRC: 2, FractionLost: 2},
		},
	}
	buf := rr.Marshal()

	c, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Len(t, c.ReceiverReports, 1)
	got := c.ReceiverReports[0]
	assert.Equal(t, uint32(99), got.SSRC)
	require.Len(t, got.ReportBlocks, 2)
	assert.Equal(t, uint32(1), got.ReportBlocks[0].SSRC)
	assert.Equal(t, uint32(2), got.ReportBlocks[1].SSRC)
}

func TestSourceDescriptionMarshalUnmarshal(t *testing.T) {
	sd := &SourceDescription{
		SSRC:  7,
		Items: []SDESItem{{Type: SDESCNAME, Text: "user@host"}},
	}
	buf := sd.Marshal()
	assert.Equal(t, 0, len(buf)%4)

	c, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Len(t, c.SourceDescriptions, 1)
	got := c.SourceDescriptions[0]
	assert.Equal(t, uint32(7), got.SSRC)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "user@host", got.Items[0].Text)
}

func TestGoodbyeMarshalUnmarshal(t *testing.T) {
	bye := &Goodbye{Sources: []uint32{11, 22}, Reason: "done"}
	buf := bye.Marshal()

	c, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Len(t, c.Goodbyes, 1)
	got := c.Goodbyes[0]
	assert.Equal(t, []uint32{11, 22}, got.Sources)
	assert.Equal(t, "done", got.Reason)
}

func TestCompoundPacketMarshalUnmarshalRoundTrip(t *testing.T) {
	c := &CompoundPacket{
		SenderReports:      []*SenderReport{{SSRC: 1}},
		SourceDescriptions: []*SourceDescription{{SSRC: 1, Items: []SDESItem{{Type: SDESCNAME, Text: "a"}}}},
		Goodbyes:           []*Goodbye{{Sources: []uint32{1}}},
	}
	buf := c.Marshal()

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Len(t, got.SenderReports, 1)
	assert.Len(t, got.SourceDescriptions, 1)
	assert.Len(t, got.Goodbyes, 1)
}

func TestUnmarshalTruncatedPacketTooShort(t *testing.T) {
	buf := []byte{0x81, TypeRR, 0x00, 0x10} // claims 16 words, no body
	_, err := Unmarshal(buf)
	assert.ErrorIs(t, err, ErrTooShort)
}
