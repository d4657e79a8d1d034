// Created by WINK Streaming (https://www.wink.co)
package sdp

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// aacSamplingFrequencies is the MPEG-4 Audio sampling-frequency-index table
// (ISO/IEC 14496-3 Table 1.16) for the rates this stack's AAC packetizer
// advertises.
var aacSamplingFrequencies = []uint32{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// aacSamplingFrequencyIndex returns the AudioSpecificConfig index for rate,
// or 0x0f (escape, "explicit rate") if rate isn't one of the standard
// frequencies.
func aacSamplingFrequencyIndex(rate uint32) int {
	for i, f := range aacSamplingFrequencies {
		if f == rate {
			return i
		}
	}
	return 0x0f
}

// aacAudioSpecificConfig builds the 16-bit AAC-LC AudioSpecificConfig
// (ISO/IEC 14496-3 §1.6.2.1): 5-bit object type (2 = AAC LC), 4-bit
// sampling-frequency-index, 4-bit channel configuration, 3 bits of padding.
func aacAudioSpecificConfig(sampleRate uint32, channels int) uint16 {
	const objectTypeAACLC = 2
	freqIdx := aacSamplingFrequencyIndex(sampleRate)
	cfg := uint16(objectTypeAACLC)<<11 | uint16(freqIdx)<<7 | uint16(channels&0x0f)<<3
	return cfg
}

// H264Track builds the TrackParams for an H.264 video track: packetization-
// mode=1, profile-level-id from the SPS's second through fourth bytes,
// sprop-parameter-sets carrying base64 SPS and PPS.
func H264Track(payloadType uint8, clockRate uint32, sps, pps []byte, control string) TrackParams {
	profileLevelID := ""
	if len(sps) >= 4 {
		profileLevelID = hex.EncodeToString(sps[1:4])
	}
	fmtp := fmt.Sprintf(
		"packetization-mode=1;profile-level-id=%s;sprop-parameter-sets=%s,%s",
		profileLevelID,
		base64.StdEncoding.EncodeToString(sps),
		base64.StdEncoding.EncodeToString(pps),
	)
	return TrackParams{
		MediaType:    "video",
		PayloadType:  payloadType,
		EncodingName: "H264",
		ClockRate:    clockRate,
		Control:      control,
		FmtpParams:   fmtp,
	}
}

// H265Track builds the TrackParams for an H.265 video track per RFC 7798:
// sprop-vps/sprop-sps/sprop-pps in base64 in place of H.264's single
// sprop-parameter-sets.
func H265Track(payloadType uint8, clockRate uint32, vps, sps, pps []byte, control string) TrackParams {
	fmtp := fmt.Sprintf(
		"sprop-vps=%s;sprop-sps=%s;sprop-pps=%s",
		base64.StdEncoding.EncodeToString(vps),
		base64.StdEncoding.EncodeToString(sps),
		base64.StdEncoding.EncodeToString(pps),
	)
	return TrackParams{
		MediaType:    "video",
		PayloadType:  payloadType,
		EncodingName: "H265",
		ClockRate:    clockRate,
		Control:      control,
		FmtpParams:   fmtp,
	}
}

// AACTrack builds the TrackParams for an AAC-hbr audio track per RFC 3640:
// mpeg4-generic rtpmap, AU-header field widths this stack's packetizer uses
// (sizelength=13, indexlength=3, indexdeltalength=3), and a 4-hex-digit
// AAC-LC AudioSpecificConfig.
func AACTrack(payloadType uint8, sampleRate uint32, channels int, control string) TrackParams {
	config := aacAudioSpecificConfig(sampleRate, channels)
	fmtp := fmt.Sprintf(
		"streamtype=5;profile-level-id=1;mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3;config=%04x",
		config,
	)
	return TrackParams{
		MediaType:    "audio",
		PayloadType:  payloadType,
		EncodingName: "mpeg4-generic",
		ClockRate:    sampleRate,
		Channels:     channels,
		Control:      control,
		FmtpParams:   fmtp,
	}
}

// TSTrackPayloadType is the static RTP payload type RFC 3551 assigns to
// MP2T, used by TSTrack since MPEG-2 TS needs no rtpmap/fmtp.
const TSTrackPayloadType = 33

// TSTrack builds the TrackParams for an MPEG-2 TS track. A static payload
// type needs no rtpmap, but EncodingName is still set to "MP2T" with the
// well-known MP2T clock rate of 90000, so Generate emits an rtpmap line for
// it, matching common server practice; no fmtp is produced.
func TSTrack(control string) TrackParams {
	return TrackParams{
		MediaType:    "video",
		PayloadType:  TSTrackPayloadType,
		EncodingName: "MP2T",
		ClockRate:    90000,
		Control:      control,
	}
}
