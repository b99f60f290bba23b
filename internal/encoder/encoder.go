// Package encoder converts captured PCM recordings into container formats for
// upload to transcription backends and for debug dumps.
package encoder

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/rbright/voxkey/internal/audio"
)

const (
	// FormatWAV is RIFF/WAVE with 16-bit PCM.
	FormatWAV = "wav"
	// FormatFLAC is lossless FLAC with verbatim subframes.
	FormatFLAC = "flac"

	bitsPerSample = 16
	blockSize     = 4096
)

// Encoded is one recording rendered in a container format.
type Encoded struct {
	Data        []byte
	Format      string
	ContentType string
}

// Filename returns a multipart-friendly file name for the encoded audio.
func (e Encoded) Filename() string {
	return "audio." + e.Format
}

// Encode renders rec in the named format.
func Encode(format string, rec audio.Recording) (Encoded, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatWAV:
		data, err := WAV(rec)
		if err != nil {
			return Encoded{}, err
		}
		return Encoded{Data: data, Format: FormatWAV, ContentType: "audio/wav"}, nil
	case FormatFLAC:
		data, err := FLAC(rec)
		if err != nil {
			return Encoded{}, err
		}
		return Encoded{Data: data, Format: FormatFLAC, ContentType: "audio/flac"}, nil
	default:
		return Encoded{}, fmt.Errorf("unsupported audio format %q", format)
	}
}

// samples decodes little-endian s16 PCM. A trailing odd byte is dropped.
func samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func recordingFormat(rec audio.Recording) (rate, channels int) {
	rate, channels = rec.SampleRate, rec.Channels
	if rate <= 0 {
		rate = audio.SampleRate
	}
	if channels <= 0 {
		channels = audio.Channels
	}
	return rate, channels
}
