package encoder

import (
	"bytes"
	"fmt"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
	"github.com/rbright/voxkey/internal/audio"
)

// FLAC renders a mono recording as a FLAC stream in memory.
func FLAC(rec audio.Recording) ([]byte, error) {
	rate, channels := recordingFormat(rec)
	if channels != 1 {
		return nil, fmt.Errorf("flac encoding supports mono audio only, got %d channels", channels)
	}

	var buf bytes.Buffer
	info := &meta.StreamInfo{
		BlockSizeMin:  blockSize,
		BlockSizeMax:  blockSize,
		SampleRate:    uint32(rate),
		NChannels:     1,
		BitsPerSample: bitsPerSample,
	}
	enc, err := flac.NewEncoder(&buf, info)
	if err != nil {
		return nil, fmt.Errorf("create flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)

	pcm := samples(rec.PCM)
	for start := 0; start < len(pcm); start += blockSize {
		end := min(start+blockSize, len(pcm))
		if err := writeFLACFrame(enc, pcm[start:end], uint32(rate)); err != nil {
			_ = enc.Close()
			return nil, err
		}
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize flac: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFLACFrame(enc *flac.Encoder, block []int16, rate uint32) error {
	samples32 := make([]int32, len(block))
	for i, s := range block {
		samples32[i] = int32(s)
	}

	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    rate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: bitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples32,
			NSamples:  len(block),
		}},
	}
	if err := enc.WriteFrame(f); err != nil {
		return fmt.Errorf("write flac frame: %w", err)
	}
	return nil
}
