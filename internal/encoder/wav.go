package encoder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/voxkey/internal/audio"
)

// WAV renders rec as a 16-bit PCM WAVE file in memory.
func WAV(rec audio.Recording) ([]byte, error) {
	out := &writeSeeker{}
	if err := writeWAV(out, rec); err != nil {
		return nil, err
	}
	return out.buf, nil
}

// WriteWAVFile writes rec to path, creating parent directories as needed.
func WriteWAVFile(path string, rec audio.Recording) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create audio dump dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create audio dump: %w", err)
	}
	if err := writeWAV(f, rec); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeWAV(w io.WriteSeeker, rec audio.Recording) error {
	rate, channels := recordingFormat(rec)

	enc := wav.NewEncoder(w, rate, bitsPerSample, channels, 1)
	pcm := samples(rec.PCM)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  rate,
		},
		Data:           make([]int, len(pcm)),
		SourceBitDepth: bitsPerSample,
	}
	for i, s := range pcm {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("writeSeeker: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("writeSeeker: negative position")
	}
	w.pos = int(next)
	return next, nil
}
