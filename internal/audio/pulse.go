package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rs/zerolog"
)

const (
	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16

	faultPollInterval = 100 * time.Millisecond
)

// stream captures fixed-size PCM chunks from one selected Pulse source.
type stream struct {
	device Device

	client *pulse.Client
	record *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}
	// fault reports a server-side end of the stream, or nil while healthy.
	fault func() error

	mu      sync.Mutex
	pending []byte
	rawPCM  []byte
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// openStream creates and starts a 16kHz mono s16 record stream.
func openStream(selected Device) (*stream, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	s := &stream{
		device: selected,
		client: client,
		chunks: make(chan []byte, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	record, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("voxkey dictation"),
	)
	if err != nil {
		s.stop()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	s.record = record
	s.fault = func() error {
		if err := record.Error(); err != nil {
			return err
		}
		if record.Closed() {
			return ErrStreamLost
		}
		return nil
	}
	record.Start()
	return s, nil
}

// Chunks returns the PCM stream as fixed-size byte slices.
func (s *stream) Chunks() <-chan []byte {
	return s.chunks
}

// BytesCaptured reports total bytes accepted from Pulse.
func (s *stream) BytesCaptured() int64 {
	return s.bytes.Load()
}

// RawPCM returns a snapshot of all captured raw PCM bytes.
func (s *stream) RawPCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.rawPCM))
	copy(out, s.rawPCM)
	return out
}

// stop halts the stream, flushes residual PCM, and closes Chunks exactly once.
func (s *stream) stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	if s.record != nil {
		s.record.Stop()
		s.record.Close()
	}
	if s.client != nil {
		s.client.Close()
	}

	s.inflight.Wait()

	s.mu.Lock()
	pending := append([]byte(nil), s.pending...)
	s.pending = nil
	s.mu.Unlock()

	if len(pending) > 0 {
		select {
		case s.chunks <- pending:
		default:
		}
	}

	close(s.chunks)
}

// onPCM receives raw Pulse frames and emits chunkSizeBytes slices to s.chunks.
func (s *stream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-s.stopCh:
		return 0, io.EOF
	default:
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as s.stopped so it never races Wait.
	s.inflight.Add(1)

	s.rawPCM = append(s.rawPCM, buffer...)
	s.pending = append(s.pending, buffer...)

	chunks := make([][]byte, 0, len(s.pending)/chunkSizeBytes)
	for len(s.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, s.pending[:chunkSizeBytes])
		s.pending = s.pending[chunkSizeBytes:]
		chunks = append(chunks, chunk)
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	s.bytes.Add(int64(len(buffer)))

	for _, chunk := range chunks {
		select {
		case <-s.stopCh:
			return 0, io.EOF
		case s.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// Recorder is the PulseAudio capture backend. It owns at most one active
// stream; the Recording it returns from StopRecording belongs to the caller.
type Recorder struct {
	input    string
	fallback string
	logger   zerolog.Logger
	open     func(Device) (*stream, error)
	list     func(context.Context) ([]Device, error)
	poll     time.Duration

	mu        sync.Mutex
	active    *stream
	startedAt time.Time
	err       error
}

// NewRecorder builds a recorder that resolves devices by the given name preferences
// whenever StartRecording is called with a negative index.
func NewRecorder(input, fallback string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		input:    input,
		fallback: fallback,
		logger:   logger,
		open:     openStream,
		list:     ListDevices,
		poll:     faultPollInterval,
	}
}

// StartRecording opens a stream on the selected device. The returned channel
// yields PCM chunks until the recording stops or ctx is cancelled.
func (r *Recorder) StartRecording(ctx context.Context, deviceIndex int) (<-chan []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, &CaptureError{Op: "start", Err: ErrAlreadyRecording}
	}

	devices, err := r.list(ctx)
	if err != nil {
		return nil, &CaptureError{Op: "start", Err: err}
	}
	var selection Selection
	if deviceIndex >= 0 {
		selection, err = selectDeviceByIndex(devices, deviceIndex)
	} else {
		selection, err = selectDeviceFromList(devices, r.input, r.fallback)
	}
	if err != nil {
		return nil, &CaptureError{Op: "select device", Err: err}
	}
	if selection.Warning != "" {
		r.logger.Warn().Str("device", selection.Device.ID).Msg(selection.Warning)
	}

	s, err := r.open(selection.Device)
	if err != nil {
		return nil, &CaptureError{Op: "open stream", Err: err}
	}

	r.active = s
	r.startedAt = time.Now()
	r.err = nil

	go r.watch(ctx, s)

	r.logger.Debug().
		Str("device", selection.Device.ID).
		Str("description", selection.Device.Description).
		Msg("capture started")
	return s.Chunks(), nil
}

// StopRecording ends the active stream and hands its audio to the caller.
func (r *Recorder) StopRecording() (Recording, error) {
	r.mu.Lock()
	s := r.active
	startedAt := r.startedAt
	r.active = nil
	r.mu.Unlock()

	if s == nil {
		return Recording{}, &CaptureError{Op: "stop", Err: ErrNotRecording}
	}

	s.stop()
	rec := Recording{
		ID:         uuid.NewString(),
		PCM:        s.RawPCM(),
		SampleRate: SampleRate,
		Channels:   Channels,
		StartedAt:  startedAt,
		Device:     s.device.ID,
	}
	r.logger.Debug().
		Str("recording_id", rec.ID).
		Int64("bytes", s.BytesCaptured()).
		Dur("duration", rec.Duration()).
		Msg("capture stopped")
	return rec, nil
}

// IsRecording reports whether a stream is active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Err returns the fault that ended the last stream, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// watch ends s when ctx is cancelled or the server drops the stream. Either
// way Chunks closes, so the consumer sees the fault.
func (r *Recorder) watch(ctx context.Context, s *stream) {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.abort(s, ctx.Err())
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.fault == nil {
				continue
			}
			if err := s.fault(); err != nil {
				r.logger.Warn().Err(err).Str("device", s.device.ID).Msg("capture stream failed")
				r.abort(s, err)
				return
			}
		}
	}
}

// abort tears down s after an external failure and records the cause.
func (r *Recorder) abort(s *stream, cause error) {
	r.mu.Lock()
	if r.active != s {
		r.mu.Unlock()
		return
	}
	r.active = nil
	r.err = &CaptureError{Op: "stream", Err: cause}
	r.mu.Unlock()

	s.stop()
}
