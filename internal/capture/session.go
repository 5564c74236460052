// Package capture owns device acquisition and the live audio-processing
// pipeline for one recording lifetime.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/meetscribe/meetscribe/internal/audio"
	"github.com/meetscribe/meetscribe/internal/notify"
)

var ErrAlreadyActive = errors.New("capture session already active")

// chunkSource tags every forwarded chunk so the backend can tell capture
// paths apart.
const chunkSource = "mic"

type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateActive    State = "active"
	StateStopping  State = "stopping"
)

// ChunkSink consumes emitted chunks. The transport client implements this.
type ChunkSink interface {
	Send(chunk audio.Chunk, source string)
}

// Hooks observe the chunk flow; all fields are optional.
type Hooks struct {
	OnChunk    func()
	OnOverflow func()
}

type Config struct {
	SampleRate     int
	Channels       int
	ChunkSize      int
	ReadBufferSize int
	PendingChunks  int
	Device         string // explicit device id; empty ranks available sources
}

func DefaultConfig() Config {
	return Config{
		SampleRate:     16000,
		Channels:       1,
		ChunkSize:      16000,
		ReadBufferSize: 4096,
		PendingChunks:  32,
	}
}

// Session holds at most one open device stream at a time. Start acquires,
// Stop releases; every exit path, including acquisition failure, returns the
// session to idle with all resources released.
type Session struct {
	cfg      Config
	lister   Lister
	streamer Streamer
	sink     ChunkSink
	notifier notify.Notifier
	hooks    Hooks

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	stream io.ReadCloser

	wg sync.WaitGroup
}

func NewSession(cfg Config, lister Lister, streamer Streamer, sink ChunkSink, notifier notify.Notifier, hooks Hooks) *Session {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Session{
		cfg:      cfg,
		lister:   lister,
		streamer: streamer,
		sink:     sink,
		notifier: notifier,
		hooks:    hooks,
		state:    StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start resolves a device, opens the stream and begins forwarding chunks.
// Failure returns a typed error (ErrDeviceNotFound, ErrPermissionDenied,
// ErrStreamSetupFailed) and leaves the session idle; there is no automatic
// retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	sessCtx, cancel := context.WithCancel(ctx)
	s.state = StateAcquiring
	s.cancel = cancel
	s.mu.Unlock()

	device, err := s.resolveDevice(sessCtx)
	if err != nil {
		s.abortStart()
		return err
	}

	stream, err := s.streamer.Open(sessCtx, device, s.cfg)
	if err != nil {
		s.abortStart()
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrStreamSetupFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStreamSetupFailed, err)
	}

	s.mu.Lock()
	if s.state != StateAcquiring {
		// Stop raced the acquisition; release what we just opened.
		s.mu.Unlock()
		_ = stream.Close()
		s.abortStart()
		return context.Canceled
	}
	s.stream = stream
	s.state = StateActive
	s.mu.Unlock()

	buf := audio.NewBuffer(audio.Config{
		ChunkSize:     s.cfg.ChunkSize,
		PendingChunks: s.cfg.PendingChunks,
	})
	if s.hooks.OnOverflow != nil {
		buf.SetOverflowHook(s.hooks.OnOverflow)
	}

	s.wg.Add(2)
	go s.readLoop(sessCtx, stream, buf)
	go s.forwardLoop(buf)

	log.Printf("capture: recording started on device %q", device.ID)
	s.notifier.RecordingChanged(true)
	return nil
}

// Stop is idempotent and never fails: it cancels an in-flight acquisition,
// stops the stream, tears down the processing goroutines and returns the
// session to idle.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateStopping
	cancel := s.cancel
	stream := s.stream
	s.cancel = nil
	s.stream = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		_ = stream.Close() // unblocks the read loop
	}
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	if wasActive {
		log.Printf("capture: recording stopped")
		s.notifier.RecordingChanged(false)
	}
}

func (s *Session) resolveDevice(ctx context.Context) (Device, error) {
	if s.cfg.Device != "" {
		return Device{ID: s.cfg.Device, Label: s.cfg.Device}, nil
	}

	devices, err := s.lister.ListInputs(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return Device{}, err
		}
		return Device{}, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	return SelectDevice(devices)
}

// abortStart rolls a failed Start back to idle unless Stop already owns the
// teardown.
func (s *Session) abortStart() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == StateAcquiring {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// readLoop converts stream bytes to samples on the capture goroutine. Bytes
// that split a sample across reads are carried to the next read.
func (s *Session) readLoop(ctx context.Context, stream io.Reader, buf *audio.Buffer) {
	defer s.wg.Done()
	defer buf.Close()

	buffer := make([]byte, s.cfg.ReadBufferSize)
	var carry []byte

	for {
		n, err := stream.Read(buffer)
		if n > 0 {
			data := append(carry, buffer[:n]...)
			usable := len(data) - len(data)%4
			buf.Push(audio.SamplesFromBytes(data[:usable]))
			carry = append(carry[:0], data[usable:]...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Printf("capture: read error: %v", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// forwardLoop hands every emitted chunk to the sink, verbatim apart from the
// source tag.
func (s *Session) forwardLoop(buf *audio.Buffer) {
	defer s.wg.Done()

	for chunk := range buf.Chunks() {
		if s.hooks.OnChunk != nil {
			s.hooks.OnChunk()
		}
		s.sink.Send(chunk, chunkSource)
	}
}
