package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrPermissionDenied  = errors.New("audio capture permission denied")
	ErrStreamSetupFailed = errors.New("failed to open audio stream")
)

// Streamer opens a raw PCM stream for a device. Production capture shells
// out to pw-record; tests inject a scripted stream.
type Streamer interface {
	Open(ctx context.Context, device Device, cfg Config) (io.ReadCloser, error)
}

// PwRecordStreamer captures f32le PCM via a pw-record subprocess. Raw node
// capture bypasses echo cancellation, noise suppression and auto gain, which
// would otherwise distort the samples the transcriber sees.
type PwRecordStreamer struct {
	command string
}

func NewPwRecordStreamer() *PwRecordStreamer {
	return &PwRecordStreamer{command: "pw-record"}
}

func (s *PwRecordStreamer) Open(ctx context.Context, device Device, cfg Config) (io.ReadCloser, error) {
	args := []string{
		"--format", "f32",
		"--rate", strconv.Itoa(cfg.SampleRate),
		"--channels", strconv.Itoa(cfg.Channels),
	}
	if device.ID != "" {
		args = append(args, "--target", device.ID)
	}
	args = append(args, "-") // stdout

	cmd := exec.CommandContext(ctx, s.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: create stdout pipe: %v", ErrStreamSetupFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrStreamSetupFailed, s.command, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// A capture process that dies immediately signals a setup problem, not
	// a short recording.
	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if isPermissionError(detail) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s exited early: %v: %s", ErrStreamSetupFailed, s.command, err, detail)
		}
		return nil, fmt.Errorf("%w: %s exited before capture started", ErrStreamSetupFailed, s.command)
	case <-time.After(250 * time.Millisecond):
	}

	return &pwRecordStream{
		stdout:  stdout,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type pwRecordStream struct {
	stdout  io.ReadCloser
	process *os.Process

	waitErr <-chan error

	closeOnce sync.Once
	closeErr  error
}

func (s *pwRecordStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *pwRecordStream) Close() error {
	s.closeOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.waitErr:
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.waitErr
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			s.closeErr = err
		}
	})
	return s.closeErr
}
