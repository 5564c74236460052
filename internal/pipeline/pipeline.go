// Package pipeline wires the capture session, the transport client and the
// session state machine into the live transcription flow.
package pipeline

import (
	"context"
	"log"

	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/session"
	"github.com/meetscribe/meetscribe/internal/transport"
)

type Status string

const (
	Idle      Status = "idle"
	Recording Status = "recording"
)

// Pipeline owns one recording session per running instance. The transport
// client and state machine outlive individual recordings; only the capture
// side starts and stops.
type Pipeline struct {
	capture   *capture.Session
	transport *transport.Client
	machine   *session.Machine
}

// New wires inbound transcription events into the state machine. The
// transport client must not have a handler registered yet.
func New(rec *capture.Session, tr *transport.Client, machine *session.Machine, onLine func()) *Pipeline {
	tr.OnMessage(func(ev transport.TranscriptEvent) {
		if _, added := machine.ApplyTranscript(ev.Speaker, ev.Text, ev.ServerID); added && onLine != nil {
			onLine()
		}
	})

	return &Pipeline{
		capture:   rec,
		transport: tr,
		machine:   machine,
	}
}

// Toggle starts recording when idle and stops it otherwise. Returns whether
// recording is active after the call.
func (p *Pipeline) Toggle(ctx context.Context) (bool, error) {
	if p.capture.State() != capture.StateIdle {
		p.capture.Stop()
		return false, nil
	}

	if err := p.capture.Start(ctx); err != nil {
		log.Printf("pipeline: failed to start recording: %v", err)
		return false, err
	}
	return true, nil
}

// Stop ends any active recording. Safe to call at any time.
func (p *Pipeline) Stop() {
	p.capture.Stop()
}

func (p *Pipeline) Status() Status {
	if p.capture.State() == capture.StateActive {
		return Recording
	}
	return Idle
}

// TransportState exposes connection health for status output.
func (p *Pipeline) TransportState() transport.State {
	return p.transport.State()
}

// Machine exposes the session state machine for the control surface.
func (p *Pipeline) Machine() *session.Machine {
	return p.machine
}
