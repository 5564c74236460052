package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var ErrDeviceNotFound = errors.New("no eligible audio input device found")

// Device describes one audio input source.
type Device struct {
	ID    string
	Label string
}

// Lister enumerates available input devices.
type Lister interface {
	ListInputs(ctx context.Context) ([]Device, error)
}

// Labels that indicate a virtual or system-audio source. Those are preferred
// over plain microphones because they carry the remote side of a call.
var preferredLabels = []string{
	"monitor",
	"system audio",
	"blackhole",
	"virtual",
	"loopback",
}

// SelectDevice ranks the candidates deterministically: virtual/system-audio
// sources beat plain microphones, earlier candidates beat later ones on a
// tie. The literal label "default" is never selected because it aliases
// whatever the OS currently favors and makes the choice ambiguous.
func SelectDevice(devices []Device) (Device, error) {
	best := -1
	bestScore := -1

	for i, d := range devices {
		if strings.EqualFold(d.Label, "default") || strings.EqualFold(d.ID, "default") {
			continue
		}
		score := 0
		label := strings.ToLower(d.Label + " " + d.ID)
		for _, want := range preferredLabels {
			if strings.Contains(label, want) {
				score = 1
				break
			}
		}
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	if best < 0 {
		return Device{}, ErrDeviceNotFound
	}
	return devices[best], nil
}

// PactlLister enumerates PulseAudio/PipeWire sources via pactl.
type PactlLister struct {
	command string
}

func NewPactlLister() *PactlLister {
	return &PactlLister{command: "pactl"}
}

func (l *PactlLister) ListInputs(ctx context.Context) ([]Device, error) {
	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(listCtx, l.command, "list", "short", "sources")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if isPermissionError(stderr.String()) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("pactl list sources: %w", err)
	}

	var devices []Device
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{ID: fields[1], Label: fields[1]})
	}
	return devices, nil
}

func isPermissionError(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "access denied") || strings.Contains(s, "permission denied")
}
