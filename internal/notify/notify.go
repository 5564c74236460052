package notify

import (
	"fmt"
	"log"
	"os/exec"
)

// Notifier delivers fire-and-forget status notifications to the host
// desktop. Delivery failure is never fatal.
type Notifier interface {
	RecordingChanged(on bool)
	Error(msg string)
}

// New returns the notifier for the configured type. Unknown types fall back
// to Nop.
func New(enabled bool, kind string) Notifier {
	if !enabled {
		return Nop{}
	}
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

type Desktop struct{}

func (Desktop) RecordingChanged(on bool) {
	state := "stopped"
	if on {
		state = "started"
	}
	cmd := exec.Command("notify-send", "-a", "Meetscribe",
		fmt.Sprintf("Meetscribe: recording %s", state))
	if err := cmd.Run(); err != nil {
		log.Printf("notify: failed to send notification: %v", err)
	}
}

func (Desktop) Error(msg string) {
	cmd := exec.Command("notify-send", "-a", "Meetscribe", "-u", "critical", msg)
	if err := cmd.Run(); err != nil {
		log.Printf("notify: failed to send error notification: %v", err)
	}
}

// Log writes notifications to the daemon log instead of the desktop.
type Log struct{}

func (Log) RecordingChanged(on bool) {
	state := "stopped"
	if on {
		state = "started"
	}
	log.Printf("notify: recording %s", state)
}

func (Log) Error(msg string) {
	log.Printf("notify: error: %s", msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool) {}
func (Nop) Error(msg string)         {}
