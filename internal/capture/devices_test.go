package capture

import (
	"errors"
	"testing"
)

func TestSelectDevice(t *testing.T) {
	t.Run("prefers system audio over microphone", func(t *testing.T) {
		devices := []Device{
			{ID: "alsa_input.usb-mic", Label: "USB Microphone"},
			{ID: "alsa_output.pci.monitor", Label: "Built-in Audio Monitor"},
			{ID: "alsa_input.webcam", Label: "Webcam Mic"},
		}
		got, err := SelectDevice(devices)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "alsa_output.pci.monitor" {
			t.Errorf("expected monitor device, got %q", got.ID)
		}
	})

	t.Run("first candidate wins on tie", func(t *testing.T) {
		devices := []Device{
			{ID: "mic-a", Label: "Microphone A"},
			{ID: "mic-b", Label: "Microphone B"},
		}
		got, err := SelectDevice(devices)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "mic-a" {
			t.Errorf("expected first device on tie, got %q", got.ID)
		}

		// Same ranking on every call.
		again, _ := SelectDevice(devices)
		if again.ID != got.ID {
			t.Errorf("ranking not deterministic: %q then %q", got.ID, again.ID)
		}
	})

	t.Run("never selects the literal default", func(t *testing.T) {
		devices := []Device{
			{ID: "default", Label: "Default"},
			{ID: "mic-a", Label: "Microphone A"},
		}
		got, err := SelectDevice(devices)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "mic-a" {
			t.Errorf("expected mic-a, got %q", got.ID)
		}
	})

	t.Run("recognizes virtual loopback labels", func(t *testing.T) {
		devices := []Device{
			{ID: "mic", Label: "Microphone"},
			{ID: "bh-2ch", Label: "BlackHole 2ch"},
		}
		got, err := SelectDevice(devices)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.ID != "bh-2ch" {
			t.Errorf("expected virtual device, got %q", got.ID)
		}
	})

	t.Run("no devices", func(t *testing.T) {
		if _, err := SelectDevice(nil); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})

	t.Run("only default available", func(t *testing.T) {
		devices := []Device{{ID: "default", Label: "default"}}
		if _, err := SelectDevice(devices); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("expected ErrDeviceNotFound, got %v", err)
		}
	})
}

func TestIsPermissionError(t *testing.T) {
	cases := []struct {
		stderr string
		want   bool
	}{
		{"Connection failure: Access denied", true},
		{"pw-record: permission denied opening node", true},
		{"no such device", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isPermissionError(tc.stderr); got != tc.want {
			t.Errorf("isPermissionError(%q) = %v, expected %v", tc.stderr, got, tc.want)
		}
	}
}
