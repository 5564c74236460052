package notify

import "testing"

func TestNew(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		kind    string
		want    Notifier
	}{
		{"disabled overrides type", false, "desktop", Nop{}},
		{"desktop", true, "desktop", Desktop{}},
		{"log", true, "log", Log{}},
		{"none", true, "none", Nop{}},
		{"unknown falls back to nop", true, "smoke-signals", Nop{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := New(tc.enabled, tc.kind); got != tc.want {
				t.Errorf("New(%v, %q) = %T, expected %T", tc.enabled, tc.kind, got, tc.want)
			}
		})
	}
}

func TestLogAndNopNeverPanic(t *testing.T) {
	for _, n := range []Notifier{Log{}, Nop{}} {
		n.RecordingChanged(true)
		n.RecordingChanged(false)
		n.Error("something broke")
	}
}
