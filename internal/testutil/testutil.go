// Package testutil provides shared helpers for package tests: canned
// configurations, audio fixtures and a fake transcription backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meetscribe/meetscribe/internal/config"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	return &config.Config{
		Capture: config.CaptureConfig{
			SampleRate:     16000,
			Channels:       1,
			ChunkSize:      16000,
			ReadBufferSize: 4096,
			PendingChunks:  32,
		},
		Transport: config.TransportConfig{
			Endpoint:          "ws://localhost:8000/ws",
			ReconnectDelay:    3 * time.Second,
			ReconnectMaxDelay: 30 * time.Second,
			PingInterval:      15 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Answer: config.AnswerConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  30 * time.Second,
		},
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "test-api-key"},
		},
		Notifications: config.NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9465",
		},
	}
}

// CreateTempConfigFile writes content to a temp config file and returns its
// path. The file is removed when the test ends.
func CreateTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

// SineSamples generates n samples of a sine wave at the given frequency and
// amplitude. Deterministic input for chunking and peak-level tests.
func SineSamples(n int, freq float64, amplitude float32, sampleRate int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

// AudioMessage mirrors the outbound chunk wire format.
type AudioMessage struct {
	Type        string    `json:"type"`
	AudioBuffer []float32 `json:"audioBuffer"`
	SampleRate  int       `json:"sampleRate"`
	Source      string    `json:"source"`
	Level       float32   `json:"level"`
	Timestamp   int64     `json:"timestamp"`
}

// FakeBackend is an in-process websocket transcription server. It records
// every audio message it receives and can push arbitrary payloads back.
type FakeBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn

	msgs      chan AudioMessage
	connected chan struct{}
}

func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	b := &FakeBackend{
		msgs:      make(chan AudioMessage, 64),
		connected: make(chan struct{}, 8),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Close)
	return b
}

func (b *FakeBackend) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	select {
	case b.connected <- struct{}{}:
	default:
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg AudioMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		select {
		case b.msgs <- msg:
		default:
		}
	}
}

// URL returns the ws:// endpoint of the backend.
func (b *FakeBackend) URL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http")
}

// Messages exposes received audio messages in arrival order.
func (b *FakeBackend) Messages() <-chan AudioMessage {
	return b.msgs
}

// WaitForConnection blocks until a client connects or the timeout elapses.
func (b *FakeBackend) WaitForConnection(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-b.connected:
	case <-time.After(timeout):
		t.Fatalf("no client connected within %v", timeout)
	}
}

// Push writes one text payload to the most recent connection.
func (b *FakeBackend) Push(payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return fmt.Errorf("no connected client")
	}
	conn := b.conns[len(b.conns)-1]
	return conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

// DropConnections closes every open connection, forcing clients to
// reconnect.
func (b *FakeBackend) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.conns {
		_ = conn.Close()
	}
	b.conns = nil
}

func (b *FakeBackend) Close() {
	b.DropConnections()
	b.server.Close()
}
