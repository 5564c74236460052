package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/audio"
	"github.com/meetscribe/meetscribe/internal/testutil"
)

func testClientConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		SampleRate:        16000,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectMaxDelay: 100 * time.Millisecond,
		PingInterval:      time.Second,
		WriteTimeout:      time.Second,
	}
}

func waitForState(t *testing.T, c *Client, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected state %v within %v, still %v", want, timeout, c.State())
}

func testChunk() audio.Chunk {
	return audio.Chunk{
		Samples:    make([]float32, 16000),
		Peak:       0.5,
		CapturedAt: time.Now(),
	}
}

func TestSendDropsWhenNotOpen(t *testing.T) {
	var drops atomic.Uint64
	c := NewClient(testClientConfig("ws://localhost:1/ws"), Hooks{
		OnSendDropped: func() { drops.Add(1) },
	})

	// Never run: the client is permanently closed.
	c.Send(testChunk(), "mic")
	c.Send(testChunk(), "mic")

	if got := drops.Load(); got != 2 {
		t.Errorf("expected 2 dropped sends, got %d", got)
	}
}

func TestSendDeliversWhenOpen(t *testing.T) {
	backend := testutil.NewFakeBackend(t)

	c := NewClient(testClientConfig(backend.URL()), Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)
	defer c.Shutdown()

	waitForState(t, c, StateOpen, 2*time.Second)

	chunk := testChunk()
	chunk.Samples[0] = 0.25
	c.Send(chunk, "mic")

	select {
	case msg := <-backend.Messages():
		if msg.Type != "audio" {
			t.Errorf("expected type audio, got %q", msg.Type)
		}
		if msg.SampleRate != 16000 {
			t.Errorf("expected sampleRate 16000, got %d", msg.SampleRate)
		}
		if msg.Source != "mic" {
			t.Errorf("expected source mic, got %q", msg.Source)
		}
		if msg.Level != 0.5 {
			t.Errorf("expected level 0.5, got %v", msg.Level)
		}
		if len(msg.AudioBuffer) != 16000 || msg.AudioBuffer[0] != 0.25 {
			t.Errorf("audio buffer not delivered verbatim")
		}
		if msg.Timestamp != chunk.CapturedAt.UnixMilli() {
			t.Errorf("expected timestamp %d, got %d", chunk.CapturedAt.UnixMilli(), msg.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestReconnectAndRedeliver(t *testing.T) {
	backend := testutil.NewFakeBackend(t)

	var reconnects atomic.Uint64
	c := NewClient(testClientConfig(backend.URL()), Hooks{
		OnReconnect: func() { reconnects.Add(1) },
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)
	defer c.Shutdown()

	backend.WaitForConnection(t, 2*time.Second)
	waitForState(t, c, StateOpen, 2*time.Second)

	backend.DropConnections()
	backend.WaitForConnection(t, 2*time.Second)
	waitForState(t, c, StateOpen, 2*time.Second)

	if reconnects.Load() == 0 {
		t.Error("expected at least one reconnect callback")
	}

	// A chunk sent on the new connection arrives exactly once.
	c.Send(testChunk(), "mic")
	select {
	case <-backend.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("no message after reconnect")
	}
	select {
	case <-backend.Messages():
		t.Fatal("chunk delivered more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownStopsReconnecting(t *testing.T) {
	// Unreachable endpoint keeps the client in its backoff loop.
	c := NewClient(testClientConfig("ws://127.0.0.1:1/ws"), Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	if got := c.State(); got != StateClosed {
		t.Errorf("expected closed after shutdown, got %v", got)
	}
}

func TestBackoffDoubling(t *testing.T) {
	c := NewClient(testClientConfig("ws://localhost:1/ws"), Hooks{})

	delays := []time.Duration{c.cfg.ReconnectDelay}
	for i := 0; i < 4; i++ {
		delays = append(delays, c.nextDelay(delays[len(delays)-1]))
	}

	want := []time.Duration{
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
		100 * time.Millisecond, // capped
		100 * time.Millisecond,
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestDispatch(t *testing.T) {
	collect := func() (*Client, *[]TranscriptEvent, *sync.Mutex) {
		c := NewClient(testClientConfig("ws://localhost:1/ws"), Hooks{})
		var mu sync.Mutex
		var events []TranscriptEvent
		c.OnMessage(func(ev TranscriptEvent) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		})
		return c, &events, &mu
	}

	t.Run("transcription with server id", func(t *testing.T) {
		c, events, mu := collect()
		c.dispatch([]byte(`{"type":"transcription","id":7,"data":{"speaker":"them","text":"hello"}}`))

		mu.Lock()
		defer mu.Unlock()
		if len(*events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(*events))
		}
		ev := (*events)[0]
		if ev.Speaker != "them" || ev.Text != "hello" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.ServerID == nil || *ev.ServerID != 7 {
			t.Errorf("expected server id 7, got %v", ev.ServerID)
		}
	})

	t.Run("transcription without id", func(t *testing.T) {
		c, events, mu := collect()
		c.dispatch([]byte(`{"type":"transcription","data":{"speaker":"me","text":"hi"}}`))

		mu.Lock()
		defer mu.Unlock()
		if len(*events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(*events))
		}
		if (*events)[0].ServerID != nil {
			t.Errorf("expected nil server id, got %v", *(*events)[0].ServerID)
		}
	})

	t.Run("unknown type ignored", func(t *testing.T) {
		c, events, mu := collect()
		c.dispatch([]byte(`{"type":"heartbeat"}`))

		mu.Lock()
		defer mu.Unlock()
		if len(*events) != 0 {
			t.Errorf("expected no events, got %d", len(*events))
		}
	})

	t.Run("malformed json dropped", func(t *testing.T) {
		c, events, mu := collect()
		c.dispatch([]byte(`{not json`))
		c.dispatch([]byte(`{"type":"transcription","data":"not an object"}`))

		mu.Lock()
		defer mu.Unlock()
		if len(*events) != 0 {
			t.Errorf("expected no events, got %d", len(*events))
		}
	})
}

func TestInboundTranscriptionOverWire(t *testing.T) {
	backend := testutil.NewFakeBackend(t)

	c := NewClient(testClientConfig(backend.URL()), Hooks{})
	events := make(chan TranscriptEvent, 4)
	c.OnMessage(func(ev TranscriptEvent) { events <- ev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Run(ctx)
	defer c.Shutdown()

	backend.WaitForConnection(t, 2*time.Second)
	waitForState(t, c, StateOpen, 2*time.Second)

	if err := backend.Push(`{"type":"transcription","id":3,"data":{"speaker":"them","text":"What is Go?"}}`); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Text != "What is Go?" || ev.ServerID == nil || *ev.ServerID != 3 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript event received")
	}
}
