package audio

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Chunk is a fixed-length slice of mono PCM samples emitted as one unit.
// A chunk is immutable once emitted.
type Chunk struct {
	Samples    []float32
	Peak       float32
	CapturedAt time.Time
}

// Config controls chunk cutting and the emission ring.
type Config struct {
	ChunkSize     int // samples per emitted chunk
	PendingChunks int // emission ring capacity before drop-oldest kicks in
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:     16000, // one second at 16 kHz
		PendingChunks: 32,
	}
}

// Buffer accumulates raw samples pushed from the capture loop and emits
// fixed-size chunks. Push runs on the capture goroutine and never blocks:
// when the consumer stalls and the emission ring is full, the oldest pending
// chunk is dropped and counted.
type Buffer struct {
	cfg     Config
	pending []float32
	out     chan Chunk

	dropped    atomic.Uint64
	onOverflow func()

	closeOnce sync.Once
}

func NewBuffer(cfg Config) *Buffer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.PendingChunks <= 0 {
		cfg.PendingChunks = DefaultConfig().PendingChunks
	}
	return &Buffer{
		cfg:     cfg,
		pending: make([]float32, 0, cfg.ChunkSize*2),
		out:     make(chan Chunk, cfg.PendingChunks),
	}
}

// SetOverflowHook registers a callback invoked once per dropped chunk.
// Must be called before Push.
func (b *Buffer) SetOverflowHook(fn func()) {
	b.onOverflow = fn
}

// Push appends samples and emits every complete chunk they produce.
// Only the capture goroutine may call Push.
func (b *Buffer) Push(samples []float32) {
	b.pending = append(b.pending, samples...)

	for len(b.pending) >= b.cfg.ChunkSize {
		cut := make([]float32, b.cfg.ChunkSize)
		copy(cut, b.pending[:b.cfg.ChunkSize])
		b.pending = b.pending[:copy(b.pending, b.pending[b.cfg.ChunkSize:])]

		b.emit(Chunk{
			Samples:    cut,
			Peak:       peakLevel(cut),
			CapturedAt: time.Now(),
		})
	}
}

func (b *Buffer) emit(chunk Chunk) {
	for {
		select {
		case b.out <- chunk:
			return
		default:
		}

		// Ring is full: evict the oldest pending chunk and retry.
		select {
		case <-b.out:
			n := b.dropped.Add(1)
			if b.onOverflow != nil {
				b.onOverflow()
			}
			if n == 1 || n%50 == 0 {
				log.Printf("audio: emission ring full, dropped %d chunks so far", n)
			}
		default:
		}
	}
}

// Chunks is the emission channel. It is closed by Close once the capture
// loop is done pushing.
func (b *Buffer) Chunks() <-chan Chunk {
	return b.out
}

// Dropped reports how many chunks were evicted due to consumer stall.
func (b *Buffer) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends emission. Samples short of a full chunk are discarded; partial
// chunks are never emitted.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		close(b.out)
	})
}

func peakLevel(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
