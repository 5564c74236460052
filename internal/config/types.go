package config

import "time"

type Config struct {
	Capture       CaptureConfig             `toml:"capture"`
	Transport     TransportConfig           `toml:"transport"`
	Answer        AnswerConfig              `toml:"answer"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Metrics       MetricsConfig             `toml:"metrics"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for an answer provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type CaptureConfig struct {
	SampleRate     int    `toml:"sample_rate"`
	Channels       int    `toml:"channels"`
	ChunkSize      int    `toml:"chunk_size"`       // samples per emitted chunk
	ReadBufferSize int    `toml:"read_buffer_size"` // bytes per stream read
	PendingChunks  int    `toml:"pending_chunks"`   // emission ring capacity
	Device         string `toml:"device"`           // empty = rank available sources
}

type TransportConfig struct {
	Endpoint          string        `toml:"endpoint"`
	ReconnectDelay    time.Duration `toml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `toml:"reconnect_max_delay"`
	PingInterval      time.Duration `toml:"ping_interval"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
}

type AnswerConfig struct {
	Provider string        `toml:"provider"`
	Model    string        `toml:"model"`
	Timeout  time.Duration `toml:"timeout"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}
