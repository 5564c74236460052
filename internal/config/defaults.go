package config

import "time"

// DefaultConfig returns the configuration used when no config file exists.
// Transport endpoint and capture constraints are fixed design parameters,
// kept in config only so deployments can point at a different backend.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			SampleRate:     16000,
			Channels:       1,
			ChunkSize:      16000, // one second of audio
			ReadBufferSize: 4096,
			PendingChunks:  32,
			Device:         "",
		},
		Transport: TransportConfig{
			Endpoint:          "ws://localhost:8000/ws",
			ReconnectDelay:    3 * time.Second,
			ReconnectMaxDelay: 30 * time.Second,
			PingInterval:      15 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Answer: AnswerConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  30 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9465",
		},
		Providers: make(map[string]ProviderConfig),
	}
}
