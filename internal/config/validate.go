package config

import (
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("invalid capture.sample_rate: %d", c.Capture.SampleRate)
	}
	if c.Capture.Channels != 1 {
		return fmt.Errorf("invalid capture.channels: %d (only mono capture is supported)", c.Capture.Channels)
	}
	if c.Capture.ChunkSize <= 0 {
		return fmt.Errorf("invalid capture.chunk_size: %d", c.Capture.ChunkSize)
	}
	if c.Capture.ReadBufferSize <= 0 {
		return fmt.Errorf("invalid capture.read_buffer_size: %d", c.Capture.ReadBufferSize)
	}
	if c.Capture.PendingChunks <= 0 {
		return fmt.Errorf("invalid capture.pending_chunks: %d", c.Capture.PendingChunks)
	}

	if !strings.HasPrefix(c.Transport.Endpoint, "ws://") && !strings.HasPrefix(c.Transport.Endpoint, "wss://") {
		return fmt.Errorf("invalid transport.endpoint: %q (must be a ws:// or wss:// URL)", c.Transport.Endpoint)
	}
	if c.Transport.ReconnectDelay <= 0 {
		return fmt.Errorf("invalid transport.reconnect_delay: %v", c.Transport.ReconnectDelay)
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectDelay {
		return fmt.Errorf("invalid transport.reconnect_max_delay: %v (below reconnect_delay)", c.Transport.ReconnectMaxDelay)
	}
	if c.Transport.PingInterval <= 0 {
		return fmt.Errorf("invalid transport.ping_interval: %v", c.Transport.PingInterval)
	}
	if c.Transport.WriteTimeout <= 0 {
		return fmt.Errorf("invalid transport.write_timeout: %v", c.Transport.WriteTimeout)
	}

	switch c.Answer.Provider {
	case "openai":
		if c.ResolveAPIKey("openai") == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)")
		}
	case "none":
		// answers disabled; question marking still works, requests fail fast
	default:
		return fmt.Errorf("invalid answer.provider: %q (must be openai or none)", c.Answer.Provider)
	}
	if c.Answer.Timeout <= 0 {
		return fmt.Errorf("invalid answer.timeout: %v", c.Answer.Timeout)
	}

	switch c.Notifications.Type {
	case "", "desktop", "log", "none":
	default:
		return fmt.Errorf("invalid notifications.type: %q (must be desktop, log or none)", c.Notifications.Type)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("invalid metrics.addr: empty")
	}

	return nil
}
