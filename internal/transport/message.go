package transport

import (
	"encoding/json"
	"log"
)

// audioMessage is the outbound wire format. Field names are part of the
// backend contract and must not change.
type audioMessage struct {
	Type        string    `json:"type"`
	AudioBuffer []float32 `json:"audioBuffer"`
	SampleRate  int       `json:"sampleRate"`
	Source      string    `json:"source"`
	Level       float32   `json:"level"`
	Timestamp   int64     `json:"timestamp"`
}

// envelope is the inbound discriminated union.
type envelope struct {
	Type string          `json:"type"`
	ID   *int64          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type transcriptionData struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// dispatch parses one inbound message and routes it to the handler.
// Unparseable messages are dropped and logged; they never crash the client.
func (c *Client) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("transport: dropping unparseable message: %v", err)
		return
	}

	switch env.Type {
	case "transcription":
		var data transcriptionData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			log.Printf("transport: dropping malformed transcription payload: %v", err)
			return
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(TranscriptEvent{Speaker: data.Speaker, Text: data.Text, ServerID: env.ID})
		}
	default:
		// Unknown message types are ignored by contract.
	}
}
