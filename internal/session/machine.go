// Package session reconciles asynchronously arriving transcript events and
// user question actions into one ordered session transcript.
package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// Fallback answer strings shown when the answer service fails. Requests
// never surface raw errors to the transcript view.
const (
	failedFallback  = "Failed to get an answer. Please try again."
	timeoutFallback = "The answer request timed out. Please try again."
)

// Asker bridges a question to the answer-generation service. Implementations
// block until the service resolves or the context expires.
type Asker interface {
	Ask(ctx context.Context, questionID int64, text string) (string, error)
}

// Machine merges transcript events and user actions by arrival time. All
// methods are safe for concurrent use.
type Machine struct {
	mu       sync.Mutex
	lines    map[int64]*TranscriptLine
	requests map[int64]*QuestionRequest
	nextID   int64

	asker         Asker
	sink          EventSink
	answerTimeout time.Duration

	wg sync.WaitGroup
}

func NewMachine(asker Asker, sink EventSink, answerTimeout time.Duration) *Machine {
	if sink == nil {
		sink = NopSink{}
	}
	if answerTimeout <= 0 {
		answerTimeout = 30 * time.Second
	}
	return &Machine{
		lines:         make(map[int64]*TranscriptLine),
		requests:      make(map[int64]*QuestionRequest),
		nextID:        1,
		asker:         asker,
		sink:          sink,
		answerTimeout: answerTimeout,
	}
}

// ApplyTranscript appends a new line. When the backend assigned an id it is
// used as-is; a second event claiming an existing id is dropped (first write
// wins). Existing lines are never mutated.
func (m *Machine) ApplyTranscript(speaker, text string, serverID *int64) (TranscriptLine, bool) {
	m.mu.Lock()

	var id int64
	if serverID != nil {
		id = *serverID
		if _, exists := m.lines[id]; exists {
			m.mu.Unlock()
			log.Printf("session: ignoring duplicate transcript id %d", id)
			return TranscriptLine{}, false
		}
		if id >= m.nextID {
			m.nextID = id + 1
		}
	} else {
		id = m.nextID
		m.nextID++
	}

	line := &TranscriptLine{
		ID:         id,
		Speaker:    speaker,
		Text:       text,
		ReceivedAt: time.Now(),
	}
	m.lines[id] = line
	added := *line
	m.mu.Unlock()

	m.sink.TranscriptLineAdded(added)
	return added, true
}

// MarkQuestion flags a line as a question and dispatches an answer request.
// It is a no-op when the line does not exist or already has a request that
// is not Failed; a Failed question may be retried.
func (m *Machine) MarkQuestion(ctx context.Context, lineID int64) bool {
	m.mu.Lock()

	line, ok := m.lines[lineID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if req, exists := m.requests[lineID]; exists && req.Status != StatusFailed {
		m.mu.Unlock()
		return false
	}

	line.IsQuestion = true
	m.requests[lineID] = &QuestionRequest{
		QuestionID:   lineID,
		QuestionText: line.Text,
		Status:       StatusPending,
	}
	text := line.Text
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		askCtx, cancel := context.WithTimeout(ctx, m.answerTimeout)
		defer cancel()

		answer, err := m.asker.Ask(askCtx, lineID, text)
		m.ApplyAnswer(lineID, answer, err)
	}()

	return true
}

// ApplyAnswer resolves a pending request. Unknown and already-terminal
// question ids are ignored, which guards against duplicate callbacks.
func (m *Machine) ApplyAnswer(questionID int64, answer string, err error) {
	m.mu.Lock()

	req, ok := m.requests[questionID]
	if !ok || req.Status != StatusPending {
		m.mu.Unlock()
		return
	}

	if err != nil {
		req.Status = StatusFailed
		req.Answer = fallbackFor(err)
		log.Printf("session: answer request %d failed: %v", questionID, err)
	} else {
		req.Status = StatusAnswered
		req.Answer = answer
	}
	resolved := *req
	m.mu.Unlock()

	m.sink.AnswerResolved(resolved)
}

// Lines returns the transcript sorted by id ascending.
func (m *Machine) Lines() []TranscriptLine {
	m.mu.Lock()
	lines := make([]TranscriptLine, 0, len(m.lines))
	for _, l := range m.lines {
		lines = append(lines, *l)
	}
	m.mu.Unlock()

	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines
}

// Requests returns all answer requests keyed by question id.
func (m *Machine) Requests() map[int64]QuestionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]QuestionRequest, len(m.requests))
	for id, req := range m.requests {
		out[id] = *req
	}
	return out
}

// Request looks up the answer state for one question id.
func (m *Machine) Request(questionID int64) (QuestionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[questionID]
	if !ok {
		return QuestionRequest{}, false
	}
	return *req, true
}

// Counts reports transcript and pending-question sizes for status output.
func (m *Machine) Counts() (lines, pending int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.Status == StatusPending {
			pending++
		}
	}
	return len(m.lines), pending
}

// Wait blocks until all dispatched answer requests have resolved. Test
// helper; the daemon never needs it.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func fallbackFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutFallback
	}
	return failedFallback
}
