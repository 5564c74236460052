package session

import "time"

// TranscriptLine is one unit of recognized speech. Lines are never deleted
// during a session; IsQuestion flips to true at most once.
type TranscriptLine struct {
	ID         int64
	Speaker    string
	Text       string
	ReceivedAt time.Time
	IsQuestion bool
}

type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAnswered RequestStatus = "answered"
	StatusFailed   RequestStatus = "failed"
)

// QuestionRequest tracks one question line through the answer service.
// Answered and Failed are terminal; both carry Answer text (a user-facing
// failure message in the Failed case).
type QuestionRequest struct {
	QuestionID   int64
	QuestionText string
	Status       RequestStatus
	Answer       string
}

// EventSink receives state-machine events so the daemon can fan them out to
// host UIs. Implementations must not block.
type EventSink interface {
	TranscriptLineAdded(line TranscriptLine)
	AnswerResolved(req QuestionRequest)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) TranscriptLineAdded(TranscriptLine) {}
func (NopSink) AnswerResolved(QuestionRequest)     {}
