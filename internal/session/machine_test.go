package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// stubAsker resolves answer requests from a scripted function.
type stubAsker struct {
	fn func(ctx context.Context, questionID int64, text string) (string, error)
}

func (s *stubAsker) Ask(ctx context.Context, questionID int64, text string) (string, error) {
	return s.fn(ctx, questionID, text)
}

func answerWith(text string) *stubAsker {
	return &stubAsker{fn: func(context.Context, int64, string) (string, error) {
		return text, nil
	}}
}

func serverID(id int64) *int64 { return &id }

func TestApplyTranscriptOrdering(t *testing.T) {
	m := NewMachine(answerWith("x"), nil, time.Second)

	m.ApplyTranscript("them", "third", serverID(3))
	m.ApplyTranscript("me", "first", serverID(1))
	m.ApplyTranscript("them", "second", serverID(2))

	lines := m.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, want := range []string{"first", "second", "third"} {
		if lines[i].ID != int64(i+1) || lines[i].Text != want {
			t.Errorf("line %d: expected id %d text %q, got id %d text %q",
				i, i+1, want, lines[i].ID, lines[i].Text)
		}
	}
}

func TestApplyTranscriptDuplicateServerID(t *testing.T) {
	m := NewMachine(answerWith("x"), nil, time.Second)

	if _, added := m.ApplyTranscript("them", "original", serverID(7)); !added {
		t.Fatal("first apply should succeed")
	}
	if _, added := m.ApplyTranscript("them", "imposter", serverID(7)); added {
		t.Fatal("duplicate server id must be dropped")
	}

	lines := m.Lines()
	if len(lines) != 1 || lines[0].Text != "original" {
		t.Errorf("first write must win, got %+v", lines)
	}
}

func TestApplyTranscriptLocalIDsFollowServerIDs(t *testing.T) {
	m := NewMachine(answerWith("x"), nil, time.Second)

	m.ApplyTranscript("them", "assigned", serverID(5))
	line, added := m.ApplyTranscript("me", "local", nil)
	if !added {
		t.Fatal("local line should be added")
	}
	if line.ID != 6 {
		t.Errorf("expected local id 6 after server id 5, got %d", line.ID)
	}
}

func TestMarkQuestionAnswered(t *testing.T) {
	m := NewMachine(answerWith("Good."), nil, time.Second)
	m.ApplyTranscript("them", "What is your experience with Go?", serverID(5))

	if !m.MarkQuestion(context.Background(), 5) {
		t.Fatal("mark should succeed")
	}
	m.Wait()

	req, ok := m.Request(5)
	if !ok {
		t.Fatal("expected a request for line 5")
	}
	if req.Status != StatusAnswered || req.Answer != "Good." {
		t.Errorf("expected answered %q, got %v %q", "Good.", req.Status, req.Answer)
	}

	lines := m.Lines()
	if !lines[0].IsQuestion {
		t.Error("line should be flagged as question")
	}
}

func TestMarkQuestionUnknownLine(t *testing.T) {
	m := NewMachine(answerWith("x"), nil, time.Second)
	if m.MarkQuestion(context.Background(), 99) {
		t.Error("marking a missing line must be a no-op")
	}
}

func TestMarkQuestionWhilePending(t *testing.T) {
	release := make(chan struct{})
	asker := &stubAsker{fn: func(ctx context.Context, id int64, text string) (string, error) {
		<-release
		return "done", nil
	}}
	m := NewMachine(asker, nil, 5*time.Second)
	m.ApplyTranscript("them", "question?", serverID(1))

	if !m.MarkQuestion(context.Background(), 1) {
		t.Fatal("first mark should succeed")
	}
	if m.MarkQuestion(context.Background(), 1) {
		t.Error("second mark while pending must be a no-op")
	}

	close(release)
	m.Wait()

	req, _ := m.Request(1)
	if req.Status != StatusAnswered || req.Answer != "done" {
		t.Errorf("expected one answered request, got %v %q", req.Status, req.Answer)
	}
}

func TestMarkQuestionRetriableAfterFailure(t *testing.T) {
	var calls int
	var mu sync.Mutex
	asker := &stubAsker{fn: func(ctx context.Context, id int64, text string) (string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return "", fmt.Errorf("service exploded")
		}
		return "second time lucky", nil
	}}
	m := NewMachine(asker, nil, time.Second)
	m.ApplyTranscript("them", "question?", serverID(1))

	m.MarkQuestion(context.Background(), 1)
	m.Wait()

	req, _ := m.Request(1)
	if req.Status != StatusFailed {
		t.Fatalf("expected failed request, got %v", req.Status)
	}
	if req.Answer != failedFallback {
		t.Errorf("expected fallback message %q, got %q", failedFallback, req.Answer)
	}

	if !m.MarkQuestion(context.Background(), 1) {
		t.Fatal("failed question must be retriable")
	}
	m.Wait()

	req, _ = m.Request(1)
	if req.Status != StatusAnswered || req.Answer != "second time lucky" {
		t.Errorf("expected answered retry, got %v %q", req.Status, req.Answer)
	}
}

func TestAnswerTimeout(t *testing.T) {
	asker := &stubAsker{fn: func(ctx context.Context, id int64, text string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	m := NewMachine(asker, nil, 10*time.Millisecond)
	m.ApplyTranscript("them", "question?", serverID(1))

	m.MarkQuestion(context.Background(), 1)
	m.Wait()

	req, _ := m.Request(1)
	if req.Status != StatusFailed {
		t.Fatalf("expected failed request after timeout, got %v", req.Status)
	}
	if req.Answer != timeoutFallback {
		t.Errorf("expected timeout message %q, got %q", timeoutFallback, req.Answer)
	}
}

func TestApplyAnswerGuards(t *testing.T) {
	m := NewMachine(answerWith("Good."), nil, time.Second)
	m.ApplyTranscript("them", "question?", serverID(1))

	// Unknown id is ignored.
	m.ApplyAnswer(42, "phantom", nil)
	if _, ok := m.Request(42); ok {
		t.Error("answer for unknown question must not create a request")
	}

	m.MarkQuestion(context.Background(), 1)
	m.Wait()

	// A late duplicate callback must not overwrite the terminal state.
	m.ApplyAnswer(1, "overwrite", nil)
	m.ApplyAnswer(1, "", fmt.Errorf("late failure"))

	req, _ := m.Request(1)
	if req.Status != StatusAnswered || req.Answer != "Good." {
		t.Errorf("terminal request mutated: %v %q", req.Status, req.Answer)
	}
}

func TestCountsAndSink(t *testing.T) {
	resolved := make(chan QuestionRequest, 1)
	added := make(chan TranscriptLine, 4)
	sink := &chanSink{added: added, resolved: resolved}

	m := NewMachine(answerWith("ok"), sink, time.Second)
	m.ApplyTranscript("them", "a", nil)
	m.ApplyTranscript("me", "b", nil)

	if lines, pending := m.Counts(); lines != 2 || pending != 0 {
		t.Errorf("expected 2 lines 0 pending, got %d %d", lines, pending)
	}

	m.MarkQuestion(context.Background(), 1)
	m.Wait()

	select {
	case req := <-resolved:
		if req.QuestionID != 1 || req.Status != StatusAnswered {
			t.Errorf("unexpected resolution: %+v", req)
		}
	default:
		t.Error("sink did not receive resolution")
	}
	if len(added) != 2 {
		t.Errorf("expected 2 line-added events, got %d", len(added))
	}
}

type chanSink struct {
	added    chan TranscriptLine
	resolved chan QuestionRequest
}

func (s *chanSink) TranscriptLineAdded(line TranscriptLine) { s.added <- line }
func (s *chanSink) AnswerResolved(req QuestionRequest)      { s.resolved <- req }
