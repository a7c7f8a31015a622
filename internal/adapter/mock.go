package adapter

import (
	"context"
	"strings"
	"time"
)

// MockSTT returns the same canned transcript for any non-empty audio (and
// an empty one for empty audio), for local development and tests where no
// provider credential is configured.
type MockSTT struct{}

func NewMockSTT() *MockSTT { return &MockSTT{} }

func (m *MockSTT) Transcribe(_ context.Context, req TranscribeRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", nil
	}
	if req.OnPartial != nil {
		req.OnPartial("...")
	}
	return "simulated voice input", nil
}

// MockLLM streams back a short fixed reply, one word per token.
type MockLLM struct{}

func NewMockLLM() *MockLLM { return &MockLLM{} }

func (m *MockLLM) Stream(ctx context.Context, messages []Message, _ string, _ int) (<-chan TokenEvent, error) {
	reply := "Got it, let's take a closer look at that."
	words := strings.Fields(reply)
	if len(messages) > 0 {
		// keep the mock deterministic but non-trivial: echo a hint of the
		// last user message so tests can assert it took the prompt.
		last := messages[len(messages)-1]
		if strings.TrimSpace(last.Text) != "" {
			words = append(words, "(re:", strings.Fields(last.Text)[0]+")")
		}
	}

	out := make(chan TokenEvent, len(words)+1)
	go func() {
		defer close(out)
		for _, w := range words {
			select {
			case <-ctx.Done():
				out <- TokenEvent{Err: ctx.Err()}
				return
			case out <- TokenEvent{Text: w + " "}:
			}
		}
		out <- TokenEvent{Err: ErrStreamComplete}
	}()
	return out, nil
}

// MockTTS turns each text span into one fake audio chunk.
type MockTTS struct{}

func NewMockTTS() *MockTTS { return &MockTTS{} }

func (m *MockTTS) Synthesize(ctx context.Context, text, _ string) (<-chan AudioChunkEvent, error) {
	out := make(chan AudioChunkEvent, 2)
	go func() {
		defer close(out)
		if strings.TrimSpace(text) == "" {
			out <- AudioChunkEvent{Err: ErrStreamComplete}
			return
		}
		select {
		case <-ctx.Done():
			out <- AudioChunkEvent{Err: ctx.Err()}
			return
		case out <- AudioChunkEvent{Data: []byte(text)}:
		}
		time.Sleep(time.Millisecond)
		out <- AudioChunkEvent{Err: ErrStreamComplete}
	}()
	return out, nil
}

// MockModeration never blocks; used when GUARDRAIL_ENABLED is false.
type MockModeration struct{}

func NewMockModeration() *MockModeration { return &MockModeration{} }

func (m *MockModeration) Check(_ context.Context, _ string) (bool, string, error) {
	return false, "", nil
}
