package turn

import "strings"

// softLimit caps a sentence buffer even without a terminator, so a
// long run-on reply still yields timely TTS submissions.
const softLimit = 120

// sentenceBuffer accumulates LLM tokens and yields complete spans ready
// for TTS submission at each sentence terminator or once the soft
// character limit is reached.
type sentenceBuffer struct {
	b strings.Builder
}

func newSentenceBuffer() *sentenceBuffer {
	return &sentenceBuffer{}
}

// Push appends a token and returns any spans now ready for synthesis,
// in order. Multiple spans can be returned if the token itself contains
// more than one terminator (e.g. a multi-sentence LLM chunk).
func (s *sentenceBuffer) Push(token string) []string {
	var ready []string
	for _, r := range token {
		s.b.WriteRune(r)
		if isTerminator(r) || s.b.Len() >= softLimit {
			if span := strings.TrimSpace(s.b.String()); span != "" {
				ready = append(ready, span)
			}
			s.b.Reset()
		}
	}
	return ready
}

// Flush returns any remaining buffered text once the stream ends.
func (s *sentenceBuffer) Flush() string {
	span := strings.TrimSpace(s.b.String())
	s.b.Reset()
	return span
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '?', '!', '\n':
		return true
	default:
		return false
	}
}
