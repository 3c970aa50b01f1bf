package stream

import (
	"strings"
	"sync"

	"github.com/MrWong99/omniagent/pkg/types"
)

// turnState holds the conversation history and turn counters shared by the
// reader, STT fan-in, and LLM worker goroutines of one stream. All access
// goes through its methods; the mutex is never held across a blocking call.
type turnState struct {
	mu          sync.Mutex
	history     []types.Message
	answerIndex int
}

// history snapshot returns a copy, safe to read without holding the lock.
func (s *turnState) historySnapshot() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// commitTurn appends the user utterance and the assistant's full response to
// history and bumps answerIndex, returning its new value.
func (s *turnState) commitTurn(userText, assistantText string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		types.Message{Role: types.RoleUser, Content: userText},
		types.Message{Role: types.RoleAssistant, Content: assistantText},
	)
	s.answerIndex++
	return s.answerIndex
}

// trimmedNonEmpty reports whether text has any non-whitespace content, used
// to decide whether a STT final should be queued to the LLM worker.
func trimmedNonEmpty(text string) bool {
	return strings.TrimSpace(text) != ""
}
