// Package state holds the per-session conversation memory: structured
// project facts, a rolling summary and a bounded transcript tail. It is
// pure in-memory and never shared across sessions.
package state

import (
	"fmt"
	"strings"
	"time"
)

// NTail bounds the transcript tail retained for prompt context.
const NTail = 12

// Speaker identifies who produced a transcript-tail entry.
type Speaker string

const (
	SpeakerUser   Speaker = "user"
	SpeakerBob    Speaker = "bob"
	SpeakerAlice  Speaker = "alice"
	SpeakerSystem Speaker = "system"
)

// TranscriptEntry is one retained turn of the conversation.
type TranscriptEntry struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// Project holds the structured facts extracted from the conversation.
type Project struct {
	Room            string
	Budget          string
	Timeline        string
	DIYOrContractor string
	Goals           []string
	Constraints     []string
}

// ConversationState is the structured memory for one session.
type ConversationState struct {
	Project            Project
	OpenQuestions      []string
	Risks              []string
	Decisions          []string
	MaterialsDiscussed []string
	Summary            string
	TranscriptTail     []TranscriptEntry
	AgentSeen          map[string]bool
}

// New returns an empty ConversationState ready for use.
func New() *ConversationState {
	return &ConversationState{AgentSeen: make(map[string]bool)}
}

// Snapshot is the frozen view handed to prompt assembly and to the client
// as part of a state_update event.
type Snapshot struct {
	Project            Project           `json:"project"`
	OpenQuestions      []string          `json:"open_questions"`
	Risks              []string          `json:"risks"`
	Decisions          []string          `json:"decisions"`
	MaterialsDiscussed []string          `json:"materials_discussed"`
	Summary            string            `json:"summary"`
	RecentTranscript   []TranscriptEntry `json:"recent_transcript"`
	AgentSeen          []string          `json:"agent_seen"`
}

// AppendTurn appends one transcript-tail entry, evicting the oldest entry
// once the tail exceeds NTail.
func (s *ConversationState) AppendTurn(speaker Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.TranscriptTail = append(s.TranscriptTail, TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if over := len(s.TranscriptTail) - NTail; over > 0 {
		s.TranscriptTail = s.TranscriptTail[over:]
	}
}

// MarkAgentSeen records that a persona has greeted the user, so its system
// prompt need not reintroduce it on a later transfer back.
func (s *ConversationState) MarkAgentSeen(agentID string) {
	if s.AgentSeen == nil {
		s.AgentSeen = make(map[string]bool)
	}
	s.AgentSeen[agentID] = true
}

// UpdateFromUser runs the extraction heuristics against a user utterance
// and folds any new facts into the project.
func (s *ConversationState) UpdateFromUser(text string) {
	lower := strings.ToLower(text)

	if s.Project.Room == "" {
		if room := extractRoom(lower); room != "" {
			s.Project.Room = room
		}
	}
	if s.Project.Budget == "" {
		if budget := extractBudget(text); budget != "" {
			s.Project.Budget = budget
		}
	}
	if s.Project.Timeline == "" {
		if timeline := extractTimeline(lower); timeline != "" {
			s.Project.Timeline = timeline
		}
	}
	if s.Project.DIYOrContractor == "" {
		if d := extractDIYOrContractor(lower); d != "" {
			s.Project.DIYOrContractor = d
		}
	}
	for _, goal := range extractGoals(text) {
		s.Project.Goals = appendUnique(s.Project.Goals, goal, 8)
	}

	s.regenerateSummary()
}

// UpdateFromAgent scans a completed agent reply for risk phrases.
func (s *ConversationState) UpdateFromAgent(text string) {
	lower := strings.ToLower(text)
	for _, risk := range extractRisks(lower) {
		s.Risks = appendUniqueUnbounded(s.Risks, risk)
	}
	s.regenerateSummary()
}

// RenderContext produces the frozen snapshot used to build LLM prompts.
func (s *ConversationState) RenderContext() Snapshot {
	agentSeen := make([]string, 0, len(s.AgentSeen))
	for id, seen := range s.AgentSeen {
		if seen {
			agentSeen = append(agentSeen, id)
		}
	}
	tail := make([]TranscriptEntry, len(s.TranscriptTail))
	copy(tail, s.TranscriptTail)

	return Snapshot{
		Project:            s.Project,
		OpenQuestions:      append([]string(nil), s.OpenQuestions...),
		Risks:              append([]string(nil), s.Risks...),
		Decisions:          append([]string(nil), s.Decisions...),
		MaterialsDiscussed: append([]string(nil), s.MaterialsDiscussed...),
		Summary:            s.Summary,
		RecentTranscript:   tail,
		AgentSeen:          agentSeen,
	}
}

// regenerateSummary rebuilds the rolling summary from the fixed template:
// "Renovating {room}, budget {budget}, wants: {goals…}. risks: {risks…}."
func (s *ConversationState) regenerateSummary() {
	room := s.Project.Room
	if room == "" {
		room = "unspecified space"
	}
	budget := s.Project.Budget
	if budget == "" {
		budget = "unspecified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Renovating %s, budget %s", room, budget)
	if len(s.Project.Goals) > 0 {
		fmt.Fprintf(&b, ", wants: %s", strings.Join(s.Project.Goals, ", "))
	}
	b.WriteString(".")
	if len(s.Risks) > 0 {
		fmt.Fprintf(&b, " risks: %s.", strings.Join(s.Risks, ", "))
	}

	summary := b.String()
	if len(summary) > 240 {
		summary = summary[:240]
	}
	s.Summary = summary
}

func appendUnique(list []string, item string, max int) []string {
	item = strings.TrimSpace(item)
	if item == "" || len(list) >= max {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, item) {
			return list
		}
	}
	return append(list, item)
}

func appendUniqueUnbounded(list []string, item string) []string {
	item = strings.TrimSpace(item)
	if item == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, item) {
			return list
		}
	}
	return append(list, item)
}
