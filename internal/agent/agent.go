// Package agent holds the two conversational personas, assembles LLM
// prompts from conversation state, and generates handoff notes when a
// transfer between personas occurs.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duetvoice/bridge/internal/adapter"
	"github.com/duetvoice/bridge/internal/router"
	"github.com/duetvoice/bridge/internal/state"
)

// Persona is a named system-prompt and voice pair.
type Persona struct {
	ID           router.AgentID
	DisplayName  string
	VoiceID      string
	SystemPrompt string
}

const noReintroductionDirective = "Do not reintroduce yourself; the user already knows who you are."

func personaSystemPrompt(base string, alreadySeen bool) string {
	if alreadySeen {
		return base + "\n" + noReintroductionDirective
	}
	return base
}

// Bob is the intake and planning persona: the first voice a user hears.
var bobBase = "You are Bob, a friendly home renovation intake specialist. " +
	"Gather the homeowner's project basics (room, budget, timeline, DIY or contractor) " +
	"in a warm, concise way. You do not give licensed-professional advice " +
	"(no structural, electrical or plumbing code determinations) — for those, " +
	"offer to bring in Alice, the technical specialist. Keep replies short and actionable."

// Alice is the technical specialist persona, brought in for risk and sequencing detail.
var aliceBase = "You are Alice, a technical renovation specialist. " +
	"You address permits, structural risk, sequencing and material trade-offs " +
	"in plain language, while making clear you are not a substitute for a licensed " +
	"inspector or engineer. Keep replies short and actionable."

// Manager holds the fixed persona set and assembles prompts for the
// active one.
type Manager struct {
	personas map[router.AgentID]Persona
	current  router.AgentID
}

// NewManager returns a manager with both personas registered, starting
// at Bob, using the given voice identifiers (env-configurable).
func NewManager(voiceBob, voiceAlice string) *Manager {
	return &Manager{
		personas: map[router.AgentID]Persona{
			router.Bob: {
				ID:           router.Bob,
				DisplayName:  "Bob",
				VoiceID:      voiceBob,
				SystemPrompt: bobBase,
			},
			router.Alice: {
				ID:           router.Alice,
				DisplayName:  "Alice",
				VoiceID:      voiceAlice,
				SystemPrompt: aliceBase,
			},
		},
		current: router.Bob,
	}
}

// Current returns the active persona.
func (m *Manager) Current() Persona {
	return m.personas[m.current]
}

// Persona looks up a persona by id.
func (m *Manager) Persona(id router.AgentID) Persona {
	return m.personas[id]
}

// Switch sets the active persona. It does not touch agent_seen; the
// caller marks the new persona seen via state.MarkAgentSeen once it has
// actually spoken.
func (m *Manager) Switch(target router.AgentID) {
	m.current = target
}

// HandoffNote is a transient prompt addendum rendered for exactly one
// turn after a transfer, then discarded.
type HandoffNote struct {
	WhatWeKnow       string   `json:"what_we_know"`
	OpenQuestions    []string `json:"open_questions"`
	KnownRisks       []string `json:"known_risks"`
	LastUserMessage  string   `json:"last_user_message"`
	RecommendedFocus string   `json:"recommended_focus"`
}

// BuildHandoffNote produces a pure HandoffNote for a transfer to target.
func BuildHandoffNote(snap state.Snapshot, lastUserText string, target router.AgentID) HandoffNote {
	return HandoffNote{
		WhatWeKnow:        snap.Summary,
		OpenQuestions:     append([]string(nil), snap.OpenQuestions...),
		KnownRisks:        append([]string(nil), snap.Risks...),
		LastUserMessage:   lastUserText,
		RecommendedFocus:  recommendedFocus(target),
	}
}

func recommendedFocus(target router.AgentID) string {
	switch target {
	case router.Alice:
		return "address technical risks, permits, sequencing and material trade-offs"
	case router.Bob:
		return "produce a homeowner-friendly checklist and next steps"
	default:
		return ""
	}
}

func (n HandoffNote) render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Handoff summary: %s\n", n.WhatWeKnow)
	if len(n.OpenQuestions) > 0 {
		fmt.Fprintf(&b, "Open questions: %s\n", strings.Join(n.OpenQuestions, "; "))
	}
	if len(n.KnownRisks) > 0 {
		fmt.Fprintf(&b, "Known risks: %s\n", strings.Join(n.KnownRisks, "; "))
	}
	fmt.Fprintf(&b, "Last user message: %q\n", n.LastUserMessage)
	fmt.Fprintf(&b, "Recommended focus: %s\n", n.RecommendedFocus)
	b.WriteString("Continue immediately. Do not reintroduce yourself.")
	return b.String()
}

// BuildMessages assembles the LLM message list for one turn: persona
// system prompt, a context message carrying the frozen state snapshot,
// an optional handoff-note message, then the user message.
func BuildMessages(persona Persona, alreadySeen bool, snap state.Snapshot, userText string, note *HandoffNote) ([]adapter.Message, error) {
	projectJSON, err := json.Marshal(snap.Project)
	if err != nil {
		return nil, fmt.Errorf("marshal project state: %w", err)
	}

	messages := []adapter.Message{
		{Role: "system", Text: personaSystemPrompt(persona.SystemPrompt, alreadySeen)},
		{Role: "system", Text: renderContext(string(projectJSON), snap)},
	}

	if note != nil {
		messages = append(messages, adapter.Message{Role: "system", Text: note.render()})
	}

	messages = append(messages, adapter.Message{Role: "user", Text: userText})
	return messages, nil
}

func renderContext(projectJSON string, snap state.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", projectJSON)
	fmt.Fprintf(&b, "Summary: %s\n", snap.Summary)
	if len(snap.RecentTranscript) > 0 {
		b.WriteString("Recent transcript:\n")
		for _, entry := range snap.RecentTranscript {
			fmt.Fprintf(&b, "- %s: %s\n", entry.Speaker, entry.Text)
		}
	}
	return b.String()
}
