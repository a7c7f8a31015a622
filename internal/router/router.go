// Package router decides whether a user utterance is asking for a
// transfer between the intake persona and the technical specialist.
package router

import "regexp"

// AgentID identifies a persona.
type AgentID string

const (
	Bob   AgentID = "bob"
	Alice AgentID = "alice"
)

var toAlicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)transfer.*alice`),
	regexp.MustCompile(`(?i)(let me |can i )?talk to alice`),
	regexp.MustCompile(`(?i)bring (in )?alice`),
	regexp.MustCompile(`(?i)switch.*alice`),
	regexp.MustCompile(`(?i)(go )?(back )?to alice`),
}

var toBobPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(go )?back.*bob`),
	regexp.MustCompile(`(?i)switch.*bob`),
	regexp.MustCompile(`(?i)(let me |can i )?talk to bob`),
	regexp.MustCompile(`(?i)transfer.*bob`),
	regexp.MustCompile(`(?i)bring (in )?bob`),
}

// Route inspects text for a transfer request and returns the target
// persona. It returns current unchanged when no pattern matches, when
// the text requests the agent already active, or when patterns for
// both personas match the same utterance (ambiguous).
func Route(text string, current AgentID) AgentID {
	wantsAlice := matchesAny(toAlicePatterns, text)
	wantsBob := matchesAny(toBobPatterns, text)

	if wantsAlice == wantsBob {
		// Neither matched, or both did: no unambiguous transfer signal.
		return current
	}
	if wantsAlice {
		return Alice
	}
	return Bob
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
