package state

import (
	"regexp"
	"strings"
)

// rooms is the small recognized vocabulary matched against user utterances.
var rooms = []string{
	"kitchen", "bathroom", "bedroom", "living room", "basement", "garage",
	"dining room", "attic", "laundry room", "home office",
}

func extractRoom(lower string) string {
	for _, room := range rooms {
		if strings.Contains(lower, room) {
			return room
		}
	}
	return ""
}

var (
	budgetDollarPattern = regexp.MustCompile(`\$\d+(?:[kK]|,\d{3})?`)
	budgetWordPattern   = regexp.MustCompile(`(?i)\d+\s?(?:k|thousand|dollars)`)
	timelinePattern     = regexp.MustCompile(`(?i)\d+\s?(?:days?|weeks?|months?)`)
)

func extractBudget(text string) string {
	if m := budgetDollarPattern.FindString(text); m != "" {
		return m
	}
	return budgetWordPattern.FindString(text)
}

func extractTimeline(lower string) string {
	return timelinePattern.FindString(lower)
}

var diyKeywords = []string{"myself", "diy", "contractor", "hiring"}

func extractDIYOrContractor(lower string) string {
	for _, kw := range diyKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// Goals are extracted sentence by sentence: find the first verb anchor in
// a sentence, then split everything after it into individual noun-phrase
// snippets on "and"/"," so a list like "new cabinets and countertops"
// yields two goals instead of one run-on phrase.
var sentenceSplitPattern = regexp.MustCompile(`[.;]`)
var goalPartSplitPattern = regexp.MustCompile(`\s+and\s+|,`)

var goalVerbs = []string{
	"want", "wants", "would like", "need", "needs", "add", "install",
	"open up", "replace", "new", "redo", "update", "remodel",
}

func extractGoals(text string) []string {
	var goals []string
	for _, sentence := range sentenceSplitPattern.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)
		for _, verb := range goalVerbs {
			idx := strings.Index(lower, verb)
			if idx < 0 {
				continue
			}
			rest := strings.TrimSpace(sentence[idx+len(verb):])
			rest = strings.TrimPrefix(rest, "to ")
			rest = strings.TrimSpace(rest)
			if rest == "" {
				break
			}
			for _, part := range goalPartSplitPattern.Split(rest, -1) {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				words := strings.Fields(part)
				if len(words) > 6 {
					words = words[:6]
				}
				if goal := strings.Join(words, " "); goal != "" {
					goals = append(goals, goal)
				}
			}
			break
		}
	}
	return goals
}

var riskPhrases = []string{
	"load-bearing", "permit", "inspection", "asbestos", "electrical panel", "structural",
}

func extractRisks(lower string) []string {
	var risks []string
	for _, phrase := range riskPhrases {
		if strings.Contains(lower, phrase) {
			risks = append(risks, phrase)
		}
	}
	return risks
}
