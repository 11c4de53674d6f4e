package flow

import (
	"regexp"
	"strings"

	"github.com/urman-dev/leadbot/internal/models"
)

// nameTokenPattern matches a single capitalized Cyrillic or Latin word, the
// shape a name token takes in free text.
var nameTokenPattern = regexp.MustCompile(`^(?:[А-ЯЁ][а-яё]+|[A-Z][a-z]+)$`)

const tokenTrimCutset = ".,!?:;«»\"'()"

// ExtractName pulls a probable name from an utterance: the first capitalized
// word, joined with an immediately following capitalized word when present
// (first name plus surname). Returns "" when nothing matches.
func ExtractName(utterance string) string {
	tokens := strings.Fields(utterance)
	for i, token := range tokens {
		word := strings.Trim(token, tokenTrimCutset)
		if !nameTokenPattern.MatchString(word) {
			continue
		}
		if i+1 < len(tokens) {
			next := strings.Trim(tokens[i+1], tokenTrimCutset)
			if nameTokenPattern.MatchString(next) {
				return word + " " + next
			}
		}
		return word
	}
	return ""
}

// ExtractFields updates the lead fields from one utterance, according to the
// stage the conversation was in when the utterance arrived. Utterances are
// stored verbatim for all fields except the name, which is token-matched.
// Set fields are never cleared; only the tentative contact may be rewritten
// while the contact stage loops.
func ExtractFields(stage models.Stage, utterance string, fields *models.LeadFields) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return
	}

	switch stage {
	case models.StageGreeting:
		if fields.Name == "" {
			if name := ExtractName(utterance); name != "" {
				fields.Name = name
			}
		}
	case models.StageCollectingArea:
		if fields.Area == "" {
			fields.Area = utterance
		}
	case models.StageCollectingRegion:
		if fields.Region == "" {
			fields.Region = utterance
		}
	case models.StageCollectingPurpose:
		if fields.Purpose == "" {
			fields.Purpose = utterance
		}
	case models.StageCollectingStage:
		if fields.Phase == "" {
			fields.Phase = utterance
		}
	case models.StageCollectingContact:
		fields.Contact = utterance
	}
}
