// Package flow implements the lead-qualification conversation: the stage
// state machine, field extraction, retrieval-augmented response generation,
// and the one-time hand-off to the task tracker.
package flow

import (
	"regexp"

	"github.com/urman-dev/leadbot/internal/models"
)

// stageOrder is the linear progression of qualification stages.
var stageOrder = []models.Stage{
	models.StageGreeting,
	models.StageCollectingArea,
	models.StageCollectingRegion,
	models.StageCollectingPurpose,
	models.StageCollectingStage,
	models.StageCollectingContact,
	models.StageCompleted,
}

// fallbackQuestions are the canned questions per non-terminal stage, used as
// a deterministic backstop when the generated reply does not ask anything.
var fallbackQuestions = map[models.Stage]string{
	models.StageGreeting:          "Как я могу к вам обращаться?",
	models.StageCollectingArea:    "Подскажите, пожалуйста, какая площадь лесного участка вас интересует?",
	models.StageCollectingRegion:  "В каком регионе находится ваш участок?",
	models.StageCollectingPurpose: "Какова цель освоения участка?",
	models.StageCollectingStage:   "На каком этапе сейчас находится ваш проект?",
	models.StageCollectingContact: "Оставьте, пожалуйста, номер телефона, чтобы наш специалист связался с вами.",
}

var (
	phoneFormattingPattern = regexp.MustCompile(`[\s()+\-.]`)
	digitRunPattern        = regexp.MustCompile(`[0-9]+`)
)

// LooksLikePhone reports whether the utterance contains a contiguous run of
// 10 or 11 digits once formatting characters are stripped. Kept as a separate
// predicate so locale variants can be swapped without touching the machine.
func LooksLikePhone(utterance string) bool {
	cleaned := phoneFormattingPattern.ReplaceAllString(utterance, "")
	for _, run := range digitRunPattern.FindAllString(cleaned, -1) {
		if len(run) == 10 || len(run) == 11 {
			return true
		}
	}
	return false
}

// NextStage is the pure transition function of the stage machine. Stages
// advance linearly; StageCollectingContact self-loops until the utterance
// passes the phone predicate; StageCompleted is absorbing.
func NextStage(current models.Stage, utterance string) models.Stage {
	switch current {
	case models.StageCompleted:
		return models.StageCompleted
	case models.StageCollectingContact:
		if LooksLikePhone(utterance) {
			return models.StageCompleted
		}
		return models.StageCollectingContact
	}

	for i, stage := range stageOrder {
		if stage == current && i+1 < len(stageOrder) {
			return stageOrder[i+1]
		}
	}
	return current
}

// FallbackQuestion returns the canned question for a stage, or the empty
// string for StageCompleted.
func FallbackQuestion(stage models.Stage) string {
	return fallbackQuestions[stage]
}
