package flow

import (
	"testing"

	"github.com/urman-dev/leadbot/internal/models"
)

func TestNextStageLinearProgression(t *testing.T) {
	cases := []struct {
		current models.Stage
		want    models.Stage
	}{
		{models.StageGreeting, models.StageCollectingArea},
		{models.StageCollectingArea, models.StageCollectingRegion},
		{models.StageCollectingRegion, models.StageCollectingPurpose},
		{models.StageCollectingPurpose, models.StageCollectingStage},
		{models.StageCollectingStage, models.StageCollectingContact},
	}
	for _, c := range cases {
		if got := NextStage(c.current, "любой текст"); got != c.want {
			t.Errorf("NextStage(%s) = %s, want %s", c.current, got, c.want)
		}
	}
}

func TestNextStageContactSelfLoop(t *testing.T) {
	if got := NextStage(models.StageCollectingContact, "позвоните мне"); got != models.StageCollectingContact {
		t.Errorf("expected contact stage to loop without a phone number, got %s", got)
	}
	if got := NextStage(models.StageCollectingContact, "89991234567"); got != models.StageCompleted {
		t.Errorf("expected contact stage to complete on a phone number, got %s", got)
	}
}

func TestNextStageCompletedIsAbsorbing(t *testing.T) {
	if got := NextStage(models.StageCompleted, "89991234567"); got != models.StageCompleted {
		t.Errorf("completed stage must not transition, got %s", got)
	}
}

func TestLooksLikePhone(t *testing.T) {
	cases := []struct {
		utterance string
		want      bool
	}{
		{"89991234567", true},
		{"+7 (999) 123-45-67", true},
		{"мой номер 8 999 123 45 67", true},
		{"9991234567", true},
		{"позвоните мне", false},
		{"12345", false},
		{"123456789012", false},
		{"", false},
	}
	for _, c := range cases {
		if got := LooksLikePhone(c.utterance); got != c.want {
			t.Errorf("LooksLikePhone(%q) = %v, want %v", c.utterance, got, c.want)
		}
	}
}

func TestFallbackQuestionCoverage(t *testing.T) {
	for _, stage := range stageOrder {
		question := FallbackQuestion(stage)
		if stage == models.StageCompleted {
			if question != "" {
				t.Errorf("completed stage should have no fallback question, got %q", question)
			}
			continue
		}
		if question == "" {
			t.Errorf("stage %s has no fallback question", stage)
		}
	}
}
