package scoring

import (
	"fmt"
	"log/slog"

	"github.com/libelia/libelia/internal/model"
)

// Evaluate grades one request against an LLM evaluation. eval may be nil, in
// which case only the request's rubric and key are considered and every item
// scores zero. defaultApproval is used when the request declares no percent.
func Evaluate(req model.GradingRequest, eval *model.LLMEvaluation, defaultApproval float64) model.GradingResponse {
	if eval == nil {
		eval = &model.LLMEvaluation{}
	}
	rubric := ParseRubric(req.RubricStructured)
	key := ParseAnswerKey(req.AnswerKey)

	var warnings []string
	answers := make([]model.ExtractedAnswer, 0, len(eval.Alternatives))
	llmCorrect := make(map[string]string, len(eval.Alternatives))
	for _, alt := range eval.Alternatives {
		answers = append(answers, NormalizeAnswer(alt.Question, alt.StudentAnswer, model.KindInferred))
		if _, ok := llmCorrect[alt.Question]; !ok {
			llmCorrect[alt.Question] = alt.CorrectAnswer
		}
	}

	dev := make([]model.DevelopmentScore, 0, len(eval.Development))
	for _, d := range eval.Development {
		obtained, maxScore, err := ParseScoreFraction(string(d.Score))
		if err != nil {
			slog.Warn("unparseable development score", "item", d.ItemID, "score", d.Score, "error", err)
			warnings = append(warnings, fmt.Sprintf("puntaje no interpretable para %s: %q", d.ItemID, d.Score))
		}
		dev = append(dev, model.DevelopmentScore{
			ItemID:        d.ItemID,
			ObtainedScore: obtained,
			MaxScore:      maxScore,
			Feedback:      d.Feedback,
		})
	}

	score := Aggregate(answers, key, rubric, dev, req.MaxTotalScore)
	grade := CalculateGrade(score.ObtainedTotal, score.MaxTotal, req.Approval(defaultApproval))
	warnings = append(warnings, score.Warnings...)

	resp := model.GradingResponse{
		Success:         true,
		Score:           model.FormatPoints(score.ObtainedTotal) + "/" + model.FormatPoints(score.MaxTotal),
		Grade:           grade.Grade,
		ApprovalPoints:  grade.ApprovalPoints,
		MaxPoints:       grade.MaxPoints,
		Alternatives:    make([]model.CorrectedAlternative, 0, len(score.Objective)),
		Development:     make(model.DevelopmentResults, 0, len(score.Development)),
		GeneralFeedback: eval.GeneralFeedback,
	}

	for _, o := range score.Objective {
		ca := model.CorrectedAlternative{
			Question:         o.Answer.ItemID,
			StudentAnswer:    o.Answer.RawText,
			NormalizedAnswer: o.Answer.NormalizedText,
			CorrectAnswer:    o.CorrectAnswer,
			Correct:          o.Correct,
			Points:           o.Points,
			MaxPoints:        o.MaxScore,
			Confidence:       o.Answer.Confidence,
			NeedsReview:      o.Answer.Confidence == model.ConfidenceLow,
		}
		if o.CorrectAnswer == "" {
			// Not auto-graded; show what the LLM believed and flag it.
			ca.CorrectAnswer = llmCorrect[o.Answer.ItemID]
			ca.NeedsReview = true
			warnings = append(warnings, fmt.Sprintf("sin clave para %s, no se corrigió automáticamente", o.Answer.ItemID))
		}
		resp.Alternatives = append(resp.Alternatives, ca)
	}

	for _, d := range score.Development {
		resp.Development = append(resp.Development, model.DevelopmentResult{
			ItemID:   d.ItemID,
			Score:    model.FormatPoints(d.ObtainedScore) + "/" + model.FormatPoints(d.MaxScore),
			Obtained: d.ObtainedScore,
			Max:      d.MaxScore,
			Feedback: d.Feedback,
		})
	}

	resp.Warnings = warnings
	return resp
}
