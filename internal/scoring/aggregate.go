package scoring

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/libelia/libelia/internal/model"
)

// Aggregate scores deduplicated answers against the key and adds the clamped
// development scores. The first occurrence of an item id wins.
//
// maxTotal is declaredTotal unless the rubric sums to a different positive
// value, in which case the rubric sum is used and a warning is recorded.
func Aggregate(answers []model.ExtractedAnswer, key model.AnswerKey, rubric []model.RubricItem, dev []model.DevelopmentScore, declaredTotal float64) model.ScoreResult {
	res := model.ScoreResult{MaxTotal: finite(declaredTotal)}

	seen := make(map[string]bool, len(answers))
	for _, a := range answers {
		if seen[a.ItemID] {
			slog.Warn("duplicate answer ignored", "item", a.ItemID, "text", a.NormalizedText)
			continue
		}
		seen[a.ItemID] = true

		maxScore := 1.0
		if m, ok := lookupMax(a.ItemID, rubric, false); ok {
			maxScore = float64(m)
		}
		correct, _ := lookupAnswer(a.ItemID, key)
		given := strings.ToUpper(a.NormalizedText)
		s := model.ObjectiveScore{
			Answer:        a,
			CorrectAnswer: correct,
			Correct:       correct != "" && given != "" && given == correct,
			MaxScore:      maxScore,
		}
		if s.Correct {
			s.Points = maxScore
			res.ObtainedTotal += maxScore
		}
		res.Objective = append(res.Objective, s)
	}

	seen = make(map[string]bool, len(dev))
	for _, d := range dev {
		if seen[d.ItemID] {
			slog.Warn("duplicate development score ignored", "item", d.ItemID)
			continue
		}
		seen[d.ItemID] = true

		if m, ok := lookupMax(d.ItemID, rubric, true); ok {
			d.MaxScore = float64(m)
		}
		d.MaxScore = max(finite(d.MaxScore), 0)
		d.ObtainedScore = min(max(finite(d.ObtainedScore), 0), d.MaxScore)
		res.ObtainedTotal += d.ObtainedScore
		res.Development = append(res.Development, d)
	}

	if sum := float64(RubricTotal(rubric)); sum > 0 && sum != declaredTotal {
		slog.Warn("rubric total differs from declared total, using rubric", "declared", declaredTotal, "rubric", sum)
		res.Warnings = append(res.Warnings, fmt.Sprintf("puntaje total declarado %s reemplazado por la suma de la pauta %s",
			model.FormatPoints(declaredTotal), model.FormatPoints(sum)))
		res.MaxTotal = sum
		res.TotalOverridden = true
	}
	return res
}

// lookupMax finds an item's max score: exact id first, then case-insensitive
// containment in either direction, preferring items of the same class.
func lookupMax(id string, rubric []model.RubricItem, development bool) (int, bool) {
	for _, it := range rubric {
		if it.ID == id {
			return it.MaxScore, true
		}
	}
	needle := strings.ToUpper(strings.TrimSpace(id))
	if needle == "" {
		return 0, false
	}
	contains := func(it model.RubricItem) bool {
		hay := strings.ToUpper(it.ID)
		return strings.Contains(hay, needle) || strings.Contains(needle, hay)
	}
	for _, it := range rubric {
		if it.IsDevelopment == development && contains(it) {
			return it.MaxScore, true
		}
	}
	for _, it := range rubric {
		if contains(it) {
			return it.MaxScore, true
		}
	}
	return 0, false
}

func lookupAnswer(id string, key model.AnswerKey) (string, bool) {
	if v, ok := key[id]; ok {
		return v, true
	}
	for k, v := range key {
		if strings.EqualFold(k, id) {
			return v, true
		}
	}
	return "", false
}
