// Package scoring turns extracted answers, an answer key and a rubric into a
// score and a grade on the 1.0-7.0 scale. Everything here is pure and
// synchronous; callers fetch OCR text and LLM output before calling in.
package scoring

import (
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/libelia/libelia/internal/model"
)

var (
	developmentNameRegex = regexp.MustCompile(`(?i)desarrollo`)
	developmentIDRegex   = regexp.MustCompile(`(?i)^p\d+`)
)

// IsDevelopmentID reports whether an item id follows the open-response naming convention.
func IsDevelopmentID(id string) bool {
	return developmentNameRegex.MatchString(id) || developmentIDRegex.MatchString(id)
}

// ParseRubric parses "id:maxScore;id:maxScore". Entries whose score is not a
// positive integer, or whose id is empty or repeated, are skipped.
func ParseRubric(text string) []model.RubricItem {
	var items []model.RubricItem
	seen := make(map[string]bool)
	for _, e := range splitEntries(text) {
		score, err := strconv.Atoi(e.value)
		if err != nil || score <= 0 {
			slog.Debug("skipping rubric entry", "id", e.id, "value", e.value)
			continue
		}
		if seen[e.id] {
			slog.Warn("duplicate rubric item ignored", "id", e.id)
			continue
		}
		seen[e.id] = true
		items = append(items, model.RubricItem{
			ID:            e.id,
			MaxScore:      score,
			IsDevelopment: IsDevelopmentID(e.id),
		})
	}
	return items
}

// ParseAnswerKey parses "id:answer;id:answer". Answers are upper-cased and
// otherwise kept verbatim; pairing items may carry numbers.
func ParseAnswerKey(text string) model.AnswerKey {
	key := make(model.AnswerKey)
	for _, e := range splitEntries(text) {
		if e.value == "" {
			continue
		}
		if _, dup := key[e.id]; dup {
			continue
		}
		key[e.id] = strings.ToUpper(e.value)
	}
	return key
}

// FormatRubric renders items back into the semicolon format.
func FormatRubric(items []model.RubricItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.ID+":"+strconv.Itoa(it.MaxScore))
	}
	return strings.Join(parts, ";")
}

// FormatAnswerKey renders a key in the semicolon format, sorted by item id.
func FormatAnswerKey(key model.AnswerKey) string {
	ids := make([]string, 0, len(key))
	for id := range key {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+":"+key[id])
	}
	return strings.Join(parts, ";")
}

// RubricTotal sums the max scores of all items.
func RubricTotal(items []model.RubricItem) int {
	total := 0
	for _, it := range items {
		total += it.MaxScore
	}
	return total
}

type entry struct {
	id    string
	value string
}

// splitEntries splits on ";" and then on the first ":" of each entry.
func splitEntries(text string) []entry {
	var out []entry
	for _, raw := range strings.Split(text, ";") {
		id, value, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, entry{id: id, value: strings.TrimSpace(value)})
	}
	return out
}
