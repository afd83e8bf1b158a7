package scoring

import (
	"regexp"
	"strings"

	"github.com/libelia/libelia/internal/model"
)

var (
	choiceWithSeparator = regexp.MustCompile(`^([A-E])(?:[).:(\s]|$)`)
	bareChoice          = regexp.MustCompile(`^[A-E]`)
	trueFalse           = regexp.MustCompile(`^[VF]`)
	digitRun            = regexp.MustCompile(`\d+`)
	fallbackLetter      = regexp.MustCompile(`^[A-F]`)
	fallbackDigits      = regexp.MustCompile(`^\d+`)
	numericID           = regexp.MustCompile(`^\d+$`)
)

// InferKind guesses an item's kind from its id: "SM" or a bare number is
// multiple choice, "VF" true/false and "TP" pairing.
func InferKind(itemID string) model.ItemKind {
	id := strings.ToUpper(strings.TrimSpace(itemID))
	switch {
	case strings.Contains(id, "SM"), numericID.MatchString(id):
		return model.KindMultipleChoice
	case strings.Contains(id, "VF"):
		return model.KindTrueFalse
	case strings.Contains(id, "TP"):
		return model.KindPairing
	}
	return model.KindInferred
}

// Normalize reduces a raw OCR token to the canonical answer used for exact
// matching. kind may be model.KindInferred, in which case it is derived from
// itemID. The result is model.NoAnswer when nothing usable is found.
func Normalize(rawText, itemID string, kind model.ItemKind) (string, model.Confidence) {
	text := strings.ToUpper(strings.TrimSpace(rawText))
	if text == "" || text == model.NoAnswer {
		return model.NoAnswer, model.ConfidenceLow
	}
	if kind == model.KindInferred {
		kind = InferKind(itemID)
	}

	switch kind {
	case model.KindMultipleChoice:
		if m := choiceWithSeparator.FindStringSubmatch(text); m != nil {
			return m[1], model.ConfidenceHigh
		}
		if bareChoice.MatchString(text) {
			// Anything longer than "AB" is likely a restated sentence.
			if len([]rune(text))-1 > 1 {
				return text[:1], model.ConfidenceLow
			}
			return text[:1], model.ConfidenceHigh
		}
	case model.KindTrueFalse:
		if trueFalse.MatchString(text) {
			if len(text) == 1 {
				return text, model.ConfidenceHigh
			}
			return text[:1], model.ConfidenceLow
		}
	case model.KindPairing:
		if d := digitRun.FindString(text); d != "" {
			return d, model.ConfidenceHigh
		}
	}

	if fallbackLetter.MatchString(text) {
		return text[:1], model.ConfidenceLow
	}
	if d := fallbackDigits.FindString(text); d != "" {
		return d, model.ConfidenceLow
	}
	return model.NoAnswer, model.ConfidenceLow
}

// NormalizeAnswer builds an ExtractedAnswer for one item.
func NormalizeAnswer(itemID, rawText string, kind model.ItemKind) model.ExtractedAnswer {
	text, conf := Normalize(rawText, itemID, kind)
	return model.ExtractedAnswer{
		ItemID:         itemID,
		RawText:        rawText,
		NormalizedText: text,
		Confidence:     conf,
	}
}
