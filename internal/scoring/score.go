package scoring

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidScore is returned for a development score that is neither "o/m" nor a number.
var ErrInvalidScore = errors.New("invalid score")

// ParseScoreFraction parses an LLM score string such as "3/4" or "2,5 / 4".
// A bare number yields max 0, meaning the maximum is unknown.
func ParseScoreFraction(s string) (obtained, maxScore float64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidScore)
	}
	left, right, hasMax := strings.Cut(s, "/")
	obtained, err = parseDecimal(left)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidScore, s)
	}
	if !hasMax {
		return obtained, 0, nil
	}
	maxScore, err = parseDecimal(right)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidScore, s)
	}
	return obtained, maxScore, nil
}

// parseDecimal accepts finite numbers only; ParseFloat also reads "NaN" and "Inf".
func parseDecimal(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidScore
	}
	return v, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
