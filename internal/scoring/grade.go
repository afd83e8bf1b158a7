package scoring

import (
	"math"

	"github.com/libelia/libelia/internal/model"
)

const (
	minGrade      = 1.0
	passGrade     = 4.0
	maxGrade      = 7.0
	ceilTolerance = 1e-9
)

// ApprovalPoints is the passing threshold, rounded up to a whole point and
// never above maxTotal. Floating error below ceilTolerance is ignored so
// 6*0.6 gives 4, not 5.
func ApprovalPoints(maxTotal, approvalPercent float64) float64 {
	if maxTotal <= 0 || approvalPercent <= 0 {
		return 0
	}
	return min(math.Ceil(maxTotal*min(approvalPercent, 100)/100-ceilTolerance), maxTotal)
}

// CalculateGrade maps obtained points onto the 1.0-7.0 scale. Scores up to
// the approval threshold map linearly onto [1.0, 4.0], scores above it onto
// (4.0, 7.0]. The result is rounded to one decimal.
func CalculateGrade(obtained, maxTotal, approvalPercent float64) model.GradeResult {
	res := model.GradeResult{MaxPoints: maxTotal, Grade: minGrade}
	if maxTotal <= 0 || approvalPercent <= 0 {
		return res
	}
	approval := ApprovalPoints(maxTotal, approvalPercent)
	res.ApprovalPoints = approval
	if obtained <= 0 {
		return res
	}

	var grade float64
	if obtained <= approval {
		grade = min(minGrade+3.0*(obtained/approval), passGrade)
	} else {
		remaining := maxTotal - approval
		if remaining <= 0 {
			res.Grade = maxGrade
			return res
		}
		grade = passGrade + 3.0*((obtained-approval)/remaining)
	}
	res.Grade = roundTenth(min(max(grade, minGrade), maxGrade))
	return res
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
