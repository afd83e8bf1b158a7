// Package views renders HTML pages.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/libelia/libelia/internal/i18n"
	"github.com/libelia/libelia/internal/model"
)

const reportStyle = `body{font-family:system-ui,sans-serif;max-width:56rem;margin:2rem auto;color:#222}
table{border-collapse:collapse;width:100%;margin-bottom:1.5rem}
th,td{border:1px solid #ccc;padding:.35rem .5rem;text-align:left}
th{background:#f3f3f3}.ok{color:#1a7f37}.bad{color:#b42318}.review{background:#fff6d6}
.grade{font-size:2rem;font-weight:bold}`

// ReportPage renders the grade report of one stored evaluation.
func ReportPage(e model.Evaluation) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t := func(id string) string { return templ.EscapeString(appI18n.T(ctx, id)) }
		resp := e.Response
		var b strings.Builder

		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		b.WriteString(t("ReportTitle"))
		b.WriteString(`</title><style>` + reportStyle + `</style></head><body>`)
		fmt.Fprintf(&b, `<h1>%s</h1>`, t("ReportTitle"))

		b.WriteString(`<table>`)
		row := func(label, value string) {
			fmt.Fprintf(&b, `<tr><th>%s</th><td>%s</td></tr>`, label, templ.EscapeString(value))
		}
		row(t("Student"), e.StudentName)
		row(t("Subject"), e.Subject)
		row(t("Date"), e.CreatedAt.Format("2006-01-02 15:04"))
		row(t("Score"), appI18n.Td(ctx, "ScoreOf", map[string]any{
			"Obtained": model.FormatPoints(e.Score),
			"Max":      model.FormatPoints(e.MaxScore),
		}))
		row(t("ApprovalPoints"), model.FormatPoints(resp.ApprovalPoints))
		b.WriteString(`</table>`)

		status, class := "Approved", "ok"
		if resp.Grade < 4.0 {
			status, class = "NotApproved", "bad"
		}
		fmt.Fprintf(&b, `<p>%s: <span class="grade %s">%.1f</span> (%s)</p>`, t("Grade"), class, resp.Grade, t(status))

		if n := reviewCount(resp); n > 0 {
			fmt.Fprintf(&b, `<p class="review">%s</p>`, templ.EscapeString(appI18n.Tp(ctx, "ReviewCount", n)))
		}

		if len(resp.Alternatives) > 0 {
			fmt.Fprintf(&b, `<h2>%s</h2><table><tr><th>%s</th><th>%s</th><th>%s</th><th>%s</th></tr>`,
				t("ObjectiveItems"), t("Question"), t("StudentAnswer"), t("CorrectAnswer"), t("Points"))
			for _, a := range resp.Alternatives {
				attr := ""
				if a.NeedsReview {
					attr = ` class="review"`
				}
				mark := `<span class="bad">✗</span>`
				if a.Correct {
					mark = `<span class="ok">✓</span>`
				}
				fmt.Fprintf(&b, `<tr%s><td>%s</td><td>%s</td><td>%s</td><td>%s %s/%s</td></tr>`,
					attr,
					templ.EscapeString(a.Question),
					templ.EscapeString(a.StudentAnswer),
					templ.EscapeString(a.CorrectAnswer),
					mark, model.FormatPoints(a.Points), model.FormatPoints(a.MaxPoints))
			}
			b.WriteString(`</table>`)
		}

		if len(resp.Development) > 0 {
			fmt.Fprintf(&b, `<h2>%s</h2><table><tr><th>%s</th><th>%s</th><th>%s</th></tr>`,
				t("DevelopmentItems"), t("Question"), t("Points"), t("Feedback"))
			for _, d := range resp.Development {
				fmt.Fprintf(&b, `<tr><td>%s</td><td>%s</td><td>%s</td></tr>`,
					templ.EscapeString(d.ItemID), templ.EscapeString(d.Score), templ.EscapeString(d.Feedback))
			}
			b.WriteString(`</table>`)
		}

		if resp.GeneralFeedback != "" {
			fmt.Fprintf(&b, `<h2>%s</h2><p>%s</p>`, t("GeneralFeedback"), templ.EscapeString(resp.GeneralFeedback))
		}
		if len(resp.Warnings) > 0 {
			fmt.Fprintf(&b, `<h2>%s</h2><ul>`, t("Warnings"))
			for _, warn := range resp.Warnings {
				fmt.Fprintf(&b, `<li>%s</li>`, templ.EscapeString(warn))
			}
			b.WriteString(`</ul>`)
		}
		b.WriteString(`</body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func reviewCount(resp model.GradingResponse) int {
	n := 0
	for _, a := range resp.Alternatives {
		if a.NeedsReview {
			n++
		}
	}
	return n
}
