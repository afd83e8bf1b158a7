package handler

import (
	"errors"
	"net/http"

	"github.com/libelia/libelia/internal/handler/views"
	appI18n "github.com/libelia/libelia/internal/i18n"
)

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	e, err := h.getEvaluation(r)
	if err != nil {
		status := statusFor(err)
		msg := err.Error()
		if errors.Is(err, errNotFound) {
			msg = appI18n.T(r.Context(), "EvaluationNotFound")
		}
		http.Error(w, msg, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	logRenderError(views.ReportPage(*e).Render(r.Context(), w))
}
