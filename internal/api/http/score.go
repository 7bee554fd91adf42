package http

import (
	"errors"
	"net/http"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/httpx/req"
	"github.com/mind-engage/markingsheet/internal/scoring"
)

// ScoreHandler scores a raw {"checklist_items", "responses",
// "passing_score"} document without touching storage.
func ScoreHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := req.Body(r)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		res, err := scoring.CalculateJSON(raw)
		if errors.Is(err, scoring.ErrInvalidInput) {
			reply.Error(r.Context(), w, apperr.Wrap(err, apperr.CodeInvalidArgument, err.Error()))
			return
		}
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, res)
	}
}
