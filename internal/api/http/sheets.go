package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/auth"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/httpx/req"
	"github.com/mind-engage/markingsheet/internal/logging"
	"github.com/mind-engage/markingsheet/internal/metrics"
	"github.com/mind-engage/markingsheet/internal/ratelimit"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

// ListPublicSheetsHandler lists enabled sheets without their checklists.
func ListPublicSheetsHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context(), sheet.ListOpts{})
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, lo.Map(list, func(s sheet.Sheet, _ int) sheet.Sheet { return s.Summary() }))
	}
}

type unlockResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int         `json:"expires_in"`
	Sheet       sheet.Sheet `json:"sheet"`
}

// UnlockSheetHandler checks a sheet password and returns a sheet token
// along with the full checklist. A nil limiter disables attempt limits.
func UnlockSheetHandler(store sheet.Store, a *auth.AuthService, limiter ratelimit.Limiter, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "sheetID")
		if limiter != nil {
			ok, err := limiter.Allow(ctx, clientIP(r)+":"+id)
			if err != nil {
				// fail open; the password check still applies
				logging.FromContext(ctx).Warn("unlock rate limit unavailable", zap.Error(err))
			} else if !ok {
				m.SheetUnlocks.WithLabelValues("limited").Inc()
				reply.Error(ctx, w, apperr.TooManyRequests("Too many password attempts. Please try again later."))
				return
			}
		}
		var in struct {
			Password string `json:"password" validate:"required"`
		}
		if err := req.Read(r, &in); err != nil {
			reply.Error(ctx, w, apperr.Invalid("Please enter the password"))
			return
		}

		ok, err := store.VerifyPassword(ctx, id, in.Password)
		if err != nil {
			m.SheetUnlocks.WithLabelValues("error").Inc()
			reply.Error(ctx, w, err)
			return
		}
		if !ok {
			m.SheetUnlocks.WithLabelValues("denied").Inc()
			reply.Error(ctx, w, apperr.Unauthorized("Incorrect password. Please contact your administrator for the correct password."))
			return
		}
		m.SheetUnlocks.WithLabelValues("granted").Inc()

		sh, err := store.Get(ctx, id)
		if err != nil {
			reply.Error(ctx, w, err)
			return
		}
		tok, err := a.IssueSheetToken(id)
		if err != nil {
			reply.Error(ctx, w, apperr.Internal(err, "issue token"))
			return
		}
		reply.JSON(ctx, w, http.StatusOK, unlockResponse{
			AccessToken: tok,
			ExpiresIn:   int(a.SheetTTL().Seconds()),
			Sheet:       sh,
		})
	}
}

func ListSheetsHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.List(r.Context(), sheet.ListOpts{IncludeDisabled: true})
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, list)
	}
}

func GetSheetHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := store.Get(r.Context(), chi.URLParam(r, "sheetID"))
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, sh)
	}
}

func CreateSheetHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d sheet.Draft
		if err := req.Read(r, &d); err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		sh, err := store.Create(r.Context(), d)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusCreated, sh)
	}
}

func UpdateSheetHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var d sheet.Draft
		if err := req.Read(r, &d); err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		sh, err := store.Update(r.Context(), chi.URLParam(r, "sheetID"), d)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, sh)
	}
}

func DeleteSheetHandler(store sheet.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), chi.URLParam(r, "sheetID")); err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.NoContent(w)
	}
}
