package auth

import (
	"net/http"
	"strings"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/rbac"
)

const (
	AccessTokenCookie = "ms_access_token"
	SheetTokenHeader  = "X-Sheet-Token"
)

// JWTMiddleware requires an API token in the Authorization header or the
// access token cookie and puts its subject and role in the context.
func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				reply.Error(r.Context(), w, apperr.Unauthorized("missing bearer token"))
				return
			}
			c, err := a.Parse(tok)
			if err != nil {
				reply.Error(r.Context(), w, apperr.Wrap(err, apperr.CodeUnauthorized, "invalid or expired token"))
				return
			}
			ctx := rbac.WithRole(WithSubject(r.Context(), c.Subject), c.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSheetToken admits requests carrying a sheet token for the sheet
// named by sheetID(r). Admin API tokens are accepted for any sheet.
func RequireSheetToken(a *AuthService, sheetID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sheetID(r)
			if tok := r.Header.Get(SheetTokenHeader); tok != "" {
				c, err := a.ParseSheetToken(tok, id)
				if err != nil {
					reply.Error(r.Context(), w, apperr.Wrap(err, apperr.CodeUnauthorized, "Marking sheet is locked. Please enter the password"))
					return
				}
				ctx := rbac.WithRole(WithSubject(r.Context(), c.Subject), c.Role)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if tok := bearer(r); tok != "" {
				if c, err := a.Parse(tok); err == nil && c.Role == RoleAdmin {
					ctx := rbac.WithRole(WithSubject(r.Context(), c.Subject), c.Role)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			reply.Error(r.Context(), w, apperr.Unauthorized("Marking sheet is locked. Please enter the password"))
		})
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
