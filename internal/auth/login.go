package auth

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/httpx/req"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// LocalAdmin is the single administrator credential from configuration.
type LocalAdmin struct {
	User     string
	PassHash string // bcrypt
}

// LoginHandler serves POST /auth/login {"username": "...", "password": "..."}.
func LoginHandler(a *AuthService, admin LocalAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		if err := req.Read(r, &in); err != nil {
			reply.Error(r.Context(), w, err)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(in.Username), []byte(admin.User)) == 1
		passOK := bcrypt.CompareHashAndPassword([]byte(admin.PassHash), []byte(in.Password)) == nil
		if !userOK || !passOK {
			reply.Error(r.Context(), w, apperr.Unauthorized("invalid credentials"))
			return
		}

		tok, err := a.IssueJWT(in.Username, RoleAdmin, "")
		if err != nil {
			reply.Error(r.Context(), w, apperr.Internal(err, "issue token"))
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, tokenResponse{
			AccessToken: tok,
			TokenType:   "Bearer",
			ExpiresIn:   int(a.adminTTL.Seconds()),
		})
	}
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASS_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
