package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/config"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/logging"
)

const (
	stateCookie    = "ms_oauth_state"
	redirectCookie = "ms_post_auth_redirect"

	googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
)

// Google signs administrators in with their Google account. Only verified
// emails listed in AdminEmails, or any account of the allowed hosted
// domain, are admitted.
type Google struct {
	auth         *AuthService
	oauth        *oauth2.Config
	publicURL    string
	allowedHD    string
	adminEmails  map[string]bool
	tokenInfoURL string
	client       *http.Client
}

func NewGoogle(a *AuthService, cfg config.Config) *Google {
	emails := make(map[string]bool, len(cfg.AdminEmails))
	for _, e := range cfg.AdminEmails {
		emails[strings.ToLower(e)] = true
	}
	return &Google{
		auth: a,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		publicURL:    cfg.PublicURL,
		allowedHD:    cfg.GoogleAllowedHD,
		adminEmails:  emails,
		tokenInfoURL: googleTokenInfoURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// LoginHandler redirects to Google's consent page. The optional ?redirect=
// target must be same-origin with the public URL.
func (g *Google) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := r.URL.Query().Get("redirect")
		if next == "" {
			next = g.home()
		}
		if !g.sameOrigin(next) {
			reply.Error(r.Context(), w, apperr.Invalid("bad redirect"))
			return
		}

		state, err := randomState()
		if err != nil {
			reply.Error(r.Context(), w, apperr.Internal(err, "oauth state"))
			return
		}
		setShortCookie(w, stateCookie, state, true)
		setShortCookie(w, redirectCookie, url.QueryEscape(next), false)

		opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("include_granted_scopes", "true")}
		if g.allowedHD != "" {
			opts = append(opts, oauth2.SetAuthURLParam("hd", g.allowedHD))
		}
		http.Redirect(w, r, g.oauth.AuthCodeURL(state, opts...), http.StatusFound)
	}
}

type tokenInfo struct {
	Iss           string `json:"iss"`
	Aud           string `json:"aud"`
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Hd            string `json:"hd"`
}

// CallbackHandler exchanges the code, verifies the id token, mints an
// admin API token and redirects back with ?access_token=.
func (g *Google) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logging.FromContext(ctx)

		c, err := r.Cookie(stateCookie)
		if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
			reply.Error(ctx, w, apperr.Invalid("invalid oauth state"))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			reply.Error(ctx, w, apperr.Invalid("missing code"))
			return
		}

		tok, err := g.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, g.client), code)
		if err != nil {
			log.Warn("google token exchange failed", zap.Error(err))
			reply.Error(ctx, w, apperr.Unauthorized("token exchange failed"))
			return
		}
		idToken, _ := tok.Extra("id_token").(string)
		if idToken == "" {
			reply.Error(ctx, w, apperr.Unauthorized("missing id_token"))
			return
		}

		ti, err := g.verify(ctx, idToken)
		if err != nil {
			log.Warn("google id token rejected", zap.Error(err))
			reply.Error(ctx, w, apperr.Wrap(err, apperr.CodeUnauthorized, "invalid id_token"))
			return
		}
		if !g.isAdmin(ti) {
			log.Info("google sign-in denied", zap.String("email", ti.Email))
			reply.Error(ctx, w, apperr.Forbidden("account is not an administrator"))
			return
		}

		access, err := g.auth.IssueJWT("google|"+ti.Sub, RoleAdmin, ti.Email)
		if err != nil {
			reply.Error(ctx, w, apperr.Internal(err, "issue token"))
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     AccessTokenCookie,
			Value:    access,
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
			Expires:  time.Now().Add(g.auth.adminTTL),
		})

		target := g.home()
		if rc, err := r.Cookie(redirectCookie); err == nil {
			if raw, _ := url.QueryUnescape(rc.Value); raw != "" && g.sameOrigin(raw) {
				target = raw
			}
		}
		clearCookie(w, stateCookie)
		clearCookie(w, redirectCookie)

		u, err := url.Parse(target)
		if err != nil {
			u = &url.URL{Path: "/"}
		}
		q := u.Query()
		q.Set("access_token", access)
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	}
}

func (g *Google) verify(ctx context.Context, idToken string) (tokenInfo, error) {
	rq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.tokenInfoURL+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return tokenInfo{}, err
	}
	resp, err := g.client.Do(rq)
	if err != nil {
		return tokenInfo{}, fmt.Errorf("tokeninfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tokenInfo{}, fmt.Errorf("tokeninfo: status %d", resp.StatusCode)
	}

	var ti tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&ti); err != nil {
		return tokenInfo{}, fmt.Errorf("tokeninfo: %w", err)
	}
	if ti.Aud != g.oauth.ClientID {
		return tokenInfo{}, fmt.Errorf("invalid aud %q", ti.Aud)
	}
	if ti.Iss != "accounts.google.com" && ti.Iss != "https://accounts.google.com" {
		return tokenInfo{}, fmt.Errorf("invalid iss %q", ti.Iss)
	}
	if ti.EmailVerified != "true" {
		return tokenInfo{}, fmt.Errorf("email %q not verified", ti.Email)
	}
	return ti, nil
}

func (g *Google) isAdmin(ti tokenInfo) bool {
	if g.adminEmails[strings.ToLower(ti.Email)] {
		return true
	}
	return g.allowedHD != "" && strings.EqualFold(ti.Hd, g.allowedHD)
}

func (g *Google) home() string {
	if g.publicURL == "" {
		return "/"
	}
	return g.publicURL + "/"
}

// sameOrigin allows relative targets, the public origin and localhost.
func (g *Google) sameOrigin(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return u.Scheme == ""
	}
	if u.Hostname() == "localhost" {
		return true
	}
	base, err := url.Parse(g.publicURL)
	if err != nil || base.Host == "" {
		return false
	}
	return u.Scheme == base.Scheme && u.Host == base.Host
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func setShortCookie(w http.ResponseWriter, name, value string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
}
