package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer      = "markingsheet"
	apiAudience = "markingsheet-api"

	RoleAdmin    = "admin"
	RoleAssessor = "assessor"
)

type AuthService struct {
	hmac     []byte
	adminTTL time.Duration
	sheetTTL time.Duration
	now      func() time.Time
}

func NewAuthService(secret string, adminTTL, sheetTTL time.Duration) *AuthService {
	return &AuthService{hmac: []byte(secret), adminTTL: adminTTL, sheetTTL: sheetTTL, now: time.Now}
}

type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IssueJWT mints an API token for sub.
func (a *AuthService) IssueJWT(sub, role, email string) (string, error) {
	return a.sign(&Claims{
		Role:             role,
		Email:            email,
		RegisteredClaims: a.registered(sub, apiAudience, a.adminTTL),
	})
}

// IssueSheetToken mints a token that unlocks one marking sheet for an
// assessor.
func (a *AuthService) IssueSheetToken(sheetID string) (string, error) {
	return a.sign(&Claims{
		Role:             RoleAssessor,
		RegisteredClaims: a.registered(sheetID, sheetAudience(sheetID), a.sheetTTL),
	})
}

func (a *AuthService) Parse(tokenStr string) (*Claims, error) {
	return a.parse(tokenStr, apiAudience)
}

// ParseSheetToken accepts only tokens issued for sheetID.
func (a *AuthService) ParseSheetToken(tokenStr, sheetID string) (*Claims, error) {
	return a.parse(tokenStr, sheetAudience(sheetID))
}

func (a *AuthService) SheetTTL() time.Duration { return a.sheetTTL }
func (a *AuthService) AdminTTL() time.Duration { return a.adminTTL }

func (a *AuthService) registered(sub, aud string, ttl time.Duration) jwt.RegisteredClaims {
	now := a.now()
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sub,
		Audience:  jwt.ClaimStrings{aud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (a *AuthService) sign(c *Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	s, err := t.SignedString(a.hmac)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

func (a *AuthService) parse(tokenStr, aud string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.hmac, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(aud),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}

func sheetAudience(id string) string { return "sheet:" + id }
