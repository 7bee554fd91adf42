package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/markingsheet/internal/apperr"
)

type loginBody struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func TestRead(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"ok", `{"username":"admin","password":"pw"}`, ""},
		{"bad json", `{"username":`, "Invalid JSON"},
		{"missing field", `{"username":"admin"}`, "password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			var dst loginBody
			err := Read(r, &dst)
			if tt.msg == "" {
				require.NoError(t, err)
				assert.Equal(t, "admin", dst.Username)
				return
			}
			assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
			assert.Equal(t, tt.msg, apperr.MessageOf(err))
		})
	}
}

func TestBodyTooLarge(t *testing.T) {
	body := `{"username":"` + strings.Repeat("a", MaxBody) + `","password":"pw"}`
	r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	var dst loginBody
	err := Read(r, &dst)
	assert.True(t, apperr.Is(err, apperr.CodeTooLarge))
	assert.Equal(t, "request body too large", apperr.MessageOf(err))
}
