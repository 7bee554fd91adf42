package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/markingsheet/internal/assessment"
	"github.com/mind-engage/markingsheet/internal/auth"
	"github.com/mind-engage/markingsheet/internal/config"
	"github.com/mind-engage/markingsheet/internal/httpx/req"
	"github.com/mind-engage/markingsheet/internal/metrics"
	"github.com/mind-engage/markingsheet/internal/ratelimit"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

type testEnv struct {
	h      http.Handler
	auth   *auth.AuthService
	sheets sheet.Store
	cpr    sheet.Sheet
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) testEnv {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a := auth.NewAuthService("test-secret", time.Hour, time.Hour)
	assessments := assessment.NewMemoryStore()
	sheets := sheet.NewMemoryStore("assess2024",
		sheet.WithHashCost(bcrypt.MinCost), sheet.WithOnDelete(assessments.DeleteBySheet))
	cpr, err := sheets.Create(context.Background(), sheet.Draft{
		Name: "CPR",
		Items: []sheet.DraftItem{
			{Text: "Scene safety", Points: 2},
			{Text: "Open airway", Points: 1, IsCritical: true},
			{Text: "Compressions", Points: 2},
		},
	})
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	d := Deps{
		Config: config.Config{
			Mode:            config.ModeOffline,
			PublicURL:       "https://assess.example",
			EnableLocalAuth: true,
			AdminUser:       "admin",
			AdminPassHash:   string(hash),
		},
		Logger:      log,
		Auth:        a,
		Sheets:      sheets,
		Assessments: assessment.NewService(assessments, sheets, m, log),
		Metrics:     m,
		Gatherer:    reg,
		Ping:        func(context.Context) error { return nil },
		Now:         func() time.Time { return time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC) },
	}
	for _, o := range opts {
		o(&d)
	}
	h := NewRouter(d)
	return testEnv{h: h, auth: a, sheets: sheets, cpr: cpr}
}

func (e testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, r)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func (e testEnv) adminToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "s3cret"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	decodeBody(t, rec, &out)
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func (e testEnv) unlock(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/unlock", map[string]string{"password": "assess2024"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   int         `json:"expires_in"`
		Sheet       sheet.Sheet `json:"sheet"`
	}
	decodeBody(t, rec, &out)
	assert.Equal(t, 3600, out.ExpiresIn)
	assert.Len(t, out.Sheet.Items, 3)
	return out.AccessToken
}

func (e testEnv) responses(done ...int) map[string]bool {
	out := map[string]bool{}
	for _, i := range done {
		out[e.cpr.Items[i].ID] = true
	}
	return out
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/metrics", nil, nil).Code)
}

func TestPublicSheetListHidesChecklist(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodGet, "/sheets/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "CPR", list[0]["name"])
	assert.NotContains(t, list[0], "checklist_items")
	assert.NotContains(t, list[0], "password_hash")
}

func TestUnlockRejectsWrongPassword(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name string
		id   string
		body any
		code int
		msg  string
	}{
		{"wrong password", e.cpr.ID, map[string]string{"password": "nope"}, http.StatusUnauthorized,
			"Incorrect password. Please contact your administrator for the correct password."},
		{"blank password", e.cpr.ID, map[string]string{"password": ""}, http.StatusBadRequest, "Please enter the password"},
		{"unknown sheet", "missing", map[string]string{"password": "assess2024"}, http.StatusNotFound, "marking sheet not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/sheets/"+tt.id+"/unlock", tt.body, nil)
			assert.Equal(t, tt.code, rec.Code)
			var out map[string]any
			decodeBody(t, rec, &out)
			assert.Equal(t, tt.msg, out["message"])
		})
	}
}

func TestUnlockIsRateLimited(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.Unlocks = ratelimit.NewMemory(2, time.Minute) })
	path := "/sheets/" + e.cpr.ID + "/unlock"
	wrong := map[string]string{"password": "nope"}

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, path, wrong, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, path, wrong, nil).Code)

	rec := e.do(t, http.MethodPost, path, map[string]string{"password": "assess2024"}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "TOO_MANY_REQUESTS", out["code"])
}

func TestAssessorFlow(t *testing.T) {
	e := newTestEnv(t)
	tok := e.unlock(t)
	sheetHdr := map[string]string{auth.SheetTokenHeader: tok}
	path := "/sheets/" + e.cpr.ID

	in := map[string]any{
		"student_name":        "Ana",
		"assessor_name":       "Dr. Lee",
		"section_name":        "B",
		"class_name":          "Nursing 101",
		"checklist_responses": e.responses(0, 1, 2),
	}

	// locked without a token
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, path+"/preview", in, nil).Code)

	rec := e.do(t, http.MethodPost, path+"/preview", in, sheetHdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var preview map[string]any
	decodeBody(t, rec, &preview)
	assert.Equal(t, "passed", preview["status"])
	assert.Equal(t, 100.0, preview["percentage_score"])
	assert.NotContains(t, preview, "acknowledge_url")

	rec = e.do(t, http.MethodPost, path+"/assessments", in, sheetHdr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID             string  `json:"id"`
		Status         string  `json:"status"`
		Remarks        string  `json:"remarks"`
		AcknowledgedAt *string `json:"acknowledged_at"`
		AcknowledgeURL string  `json:"acknowledge_url"`
	}
	decodeBody(t, rec, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Excellent performance! Score: 100.0%", created.Remarks)
	assert.Nil(t, created.AcknowledgedAt)
	assert.Equal(t, "https://assess.example/acknowledge/"+created.ID, created.AcknowledgeURL)

	rec = e.do(t, http.MethodGet, "/assessments/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodPost, "/assessments/"+created.ID+"/acknowledge", map[string]string{"student_signature": "Ana"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var acked map[string]any
	decodeBody(t, rec, &acked)
	assert.Equal(t, "Ana", acked["acknowledged_by"])
	assert.NotNil(t, acked["acknowledged_at"])

	rec = e.do(t, http.MethodPost, "/assessments/"+created.ID+"/acknowledge", map[string]string{"student_signature": "Ana"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/assessments/missing", nil, nil).Code)
}

func TestSubmitValidation(t *testing.T) {
	e := newTestEnv(t)
	hdr := map[string]string{auth.SheetTokenHeader: e.unlock(t)}

	rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/assessments", map[string]any{
		"student_name":  "Ana",
		"assessor_name": "Dr. Lee",
		"class_name":    "Nursing 101",
	}, hdr)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "section_name is required", out["message"])
	assert.Equal(t, "INVALID_ARGUMENT", out["code"])
}

func TestSheetTokenIsScopedToOneSheet(t *testing.T) {
	e := newTestEnv(t)
	other, err := e.sheets.Create(context.Background(), sheet.Draft{Name: "IV", Items: []sheet.DraftItem{{Text: "Prep"}}})
	require.NoError(t, err)

	tok, err := e.auth.IssueSheetToken(other.ID)
	require.NoError(t, err)
	rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/preview", map[string]any{}, map[string]string{auth.SheetTokenHeader: tok})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminBearerOpensAnySheet(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/preview", map[string]any{
		"student_name":        "Ana",
		"assessor_name":       "Dr. Lee",
		"section_name":        "B",
		"class_name":          "Nursing 101",
		"checklist_responses": e.responses(0),
	}, map[string]string{"Authorization": "Bearer " + e.adminToken(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	decodeBody(t, rec, &out)
	assert.Equal(t, "failed", out["status"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	assessorTok, err := e.auth.IssueJWT("pat", auth.RoleAssessor, "")
	require.NoError(t, err)

	tests := []struct {
		name string
		hdr  map[string]string
		code int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"sheet token as bearer", map[string]string{"Authorization": "Bearer " + e.unlock(t)}, http.StatusUnauthorized},
		{"assessor role", map[string]string{"Authorization": "Bearer " + assessorTok}, http.StatusForbidden},
		{"admin", map[string]string{"Authorization": "Bearer " + e.adminToken(t)}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, e.do(t, http.MethodGet, "/admin/sheets/", nil, tt.hdr).Code)
		})
	}

	rec := e.do(t, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSheetCRUD(t *testing.T) {
	e := newTestEnv(t)
	hdr := map[string]string{"Authorization": "Bearer " + e.adminToken(t)}

	rec := e.do(t, http.MethodPost, "/admin/sheets/", map[string]any{
		"name":          "IV insertion",
		"passing_score": 80,
		"password":      "ivpass",
		"checklist_items": []map[string]any{
			{"text": "Hand hygiene", "points": 1, "is_critical": true},
			{"text": "  "},
		},
	}, hdr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created sheet.Sheet
	decodeBody(t, rec, &created)
	assert.Equal(t, 80.0, created.PassingScore)
	require.Len(t, created.Items, 1)

	rec = e.do(t, http.MethodPost, "/admin/sheets/", map[string]any{"name": ""}, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPut, "/admin/sheets/"+created.ID, map[string]any{
		"name":       "IV insertion v2",
		"is_enabled": false,
		"checklist_items": []map[string]any{
			{"id": created.Items[0].ID, "text": "Hand hygiene", "points": 2},
		},
	}, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated sheet.Sheet
	decodeBody(t, rec, &updated)
	assert.False(t, updated.IsEnabled)
	assert.Equal(t, 2, updated.TotalPoints)

	// disabled sheets drop out of the public list and refuse unlocks
	rec = e.do(t, http.MethodPost, "/sheets/"+created.ID+"/unlock", map[string]string{"password": "ivpass"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodGet, "/admin/sheets/"+created.ID, nil, hdr)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/admin/sheets/"+created.ID, nil, hdr).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/admin/sheets/"+created.ID, nil, hdr).Code)
}

func TestAdminListAndExport(t *testing.T) {
	e := newTestEnv(t)
	sheetHdr := map[string]string{auth.SheetTokenHeader: e.unlock(t)}
	for _, name := range []string{"Ana", "Ben"} {
		rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/assessments", map[string]any{
			"student_name":        name,
			"assessor_name":       "Dr. Lee",
			"section_name":        "B",
			"class_name":          "Nursing 101",
			"checklist_responses": e.responses(0, 1, 2),
		}, sheetHdr)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	hdr := map[string]string{"Authorization": "Bearer " + e.adminToken(t)}
	rec := e.do(t, http.MethodGet, "/admin/assessments?status=passed&marking_sheet_id="+e.cpr.ID, nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []map[string]any
	decodeBody(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "CPR", list[0]["marking_sheet_name"])

	rec = e.do(t, http.MethodGet, "/admin/assessments?status=bogus", nil, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/admin/assessments?start_date=03-05-2024", nil, hdr)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/admin/assessments/export.csv", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="assessments-2024-05-03.csv"`, rec.Header().Get("Content-Disposition"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)

	id, _ := list[0]["id"].(string)
	rec = e.do(t, http.MethodGet, "/admin/assessments/"+id+"/acknowledgments", nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteSheetRemovesAssessments(t *testing.T) {
	e := newTestEnv(t)
	sheetHdr := map[string]string{auth.SheetTokenHeader: e.unlock(t)}
	rec := e.do(t, http.MethodPost, "/sheets/"+e.cpr.ID+"/assessments", map[string]any{
		"student_name":        "Ana",
		"assessor_name":       "Dr. Lee",
		"section_name":        "B",
		"class_name":          "Nursing 101",
		"checklist_responses": e.responses(0),
	}, sheetHdr)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	hdr := map[string]string{"Authorization": "Bearer " + e.adminToken(t)}
	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/admin/sheets/"+e.cpr.ID, nil, hdr).Code)

	rec = e.do(t, http.MethodGet, "/admin/assessments?marking_sheet_id="+e.cpr.ID, nil, hdr)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []map[string]any
	decodeBody(t, rec, &list)
	assert.Empty(t, list)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/assessments/"+created.ID, nil, nil).Code)
}

func TestScore(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/score", map[string]any{
		"checklist_items": []map[string]any{
			{"id": "a", "text": "A", "points": 3},
			{"id": "b", "text": "B", "points": 1, "is_critical": true},
		},
		"responses":     map[string]bool{"a": true},
		"passing_score": 50,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res map[string]any
	decodeBody(t, rec, &res)
	assert.Equal(t, "failed", res["status"])
	assert.Equal(t, "Critical failure: B", res["remarks"])

	rec = e.do(t, http.MethodPost, "/score", map[string]any{"checklist_items": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/score", map[string]any{
		"checklist_items": []map[string]any{{"id": "a", "text": strings.Repeat("x", req.MaxBody)}},
	}, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "request body too large")
}
