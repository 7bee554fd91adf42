package sheet

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/markingsheet/internal/apperr"
)

var (
	sheetCols = []string{"id", "name", "description", "passing_score", "total_points", "password_hash", "is_enabled", "created_at", "updated_at"}
	itemCols  = []string{"id", "marking_sheet_id", "text", "category", "order_index", "points", "is_critical", "critical_condition", "created_at"}
)

func newTestStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	s := NewSQLStore(sqlx.NewDb(raw, "sqlmock"), "assess2024")
	s.hashCost = bcrypt.MinCost
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	n := 0
	s.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	return s, mock
}

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestSQLStoreGet(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sheetCols).
			AddRow("s1", "CPR", "", 80.0, 3, "hash", true, int64(1700000000), int64(1700000100)))
	mock.ExpectQuery("SELECT (.+) FROM checklist_items WHERE marking_sheet_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("i1", "s1", "Scene safety", "", 1, 2, false, "", int64(1700000000)).
			AddRow("i2", "s1", "Airway", "Airway", 2, 1, true, "before breaths", int64(1700000000)))

	sh, err := s.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "CPR", sh.Name)
	assert.Equal(t, 80.0, sh.PassingScore)
	assert.Equal(t, time.Unix(1700000100, 0).UTC(), sh.UpdatedAt)
	require.Len(t, sh.Items, 2)
	assert.True(t, sh.Items[1].IsCritical)
	assert.Equal(t, "before breaths", sh.Items[1].CriticalCondition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sheetCols))

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Equal(t, "marking sheet not found", apperr.MessageOf(err))
}

func TestSQLStoreList(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE is_enabled").
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(sheetCols).
			AddRow("s2", "Newer", "", 70.0, 1, "h", true, int64(20), int64(20)).
			AddRow("s1", "Older", "", 70.0, 2, "h", true, int64(10), int64(10)))
	mock.ExpectQuery("SELECT (.+) FROM checklist_items WHERE marking_sheet_id IN").
		WithArgs("s2", "s1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("a", "s1", "First", "", 1, 1, false, "", int64(10)).
			AddRow("b", "s2", "Only", "", 1, 1, false, "", int64(20)).
			AddRow("c", "s1", "Second", "", 2, 1, false, "", int64(10)))

	sheets, err := s.List(context.Background(), ListOpts{})
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "s2", sheets[0].ID)
	assert.Len(t, sheets[0].Items, 1)
	assert.Equal(t, []string{"First", "Second"}, []string{sheets[1].Items[0].Text, sheets[1].Items[1].Text})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListEmpty(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets ORDER BY").
		WillReturnRows(sqlmock.NewRows(sheetCols))

	sheets, err := s.List(context.Background(), ListOpts{IncludeDisabled: true})
	require.NoError(t, err)
	assert.Empty(t, sheets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreate(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO marking_sheets").
		WithArgs("id-1", "CPR", "", 70.0, 3, sqlmock.AnyArg(), true, int64(1700000000), int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO checklist_items").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	sh, err := s.Create(context.Background(), Draft{
		Name: " CPR ",
		Items: []DraftItem{
			{Text: "Scene safety", Points: 2},
			{Text: ""},
			{Text: "Airway", IsCritical: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", sh.ID)
	assert.Equal(t, 3, sh.TotalPoints)
	require.Len(t, sh.Items, 2)
	assert.Equal(t, "id-2", sh.Items[0].ID)
	assert.Equal(t, 2, sh.Items[1].OrderIndex)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(sh.PasswordHash), []byte("assess2024")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreCreateRejectsInvalidDraft(t *testing.T) {
	s, mock := newTestStore(t)
	over := 150.0

	_, err := s.Create(context.Background(), Draft{Name: "   "})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))

	_, err = s.Create(context.Background(), Draft{Name: "x", PassingScore: &over})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidArgument))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateKeepsHashAndItemIDs(t *testing.T) {
	s, mock := newTestStore(t)
	oldHash := mustHash(t, "secret")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sheetCols).
			AddRow("s1", "CPR", "", 70.0, 1, oldHash, true, int64(10), int64(10)))
	mock.ExpectQuery("SELECT id FROM checklist_items").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("i1"))
	mock.ExpectExec("UPDATE marking_sheets").
		WithArgs("CPR v2", "", 75.0, 3, oldHash, false, int64(1700000000), "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM checklist_items").
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO checklist_items").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(sheetCols).
			AddRow("s1", "CPR v2", "", 75.0, 3, oldHash, false, int64(10), int64(1700000000)))
	mock.ExpectQuery("SELECT (.+) FROM checklist_items WHERE marking_sheet_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow("i1", "s1", "Scene", "", 1, 1, false, "", int64(1700000000)).
			AddRow("id-1", "s1", "Airway", "", 2, 2, false, "", int64(1700000000)))

	pass := 75.0
	off := false
	sh, err := s.Update(context.Background(), "s1", Draft{
		Name:         "CPR v2",
		PassingScore: &pass,
		IsEnabled:    &off,
		Items: []DraftItem{
			{ID: "i1", Text: "Scene", Points: 1},
			{Text: "Airway", Points: 2},
		},
	})
	require.NoError(t, err)
	assert.False(t, sh.IsEnabled)
	assert.Equal(t, "i1", sh.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM marking_sheets WHERE id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(sheetCols))
	mock.ExpectRollback()

	_, err := s.Update(context.Background(), "nope", Draft{Name: "x"})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreDelete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantCode apperr.Code
	}{
		{"deleted", 1, ""},
		{"missing", 0, apperr.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectBegin()
			mock.ExpectExec("DELETE FROM assessment_acknowledgments").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("DELETE FROM assessments WHERE").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("DELETE FROM checklist_items").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectExec("DELETE FROM marking_sheets").WithArgs("s1").WillReturnResult(sqlmock.NewResult(0, tt.affected))
			if tt.wantCode == "" {
				mock.ExpectCommit()
			} else {
				mock.ExpectRollback()
			}

			err := s.Delete(context.Background(), "s1")
			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				assert.True(t, apperr.Is(err, tt.wantCode))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStoreVerifyPassword(t *testing.T) {
	hash := mustHash(t, "assess2024")
	tests := []struct {
		name     string
		enabled  bool
		password string
		want     bool
		wantCode apperr.Code
	}{
		{"correct", true, "assess2024", true, ""},
		{"wrong", true, "guess", false, ""},
		{"disabled", false, "assess2024", false, apperr.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			mock.ExpectQuery("SELECT password_hash, is_enabled FROM marking_sheets").
				WithArgs("s1").
				WillReturnRows(sqlmock.NewRows([]string{"password_hash", "is_enabled"}).AddRow(hash, tt.enabled))

			ok, err := s.VerifyPassword(context.Background(), "s1", tt.password)
			if tt.wantCode != "" {
				assert.True(t, apperr.Is(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}
