package sheet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/db"
	"github.com/mind-engage/markingsheet/internal/validate"
)

type sheetRow struct {
	ID           string  `db:"id"`
	Name         string  `db:"name"`
	Description  string  `db:"description"`
	PassingScore float64 `db:"passing_score"`
	TotalPoints  int     `db:"total_points"`
	PasswordHash string  `db:"password_hash"`
	IsEnabled    bool    `db:"is_enabled"`
	CreatedAt    int64   `db:"created_at"`
	UpdatedAt    int64   `db:"updated_at"`
}

func (r sheetRow) toSheet() Sheet {
	return Sheet{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		PassingScore: r.PassingScore,
		TotalPoints:  r.TotalPoints,
		IsEnabled:    r.IsEnabled,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:    time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

type itemRow struct {
	ID                string `db:"id"`
	SheetID           string `db:"marking_sheet_id"`
	Text              string `db:"text"`
	Category          string `db:"category"`
	OrderIndex        int    `db:"order_index"`
	Points            int    `db:"points"`
	IsCritical        bool   `db:"is_critical"`
	CriticalCondition string `db:"critical_condition"`
	CreatedAt         int64  `db:"created_at"`
}

func (r itemRow) toItem() Item {
	return Item{
		ID:                r.ID,
		SheetID:           r.SheetID,
		Text:              r.Text,
		Category:          r.Category,
		OrderIndex:        r.OrderIndex,
		Points:            r.Points,
		IsCritical:        r.IsCritical,
		CriticalCondition: r.CriticalCondition,
	}
}

const (
	sheetColumns = `id,name,description,passing_score,total_points,password_hash,is_enabled,created_at,updated_at`
	itemColumns  = `id,marking_sheet_id,text,category,order_index,points,is_critical,critical_condition,created_at`
)

type SQLStore struct {
	db              *sqlx.DB
	defaultPassword string
	hashCost        int
	now             func() time.Time
	newID           func() string
}

// NewSQLStore returns a store over db. Sheets saved without a password get
// defaultPassword.
func NewSQLStore(db *sqlx.DB, defaultPassword string) *SQLStore {
	return &SQLStore{
		db:              db,
		defaultPassword: defaultPassword,
		hashCost:        bcrypt.DefaultCost,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *SQLStore) List(ctx context.Context, opts ListOpts) ([]Sheet, error) {
	q := `SELECT ` + sheetColumns + ` FROM marking_sheets`
	var args []any
	if !opts.IncludeDisabled {
		q += ` WHERE is_enabled = $1`
		args = append(args, true)
	}
	q += ` ORDER BY created_at DESC, name`

	var rows []sheetRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("select marking_sheets: %w", err)
	}
	if len(rows) == 0 {
		return []Sheet{}, nil
	}

	ids := lo.Map(rows, func(r sheetRow, _ int) string { return r.ID })
	iq, iargs, err := sqlx.In(`SELECT `+itemColumns+` FROM checklist_items WHERE marking_sheet_id IN (?) ORDER BY order_index`, ids)
	if err != nil {
		return nil, err
	}
	var items []itemRow
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(iq), iargs...); err != nil {
		return nil, fmt.Errorf("select checklist_items: %w", err)
	}
	bySheet := lo.GroupBy(items, func(r itemRow) string { return r.SheetID })

	return lo.Map(rows, func(r sheetRow, _ int) Sheet {
		sh := r.toSheet()
		sh.Items = lo.Map(bySheet[r.ID], func(ir itemRow, _ int) Item { return ir.toItem() })
		return sh
	}), nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Sheet, error) {
	var row sheetRow
	err := s.db.GetContext(ctx, &row, `SELECT `+sheetColumns+` FROM marking_sheets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Sheet{}, apperr.NotFound("marking sheet")
	}
	if err != nil {
		return Sheet{}, fmt.Errorf("select marking_sheet: %w", err)
	}

	var items []itemRow
	if err := s.db.SelectContext(ctx, &items,
		`SELECT `+itemColumns+` FROM checklist_items WHERE marking_sheet_id = $1 ORDER BY order_index`, id); err != nil {
		return Sheet{}, fmt.Errorf("select checklist_items: %w", err)
	}
	sh := row.toSheet()
	sh.Items = lo.Map(items, func(ir itemRow, _ int) Item { return ir.toItem() })
	return sh, nil
}

func (s *SQLStore) Create(ctx context.Context, d Draft) (Sheet, error) {
	d = d.Normalize()
	if err := validate.Struct(ctx, d); err != nil {
		return Sheet{}, err
	}
	password := d.Password
	if password == "" {
		password = s.defaultPassword
	}
	hash, err := s.hash(password)
	if err != nil {
		return Sheet{}, err
	}

	now := s.now().Unix()
	id := s.newID()
	items := d.items(id, nil, s.newID)
	row := sheetRow{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		PassingScore: d.passingScore(),
		TotalPoints:  totalPoints(items),
		PasswordHash: hash,
		IsEnabled:    d.enabled(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO marking_sheets (`+sheetColumns+`)
			VALUES (:id,:name,:description,:passing_score,:total_points,:password_hash,:is_enabled,:created_at,:updated_at)`, row); err != nil {
			return fmt.Errorf("insert marking_sheet: %w", err)
		}
		return insertItems(ctx, tx, items, now)
	})
	if err != nil {
		return Sheet{}, err
	}

	sh := row.toSheet()
	sh.Items = items
	return sh, nil
}

func (s *SQLStore) Update(ctx context.Context, id string, d Draft) (Sheet, error) {
	d = d.Normalize()
	if err := validate.Struct(ctx, d); err != nil {
		return Sheet{}, err
	}
	var hash string
	if d.Password != "" {
		h, err := s.hash(d.Password)
		if err != nil {
			return Sheet{}, err
		}
		hash = h
	}

	now := s.now().Unix()
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var current sheetRow
		err := tx.GetContext(ctx, &current, `SELECT `+sheetColumns+` FROM marking_sheets WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("marking sheet")
		}
		if err != nil {
			return fmt.Errorf("select marking_sheet: %w", err)
		}
		if hash == "" {
			hash = current.PasswordHash
		}

		var existingIDs []string
		if err := tx.SelectContext(ctx, &existingIDs, `SELECT id FROM checklist_items WHERE marking_sheet_id = $1`, id); err != nil {
			return fmt.Errorf("select checklist_items: %w", err)
		}
		items := d.items(id, lo.SliceToMap(existingIDs, func(v string) (string, bool) { return v, true }), s.newID)

		if _, err := tx.ExecContext(ctx, `UPDATE marking_sheets
			SET name = $1, description = $2, passing_score = $3, total_points = $4, password_hash = $5, is_enabled = $6, updated_at = $7
			WHERE id = $8`,
			d.Name, d.Description, d.passingScore(), totalPoints(items), hash, d.enabled(), now, id); err != nil {
			return fmt.Errorf("update marking_sheet: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM checklist_items WHERE marking_sheet_id = $1`, id); err != nil {
			return fmt.Errorf("delete checklist_items: %w", err)
		}
		return insertItems(ctx, tx, items, now)
	})
	if err != nil {
		return Sheet{}, err
	}
	return s.Get(ctx, id)
}

// Delete removes the sheet together with its items and assessments.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		// explicit cascade; sqlite only enforces foreign keys when the pragma is on
		for _, q := range []string{
			`DELETE FROM assessment_acknowledgments WHERE assessment_id IN (SELECT id FROM assessments WHERE marking_sheet_id = $1)`,
			`DELETE FROM assessments WHERE marking_sheet_id = $1`,
			`DELETE FROM checklist_items WHERE marking_sheet_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete marking_sheet children: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM marking_sheets WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete marking_sheet: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("marking sheet")
		}
		return nil
	})
}

func (s *SQLStore) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	var row struct {
		PasswordHash string `db:"password_hash"`
		IsEnabled    bool   `db:"is_enabled"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT password_hash, is_enabled FROM marking_sheets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, apperr.NotFound("marking sheet")
	}
	if err != nil {
		return false, fmt.Errorf("select marking_sheet: %w", err)
	}
	if !row.IsEnabled {
		return false, apperr.Forbidden("This marking sheet is disabled")
	}
	return bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) == nil, nil
}

func (s *SQLStore) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", apperr.Internal(err, "hash password")
	}
	return string(h), nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, items []Item, now int64) error {
	if len(items) == 0 {
		return nil
	}
	rows := lo.Map(items, func(it Item, _ int) itemRow {
		return itemRow{
			ID:                it.ID,
			SheetID:           it.SheetID,
			Text:              it.Text,
			Category:          it.Category,
			OrderIndex:        it.OrderIndex,
			Points:            it.Points,
			IsCritical:        it.IsCritical,
			CriticalCondition: it.CriticalCondition,
			CreatedAt:         now,
		}
	})
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO checklist_items (`+itemColumns+`)
		VALUES (:id,:marking_sheet_id,:text,:category,:order_index,:points,:is_critical,:critical_condition,:created_at)`, rows); err != nil {
		return fmt.Errorf("insert checklist_items: %w", err)
	}
	return nil
}
