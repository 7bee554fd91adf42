package assessment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/db"
	"github.com/mind-engage/markingsheet/internal/scoring"
)

type row struct {
	ID                   string        `db:"id"`
	StudentName          string        `db:"student_name"`
	AssessorName         string        `db:"assessor_name"`
	SectionName          string        `db:"section_name"`
	ClassName            string        `db:"class_name"`
	MarkingSheetID       string        `db:"marking_sheet_id"`
	MarkingSheetName     string        `db:"marking_sheet_name"`
	ResponsesJSON        string        `db:"responses_json"`
	TotalItems           int           `db:"total_items"`
	CompletedItems       int           `db:"completed_items"`
	CompletionPercentage float64       `db:"completion_percentage"`
	TotalScore           int           `db:"total_score"`
	MaxPossibleScore     int           `db:"max_possible_score"`
	PercentageScore      float64       `db:"percentage_score"`
	Status               string        `db:"status"`
	Remarks              string        `db:"remarks"`
	AcknowledgedAt       sql.NullInt64 `db:"acknowledged_at"`
	AcknowledgedBy       string        `db:"acknowledged_by"`
	CreatedAt            int64         `db:"created_at"`
	UpdatedAt            int64         `db:"updated_at"`
}

func toRow(a Assessment) (row, error) {
	resp := a.Responses
	if resp == nil {
		resp = scoring.Responses{}
	}
	buf, err := json.Marshal(resp)
	if err != nil {
		return row{}, err
	}
	r := row{
		ID:                   a.ID,
		StudentName:          a.StudentName,
		AssessorName:         a.AssessorName,
		SectionName:          a.SectionName,
		ClassName:            a.ClassName,
		MarkingSheetID:       a.MarkingSheetID,
		ResponsesJSON:        string(buf),
		TotalItems:           a.TotalItems,
		CompletedItems:       a.CompletedItems,
		CompletionPercentage: a.CompletionPercentage,
		TotalScore:           a.TotalScore,
		MaxPossibleScore:     a.MaxPossibleScore,
		PercentageScore:      a.PercentageScore,
		Status:               string(a.Status),
		Remarks:              a.Remarks,
		AcknowledgedBy:       a.AcknowledgedBy,
		CreatedAt:            a.CreatedAt.Unix(),
		UpdatedAt:            a.UpdatedAt.Unix(),
	}
	if a.AcknowledgedAt != nil {
		r.AcknowledgedAt = sql.NullInt64{Int64: a.AcknowledgedAt.Unix(), Valid: true}
	}
	return r, nil
}

func (r row) toAssessment() (Assessment, error) {
	a := Assessment{
		ID:                   r.ID,
		StudentName:          r.StudentName,
		AssessorName:         r.AssessorName,
		SectionName:          r.SectionName,
		ClassName:            r.ClassName,
		MarkingSheetID:       r.MarkingSheetID,
		MarkingSheetName:     r.MarkingSheetName,
		Responses:            scoring.Responses{},
		TotalItems:           r.TotalItems,
		CompletedItems:       r.CompletedItems,
		CompletionPercentage: r.CompletionPercentage,
		TotalScore:           r.TotalScore,
		MaxPossibleScore:     r.MaxPossibleScore,
		PercentageScore:      r.PercentageScore,
		Status:               Status(r.Status),
		Remarks:              r.Remarks,
		AcknowledgedBy:       r.AcknowledgedBy,
		CreatedAt:            time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:            time.Unix(r.UpdatedAt, 0).UTC(),
	}
	if r.ResponsesJSON != "" {
		if err := json.Unmarshal([]byte(r.ResponsesJSON), &a.Responses); err != nil {
			return Assessment{}, fmt.Errorf("assessment %s: decode responses: %w", r.ID, err)
		}
	}
	if r.AcknowledgedAt.Valid {
		t := time.Unix(r.AcknowledgedAt.Int64, 0).UTC()
		a.AcknowledgedAt = &t
	}
	return a, nil
}

const selectAssessments = `SELECT a.id, a.student_name, a.assessor_name, a.section_name, a.class_name,
	a.marking_sheet_id, COALESCE(ms.name, '') AS marking_sheet_name, a.responses_json,
	a.total_items, a.completed_items, a.completion_percentage,
	a.total_score, a.max_possible_score, a.percentage_score, a.status, a.remarks,
	a.acknowledged_at, a.acknowledged_by, a.created_at, a.updated_at
	FROM assessments a LEFT JOIN marking_sheets ms ON ms.id = a.marking_sheet_id`

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, a Assessment) error {
	r, err := toRow(a)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT INTO assessments (id, student_name, assessor_name, section_name, class_name,
		marking_sheet_id, responses_json, total_items, completed_items, completion_percentage,
		total_score, max_possible_score, percentage_score, status, remarks,
		acknowledged_at, acknowledged_by, created_at, updated_at)
		VALUES (:id, :student_name, :assessor_name, :section_name, :class_name,
		:marking_sheet_id, :responses_json, :total_items, :completed_items, :completion_percentage,
		:total_score, :max_possible_score, :percentage_score, :status, :remarks,
		:acknowledged_at, :acknowledged_by, :created_at, :updated_at)`, r)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Assessment, error) {
	return getAssessment(ctx, s.db, id)
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Assessment, error) {
	var (
		where []string
		args  []any
	)
	if f.MarkingSheetID != "" {
		where = append(where, "a.marking_sheet_id = ?")
		args = append(args, f.MarkingSheetID)
	}
	if !f.StartDate.IsZero() {
		where = append(where, "a.created_at >= ?")
		args = append(args, f.StartDate.Unix())
	}
	if !f.EndDate.IsZero() {
		where = append(where, "a.created_at <= ?")
		args = append(args, f.EndDate.Unix())
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, string(f.Status))
	}

	q := selectAssessments
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY a.created_at DESC, a.id"

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select assessments: %w", err)
	}
	out := make([]Assessment, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAssessment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLStore) Acknowledge(ctx context.Context, ack Acknowledgment) (Assessment, error) {
	err := db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var ackAt sql.NullInt64
		err := tx.GetContext(ctx, &ackAt, `SELECT acknowledged_at FROM assessments WHERE id = $1`, ack.AssessmentID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("assessment")
		}
		if err != nil {
			return fmt.Errorf("select assessment: %w", err)
		}
		if ackAt.Valid {
			return apperr.Conflict("This assessment has already been acknowledged")
		}

		at := ack.AcknowledgmentDate.Unix()
		if _, err := tx.ExecContext(ctx, `INSERT INTO assessment_acknowledgments
			(id, assessment_id, student_signature, acknowledgment_date, ip_address, user_agent)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			ack.ID, ack.AssessmentID, ack.StudentSignature, at, ack.IPAddress, ack.UserAgent); err != nil {
			return fmt.Errorf("insert acknowledgment: %w", err)
		}
		// guarded update so a concurrent acknowledgment cannot overwrite the first
		res, err := tx.ExecContext(ctx, `UPDATE assessments SET acknowledged_at = $1, acknowledged_by = $2, updated_at = $3
			WHERE id = $4 AND acknowledged_at IS NULL`,
			at, ack.StudentSignature, at, ack.AssessmentID)
		if err != nil {
			return fmt.Errorf("update assessment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Conflict("This assessment has already been acknowledged")
		}
		return nil
	})
	if err != nil {
		return Assessment{}, err
	}
	return s.Get(ctx, ack.AssessmentID)
}

type ackRow struct {
	ID        string `db:"id"`
	Signature string `db:"student_signature"`
	Date      int64  `db:"acknowledgment_date"`
	IP        string `db:"ip_address"`
	UA        string `db:"user_agent"`
}

func (s *SQLStore) Acknowledgments(ctx context.Context, assessmentID string) ([]Acknowledgment, error) {
	var rows []ackRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, student_signature, acknowledgment_date, ip_address, user_agent
		FROM assessment_acknowledgments WHERE assessment_id = $1 ORDER BY acknowledgment_date`, assessmentID); err != nil {
		return nil, fmt.Errorf("select acknowledgments: %w", err)
	}
	return lo.Map(rows, func(r ackRow, _ int) Acknowledgment {
		return Acknowledgment{
			ID:                 r.ID,
			AssessmentID:       assessmentID,
			StudentSignature:   r.Signature,
			AcknowledgmentDate: time.Unix(r.Date, 0).UTC(),
			IPAddress:          r.IP,
			UserAgent:          r.UA,
		}
	}), nil
}

func getAssessment(ctx context.Context, q sqlx.QueryerContext, id string) (Assessment, error) {
	var r row
	err := sqlx.GetContext(ctx, q, &r, selectAssessments+` WHERE a.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Assessment{}, apperr.NotFound("assessment")
	}
	if err != nil {
		return Assessment{}, fmt.Errorf("select assessment: %w", err)
	}
	return r.toAssessment()
}
