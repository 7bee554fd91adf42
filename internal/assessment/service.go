package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/metrics"
	"github.com/mind-engage/markingsheet/internal/scoring"
	"github.com/mind-engage/markingsheet/internal/sheet"
	"github.com/mind-engage/markingsheet/internal/validate"
)

// SheetGetter loads a marking sheet with its items.
type SheetGetter interface {
	Get(ctx context.Context, id string) (sheet.Sheet, error)
}

type Service struct {
	store   Store
	sheets  SheetGetter
	metrics *metrics.Metrics
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, sheets SheetGetter, m *metrics.Metrics, log *zap.Logger) *Service {
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		sheets:  sheets,
		metrics: m,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Preview scores in against its marking sheet without saving anything.
func (s *Service) Preview(ctx context.Context, in SubmitInput) (Assessment, error) {
	a, err := s.score(ctx, in.trimmed())
	if err != nil {
		return Assessment{}, err
	}
	s.metrics.AssessmentsScored.WithLabelValues("preview", string(a.Status)).Inc()
	return a, nil
}

// Submit scores and stores in. With both signatures present the
// assessment is stored as already acknowledged.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Assessment, error) {
	in = in.trimmed()
	if (in.StudentSignature == "") != (in.AssessorSignature == "") {
		return Assessment{}, apperr.Invalid("Both student and assessor signatures are required")
	}

	a, err := s.score(ctx, in)
	if err != nil {
		return Assessment{}, err
	}

	now := s.now().UTC().Truncate(time.Second)
	a.ID = s.newID()
	a.CreatedAt = now
	a.UpdatedAt = now
	if in.StudentSignature != "" {
		a.AcknowledgedAt = &now
		a.AcknowledgedBy = fmt.Sprintf("Student: %s | Assessor: %s", in.StudentSignature, in.AssessorSignature)
	}

	if err := s.store.Create(ctx, a); err != nil {
		return Assessment{}, err
	}

	s.metrics.AssessmentsScored.WithLabelValues("submit", string(a.Status)).Inc()
	s.metrics.PercentageScore.Observe(a.PercentageScore)
	s.log.Info("assessment submitted",
		zap.String("assessment_id", a.ID),
		zap.String("marking_sheet_id", a.MarkingSheetID),
		zap.String("status", string(a.Status)),
		zap.Float64("percentage", a.PercentageScore),
		zap.Bool("acknowledged", a.Acknowledged()),
	)
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (Assessment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Assessment, error) {
	if err := validate.Struct(ctx, f); err != nil {
		return nil, err
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.EndDate.Before(f.StartDate) {
		return nil, apperr.Invalid("end_date must not be before start_date")
	}
	return s.store.List(ctx, f)
}

// Acknowledge records the student's signature on an assessment.
func (s *Service) Acknowledge(ctx context.Context, id string, in AckInput) (Assessment, error) {
	sig := strings.TrimSpace(in.Signature)
	if sig == "" {
		return Assessment{}, apperr.Invalid("Please enter your signature")
	}

	a, err := s.store.Acknowledge(ctx, Acknowledgment{
		ID:                 s.newID(),
		AssessmentID:       id,
		StudentSignature:   sig,
		AcknowledgmentDate: s.now().UTC(),
		IPAddress:          in.IPAddress,
		UserAgent:          in.UserAgent,
	})
	if err != nil {
		return Assessment{}, err
	}
	s.metrics.AssessmentsAcknowledged.Inc()
	s.log.Info("assessment acknowledged", zap.String("assessment_id", id))
	return a, nil
}

func (s *Service) Acknowledgments(ctx context.Context, id string) ([]Acknowledgment, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Acknowledgments(ctx, id)
}

func (s *Service) score(ctx context.Context, in SubmitInput) (Assessment, error) {
	if err := validate.Struct(ctx, in); err != nil {
		return Assessment{}, err
	}
	sh, err := s.sheets.Get(ctx, in.MarkingSheetID)
	if err != nil {
		return Assessment{}, err
	}
	if !sh.IsEnabled {
		return Assessment{}, apperr.Forbidden("This marking sheet is disabled")
	}
	if len(sh.Items) == 0 {
		return Assessment{}, apperr.Invalid("No checklist items found for this marking sheet")
	}

	// keep only answers for this sheet's items
	responses := scoring.Responses{}
	completed := 0
	for _, it := range sh.Items {
		if checked, ok := in.Responses[it.ID]; ok {
			responses[it.ID] = checked
			if checked {
				completed++
			}
		}
	}

	res := scoring.Calculate(sheet.ScoringItems(sh), responses, sh.PassingScore)
	total := len(sh.Items)

	return Assessment{
		StudentName:          in.StudentName,
		AssessorName:         in.AssessorName,
		SectionName:          in.SectionName,
		ClassName:            in.ClassName,
		MarkingSheetID:       sh.ID,
		MarkingSheetName:     sh.Name,
		Responses:            responses,
		TotalItems:           total,
		CompletedItems:       completed,
		CompletionPercentage: scoring.Round2(float64(completed) / float64(total) * 100),
		TotalScore:           res.TotalScore,
		MaxPossibleScore:     res.MaxPossibleScore,
		PercentageScore:      res.PercentageScore,
		Status:               Status(res.Status),
		Remarks:              res.Remarks,
	}, nil
}
