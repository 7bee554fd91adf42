package assessment

import (
	"strings"
	"time"

	"github.com/mind-engage/markingsheet/internal/scoring"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

type Assessment struct {
	ID               string `json:"id"`
	StudentName      string `json:"student_name"`
	AssessorName     string `json:"assessor_name"`
	SectionName      string `json:"section_name"`
	ClassName        string `json:"class_name"`
	MarkingSheetID   string `json:"marking_sheet_id"`
	MarkingSheetName string `json:"marking_sheet_name,omitempty"`

	Responses            scoring.Responses `json:"checklist_responses"`
	TotalItems           int               `json:"total_items"`
	CompletedItems       int               `json:"completed_items"`
	CompletionPercentage float64           `json:"completion_percentage"`

	TotalScore       int     `json:"total_score"`
	MaxPossibleScore int     `json:"max_possible_score"`
	PercentageScore  float64 `json:"percentage_score"`
	Status           Status  `json:"status"`
	Remarks          string  `json:"remarks"`

	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a Assessment) Acknowledged() bool { return a.AcknowledgedAt != nil }

// Acknowledgment is a student's signed receipt of an assessment result.
type Acknowledgment struct {
	ID                 string    `json:"id"`
	AssessmentID       string    `json:"assessment_id"`
	StudentSignature   string    `json:"student_signature"`
	AcknowledgmentDate time.Time `json:"acknowledgment_date"`
	IPAddress          string    `json:"ip_address,omitempty"`
	UserAgent          string    `json:"user_agent,omitempty"`
}

// SubmitInput is a filled-out checklist for one student.
type SubmitInput struct {
	MarkingSheetID string          `json:"marking_sheet_id" validate:"required"`
	StudentName    string          `json:"student_name" validate:"required"`
	AssessorName   string          `json:"assessor_name" validate:"required"`
	SectionName    string          `json:"section_name" validate:"required"`
	ClassName      string          `json:"class_name" validate:"required"`
	Responses      map[string]bool `json:"checklist_responses"`

	// Both signatures together mark the assessment acknowledged on submit.
	StudentSignature  string `json:"student_signature,omitempty"`
	AssessorSignature string `json:"assessor_signature,omitempty"`
}

func (in SubmitInput) trimmed() SubmitInput {
	in.StudentName = strings.TrimSpace(in.StudentName)
	in.AssessorName = strings.TrimSpace(in.AssessorName)
	in.SectionName = strings.TrimSpace(in.SectionName)
	in.ClassName = strings.TrimSpace(in.ClassName)
	in.StudentSignature = strings.TrimSpace(in.StudentSignature)
	in.AssessorSignature = strings.TrimSpace(in.AssessorSignature)
	return in
}

type AckInput struct {
	Signature string `json:"student_signature"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// Filter narrows List. Zero values match everything; the date bounds are
// inclusive.
type Filter struct {
	MarkingSheetID string
	StartDate      time.Time
	EndDate        time.Time
	Status         Status `json:"status" validate:"omitempty,oneof=pending passed failed"`
}
