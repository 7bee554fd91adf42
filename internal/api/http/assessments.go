package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mind-engage/markingsheet/internal/apperr"
	"github.com/mind-engage/markingsheet/internal/assessment"
	"github.com/mind-engage/markingsheet/internal/export"
	"github.com/mind-engage/markingsheet/internal/httpx/reply"
	"github.com/mind-engage/markingsheet/internal/httpx/req"
	"github.com/mind-engage/markingsheet/internal/logging"
)

// Assessments is the assessment service as used by the handlers.
type Assessments interface {
	Preview(ctx context.Context, in assessment.SubmitInput) (assessment.Assessment, error)
	Submit(ctx context.Context, in assessment.SubmitInput) (assessment.Assessment, error)
	Get(ctx context.Context, id string) (assessment.Assessment, error)
	List(ctx context.Context, f assessment.Filter) ([]assessment.Assessment, error)
	Acknowledge(ctx context.Context, id string, in assessment.AckInput) (assessment.Assessment, error)
	Acknowledgments(ctx context.Context, id string) ([]assessment.Acknowledgment, error)
}

type assessmentView struct {
	assessment.Assessment
	AcknowledgeURL string `json:"acknowledge_url,omitempty"`
}

// Links builds student-facing URLs under the public base URL.
type Links struct {
	PublicURL string
}

func (l Links) view(a assessment.Assessment) assessmentView {
	v := assessmentView{Assessment: a}
	if a.ID != "" {
		v.AcknowledgeURL = l.PublicURL + "/acknowledge/" + a.ID
	}
	return v
}

func (l Links) views(list []assessment.Assessment) []assessmentView {
	return lo.Map(list, func(a assessment.Assessment, _ int) assessmentView { return l.view(a) })
}

func readSubmitInput(r *http.Request) (assessment.SubmitInput, error) {
	var in assessment.SubmitInput
	if err := req.Decode(r, &in); err != nil {
		return in, err
	}
	in.MarkingSheetID = chi.URLParam(r, "sheetID")
	return in, nil
}

func PreviewAssessmentHandler(svc Assessments, links Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := readSubmitInput(r)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		a, err := svc.Preview(r.Context(), in)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, links.view(a))
	}
}

func SubmitAssessmentHandler(svc Assessments, links Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := readSubmitInput(r)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		a, err := svc.Submit(r.Context(), in)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusCreated, links.view(a))
	}
}

func GetAssessmentHandler(svc Assessments, links Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.Get(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, links.view(a))
	}
}

func AcknowledgeAssessmentHandler(svc Assessments, links Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in assessment.AckInput
		if err := req.Decode(r, &in); err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		in.IPAddress = clientIP(r)
		in.UserAgent = r.UserAgent()

		a, err := svc.Acknowledge(r.Context(), chi.URLParam(r, "assessmentID"), in)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, links.view(a))
	}
}

func ListAcknowledgmentsHandler(svc Assessments) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acks, err := svc.Acknowledgments(r.Context(), chi.URLParam(r, "assessmentID"))
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, acks)
	}
}

func ListAssessmentsHandler(svc Assessments, links Links) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		list, err := svc.List(r.Context(), f)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		reply.JSON(r.Context(), w, http.StatusOK, links.views(list))
	}
}

// ExportAssessmentsHandler streams the filtered list as a CSV download.
func ExportAssessmentsHandler(svc Assessments, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}
		list, err := svc.List(r.Context(), f)
		if err != nil {
			reply.Error(r.Context(), w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(now())))
		if err := export.WriteCSV(w, list); err != nil {
			// headers are gone; all we can do is log
			logging.FromContext(r.Context()).Error("export csv", zap.Error(err))
		}
	}
}

const dateLayout = "2006-01-02"

// parseFilter reads marking_sheet_id, start_date, end_date (YYYY-MM-DD,
// both inclusive) and status from the query string.
func parseFilter(r *http.Request) (assessment.Filter, error) {
	q := r.URL.Query()
	f := assessment.Filter{
		MarkingSheetID: q.Get("marking_sheet_id"),
		Status:         assessment.Status(q.Get("status")),
	}
	if s := q.Get("start_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, apperr.Invalid("start_date must be YYYY-MM-DD")
		}
		f.StartDate = t
	}
	if s := q.Get("end_date"); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return f, apperr.Invalid("end_date must be YYYY-MM-DD")
		}
		f.EndDate = t.Add(24*time.Hour - time.Second)
	}
	return f, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
