package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mind-engage/markingsheet/internal/auth"
	"github.com/mind-engage/markingsheet/internal/config"
	"github.com/mind-engage/markingsheet/internal/logging"
	"github.com/mind-engage/markingsheet/internal/metrics"
	"github.com/mind-engage/markingsheet/internal/ratelimit"
	"github.com/mind-engage/markingsheet/internal/rbac"
	"github.com/mind-engage/markingsheet/internal/sheet"
)

type Deps struct {
	Config      config.Config
	Logger      *zap.Logger
	Auth        *auth.AuthService
	Google      *auth.Google // nil unless Google sign-in is enabled
	Sheets      sheet.Store
	Unlocks     ratelimit.Limiter // nil disables unlock attempt limits
	Assessments Assessments
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	Ping        func(context.Context) error
	Now         func() time.Time
}

func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	links := Links{PublicURL: d.Config.PublicURL}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.Middleware(d.Logger), middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", auth.SheetTokenHeader},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Ping))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	if d.Config.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, auth.LocalAdmin{
			User:     d.Config.AdminUser,
			PassHash: d.Config.AdminPassHash,
		}))
	}
	if d.Google != nil {
		r.Get("/auth/google/login", d.Google.LoginHandler())
		r.Get("/auth/google/callback", d.Google.CallbackHandler())
	}

	r.Post("/score", ScoreHandler())

	// Assessor flow: list, unlock with the sheet password, then score.
	r.Route("/sheets", func(sr chi.Router) {
		sr.Get("/", ListPublicSheetsHandler(d.Sheets))
		sr.Post("/{sheetID}/unlock", UnlockSheetHandler(d.Sheets, d.Auth, d.Unlocks, d.Metrics))

		sr.Group(func(pr chi.Router) {
			pr.Use(auth.RequireSheetToken(d.Auth, func(r *http.Request) string { return chi.URLParam(r, "sheetID") }))
			pr.With(rbac.Require(rbac.PermAssessmentPreview)).
				Post("/{sheetID}/preview", PreviewAssessmentHandler(d.Assessments, links))
			pr.With(rbac.Require(rbac.PermAssessmentSubmit)).
				Post("/{sheetID}/assessments", SubmitAssessmentHandler(d.Assessments, links))
		})
	})

	// Student acknowledgment link.
	r.Get("/assessments/{assessmentID}", GetAssessmentHandler(d.Assessments, links))
	r.Post("/assessments/{assessmentID}/acknowledge", AcknowledgeAssessmentHandler(d.Assessments, links))

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(auth.JWTMiddleware(d.Auth))

		ar.Route("/sheets", func(sr chi.Router) {
			sr.Use(rbac.Require(rbac.PermSheetManage))
			sr.Get("/", ListSheetsHandler(d.Sheets))
			sr.Post("/", CreateSheetHandler(d.Sheets))
			sr.Get("/{sheetID}", GetSheetHandler(d.Sheets))
			sr.Put("/{sheetID}", UpdateSheetHandler(d.Sheets))
			sr.Delete("/{sheetID}", DeleteSheetHandler(d.Sheets))
		})

		ar.With(rbac.Require(rbac.PermAssessmentView)).
			Get("/assessments", ListAssessmentsHandler(d.Assessments, links))
		ar.With(rbac.RequireAny(rbac.PermAssessmentExport, rbac.PermAssessmentView)).
			Get("/assessments/export.csv", ExportAssessmentsHandler(d.Assessments, d.Now))
		ar.With(rbac.Require(rbac.PermAssessmentView)).
			Get("/assessments/{assessmentID}/acknowledgments", ListAcknowledgmentsHandler(d.Assessments))
	})

	return r
}
