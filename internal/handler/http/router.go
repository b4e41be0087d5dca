package http

import (
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/studio-payroll/internal/handler/http/middleware"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

// RouterConfig carries the ambient settings of the HTTP surface
type RouterConfig struct {
	Logger      *slog.Logger
	LogLevel    slog.Level
	CORSOrigins []string
	UploadsDir  string // served under /uploads to authenticated users; empty disables
}

func NewRouter(cfg RouterConfig, JWTService jwt.Service, payrollHandler PayrollHandler, notificationHandler NotificationHandler) *chi.Mux {
	r := chi.NewRouter()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  cfg.LogLevel,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Route("/api/v1", func(r chi.Router) {

		// SSE authenticates with a short-lived query token
		r.Get("/notifications/stream", notificationHandler.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired)

			r.Route("/payroll", func(r chi.Router) {
				r.Route("/cycles", func(r chi.Router) {
					r.Get("/", payrollHandler.ListCycles)
					r.Post("/", payrollHandler.GenerateCycle)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", payrollHandler.GetCycle)
						r.Delete("/", payrollHandler.DeleteCycle)
						r.Get("/summary", payrollHandler.GetCycleSummary)
						r.Get("/register.xlsx", payrollHandler.ExportRegister)
						r.Get("/slips", payrollHandler.ListSlips)
						r.Post("/send-to-review", payrollHandler.SendToReview)
						r.Post("/ready-to-pay", payrollHandler.MarkReadyToPay)
						r.Post("/finalize", payrollHandler.FinalizeCycle)
					})
				})

				r.Route("/slips/{slipId}", func(r chi.Router) {
					r.Get("/", payrollHandler.GetSlip)
					r.Patch("/", payrollHandler.EditSlip)
					r.Delete("/", payrollHandler.DeleteSlip)
					r.Post("/respond", payrollHandler.RespondToSlip)
					r.Get("/payslip.pdf", payrollHandler.DownloadSlipPDF)
				})

				r.Route("/deduction-rates", func(r chi.Router) {
					r.Get("/", payrollHandler.GetDeductionRates)
					r.Put("/", payrollHandler.UpdateDeductionRates)
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Post("/read", notificationHandler.MarkAsRead)
				r.Post("/read-all", notificationHandler.MarkAllAsRead)
				r.Post("/sse-token", notificationHandler.GetSSEToken)
			})

			if cfg.UploadsDir != "" {
				r.Handle("/uploads/*", http.StripPrefix("/api/v1/uploads/", http.FileServer(http.Dir(cfg.UploadsDir))))
			}
		})
	})
	return r
}
