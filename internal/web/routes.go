package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/markrhq/markr/internal/web/handlers"
	"github.com/markrhq/markr/internal/web/middleware"
)

func (s *Server) setupRoutes(sessionManager *middleware.SessionManager) {
	// Create handlers
	authHandler := handlers.NewAuthHandler(s.deps.Directory, sessionManager)
	captureHandler := handlers.NewCaptureHandler(s.deps.Manager, s.deps.Pipeline, s.deps.Committer, s.deps.Directory)
	reportHandler := handlers.NewReportHandler(s.deps.Reports)
	studentHandler := handlers.NewStudentHandler(s.deps.Roster, s.deps.Directory, s.deps.Detector)
	teacherHandler := handlers.NewTeacherHandler(s.deps.Directory)
	smsHandler := handlers.NewSMSHandler(s.deps.Notify)
	assistantHandler := handlers.NewAssistantHandler(s.deps.Assistant)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Auth routes
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/status", authHandler.Status)

		// All other routes require an authenticated actor
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionManager, s.deps.Directory))

			// Attendance capture
			r.Post("/attendance/sessions", captureHandler.CreateSession)
			r.Get("/attendance/sessions/{sessionID}", captureHandler.GetSession)
			r.Post("/attendance/sessions/{sessionID}/photo", captureHandler.UploadPhoto)
			r.Post("/attendance/sessions/{sessionID}/confirm", captureHandler.Confirm)
			r.Post("/attendance/override", captureHandler.Override)

			// Reports
			r.Get("/reports/daily", reportHandler.Daily)
			r.Get("/reports/class", reportHandler.ClassRange)

			// Analytics
			r.Get("/analytics/school", reportHandler.SchoolAnalytics)
			r.Get("/analytics/district", reportHandler.DistrictOverview)

			// Students
			r.Get("/students", studentHandler.List)
			r.Post("/students", studentHandler.Create)
			r.Get("/students/{studentID}", studentHandler.Get)
			r.Delete("/students/{studentID}", studentHandler.Deactivate)
			r.Post("/students/{studentID}/photo", studentHandler.Enroll)

			// Teachers
			r.Get("/teachers", teacherHandler.List)
			r.Post("/teachers", teacherHandler.Create)
			r.Post("/teachers/{teacherID}/assignments", teacherHandler.Assign)

			// Notifications
			r.Post("/sms/send", smsHandler.Send)
			r.Get("/sms/history", smsHandler.History)

			// Assistant
			r.Post("/assistant/chat", assistantHandler.Chat)
		})
	})
}
