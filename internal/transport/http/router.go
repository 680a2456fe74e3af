package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kurbanlink/api/internal/application/session"
	"github.com/kurbanlink/api/internal/application/user"
	"github.com/kurbanlink/api/internal/application/verification"
	"github.com/kurbanlink/api/internal/config"
	"github.com/kurbanlink/api/internal/domain"
	"github.com/kurbanlink/api/internal/transport/http/handler"
	appmiddleware "github.com/kurbanlink/api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 per client IP on public auth endpoints.
	// The per-challenge resend cooldown is enforced separately in the
	// verification service; this shields the code generator and the mailer.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	verificationSvc := verification.NewService(verification.ServiceDeps{
		ChallengeRepo: deps.ChallengeRepo,
		TokenRepo:     deps.TokenRepo,
		UserRepo:      deps.UserRepo,
		Mailer:        deps.Mailer,
		Hasher:        deps.Hasher,
		Clock:         deps.Clock,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:            deps.UserRepo,
		SessionRepo:         deps.SessionRepo,
		Verifier:            verificationSvc,
		JWTProvider:         deps.JWTProvider,
		Hasher:              deps.Hasher,
		Clock:               deps.Clock,
		RefreshTokenDur:     cfg.RefreshTokenExpiry,
		RequireVerification: cfg.RegistrationRequireVerification,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo:     deps.SessionRepo,
		UserRepo:        deps.UserRepo,
		JWTProvider:     deps.JWTProvider,
		Hasher:          deps.Hasher,
		Clock:           deps.Clock,
		RefreshTokenDur: cfg.RefreshTokenExpiry,
	})

	healthH := handler.NewHealthHandler()
	verificationH := handler.NewVerificationHandler(verificationSvc, deps.Clock)
	userH := handler.NewUserHandler(userSvc)
	sessionH := handler.NewSessionHandler(sessionSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.With(sensitiveRL.Limit).Post("/email-otp/request", verificationH.RequestOTP)
			r.With(sensitiveRL.Limit).Post("/email-otp/verify", verificationH.VerifyOTP)
			r.With(sensitiveRL.Limit).Post("/register", userH.Register)
			r.With(sensitiveRL.Limit).Post("/login", sessionH.Login)
			r.Post("/refresh", sessionH.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMw)
				r.Post("/logout", sessionH.Logout)
				r.Post("/change-password", userH.ChangePassword)
			})
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/me", userH.Me)
			r.Get("/sessions", sessionH.GetCurrent)
			r.Get("/users/{id}", userH.Get)
			r.Put("/users/{id}", userH.Update)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/users", userH.List)
				r.Delete("/users/{id}", userH.Delete)
			})
		})
	})

	return r
}
