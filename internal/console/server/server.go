package server

import (
	"net/http"

	"github.com/ferrychris/policyweb-sub000/internal/console/handler"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handlers: обработчики бизнес-доменов.
type Handlers struct {
	Auth         *handler.AuthHandler         // /auth
	Catalog      *handler.CatalogHandler      // /v1/packages, /v1/policy-types
	Dashboard    *handler.DashboardHandler    // /v1/dashboard, /v1/entitlements
	Subscription *handler.SubscriptionHandler // /v1/subscription
	Wizard       *handler.WizardHandler       // /v1/wizard
	Policy       *handler.PolicyHandler       // /v1/policies
	Audit        *handler.AuditHandler        // /v1/audit (admin)
	Admin        *handler.AdminHandler        // /v1/admin (admin)
}

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256)
	authValidator auth.TokenValidator
	h             Handlers
}

// NewConsoleServer инициализирует API со всеми зависимостями
func NewConsoleServer(logger *zap.Logger, validator auth.TokenValidator, h Handlers) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		h:             h,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(infra.TracingMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.h.Auth.Login)
		r.Post("/auth/register", s.h.Auth.Register)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		// Каталог нужен на странице тарифов до логина
		r.Get("/v1/packages", s.h.Catalog.Packages)
		r.Get("/v1/packages/{key}", s.h.Catalog.Package)
		r.Get("/v1/policy-types", s.h.Catalog.PolicyTypes)
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Get("/v1/dashboard", s.h.Dashboard.Get)
		r.Get("/v1/entitlements", s.h.Dashboard.Entitlements)
		r.Get("/v1/quick-actions", s.h.Dashboard.QuickActions)

		r.Get("/v1/subscription", s.h.Subscription.Get)
		r.Post("/v1/subscription", s.h.Subscription.Purchase)

		// Мастер создания политики
		r.Route("/v1/wizard", func(r chi.Router) {
			r.Get("/", s.h.Wizard.List)
			r.Post("/", s.h.Wizard.Start)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Wizard.Get)
				r.Delete("/", s.h.Wizard.Discard)
				r.Post("/select", s.h.Wizard.Select)
				r.Post("/cancel", s.h.Wizard.Cancel)
				r.Post("/details", s.h.Wizard.SubmitDetails)
				r.Post("/customize", s.h.Wizard.Customize)
				r.Post("/confirm", s.h.Wizard.Confirm)
				r.Post("/regenerate", s.h.Wizard.Regenerate)
				r.Post("/retry", s.h.Wizard.Retry)
				r.Post("/edit", s.h.Wizard.ToggleEdit)
				r.Put("/content", s.h.Wizard.SaveEdit)
				r.Post("/history/{index}/restore", s.h.Wizard.Restore)
				r.Post("/back", s.h.Wizard.Back)
				r.Post("/publish", s.h.Wizard.Publish)
			})
		})

		// Опубликованные политики пользователя
		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/", s.h.Policy.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.h.Policy.Get)
				r.Put("/", s.h.Policy.Update)
				r.Delete("/", s.h.Policy.Delete)
				r.Get("/export", s.h.Policy.Export)
			})
		})

		// Только для операторов
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(domain.ScopeAdmin))
			r.Get("/v1/audit", s.h.Audit.GetLogs)
			r.Get("/v1/admin/suspensions", s.h.Admin.Suspensions)
			r.Post("/v1/admin/suspensions/{type}", s.h.Admin.Suspend)
			r.Delete("/v1/admin/suspensions/{type}", s.h.Admin.Resume)
		})
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
