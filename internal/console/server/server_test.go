package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/console/handler"
	"github.com/ferrychris/policyweb-sub000/internal/console/service"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/payment"
	"github.com/ferrychris/policyweb-sub000/internal/repository/memory"
	"github.com/ferrychris/policyweb-sub000/internal/wizard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	srv  *ConsoleServer
	auth *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	privPEM, pubPEM, err := auth.GenerateEphemeralKeys()
	require.NoError(t, err)
	priv, err := auth.ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	pub, err := auth.ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)

	users := memory.NewUserRepo()
	subs := memory.NewSubscriptionRepo()
	policies := memory.NewPolicyRepo()
	auditRepo := memory.NewAuditRepo(1000)
	activity := audit.NewActivityLog(auditRepo, audit.Options{BufferSize: 100, FlushInterval: 10 * time.Millisecond}, logger)
	activity.Start()
	t.Cleanup(activity.Stop)

	memo := entitlement.NewMemoCache(subs, nil, logger)
	resolver := entitlement.NewResolver(catalog.Default)

	switches := engine.NewKillSwitchManager(nil, logger)
	gen, err := engine.NewGenerator(engine.Config{Mode: engine.ModeTemplate}, nil, activity, nil, logger)
	require.NoError(t, err)
	gen.WithKillSwitch(switches)
	manager := wizard.NewManager(wizard.Deps{
		Types:     catalog.Default,
		Rules:     resolver,
		Generator: gen,
		Store:     policies,
		Auditor:   activity,
		Logger:    logger,
	}, time.Hour)

	authSvc := service.NewAuthService(users, auth.NewSigner(priv, time.Hour), bcrypt.MinCost, logger)
	subSvc := service.NewSubscriptionService(subs, catalog.Default, payment.NewSandbox(0, logger), memo, activity, 0, logger)
	policySvc := service.NewPolicyService(policies, export.NewExporter(), activity, logger)
	dashSvc := service.NewDashboardService(memo, resolver, catalog.Default, policySvc, subs)

	srv := NewConsoleServer(logger, auth.NewBaseValidator(pub), Handlers{
		Auth:         handler.NewAuthHandler(authSvc, logger),
		Catalog:      handler.NewCatalogHandler(catalog.Default),
		Dashboard:    handler.NewDashboardHandler(dashSvc, logger),
		Subscription: handler.NewSubscriptionHandler(subSvc, logger),
		Wizard:       handler.NewWizardHandler(manager, dashSvc, logger),
		Policy:       handler.NewPolicyHandler(policySvc, logger),
		Audit:        handler.NewAuditHandler(service.NewAuditService(auditRepo), logger),
		Admin:        handler.NewAdminHandler(switches, catalog.Default, logger),
	})
	return &testEnv{srv: srv, auth: authSvc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/token", "", domain.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func card(number string) domain.PaymentDetails {
	return domain.PaymentDetails{CardNumber: number, CardHolder: "Jane Doe", ExpMonth: 12, ExpYear: 2099, CVC: "123"}
}

func TestPublicRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/packages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.Package](t, rec), 3)

	rec = env.do(t, http.MethodGet, "/v1/packages/professional", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 599, decodeBody[domain.Package](t, rec).Price)

	rec = env.do(t, http.MethodGet, "/v1/packages/Basic", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/policy-types", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.PolicyType](t, rec), len(catalog.Default.PolicyTypes()))

	rec = env.do(t, http.MethodGet, "/v1/policies", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", "", domain.RegisterRequest{Username: "jane", Email: "nope", Password: "correct-horse"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[handler.ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", body.Error)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "email", body.Fields[0].Field)

	rec = env.do(t, http.MethodPost, "/auth/token", "", domain.LoginRequest{Username: "ghost", Password: "whatever"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWizardFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/auth/register", "", domain.RegisterRequest{Username: "jane", Email: "jane@acme.example", Password: "correct-horse"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	token := env.login(t, "jane", "correct-horse")

	rec = env.do(t, http.MethodGet, "/v1/entitlements", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[service.Entitlements](t, rec).Active)

	rec = env.do(t, http.MethodPost, "/v1/wizard", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[wizard.Session](t, rec).ID
	base := "/v1/wizard/" + id

	// без подписки ни один тип недоступен
	rec = env.do(t, http.MethodPost, base+"/select", token, map[string]string{"policy_type": "ethics"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "no_subscription", decodeBody[handler.ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/v1/subscription", token, domain.PurchaseRequest{Package: domain.PackageBasic, Payment: card(payment.CardDecline)})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/subscription", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/subscription", token, domain.PurchaseRequest{Package: domain.PackageBasic, Payment: card("4242424242424242")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.PackageBasic, decodeBody[handler.PurchaseResponse](t, rec).Subscription.PackageKey)

	rec = env.do(t, http.MethodPost, base+"/select", token, map[string]string{"policy_type": "security"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_allowed", decodeBody[handler.ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, base+"/select", token, map[string]string{"policy_type": "ethics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, wizard.StepTemplatePicker, decodeBody[wizard.Session](t, rec).Step)

	details := domain.OrganizationDetails{
		CompanyName: "Acme Corp", Website: "https://acme.example", Email: "legal@acme.example",
		Country: "United States", Industry: "Manufacturing", AIMaturityLevel: domain.MaturityDefined,
	}
	rec = env.do(t, http.MethodPost, base+"/details", token, details)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/publish", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/confirm", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeBody[wizard.Session](t, rec)
	assert.Equal(t, wizard.StepReview, s.Step)
	assert.Contains(t, s.Draft, "Acme Corp")
	assert.Len(t, s.History, 1)

	rec = env.do(t, http.MethodPost, base+"/regenerate", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[wizard.Session](t, rec).History, 2)

	rec = env.do(t, http.MethodPost, base+"/edit", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPut, base+"/content", token, map[string]string{"content": "# Acme Corp AI Ethics Policy\n\nEdited."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[wizard.Session](t, rec).History, 3)

	rec = env.do(t, http.MethodPost, base+"/history/0/restore", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decodeBody[wizard.Session](t, rec)
	assert.Equal(t, restored.History[0].Content, restored.Draft)
	assert.Len(t, restored.History, 3)

	rec = env.do(t, http.MethodPost, base+"/history/9/restore", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/publish", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	published := decodeBody[handler.PublishResponse](t, rec)
	assert.Equal(t, "Acme Corp AI Ethics Policy", published.Policy.Title)
	assert.Equal(t, wizard.StepPublished, published.Session.Step)

	rec = env.do(t, http.MethodPost, base+"/back", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/policies", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]domain.GeneratedPolicy](t, rec)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].UpdatedAt)

	rec = env.do(t, http.MethodGet, "/v1/policies/"+published.Policy.ID+"/export?format=pdf", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(handler.ExportNoticeHeader))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")

	rec = env.do(t, http.MethodGet, "/v1/policies/"+published.Policy.ID+"/export?format=html", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(handler.ExportNoticeHeader))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = env.do(t, http.MethodPut, "/v1/policies/"+published.Policy.ID, token, map[string]string{"title": "Acme Ethics"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.GeneratedPolicy](t, rec)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))

	rec = env.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decodeBody[domain.Dashboard](t, rec)
	assert.Equal(t, 1, dash.Usage.Policies)
	assert.Equal(t, 2, dash.Usage.Remaining)

	rec = env.do(t, http.MethodGet, "/v1/audit", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/policies/"+published.Policy.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/v1/policies/"+published.Policy.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminReadsAudit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.auth.EnsureAdmin(context.Background(), "root", "root-password"))
	token := env.login(t, "root", "root-password")

	// оператор получает premium без подписки
	rec := env.do(t, http.MethodGet, "/v1/entitlements", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PackagePremium, decodeBody[service.Entitlements](t, rec).Package)

	rec = env.do(t, http.MethodPost, "/v1/subscription", token, domain.PurchaseRequest{Package: domain.PackageBasic, Payment: card(payment.CardInsufficientFunds)})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	assert.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/v1/audit?action="+audit.ActionSubscription, token, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var events []audit.Event
		return json.Unmarshal(rec.Body.Bytes(), &events) == nil && len(events) == 1 && events[0].Status == audit.StatusFailed
	}, 2*time.Second, 20*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/v1/audit?limit=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSuspendedTypeOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.auth.EnsureAdmin(context.Background(), "root", "root-password"))
	token := env.login(t, "root", "root-password")

	rec := env.do(t, http.MethodPost, "/v1/admin/suspensions/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodPost, "/v1/admin/suspensions/ethics", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/wizard", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	base := "/v1/wizard/" + decodeBody[wizard.Session](t, rec).ID
	rec = env.do(t, http.MethodPost, base+"/select", token, map[string]string{"policy_type": "ethics"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPost, base+"/details", token, domain.OrganizationDetails{
		CompanyName: "Acme Corp", Website: "https://acme.example", Email: "legal@acme.example",
		Country: "Germany", Industry: "Retail", AIMaturityLevel: domain.MaturityInitial,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/confirm", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "generation_suspended", decodeBody[handler.ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodDelete, "/v1/admin/suspensions/ethics", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/retry", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeBody[wizard.Session](t, rec)
	assert.NotEmpty(t, s.Draft)
	assert.Empty(t, s.LastError)
}
