package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/infra/auth"
	"github.com/ferrychris/policyweb-sub000/internal/payment"
	"github.com/ferrychris/policyweb-sub000/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAuditor) Log(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAuditor) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Action+"/"+e.Status)
	}
	return out
}

type countingNotifier struct{ calls []string }

func (n *countingNotifier) Notify(_ context.Context, userID string) error {
	n.calls = append(n.calls, userID)
	return nil
}

func validCard() domain.PaymentDetails {
	return domain.PaymentDetails{CardNumber: "4242 4242 4242 4242", CardHolder: "Jane Doe", ExpMonth: 12, ExpYear: 2099, CVC: "123"}
}

func TestAuthRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	privPEM, _, err := auth.GenerateEphemeralKeys()
	require.NoError(t, err)
	priv, err := auth.ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)

	svc := NewAuthService(memory.NewUserRepo(), auth.NewSigner(priv, time.Hour), bcrypt.MinCost, zap.NewNop())

	_, err = svc.Register(ctx, domain.RegisterRequest{Username: "jd", Email: "bad", Password: "short"})
	vErr, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Len(t, vErr.Fields, 3)

	u, err := svc.Register(ctx, domain.RegisterRequest{Username: "jane", Email: "jane@acme.example", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "user", u.Role)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)

	_, err = svc.Register(ctx, domain.RegisterRequest{Username: "jane", Email: "other@acme.example", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	tok, err := svc.GenerateToken(ctx, "jane", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.AccessToken)

	_, err = svc.GenerateToken(ctx, "jane", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.GenerateToken(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "root-password"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "root-password"))
	_, err = svc.GenerateToken(ctx, "root", "root-password")
	require.NoError(t, err)
}

func TestSubscriptionPurchase(t *testing.T) {
	ctx := context.Background()
	subs := memory.NewSubscriptionRepo()
	notifier := &countingNotifier{}
	aud := &recordingAuditor{}
	svc := NewSubscriptionService(subs, catalog.Default, payment.NewSandbox(0, zap.NewNop()), notifier, aud, 30*24*time.Hour, zap.NewNop())
	fixed := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	sub, receipt, err := svc.Purchase(ctx, "u1", domain.PurchaseRequest{Package: domain.PackageProfessional, Payment: validCard()})
	require.NoError(t, err)
	assert.Equal(t, int64(59900), receipt.AmountCents)
	assert.Equal(t, domain.PackageProfessional, sub.PackageKey)
	assert.Equal(t, fixed.Add(30*24*time.Hour), sub.ExpiresAt)
	assert.Equal(t, "visa •••• 4242", sub.PaymentMethod)
	assert.Equal(t, []string{"u1"}, notifier.calls)

	declined := validCard()
	declined.CardNumber = payment.CardDecline
	_, _, err = svc.Purchase(ctx, "u1", domain.PurchaseRequest{Package: domain.PackagePremium, Payment: declined})
	assert.True(t, IsPaymentFailure(err))

	stored, err := subs.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PackageProfessional, stored.PackageKey)
	assert.Len(t, notifier.calls, 1)

	_, _, err = svc.Purchase(ctx, "u1", domain.PurchaseRequest{Package: "gold", Payment: validCard()})
	_, ok := domain.IsValidation(err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		audit.ActionSubscription + "/" + audit.StatusSuccess,
		audit.ActionSubscription + "/" + audit.StatusFailed,
	}, aud.actions())
}

func newPolicyService(t *testing.T) (*PolicyService, *memory.PolicyRepo, *recordingAuditor) {
	t.Helper()
	repo := memory.NewPolicyRepo()
	aud := &recordingAuditor{}
	return NewPolicyService(repo, export.NewExporter(), aud, zap.NewNop()), repo, aud
}

func TestPolicyEditSetsUpdatedAtOnly(t *testing.T) {
	ctx := context.Background()
	svc, repo, aud := newPolicyService(t)
	published := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p, err := repo.Create(ctx, "u1", domain.NewPolicy{Title: "Acme Corp AI Ethics Policy", Type: "ethics", Content: "# v1", CreatedAt: published})
	require.NoError(t, err)
	require.Nil(t, p.UpdatedAt)

	content := "# v2\n\n\n\nbody"
	updated, err := svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, published, updated.CreatedAt)
	require.NotNil(t, updated.UpdatedAt)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	assert.Equal(t, "# v2\n\nbody", updated.Content)
	assert.Equal(t, "Acme Corp AI Ethics Policy", updated.Title)

	_, err = svc.Update(ctx, "u2", p.ID, domain.PolicyPatch{Content: &content})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{})
	_, ok := domain.IsValidation(err)
	assert.True(t, ok)

	assert.Equal(t, []string{audit.ActionUpdate + "/" + audit.StatusSuccess}, aud.actions())
}

func TestPolicyEditRecomputesReferences(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newPolicyService(t)
	p, err := repo.Create(ctx, "u1", domain.NewPolicy{
		Title:      "Acme Corp AI Ethics Policy",
		Type:       "ethics",
		Content:    "See ETH-PROC-001 (Incident Reporting).",
		References: []string{"ETH-PROC-001 (Incident Reporting)"},
	})
	require.NoError(t, err)

	content := "See ETH-PROC-002 (Bias Testing)."
	updated, err := svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH-PROC-002 (Bias Testing)"}, updated.References)

	content = "No procedures left."
	updated, err = svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{Content: &content})
	require.NoError(t, err)
	assert.Empty(t, updated.References)

	// правка только заголовка ссылки не трогает
	content = "See ETH-PROC-003 (Audit Trail)."
	_, err = svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{Content: &content})
	require.NoError(t, err)
	title := "Renamed"
	updated, err = svc.Update(ctx, "u1", p.ID, domain.PolicyPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH-PROC-003 (Audit Trail)"}, updated.References)
}

func TestPolicyDeleteAndExport(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newPolicyService(t)
	p, err := repo.Create(ctx, "u1", domain.NewPolicy{Title: "Acme Corp AI Risk Management Policy", Type: "risk", Content: "# Risk"})
	require.NoError(t, err)

	doc, err := svc.Export(ctx, "u1", p.ID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, export.FormatMarkdown, doc.Format)
	assert.NotEmpty(t, doc.Notice)

	assert.ErrorIs(t, svc.Delete(ctx, "u2", p.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", p.ID))
	_, err = svc.Get(ctx, "u1", p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	subs := memory.NewSubscriptionRepo()
	now := time.Now()
	require.NoError(t, subs.UpsertSubscription(ctx, &domain.Subscription{
		UserID: "u1", Active: true, PackageKey: domain.PackageBasic, StartedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	memo := entitlement.NewMemoCache(subs, nil, zap.NewNop())
	resolver := entitlement.NewResolver(catalog.Default)
	policies, repo, _ := newPolicyService(t)
	for _, typ := range []string{"ethics", "ethics", "risk"} {
		_, err := repo.Create(ctx, "u1", domain.NewPolicy{Title: typ, Type: typ, Content: "# x"})
		require.NoError(t, err)
	}
	svc := NewDashboardService(memo, resolver, catalog.Default, policies, subs)

	d, err := svc.Get(ctx, &domain.CustomClaims{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PackageBasic, d.Package)
	assert.Equal(t, 3, d.Usage.Policies)
	assert.Equal(t, 3, d.Usage.Limit)
	assert.Equal(t, 0, d.Usage.Remaining)
	assert.Equal(t, 2, d.Usage.ByType["ethics"])
	assert.Len(t, d.Recent, 3)
	assert.Len(t, d.QuickActions, 3)

	ent, err := svc.Entitlements(ctx, &domain.CustomClaims{UserID: "nobody"})
	require.NoError(t, err)
	assert.False(t, ent.Active)
	assert.Empty(t, ent.PolicyTypes)

	ent, err = svc.Entitlements(ctx, &domain.CustomClaims{UserID: "op", Scopes: map[string]bool{domain.ScopeAdmin: true}})
	require.NoError(t, err)
	assert.Equal(t, domain.PackagePremium, ent.Package)
	assert.Len(t, ent.PolicyTypes, len(catalog.Default.PolicyTypes()))
	assert.Equal(t, domain.Unlimited, ent.Limit)
}
