package wizard

import (
	"errors"
	"testing"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/catalog"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/entitlement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func acme() domain.OrganizationDetails {
	return domain.OrganizationDetails{
		CompanyName:     "Acme Corp",
		Website:         "https://acme.example",
		Email:           "legal@acme.example",
		Country:         "United States",
		Industry:        "Manufacturing",
		AIMaturityLevel: domain.MaturityDeveloping,
		Template:        domain.TemplateStandard,
	}
}

func newSession(pkg domain.PackageKey) *Session {
	return NewSession("s1", "u1", pkg, catalog.Default, entitlement.NewResolver(catalog.Default), t0)
}

// reviewSession доводит сессию до review с одной версией в истории.
func reviewSession(t *testing.T, pkg domain.PackageKey, typeID string) *Session {
	t.Helper()
	s := newSession(pkg)
	require.NoError(t, s.PickPolicyType(typeID))
	require.NoError(t, s.SubmitDetails(acme()))
	tk, err := s.Confirm()
	require.NoError(t, err)
	require.NoError(t, s.Complete(tk, &engine.Result{Content: "# v0"}, nil, t0))
	return s
}

func TestPickPolicyTypeOutsidePackage(t *testing.T) {
	s := newSession(domain.PackageBasic)

	err := s.PickPolicyType("procurement")
	assert.True(t, errors.Is(err, domain.ErrNotAllowed))
	assert.Equal(t, StepSelect, s.Step)
	assert.Nil(t, s.PolicyType)

	err = s.PickPolicyType("nope")
	_, isValidation := domain.IsValidation(err)
	assert.True(t, isValidation)

	require.NoError(t, s.PickPolicyType("ethics"))
	assert.Equal(t, StepTemplatePicker, s.Step)
}

func TestPickPolicyTypeWithoutSubscription(t *testing.T) {
	s := newSession("")
	assert.True(t, errors.Is(s.PickPolicyType("ethics"), domain.ErrNoSubscription))
	assert.Equal(t, StepSelect, s.Step)
}

func TestSubmitDetailsKeepsStepOnErrors(t *testing.T) {
	s := newSession(domain.PackagePremium)
	require.NoError(t, s.PickPolicyType("ethics"))

	d := acme()
	d.Email = "not-an-email"
	d.CompanyName = ""
	err := s.SubmitDetails(d)
	vErr, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Len(t, vErr.Fields, 2)
	assert.Equal(t, StepTemplatePicker, s.Step)

	d = acme()
	d.Template = "Bespoke"
	_, ok = domain.IsValidation(s.SubmitDetails(d))
	assert.True(t, ok)

	d.Template = ""
	require.NoError(t, s.SubmitDetails(d))
	assert.Equal(t, StepCustomize, s.Step)
	assert.Equal(t, domain.TemplateStandard, s.Details.Template)
}

func TestSubmitDetailsRejectsBlankFields(t *testing.T) {
	s := newSession(domain.PackagePremium)
	require.NoError(t, s.PickPolicyType("ethics"))

	d := acme()
	d.CompanyName = "   "
	d.Country = "\t"
	err := s.SubmitDetails(d)
	vErr, ok := domain.IsValidation(err)
	require.True(t, ok, "got %v", err)
	var names []string
	for _, f := range vErr.Fields {
		names = append(names, f.Field)
	}
	assert.ElementsMatch(t, []string{"company_name", "country"}, names)
	assert.Equal(t, StepTemplatePicker, s.Step)

	// пробелы по краям обрезаются, значение сохраняется
	d = acme()
	d.CompanyName = "  Acme Corp "
	require.NoError(t, s.SubmitDetails(d))
	assert.Equal(t, "Acme Corp", s.Details.CompanyName)
	assert.Equal(t, StepCustomize, s.Step)

	err = s.UpdateDetails(domain.OrganizationDetails{Website: " \n "})
	_, ok = domain.IsValidation(err)
	assert.True(t, ok)
	assert.Equal(t, "https://acme.example", s.Details.Website)
}

func TestConfirmRequiresAllSixFields(t *testing.T) {
	s := newSession(domain.PackagePremium)
	require.NoError(t, s.PickPolicyType("ethics"))
	d := acme()
	d.Industry = ""
	d.AIMaturityLevel = ""
	require.NoError(t, s.SubmitDetails(d))

	_, err := s.Confirm()
	vErr, ok := domain.IsValidation(err)
	require.True(t, ok)
	assert.Len(t, vErr.Fields, 2)
	assert.Equal(t, StepCustomize, s.Step)
	assert.False(t, s.Generating)
}

func TestRegenerateAppendsChronologicalHistory(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")

	const n = 4
	for i := 1; i <= n; i++ {
		tk, err := s.Regenerate()
		require.NoError(t, err)
		assert.True(t, s.Generating)
		res := &engine.Result{Content: "# v" + string(rune('0'+i))}
		require.NoError(t, s.Complete(tk, res, nil, t0.Add(time.Duration(i)*time.Minute)))
	}

	require.Len(t, s.History, n+1)
	assert.Equal(t, domain.VersionInitial, s.History[0].Kind)
	for i := 1; i < len(s.History); i++ {
		assert.Equal(t, domain.VersionRegenerate, s.History[i].Kind)
		assert.True(t, s.History[i].Timestamp.After(s.History[i-1].Timestamp))
	}
	assert.Equal(t, "# v4", s.Draft)
	assert.Equal(t, s.Draft, s.History[n].Content)
}

func TestSupersededTicketIsDiscarded(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")

	first, err := s.Regenerate()
	require.NoError(t, err)
	second, err := s.Regenerate()
	require.NoError(t, err)

	err = s.Complete(first, &engine.Result{Content: "# old"}, nil, t0)
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.Equal(t, "# v0", s.Draft)
	assert.True(t, s.Generating)

	require.NoError(t, s.Complete(second, &engine.Result{Content: "# new"}, nil, t0))
	assert.Equal(t, "# new", s.Draft)
	assert.Len(t, s.History, 2)
}

func TestBackInvalidatesInFlightGeneration(t *testing.T) {
	s := newSession(domain.PackageBasic)
	require.NoError(t, s.PickPolicyType("risk"))
	require.NoError(t, s.SubmitDetails(acme()))
	tk, err := s.Confirm()
	require.NoError(t, err)

	require.NoError(t, s.Back())
	assert.Equal(t, StepCustomize, s.Step)
	assert.False(t, s.Generating)

	err = s.Complete(tk, &engine.Result{Content: "# late"}, nil, t0)
	assert.ErrorIs(t, err, ErrStaleGeneration)
	assert.Empty(t, s.Draft)
	assert.Empty(t, s.History)
}

func TestFailedGenerationKeepsDraftAndAllowsRetry(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")

	tk, err := s.Regenerate()
	require.NoError(t, err)
	require.NoError(t, s.Complete(tk, nil, errors.New("provider down"), t0))
	assert.Equal(t, "provider down", s.LastError)
	assert.Equal(t, "# v0", s.Draft)
	assert.Len(t, s.History, 1)

	tk, err = s.Retry()
	require.NoError(t, err)
	assert.Equal(t, domain.VersionRegenerate, tk.Kind)
	assert.Empty(t, s.LastError)
	require.NoError(t, s.Complete(tk, &engine.Result{Content: "# v1"}, nil, t0))
	assert.Len(t, s.History, 2)

	_, err = s.Retry()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestEditAndRestore(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")

	assert.ErrorIs(t, s.SaveEdit("# mine", t0), domain.ErrInvalidTransition)
	require.NoError(t, s.ToggleEdit())
	assert.True(t, s.Editing)
	assert.ErrorIs(t, s.CanPublish(), domain.ErrInvalidTransition)

	_, isValidation := domain.IsValidation(s.SaveEdit("   ", t0))
	assert.True(t, isValidation)

	edited := "# mine\n\nSee ETH-PROC-002 (Bias Review)."
	require.NoError(t, s.SaveEdit(edited, t0.Add(time.Minute)))
	assert.False(t, s.Editing)
	assert.Equal(t, edited, s.Draft)
	assert.Equal(t, []string{"ETH-PROC-002 (Bias Review)"}, s.References)
	require.Len(t, s.History, 2)
	assert.Equal(t, domain.VersionEdit, s.History[1].Kind)

	require.NoError(t, s.RestoreVersion(0, t0.Add(2*time.Minute)))
	assert.Equal(t, "# v0", s.Draft)
	assert.Len(t, s.History, 2)

	assert.ErrorIs(t, s.RestoreVersion(5, t0), domain.ErrNotFound)
}

func TestSwitchingTypeStartsFreshDraft(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")
	require.NoError(t, s.Back())
	require.NoError(t, s.Back())
	require.Equal(t, StepSelect, s.Step)

	require.NoError(t, s.PickPolicyType("risk"))
	assert.Empty(t, s.Draft)
	assert.Empty(t, s.History)
	assert.Empty(t, s.References)

	require.NoError(t, s.SubmitDetails(domain.OrganizationDetails{}))
	tk, err := s.Confirm()
	require.NoError(t, err)
	assert.Equal(t, domain.VersionInitial, tk.Kind)
	require.NoError(t, s.Complete(tk, &engine.Result{Content: "# Risk v0"}, nil, t0))

	require.Len(t, s.History, 1)
	assert.Equal(t, domain.VersionInitial, s.History[0].Kind)
	assert.Equal(t, "# Risk v0", s.History[0].Content)
	require.NoError(t, s.RestoreVersion(0, t0))
	assert.Equal(t, "# Risk v0", s.NewPolicy(t0).Content)
	assert.Equal(t, "risk", s.NewPolicy(t0).Type)
}

func TestReturningToSameTypeKeepsDraft(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")
	require.NoError(t, s.Back())
	require.NoError(t, s.Back())
	require.NoError(t, s.PickPolicyType("ethics"))
	assert.Equal(t, "# v0", s.Draft)
	assert.Len(t, s.History, 1)
}

func TestBackTransitions(t *testing.T) {
	s := newSession(domain.PackagePremium)
	assert.ErrorIs(t, s.Back(), domain.ErrInvalidTransition)

	require.NoError(t, s.PickPolicyType("ethics"))
	require.NoError(t, s.Back())
	assert.Equal(t, StepSelect, s.Step)

	require.NoError(t, s.PickPolicyType("ethics"))
	require.NoError(t, s.Cancel())
	assert.Equal(t, StepSelect, s.Step)
	assert.ErrorIs(t, s.Cancel(), domain.ErrInvalidTransition)
}

func TestPublishedIsTerminal(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")
	require.NoError(t, s.CanPublish())

	np := s.NewPolicy(t0)
	assert.Equal(t, "Acme Corp AI Ethics Policy", np.Title)
	assert.Equal(t, "ethics", np.Type)
	assert.Equal(t, t0, np.CreatedAt)

	s.MarkPublished("p1", t0)
	assert.Equal(t, StepPublished, s.Step)
	assert.ErrorIs(t, s.Back(), domain.ErrInvalidTransition)
	_, err := s.Regenerate()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.CanPublish(), domain.ErrInvalidTransition)
}

func TestDowngradeBlocksPublish(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "procurement")
	s.Package = domain.PackageBasic
	assert.ErrorIs(t, s.CanPublish(), domain.ErrNotAllowed)
	_, err := s.Regenerate()
	assert.ErrorIs(t, err, domain.ErrNotAllowed)
}

func TestSnapshotIsDetached(t *testing.T) {
	s := reviewSession(t, domain.PackagePremium, "ethics")
	snap := s.Snapshot()
	snap.History[0].Content = "changed"
	snap.PolicyType.Title = "changed"
	assert.Equal(t, "# v0", s.History[0].Content)
	assert.Equal(t, "AI Ethics Policy", s.PolicyType.Title)
}
