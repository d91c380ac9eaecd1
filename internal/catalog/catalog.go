// Package catalog содержит неизменяемые справочники: тарифные пакеты и типы политик.
package catalog

import (
	"slices"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

// allTemplates: у каждого типа свой экземпляр списка.
func allTemplates() []string {
	return []string{domain.TemplateStandard, domain.TemplateProfessional, domain.TemplateEnterprise}
}

// Порядок каталога важен: по нему строятся списки доступных типов и quick actions.
var policyTypes = []domain.PolicyType{
	{
		ID:          "ethics",
		Title:       "AI Ethics Policy",
		Description: "Principles for fair, transparent and accountable use of AI systems.",
		Tier:        domain.PackageBasic,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Fairness and non-discrimination",
			"Transparency and explainability",
			"Accountability and ownership",
			"Privacy by design",
		},
	},
	{
		ID:          "risk",
		Title:       "AI Risk Management Policy",
		Description: "Identification, assessment and mitigation of risks across the AI lifecycle.",
		Tier:        domain.PackageBasic,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Risk classification of AI systems",
			"Impact assessments before deployment",
			"Risk register and review cadence",
			"Incident escalation",
		},
	},
	{
		ID:          "data",
		Title:       "AI Data Governance Policy",
		Description: "Rules for sourcing, quality, lineage and retention of data used by AI.",
		Tier:        domain.PackageBasic,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Data sourcing and consent",
			"Data quality standards",
			"Lineage and documentation",
			"Retention and deletion",
		},
	},
	{
		ID:          "security",
		Title:       "AI Security Policy",
		Description: "Controls that protect AI systems, models and data from misuse and attack.",
		Tier:        domain.PackageProfessional,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Access control for models and data",
			"Adversarial testing",
			"Secure development lifecycle",
			"Vulnerability management",
		},
	},
	{
		ID:          "model",
		Title:       "AI Model Management Policy",
		Description: "Versioning, validation, monitoring and retirement of AI models.",
		Tier:        domain.PackageProfessional,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Model inventory",
			"Validation before release",
			"Performance and drift monitoring",
			"Decommissioning",
		},
	},
	{
		ID:          "oversight",
		Title:       "Human Oversight Policy",
		Description: "Human-in-the-loop review and intervention rights over AI decisions.",
		Tier:        domain.PackageProfessional,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Decisions requiring human review",
			"Override and appeal procedures",
			"Reviewer training",
			"Oversight logging",
		},
	},
	{
		ID:          "compliance",
		Title:       "AI Compliance Policy",
		Description: "Mapping of AI activities to applicable laws, standards and audits.",
		Tier:        domain.PackageProfessional,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Regulatory mapping",
			"Internal audit program",
			"Documentation obligations",
			"Third-party attestations",
		},
	},
	{
		ID:          "usecase",
		Title:       "AI Use Case Evaluation Policy",
		Description: "Intake, evaluation and approval process for new AI use cases.",
		Tier:        domain.PackageProfessional,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Use case intake",
			"Value and risk scoring",
			"Approval authority",
			"Post-implementation review",
		},
	},
	{
		ID:          "procurement",
		Title:       "AI Procurement Policy",
		Description: "Due diligence and contractual requirements for third-party AI products.",
		Tier:        domain.PackagePremium,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Vendor due diligence",
			"Contractual AI clauses",
			"Ongoing vendor monitoring",
			"Exit and data return",
		},
	},
	{
		ID:          "deployment",
		Title:       "AI Deployment Policy",
		Description: "Release gates, rollout controls and rollback for production AI systems.",
		Tier:        domain.PackagePremium,
		Templates:   allTemplates(),
		KeyProvisions: []string{
			"Release readiness criteria",
			"Staged rollout",
			"Rollback procedures",
			"Production monitoring",
		},
	},
}

var packages = []domain.Package{
	{
		Key:         domain.PackageBasic,
		Name:        "Basic",
		Price:       299,
		PolicyLimit: 3,
		Features: []string{
			"3 core AI governance policies",
			"Standard templates",
			"Markdown export",
		},
		AllowedTypes: []string{"ethics", "risk", "data"},
	},
	{
		Key:         domain.PackageProfessional,
		Name:        "Professional",
		Price:       599,
		PolicyLimit: 10,
		Features: []string{
			"8 AI governance policies",
			"All templates",
			"Markdown, HTML and DOCX export",
			"Version history",
		},
		AllowedTypes: []string{"ethics", "risk", "data", "security", "model", "oversight", "compliance", "usecase"},
	},
	{
		Key:         domain.PackagePremium,
		Name:        "Premium",
		Price:       999,
		PolicyLimit: domain.Unlimited,
		Features: []string{
			"Full policy catalog",
			"Unlimited policies",
			"Priority generation",
			"All export formats",
		},
		AllTypes: true,
	},
}

// Catalog: доступ к справочникам. Нулевое значение готово к работе.
type Catalog struct{}

// Default: общий экземпляр каталога.
var Default = Catalog{}

// ListPackages возвращает пакеты в порядке возрастания цены.
func (Catalog) ListPackages() []domain.Package {
	out := make([]domain.Package, len(packages))
	for i := range packages {
		out[i] = clonePackage(packages[i])
	}
	return out
}

// GetPackage ищет пакет по точному ключу. Неизвестный ключ: nil, false.
func (Catalog) GetPackage(key domain.PackageKey) (*domain.Package, bool) {
	for i := range packages {
		if packages[i].Key == key {
			p := clonePackage(packages[i])
			return &p, true
		}
	}
	return nil, false
}

// PolicyTypes возвращает весь каталог типов в каноническом порядке.
func (Catalog) PolicyTypes() []domain.PolicyType {
	out := make([]domain.PolicyType, len(policyTypes))
	for i := range policyTypes {
		out[i] = cloneType(policyTypes[i])
	}
	return out
}

// GetPolicyType ищет тип по id.
func (Catalog) GetPolicyType(id string) (*domain.PolicyType, bool) {
	for i := range policyTypes {
		if policyTypes[i].ID == id {
			t := cloneType(policyTypes[i])
			return &t, true
		}
	}
	return nil, false
}

// Срезы копируются вглубь: вызывающий не должен менять справочник.
func clonePackage(p domain.Package) domain.Package {
	p.Features = slices.Clone(p.Features)
	p.AllowedTypes = slices.Clone(p.AllowedTypes)
	return p
}

func cloneType(t domain.PolicyType) domain.PolicyType {
	t.Templates = slices.Clone(t.Templates)
	t.KeyProvisions = slices.Clone(t.KeyProvisions)
	return t
}
