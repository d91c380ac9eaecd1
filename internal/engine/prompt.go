package engine

import (
	"fmt"
	"strings"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/validation"
)

// SystemPrompt: фиксированная инструкция для модели.
const SystemPrompt = `You are a senior AI governance consultant who drafts corporate policies.
Write the complete policy document in GitHub-flavored Markdown.
Use numbered sections with clear headings, plain professional English and concrete obligations.
Refer to internal procedures using identifiers of the form ABC-PROC-001 followed by the procedure name in parentheses.
Do not include HTML, code fences, placeholders in square brackets or commentary about the document itself.`

var templateDepth = map[string]string{
	domain.TemplateStandard:     "Concise policy covering purpose, scope, principles, responsibilities and review.",
	domain.TemplateProfessional: "Detailed policy adding roles and responsibilities matrix, procedures, monitoring metrics and training requirements.",
	domain.TemplateEnterprise:   "Comprehensive enterprise policy adding a governance committee charter, control mapping, audit program, exceptions process and appendices.",
}

// requiredFields: шесть полей, без которых генерация не запускается.
type requiredFields struct {
	CompanyName     string `json:"company_name" validate:"required"`
	Website         string `json:"website" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Country         string `json:"country" validate:"required"`
	Industry        string `json:"industry" validate:"required"`
	AIMaturityLevel string `json:"ai_maturity_level" validate:"required,oneof=initial developing defined managed optimizing"`
}

// ValidateDetails проверяет обязательные поля. Пробелы считаются пустым значением.
func ValidateDetails(d domain.OrganizationDetails) error {
	return validation.Struct(requiredFields{
		CompanyName:     strings.TrimSpace(d.CompanyName),
		Website:         strings.TrimSpace(d.Website),
		Email:           strings.TrimSpace(d.Email),
		Country:         strings.TrimSpace(d.Country),
		Industry:        strings.TrimSpace(d.Industry),
		AIMaturityLevel: strings.TrimSpace(string(d.AIMaturityLevel)),
	})
}

// BuildUserPrompt собирает запрос из анкеты. details уже прошли ValidateDetails и WithDefaults.
func BuildUserPrompt(pt domain.PolicyType, d domain.OrganizationDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy: %s\n", pt.Title)
	fmt.Fprintf(&b, "Policy type: %s\n", pt.ID)
	fmt.Fprintf(&b, "Template: %s\n", d.Template)
	if depth, ok := templateDepth[d.Template]; ok {
		fmt.Fprintf(&b, "Depth: %s\n", depth)
	}
	b.WriteString("\nOrganization\n")
	fmt.Fprintf(&b, "Company: %s\n", d.CompanyName)
	fmt.Fprintf(&b, "Website: %s\n", d.Website)
	fmt.Fprintf(&b, "Contact email: %s\n", d.Email)
	fmt.Fprintf(&b, "Country: %s\n", d.Country)
	fmt.Fprintf(&b, "Industry: %s\n", d.Industry)
	fmt.Fprintf(&b, "AI maturity level: %s\n", d.AIMaturityLevel)
	fmt.Fprintf(&b, "Effective date: %s\n", d.EffectiveDate)

	if pt.Description != "" {
		fmt.Fprintf(&b, "\nPolicy objective: %s\n", pt.Description)
	}
	if len(pt.KeyProvisions) > 0 {
		b.WriteString("\nKey provisions to cover:\n")
		for _, p := range pt.KeyProvisions {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	fmt.Fprintf(&b, "\nTailor obligations to the %s industry, the laws of %s and an organization at the %q maturity level.\n",
		d.Industry, d.Country, d.AIMaturityLevel)
	return b.String()
}
