package engine

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
)

// Статический режим: документ собирается из Markdown-шаблона без внешних вызовов.
// Глубина документа растет вместе с выбранным шаблоном.
const policyTemplate = `# {{.Org.CompanyName}} {{.Type.Title}}

**Effective date:** {{.Org.EffectiveDate}}
**Template:** {{.Org.Template}}
**Contact:** {{.Org.Email}} ({{.Org.Website}})

## 1. Purpose

This {{.Type.Title}} establishes how {{.Org.CompanyName}} governs artificial intelligence. {{.Type.Description}}

## 2. Scope

This policy applies to every employee, contractor and third party who designs, procures, operates or relies on AI systems on behalf of {{.Org.CompanyName}} in {{.Org.Country}}, within the {{.Org.Industry}} sector.

## 3. Policy Statements
{{range $i, $p := .Type.KeyProvisions}}
### 3.{{inc $i}} {{$p}}

{{$.Org.CompanyName}} shall maintain documented controls for {{lower $p}}, proportionate to its {{$.Org.AIMaturityLevel}} AI maturity level.
{{end}}
## 4. Responsibilities

- **Executive sponsor:** approves this policy and allocates resources.
- **AI system owners:** ensure their systems comply with this policy.
- **All staff:** report suspected violations through {{procRef .Prefix 1 "Incident Reporting"}}.
{{if ge .Depth 2}}
## 5. Procedures and Monitoring

- {{procRef .Prefix 2 "AI System Inventory"}}: every AI system is registered before use.
- {{procRef .Prefix 3 "Periodic Control Review"}}: controls are reviewed at least annually.
- Key metrics are reported quarterly to the executive sponsor.

## 6. Training

Staff involved with AI systems complete role-based training on this policy within 30 days of onboarding.
{{end}}{{if ge .Depth 3}}
## 7. Governance Committee

An AI Governance Committee chaired by the executive sponsor meets monthly, maintains the AI risk register and decides on policy exceptions.

## 8. Audit and Exceptions

- Internal audit assesses compliance annually following {{procRef .Prefix 4 "AI Compliance Audit"}}.
- Exceptions require written approval from the committee and expire after twelve months.

## Appendix A. Control Mapping

| Provision | Control owner | Evidence |
|---|---|---|
{{range .Type.KeyProvisions}}| {{.}} | AI system owner | Review record |
{{end}}{{end}}
## Review

This policy is reviewed annually or after any significant change in AI use, regulation or incidents.
`

// TemplateRenderer рендерит статические документы.
type TemplateRenderer struct {
	tpl *template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	tpl, err := template.New("policy").Funcs(template.FuncMap{
		"inc":   func(i int) int { return i + 1 },
		"lower": strings.ToLower,
		"procRef": func(prefix string, n int, name string) string {
			return fmt.Sprintf("%s-PROC-%03d (%s)", prefix, n, name)
		},
	}).Parse(policyTemplate)
	if err != nil {
		return nil, fmt.Errorf("engine: parse policy template: %w", err)
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

type templateData struct {
	Type   domain.PolicyType
	Org    domain.OrganizationDetails
	Depth  int
	Prefix string
}

// Render: details уже прошли ValidateDetails и WithDefaults.
func (r *TemplateRenderer) Render(pt domain.PolicyType, d domain.OrganizationDetails) (string, error) {
	depth := 1
	switch d.Template {
	case domain.TemplateProfessional:
		depth = 2
	case domain.TemplateEnterprise:
		depth = 3
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, templateData{Type: pt, Org: d, Depth: depth, Prefix: referencePrefix(pt.ID)}); err != nil {
		return "", fmt.Errorf("engine: render %s template: %w", pt.ID, err)
	}
	return buf.String(), nil
}

// referencePrefix: "ethics" -> "ETH".
func referencePrefix(typeID string) string {
	p := strings.ToUpper(typeID)
	if len(p) > 3 {
		p = p[:3]
	}
	if len(p) < 2 {
		p = "GOV"
	}
	return p
}
