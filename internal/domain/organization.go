package domain

import (
	"strings"
	"time"
)

// AIMaturity: уровень зрелости AI-практик организации.
type AIMaturity string

const (
	MaturityInitial    AIMaturity = "initial"
	MaturityDeveloping AIMaturity = "developing"
	MaturityDefined    AIMaturity = "defined"
	MaturityManaged    AIMaturity = "managed"
	MaturityOptimizing AIMaturity = "optimizing"
)

// EffectiveDateLayout: формат даты вступления в силу.
const EffectiveDateLayout = "2006-01-02"

// OrganizationDetails: ответы анкеты.
// Теги validate проверяются на шаге выбора шаблона, полный набор обязательных
// полей для генерации проверяет engine.
type OrganizationDetails struct {
	CompanyName     string     `json:"company_name" validate:"required"`
	Website         string     `json:"website" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Country         string     `json:"country" validate:"required"`
	Industry        string     `json:"industry"`
	AIMaturityLevel AIMaturity `json:"ai_maturity_level" validate:"omitempty,oneof=initial developing defined managed optimizing"`
	EffectiveDate   string     `json:"effective_date" validate:"omitempty,datetime=2006-01-02"`
	Template        string     `json:"template"`
}

// Merge накладывает непустые поля patch поверх d.
func (d OrganizationDetails) Merge(patch OrganizationDetails) OrganizationDetails {
	if patch.CompanyName != "" {
		d.CompanyName = patch.CompanyName
	}
	if patch.Website != "" {
		d.Website = patch.Website
	}
	if patch.Email != "" {
		d.Email = patch.Email
	}
	if patch.Country != "" {
		d.Country = patch.Country
	}
	if patch.Industry != "" {
		d.Industry = patch.Industry
	}
	if patch.AIMaturityLevel != "" {
		d.AIMaturityLevel = patch.AIMaturityLevel
	}
	if patch.EffectiveDate != "" {
		d.EffectiveDate = patch.EffectiveDate
	}
	if patch.Template != "" {
		d.Template = patch.Template
	}
	return d
}

// Trimmed убирает пробелы по краям. Строка из одних пробелов становится пустой
// и не проходит required.
func (d OrganizationDetails) Trimmed() OrganizationDetails {
	d.CompanyName = strings.TrimSpace(d.CompanyName)
	d.Website = strings.TrimSpace(d.Website)
	d.Email = strings.TrimSpace(d.Email)
	d.Country = strings.TrimSpace(d.Country)
	d.Industry = strings.TrimSpace(d.Industry)
	d.AIMaturityLevel = AIMaturity(strings.TrimSpace(string(d.AIMaturityLevel)))
	d.EffectiveDate = strings.TrimSpace(d.EffectiveDate)
	d.Template = strings.TrimSpace(d.Template)
	return d
}

// WithDefaults проставляет дату вступления в силу и шаблон по умолчанию.
func (d OrganizationDetails) WithDefaults(now time.Time) OrganizationDetails {
	if d.EffectiveDate == "" {
		d.EffectiveDate = now.Format(EffectiveDateLayout)
	}
	if d.Template == "" {
		d.Template = TemplateStandard
	}
	return d
}
