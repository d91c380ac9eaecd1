package domain

import "time"

// Шаблоны оформления документа
const (
	TemplateStandard     = "Standard"
	TemplateProfessional = "Professional"
	TemplateEnterprise   = "Enterprise"
)

// PolicyType: запись каталога типов политик.
type PolicyType struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Tier          PackageKey `json:"tier"` // пакет, который впервые открывает тип
	Templates     []string   `json:"templates"`
	KeyProvisions []string   `json:"key_provisions"`
}

// HasTemplate проверяет, что шаблон доступен для типа.
func (t *PolicyType) HasTemplate(name string) bool {
	for _, tpl := range t.Templates {
		if tpl == name {
			return true
		}
	}
	return false
}

// GeneratedPolicy: опубликованный документ пользователя.
type GeneratedPolicy struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Type       string     `json:"type"`
	Content    string     `json:"content"` // Markdown
	Template   string     `json:"template"`
	References []string   `json:"references,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"` // nil до первой правки
}

// NewPolicy: данные для создания записи в хранилище.
type NewPolicy struct {
	Title      string
	Type       string
	Content    string
	Template   string
	References []string
	CreatedAt  time.Time
}

// PolicyPatch: частичное обновление. nil-поля не трогаем.
type PolicyPatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
	// References выводятся из Content на сервере, клиент их не присылает.
	References *[]string `json:"-"`
}

// Empty возвращает true, если патч ничего не меняет.
func (p PolicyPatch) Empty() bool {
	return p.Title == nil && p.Content == nil
}

// VersionKind: происхождение версии черновика.
type VersionKind string

const (
	VersionInitial    VersionKind = "initial"
	VersionEdit       VersionKind = "edit"
	VersionRegenerate VersionKind = "regenerate"
)

// VersionEntry: снимок черновика в истории версий.
type VersionEntry struct {
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      VersionKind `json:"kind"`
}
