// Package wizard: конечный автомат мастера создания политики:
// select -> template_picker -> customize -> review -> published.
//
// Session не делает I/O и не синхронизирована: ее защищает Manager.
// Каждая генерация получает Ticket с номером; применяется только ответ на
// последний выданный номер, остальные отбрасываются как устаревшие.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/validation"
)

type Step string

const (
	StepSelect         Step = "select"
	StepTemplatePicker Step = "template_picker"
	StepCustomize      Step = "customize"
	StepReview         Step = "review"
	StepPublished      Step = "published"
)

// ErrStaleGeneration: ответ пришел на запрос, который уже перекрыт более новым.
var ErrStaleGeneration = errors.New("generation response is stale and was discarded")

// TypeCatalog: поиск типа политики.
type TypeCatalog interface {
	GetPolicyType(id string) (*domain.PolicyType, bool)
}

// Entitlements: проверка доступа пакета к типу.
type Entitlements interface {
	Authorize(typeID string, key domain.PackageKey) error
}

// Ticket выдается при старте генерации и предъявляется при ее завершении.
type Ticket struct {
	Seq  uint64
	Kind domain.VersionKind
}

type Session struct {
	ID         string                     `json:"id"`
	UserID     string                     `json:"user_id"`
	Package    domain.PackageKey          `json:"package"`
	Step       Step                       `json:"step"`
	PolicyType *domain.PolicyType         `json:"policy_type,omitempty"`
	Details    domain.OrganizationDetails `json:"details"`

	Draft      string                `json:"draft"`
	References []string              `json:"references,omitempty"`
	History    []domain.VersionEntry `json:"history"` // хронологически, старые первыми
	Editing    bool                  `json:"editing"`
	Generating bool                  `json:"generating"`
	LastError  string                `json:"last_error,omitempty"`

	PublishedID string    `json:"published_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	types TypeCatalog
	rules Entitlements

	seq         uint64             // последний выданный номер запроса
	pendingKind domain.VersionKind // вид последнего запроса, нужен для Retry
}

func NewSession(id, userID string, pkg domain.PackageKey, types TypeCatalog, rules Entitlements, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Package:   pkg,
		Step:      StepSelect,
		History:   []domain.VersionEntry{},
		CreatedAt: now,
		UpdatedAt: now,
		types:     types,
		rules:     rules,
	}
}

func transitionErr(s Step, op string) error {
	return fmt.Errorf("%w: %s is not allowed in %s", domain.ErrInvalidTransition, op, s)
}

// PickPolicyType: select -> template_picker. Недоступный пакету тип отклоняется
// до любых генераций, шаг не меняется.
func (s *Session) PickPolicyType(typeID string) error {
	if s.Step != StepSelect {
		return transitionErr(s.Step, "select")
	}
	pt, ok := s.types.GetPolicyType(typeID)
	if !ok {
		v := &domain.ValidationError{}
		v.Add("policy_type", "unknown policy type")
		return v
	}
	if err := s.rules.Authorize(typeID, s.Package); err != nil {
		return err
	}
	if s.PolicyType != nil && s.PolicyType.ID != pt.ID {
		s.resetDraft()
	}
	s.PolicyType = pt
	s.Step = StepTemplatePicker
	return nil
}

// resetDraft забывает все, что было сгенерировано для прежнего типа.
// Анкета организации остается.
func (s *Session) resetDraft() {
	s.seq++
	s.Draft = ""
	s.References = nil
	s.History = []domain.VersionEntry{}
	s.Editing = false
	s.Generating = false
	s.LastError = ""
	s.pendingKind = ""
}

// Cancel: template_picker -> select.
func (s *Session) Cancel() error {
	if s.Step != StepTemplatePicker {
		return transitionErr(s.Step, "cancel")
	}
	s.Step = StepSelect
	return nil
}

// SubmitDetails: template_picker -> customize. При ошибках полей шаг не меняется.
func (s *Session) SubmitDetails(d domain.OrganizationDetails) error {
	if s.Step != StepTemplatePicker {
		return transitionErr(s.Step, "submit details")
	}
	merged := s.Details.Merge(d).Trimmed()
	if err := s.validateDetails(merged); err != nil {
		return err
	}
	if merged.Template == "" {
		merged.Template = domain.TemplateStandard
	}
	s.Details = merged
	s.Step = StepCustomize
	return nil
}

// UpdateDetails правит анкету на шаге customize.
func (s *Session) UpdateDetails(d domain.OrganizationDetails) error {
	if s.Step != StepCustomize {
		return transitionErr(s.Step, "customize")
	}
	merged := s.Details.Merge(d).Trimmed()
	if err := s.validateDetails(merged); err != nil {
		return err
	}
	s.Details = merged
	return nil
}

func (s *Session) validateDetails(d domain.OrganizationDetails) error {
	err := validation.Struct(d)
	vErr, isValidation := domain.IsValidation(err)
	if err != nil && !isValidation {
		return err
	}
	if vErr == nil {
		vErr = &domain.ValidationError{}
	}
	if d.Template != "" && s.PolicyType != nil && !s.PolicyType.HasTemplate(d.Template) {
		vErr.Add("template", "must be one of: "+strings.Join(s.PolicyType.Templates, " "))
	}
	return vErr.OrNil()
}

// Confirm: customize -> review, выдает билет на первую генерацию.
// Доступ и обязательные поля проверяются до перехода.
func (s *Session) Confirm() (Ticket, error) {
	if s.Step != StepCustomize {
		return Ticket{}, transitionErr(s.Step, "confirm")
	}
	if err := s.rules.Authorize(s.PolicyType.ID, s.Package); err != nil {
		return Ticket{}, err
	}
	if err := engine.ValidateDetails(s.Details); err != nil {
		return Ticket{}, err
	}

	kind := domain.VersionInitial
	if len(s.History) > 0 {
		kind = domain.VersionRegenerate
	}
	s.Step = StepReview
	return s.issue(kind), nil
}

// Regenerate запрашивает новый текст. Текущий черновик уже лежит в истории,
// новый ответ добавится отдельной записью.
func (s *Session) Regenerate() (Ticket, error) {
	if s.Step != StepReview {
		return Ticket{}, transitionErr(s.Step, "regenerate")
	}
	if err := s.rules.Authorize(s.PolicyType.ID, s.Package); err != nil {
		return Ticket{}, err
	}
	kind := domain.VersionRegenerate
	if len(s.History) == 0 {
		kind = domain.VersionInitial
	}
	s.Editing = false
	return s.issue(kind), nil
}

// Retry повторяет упавший запрос.
func (s *Session) Retry() (Ticket, error) {
	if s.Step != StepReview || s.LastError == "" || s.Generating {
		return Ticket{}, transitionErr(s.Step, "retry")
	}
	return s.issue(s.pendingKind), nil
}

func (s *Session) issue(kind domain.VersionKind) Ticket {
	s.seq++
	s.Generating = true
	s.LastError = ""
	s.pendingKind = kind
	return Ticket{Seq: s.seq, Kind: kind}
}

// Request: снимок входных данных для генерации.
func (s *Session) Request() engine.Request {
	req := engine.Request{UserID: s.UserID, Details: s.Details}
	if s.PolicyType != nil {
		req.PolicyType = *s.PolicyType
	}
	return req
}

// Complete применяет результат генерации. Устаревший билет: ErrStaleGeneration,
// состояние не меняется. Ошибка генерации не трогает черновик.
func (s *Session) Complete(t Ticket, res *engine.Result, genErr error, now time.Time) error {
	if t.Seq != s.seq || s.Step != StepReview {
		return ErrStaleGeneration
	}
	s.Generating = false
	s.UpdatedAt = now

	if genErr != nil {
		s.LastError = genErr.Error()
		return nil
	}

	s.Draft = res.Content
	s.References = res.References
	s.Editing = false
	s.History = append(s.History, domain.VersionEntry{Content: res.Content, Timestamp: now, Kind: t.Kind})
	return nil
}

// ToggleEdit переключает ручное редактирование. Запись в историю не создается.
func (s *Session) ToggleEdit() error {
	if s.Step != StepReview || s.Draft == "" || s.Generating {
		return transitionErr(s.Step, "edit")
	}
	s.Editing = !s.Editing
	return nil
}

// SaveEdit сохраняет правку и добавляет запись edit в историю.
func (s *Session) SaveEdit(content string, now time.Time) error {
	if s.Step != StepReview || !s.Editing {
		return transitionErr(s.Step, "save edit")
	}
	if strings.TrimSpace(content) == "" {
		v := &domain.ValidationError{}
		v.Add("content", "is required")
		return v
	}
	s.Draft = content
	s.References = engine.ExtractReferences(content)
	s.Editing = false
	s.UpdatedAt = now
	s.History = append(s.History, domain.VersionEntry{Content: content, Timestamp: now, Kind: domain.VersionEdit})
	return nil
}

// RestoreVersion подставляет версию из истории в черновик. История не меняется.
func (s *Session) RestoreVersion(i int, now time.Time) error {
	if s.Step != StepReview || s.Generating {
		return transitionErr(s.Step, "restore")
	}
	if i < 0 || i >= len(s.History) {
		return fmt.Errorf("%w: version %d", domain.ErrNotFound, i)
	}
	s.Draft = s.History[i].Content
	s.References = engine.ExtractReferences(s.Draft)
	s.Editing = false
	s.UpdatedAt = now
	return nil
}

// Back: template_picker|customize -> select, review -> customize.
// Запросы в полете после Back уже не применяются.
func (s *Session) Back() error {
	switch s.Step {
	case StepTemplatePicker, StepCustomize:
		s.Step = StepSelect
	case StepReview:
		s.seq++
		s.Generating = false
		s.Editing = false
		s.Step = StepCustomize
	default:
		return transitionErr(s.Step, "back")
	}
	return nil
}

// CanPublish проверяет предусловия публикации.
func (s *Session) CanPublish() error {
	if s.Step != StepReview || s.Generating || s.Editing || s.Draft == "" {
		return transitionErr(s.Step, "publish")
	}
	return s.rules.Authorize(s.PolicyType.ID, s.Package)
}

// Title: заголовок опубликованного документа: "<Company> <Policy title>".
func (s *Session) Title() string {
	if s.PolicyType == nil {
		return s.Details.CompanyName
	}
	return strings.TrimSpace(s.Details.CompanyName + " " + s.PolicyType.Title)
}

// NewPolicy: запись для хранилища.
func (s *Session) NewPolicy(now time.Time) domain.NewPolicy {
	return domain.NewPolicy{
		Title:      s.Title(),
		Type:       s.PolicyType.ID,
		Content:    s.Draft,
		Template:   s.Details.Template,
		References: s.References,
		CreatedAt:  now,
	}
}

// MarkPublished: review -> published (терминальное состояние).
func (s *Session) MarkPublished(policyID string, now time.Time) {
	s.seq++
	s.Step = StepPublished
	s.PublishedID = policyID
	s.UpdatedAt = now
}

// Snapshot: копия для отдачи наружу без доступа к внутренностям.
func (s *Session) Snapshot() Session {
	cp := *s
	cp.History = append([]domain.VersionEntry(nil), s.History...)
	if cp.History == nil {
		cp.History = []domain.VersionEntry{}
	}
	cp.References = append([]string(nil), s.References...)
	if s.PolicyType != nil {
		pt := *s.PolicyType
		cp.PolicyType = &pt
	}
	cp.types, cp.rules = nil, nil
	return cp
}
