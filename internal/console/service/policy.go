package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/domain"
	"github.com/ferrychris/policyweb-sub000/internal/engine"
	"github.com/ferrychris/policyweb-sub000/internal/export"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PolicyRepository описывает требования сервиса к хранилищу политик
type PolicyRepository interface {
	Get(ctx context.Context, id string) (*domain.GeneratedPolicy, error)
	List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error)
	Update(ctx context.Context, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error)
	Delete(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
	CountByType(ctx context.Context, userID string) (map[string]int, error)
}

// PolicyService: операции над опубликованными политиками пользователя.
// Чужая политика неотличима от несуществующей.
type PolicyService struct {
	repo     PolicyRepository
	exporter *export.Exporter
	auditor  audit.Auditor
	logger   *zap.Logger
}

func NewPolicyService(repo PolicyRepository, exporter *export.Exporter, auditor audit.Auditor, logger *zap.Logger) *PolicyService {
	return &PolicyService{
		repo:     repo,
		exporter: exporter,
		auditor:  auditor,
		logger:   logger.Named("policies"),
	}
}

// List: политики пользователя, новые первыми.
func (s *PolicyService) List(ctx context.Context, userID string) ([]domain.GeneratedPolicy, error) {
	return s.repo.List(ctx, userID)
}

func (s *PolicyService) Get(ctx context.Context, userID, id string) (*domain.GeneratedPolicy, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("policy %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// Update правит заголовок и/или текст. Ссылки на процедуры пересчитываются
// по новому тексту. CreatedAt не меняется, UpdatedAt ставит хранилище.
func (s *PolicyService) Update(ctx context.Context, userID, id string, patch domain.PolicyPatch) (*domain.GeneratedPolicy, error) {
	v := &domain.ValidationError{}
	if patch.Empty() {
		v.Add("content", "nothing to update")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		v.Add("title", "must not be empty")
	}
	if patch.Content != nil && strings.TrimSpace(*patch.Content) == "" {
		v.Add("content", "must not be empty")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if patch.Content != nil {
		clean := engine.Sanitize(*patch.Content)
		refs := engine.ExtractReferences(clean)
		if refs == nil {
			refs = []string{}
		}
		patch.Content = &clean
		patch.References = &refs
	}

	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	start := time.Now()
	p, err := s.repo.Update(ctx, id, patch)
	s.audit(ctx, audit.ActionUpdate, userID, id, "", nil, err, start)
	return p, err
}

func (s *PolicyService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.repo.Delete(ctx, id)
	s.audit(ctx, audit.ActionDelete, userID, id, p.Type, nil, err, start)
	if err == nil {
		s.logger.Info("policy deleted", zap.String("policy_id", id), zap.String("user_id", userID))
	}
	return err
}

// Export рендерит политику. Неподдерживаемый формат дает Markdown с Notice.
func (s *PolicyService) Export(ctx context.Context, userID, id, format string) (*export.Document, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	doc, err := s.exporter.Export(p, format)
	details := map[string]interface{}{"requested": format}
	if doc != nil {
		details["format"] = string(doc.Format)
	}
	s.audit(ctx, audit.ActionExport, userID, id, p.Type, details, err, start)
	return doc, err
}

// Usage: количество политик пользователя всего и по типам.
func (s *PolicyService) Usage(ctx context.Context, userID string) (int, map[string]int, error) {
	byType, err := s.repo.CountByType(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	total := 0
	for _, n := range byType {
		total += n
	}
	return total, byType, nil
}

func (s *PolicyService) audit(ctx context.Context, action, userID, policyID, policyType string, details map[string]interface{}, err error, start time.Time) {
	if s.auditor == nil {
		return
	}
	ev := audit.Event{
		ID:         uuid.New().String(),
		TraceID:    infra.TraceID(ctx),
		UserID:     userID,
		Action:     action,
		PolicyID:   policyID,
		PolicyType: policyType,
		Details:    details,
		Status:     audit.StatusSuccess,
		Timestamp:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Status = audit.StatusFailed
		ev.Error = err.Error()
	}
	s.auditor.Log(ev)
}
