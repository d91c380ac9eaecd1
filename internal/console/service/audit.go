package service

import (
	"context"
	"fmt"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
)

// AuditLogProvider описывает контракт для чтения журнала активности.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs запрашивает журнал с фильтрацией. Пустые поля фильтра не ограничивают выборку.
func (s *AuditService) FetchLogs(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	logs, err := s.repo.FetchLogs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
