package service

import (
	"context"

	"opsgate/internal/domain"
)

// AuditService exposes the read side of the transition log for operator
// tooling. The core never consults it for decisions.
type AuditService struct {
	repo domain.AuditRepository
}

func NewAuditService(repo domain.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	return s.repo.List(ctx, filter)
}
