package service

import (
	"context"

	"opsgate/internal/domain"
)

// ListByRequester returns the caller's own requests, newest first.
func (s *ApprovalService) ListByRequester(ctx context.Context, requesterID int64, status *domain.QueryStatus, page domain.Page) (*domain.RequestPage, error) {
	if _, err := s.users.FindByID(ctx, requesterID); err != nil {
		return nil, err
	}
	filter := domain.RequestFilter{
		RequesterID: &requesterID,
		Status:      status,
		Page:        page,
	}
	return s.listPage(ctx, filter)
}

// ListForManager returns the requests in every pod the manager manages. A
// manager with no pods sees an empty page, not an error.
func (s *ApprovalService) ListForManager(ctx context.Context, managerID int64, status *domain.QueryStatus, page domain.Page) (*domain.RequestPage, error) {
	pods, err := s.pods.ListManagedBy(ctx, managerID)
	if err != nil {
		return nil, err
	}
	if len(pods) == 0 {
		return &domain.RequestPage{
			Data:       []domain.QueryRequest{},
			Pagination: domain.NewPagination(page, 0),
		}, nil
	}

	podIDs := make([]int64, 0, len(pods))
	for _, pod := range pods {
		podIDs = append(podIDs, pod.ID)
	}
	filter := domain.RequestFilter{
		PodIDs: podIDs,
		Status: status,
		Page:   page,
	}
	return s.listPage(ctx, filter)
}

// ListAll returns every request. Admin only.
func (s *ApprovalService) ListAll(ctx context.Context, actor domain.Actor, status *domain.QueryStatus, page domain.Page) (*domain.RequestPage, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, domain.ErrAccessDenied("Not authorized to list all requests")
	}
	filter := domain.RequestFilter{
		Status: status,
		Page:   page,
	}
	return s.listPage(ctx, filter)
}

// Get loads one request and enforces per-record visibility independent of
// list-level filtering: the requester, an admin, or the manager of the
// request's pod.
func (s *ApprovalService) Get(ctx context.Context, actor domain.Actor, queryID string) (*domain.QueryRequest, error) {
	req, err := s.requests.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}

	if actor.Role == domain.RoleAdmin || actor.ID == req.RequesterID {
		return req, nil
	}
	if actor.Role == domain.RoleManager {
		pod, err := s.pods.FindByID(ctx, req.PodID)
		if err != nil {
			return nil, err
		}
		if pod.ManagerID == actor.ID {
			return req, nil
		}
	}
	return nil, domain.ErrAccessDenied("Not authorized to view this request")
}

func (s *ApprovalService) listPage(ctx context.Context, filter domain.RequestFilter) (*domain.RequestPage, error) {
	requests, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if requests == nil {
		requests = []domain.QueryRequest{}
	}
	return &domain.RequestPage{
		Data:       requests,
		Pagination: domain.NewPagination(filter.Page, total),
	}, nil
}
