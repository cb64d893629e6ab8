package service

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsgate/internal/domain"
)

func TestApprovalService_ListByRequester(t *testing.T) {
	f := setupApproval(t)
	f.submitQuery(t, "SELECT 1")
	f.submitQuery(t, "SELECT 2")

	page, err := f.svc.ListByRequester(context.Background(), f.requester.ID, nil, domain.Page{})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, int64(2), page.Pagination.Total)
	assert.False(t, page.Pagination.HasMore)
}

func TestApprovalService_ListByRequester_StatusFilter(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT 1")
	f.submitQuery(t, "SELECT 2")

	_, err := f.svc.Reject(context.Background(),
		req.ID, domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, "no")
	require.NoError(t, err)

	pending := domain.StatusPending
	page, err := f.svc.ListByRequester(context.Background(), f.requester.ID, &pending, domain.Page{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, domain.StatusPending, page.Data[0].Status)
}

func TestApprovalService_ListByRequester_UnknownUser(t *testing.T) {
	f := setupApproval(t)

	_, err := f.svc.ListByRequester(context.Background(), 9999, nil, domain.Page{})
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestApprovalService_ListForManager(t *testing.T) {
	f := setupApproval(t)
	f.submitQuery(t, "SELECT 1")

	page, err := f.svc.ListForManager(context.Background(), f.manager.ID, nil, domain.Page{})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestApprovalService_ListForManager_NoPods(t *testing.T) {
	f := setupApproval(t)
	f.submitQuery(t, "SELECT 1")

	page, err := f.svc.ListForManager(context.Background(), f.otherManager.ID, nil, domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, int64(0), page.Pagination.Total)
}

func TestApprovalService_ListAll_AdminOnly(t *testing.T) {
	f := setupApproval(t)
	f.submitQuery(t, "SELECT 1")

	_, err := f.svc.ListAll(context.Background(),
		domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, nil, domain.Page{})
	require.Error(t, err)
	var accessDenied *domain.AccessDeniedError
	assert.ErrorAs(t, err, &accessDenied)

	page, err := f.svc.ListAll(context.Background(),
		domain.Actor{ID: f.admin.ID, Role: domain.RoleAdmin}, nil, domain.Page{})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestApprovalService_List_Pagination(t *testing.T) {
	f := setupApproval(t)
	for i := 0; i < 5; i++ {
		f.submitQuery(t, "SELECT 1")
	}

	page, err := f.svc.ListByRequester(context.Background(), f.requester.ID, nil, domain.Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, int64(5), page.Pagination.Total)
	assert.True(t, page.Pagination.HasMore)

	page, err = f.svc.ListByRequester(context.Background(), f.requester.ID, nil, domain.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
	assert.False(t, page.Pagination.HasMore)
}

func TestApprovalService_Get_Visibility(t *testing.T) {
	f := setupApproval(t)
	req := f.submitQuery(t, "SELECT 1")

	// Requester sees their own request.
	got, err := f.svc.Get(context.Background(),
		domain.Actor{ID: f.requester.ID, Role: domain.RoleUser}, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	// The pod's manager sees it.
	_, err = f.svc.Get(context.Background(),
		domain.Actor{ID: f.manager.ID, Role: domain.RoleManager}, req.ID)
	require.NoError(t, err)

	// An admin sees everything.
	_, err = f.svc.Get(context.Background(),
		domain.Actor{ID: f.admin.ID, Role: domain.RoleAdmin}, req.ID)
	require.NoError(t, err)

	// A manager of an unrelated pod does not.
	_, err = f.svc.Get(context.Background(),
		domain.Actor{ID: f.otherManager.ID, Role: domain.RoleManager}, req.ID)
	require.Error(t, err)
	var accessDenied *domain.AccessDeniedError
	require.ErrorAs(t, err, &accessDenied)
	assert.Equal(t, "Not authorized to view this request", accessDenied.Message)
}

func TestApprovalService_Get_UnknownRequest(t *testing.T) {
	f := setupApproval(t)

	_, err := f.svc.Get(context.Background(),
		domain.Actor{ID: f.admin.ID, Role: domain.RoleAdmin}, "no-such-id")
	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
