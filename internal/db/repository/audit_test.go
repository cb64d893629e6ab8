package repository

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "opsgate/internal/db"
	"opsgate/internal/domain"
)

func TestAuditRepo_InsertAndList(t *testing.T) {
	db := internaldb.OpenTestSQLite(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	err := repo.Insert(ctx, &domain.AuditEntry{
		QueryRequestID: "req-1",
		Action:         domain.AuditSubmitted,
		PerformedBy:    1,
		Details: map[string]interface{}{
			"podName":      "payments",
			"instanceName": "orders-db",
		},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Insert(ctx, &domain.AuditEntry{
		QueryRequestID: "req-1", Action: domain.AuditExecuted, PerformedBy: 2,
	}))
	require.NoError(t, repo.Insert(ctx, &domain.AuditEntry{
		QueryRequestID: "req-2", Action: domain.AuditSubmitted, PerformedBy: 1,
	}))

	entries, total, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, int64(3), total)

	requestID := "req-1"
	entries, total, err = repo.List(ctx, domain.AuditFilter{QueryRequestID: &requestID})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, int64(2), total)

	action := domain.AuditSubmitted
	entries, total, err = repo.List(ctx, domain.AuditFilter{QueryRequestID: &requestID, Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "payments", entries[0].Details["podName"])
	assert.False(t, entries[0].CreatedAt.IsZero())

	performedBy := int64(2)
	entries, _, err = repo.List(ctx, domain.AuditFilter{PerformedBy: &performedBy})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditExecuted, entries[0].Action)
}

func TestAuditRepo_NilDetails(t *testing.T) {
	db := internaldb.OpenTestSQLite(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &domain.AuditEntry{
		QueryRequestID: "req-1", Action: domain.AuditRejected, PerformedBy: 1,
	}))

	entries, _, err := repo.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Details)
}
