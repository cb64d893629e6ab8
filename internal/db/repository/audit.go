package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"opsgate/internal/domain"
)

// AuditRepo is the append-only transition log. Entries are inserted and
// listed, never updated or deleted.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	details, err := marshalJSON(e.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (query_request_id, action, performed_by, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.QueryRequestID, string(e.Action), e.PerformedBy, details, formatTime(time.Now()))
	return mapDBError(err)
}

func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error) {
	var clauses []string
	var args []interface{}

	if filter.QueryRequestID != nil {
		clauses = append(clauses, "query_request_id = ?")
		args = append(args, *filter.QueryRequestID)
	}
	if filter.Action != nil {
		clauses = append(clauses, "action = ?")
		args = append(args, string(*filter.Action))
	}
	if filter.PerformedBy != nil {
		clauses = append(clauses, "performed_by = ?")
		args = append(args, *filter.PerformedBy)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]interface{}{}, args...),
		filter.Page.EffectiveLimit(), filter.Page.EffectiveOffset())
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, query_request_id, action, performed_by, details, created_at
		FROM audit_log`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			action    string
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.QueryRequestID, &action, &e.PerformedBy, &details, &createdAt); err != nil {
			return nil, 0, err
		}
		e.Action = domain.AuditAction(action)
		e.Details = unmarshalJSON(details)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
