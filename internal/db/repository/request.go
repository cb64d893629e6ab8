package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"opsgate/internal/domain"
)

type RequestRepo struct {
	db *sql.DB
}

func NewRequestRepo(db *sql.DB) *RequestRepo {
	return &RequestRepo{db: db}
}

const requestColumns = `id, requester_id, pod_id, instance_id, database_name,
	submission_type, query_text, script_content, comments, status,
	approved_by, rejection_reason, execution_result, created_at, updated_at`

func (r *RequestRepo) Create(ctx context.Context, req *domain.QueryRequest) (*domain.QueryRequest, error) {
	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO query_requests (
			id, requester_id, pod_id, instance_id, database_name,
			submission_type, query_text, script_content, comments, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.RequesterID, req.PodID, req.InstanceID, req.DatabaseName,
		string(req.SubmissionType), nullString(req.QueryText), nullString(req.ScriptContent),
		nullString(req.Comments), string(domain.StatusPending), now, now,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, req.ID)
}

func (r *RequestRepo) GetByID(ctx context.Context, id string) (*domain.QueryRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM query_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return req, nil
}

func (r *RequestRepo) List(ctx context.Context, filter domain.RequestFilter) ([]domain.QueryRequest, int64, error) {
	where, args := buildRequestFilter(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]interface{}{}, args...),
		filter.Page.EffectiveLimit(), filter.Page.EffectiveOffset())
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM query_requests`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var requests []domain.QueryRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		requests = append(requests, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *RequestRepo) SetTerminal(ctx context.Context, id string, update domain.TerminalUpdate) error {
	result, err := marshalJSON(update.ExecutionResult)
	if err != nil {
		return fmt.Errorf("marshal execution result: %w", err)
	}

	var reason sql.NullString
	if update.RejectionReason != nil {
		reason = sql.NullString{String: *update.RejectionReason, Valid: true}
	}

	// The status condition makes the terminal write a compare-and-swap:
	// once a request leaves PENDING no later write can touch it.
	res, err := r.db.ExecContext(ctx, `
		UPDATE query_requests
		SET status = ?, approved_by = ?, rejection_reason = ?,
		    execution_result = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(update.Status), update.ActorID, reason, result,
		formatTime(time.Now()), id, string(domain.StatusPending),
	)
	if err != nil {
		return mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict("Query already processed")
	}
	return nil
}

func buildRequestFilter(filter domain.RequestFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.RequesterID != nil {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, *filter.RequesterID)
	}
	if len(filter.PodIDs) > 0 {
		placeholders := strings.Repeat("?,", len(filter.PodIDs))
		clauses = append(clauses, "pod_id IN ("+placeholders[:len(placeholders)-1]+")")
		for _, id := range filter.PodIDs {
			args = append(args, id)
		}
	}
	if filter.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, string(*filter.Status))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*domain.QueryRequest, error) {
	var (
		req                              domain.QueryRequest
		submissionType, status           string
		queryText, script, comments      sql.NullString
		approvedBy                       sql.NullInt64
		rejectionReason, executionResult sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(
		&req.ID, &req.RequesterID, &req.PodID, &req.InstanceID, &req.DatabaseName,
		&submissionType, &queryText, &script, &comments, &status,
		&approvedBy, &rejectionReason, &executionResult, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	req.SubmissionType = domain.SubmissionType(submissionType)
	req.Status = domain.QueryStatus(status)
	req.QueryText = stringOrEmpty(queryText)
	req.ScriptContent = stringOrEmpty(script)
	req.Comments = stringOrEmpty(comments)
	if approvedBy.Valid {
		req.ApprovedBy = &approvedBy.Int64
	}
	if rejectionReason.Valid {
		req.RejectionReason = &rejectionReason.String
	}
	req.ExecutionResult = unmarshalJSON(executionResult)
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	return &req, nil
}
