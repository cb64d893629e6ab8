package repository

import (
	"context"
	"database/sql"
	"time"

	"opsgate/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	role := u.Role
	if role == "" {
		role = domain.RoleUser
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (name, role, created_at) VALUES (?, ?, ?)`,
		u.Name, string(role), formatTime(time.Now()))
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	var (
		u         domain.User
		role      string
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, role, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &role, &createdAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	u.Role = domain.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

type PodRepo struct {
	db *sql.DB
}

func NewPodRepo(db *sql.DB) *PodRepo {
	return &PodRepo{db: db}
}

func (r *PodRepo) Create(ctx context.Context, p *domain.Pod) (*domain.Pod, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO pods (name, manager_id) VALUES (?, ?)`, p.Name, p.ManagerID)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *PodRepo) FindByID(ctx context.Context, id int64) (*domain.Pod, error) {
	var p domain.Pod
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, manager_id FROM pods WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.ManagerID)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &p, nil
}

func (r *PodRepo) ListManagedBy(ctx context.Context, managerID int64) ([]domain.Pod, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, manager_id FROM pods WHERE manager_id = ? ORDER BY name`, managerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pods []domain.Pod
	for rows.Next() {
		var p domain.Pod
		if err := rows.Scan(&p.ID, &p.Name, &p.ManagerID); err != nil {
			return nil, err
		}
		pods = append(pods, p)
	}
	return pods, rows.Err()
}
