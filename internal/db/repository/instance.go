package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"opsgate/internal/db/crypto"
	"opsgate/internal/domain"
)

// InstanceRepo stores managed database instances. Credentials are encrypted
// with AES-256-GCM before they touch the store and decrypted on every read,
// so callers only ever see plaintext descriptors.
type InstanceRepo struct {
	db  *sql.DB
	enc *crypto.Encryptor
}

func NewInstanceRepo(db *sql.DB, enc *crypto.Encryptor) *InstanceRepo {
	return &InstanceRepo{db: db, enc: enc}
}

func (r *InstanceRepo) Create(ctx context.Context, inst *domain.DbInstance) (*domain.DbInstance, error) {
	var passwordEnc, uriEnc sql.NullString
	if inst.Password != "" {
		enc, err := r.enc.Encrypt(inst.Password)
		if err != nil {
			return nil, fmt.Errorf("encrypt password: %w", err)
		}
		passwordEnc = sql.NullString{String: enc, Valid: true}
	}
	if inst.MongoURI != "" {
		enc, err := r.enc.Encrypt(inst.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("encrypt mongo uri: %w", err)
		}
		uriEnc = sql.NullString{String: enc, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO db_instances (name, type, host, port, username, password_enc, mongo_uri_enc, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Name, string(inst.Type), nullString(inst.Host), inst.Port,
		nullString(inst.Username), passwordEnc, uriEnc, formatTime(time.Now()),
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *InstanceRepo) FindByID(ctx context.Context, id int64) (*domain.DbInstance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, host, port, username, password_enc, mongo_uri_enc, created_at
		FROM db_instances WHERE id = ?`, id)
	inst, err := r.scanInstance(row)
	if err != nil {
		return nil, mapDBError(err)
	}
	return inst, nil
}

func (r *InstanceRepo) List(ctx context.Context) ([]domain.DbInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, host, port, username, password_enc, mongo_uri_enc, created_at
		FROM db_instances ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []domain.DbInstance
	for rows.Next() {
		inst, err := r.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

func (r *InstanceRepo) scanInstance(row rowScanner) (*domain.DbInstance, error) {
	var (
		inst                domain.DbInstance
		instType            string
		host, username      sql.NullString
		port                sql.NullInt64
		passwordEnc, uriEnc sql.NullString
		createdAt           string
	)
	if err := row.Scan(&inst.ID, &inst.Name, &instType, &host, &port,
		&username, &passwordEnc, &uriEnc, &createdAt); err != nil {
		return nil, err
	}

	inst.Type = domain.InstanceType(instType)
	inst.Host = stringOrEmpty(host)
	inst.Port = int(port.Int64)
	inst.Username = stringOrEmpty(username)
	inst.CreatedAt = parseTime(createdAt)

	if passwordEnc.Valid && passwordEnc.String != "" {
		plain, err := r.enc.Decrypt(passwordEnc.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt password for instance %d: %w", inst.ID, err)
		}
		inst.Password = plain
	}
	if uriEnc.Valid && uriEnc.String != "" {
		plain, err := r.enc.Decrypt(uriEnc.String)
		if err != nil {
			return nil, fmt.Errorf("decrypt mongo uri for instance %d: %w", inst.ID, err)
		}
		inst.MongoURI = plain
	}

	return &inst, nil
}
