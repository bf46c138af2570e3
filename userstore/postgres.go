package userstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the users table used by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id                     TEXT PRIMARY KEY,
	first_name             TEXT NOT NULL DEFAULT '',
	last_name              TEXT NOT NULL DEFAULT '',
	email                  TEXT NOT NULL,
	email_verified         BOOLEAN NOT NULL DEFAULT FALSE,
	picture                TEXT NOT NULL DEFAULT '',
	hashed_password        TEXT NOT NULL DEFAULT '',
	salt                   TEXT NOT NULL DEFAULT '',
	openid_provider        TEXT,
	openid_email           TEXT,
	openid_email_verified  BOOLEAN,
	openid_subject         TEXT,
	organizations          TEXT[] NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	CONSTRAINT users_email_key UNIQUE (email),
	CONSTRAINT users_openid_key UNIQUE (openid_provider, openid_subject)
)`

const (
	uniqueViolation = "23505"

	selectColumns = `id, first_name, last_name, email, email_verified, picture,
	hashed_password, salt, openid_provider, openid_email, openid_email_verified,
	openid_subject, organizations, created_at, updated_at`
)

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewPostgres(pool), nil
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Create(ctx context.Context, record *Record) (*Record, error) {
	if record == nil || record.ID == "" {
		return nil, ErrInvalidRecord
	}

	now := p.now().UTC()
	provider, idEmail, idVerified, subject := identityColumns(record.OpenID)
	orgs := record.Organizations
	if orgs == nil {
		orgs = []string{}
	}

	row := p.pool.QueryRow(ctx, `
INSERT INTO users (id, first_name, last_name, email, email_verified, picture,
	hashed_password, salt, openid_provider, openid_email, openid_email_verified,
	openid_subject, organizations, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
RETURNING `+selectColumns,
		record.ID, record.FirstName, record.LastName, record.Email, record.EmailVerified,
		record.Picture, record.HashedPassword, record.Salt, provider, idEmail, idVerified,
		subject, orgs, now,
	)

	out, err := scanRecord(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (p *Postgres) GetByID(ctx context.Context, id string) (*Record, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE id = $1`, id)
	return p.scanOne(row)
}

func (p *Postgres) GetOneByField(ctx context.Context, field Field, value string) (*Record, error) {
	var row pgx.Row
	switch field {
	case FieldEmail:
		row = p.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM users WHERE email = $1`, value)
	case FieldOpenID:
		provider, subject, ok := strings.Cut(value, ":")
		if !ok {
			return nil, ErrNotFound
		}
		row = p.pool.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM users WHERE openid_provider = $1 AND openid_subject = $2`,
			provider, subject)
	default:
		return nil, ErrUnsupportedField
	}
	return p.scanOne(row)
}

func (p *Postgres) UpdateByID(ctx context.Context, id string, update Update) (*Record, error) {
	if update.IsEmpty() {
		return p.GetByID(ctx, id)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.EmailVerified != nil {
		add("email_verified", *update.EmailVerified)
	}
	if update.Picture != nil {
		add("picture", *update.Picture)
	}
	if update.HashedPassword != nil {
		add("hashed_password", *update.HashedPassword)
	}
	if update.Salt != nil {
		add("salt", *update.Salt)
	}
	if update.OpenID != nil {
		provider, idEmail, idVerified, subject := identityColumns(update.OpenID)
		add("openid_provider", provider)
		add("openid_email", idEmail)
		add("openid_email_verified", idVerified)
		add("openid_subject", subject)
	}
	if update.Organizations != nil {
		add("organizations", update.Organizations)
	}
	add("updated_at", p.now().UTC())

	args = append(args, id)
	query := `UPDATE users SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) + ` RETURNING ` + selectColumns

	out, err := scanRecord(p.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapWriteError(err)
	}
	return out, nil
}

func (p *Postgres) DeleteByID(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanOne(row pgx.Row) (*Record, error) {
	out, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		r          Record
		provider   *string
		idEmail    *string
		idVerified *bool
		subject    *string
	)
	err := row.Scan(
		&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.EmailVerified, &r.Picture,
		&r.HashedPassword, &r.Salt, &provider, &idEmail, &idVerified,
		&subject, &r.Organizations, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if provider != nil && subject != nil {
		r.OpenID = &ThirdPartyIdentity{Provider: *provider, Subject: *subject}
		if idEmail != nil {
			r.OpenID.Email = *idEmail
		}
		if idVerified != nil {
			r.OpenID.EmailVerified = *idVerified
		}
	}
	return &r, nil
}

func identityColumns(id *ThirdPartyIdentity) (provider, email *string, verified *bool, subject *string) {
	if id == nil {
		return nil, nil, nil, nil
	}
	return &id.Provider, &id.Email, &id.EmailVerified, &id.Subject
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_email_key":
			return ErrDuplicateEmail
		case "users_openid_key":
			return ErrDuplicateIdentity
		default:
			return ErrDuplicateID
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
