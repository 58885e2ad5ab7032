package storage

import (
	"context"
	"errors"
	"fmt"
	"subscriber/internal/models"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const pgUniqueViolation = "23505"

const (
	pgUserColumns       = `id::text, name, email, password_hash, created_at, updated_at`
	pgSubscriberColumns = `id::text, name, email, status, token_hash, created_at, confirmed_at`
)

// PostgresStorage implements the Storage interface using a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		poolConfig.MinIdleConns = int32(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		db := stdlib.OpenDBFromPool(pool)
		err := Migrate(ctx, db, goose.DialectPostgres)
		db.Close()
		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &PostgresStorage{pool: pool}, nil
}

// CreateUser stores a new user.
func (ps *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return pgWriteError(err, "create user")
	}
	return nil
}

// GetUser retrieves a user by ID.
func (ps *PostgresStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, pgReadError(err, "user "+id)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, case-insensitively.
func (ps *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgUserColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, pgReadError(err, "user email "+email)
	}
	return user, nil
}

// ListUsers returns all users, newest first.
func (ps *PostgresStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := ps.pool.Query(ctx, `SELECT `+pgUserColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateUser replaces the name, email and updated timestamp of an existing user.
func (ps *PostgresStorage) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := ps.pool.Exec(ctx,
		`UPDATE users SET name = $2, email = $3, updated_at = $4 WHERE id = $1`,
		user.ID, user.Name, user.Email, user.UpdatedAt)
	if err != nil {
		return pgWriteError(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	return nil
}

// DeleteUser removes a user by ID.
func (ps *PostgresStorage) DeleteUser(ctx context.Context, id string) error {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateSubscriber stores a new subscriber.
func (ps *PostgresStorage) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	_, err := ps.pool.Exec(ctx,
		`INSERT INTO subscriptions (id, name, email, status, token_hash, created_at, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, sub.Name, sub.Email, sub.Status, sub.TokenHash, sub.CreatedAt, sub.ConfirmedAt)
	if err != nil {
		return pgWriteError(err, "create subscriber")
	}
	return nil
}

// GetSubscriberByToken looks a subscriber up by confirmation token hash.
func (ps *PostgresStorage) GetSubscriberByToken(ctx context.Context, tokenHash string) (*models.Subscriber, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgSubscriberColumns+` FROM subscriptions WHERE token_hash = $1`, tokenHash)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, pgReadError(err, "subscription token")
	}
	return sub, nil
}

// GetSubscriberByEmail retrieves a subscriber by email address.
func (ps *PostgresStorage) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	row := ps.pool.QueryRow(ctx, `SELECT `+pgSubscriberColumns+` FROM subscriptions WHERE LOWER(email) = LOWER($1)`, email)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, pgReadError(err, "subscriber email "+email)
	}
	return sub, nil
}

// ConfirmSubscriber marks a subscriber as confirmed.
func (ps *PostgresStorage) ConfirmSubscriber(ctx context.Context, id string, at time.Time) error {
	tag, err := ps.pool.Exec(ctx,
		`UPDATE subscriptions SET status = $2, confirmed_at = $3 WHERE id = $1`,
		id, models.SubscriptionConfirmed, at)
	if err != nil {
		return fmt.Errorf("failed to confirm subscriber %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSubscriber removes a subscriber by ID.
func (ps *PostgresStorage) DeleteSubscriber(ctx context.Context, id string) error {
	tag, err := ps.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscriber %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListSubscribers returns all subscribers, newest first.
func (ps *PostgresStorage) ListSubscribers(ctx context.Context) ([]*models.Subscriber, error) {
	rows, err := ps.pool.Query(ctx, `SELECT `+pgSubscriberColumns+` FROM subscriptions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]*models.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

// Ping checks the database connection.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func scanSubscriber(row pgx.Row) (*models.Subscriber, error) {
	var s models.Subscriber
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Status, &s.TokenHash, &s.CreatedAt, &s.ConfirmedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	if s.ConfirmedAt != nil {
		confirmedAt := s.ConfirmedAt.UTC()
		s.ConfirmedAt = &confirmedAt
	}
	return &s, nil
}

func pgReadError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func pgWriteError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
