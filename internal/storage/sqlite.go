package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"subscriber/internal/models"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	sqliteUserColumns       = `id, name, email, password_hash, created_at, updated_at`
	sqliteSubscriberColumns = `id, name, email, status, token_hash, created_at, confirmed_at`
)

// SQLiteStorage implements the Storage interface on an embedded SQLite database.
// Timestamps are stored as RFC 3339 text in UTC.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is a separate database
	if strings.Contains(config.ConnectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	} else if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := Migrate(ctx, db, goose.DialectSQLite3); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStorage{db: db}, nil
}

// CreateUser stores a new user
func (ss *SQLiteStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO users (`+sqliteUserColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if err != nil {
		return sqliteWriteError(err, "create user")
	}
	return nil
}

// GetUser retrieves a user by ID
func (ss *SQLiteStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id)
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, sqliteReadError(err, "user "+id)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, case-insensitively
func (ss *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE email = ?`, email)
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, sqliteReadError(err, "user email "+email)
	}
	return user, nil
}

// ListUsers returns all users, newest first
func (ss *SQLiteStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser replaces the name, email and updated timestamp of an existing user
func (ss *SQLiteStorage) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := ss.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.Email, formatTime(user.UpdatedAt), user.ID)
	if err != nil {
		return sqliteWriteError(err, "update user")
	}
	return expectAffected(res, "user "+user.ID)
}

// DeleteUser removes a user by ID
func (ss *SQLiteStorage) DeleteUser(ctx context.Context, id string) error {
	res, err := ss.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	return expectAffected(res, "user "+id)
}

// CreateSubscriber stores a new subscriber
func (ss *SQLiteStorage) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	var confirmedAt sql.NullString
	if sub.ConfirmedAt != nil {
		confirmedAt = sql.NullString{String: formatTime(*sub.ConfirmedAt), Valid: true}
	}
	_, err := ss.db.ExecContext(ctx,
		`INSERT INTO subscriptions (`+sqliteSubscriberColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.Email, sub.Status, sub.TokenHash, formatTime(sub.CreatedAt), confirmedAt)
	if err != nil {
		return sqliteWriteError(err, "create subscriber")
	}
	return nil
}

// GetSubscriberByToken looks a subscriber up by confirmation token hash
func (ss *SQLiteStorage) GetSubscriberByToken(ctx context.Context, tokenHash string) (*models.Subscriber, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT `+sqliteSubscriberColumns+` FROM subscriptions WHERE token_hash = ?`, tokenHash)
	sub, err := scanSQLiteSubscriber(row)
	if err != nil {
		return nil, sqliteReadError(err, "subscription token")
	}
	return sub, nil
}

// GetSubscriberByEmail retrieves a subscriber by email address
func (ss *SQLiteStorage) GetSubscriberByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	row := ss.db.QueryRowContext(ctx, `SELECT `+sqliteSubscriberColumns+` FROM subscriptions WHERE email = ?`, email)
	sub, err := scanSQLiteSubscriber(row)
	if err != nil {
		return nil, sqliteReadError(err, "subscriber email "+email)
	}
	return sub, nil
}

// ConfirmSubscriber marks a subscriber as confirmed
func (ss *SQLiteStorage) ConfirmSubscriber(ctx context.Context, id string, at time.Time) error {
	res, err := ss.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = ?, confirmed_at = ? WHERE id = ?`,
		models.SubscriptionConfirmed, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to confirm subscriber %s: %w", id, err)
	}
	return expectAffected(res, "subscriber "+id)
}

// DeleteSubscriber removes a subscriber by ID
func (ss *SQLiteStorage) DeleteSubscriber(ctx context.Context, id string) error {
	res, err := ss.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	return expectAffected(res, "subscriber "+id)
}

// ListSubscribers returns all subscribers, newest first
func (ss *SQLiteStorage) ListSubscribers(ctx context.Context) ([]*models.Subscriber, error) {
	rows, err := ss.db.QueryContext(ctx, `SELECT `+sqliteSubscriberColumns+` FROM subscriptions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]*models.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSQLiteSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Ping checks the database connection
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanSQLiteSubscriber(row rowScanner) (*models.Subscriber, error) {
	var s models.Subscriber
	var createdAt string
	var confirmedAt sql.NullString
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Status, &s.TokenHash, &createdAt, &confirmedAt); err != nil {
		return nil, err
	}
	var err error
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t, err := parseTime(confirmedAt.String)
		if err != nil {
			return nil, err
		}
		s.ConfirmedAt = &t
	}
	return &s, nil
}

// formatTime uses a fixed-width layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func sqliteReadError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func sqliteWriteError(err error, op string) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
