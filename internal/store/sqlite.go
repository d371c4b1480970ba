package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oishii-app/oishii/internal/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id              TEXT PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    username        TEXT NOT NULL,
    bio             TEXT NOT NULL DEFAULT '',
    location        TEXT NOT NULL DEFAULT '',
    latitude        REAL,
    longitude       REAL,
    profile_picture TEXT NOT NULL DEFAULT '',
    is_verified     INTEGER NOT NULL DEFAULT 0,
    average_rating  REAL NOT NULL DEFAULT 0,
    rating_count    INTEGER NOT NULL DEFAULT 0,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS foods (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL REFERENCES users(id),
    title                TEXT NOT NULL,
    description          TEXT NOT NULL,
    category             TEXT NOT NULL,
    dietary_requirements TEXT NOT NULL DEFAULT '[]',
    allergens            TEXT NOT NULL DEFAULT '',
    expiry_date          DATETIME,
    location             TEXT NOT NULL,
    latitude             REAL,
    longitude            REAL,
    is_homemade          INTEGER NOT NULL DEFAULT 0,
    is_available         INTEGER NOT NULL DEFAULT 1,
    image_url            TEXT NOT NULL DEFAULT '',
    tickets_required     INTEGER NOT NULL DEFAULT 1,
    created_at           DATETIME NOT NULL,
    updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS swaps (
    id                TEXT PRIMARY KEY,
    requester_id      TEXT NOT NULL REFERENCES users(id),
    provider_id       TEXT NOT NULL REFERENCES users(id),
    requester_food_id TEXT NOT NULL REFERENCES foods(id),
    provider_food_id  TEXT NOT NULL REFERENCES foods(id),
    message           TEXT NOT NULL DEFAULT '',
    response_message  TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    created_at        DATETIME NOT NULL,
    updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ratings (
    id            TEXT PRIMARY KEY,
    swap_id       TEXT NOT NULL REFERENCES swaps(id),
    rater_id      TEXT NOT NULL REFERENCES users(id),
    rated_user_id TEXT NOT NULL REFERENCES users(id),
    rating        INTEGER NOT NULL,
    comment       TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL,
    UNIQUE (swap_id, rater_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES users(id),
    type       TEXT NOT NULL,
    title      TEXT NOT NULL,
    message    TEXT NOT NULL,
    related_id TEXT NOT NULL DEFAULT '',
    is_read    INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_balances (
    user_id    TEXT PRIMARY KEY REFERENCES users(id),
    balance    INTEGER NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ticket_transactions (
    id              TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES users(id),
    amount          INTEGER NOT NULL,
    type            TEXT NOT NULL,
    related_food_id TEXT NOT NULL DEFAULT '',
    description     TEXT NOT NULL,
    created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS food_preferences (
    user_id              TEXT PRIMARY KEY REFERENCES users(id),
    taste_preferences    TEXT NOT NULL DEFAULT '[]',
    dietary_restrictions TEXT NOT NULL DEFAULT '[]',
    allergies            TEXT NOT NULL DEFAULT '[]',
    cuisine_preferences  TEXT NOT NULL DEFAULT '[]',
    created_at           DATETIME NOT NULL,
    updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_foods_user ON foods(user_id);
CREATE INDEX IF NOT EXISTS idx_swaps_requester ON swaps(requester_id);
CREATE INDEX IF NOT EXISTS idx_swaps_provider ON swaps(provider_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_ratings_rated_user ON ratings(rated_user_id);
`

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// marshalStrings encodes a string slice as a JSON array for storage.
// nil encodes as "[]" so the column is never NULL.
func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalStrings decodes a JSON array column back into a string slice.
func unmarshalStrings(raw string) []string {
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return []string{}
	}
	if ss == nil {
		return []string{}
	}
	return ss
}

// CreateUser inserts a mirrored profile row for an auth provider user.
func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	stampTimes(&u.CreatedAt, &u.UpdatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (
			id, email, username, bio, location, latitude, longitude,
			profile_picture, is_verified, average_rating, rating_count,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Username, u.Bio, u.Location, u.Latitude, u.Longitude,
		u.ProfilePicture, u.IsVerified, u.AverageRating, u.RatingCount,
		u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, email, username, bio, location, latitude, longitude,
	profile_picture, is_verified, average_rating, rating_count, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Bio, &u.Location, &u.Latitude, &u.Longitude,
		&u.ProfilePicture, &u.IsVerified, &u.AverageRating, &u.RatingCount,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// GetUser retrieves a user profile by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByEmail retrieves a user profile by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// UpdateUser writes the mutable profile fields of u.
func (s *SQLiteStore) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			username = ?, bio = ?, location = ?, latitude = ?, longitude = ?,
			profile_picture = ?, updated_at = ?
		WHERE id = ?`,
		u.Username, u.Bio, u.Location, u.Latitude, u.Longitude,
		u.ProfilePicture, time.Now().UTC(), u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return checkAffected(res)
}

// MarkUserVerified flags the user with the given email as verified and
// returns the updated profile.
func (s *SQLiteStore) MarkUserVerified(ctx context.Context, email string) (*model.User, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_verified = 1, updated_at = ? WHERE email = ?",
		time.Now().UTC(), email,
	)
	if err != nil {
		return nil, fmt.Errorf("mark user verified: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return nil, err
	}
	return s.GetUserByEmail(ctx, email)
}

// stampTimes fills zero created/updated timestamps with the current time.
// updated may be nil for tables without an updated_at column.
func stampTimes(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil && updated.IsZero() {
		*updated = now
	}
}

// checkAffected converts a zero-row update into ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
