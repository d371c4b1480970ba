package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oishii-app/oishii/internal/model"
)

const swapColumns = `id, requester_id, provider_id, requester_food_id,
	provider_food_id, message, response_message, status, created_at, updated_at`

func scanSwap(row interface{ Scan(...any) error }) (*model.Swap, error) {
	sw := &model.Swap{}
	err := row.Scan(
		&sw.ID, &sw.RequesterID, &sw.ProviderID, &sw.RequesterFoodID,
		&sw.ProviderFoodID, &sw.Message, &sw.ResponseMessage, &sw.Status,
		&sw.CreatedAt, &sw.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan swap: %w", err)
	}
	return sw, nil
}

// CreateSwap inserts a new swap request.
func (s *SQLiteStore) CreateSwap(ctx context.Context, sw *model.Swap) error {
	stampTimes(&sw.CreatedAt, &sw.UpdatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO swaps (
			id, requester_id, provider_id, requester_food_id, provider_food_id,
			message, response_message, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sw.ID, sw.RequesterID, sw.ProviderID, sw.RequesterFoodID, sw.ProviderFoodID,
		sw.Message, sw.ResponseMessage, sw.Status, sw.CreatedAt, sw.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert swap: %w", err)
	}
	return nil
}

// GetSwap retrieves a swap by ID.
func (s *SQLiteStore) GetSwap(ctx context.Context, id string) (*model.Swap, error) {
	return scanSwap(s.db.QueryRowContext(ctx,
		"SELECT "+swapColumns+" FROM swaps WHERE id = ?", id))
}

// ListSwapsForUser returns swaps the user participates in, newest first.
// role narrows to "requester" or "provider"; status narrows by swap status.
func (s *SQLiteStore) ListSwapsForUser(ctx context.Context, userID, status, role string) ([]*model.Swap, error) {
	query := "SELECT " + swapColumns + " FROM swaps WHERE "
	var args []any

	switch role {
	case "requester":
		query += "requester_id = ?"
		args = append(args, userID)
	case "provider":
		query += "provider_id = ?"
		args = append(args, userID)
	default:
		query += "(requester_id = ? OR provider_id = ?)"
		args = append(args, userID, userID)
	}

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list swaps: %w", err)
	}
	defer rows.Close()

	var swaps []*model.Swap
	for rows.Next() {
		sw, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swaps: %w", err)
	}
	return swaps, nil
}

// UpdateSwapStatus transitions a swap to a new status. The transition is
// validated against the swap state machine; on acceptance, both food listings
// are marked unavailable in the same transaction. Returns the updated swap.
func (s *SQLiteStore) UpdateSwapStatus(ctx context.Context, id, status, responseMessage string) (*model.Swap, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	sw, err := scanSwap(tx.QueryRowContext(ctx,
		"SELECT "+swapColumns+" FROM swaps WHERE id = ?", id))
	if err != nil {
		return nil, err
	}

	if !model.ValidSwapTransition(sw.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sw.Status, status)
	}

	now := time.Now().UTC()
	if responseMessage != "" {
		_, err = tx.ExecContext(ctx,
			"UPDATE swaps SET status = ?, response_message = ?, updated_at = ? WHERE id = ?",
			status, responseMessage, now, id)
	} else {
		_, err = tx.ExecContext(ctx,
			"UPDATE swaps SET status = ?, updated_at = ? WHERE id = ?",
			status, now, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update swap status: %w", err)
	}

	// Acceptance takes both listings off the market.
	if status == model.SwapAccepted {
		for _, foodID := range []string{sw.RequesterFoodID, sw.ProviderFoodID} {
			if _, err := tx.ExecContext(ctx,
				"UPDATE foods SET is_available = 0, updated_at = ? WHERE id = ?",
				now, foodID,
			); err != nil {
				return nil, fmt.Errorf("mark food unavailable: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	sw.Status = status
	if responseMessage != "" {
		sw.ResponseMessage = responseMessage
	}
	sw.UpdatedAt = now
	return sw, nil
}

const ratingColumns = "id, swap_id, rater_id, rated_user_id, rating, comment, created_at"

func scanRating(row interface{ Scan(...any) error }) (*model.Rating, error) {
	r := &model.Rating{}
	err := row.Scan(&r.ID, &r.SwapID, &r.RaterID, &r.RatedUserID, &r.Rating, &r.Comment, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rating: %w", err)
	}
	return r, nil
}

// CreateRating inserts a rating and recomputes the rated user's average and
// count in the same transaction. A second rating for the same (swap, rater)
// pair returns ErrDuplicate.
func (s *SQLiteStore) CreateRating(ctx context.Context, r *model.Rating) error {
	stampTimes(&r.CreatedAt, nil)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, swap_id, rater_id, rated_user_id, rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SwapID, r.RaterID, r.RatedUserID, r.Rating, r.Comment, r.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET
			average_rating = (SELECT AVG(rating) FROM ratings WHERE rated_user_id = ?),
			rating_count   = (SELECT COUNT(*) FROM ratings WHERE rated_user_id = ?),
			updated_at     = ?
		WHERE id = ?`,
		r.RatedUserID, r.RatedUserID, time.Now().UTC(), r.RatedUserID,
	); err != nil {
		return fmt.Errorf("recompute user rating: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRatingsForUser returns ratings received by a user, newest first.
func (s *SQLiteStore) ListRatingsForUser(ctx context.Context, userID string, limit, offset int) ([]*model.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ratingColumns+" FROM ratings WHERE rated_user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list user ratings: %w", err)
	}
	defer rows.Close()

	return collectRatings(rows)
}

// ListRatingsForSwap returns the ratings attached to a swap (at most two).
func (s *SQLiteStore) ListRatingsForSwap(ctx context.Context, swapID string) ([]*model.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ratingColumns+" FROM ratings WHERE swap_id = ? ORDER BY created_at DESC", swapID)
	if err != nil {
		return nil, fmt.Errorf("list swap ratings: %w", err)
	}
	defer rows.Close()

	return collectRatings(rows)
}

func collectRatings(rows *sql.Rows) ([]*model.Rating, error) {
	var ratings []*model.Rating
	for rows.Next() {
		r, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratings: %w", err)
	}
	return ratings, nil
}
