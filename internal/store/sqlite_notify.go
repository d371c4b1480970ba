package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/oishii-app/oishii/internal/model"
)

// initialTicketAllocation is the balance seeded for first-time users.
const initialTicketAllocation = 5

const notificationColumns = "id, user_id, type, title, message, related_id, is_read, created_at"

func scanNotification(row interface{ Scan(...any) error }) (*model.Notification, error) {
	n := &model.Notification{}
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.RelatedID, &n.IsRead, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	return n, nil
}

// CreateNotification inserts a new notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	stampTimes(&n.CreatedAt, nil)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, related_id, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.RelatedID, n.IsRead, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*model.Notification, error) {
	return scanNotification(s.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id))
}

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]*model.Notification, error) {
	query := "SELECT " + notificationColumns + " FROM notifications WHERE user_id = ?"
	args := []any{userID}

	if f.IsRead != nil {
		query += " AND is_read = ?"
		args = append(args, *f.IsRead)
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, f.Type)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// SetNotificationRead sets the read flag and returns the updated notification.
func (s *SQLiteStore) SetNotificationRead(ctx context.Context, id string, isRead bool) (*model.Notification, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = ? WHERE id = ?", isRead, id)
	if err != nil {
		return nil, fmt.Errorf("set notification read: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return nil, err
	}
	return s.GetNotification(ctx, id)
}

// MarkAllNotifications sets the read flag on all of a user's notifications,
// optionally narrowed by type. Returns the number of rows updated.
func (s *SQLiteStore) MarkAllNotifications(ctx context.Context, userID, typ string, isRead bool) (int, error) {
	query := "UPDATE notifications SET is_read = ? WHERE user_id = ?"
	args := []any{isRead, userID}
	if typ != "" {
		query += " AND type = ?"
		args = append(args, typ)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteNotification removes a notification.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return checkAffected(res)
}

// HasNotification reports whether a notification of the given type already
// exists for the user and related entity. Used to deduplicate sweeper output.
func (s *SQLiteStore) HasNotification(ctx context.Context, userID, typ, relatedID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = ? AND type = ? AND related_id = ?",
		userID, typ, relatedID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return n > 0, nil
}

// EnsureTicketBalance returns the user's ticket balance, seeding a new
// account with the initial allocation and its transaction record.
func (s *SQLiteStore) EnsureTicketBalance(ctx context.Context, userID string) (*model.TicketBalance, error) {
	b := &model.TicketBalance{}
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, balance, updated_at FROM ticket_balances WHERE user_id = ?", userID,
	).Scan(&b.UserID, &b.Balance, &b.UpdatedAt)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get ticket balance: %w", err)
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO ticket_balances (user_id, balance, updated_at) VALUES (?, ?, ?)",
		userID, initialTicketAllocation, now,
	); err != nil {
		return nil, fmt.Errorf("seed ticket balance: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticket_transactions (id, user_id, amount, type, related_food_id, description, created_at)
		VALUES (?, ?, ?, ?, '', ?, ?)`,
		model.NewID(), userID, initialTicketAllocation, model.TicketInitial,
		"Initial ticket allocation", now,
	); err != nil {
		return nil, fmt.Errorf("record initial allocation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &model.TicketBalance{UserID: userID, Balance: initialTicketAllocation, UpdatedAt: now}, nil
}

// ListTicketTransactions returns a user's ticket movements, newest first.
func (s *SQLiteStore) ListTicketTransactions(ctx context.Context, userID string, limit, offset int) ([]*model.TicketTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, related_food_id, description, created_at
		FROM ticket_transactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list ticket transactions: %w", err)
	}
	defer rows.Close()

	var txns []*model.TicketTransaction
	for rows.Next() {
		t := &model.TicketTransaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.RelatedFoodID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket transactions: %w", err)
	}
	return txns, nil
}

// ClaimFood spends tickets to claim a listing: the claimer pays the listing's
// ticket price, the provider earns it, the listing goes unavailable, and both
// movements are recorded. The whole exchange runs in one transaction.
func (s *SQLiteStore) ClaimFood(ctx context.Context, foodID, claimerID string) (*ClaimResult, error) {
	// Seeding balances may itself open a transaction, so do it up front.
	claimerBalance, err := s.EnsureTicketBalance(ctx, claimerID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	food, err := scanFood(tx.QueryRowContext(ctx,
		"SELECT "+foodColumns+" FROM foods WHERE id = ?", foodID))
	if err != nil {
		return nil, err
	}

	if !food.IsAvailable {
		return nil, ErrUnavailable
	}
	if food.UserID == claimerID {
		return nil, ErrOwnFood
	}

	cost := food.TicketsRequired
	if cost <= 0 {
		cost = 1
	}
	if claimerBalance.Balance < cost {
		return nil, fmt.Errorf("%w: required %d, available %d", ErrInsufficientTickets, cost, claimerBalance.Balance)
	}

	now := time.Now().UTC()

	// Guarded updates: a concurrent claim may have taken the listing or
	// spent the balance since the reads above.
	res, err := tx.ExecContext(ctx,
		"UPDATE foods SET is_available = 0, updated_at = ? WHERE id = ? AND is_available = 1",
		now, foodID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark food claimed: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrUnavailable
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE ticket_balances SET balance = balance - ?, updated_at = ? WHERE user_id = ? AND balance >= ?",
		cost, now, claimerID, cost,
	)
	if err != nil {
		return nil, fmt.Errorf("debit claimer: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: required %d", ErrInsufficientTickets, cost)
	}

	// Credit the provider, seeding a zero balance row if they have none yet.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ticket_balances (user_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET balance = balance + ?, updated_at = ?`,
		food.UserID, cost, now, cost, now,
	); err != nil {
		return nil, fmt.Errorf("credit provider: %w", err)
	}

	for _, mv := range []struct {
		userID      string
		amount      int
		typ         string
		description string
	}{
		{claimerID, -cost, model.TicketSpent, "Claimed food: " + food.Title},
		{food.UserID, cost, model.TicketEarned, "Someone claimed your food: " + food.Title},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ticket_transactions (id, user_id, amount, type, related_food_id, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			model.NewID(), mv.userID, mv.amount, mv.typ, foodID, mv.description, now,
		); err != nil {
			return nil, fmt.Errorf("record ticket transaction: %w", err)
		}
	}

	var newBalance int
	if err := tx.QueryRowContext(ctx,
		"SELECT balance FROM ticket_balances WHERE user_id = ?", claimerID,
	).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("read balance after debit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	food.IsAvailable = false
	return &ClaimResult{
		Food:         food,
		TicketsSpent: cost,
		NewBalance:   newBalance,
	}, nil
}

// UpsertFoodPreference creates or replaces a user's recommendation preferences.
func (s *SQLiteStore) UpsertFoodPreference(ctx context.Context, p *model.FoodPreference) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO food_preferences (
			user_id, taste_preferences, dietary_restrictions, allergies,
			cuisine_preferences, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			taste_preferences = excluded.taste_preferences,
			dietary_restrictions = excluded.dietary_restrictions,
			allergies = excluded.allergies,
			cuisine_preferences = excluded.cuisine_preferences,
			updated_at = excluded.updated_at`,
		p.UserID, marshalStrings(p.TastePreferences), marshalStrings(p.DietaryRestrictions),
		marshalStrings(p.Allergies), marshalStrings(p.CuisinePreferences), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert food preference: %w", err)
	}
	return nil
}

// GetFoodPreference retrieves a user's recommendation preferences.
func (s *SQLiteStore) GetFoodPreference(ctx context.Context, userID string) (*model.FoodPreference, error) {
	p := &model.FoodPreference{}
	var taste, dietary, allergies, cuisine string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, taste_preferences, dietary_restrictions, allergies,
			cuisine_preferences, created_at, updated_at
		FROM food_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &taste, &dietary, &allergies, &cuisine, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get food preference: %w", err)
	}

	p.TastePreferences = unmarshalStrings(taste)
	p.DietaryRestrictions = unmarshalStrings(dietary)
	p.Allergies = unmarshalStrings(allergies)
	p.CuisinePreferences = unmarshalStrings(cuisine)
	return p, nil
}
