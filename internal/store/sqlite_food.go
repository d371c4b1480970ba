package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oishii-app/oishii/internal/model"
)

const foodColumns = `id, user_id, title, description, category, dietary_requirements,
	allergens, expiry_date, location, latitude, longitude, is_homemade,
	is_available, image_url, tickets_required, created_at, updated_at`

// expiringSoonWindow is how far ahead the sweeper looks for listings that are
// about to expire.
const expiringSoonWindow = 24 * time.Hour

func scanFood(row interface{ Scan(...any) error }) (*model.Food, error) {
	f := &model.Food{}
	var dietary string
	err := row.Scan(
		&f.ID, &f.UserID, &f.Title, &f.Description, &f.Category, &dietary,
		&f.Allergens, &f.ExpiryDate, &f.Location, &f.Latitude, &f.Longitude,
		&f.IsHomemade, &f.IsAvailable, &f.ImageURL, &f.TicketsRequired,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan food: %w", err)
	}
	f.DietaryRequirements = unmarshalStrings(dietary)
	return f, nil
}

// CreateFood inserts a new food listing.
func (s *SQLiteStore) CreateFood(ctx context.Context, f *model.Food) error {
	stampTimes(&f.CreatedAt, &f.UpdatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO foods (
			id, user_id, title, description, category, dietary_requirements,
			allergens, expiry_date, location, latitude, longitude, is_homemade,
			is_available, image_url, tickets_required, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Title, f.Description, f.Category,
		marshalStrings(f.DietaryRequirements), f.Allergens, f.ExpiryDate,
		f.Location, f.Latitude, f.Longitude, f.IsHomemade, f.IsAvailable,
		f.ImageURL, f.TicketsRequired, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert food: %w", err)
	}
	return nil
}

// GetFood retrieves a food listing by ID.
func (s *SQLiteStore) GetFood(ctx context.Context, id string) (*model.Food, error) {
	return scanFood(s.db.QueryRowContext(ctx,
		"SELECT "+foodColumns+" FROM foods WHERE id = ?", id))
}

// buildFoodWhere translates a FoodFilter into a WHERE clause and args.
func buildFoodWhere(f FoodFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Available != nil {
		conds = append(conds, "is_available = ?")
		args = append(args, *f.Available)
	}
	if f.Homemade != nil {
		conds = append(conds, "is_homemade = ?")
		args = append(args, *f.Homemade)
	}
	if f.DietaryRequirement != "" {
		// Dietary requirements are stored as a JSON array of strings.
		conds = append(conds, "dietary_requirements LIKE ?")
		args = append(args, `%"`+f.DietaryRequirement+`"%`)
	}
	if f.Location != "" {
		conds = append(conds, "instr(lower(location), lower(?)) > 0")
		args = append(args, f.Location)
	}
	if f.AllergenFree != "" {
		conds = append(conds, "instr(lower(allergens), lower(?)) = 0")
		args = append(args, f.AllergenFree)
	}
	if f.Search != "" {
		conds = append(conds, "(instr(lower(title), lower(?)) > 0 OR instr(lower(description), lower(?)) > 0)")
		args = append(args, f.Search, f.Search)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListFoods returns a filtered, paginated list of food listings ordered by
// created_at DESC, along with the total count of matching rows.
func (s *SQLiteStore) ListFoods(ctx context.Context, f FoodFilter) ([]*model.Food, int, error) {
	where, args := buildFoodWhere(f)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM foods"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count foods: %w", err)
	}

	query := "SELECT " + foodColumns + " FROM foods" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := tx.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list foods: %w", err)
	}
	defer rows.Close()

	foods, err := collectFoods(rows)
	if err != nil {
		return nil, 0, err
	}
	return foods, total, nil
}

// ListFoodsNear returns listings matching the filter within radiusKM of the
// given coordinates. A coarse bounding box narrows the SQL scan; exact
// distances are computed with the haversine formula. Listings without
// coordinates are excluded.
func (s *SQLiteStore) ListFoodsNear(ctx context.Context, lat, lng, radiusKM float64, f FoodFilter) ([]*model.Food, error) {
	where, args := buildFoodWhere(f)

	// Degrees of latitude per km is roughly constant; longitude shrinks with
	// the cosine of the latitude.
	latDelta := radiusKM / 110.574
	lngDelta := radiusKM / (111.320 * math.Cos(lat*math.Pi/180))
	if math.IsInf(lngDelta, 0) || math.IsNaN(lngDelta) {
		lngDelta = 180
	}

	box := "latitude IS NOT NULL AND longitude IS NOT NULL AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?"
	if where == "" {
		where = " WHERE " + box
	} else {
		where += " AND " + box
	}
	args = append(args, lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+foodColumns+" FROM foods"+where+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list nearby foods: %w", err)
	}
	defer rows.Close()

	candidates, err := collectFoods(rows)
	if err != nil {
		return nil, err
	}

	var foods []*model.Food
	for _, food := range candidates {
		if haversineKM(lat, lng, *food.Latitude, *food.Longitude) <= radiusKM {
			foods = append(foods, food)
		}
	}

	return paginate(foods, f.Limit, f.Offset), nil
}

// ListFoodsByUser returns a user's food listings, newest first.
func (s *SQLiteStore) ListFoodsByUser(ctx context.Context, userID string, available *bool, limit, offset int) ([]*model.Food, error) {
	query := "SELECT " + foodColumns + " FROM foods WHERE user_id = ?"
	args := []any{userID}
	if available != nil {
		query += " AND is_available = ?"
		args = append(args, *available)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user foods: %w", err)
	}
	defer rows.Close()

	return collectFoods(rows)
}

// UpdateFood writes the mutable fields of f.
func (s *SQLiteStore) UpdateFood(ctx context.Context, f *model.Food) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE foods SET
			title = ?, description = ?, category = ?, dietary_requirements = ?,
			allergens = ?, expiry_date = ?, location = ?, latitude = ?, longitude = ?,
			is_homemade = ?, is_available = ?, image_url = ?, tickets_required = ?,
			updated_at = ?
		WHERE id = ?`,
		f.Title, f.Description, f.Category, marshalStrings(f.DietaryRequirements),
		f.Allergens, f.ExpiryDate, f.Location, f.Latitude, f.Longitude,
		f.IsHomemade, f.IsAvailable, f.ImageURL, f.TicketsRequired,
		time.Now().UTC(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("update food: %w", err)
	}
	return checkAffected(res)
}

// DeleteFood removes a food listing.
func (s *SQLiteStore) DeleteFood(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM foods WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete food: %w", err)
	}
	return checkAffected(res)
}

// ExpireFoods marks available listings whose expiry date has passed as
// unavailable and returns the listings that were flipped.
func (s *SQLiteStore) ExpireFoods(ctx context.Context) ([]*model.Food, error) {
	now := time.Now().UTC()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+foodColumns+" FROM foods WHERE is_available = 1 AND expiry_date IS NOT NULL AND expiry_date <= ?",
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired foods: %w", err)
	}
	defer rows.Close()

	expired, err := collectFoods(rows)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	for _, f := range expired {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE foods SET is_available = 0, updated_at = ? WHERE id = ?", now, f.ID,
		); err != nil {
			return nil, fmt.Errorf("expire food %s: %w", f.ID, err)
		}
		f.IsAvailable = false
	}

	return expired, nil
}

// ListFoodsExpiringSoon returns available listings that expire within the
// next 24 hours.
func (s *SQLiteStore) ListFoodsExpiringSoon(ctx context.Context) ([]*model.Food, error) {
	now := time.Now().UTC()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+foodColumns+" FROM foods WHERE is_available = 1 AND expiry_date IS NOT NULL AND expiry_date > ? AND expiry_date <= ?",
		now, now.Add(expiringSoonWindow),
	)
	if err != nil {
		return nil, fmt.Errorf("select expiring foods: %w", err)
	}
	defer rows.Close()

	return collectFoods(rows)
}

func collectFoods(rows *sql.Rows) ([]*model.Food, error) {
	var foods []*model.Food
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foods: %w", err)
	}
	return foods, nil
}

func paginate(foods []*model.Food, limit, offset int) []*model.Food {
	if offset >= len(foods) {
		return nil
	}
	foods = foods[offset:]
	if limit > 0 && limit < len(foods) {
		foods = foods[:limit]
	}
	return foods
}

// haversineKM returns the great-circle distance between two points in km.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0

	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
