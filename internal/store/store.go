package store

import (
	"context"
	"errors"

	"github.com/oishii-app/oishii/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a uniqueness constraint is violated, such as
// rating the same swap twice or registering an email that already exists.
var ErrDuplicate = errors.New("record already exists")

// ErrInvalidTransition is returned when a swap status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInsufficientTickets is returned when a claim costs more tickets than the
// claimer holds.
var ErrInsufficientTickets = errors.New("insufficient ticket balance")

// ErrUnavailable is returned when a claim targets a listing that is no longer
// available.
var ErrUnavailable = errors.New("food is not available")

// ErrOwnFood is returned when a user tries to claim their own listing.
var ErrOwnFood = errors.New("cannot claim your own food")

// FoodFilter narrows ListFoods results. Zero values mean "no constraint".
type FoodFilter struct {
	Category           string
	DietaryRequirement string
	Available          *bool
	Homemade           *bool
	Location           string
	AllergenFree       string
	Search             string
	Limit              int
	Offset             int
}

// NotificationFilter narrows ListNotifications results.
type NotificationFilter struct {
	IsRead *bool
	Type   string
	Limit  int
	Offset int
}

// ClaimResult reports the outcome of a ticket-based food claim.
type ClaimResult struct {
	Food         *model.Food `json:"food"`
	TicketsSpent int         `json:"tickets_spent"`
	NewBalance   int         `json:"new_balance"`
}

// Store defines the persistence operations for the food-swap backend.
type Store interface {
	// Users (profile rows mirrored from the auth provider).
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	MarkUserVerified(ctx context.Context, email string) (*model.User, error)

	// Food listings.
	CreateFood(ctx context.Context, f *model.Food) error
	GetFood(ctx context.Context, id string) (*model.Food, error)
	ListFoods(ctx context.Context, f FoodFilter) ([]*model.Food, int, error)
	ListFoodsNear(ctx context.Context, lat, lng, radiusKM float64, f FoodFilter) ([]*model.Food, error)
	ListFoodsByUser(ctx context.Context, userID string, available *bool, limit, offset int) ([]*model.Food, error)
	UpdateFood(ctx context.Context, f *model.Food) error
	DeleteFood(ctx context.Context, id string) error

	// Swap workflow. UpdateSwapStatus validates the transition and, on
	// acceptance, flips both foods unavailable in the same transaction.
	CreateSwap(ctx context.Context, s *model.Swap) error
	GetSwap(ctx context.Context, id string) (*model.Swap, error)
	ListSwapsForUser(ctx context.Context, userID, status, role string) ([]*model.Swap, error)
	UpdateSwapStatus(ctx context.Context, id, status, responseMessage string) (*model.Swap, error)

	// Ratings. CreateRating recomputes the rated user's average in the same
	// transaction.
	CreateRating(ctx context.Context, r *model.Rating) error
	ListRatingsForUser(ctx context.Context, userID string, limit, offset int) ([]*model.Rating, error)
	ListRatingsForSwap(ctx context.Context, swapID string) ([]*model.Rating, error)

	// Notifications.
	CreateNotification(ctx context.Context, n *model.Notification) error
	GetNotification(ctx context.Context, id string) (*model.Notification, error)
	ListNotifications(ctx context.Context, userID string, f NotificationFilter) ([]*model.Notification, error)
	SetNotificationRead(ctx context.Context, id string, isRead bool) (*model.Notification, error)
	MarkAllNotifications(ctx context.Context, userID, typ string, isRead bool) (int, error)
	DeleteNotification(ctx context.Context, id string) error
	HasNotification(ctx context.Context, userID, typ, relatedID string) (bool, error)

	// Ticket economy.
	EnsureTicketBalance(ctx context.Context, userID string) (*model.TicketBalance, error)
	ListTicketTransactions(ctx context.Context, userID string, limit, offset int) ([]*model.TicketTransaction, error)
	ClaimFood(ctx context.Context, foodID, claimerID string) (*ClaimResult, error)

	// Recommendation preferences.
	UpsertFoodPreference(ctx context.Context, p *model.FoodPreference) error
	GetFoodPreference(ctx context.Context, userID string) (*model.FoodPreference, error)

	// Expiry sweeping.
	ExpireFoods(ctx context.Context) ([]*model.Food, error)
	ListFoodsExpiringSoon(ctx context.Context) ([]*model.Food, error)

	Ping(ctx context.Context) error
	Close() error
}
