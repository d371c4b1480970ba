package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID generates a new ULID string for use as an entity identifier.
// User IDs are the exception: they come from the auth provider.
func NewID() string {
	return ulid.Make().String()
}

// Food category constants.
const (
	CategoryMeal     = "meal"
	CategorySnack    = "snack"
	CategoryDessert  = "dessert"
	CategoryDrink    = "drink"
	CategoryLeftover = "leftover"
)

// Swap status constants.
const (
	SwapPending   = "pending"
	SwapAccepted  = "accepted"
	SwapRejected  = "rejected"
	SwapCompleted = "completed"
)

// Notification type constants.
const (
	NotifySwapRequest   = "swap_request"
	NotifySwapAccepted  = "swap_accepted"
	NotifySwapRejected  = "swap_rejected"
	NotifySwapCompleted = "swap_completed"
	NotifyFoodExpiring  = "food_expiring"
	NotifySystem        = "system"
)

// Ticket transaction type constants.
const (
	TicketEarned  = "earned"
	TicketSpent   = "spent"
	TicketAdmin   = "admin"
	TicketInitial = "initial"
)

// validSwapTransitions maps each swap status to the set of statuses it may
// transition to. Terminal statuses (rejected, completed) have no entries.
var validSwapTransitions = map[string]map[string]bool{
	SwapPending: {
		SwapAccepted: true,
		SwapRejected: true,
	},
	SwapAccepted: {
		SwapCompleted: true,
	},
}

// ValidSwapTransition reports whether transitioning a swap from one status to
// another is allowed.
func ValidSwapTransition(from, to string) bool {
	targets, ok := validSwapTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ValidCategory reports whether s is a known food category.
func ValidCategory(s string) bool {
	switch s {
	case CategoryMeal, CategorySnack, CategoryDessert, CategoryDrink, CategoryLeftover:
		return true
	}
	return false
}

// ValidNotificationType reports whether s is a known notification type.
func ValidNotificationType(s string) bool {
	switch s {
	case NotifySwapRequest, NotifySwapAccepted, NotifySwapRejected,
		NotifySwapCompleted, NotifyFoodExpiring, NotifySystem:
		return true
	}
	return false
}

// User is the profile row mirrored from the hosted auth provider. The ID is
// the provider's subject, not a locally generated ULID.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	Bio            string    `json:"bio,omitempty"`
	Location       string    `json:"location,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	IsVerified     bool      `json:"is_verified"`
	AverageRating  float64   `json:"average_rating"`
	RatingCount    int       `json:"rating_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Food represents a food listing offered for swapping or claiming.
type Food struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Category            string     `json:"category"`
	DietaryRequirements []string   `json:"dietary_requirements"`
	Allergens           string     `json:"allergens"`
	ExpiryDate          *time.Time `json:"expiry_date,omitempty"`
	Location            string     `json:"location"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	IsHomemade          bool       `json:"is_homemade"`
	IsAvailable         bool       `json:"is_available"`
	ImageURL            string     `json:"image_url,omitempty"`
	TicketsRequired     int        `json:"tickets_required"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Swap is a request linking two food listings and their owners.
type Swap struct {
	ID              string    `json:"id"`
	RequesterID     string    `json:"requester_id"`
	ProviderID      string    `json:"provider_id"`
	RequesterFoodID string    `json:"requester_food_id"`
	ProviderFoodID  string    `json:"provider_food_id"`
	Message         string    `json:"message,omitempty"`
	ResponseMessage string    `json:"response_message,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Rating is a 1-5 score left for the counterpart of a completed swap.
type Rating struct {
	ID          string    `json:"id"`
	SwapID      string    `json:"swap_id"`
	RaterID     string    `json:"rater_id"`
	RatedUserID string    `json:"rated_user_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification is a per-user message with a read/unread flag. RelatedID
// points at the entity (swap, food) the notification concerns.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RelatedID string    `json:"related_id,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketBalance is a user's current ticket count.
type TicketBalance struct {
	UserID    string    `json:"user_id"`
	Balance   int       `json:"balance"`
	UpdatedAt time.Time `json:"last_updated"`
}

// TicketTransaction records a single ticket movement. Amount is positive for
// earned tickets and negative for spent tickets.
type TicketTransaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Amount        int       `json:"amount"`
	Type          string    `json:"transaction_type"`
	RelatedFoodID string    `json:"related_food_id,omitempty"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

// FoodPreference holds a user's stored preferences for recommendation matching.
type FoodPreference struct {
	UserID              string    `json:"user_id"`
	TastePreferences    []string  `json:"taste_preferences"`
	DietaryRestrictions []string  `json:"dietary_restrictions"`
	Allergies           []string  `json:"allergies"`
	CuisinePreferences  []string  `json:"cuisine_preferences"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}
