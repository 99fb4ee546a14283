/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request bodies carry
  validator/v10 tags and are checked in the handler before any domain call.
  Ledger results (Account, Result, Receipt, LikeResult, Created) are
  serialized as-is; their JSON tags are the wire contract.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Response wrappers
  - *DTO:      Projections of domain types

SEE ALSO:
  - handlers.go: Uses these types
  - client/: Decodes these types
*/
package api

import (
	"time"

	"github.com/ynaut/reward-ledger/auth"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/ledger"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	Username    string `json:"username"     validate:"required,min=3,max=32,excludesall=@ "`
	Email       string `json:"email"        validate:"required,email,max=255"`
	Password    string `json:"password"     validate:"required,min=6,max=128"`
	DisplayName string `json:"display_name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Login    string `json:"login"    validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

// UserDTO is the public profile; it never carries the password hash.
type UserDTO struct {
	ID          ledger.UserID `json:"id"`
	Username    string        `json:"username"`
	Email       string        `json:"email"`
	DisplayName string        `json:"display_name"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toUserDTO(u auth.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

// AuthResponse is returned by register and login. Account seeds the
// client cache.
type AuthResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      UserDTO        `json:"user"`
	Account   ledger.Account `json:"account"`
}

// =============================================================================
// ACCOUNT
// =============================================================================

type MeResponse struct {
	User            UserDTO        `json:"user"`
	Account         ledger.Account `json:"account"`
	AvailableThemes []ledger.Theme `json:"available_themes"`
	BoostActive     bool           `json:"boost_active"`
}

type TransactionsResponse struct {
	Transactions []ledger.Transaction `json:"transactions"`
}

type PurchasesResponse struct {
	Purchases []ledger.Transaction `json:"purchases"`
}

type CatalogResponse struct {
	Items []catalog.Item `json:"items"`
}

// =============================================================================
// ENGAGEMENT
// =============================================================================

type ToggleLikeRequest struct {
	TargetID string `json:"target_id" validate:"required,max=128"`
	Super    bool   `json:"super"`
}

type CreatePostRequest struct {
	Content   string `json:"content"    validate:"required,max=5000"`
	ChannelID string `json:"channel_id" validate:"omitempty,max=64"`
	MediaURL  string `json:"media_url"  validate:"omitempty,url,max=2048"`
	MediaType string `json:"media_type" validate:"omitempty,oneof=image video"`
}

type CreateCommentRequest struct {
	PostID string `json:"post_id" validate:"required,max=64"`
	Body   string `json:"body"    validate:"required,max=2000"`
}

type CreateStoryRequest struct {
	MediaURL  string `json:"media_url"  validate:"required,url,max=2048"`
	MediaType string `json:"media_type" validate:"required,oneof=image video"`
}

type CreateChannelRequest struct {
	Name        string `json:"name"        validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	IsPrivate   bool   `json:"is_private"`
}

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseRequest names an item and the price the client displayed.
// The Idempotency-Key header is optional.
type PurchaseRequest struct {
	ItemID        string         `json:"item_id"        validate:"required,max=64"`
	DeclaredPrice *ledger.Amount `json:"declared_price" validate:"required"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response. Error is the stable code.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}
