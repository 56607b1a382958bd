package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/souqhub/souq-api/internal/model"
)

// --- Auth ---

type LoginRequest struct {
	Credential string `json:"credential" binding:"required"`
}

type PrincipalResponse struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	MarketID *uuid.UUID `json:"market_id,omitempty"`
}

// --- Users ---

type CreateUserRequest struct {
	Name string `json:"name" binding:"required"`
	Role string `json:"role" binding:"required,oneof=ADMIN EMPLOYEE admin employee"`
	PIN  string `json:"pin" binding:"required,len=4,numeric"`
}

type UserResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// --- Catalog ---

type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

type UpdateCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"image_url"`
	Archived    *bool   `json:"archived"`
}

type CategoryResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateItemRequest struct {
	CategoryID  uuid.UUID       `json:"category_id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" binding:"required"`
	ImageURL    string          `json:"image_url"`
}

type UpdateItemRequest struct {
	CategoryID  *uuid.UUID       `json:"category_id"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"image_url"`
	Archived    *bool            `json:"archived"`
}

type ItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	CategoryID  uuid.UUID       `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	Archived    bool            `json:"archived"`
}

// DeleteOutcomeResponse distinguishes hard delete, archival, and forced
// cascade so clients can message each case differently.
type DeleteOutcomeResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// --- Markets ---

type CreateMarketRequest struct {
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required,len=10,numeric"`
	Description string `json:"description"`
}

type UpdateMarketRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number" binding:"omitempty,len=10,numeric"`
	Description *string `json:"description"`
}

type MarketResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Description string    `json:"description,omitempty"`
	BalanceDue  int64     `json:"balance_due"`
}

type AdjustBalanceRequest struct {
	Amount int64  `json:"amount" binding:"min=0"`
	Type   string `json:"type" binding:"required,oneof=PAYMENT MANUAL"`
	Note   string `json:"note"`
}

// MarketSnapshotResponse is the post-adjustment view of a market.
type MarketSnapshotResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	BalanceDue int64     `json:"balance_due"`
}

type LedgerEntryResponse struct {
	ID        uuid.UUID             `json:"id"`
	MarketID  uuid.UUID             `json:"market_id"`
	Amount    int64                 `json:"amount"`
	Type      model.LedgerEntryType `json:"type"`
	Note      string                `json:"note,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// --- Orders ---

type OrderLineRequest struct {
	ItemID    uuid.UUID       `json:"item_id" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" binding:"required"`
}

type CreateOrderRequest struct {
	Items    []OrderLineRequest `json:"items" binding:"required,dive"`
	MarketID *uuid.UUID         `json:"market_id"`
	Note     string             `json:"note"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=PENDING CONFIRMED DELIVERED CANCELLED"`
}

type OrderResponse struct {
	ID         uuid.UUID           `json:"id"`
	UserID     uuid.UUID           `json:"user_id"`
	MarketID   *uuid.UUID          `json:"market_id,omitempty"`
	TotalPrice decimal.Decimal     `json:"total_price"`
	Note       string              `json:"note,omitempty"`
	Status     model.OrderStatus   `json:"status"`
	Items      []OrderItemResponse `json:"order_items"`
	CreatedAt  time.Time           `json:"created_at"`
}

type OrderItemResponse struct {
	ID        uuid.UUID       `json:"id"`
	ItemID    uuid.UUID       `json:"item_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// --- Reports ---

type SalesReportResponse struct {
	Date         string          `json:"date"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int             `json:"total_orders"`
	ItemsSold    int             `json:"items_sold"`
}

type TopSellingItemResponse struct {
	ItemID   uuid.UUID `json:"item_id"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
}

type OverviewResponse struct {
	Date        string                  `json:"date"`
	SalesToday  decimal.Decimal         `json:"sales_today"`
	OrdersToday int                     `json:"orders_today"`
	TopSelling  *TopSellingItemResponse `json:"top_selling,omitempty"`
}

type DailyItemSalesResponse struct {
	Date  string                   `json:"date"`
	Items []TopSellingItemResponse `json:"items"`
}
