package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role is the closed set of principal roles. It is normalized once, at the
// credential-verification boundary; downstream code compares constants only.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleEmployee    Role = "EMPLOYEE"
	RoleMarketOwner Role = "MARKET_OWNER"
)

// ParseRole normalizes a stored or transported role literal. Legacy rows may
// carry lowercase values.
func ParseRole(s string) (Role, error) {
	switch s {
	case "ADMIN", "admin":
		return RoleAdmin, nil
	case "EMPLOYEE", "employee":
		return RoleEmployee, nil
	case "MARKET_OWNER", "market_owner":
		return RoleMarketOwner, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// AuthContext is the per-request principal, built once by the auth
// middleware and passed explicitly to everything downstream.
type AuthContext struct {
	UserID   uuid.UUID
	Role     Role
	MarketID *uuid.UUID
}

func (a AuthContext) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleEmployee
}

type User struct {
	ID        uuid.UUID
	Name      string
	PINHash   string
	Role      Role
	CreatedAt time.Time
}

type Category struct {
	ID          uuid.UUID
	Name        string
	Description string
	ImageURL    string
	Archived    bool
	CreatedAt   time.Time
}

type Item struct {
	ID          uuid.UUID
	CategoryID  uuid.UUID
	Name        string
	Description string
	Price       decimal.Decimal
	ImageURL    string
	Archived    bool
	CreatedAt   time.Time
}

type Market struct {
	ID          uuid.UUID
	Name        string
	PhoneNumber string
	Description string
	BalanceDue  int64
	CreatedAt   time.Time
}

// LedgerEntryType determines the sign applied to an entry's amount: CHARGE
// and MANUAL increase balance_due, PAYMENT decreases it. Amounts are always
// non-negative at the call boundary.
type LedgerEntryType string

const (
	LedgerCharge  LedgerEntryType = "CHARGE"
	LedgerPayment LedgerEntryType = "PAYMENT"
	LedgerManual  LedgerEntryType = "MANUAL"
)

// SignedAmount returns the delta this entry applies to a market's balance.
func (t LedgerEntryType) SignedAmount(amount int64) int64 {
	if t == LedgerPayment {
		return -amount
	}
	return amount
}

// LedgerEntry is append-only: never updated, never deleted.
type LedgerEntry struct {
	ID        uuid.UUID
	MarketID  uuid.UUID
	Amount    int64
	Type      LedgerEntryType
	Note      string
	CreatedAt time.Time
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether a status change is allowed. Orders move
// PENDING -> CONFIRMED -> DELIVERED, and may be cancelled until delivered.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	}
	return false
}

type Order struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	MarketID   *uuid.UUID
	TotalPrice decimal.Decimal
	Note       string
	Status     OrderStatus
	Items      []OrderItem
	CreatedAt  time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ItemID    uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// OrderMessage is published to RabbitMQ after a checkout commits.
type OrderMessage struct {
	OrderID  uuid.UUID  `json:"order_id"`
	MarketID *uuid.UUID `json:"market_id,omitempty"`
}

// --- Report read models ---

type SalesSummary struct {
	TotalRevenue decimal.Decimal
	TotalOrders  int
	ItemsSold    int
}

type ItemSales struct {
	ItemID   uuid.UUID
	Name     string
	Quantity int
}
