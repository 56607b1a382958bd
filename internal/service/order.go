package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/repository"
)

var (
	ErrEmptyBasket       = errors.New("order must contain at least one item")
	ErrInvalidLine       = errors.New("quantity and unit price must be positive")
	ErrMarketRequired    = errors.New("market id is required")
	ErrNoSystemUser      = errors.New("no administrator exists to own market orders")
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderAccessDenied = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const orderQueueName = "orders"

type OrderService struct {
	orderRepo repository.OrderRepository
	userRepo  repository.UserRepository
	amqpCh    *amqp.Channel
}

func NewOrderService(orderRepo repository.OrderRepository, userRepo repository.UserRepository, amqpCh *amqp.Channel) *OrderService {
	return &OrderService{orderRepo: orderRepo, userRepo: userRepo, amqpCh: amqpCh}
}

// Checkout turns a basket into a persisted order. Validation, attribution,
// totals, order rows and the market charge all resolve within one database
// transaction; a failure at any step leaves nothing behind.
func (s *OrderService) Checkout(ctx context.Context, auth model.AuthContext, req dto.CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyBasket
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 || !line.UnitPrice.IsPositive() {
			return nil, ErrInvalidLine
		}
	}

	marketID := req.MarketID
	userID := auth.UserID

	switch auth.Role {
	case model.RoleMarketOwner:
		// An owner charges its own market unless one was supplied.
		if marketID == nil {
			marketID = auth.MarketID
		}
		if marketID == nil {
			return nil, ErrMarketRequired
		}
		// Markets are not users; the order is owned by the system principal.
		admin, err := s.userRepo.FirstAdmin(ctx)
		if err != nil {
			return nil, fmt.Errorf("find system user: %w", err)
		}
		if admin == nil {
			return nil, ErrNoSystemUser
		}
		userID = admin.ID
	case model.RoleEmployee:
		// Market selection happens in the basket UI; by this point a missing
		// market id is a caller error.
		if marketID == nil {
			return nil, ErrMarketRequired
		}
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal)
		items = append(items, model.OrderItem{
			ItemID:    line.ItemID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
		})
	}

	order := &model.Order{
		UserID:     userID,
		MarketID:   marketID,
		TotalPrice: total,
		Note:       req.Note,
		Status:     model.OrderStatusPending,
		Items:      items,
	}

	if err := s.orderRepo.Create(ctx, order, roundToUnits(total)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The ledger charge found no market row; everything rolled back.
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.publishOrderCreated(ctx, order)
	return order, nil
}

// roundToUnits converts a decimal total to whole currency units, rounding
// halves up.
func roundToUnits(total decimal.Decimal) int64 {
	return total.Round(0).IntPart()
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *model.Order) {
	if s.amqpCh == nil {
		return
	}
	msg, _ := json.Marshal(model.OrderMessage{OrderID: order.ID, MarketID: order.MarketID})
	_ = s.amqpCh.PublishWithContext(ctx, "", orderQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         msg,
		DeliveryMode: amqp.Persistent,
	})
}

func (s *OrderService) GetByID(ctx context.Context, auth model.AuthContext, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if auth.Role == model.RoleMarketOwner {
		if order.MarketID == nil || auth.MarketID == nil || *order.MarketID != *auth.MarketID {
			return nil, ErrOrderAccessDenied
		}
	}
	return order, nil
}

func (s *OrderService) List(ctx context.Context, auth model.AuthContext) ([]model.Order, error) {
	if auth.Role == model.RoleMarketOwner {
		if auth.MarketID == nil {
			return nil, ErrOrderAccessDenied
		}
		return s.orderRepo.ListByMarket(ctx, *auth.MarketID)
	}
	return s.orderRepo.List(ctx)
}

// UpdateStatus moves an order along PENDING -> CONFIRMED -> DELIVERED, with
// cancellation allowed until delivery. Terminal states stay terminal.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, statusStr string) (*model.Order, error) {
	status, err := model.ParseOrderStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, statusStr)
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	// The write is conditional on the status we just validated, so a
	// concurrent update cannot sneak an order through a forbidden edge.
	if err := s.orderRepo.UpdateStatus(ctx, orderID, order.Status, status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := s.orderRepo.GetByID(ctx, orderID)
			if getErr == nil && current == nil {
				return nil, ErrOrderNotFound
			}
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	order.Status = status
	return order, nil
}
