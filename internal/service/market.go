package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/repository"
)

var (
	ErrMarketNotFound   = errors.New("market not found")
	ErrPhoneTaken       = errors.New("phone number already exists")
	ErrMarketHasHistory = errors.New("market has ledger or order history")
	ErrInvalidAmount    = errors.New("amount must be a non-negative integer")
	ErrInvalidEntryType = errors.New("adjustment type must be PAYMENT or MANUAL")
)

type MarketService struct {
	marketRepo repository.MarketRepository
}

func NewMarketService(marketRepo repository.MarketRepository) *MarketService {
	return &MarketService{marketRepo: marketRepo}
}

func (s *MarketService) Create(ctx context.Context, req dto.CreateMarketRequest) (*model.Market, error) {
	existing, err := s.marketRepo.GetByPhone(ctx, req.PhoneNumber)
	if err != nil {
		return nil, fmt.Errorf("check phone: %w", err)
	}
	if existing != nil {
		return nil, ErrPhoneTaken
	}

	market := &model.Market{Name: req.Name, PhoneNumber: req.PhoneNumber, Description: req.Description}
	if err := s.marketRepo.Create(ctx, market); err != nil {
		return nil, fmt.Errorf("create market: %w", err)
	}
	return market, nil
}

func (s *MarketService) GetByID(ctx context.Context, id uuid.UUID) (*model.Market, error) {
	market, err := s.marketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get market: %w", err)
	}
	if market == nil {
		return nil, ErrMarketNotFound
	}
	return market, nil
}

func (s *MarketService) List(ctx context.Context) ([]model.Market, error) {
	return s.marketRepo.List(ctx)
}

func (s *MarketService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateMarketRequest) (*model.Market, error) {
	market, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.PhoneNumber != nil && *req.PhoneNumber != market.PhoneNumber {
		existing, err := s.marketRepo.GetByPhone(ctx, *req.PhoneNumber)
		if err != nil {
			return nil, fmt.Errorf("check phone: %w", err)
		}
		if existing != nil {
			return nil, ErrPhoneTaken
		}
		market.PhoneNumber = *req.PhoneNumber
	}
	if req.Name != nil {
		market.Name = *req.Name
	}
	if req.Description != nil {
		market.Description = *req.Description
	}
	if err := s.marketRepo.Update(ctx, market); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("update market: %w", err)
	}
	return market, nil
}

// Delete refuses to remove a market with ledger or order history; the audit
// trail outlives the account.
func (s *MarketService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.marketRepo.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrMarketHasHistory):
		return ErrMarketHasHistory
	case errors.Is(err, pgx.ErrNoRows):
		return ErrMarketNotFound
	}
	return fmt.Errorf("delete market: %w", err)
}

// AdjustBalance records a payment or manual adjustment. CHARGE is reserved
// for the checkout path; the sign of the balance delta comes from the entry
// type, never from the caller.
func (s *MarketService) AdjustBalance(ctx context.Context, marketID uuid.UUID, amount int64, entryType, note string) (*model.Market, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	t := model.LedgerEntryType(entryType)
	if t != model.LedgerPayment && t != model.LedgerManual {
		return nil, ErrInvalidEntryType
	}

	market, err := s.marketRepo.AdjustBalance(ctx, marketID, amount, t, note)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, fmt.Errorf("adjust balance: %w", err)
	}
	return market, nil
}

func (s *MarketService) ListLedger(ctx context.Context, marketID uuid.UUID) ([]model.LedgerEntry, error) {
	if _, err := s.GetByID(ctx, marketID); err != nil {
		return nil, err
	}
	return s.marketRepo.ListLedger(ctx, marketID)
}
