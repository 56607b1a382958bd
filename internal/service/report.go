package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/souqhub/souq-api/internal/dto"
	"github.com/souqhub/souq-api/internal/repository"
)

var ErrInvalidDate = errors.New("invalid date, want YYYY-MM-DD")

const (
	overviewCacheTTL = 5 * time.Minute
	dateLayout       = "2006-01-02"
)

// ReportService aggregates committed order data. It only reads; the
// checkout transaction is the single writer of everything summarized here.
type ReportService struct {
	reportRepo  repository.ReportRepository
	redisClient *redis.Client
}

func NewReportService(reportRepo repository.ReportRepository, redisClient *redis.Client) *ReportService {
	return &ReportService{reportRepo: reportRepo, redisClient: redisClient}
}

func dayBounds(date string) (time.Time, time.Time, string, error) {
	day := time.Now()
	if date != "" {
		parsed, err := time.Parse(dateLayout, date)
		if err != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return from, from.Add(24 * time.Hour), from.Format(dateLayout), nil
}

func (s *ReportService) Sales(ctx context.Context, date string) (*dto.SalesReportResponse, error) {
	from, to, day, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	summary, err := s.reportRepo.SalesSummary(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("sales report: %w", err)
	}
	return &dto.SalesReportResponse{
		Date:         day,
		TotalRevenue: summary.TotalRevenue,
		TotalOrders:  summary.TotalOrders,
		ItemsSold:    summary.ItemsSold,
	}, nil
}

// Overview is the dashboard read: today's totals plus the top-selling item,
// served from redis when the report worker has warmed it.
func (s *ReportService) Overview(ctx context.Context) (*dto.OverviewResponse, error) {
	_, _, day, _ := dayBounds("")
	cacheKey := overviewCacheKey(day)

	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var resp dto.OverviewResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return &resp, nil
			}
		}
	}

	resp, err := s.ComputeOverview(ctx)
	if err != nil {
		return nil, err
	}

	if s.redisClient != nil {
		if data, err := json.Marshal(resp); err == nil {
			s.redisClient.Set(ctx, cacheKey, data, overviewCacheTTL)
		}
	}
	return resp, nil
}

// ComputeOverview recomputes the overview from the database, bypassing the
// cache. The report worker calls this after each committed order.
func (s *ReportService) ComputeOverview(ctx context.Context) (*dto.OverviewResponse, error) {
	from, to, day, _ := dayBounds("")

	summary, err := s.reportRepo.SalesSummary(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("overview summary: %w", err)
	}
	top, err := s.reportRepo.TopSelling(ctx, from, to, 1)
	if err != nil {
		return nil, fmt.Errorf("overview top selling: %w", err)
	}

	resp := &dto.OverviewResponse{
		Date:        day,
		SalesToday:  summary.TotalRevenue,
		OrdersToday: summary.TotalOrders,
	}
	if len(top) > 0 {
		resp.TopSelling = &dto.TopSellingItemResponse{
			ItemID:   top[0].ItemID,
			Name:     top[0].Name,
			Quantity: top[0].Quantity,
		}
	}
	return resp, nil
}

// WarmOverview writes a freshly computed overview into the cache.
func (s *ReportService) WarmOverview(ctx context.Context) error {
	resp, err := s.ComputeOverview(ctx)
	if err != nil {
		return err
	}
	if s.redisClient == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal overview: %w", err)
	}
	return s.redisClient.Set(ctx, overviewCacheKey(resp.Date), data, overviewCacheTTL).Err()
}

func (s *ReportService) TopSelling(ctx context.Context, fromStr, toStr string, limit int) ([]dto.TopSellingItemResponse, error) {
	from, _, _, err := dayBounds(fromStr)
	if err != nil {
		return nil, err
	}
	_, to, _, err := dayBounds(toStr)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	items, err := s.reportRepo.TopSelling(ctx, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("top selling: %w", err)
	}
	out := make([]dto.TopSellingItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, dto.TopSellingItemResponse{ItemID: it.ItemID, Name: it.Name, Quantity: it.Quantity})
	}
	return out, nil
}

// DailyItems is the per-item breakdown for a single day.
func (s *ReportService) DailyItems(ctx context.Context, date string) (*dto.DailyItemSalesResponse, error) {
	from, to, day, err := dayBounds(date)
	if err != nil {
		return nil, err
	}
	items, err := s.reportRepo.TopSelling(ctx, from, to, 100)
	if err != nil {
		return nil, fmt.Errorf("daily items: %w", err)
	}
	resp := &dto.DailyItemSalesResponse{Date: day}
	for _, it := range items {
		resp.Items = append(resp.Items, dto.TopSellingItemResponse{ItemID: it.ItemID, Name: it.Name, Quantity: it.Quantity})
	}
	return resp, nil
}

func overviewCacheKey(day string) string {
	return "reports:overview:" + day
}
