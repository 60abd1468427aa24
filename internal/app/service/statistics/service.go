package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/pkg/types"
)

type StatisticType string

const (
	StatisticTypeDailyActivationCount   StatisticType = "daily_activation_count"
	StatisticTypeDailyFailureCount      StatisticType = "daily_failure_count"
	StatisticTypeDailyCancellationCount StatisticType = "daily_cancellation_count"
	StatisticTypeDailyExpiryCount       StatisticType = "daily_expiry_count"
	StatisticTypeTotalActiveCount       StatisticType = "total_active_count"
)

// reasonsByType maps the daily counters to the audit-log change reasons they
// count. Cancellations come from two sources, the gateway and the
// stale-pending sweep. Total counters query the subscription table directly.
var reasonsByType = map[StatisticType][]types.SubscriptionChangeReason{
	StatisticTypeDailyActivationCount:   {types.SubscriptionChangeReasonSettlement},
	StatisticTypeDailyFailureCount:      {types.SubscriptionChangeReasonGatewayFailed},
	StatisticTypeDailyCancellationCount: {types.SubscriptionChangeReasonGatewayCancel, types.SubscriptionChangeReasonStaleCancel},
	StatisticTypeDailyExpiryCount:       {types.SubscriptionChangeReasonExpirySweep},
}

type SubscriptionStatisticDataItem struct {
	ID StatisticType `json:"id"`
}

type SubscriptionStatisticRequest struct {
	Filters   []*types.ListFilter              `json:"filters"`
	DataItems []*SubscriptionStatisticDataItem `json:"data_items"`
}

func (f *SubscriptionStatisticRequest) Build(builder clause.Builder) {
	if f == nil || len(f.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	for i, filter := range f.Filters {
		if i > 0 {
			builder.WriteString(" AND ")
		}
		filter.Build(builder)
	}
}

type SubscriptionStatisticResponseDataItem struct {
	Date  string `json:"date,omitempty"`
	Value int64  `json:"value"`
}

type SubscriptionStatisticResponse struct {
	DataItems map[StatisticType][]SubscriptionStatisticResponseDataItem `json:"data_items"`
}

type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

// GetSubscriptionStatistics resolves the requested data items in parallel.
// Unknown item ids fail the whole request rather than returning a partial
// response the dashboard would silently misplot.
func (s *Service) GetSubscriptionStatistics(ctx context.Context, request *SubscriptionStatisticRequest) (*SubscriptionStatisticResponse, error) {
	if request == nil || len(request.DataItems) == 0 {
		return &SubscriptionStatisticResponse{DataItems: map[StatisticType][]SubscriptionStatisticResponseDataItem{}}, nil
	}

	resp := &SubscriptionStatisticResponse{
		DataItems: make(map[StatisticType][]SubscriptionStatisticResponseDataItem, len(request.DataItems)),
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, item := range request.DataItems {
		wg.Add(1)
		go func(statisticType StatisticType) {
			defer wg.Done()
			items, err := s.resolve(ctx, statisticType, request)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			resp.DataItems[statisticType] = items
		}(item.ID)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return resp, nil
}

func (s *Service) resolve(ctx context.Context, statisticType StatisticType, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	if reasons, ok := reasonsByType[statisticType]; ok {
		return s.getDailyChangeCount(ctx, reasons, request)
	}
	switch statisticType {
	case StatisticTypeTotalActiveCount:
		return s.getTotalActiveCount(ctx)
	}
	return nil, fmt.Errorf("unknown statistic type: %s", statisticType)
}

func (s *Service) getDailyChangeCount(ctx context.Context, reasons []types.SubscriptionChangeReason, request *SubscriptionStatisticRequest) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.SubscriptionLog{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, count(*) as value").
		Where("reason IN ?", reasons).
		Where(clause.Where{Exprs: []clause.Expression{request}}).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalActiveCount(ctx context.Context) ([]SubscriptionStatisticResponseDataItem, error) {
	var results []SubscriptionStatisticResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("count(*) as value").
		Where("status = ?", types.SubscriptionStatusActive).
		Where("ends_at >= ?", time.Now())
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
