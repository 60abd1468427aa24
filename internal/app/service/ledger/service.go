// Package ledger is the durable, append-only record of every inbound gateway
// notification. Its unique event-id constraint is the concurrency guard for
// the whole pipeline: of two simultaneous deliveries of the same event,
// exactly one insert wins and only that caller proceeds to business logic.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bukukita/billing/internal/models"
	"github.com/bukukita/billing/pkg/logctx"
	"github.com/bukukita/billing/pkg/tool"
	"github.com/bukukita/billing/pkg/types"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// RecordOrDetect inserts a ledger row for the event or detects that one
// already exists. The insert uses ON CONFLICT DO NOTHING on the unique
// event_id column, so the check-and-insert is atomic under concurrent
// duplicate deliveries: the loser of the race gets isNew=false and must
// treat the event as already handled.
func (s *Service) RecordOrDetect(ctx context.Context, eventID, orderID string, provider types.PaymentProvider, raw []byte, traceID string) (bool, *models.NotificationRecord, error) {
	rec := &models.NotificationRecord{
		ID:         tool.GenerateUUIDV7(),
		EventID:    eventID,
		Provider:   provider,
		OrderID:    orderID,
		TraceID:    traceID,
		RawPayload: datatypes.JSON(raw),
		ReceivedAt: time.Now(),
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, nil, fmt.Errorf("failed to record notification: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return true, rec, nil
	}

	var existing models.NotificationRecord
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&existing).Error; err != nil {
		return false, nil, fmt.Errorf("failed to load existing notification: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("duplicate notification detected",
		"event_id", eventID, "order_id", orderID, "processed", existing.Processed())
	return false, &existing, nil
}

// MarkProcessed stamps the record as handled. Called outside the state
// transaction only for paths that never mutate a subscription.
func (s *Service) MarkProcessed(ctx context.Context, eventID string) error {
	return s.MarkProcessedIn(s.db.WithContext(ctx), eventID)
}

// MarkProcessedIn is the transactional variant: the orchestrator commits the
// subscription delta and the processed mark in one transaction through it.
func (s *Service) MarkProcessedIn(tx *gorm.DB, eventID string) error {
	res := tx.Model(&models.NotificationRecord{}).
		Where("event_id = ? AND processed_at IS NULL", eventID).
		Update("processed_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification processed: %w", res.Error)
	}
	return nil
}

// MarkAnomaly acknowledges an event that will never be applied (unknown
// order, illegal transition). The row stays queryable as a dead-letter trail.
func (s *Service) MarkAnomaly(ctx context.Context, eventID, note string) error {
	res := s.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"processed_at": time.Now(),
			"anomaly_note": note,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification anomaly: %w", res.Error)
	}
	return nil
}

// MarkFailed records terminal failure after the dispatch shell exhausts its
// retry budget. The raw payload stays in place for manual replay.
func (s *Service) MarkFailed(ctx context.Context, eventID string, lastErr error) error {
	res := s.db.WithContext(ctx).Model(&models.NotificationRecord{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"failed":     true,
			"last_error": lo.ToPtr(lastErr.Error()),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification failed: %w", res.Error)
	}
	return nil
}

// Get loads one record by event id.
func (s *Service) Get(ctx context.Context, eventID string) (*models.NotificationRecord, error) {
	var rec models.NotificationRecord
	if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

type ScanRequest struct {
	Filters   []*types.ListFilter `json:"filters"`
	From      int                 `json:"from"`
	Size      int                 `json:"size"`
	SortBy    string              `json:"sort_by"`
	SortOrder string              `json:"sort_order"`
}

type ScanResponse struct {
	Items []*models.NotificationRecord `json:"items"`
	Total int64                        `json:"total"`
}

type filtersAnd struct{ filters []*types.ListFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan implements the paginated admin listing over the ledger, including the
// anomaly and terminally-failed rows operators reconcile by hand.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.NotificationRecord{})
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var rows []*models.NotificationRecord
	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "received_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return &ScanResponse{Items: rows, Total: total}, nil
}
