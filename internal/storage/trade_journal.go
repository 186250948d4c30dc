package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradsys-core/engine/internal/candle"
)

// tradeRecordsTopic is the topic downstream readers (dashboard,
// reporting) subscribe to for fill notifications.
const tradeRecordsTopic = "trade-records"

// TradeJournalRepository implements ports.TradeJournal: append-only, no
// update or delete path, matching the immutability spec §8 property P8
// relies on for the audit trail. Every successful Append also publishes
// the record on an in-process gochannel pub/sub so dashboard/reporting
// readers can react without sitting on the execution path.
type TradeJournalRepository struct {
	db        *gorm.DB
	logger    *zap.Logger
	publisher message.Publisher
}

// NewTradeJournalRepository builds a TradeJournalRepository backed by an
// in-process watermill gochannel publisher. A nats-backed publisher can
// be substituted by constructing the repository with NewTradeJournalRepositoryWithPublisher
// instead, since the default is deliberately the in-process driver.
func NewTradeJournalRepository(db *gorm.DB, logger *zap.Logger) *TradeJournalRepository {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1000, Persistent: false},
		watermill.NewStdLogger(false, false),
	)
	return NewTradeJournalRepositoryWithPublisher(db, logger, pubSub)
}

// NewTradeJournalRepositoryWithPublisher builds a TradeJournalRepository
// over a caller-supplied publisher (e.g. a watermill-nats driver).
func NewTradeJournalRepositoryWithPublisher(db *gorm.DB, logger *zap.Logger, publisher message.Publisher) *TradeJournalRepository {
	return &TradeJournalRepository{db: db, logger: logger, publisher: publisher}
}

// Subscribe hands back a channel of published TradeRecord events, only
// available when the underlying publisher also implements message.Subscriber
// (true for the default in-process gochannel driver).
func (r *TradeJournalRepository) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	sub, ok := r.publisher.(message.Subscriber)
	if !ok {
		return nil, errors.New("trade journal publisher does not support subscription")
	}
	return sub.Subscribe(ctx, tradeRecordsTopic)
}

func (r *TradeJournalRepository) Append(ctx context.Context, rec candle.TradeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m := TradeRecordModel{
		RecordID:         rec.ID,
		UserID:           rec.UserID,
		Market:           rec.Market,
		Side:             string(rec.Side),
		OccurredAt:       rec.OccurredAt,
		AmountKRW:        rec.AmountKRW,
		Volume:           rec.Volume,
		Price:            rec.Price,
		Fee:              rec.Fee,
		OrderUUID:        rec.OrderUUID,
		StrategyName:     rec.StrategyName,
		TargetPrice:      rec.TargetPrice,
		HighestSincEntry: rec.HighestSincEntry,
		HalfSold:         rec.HalfSold,
		StopLoss:         rec.StopLoss,
		ExitReason:       string(rec.ExitReason),
	}
	result := r.db.WithContext(ctx).Create(&m)
	if result.Error != nil {
		r.logger.Error("failed to append trade record", zap.String("user_id", rec.UserID), zap.String("market", rec.Market), zap.Error(result.Error))
		return result.Error
	}

	r.publish(rec)
	return nil
}

// publish best-effort notifies subscribers; a publish failure never
// fails the Append call, since the durable write already succeeded.
func (r *TradeJournalRepository) publish(rec candle.TradeRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		r.logger.Warn("failed to marshal trade record for publish", zap.String("record_id", rec.ID), zap.Error(err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := r.publisher.Publish(tradeRecordsTopic, msg); err != nil {
		r.logger.Warn("failed to publish trade record event", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

func (r *TradeJournalRepository) LastTrade(ctx context.Context, userID, market string) (candle.TradeRecord, bool, error) {
	var m TradeRecordModel
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND market = ?", userID, market).
		Order("occurred_at DESC, id DESC").
		First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return candle.TradeRecord{}, false, nil
	}
	if result.Error != nil {
		r.logger.Error("failed to look up last trade", zap.String("user_id", userID), zap.String("market", market), zap.Error(result.Error))
		return candle.TradeRecord{}, false, result.Error
	}
	return candle.TradeRecord{
		ID:               m.RecordID,
		UserID:           m.UserID,
		Market:           m.Market,
		Side:             candle.TradeSide(m.Side),
		OccurredAt:       m.OccurredAt,
		AmountKRW:        m.AmountKRW,
		Volume:           m.Volume,
		Price:            m.Price,
		Fee:              m.Fee,
		OrderUUID:        m.OrderUUID,
		StrategyName:     m.StrategyName,
		TargetPrice:      m.TargetPrice,
		HighestSincEntry: m.HighestSincEntry,
		HalfSold:         m.HalfSold,
		StopLoss:         m.StopLoss,
		ExitReason:       candle.ExitReason(m.ExitReason),
	}, true, nil
}
