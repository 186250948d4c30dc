package storage

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// NewNATSPublisher builds a watermill-nats publisher for TradeJournal
// events, for deployments that want the trade feed on a shared NATS bus
// instead of the default in-process gochannel. Swap it in via
// NewTradeJournalRepositoryWithPublisher.
func NewNATSPublisher(url string, logger *zap.Logger) (message.Publisher, error) {
	watermillLogger := watermill.NewStdLogger(false, false)
	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       url,
		Marshaler: nats.GobMarshaler{},
	}, watermillLogger)
	if err != nil {
		logger.Error("failed to build nats publisher", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	return publisher, nil
}
