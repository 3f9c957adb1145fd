package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	stan "github.com/nats-io/stan.go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// StanConfig holds NATS Streaming connection settings.
type StanConfig struct {
	ClusterID string
	ClientID  string
	URL       string
	Subject   string
	Durable   string
}

// StanSubscriber feeds NATS Streaming messages to a Dispatcher.
type StanSubscriber struct {
	cfg        StanConfig
	dispatcher *Dispatcher
	logger     *otelzap.Logger
}

// NewStanSubscriber creates a subscriber.
func NewStanSubscriber(cfg StanConfig, dispatcher *Dispatcher, logger *otelzap.Logger) *StanSubscriber {
	return &StanSubscriber{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Subscribe connects and starts a durable queue subscription. The connection
// is closed when ctx is done. Messages are acked only after they were
// handled or found malformed, so failed invalidations are redelivered.
func (s *StanSubscriber) Subscribe(ctx context.Context) error {
	clientID := s.cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("shqrates-%d", time.Now().UnixNano())
	}
	sc, err := stan.Connect(s.cfg.ClusterID, clientID, stan.NatsURL(s.cfg.URL))
	if err != nil {
		return fmt.Errorf("connecting to nats streaming: %w", err)
	}
	go func() {
		<-ctx.Done()
		sc.Close()
	}()

	_, err = sc.QueueSubscribe(s.cfg.Subject, "shqrates-invalidators", func(m *stan.Msg) {
		if !s.process(m.Data) {
			return
		}
		if err := m.Ack(); err != nil {
			s.logger.Warn("Event ack failed", zap.Error(err))
		}
	}, stan.DurableName(s.cfg.Durable), stan.SetManualAckMode(), stan.AckWait(10*time.Second), stan.DeliverAllAvailable())
	if err != nil {
		sc.Close()
		return fmt.Errorf("subscribing to %s: %w", s.cfg.Subject, err)
	}

	s.logger.Info("Subscribed to cart events",
		zap.String("subject", s.cfg.Subject),
		zap.String("durable", s.cfg.Durable),
	)
	return nil
}

// process handles one message and reports whether it should be acked.
func (s *StanSubscriber) process(data []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.dispatcher.DispatchJSON(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedEvent):
		s.logger.Ctx(ctx).Warn("Dropping malformed event", zap.Error(err))
		return true
	default:
		s.logger.Ctx(ctx).Error("Event handling failed, awaiting redelivery", zap.Error(err))
		return false
	}
}
