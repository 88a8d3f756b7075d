// Package notification publishes settlement run events.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payout/internal/clock"
	"github.com/smallbiznis/payout/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const Channel = "payout.events"

const (
	EventSettlementCompleted = "settlement.completed"
	EventSettlementFailed    = "settlement.failed"
	EventEligibilityReport   = "settlement.eligibility_report"
	EventPaymentSettled      = "settlement.payment_settled"
)

// Event is the JSON envelope published for subscribers.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    any               `json:"payload"`
}

type Notifier interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
	Clock  clock.Clock
}

// New publishes on redis when a client exists and only logs otherwise.
func New(p Params) Notifier {
	log := p.Log.Named("notification")
	if p.Client == nil {
		return &logNotifier{log: log, clock: p.Clock}
	}
	return &redisNotifier{client: p.Client, log: log, clock: p.Clock}
}

func newEvent(ctx context.Context, now time.Time, eventType string, payload any) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		OccurredAt: now,
		Metadata:   correlation.Metadata(ctx),
		Payload:    payload,
	}
}

type redisNotifier struct {
	client *redis.Client
	log    *zap.Logger
	clock  clock.Clock
}

func (n *redisNotifier) Notify(ctx context.Context, eventType string, payload any) error {
	evt := newEvent(ctx, n.clock.Now(), eventType, payload)
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, Channel, body).Err(); err != nil {
		return err
	}
	n.log.Debug("event published", zap.String("event_id", evt.ID), zap.String("type", eventType))
	return nil
}

type logNotifier struct {
	log   *zap.Logger
	clock clock.Clock
}

func (n *logNotifier) Notify(ctx context.Context, eventType string, payload any) error {
	evt := newEvent(ctx, n.clock.Now(), eventType, payload)
	n.log.Info("event",
		zap.String("event_id", evt.ID),
		zap.String("type", eventType),
		zap.Any("payload", payload),
	)
	return nil
}
