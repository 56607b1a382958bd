package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/souqhub/souq-api/internal/model"
	"github.com/souqhub/souq-api/internal/service"
)

const (
	orderQueueName = "orders"
	dlxExchange    = "orders.dlx"
	dlqQueueName   = "orders.dlq"
	seenOrderTTL   = 24 * time.Hour
)

// ReportWorker refreshes the cached sales overview whenever a checkout
// commits. Reports stay read-only; the worker only warms the cache.
type ReportWorker struct {
	channel     *amqp.Channel
	reportSvc   *service.ReportService
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewReportWorker(ch *amqp.Channel, reportSvc *service.ReportService, redisClient *redis.Client, log *slog.Logger) *ReportWorker {
	return &ReportWorker{
		channel:     ch,
		reportSvc:   reportSvc,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, orderQueueName, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(orderQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": orderQueueName,
	}); err != nil {
		return fmt.Errorf("declare order queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *ReportWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(orderQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("report worker started")
	return nil
}

func (w *ReportWorker) Stop() { close(w.done) }

func (w *ReportWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var orderMsg model.OrderMessage
	if err := json.Unmarshal(msg.Body, &orderMsg); err != nil {
		w.log.Error("unmarshal order message", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", orderMsg.OrderID)

	// Each order should bump the overview once, even if redelivered.
	seenKey := "reports:seen:" + orderMsg.OrderID.String()
	exists, err := w.redisClient.Exists(ctx, seenKey).Result()
	if err != nil {
		log.Error("check seen key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("order already reported, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.reportSvc.WarmOverview(ctx); err != nil {
		log.Error("warm overview failed", "error", err)
		_ = msg.Nack(false, false) // -> DLQ
		return
	}

	if err := w.redisClient.Set(ctx, seenKey, "1", seenOrderTTL).Err(); err != nil {
		log.Error("set seen key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("overview refreshed")
}
