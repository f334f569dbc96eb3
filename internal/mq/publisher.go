package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conductor/internal/domain"
)

// Publisher публикует события прогресса в RabbitMQ.
//
// Реализует progress.Mirror. Ошибка публикации возвращается вызывающей
// стороне, которая логирует её и продолжает run: брокер — зеркало,
// не источник истины.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// PublishProgress публикует одно событие прогресса.
//
// Ключ маршрутизации — <project_id>.<status>; тело — JSON события
// целиком, включая seq, по которому потребители восстанавливают
// порядок при необходимости.
func (p *Publisher) PublishProgress(ctx context.Context, e *domain.ProgressEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	routingKey := fmt.Sprintf("%s.%s", e.ProjectID, e.Status)

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeProgress),
			routingKey,
			false,
			false,
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent,
				MessageId:     e.ID.String(),
				CorrelationId: e.CorrelationID.String(),
				Timestamp:     e.Timestamp,
				Body:          body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", ExchangeProgress, routingKey, err)
		}

		p.logger.Debug("mirrored progress event",
			"routing_key", routingKey,
			"correlation_id", e.CorrelationID,
			"seq", e.Seq,
		)

		return nil
	})
}
