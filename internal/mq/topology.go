package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// ExchangeProgress — topic exchange событий прогресса.
// Ключ маршрутизации: <project_id>.<status>, так что подписчик
// может слушать один проект ("myproject.*") или все терминальные
// статусы ("*.FAILED").
const ExchangeProgress Exchange = "conductor.progress"

// QueueProgressAll — очередь-подписчик на все события прогресса.
// Объявляется для удобства локальной разработки; промышленные
// потребители объявляют собственные очереди с нужными binding.
const QueueProgressAll Queue = "progress.all"

// SetupTopology объявляет exchange и очереди событий прогресса.
// Идемпотентна: повторное объявление с теми же параметрами безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.ExchangeDeclare(
			string(ExchangeProgress), // name
			"topic",                  // type
			true,                     // durable
			false,                    // auto-deleted
			false,                    // internal
			false,                    // no-wait
			nil,                      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ExchangeProgress, err)
		}

		_, err = ch.QueueDeclare(
			string(QueueProgressAll), // name
			true,                     // durable
			false,                    // delete when unused
			false,                    // exclusive
			false,                    // no-wait
			nil,                      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", QueueProgressAll, err)
		}

		err = ch.QueueBind(
			string(QueueProgressAll),
			"#", // все события
			string(ExchangeProgress),
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", QueueProgressAll, err)
		}

		return nil
	})
}
