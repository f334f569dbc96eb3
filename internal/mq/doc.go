// Package mq зеркалирует ProgressEvents в RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchange и очередей
//   - publisher.go  — публикация событий прогресса
//
// Зеркалирование — best-effort: авторитетная история run живёт
// в progress.Store, недоступность брокера не влияет на выполнение.
// Внешние потребители (UI, аналитика) подписываются на exchange
// conductor.progress по ключу <project_id>.<status>.
package mq
