// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (runner, recorder, loader, репозитории)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - run_handler.go       — запуск, просмотр и отмена runs
//   - progress_handler.go  — история событий, снимок состояния, SSE-поток
//   - manifest_handler.go  — просмотр и валидация manifests
//   - schedule_handler.go  — обработчики для /schedules
//
// API предоставляет REST endpoints для управления runs, manifests
// и schedules.
package api
