// Package progress реализует durable, стримимый журнал выполнения run.
//
// Журнал append-only: каждое событие — неизменяемая запись перехода
// состояния, упорядоченная по эмиссии. «Текущее состояние» run —
// всегда чистая свёртка (Fold) последовательности событий, отдельная
// мутируемая структура не поддерживается и разъехаться с журналом
// не может.
//
// Хранилище скрыто за узким интерфейсом Store (append / list),
// поэтому бэкенд заменяем: in-memory (тесты, единичный процесс),
// JSONL-файлы, Postgres (internal/repo).
package progress
