// Package runner реализует оркестратор выполнения run.
//
// Runner ведёт машину состояний run (started → running → completed|failed),
// выполняет шаги manifest строго последовательно и является единственным
// писателем StepResults. Параллельное выполнение шагов внутри run
// исключено: input шага может ссылаться на output любого предыдущего
// шага, а формат manifest не выражает явный граф зависимостей.
//
// Разные runs (разные correlation ID) выполняются параллельно без
// координации: состояние каждого run изолировано его идентификатором.
package runner
