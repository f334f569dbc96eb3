// Package resolve разрешает переменные вида ${scope.path}
// во входных данных шагов и адресах endpoints.
//
// Поддерживаются четыре области видимости, проверяемые по порядку:
//   - ${env.NAME} — переменные окружения процесса
//   - ${project.field} — метаданные проекта/run
//   - ${steps.name.output.path} — выходы предыдущих шагов
//   - ${manifest.field} / ${run.start_time} / ${run.correlation_id} —
//     константы manifest и факты уровня run
//
// Неразрешимая ссылка — не ошибка: токен остаётся в строке как есть,
// чтобы manifest мог встраивать literal-значения по умолчанию.
// Разрешение не имеет побочных эффектов и детерминировано для
// неизменного контекста, поэтому политика retry безопасно
// перезапускает его перед каждой попыткой.
package resolve
