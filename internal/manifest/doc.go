// Package manifest загружает и валидирует manifest-документы.
//
// Manifest — единственный файловый контракт системы: операторский
// YAML (или JSON) с константами и упорядоченным списком шагов.
// Валидация выполняется при загрузке и проверяет, среди прочего,
// что ни один шаг не ссылается на выход более позднего шага —
// порядок шагов является единственным механизмом зависимостей.
package manifest
