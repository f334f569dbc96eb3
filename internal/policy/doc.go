// Package policy реализует политику retry и критичности шагов.
//
// Политика решает, что происходит после провала попытки:
// повтор с линейным backoff (до фиксированной границы), а на
// исчерпании — либо фатальная ошибка run (критичный агент),
// либо замещение синтетическим fallback-результатом (некритичный).
//
// Перед каждой попыткой разрешение переменных выполняется заново:
// повтор обязан видеть актуальное состояние контекста.
package policy
