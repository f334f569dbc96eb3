// Package dispatch выполняет одиночные вызовы внешних агентов.
//
// Dispatcher отвечает ровно за одну попытку: POST разрешённого
// payload на разрешённый endpoint, ожидание с таймаутом и
// классификация исхода. Повторные попытки — зона ответственности
// пакета policy.
package dispatch
