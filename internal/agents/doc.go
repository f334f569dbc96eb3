// Package agents содержит статический реестр внешних агентов
// производственного конвейера: endpoint по умолчанию, класс
// критичности и fallback-результат для некритичных стадий.
//
// Оркестратор не знает внутренностей агентов — каждый из них
// лишь HTTP endpoint, принимающий разрешённый input шага.
package agents
