package agents

import (
	"os"
	"strings"
)

// Agent — статическое описание одного внешнего агента.
type Agent struct {
	// Name — логическое имя, на которое ссылаются шаги manifest.
	Name string

	// DefaultEndpoint — адрес по умолчанию. Переопределяется
	// переменной CONDUCTOR_AGENT_<NAME>_URL или полем endpoint шага.
	DefaultEndpoint string

	// Critical — класс критичности. Провал критичного агента после
	// всех попыток фатален для run; некритичный замещается fallback.
	Critical bool

	// Fallback — синтетический placeholder-результат для некритичных
	// агентов. Nil для критичных.
	Fallback map[string]any
}

// Registry — реестр агентов: имя → endpoint, критичность, fallback.
//
// Классификация статическая и не настраивается во время run.
// При добавлении нового агента класс критичности подлежит ревью:
// критичны стадии, производящие первичный артефакт.
type Registry struct {
	agents map[string]Agent
}

// Default возвращает реестр агентов производственного конвейера.
func Default() *Registry {
	r := &Registry{agents: make(map[string]Agent)}

	for _, a := range []Agent{
		{
			Name:            "media-curator",
			DefaultEndpoint: "http://localhost:9001/curate",
			Critical:        false,
			Fallback: map[string]any{
				"fallback": true,
				"items":    []any{},
				"note":     "media curation unavailable, continuing without curated assets",
			},
		},
		{
			Name:            "script-writer",
			DefaultEndpoint: "http://localhost:9002/draft",
			Critical:        true,
		},
		{
			Name:            "narrator",
			DefaultEndpoint: "http://localhost:9003/synthesize",
			Critical:        true,
		},
		{
			Name:            "composer",
			DefaultEndpoint: "http://localhost:9004/compose",
			Critical:        false,
			Fallback: map[string]any{
				"fallback":  true,
				"track_url": "",
				"note":      "music generation unavailable, video will be assembled without a soundtrack",
			},
		},
		{
			Name:            "assembler",
			DefaultEndpoint: "http://localhost:9005/assemble",
			Critical:        true,
		},
		{
			Name:            "attributor",
			DefaultEndpoint: "http://localhost:9006/attribute",
			Critical:        false,
			Fallback: map[string]any{
				"fallback": true,
				"credits":  []any{},
				"note":     "attribution unavailable, credits omitted",
			},
		},
		{
			Name:            "publisher",
			DefaultEndpoint: "http://localhost:9007/publish",
			Critical:        true,
		},
	} {
		r.agents[a.Name] = a
	}

	return r
}

// Lookup возвращает агента по имени.
func (r *Registry) Lookup(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Known возвращает true, если агент зарегистрирован.
func (r *Registry) Known(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Endpoint возвращает действующий адрес агента:
// env-override CONDUCTOR_AGENT_<NAME>_URL, иначе default.
func (r *Registry) Endpoint(name string) (string, bool) {
	a, ok := r.Lookup(name)
	if !ok {
		return "", false
	}
	if v := os.Getenv(envKey(name)); v != "" {
		return v, true
	}
	return a.DefaultEndpoint, true
}

// IsCritical возвращает класс критичности агента.
// Неизвестные агенты считаются критичными: провал стадии, о которой
// система ничего не знает, нельзя молча замещать.
func (r *Registry) IsCritical(name string) bool {
	a, ok := r.Lookup(name)
	if !ok {
		return true
	}
	return a.Critical
}

// Fallback возвращает синтетический результат для некритичного агента.
func (r *Registry) Fallback(name string) map[string]any {
	a, ok := r.Lookup(name)
	if !ok || a.Fallback == nil {
		return map[string]any{"fallback": true}
	}
	// Копия: результат попадает в контекст run и не должен
	// делить память с реестром.
	out := make(map[string]any, len(a.Fallback))
	for k, v := range a.Fallback {
		out[k] = v
	}
	return out
}

// Names возвращает имена зарегистрированных агентов.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Register добавляет или заменяет агента. Используется в тестах.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name] = a
}

// envKey строит имя env-переменной override:
// media-curator → CONDUCTOR_AGENT_MEDIA_CURATOR_URL.
func envKey(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return "CONDUCTOR_AGENT_" + upper + "_URL"
}
