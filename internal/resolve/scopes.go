package resolve

import (
	"strings"
	"time"
)

// scope — одна область видимости: имя и функция поиска.
type scope struct {
	name   string
	lookup func(c *Context, path []string) (any, bool)
}

// scopes — упорядоченный список областей видимости.
// Добавление новой области — одна строка здесь.
var scopes = []scope{
	{"env", lookupEnv},
	{"project", lookupProject},
	{"steps", lookupSteps},
	{"manifest", lookupManifest},
	{"run", lookupRun},
}

// lookupPath разрешает полный путь токена (scope.seg1.seg2...).
func lookupPath(full string, c *Context) (any, bool) {
	segs := strings.Split(full, ".")
	for _, s := range scopes {
		if s.name == segs[0] {
			return s.lookup(c, segs[1:])
		}
	}
	return nil, false
}

// lookupEnv — ${env.NAME}.
func lookupEnv(c *Context, path []string) (any, bool) {
	if len(path) != 1 || c.Env == nil {
		return nil, false
	}
	v, ok := c.Env(path[0])
	if !ok {
		return nil, false
	}
	return v, true
}

// lookupProject — ${project.field}. Поле id имеет fallback
// на идентификатор самого run.
func lookupProject(c *Context, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	if v, ok := traverse(c.Project, path); ok {
		return v, true
	}
	if path[0] == "id" && len(path) == 1 && c.ProjectID != "" {
		return c.ProjectID, true
	}
	return nil, false
}

// lookupSteps — ${steps.name.output[.subpath]} и ${steps.name.outputPath}.
// Ссылка на ещё не выполнившийся шаг не разрешается (остаётся literal).
func lookupSteps(c *Context, path []string) (any, bool) {
	if len(path) < 2 {
		return nil, false
	}
	rec, ok := c.Steps[path[0]]
	if !ok {
		return nil, false
	}

	switch path[1] {
	case "output":
		if len(path) == 2 {
			if rec.Output == nil {
				return nil, false
			}
			return rec.Output, true
		}
		return traverse(rec.Output, path[2:])

	case "outputPath":
		if rec.OutputPath == "" {
			return nil, false
		}
		return rec.OutputPath, true

	default:
		return nil, false
	}
}

// lookupManifest — ${manifest.field}.
func lookupManifest(c *Context, path []string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	return traverse(c.Constants, path)
}

// lookupRun — ${run.start_time} и ${run.correlation_id}.
func lookupRun(c *Context, path []string) (any, bool) {
	if len(path) != 1 {
		return nil, false
	}
	switch path[0] {
	case "start_time":
		return c.StartTime.UTC().Format(time.RFC3339), true
	case "correlation_id":
		if c.CorrelationID == "" {
			return nil, false
		}
		return c.CorrelationID, true
	default:
		return nil, false
	}
}

// traverse спускается по вложенным map и спискам.
// Сегменты для списков — десятичные индексы.
func traverse(value any, path []string) (any, bool) {
	current := value
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next

		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]

		default:
			return nil, false
		}
	}
	return current, true
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
