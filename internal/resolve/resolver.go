package resolve

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern — синтаксис ссылки: ${scope.seg1.seg2...}.
// Сегменты допускают буквы, цифры, подчёркивания и дефисы
// (имена шагов и env-переменных).
var tokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_-]*(?:\.[A-Za-z0-9_-]+)*)\}`)

// Resolve возвращает структурно идентичное value, в котором каждый
// разрешимый токен ${scope.path} заменён значением из контекста.
// Неразрешимые токены остаются как есть. Исходное value не мутируется.
func Resolve(value any, c *Context) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, c)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = Resolve(val, c)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = Resolve(val, c)
		}
		return result

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			result[key] = ResolveString(val, c)
		}
		return result

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			result[i] = ResolveString(val, c)
		}
		return result

	default:
		// Числа, bool, nil — разрешать нечего.
		return value
	}
}

// ResolveString разрешает токены в строке, всегда возвращая строку.
// Для endpoint-адресов, где типизированная подстановка не нужна.
func ResolveString(s string, c *Context) string {
	resolved := resolveString(s, c)
	if str, ok := resolved.(string); ok {
		return str
	}
	return stringify(resolved)
}

// resolveString — внутреннее разрешение строкового листа.
//
// Строка, целиком состоящая из одного токена, заменяется
// типизированным значением (map, список, число). Токены внутри
// большей строки интерполируются как текст.
func resolveString(s string, c *Context) any {
	if !strings.Contains(s, "${") {
		return s
	}

	// Целая строка — один токен: сохраняем тип значения.
	if m := tokenPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if v, ok := lookupPath(m[1], c); ok {
			return v
		}
		return s
	}

	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]
		if v, ok := lookupPath(path, c); ok {
			return stringify(v)
		}
		return token
	})
}

// stringify приводит разрешённое значение к строке для интерполяции.
// Контейнеры сериализуются в JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Ref — одна ссылка ${scope.path}, найденная в значении.
type Ref struct {
	// Raw — токен целиком, как записан в manifest.
	Raw string

	// Scope — первый сегмент пути (env, project, steps, manifest, run).
	Scope string

	// Path — сегменты после scope.
	Path []string
}

// References собирает все ссылки в значении (рекурсивно).
// Используется при валидации manifest для проверки ссылок вперёд.
func References(value any) []Ref {
	var refs []Ref
	collectRefs(value, &refs)
	return refs
}

func collectRefs(value any, refs *[]Ref) {
	switch v := value.(type) {
	case string:
		for _, m := range tokenPattern.FindAllStringSubmatch(v, -1) {
			segs := strings.Split(m[1], ".")
			*refs = append(*refs, Ref{Raw: m[0], Scope: segs[0], Path: segs[1:]})
		}
	case map[string]any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case []any:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case map[string]string:
		for _, val := range v {
			collectRefs(val, refs)
		}
	case []string:
		for _, val := range v {
			collectRefs(val, refs)
		}
	}
}
