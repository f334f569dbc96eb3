package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/Conductor/internal/domain"
)

// Parse разбирает manifest из байтов (YAML; JSON — валидный YAML)
// и валидирует его. opts может быть nil.
func Parse(data []byte, opts *ValidateOptions) (*domain.Manifest, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	normalize(&m)

	if err := Validate(&m, opts); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile загружает и валидирует manifest из файла.
func LoadFile(path string, opts *ValidateOptions) (*domain.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	m, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	if m.Name == "" {
		base := filepath.Base(path)
		m.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return m, nil
}

// Loader разрешает manifests по имени из каталога.
//
// Каталог задаётся оператором (CONDUCTOR_MANIFEST_DIR); имя manifest —
// имя файла без расширения. Ищутся .yaml, .yml и .json.
type Loader struct {
	dir  string
	opts *ValidateOptions
}

// NewLoader создаёт Loader для каталога.
func NewLoader(dir string, opts *ValidateOptions) *Loader {
	return &Loader{dir: dir, opts: opts}
}

// Load загружает manifest по имени.
func (l *Loader) Load(name string) (*domain.Manifest, error) {
	// Защита от выхода за пределы каталога.
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(l.dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path, l.opts)
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, l.dir)
}

// List возвращает имена доступных manifests.
func (l *Loader) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read manifest dir %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		switch ext {
		case ".yaml", ".yml", ".json":
			names = append(names, strings.TrimSuffix(e.Name(), ext))
		}
	}
	return names, nil
}

// normalize приводит вложенные yaml-значения к map[string]any.
//
// yaml.v3 декодирует вложенные mappings в map[string]any для
// строковых ключей, но на всякий случай приводим и числовые ключи.
func normalize(m *domain.Manifest) {
	m.Constants = normalizeMap(m.Constants)
	for i := range m.Steps {
		m.Steps[i].Input = normalizeMap(m.Steps[i].Input)
	}
}

func normalizeMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
