package domain

// Manifest — декларативное описание одного производственного конвейера.
//
// Manifest пишется оператором (YAML или JSON), загружается один раз
// при старте run и никогда не мутируется. Порядок шагов — единственный
// механизм зависимостей: шаг может ссылаться только на выходы
// предыдущих шагов.
type Manifest struct {
	// Version — версия формата manifest (для обратной совместимости).
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Name — имя конвейера (например, "weekly-digest").
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Project — project ID по умолчанию, если вызывающая сторона
	// не передала свой.
	Project string `yaml:"project,omitempty" json:"project,omitempty"`

	// Constants — константы уровня manifest.
	// Доступны в шагах через ${manifest.<field>}.
	Constants map[string]any `yaml:"constants,omitempty" json:"constants,omitempty"`

	// Steps — упорядоченный список шагов.
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step — одна единица работы внутри manifest.
//
// Каждый шаг делегируется удалённому агенту (opaque HTTP endpoint).
type Step struct {
	// Name — уникальное имя шага в рамках manifest.
	// Используется в ссылках ${steps.<name>.output...}.
	Name string `yaml:"name" json:"name"`

	// Agent — логическое имя агента (например, "script-writer").
	// По нему определяются endpoint по умолчанию и класс критичности.
	Agent string `yaml:"agent" json:"agent"`

	// Endpoint — явный override адреса агента.
	// Может содержать переменные (${env.NARRATOR_URL}).
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`

	// Input — входные данные шага. Строковые листья могут содержать
	// переменные ${scope.path}, разрешаемые перед каждой попыткой.
	Input map[string]any `yaml:"input,omitempty" json:"input,omitempty"`

	// Output — объявленный путь публикации результата.
	// Доступен следующим шагам через ${steps.<name>.outputPath}.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// StepByName возвращает шаг по имени.
func (m *Manifest) StepByName(name string) (*Step, bool) {
	for i := range m.Steps {
		if m.Steps[i].Name == name {
			return &m.Steps[i], true
		}
	}
	return nil, false
}
