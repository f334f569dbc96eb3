package manifest

import (
	"fmt"
	"regexp"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/resolve"
)

// stepNamePattern — имена шагов участвуют в путях ${steps.<name>...},
// поэтому ограничены сегментным синтаксисом ссылок.
var stepNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// ValidateOptions — дополнительные проверки при валидации.
type ValidateOptions struct {
	// KnownAgent — проверка существования агента в реестре.
	// Nil отключает проверку (например, в автономных утилитах).
	KnownAgent func(name string) bool
}

// Validate выполняет полную валидацию manifest.
//
// Проверяет:
//   - наличие шагов
//   - уникальность и синтаксис имён шагов
//   - привязку каждого шага к известному агенту
//   - отсутствие ссылок вперёд: шаг может ссылаться через
//     ${steps.X...} только на предшествующие шаги
func Validate(m *domain.Manifest, opts *ValidateOptions) error {
	if m == nil || len(m.Steps) == 0 {
		return ErrEmptySteps
	}

	seen := make(map[string]bool, len(m.Steps))

	for i := range m.Steps {
		step := &m.Steps[i]

		if err := validateStep(step, seen, opts); err != nil {
			return err
		}

		// Ссылки проверяются до добавления текущего шага в seen,
		// поэтому self-reference тоже отлавливается.
		if err := validateReferences(step, seen); err != nil {
			return err
		}

		seen[step.Name] = true
	}

	return nil
}

// validateStep валидирует имя и агента одного шага.
func validateStep(step *domain.Step, seen map[string]bool, opts *ValidateOptions) error {
	if step.Name == "" {
		return NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
	}

	if !stepNamePattern.MatchString(step.Name) {
		return NewValidationError(step.Name, "name",
			fmt.Sprintf("invalid step name %q", step.Name), ErrInvalidStepName)
	}

	if seen[step.Name] {
		return NewValidationError(step.Name, "name",
			fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
	}

	if step.Agent == "" {
		return NewValidationError(step.Name, "agent", "step has empty agent", ErrEmptyAgent)
	}

	if opts != nil && opts.KnownAgent != nil && !opts.KnownAgent(step.Agent) {
		return NewValidationError(step.Name, "agent",
			fmt.Sprintf("unknown agent: %s", step.Agent), ErrUnknownAgent)
	}

	return nil
}

// validateReferences проверяет, что ${steps.X...} в input и endpoint
// шага указывают только на уже объявленные (более ранние) шаги.
// Ошибка здесь — авторская: лучше упасть при загрузке, чем получить
// молчаливо неразрешённый токен во время run.
func validateReferences(step *domain.Step, seen map[string]bool) error {
	refs := resolve.References(step.Input)
	refs = append(refs, resolve.References(step.Endpoint)...)

	for _, ref := range refs {
		if ref.Scope != "steps" || len(ref.Path) == 0 {
			continue
		}
		target := ref.Path[0]
		if !seen[target] {
			return NewValidationError(step.Name, "input",
				fmt.Sprintf("%s references %q which is not an earlier step", ref.Raw, target),
				ErrForwardReference)
		}
	}
	return nil
}
