package runner

import "errors"

// Ошибки пакета runner.
var (
	// ErrRunNotFound — run с указанным correlation ID не известен.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotActive — run уже завершён, отмена невозможна.
	ErrRunNotActive = errors.New("run is not active")

	// ErrNilManifest — попытка запустить run без manifest.
	ErrNilManifest = errors.New("manifest is nil")
)
