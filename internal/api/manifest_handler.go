package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/shaiso/Conductor/internal/manifest"
)

// maxManifestBody — предел размера тела валидируемого manifest.
const maxManifestBody = 1 << 20

// ListManifests возвращает имена manifest-файлов в каталоге сервера.
// GET /api/v1/manifests
func (h *Handler) ListManifests(w http.ResponseWriter, r *http.Request) {
	names, err := h.manifests.List()
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	List(w, names, len(names))
}

// GetManifest возвращает распарсенный manifest по имени.
// GET /api/v1/manifests/{name}
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	m, err := h.manifests.Load(name)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			NotFound(w, "manifest not found")
			return
		}
		ValidationFailed(w, err.Error())
		return
	}

	Success(w, m)
}

// ValidateManifest валидирует manifest, переданный в теле запроса
// (YAML или JSON), не сохраняя его.
// POST /api/v1/manifests/validate
func (h *Handler) ValidateManifest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxManifestBody))
	if err != nil {
		BadRequest(w, "failed to read request body")
		return
	}
	if len(body) == 0 {
		BadRequest(w, "empty request body")
		return
	}

	m, err := manifest.Parse(body, h.validateOpts)
	if err != nil {
		Success(w, ValidateManifestResponse{
			Valid: false,
			Error: err.Error(),
		})
		return
	}

	Success(w, ValidateManifestResponse{
		Valid: true,
		Name:  m.Name,
		Steps: len(m.Steps),
	})
}
