package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/progress"
)

// ListRunEvents возвращает полную историю событий run в порядке эмиссии.
// GET /api/v1/runs/{id}/events
func (h *Handler) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	events, err := h.recorder.Events(r.Context(), id)
	if err != nil {
		if errors.Is(err, progress.ErrNoEvents) {
			NotFound(w, "no events for run")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	result := make([]EventResponse, len(events))
	for i, e := range events {
		result[i] = EventFromDomain(e)
	}
	List(w, result, len(result))
}

// GetRunSnapshot возвращает свёрнутое текущее состояние run.
// GET /api/v1/runs/{id}/snapshot
func (h *Handler) GetRunSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	snap, err := h.recorder.Snapshot(r.Context(), id)
	if err != nil {
		if errors.Is(err, progress.ErrNoEvents) {
			NotFound(w, "no events for run")
			return
		}
		InternalError(w, h.logger, err)
		return
	}

	Success(w, SnapshotFromFold(snap))
}

// WatchRun стримит события run через Server-Sent Events.
// GET /api/v1/runs/{id}/watch
//
// Сначала проигрывается накопленная история, затем живые события
// в порядке эмиссии. Поток закрывается на терминальном событии run
// или при отключении клиента.
func (h *Handler) WatchRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, h.logger, fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Подписка до чтения истории: событие, записанное между ними,
	// придёт в канал и отсеется по seq.
	ch, cancel := h.recorder.Watch(id)
	defer cancel()

	var lastSeq int64
	events, err := h.recorder.Events(r.Context(), id)
	if err != nil && !errors.Is(err, progress.ErrNoEvents) {
		h.logger.Error("failed to read run history", "correlation_id", id, "error", err)
		return
	}
	for _, e := range events {
		if !writeSSE(w, flusher, &e) {
			return
		}
		lastSeq = e.Seq
		if terminalEvent(&e) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-ch:
			if !open {
				return
			}
			if e.Seq <= lastSeq {
				continue
			}
			if !writeSSE(w, flusher, &e) {
				return
			}
			lastSeq = e.Seq
			if terminalEvent(&e) {
				return
			}
		}
	}
}

// writeSSE пишет одно событие в SSE-формате. false — клиент отключился.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, e *domain.ProgressEvent) bool {
	data, err := json.Marshal(EventFromDomain(*e))
	if err != nil {
		return false
	}
	if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", e.Seq, data); err != nil {
		return false
	}
	flusher.Flush()
	return true
}

// terminalEvent возвращает true для терминального события уровня run.
func terminalEvent(e *domain.ProgressEvent) bool {
	return e.IsRunLevel() && domain.RunStatus(e.Status).IsTerminal()
}
