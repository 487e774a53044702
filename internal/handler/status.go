package handler

import (
	"encoding/json"
	"net/http"

	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// Status summarises the local cache for operators.
type Status struct {
	TenantID  string `json:"tenant_id"`
	Pending   int    `json:"pending"`
	Conflicts int    `json:"conflicts"`
	Failed    int    `json:"failed"`
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.build)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	pending, err := h.cache.PendingCount(ctx)
	if err != nil {
		log.Err(err).Str("func", "Handler.getStatus").Msg("error counting pending entries")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	conflicts, err := h.cache.Conflicts(ctx)
	if err != nil {
		log.Err(err).Str("func", "Handler.getStatus").Msg("error listing conflicts")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	failed, err := h.cache.Failed(ctx)
	if err != nil {
		log.Err(err).Str("func", "Handler.getStatus").Msg("error listing failed mutations")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, Status{
		TenantID:  h.tenantID,
		Pending:   pending,
		Conflicts: len(conflicts),
		Failed:    len(failed),
	})
}

func (h *Handler) getConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.cache.Conflicts(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Err(err).Str("func", "Handler.getConflicts").Msg("error listing conflicts")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if conflicts == nil {
		conflicts = []models.Conflict{}
	}

	writeJSON(w, http.StatusOK, conflicts)
}

func (h *Handler) getFailed(w http.ResponseWriter, r *http.Request) {
	failed, err := h.cache.Failed(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Err(err).Str("func", "Handler.getFailed").Msg("error listing failed mutations")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if failed == nil {
		failed = []models.FailedMutation{}
	}

	writeJSON(w, http.StatusOK, failed)
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	h.sync.Signal()
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
