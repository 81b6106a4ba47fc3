package handlers

import (
	"net/http"
)

// Records returns the rows of the metadata log
func (h *Handlers) Records(w http.ResponseWriter, r *http.Request) {
	rows, err := h.log.ReadAll()
	if err != nil {
		h.logger.Errorw("failed to read metadata log", "csv", h.log.Path(), "error", err)
		http.Error(w, "Failed to load records", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, rows)
}
