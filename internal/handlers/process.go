package handlers

import (
	"net/http"
)

// Process runs one batch over the input directory and returns its result
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	if !h.processing.TryLock() {
		http.Error(w, "Processing already in progress", http.StatusConflict)
		return
	}
	defer h.processing.Unlock()

	result, err := h.processor.ProcessAll(r.Context())
	if err != nil && result == nil {
		h.logger.Errorw("batch failed", "error", err)
		http.Error(w, "Failed to process messages", http.StatusInternalServerError)
		return
	}
	if err != nil {
		// Client went away; the partial result is all there is
		h.logger.Warnw("batch interrupted", "error", err, "processed", result.Processed)
	}

	h.writeJSON(w, http.StatusOK, result)
}
