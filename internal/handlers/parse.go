package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/felo/eml-metadata/internal/parser"
)

// Parse extracts the metadata of the raw message sent as the request body.
// Nothing is written to the metadata log.
func (h *Handlers) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Message too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Failed to read message", http.StatusBadRequest)
		return
	}

	rec, err := h.parser.ParseMessage(raw)
	if err != nil {
		if errors.Is(err, parser.ErrMalformedMessage) {
			h.logger.Warnw("rejected malformed message", "error", err, "bytes", len(raw))
			http.Error(w, "Malformed message", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Errorw("failed to parse message", "error", err)
		http.Error(w, "Failed to parse message", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}
