package handlers

import (
	"errors"
	"net/http"

	"github.com/ukydev/fleet-maintenance/internal/auth"
	"github.com/ukydev/fleet-maintenance/internal/middleware"
	"github.com/ukydev/fleet-maintenance/internal/receipts"
)

// UploadReceipt stores a receipt sent as the multipart field "file" and
// returns its URL for use as a service log's receipt_url.
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	if h.receipts == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Receipt uploads are disabled")
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
		return
	}

	// Leave room for the multipart envelope around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxReceiptBytes+64<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, middleware.ErrTooLarge, "Receipt too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	resp, err := h.receipts.Upload(r.Context(), p.UserID, header.Header.Get("Content-Type"), header.Size, file)
	switch {
	case errors.Is(err, receipts.ErrTooLarge):
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, middleware.ErrTooLarge, err.Error())
	case errors.Is(err, receipts.ErrUnsupportedType), errors.Is(err, receipts.ErrEmpty):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	case err != nil:
		h.writeServiceError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, resp)
	}
}
