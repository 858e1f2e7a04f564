package handler

import (
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/thitiwat-dev/go-shortlink/pkg/core/domain"
)

// QR serves a PNG QR code of the short URL for the stats view. Unknown
// codes 404 so the image can't be generated for dead links.
func (h *HTTPHandler) QR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	if _, err := h.service.GetByCode(r.Context(), code); err != nil {
		writeError(w, err)
		return
	}

	png, err := qrcode.Encode(h.baseURL+"/"+code, qrcode.Medium, 256)
	if err != nil {
		writeError(w, domain.E(domain.KindUnavailable, "qr encoding failed"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
