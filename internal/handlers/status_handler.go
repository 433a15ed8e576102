package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/services/whatsapp"
)

// WhatsAppHandler exposes the browser session state tracked by the
// chromedp driver.
type WhatsAppHandler struct {
	session *whatsapp.Session
	logger  arbor.ILogger
}

func NewWhatsAppHandler(session *whatsapp.Session) *WhatsAppHandler {
	return &WhatsAppHandler{
		session: session,
		logger:  common.GetLogger(),
	}
}

// StatusHandler handles GET /api/whatsapp/status.
func (h *WhatsAppHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.session.Status())
}

// QRHandler handles GET /api/whatsapp/qr. Returns the pending login QR
// as a base64 PNG, or 404 when no scan is pending.
func (h *WhatsAppHandler) QRHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	qr, ok := h.session.QR()
	if !ok {
		WriteError(w, http.StatusNotFound, "No QR code pending")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"qr":       qr,
		"encoding": "base64",
		"format":   "png",
	})
}
