// Package webhook is the inbound HTTP boundary: it decodes provider
// payloads into (phone number, text), hands them to the conversation engine,
// and passes the resulting descriptor to a Messenger for delivery.
//
// The webhook knows nothing about conversation semantics, and the engine
// knows nothing about HTTP or delivery mechanics.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stagehand-bot/stagehand/internal/engine"
)

// Messenger delivers a response descriptor back to the user. Delivery
// failure is the messenger's problem; it never feeds back into conversation
// state.
type Messenger interface {
	SendTemplate(ctx context.Context, to string, resp engine.Response) error
}

// LogMessenger is the built-in Messenger: it logs what would be sent.
// Useful for development and as the default until a provider client is
// wired in.
type LogMessenger struct {
	Log *slog.Logger
}

func (m *LogMessenger) SendTemplate(_ context.Context, to string, resp engine.Response) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("outbound message", "to", to, "template", resp.Template)
	return nil
}

// Handler serves the provider webhook.
type Handler struct {
	engine    *engine.Engine
	messenger Messenger
	log       *slog.Logger
}

// NewHandler creates a webhook handler. A nil messenger falls back to
// LogMessenger.
func NewHandler(e *engine.Engine, m Messenger, log *slog.Logger) *Handler {
	if m == nil {
		m = &LogMessenger{Log: log}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: e, messenger: m, log: log}
}

// Register mounts the webhook routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /whatsapp", h.handleInbound)
}

// handleInbound decodes a Twilio-style form payload: From carries the phone
// number, Body the message text.
func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form payload", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	if from == "" {
		http.Error(w, "missing From field", http.StatusBadRequest)
		return
	}

	resp, err := h.engine.HandleMessage(r.Context(), from, body)
	if err != nil {
		h.log.Error("message handling failed", "phone_number", from, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.messenger.SendTemplate(r.Context(), from, resp); err != nil {
		// The conversation already committed; delivery is best-effort
		// from the engine's point of view.
		h.log.Error("delivery failed", "phone_number", from, "template", resp.Template, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("response encoding failed", "error", err)
	}
}
