package telegram

import (
	"encoding/json"
	"net/http"

	"renamebot/pkg/logger"
	"renamebot/pkg/telegram"
)

// UpdateReceiver decodes a webhook request and dispatches the update
type UpdateReceiver interface {
	HandleWebhookRequest(r *http.Request) error
}

// WebhookInspector reports webhook delivery status from Telegram
type WebhookInspector interface {
	GetWebhookInfo() (telegram.WebhookInfo, error)
}

// WebhookHandler handles Telegram webhook requests
type WebhookHandler struct {
	receiver  UpdateReceiver
	inspector WebhookInspector
	log       *logger.Logger
}

// NewWebhookHandler creates a new Telegram webhook handler. inspector is optional.
func NewWebhookHandler(receiver UpdateReceiver, inspector WebhookInspector, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		receiver:  receiver,
		inspector: inspector,
		log:       log.With("component", "telegram_webhook"),
	}
}

// ServeHTTP handles incoming webhook requests from Telegram
func (wh *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := wh.receiver.HandleWebhookRequest(r); err != nil {
		wh.log.Warnw("Rejected webhook update", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// updates are handled asynchronously; acknowledge so Telegram does not retry
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HealthCheck returns webhook health status
func (wh *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": "telegram_webhook",
	}

	if wh.inspector != nil {
		info, err := wh.inspector.GetWebhookInfo()
		if err != nil {
			wh.log.Warnw("Failed to get webhook info", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unknown", "error": err.Error()})
			return
		}
		body["pending_updates"] = info.PendingUpdateCount
		if info.LastErrorMessage != "" {
			body["last_error"] = info.LastErrorMessage
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
