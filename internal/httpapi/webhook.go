package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/whatsapp"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// Enqueuer persists verified webhook payloads for the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload []byte, messageID, waID string) (created bool, id int64, err error)
}

// WebhookHandler terminates the WhatsApp Cloud API webhook: the GET
// verification handshake and the signed POST delivery.
type WebhookHandler struct {
	appSecret   string
	verifyToken string
	queue       Enqueuer
	metrics     *metrics.Metrics
	logger      *logging.Logger
}

func NewWebhookHandler(appSecret, verifyToken string, queue Enqueuer, m *metrics.Metrics, logger *logging.Logger) *WebhookHandler {
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		appSecret:   strings.TrimSpace(appSecret),
		verifyToken: strings.TrimSpace(verifyToken),
		queue:       queue,
		metrics:     m,
		logger:      logger,
	}
}

// Verify answers Meta's subscription handshake by echoing hub.challenge.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		h.metrics.InvalidHTTPRequests.WithLabelValues("verify_token_mismatch").Inc()
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// Receive validates the payload signature and enqueues the delivery. The
// response is always fast; all real work happens in the queue workers.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.metrics.InvalidHTTPRequests.WithLabelValues("unreadable_body").Inc()
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, r.Header.Get("X-Hub-Signature-256")) {
		h.metrics.InvalidHTTPRequests.WithLabelValues("bad_signature").Inc()
		h.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	inbound, isStatus, err := whatsapp.ParseWebhook(body)
	if err != nil {
		h.metrics.InvalidHTTPRequests.WithLabelValues("unparseable_payload").Inc()
		h.logger.Warn("webhook payload unparseable", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if isStatus {
		w.WriteHeader(http.StatusOK)
		return
	}

	created, id, err := h.queue.Enqueue(r.Context(), body, inbound.MessageID, inbound.WaID)
	if err != nil {
		h.logger.Error("webhook enqueue failed", "message_id", inbound.MessageID, "error", err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	if created {
		h.metrics.QueueEnqueued.Inc()
		h.logger.Info("webhook enqueued", "queue_id", id, "wa_id", inbound.WaID)
	} else {
		h.metrics.QueueDuplicate.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) validSignature(payload []byte, header string) bool {
	if h.appSecret == "" || header == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.TrimPrefix(header, prefix)))
}
