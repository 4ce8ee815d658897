package payments

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const squareProvider = "square"

// SquareWebhookHandler confirms appointments on completed Square payments.
type SquareWebhookHandler struct {
	signatureKey string
	// notificationURL is the URL registered with Square; when empty the
	// request URL is rebuilt from forwarding headers.
	notificationURL string
	confirmer
}

func NewSquareWebhookHandler(signatureKey, notificationURL string, appointments Confirmer, processed ProcessedTracker, logger *logging.Logger) *SquareWebhookHandler {
	if appointments == nil {
		panic("payments: confirmer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SquareWebhookHandler{
		signatureKey:    signatureKey,
		notificationURL: notificationURL,
		confirmer:       confirmer{appointments: appointments, processed: processed, logger: logger},
	}
}

type squarePaymentEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID          string            `json:"id"`
				Status      string            `json:"status"`
				ReferenceID string            `json:"reference_id"`
				Note        string            `json:"note"`
				Metadata    map[string]string `json:"metadata"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// Handle processes POST /webhooks/square.
func (h *SquareWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	url := h.notificationURL
	if url == "" {
		url = buildAbsoluteURL(r)
	}
	if !verifySquareSignature(h.signatureKey, url, payload, r.Header.Get("X-Square-Signature")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt squarePaymentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode square event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.EventID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	payment := evt.Data.Object.Payment
	if evt.Type != "payment.updated" && evt.Type != "payment.created" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if !strings.EqualFold(payment.Status, "COMPLETED") {
		w.WriteHeader(http.StatusOK)
		return
	}

	ref := refFromMetadata(payment.Metadata)
	if !ref.valid() {
		ref = refFromReference(payment.ReferenceID)
	}
	w.WriteHeader(h.confirm(r.Context(), squareProvider, evt.EventID, ref))
}

func verifySquareSignature(key, url string, body []byte, header string) bool {
	if key == "" || header == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(url + string(body)))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
