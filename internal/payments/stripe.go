package payments

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/wolfman30/nailspa-booking/pkg/logging"
)

const stripeProvider = "stripe"

// StripeWebhookHandler confirms appointments on checkout.session.completed
// and payment_intent.succeeded.
type StripeWebhookHandler struct {
	secret string
	confirmer
}

// NewStripeWebhookHandler creates a handler verifying deliveries with
// the endpoint's signing secret. processed may be nil.
func NewStripeWebhookHandler(secret string, appointments Confirmer, processed ProcessedTracker, logger *logging.Logger) *StripeWebhookHandler {
	if appointments == nil {
		panic("payments: confirmer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		secret:    secret,
		confirmer: confirmer{appointments: appointments, processed: processed, logger: logger},
	}
}

type stripeMetadataObject struct {
	Metadata map[string]string `json:"metadata"`
}

// Handle processes POST /webhooks/stripe.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe signature verification failed", "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch evt.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypePaymentIntentSucceeded:
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	var obj stripeMetadataObject
	if evt.Data != nil {
		if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
			h.logger.Error("failed to decode stripe event object", "event_id", evt.ID, "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}

	w.WriteHeader(h.confirm(r.Context(), stripeProvider, evt.ID, refFromMetadata(obj.Metadata)))
}
