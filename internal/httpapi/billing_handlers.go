package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"voluntra.org/internal/audit"
	"voluntra.org/internal/auth"
)

const billingSignatureHeader = "X-Billing-Signature"

type billingWebhookRequest struct {
	EventID        string `json:"event_id"`
	OrganizationID string `json:"organization_id"`
	Status         string `json:"status"`
}

// processorStatuses maps the billing processor's vocabulary onto the
// canonical subscription enum.
var processorStatuses = map[string]auth.SubscriptionStatus{
	"trial":     auth.SubscriptionTrial,
	"trialing":  auth.SubscriptionTrial,
	"active":    auth.SubscriptionActive,
	"cancelled": auth.SubscriptionCancelled,
	"canceled":  auth.SubscriptionCancelled,
	"expired":   auth.SubscriptionExpired,
	"past_due":  auth.SubscriptionExpired,
	"unpaid":    auth.SubscriptionExpired,
}

// handleBillingWebhook ingests subscription-state events from the payment
// processor. This is the only writer of subscription_status; the pipeline
// only ever reads it.
func (a *API) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.billing == nil {
		writeErrors(w, r, http.StatusServiceUnavailable, ErrorDetail{
			Code:    CodeUpstreamUnavailable,
			Message: "billing updates unavailable",
		})
		return
	}
	if a.billingSecret != "" {
		sig := strings.TrimSpace(r.Header.Get(billingSignatureHeader))
		if subtle.ConstantTimeCompare([]byte(sig), []byte(a.billingSecret)) != 1 {
			writeFailure(w, r, auth.ErrUnauthenticated)
			return
		}
	}

	var req billingWebhookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	if req.OrganizationID == "" {
		badRequest(w, r, "organization_id is required")
		return
	}
	status, ok := processorStatuses[strings.TrimSpace(strings.ToLower(req.Status))]
	if !ok {
		badRequest(w, r, "unrecognized subscription status")
		return
	}

	if err := a.billing.SetSubscription(r.Context(), req.OrganizationID, status); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "billing.subscription.update", map[string]any{
		"organization_id": req.OrganizationID,
		"status":          string(status),
		"processor_event": req.EventID,
	})
	writeResult(w, r, http.StatusOK, map[string]any{
		"organization_id": req.OrganizationID,
		"status":          status,
	})
}
