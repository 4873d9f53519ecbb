package auth

// GateSubscription blocks requests from organizations that are not entitled.
// Only active and trial tenants pass; trial expiry is a billing-side concern
// that transitions the status externally. A nil context fails closed.
func GateSubscription(rc *RequestContext) error {
	if rc == nil {
		return ErrSubscriptionRequired
	}
	if !rc.Organization.SubscriptionStatus.Entitled() {
		return ErrSubscriptionRequired
	}
	return nil
}
