package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/orris-inc/subsync/internal/domain/billing"
)

// Verifier implements billing.EventVerifier with the stripe signature scheme
type Verifier struct {
	secret string
}

// NewVerifier creates a verifier for the endpoint signing secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify checks the signature and decodes the references reconciliation needs.
// Any signature problem, including a missing secret, is ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (*billing.Event, error) {
	if strings.TrimSpace(v.secret) == "" || strings.TrimSpace(signature) == "" {
		return nil, billing.ErrInvalidSignature
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}

	out := &billing.Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: unixTime(evt.Created),
	}
	if evt.Data == nil {
		return out, nil
	}

	if err := decodeObject(out, evt.Data.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s event %s: %w", out.Type, out.ID, err)
	}
	return out, nil
}

func decodeObject(out *billing.Event, raw json.RawMessage) error {
	switch {
	case strings.HasPrefix(out.Type, "customer.subscription."):
		var s stripelib.Subscription
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		sub := toSubscription(&s)
		out.Subscription = &sub
		out.SubscriptionID = sub.ID
		out.CustomerID = sub.CustomerID

	case strings.HasPrefix(out.Type, "checkout.session."):
		var cs checkoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return err
		}
		out.SubscriptionID = string(cs.Subscription)
		out.CustomerID = string(cs.Customer)
		out.ClientReferenceID = strings.TrimSpace(cs.ClientReferenceID)
		out.CustomerEmail = firstNonBlank(cs.CustomerDetails.Email, cs.CustomerEmail)

	case strings.HasPrefix(out.Type, "invoice."):
		var inv invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return err
		}
		out.SubscriptionID = firstNonBlank(string(inv.Parent.SubscriptionDetails.Subscription), string(inv.Subscription))
		out.CustomerID = string(inv.Customer)
		out.CustomerEmail = inv.CustomerEmail

	case strings.HasPrefix(out.Type, "charge."):
		var ch charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return err
		}
		out.CustomerID = string(ch.Customer)
		out.CustomerEmail = firstNonBlank(ch.BillingDetails.Email, ch.ReceiptEmail)
	}
	return nil
}

// expandableID decodes a reference that is either an id string or an
// expanded object carrying an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type checkoutSession struct {
	ClientReferenceID string       `json:"client_reference_id"`
	Customer          expandableID `json:"customer"`
	Subscription      expandableID `json:"subscription"`
	CustomerEmail     string       `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// invoice carries the subscription at the top level on older API versions
// and under parent.subscription_details on newer ones.
type invoice struct {
	Customer      expandableID `json:"customer"`
	CustomerEmail string       `json:"customer_email"`
	Subscription  expandableID `json:"subscription"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

type charge struct {
	Customer       expandableID `json:"customer"`
	ReceiptEmail   string       `json:"receipt_email"`
	BillingDetails struct {
		Email string `json:"email"`
	} `json:"billing_details"`
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

var _ billing.EventVerifier = (*Verifier)(nil)
