package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/Johanhagos/mijn-api/internal/payment/domain"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newAdapter(t *testing.T, secret string) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Secret: secret,
		Now:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"charge.succeeded","data":{"object":{}}}`)
	adapter := newAdapter(t, secret)

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildSignatureHeader(secret, payload, fixedNow.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildSignatureHeader("wrong", payload, fixedNow.Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	tampered := []byte(`{"id":"evt_123","type":"charge.succeeded","data":{"object":{"amount":1}}}`)
	reqHeader.Set("Stripe-Signature", buildSignatureHeader(secret, payload, fixedNow.Unix()))
	if err := adapter.Verify(context.Background(), tampered, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected tampered body to fail, got %v", err)
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	adapter := newAdapter(t, secret)

	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", buildSignatureHeader(secret, payload, fixedNow.Add(-6*time.Minute).Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to fail, got %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildSignatureHeader(secret, payload, fixedNow.Add(-4*time.Minute).Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected signature inside tolerance, got %v", err)
	}
}

func TestVerifyMissingHeaderOrSecret(t *testing.T) {
	payload := []byte(`{}`)
	if err := newAdapter(t, "whsec").Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing header to fail, got %v", err)
	}
	if err := newAdapter(t, "").Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected missing secret to fail, got %v", err)
	}
}

func TestParseConfirmedEvents(t *testing.T) {
	created := fixedNow.Unix()

	tests := []struct {
		name      string
		event     any
		sessionID string
		ref       string
		amount    string
		currency  string
	}{{
		name: "payment_intent.succeeded",
		event: map[string]any{
			"id":      "evt_pi",
			"type":    "payment_intent.succeeded",
			"created": created,
			"data": map[string]any{
				"object": map[string]any{
					"id":              "pi_1",
					"amount":          9999,
					"amount_received": 9999,
					"currency":        "eur",
					"metadata":        map[string]any{"session_id": "cs_abc"},
				},
			},
		},
		sessionID: "cs_abc",
		ref:       "pi_1",
		amount:    "99.99",
		currency:  "EUR",
	}, {
		name: "charge.succeeded",
		event: map[string]any{
			"id":   "evt_ch",
			"type": "charge.succeeded",
			"data": map[string]any{
				"object": map[string]any{
					"id":       "ch_1",
					"amount":   1500,
					"currency": "jpy",
					"metadata": map[string]any{"session_id": "cs_jp"},
				},
			},
		},
		sessionID: "cs_jp",
		ref:       "ch_1",
		amount:    "1500",
		currency:  "JPY",
	}, {
		name: "checkout.session.completed via client reference",
		event: map[string]any{
			"id":   "evt_cs",
			"type": "checkout.session.completed",
			"data": map[string]any{
				"object": map[string]any{
					"id":                  "sess_1",
					"amount_total":        12100,
					"currency":            "eur",
					"payment_status":      "paid",
					"payment_intent":      "pi_9",
					"client_reference_id": "cs_ref",
				},
			},
		},
		sessionID: "cs_ref",
		ref:       "pi_9",
		amount:    "121",
		currency:  "EUR",
	}}

	adapter := newAdapter(t, "whsec")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := json.Marshal(tc.event)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Provider != "card" {
				t.Fatalf("expected provider card, got %s", event.Provider)
			}
			if event.SessionID != tc.sessionID {
				t.Fatalf("expected session %s, got %s", tc.sessionID, event.SessionID)
			}
			if event.ProviderRef != tc.ref {
				t.Fatalf("expected ref %s, got %s", tc.ref, event.ProviderRef)
			}
			if !event.Amount.Equal(decimal.RequireFromString(tc.amount)) {
				t.Fatalf("expected amount %s, got %s", tc.amount, event.Amount)
			}
			if event.Currency != tc.currency {
				t.Fatalf("expected currency %s, got %s", tc.currency, event.Currency)
			}
			if len(event.Raw) == 0 {
				t.Fatalf("expected raw payload to be kept")
			}
		})
	}
}

func TestParseIgnoredAndRejected(t *testing.T) {
	adapter := newAdapter(t, "whsec")

	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"unknown type", `{"id":"evt_1","type":"customer.created","data":{"object":{}}}`, paymentdomain.ErrEventIgnored},
		{"refund is not a confirmation", `{"id":"evt_1","type":"charge.refunded","data":{"object":{}}}`, paymentdomain.ErrEventIgnored},
		{"unpaid checkout", `{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"payment_status":"unpaid","client_reference_id":"cs_1","amount_total":100}}}`, paymentdomain.ErrEventIgnored},
		{"missing session", `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":100,"currency":"eur"}}}`, paymentdomain.ErrMissingSessionID},
		{"unknown type without id", `{"type":"customer.created"}`, paymentdomain.ErrEventIgnored},
		{"missing event id", `{"type":"payment_intent.succeeded"}`, paymentdomain.ErrInvalidPayload},
		{"not json", `nope`, paymentdomain.ErrInvalidPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := adapter.Parse(context.Background(), []byte(tc.payload))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func buildSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
