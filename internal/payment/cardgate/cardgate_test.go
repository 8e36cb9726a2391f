package cardgate

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"api_base":       " https://api.cardgate.example/ ",
		"secret_key":     " sk_live_123 ",
		"webhook_secret": " whsec_456 ",
		"return_url":     "https://shop.example/checkout/return",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.APIBase != "https://api.cardgate.example" {
		t.Fatalf("unexpected api base: %s", cfg.APIBase)
	}
	if cfg.SecretKey != "sk_live_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestValidateConfigMissingFields(t *testing.T) {
	err := ValidateConfig(&Config{APIBase: "https://api.cardgate.example"})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestVerifyWebhook(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{WebhookSecret: "whsec_test_abc"}

	payload := map[string]interface{}{
		"id":   "evt_1",
		"type": "payment_intent.succeeded",
		"data": map[string]interface{}{
			"id":              "pi_123",
			"status":          "succeeded",
			"amount":          "49.99",
			"amount_received": "49.99",
			"currency":        "USD",
		},
	}
	body, _ := json.Marshal(payload)
	sig := Sign(cfg.WebhookSecret, now.Unix(), body)
	header := fmt.Sprintf("t=%d,v1=%s", now.Unix(), sig)

	if err := VerifyWebhook(cfg, body, header, now); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	t.Run("tampered body", func(t *testing.T) {
		tampered := append([]byte{}, body...)
		tampered[len(tampered)-2] = 'X'
		if err := VerifyWebhook(cfg, tampered, header, now); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		if err := VerifyWebhook(cfg, body, header, now.Add(10*time.Minute)); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid for stale timestamp, got %v", err)
		}
	})

	t.Run("malformed header", func(t *testing.T) {
		if err := VerifyWebhook(cfg, body, "v1=deadbeef", now); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})
}

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"id": "evt_9",
		"type": "payment_intent.payment_failed",
		"data": {
			"id": "pi_9",
			"status": "requires_payment_method",
			"amount": "12.00",
			"currency": "USD",
			"decline_code": "insufficient_funds"
		}
	}`)
	event, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("parse event failed: %v", err)
	}
	if event.IntentID != "pi_9" || event.Decline != "insufficient_funds" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := ParseEvent([]byte(`{"id":"evt_x","data":{}}`)); err == nil {
		t.Fatalf("expected error for missing intent id")
	}
}
