package cryptogate

import (
	"errors"
	"testing"
)

func TestParseAndValidateConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{
		"api_base":   " https://api.cryptogate.example/ ",
		"api_key":    " key_123 ",
		"ipn_secret": " ipn_456 ",
	})
	if err != nil {
		t.Fatalf("parse config failed: %v", err)
	}
	if cfg.APIBase != "https://api.cryptogate.example" {
		t.Fatalf("unexpected api base: %s", cfg.APIBase)
	}
	if cfg.PayCurrency != "usdttrc20" {
		t.Fatalf("expected default pay currency, got %s", cfg.PayCurrency)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
}

func TestIsCurrencySupported(t *testing.T) {
	if !IsCurrencySupported(" USDTTRC20 ") {
		t.Fatalf("usdttrc20 should be supported")
	}
	if IsCurrencySupported("doge") {
		t.Fatalf("doge should not be supported")
	}
}

func TestVerifyIPN(t *testing.T) {
	cfg := &Config{IPNSecret: "ipn_test_secret"}
	body := []byte(`{"invoice_id":"inv_1","order_id":"SP20260801123","payment_status":"finished","price_amount":"49.99","price_currency":"usd","actually_paid":"49.12","pay_currency":"usdttrc20"}`)

	sig, err := SignIPN(cfg.IPNSecret, body)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if err := VerifyIPN(cfg, body, sig); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	// 键顺序不同的等价 JSON 产生相同签名
	reordered := []byte(`{"payment_status":"finished","invoice_id":"inv_1","pay_currency":"usdttrc20","order_id":"SP20260801123","actually_paid":"49.12","price_currency":"usd","price_amount":"49.99"}`)
	if err := VerifyIPN(cfg, reordered, sig); err != nil {
		t.Fatalf("verify reordered failed: %v", err)
	}

	t.Run("tampered amount", func(t *testing.T) {
		tampered := []byte(`{"invoice_id":"inv_1","order_id":"SP20260801123","payment_status":"finished","price_amount":"49.99","price_currency":"usd","actually_paid":"0.01","pay_currency":"usdttrc20"}`)
		if err := VerifyIPN(cfg, tampered, sig); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("empty signature", func(t *testing.T) {
		if err := VerifyIPN(cfg, body, ""); !errors.Is(err, ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})
}

func TestParseIPN(t *testing.T) {
	body := []byte(`{"invoice_id":"inv_7","order_id":"SP1","payment_status":"partially_paid","actually_paid":"30.00"}`)
	data, err := ParseIPN(body)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if data.InvoiceID != "inv_7" || data.Status != "partially_paid" {
		t.Fatalf("unexpected data: %+v", data)
	}

	if _, err := ParseIPN([]byte(`{"payment_status":"finished"}`)); err == nil {
		t.Fatalf("expected error for missing invoice id")
	}
}
