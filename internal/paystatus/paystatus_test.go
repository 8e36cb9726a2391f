package paystatus

import (
	"testing"

	"github.com/subpay-core/internal/constants"
)

func TestPriorityOrdering(t *testing.T) {
	ordered := []string{
		constants.PaymentStatusPending,
		constants.PaymentStatusRequiresPaymentMethod,
		constants.PaymentStatusRequiresAction,
		constants.PaymentStatusProcessing,
		constants.PaymentStatusFailed,
		constants.PaymentStatusSucceeded,
	}
	for i := 1; i < len(ordered); i++ {
		if Priority(ordered[i-1]) >= Priority(ordered[i]) {
			t.Fatalf("expected priority(%s) < priority(%s), got %d >= %d",
				ordered[i-1], ordered[i], Priority(ordered[i-1]), Priority(ordered[i]))
		}
	}
}

func TestTerminalFailuresSharePriority(t *testing.T) {
	for _, status := range []string{
		constants.PaymentStatusFailed,
		constants.PaymentStatusCanceled,
		constants.PaymentStatusExpired,
	} {
		if Priority(status) != PriorityTerminalFailure {
			t.Fatalf("expected %s priority %d, got %d", status, PriorityTerminalFailure, Priority(status))
		}
		if !IsTerminalFailure(status) {
			t.Fatalf("expected %s to be terminal failure", status)
		}
	}
	if IsTerminalFailure(constants.PaymentStatusSucceeded) {
		t.Fatalf("succeeded must not be terminal failure")
	}
	if !IsTerminal(constants.PaymentStatusSucceeded) {
		t.Fatalf("succeeded must be terminal")
	}
}

func TestNormalizeCard(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"requires_payment_method", constants.PaymentStatusRequiresPaymentMethod},
		{"requires_confirmation", constants.PaymentStatusRequiresAction},
		{"requires_action", constants.PaymentStatusRequiresAction},
		{"processing", constants.PaymentStatusProcessing},
		{"requires_capture", constants.PaymentStatusProcessing},
		{"succeeded", constants.PaymentStatusSucceeded},
		{"canceled", constants.PaymentStatusCanceled},
		{"FAILED", constants.PaymentStatusFailed},
		{"something_new", constants.PaymentStatusPending},
		{"", constants.PaymentStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got := Normalize(constants.PaymentProviderCard, tc.raw)
			if got != tc.want {
				t.Fatalf("normalize card %q = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeCrypto(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"waiting", constants.PaymentStatusPending},
		{"confirming", constants.PaymentStatusProcessing},
		{"confirmed", constants.PaymentStatusProcessing},
		{"partially_paid", constants.PaymentStatusProcessing},
		{"finished", constants.PaymentStatusSucceeded},
		{"expired", constants.PaymentStatusExpired},
		{"refunded", constants.PaymentStatusFailed},
		{"mystery_state", constants.PaymentStatusProcessing},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got := Normalize(constants.PaymentProviderCrypto, tc.raw)
			if got != tc.want {
				t.Fatalf("normalize crypto %q = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	// 任意 provider/raw 组合都必须产出合法统一状态
	providers := []string{constants.PaymentProviderCard, constants.PaymentProviderCrypto, "unknown", ""}
	raws := []string{"", "garbage", "succeeded", "WAITING", "  processing  "}
	for _, p := range providers {
		for _, r := range raws {
			if got := Normalize(p, r); !IsValid(got) {
				t.Fatalf("normalize(%q, %q) produced invalid status %q", p, r, got)
			}
		}
	}
}
