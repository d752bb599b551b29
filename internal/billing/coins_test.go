package billing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMaxRedeemableWalletBinds(t *testing.T) {
	policy := DefaultCoinPolicy()
	// 50% of the post-discount 1800 is 900, but only 500 coins are held.
	got := policy.MaxRedeemable(dec("500"), dec("2000"), dec("200"))
	if !got.Equal(dec("500")) {
		t.Fatalf("max redeemable = %s, want 500", got)
	}
}

func TestMaxRedeemableCapBinds(t *testing.T) {
	policy := DefaultCoinPolicy()
	got := policy.MaxRedeemable(dec("5000"), dec("2000"), dec("200"))
	if !got.Equal(dec("900")) {
		t.Fatalf("max redeemable = %s, want 900", got)
	}
}

func TestMaxRedeemableFloorsFractions(t *testing.T) {
	policy := DefaultCoinPolicy()
	got := policy.MaxRedeemable(dec("5000"), dec("101"), dec("0"))
	if !got.Equal(dec("50")) {
		t.Fatalf("max redeemable = %s, want 50", got)
	}
}

func TestMaxRedeemableNegativeAfterDiscount(t *testing.T) {
	policy := DefaultCoinPolicy()
	got := policy.MaxRedeemable(dec("300"), dec("100"), dec("400"))
	if !got.IsZero() {
		t.Fatalf("max redeemable = %s, want 0 when discount exceeds subtotal", got)
	}
}

func TestMaxRedeemableCustomPolicy(t *testing.T) {
	policy := CoinPolicy{CapRatio: decimal.NewFromFloat(0.25), CoinValue: decimal.NewFromInt(2)}
	// 25% of 2000 is 500 in currency, worth 250 two-unit coins.
	got := policy.MaxRedeemable(dec("1000"), dec("2000"), dec("0"))
	if !got.Equal(dec("250")) {
		t.Fatalf("max redeemable = %s, want 250", got)
	}
	if v := policy.CurrencyValue(dec("250")); !v.Equal(dec("500")) {
		t.Fatalf("currency value = %s, want 500", v)
	}
}

func TestValidateRedemption(t *testing.T) {
	if err := ValidateRedemption(dec("400"), dec("450"), dec("500")); err != nil {
		t.Fatalf("valid redemption rejected: %v", err)
	}
	if err := ValidateRedemption(dec("600"), dec("450"), dec("500")); !errors.Is(err, ErrInsufficientCoinBalance) {
		t.Fatalf("expected insufficient balance first, got %v", err)
	}
	if err := ValidateRedemption(dec("480"), dec("450"), dec("500")); !errors.Is(err, ErrExceedsRedemptionCap) {
		t.Fatalf("expected cap error, got %v", err)
	}
	if err := ValidateRedemption(dec("-1"), dec("450"), dec("500")); !errors.Is(err, ErrNegativeCoinAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
}
