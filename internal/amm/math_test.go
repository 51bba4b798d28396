package amm

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func TestQuote(t *testing.T) {
	got, err := Quote(NewAmount(100), NewAmount(1000), NewAmount(2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Uint64() != 200 {
		t.Fatalf("quote mismatch: %s", got)
	}

	if _, err := Quote(Zero(), NewAmount(1), NewAmount(1)); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected insufficient amount, got %v", err)
	}
	if _, err := Quote(NewAmount(1), Zero(), NewAmount(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
}

func TestQuoteOverflow(t *testing.T) {
	_, err := Quote(MaxUint128, NewAmount(1), NewAmount(2))
	if !errors.Is(err, ErrCalculationOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestOptimalContributionBootstrap(t *testing.T) {
	got, err := OptimalContribution(NewAmount(10000), NewAmount(9000), NewAmount(99999), NewAmount(99999), Zero(), Zero())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AmountA.Uint64() != 10000 || got.AmountB.Uint64() != 9000 {
		t.Fatalf("bootstrap should keep desired amounts: %s %s", got.AmountA, got.AmountB)
	}
}

func TestOptimalContributionBranches(t *testing.T) {
	cases := []struct {
		name       string
		desiredA   uint64
		desiredB   uint64
		minA, minB uint64
		wantA      uint64
		wantB      uint64
		wantErr    error
	}{
		{name: "b side fits", desiredA: 100, desiredB: 300, minB: 150, wantA: 100, wantB: 200},
		{name: "b below min", desiredA: 100, desiredB: 300, minB: 250, wantErr: ErrInsufficientBAmount},
		{name: "a side fits", desiredA: 100, desiredB: 100, minA: 40, wantA: 50, wantB: 100},
		{name: "a below min", desiredA: 100, desiredB: 100, minA: 60, wantErr: ErrInsufficientAAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := OptimalContribution(
				NewAmount(tc.desiredA), NewAmount(tc.desiredB),
				NewAmount(tc.minA), NewAmount(tc.minB),
				NewAmount(1000), NewAmount(2000),
			)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.AmountA.Uint64() != tc.wantA || got.AmountB.Uint64() != tc.wantB {
				t.Fatalf("contribution mismatch: %s %s", got.AmountA, got.AmountB)
			}
		})
	}
}

func TestAmountOut(t *testing.T) {
	got, err := AmountOut(NewAmount(1000), NewAmount(1_000_000), NewAmount(1_000_000), DefaultFeeBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 1000*997*1e6 / (1e6*1000 + 997000)
	if got.Uint64() != 996 {
		t.Fatalf("amount out mismatch: %s", got)
	}
}

func TestAmountOutMatchesPerMilleFormula(t *testing.T) {
	amountIn, reserveIn, reserveOut := NewAmount(12345), NewAmount(987654), NewAmount(456789)
	got, err := AmountOut(amountIn, reserveIn, reserveOut, DefaultFeeBps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withFee := new(uint256.Int).Mul(amountIn, NewAmount(997))
	numerator := new(uint256.Int).Mul(withFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, NewAmount(1000))
	denominator.Add(denominator, withFee)
	want := numerator.Div(numerator, denominator)

	if !got.Eq(want) {
		t.Fatalf("unexpected: got %s want %s", got, want)
	}
}

func TestAmountInRejects(t *testing.T) {
	if _, err := AmountIn(Zero(), NewAmount(10), NewAmount(10), DefaultFeeBps); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected insufficient amount, got %v", err)
	}
	if _, err := AmountIn(NewAmount(10), NewAmount(10), NewAmount(10), DefaultFeeBps); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if _, err := AmountOut(NewAmount(1), NewAmount(10), NewAmount(10), BpsScale); !errors.Is(err, ErrInvalidFee) {
		t.Fatalf("expected invalid fee, got %v", err)
	}
}

func TestSqrt(t *testing.T) {
	if got := Sqrt(NewAmount(10000 * 10000)); got.Uint64() != 10000 {
		t.Fatalf("sqrt mismatch: %s", got)
	}
	if got := Sqrt(NewAmount(10000 * 9000)); got.Uint64() != 9486 {
		t.Fatalf("sqrt mismatch: %s", got)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("340282366920938463463374607431768211455")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Eq(MaxUint128) {
		t.Fatalf("max mismatch: %s", v)
	}
	if _, err := ParseAmount("340282366920938463463374607431768211456"); !errors.Is(err, ErrCalculationOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
