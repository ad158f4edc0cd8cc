package pricing

import "testing"

func fp(v float64) *float64 { return &v }

func TestNormalizeNarrowSpreadMidpoint(t *testing.T) {
	got := Normalize(fp(0.40), fp(0.45), nil)
	if got != 0.425 {
		t.Fatalf("expected midpoint 0.425, got %v", got)
	}
}

func TestNormalizeWideSpreadPrefersTrade(t *testing.T) {
	got := Normalize(fp(0.20), fp(0.80), fp(0.55))
	if got != 0.55 {
		t.Fatalf("expected last trade 0.55, got %v", got)
	}
}

func TestNormalizeWideSpreadNoTradeMidpoint(t *testing.T) {
	got := Normalize(fp(0.20), fp(0.80), nil)
	if got != 0.50 {
		t.Fatalf("expected midpoint 0.50, got %v", got)
	}
}

func TestNormalizeNoInputsDefault(t *testing.T) {
	got := Normalize(nil, nil, nil)
	if got != 0.5 {
		t.Fatalf("expected default 0.5, got %v", got)
	}
}

func TestNormalizeTradeOnly(t *testing.T) {
	got := Normalize(nil, nil, fp(0.731))
	if got != 0.731 {
		t.Fatalf("expected 0.731, got %v", got)
	}
}

func TestNormalizeClampsOutOfRange(t *testing.T) {
	cases := []struct {
		name      string
		bid, ask  *float64
		lastTrade *float64
		want      float64
	}{
		{"trade above one", nil, nil, fp(1.3), 1},
		{"trade below zero", nil, nil, fp(-0.2), 0},
		{"midpoint above one", fp(1.05), fp(1.10), nil, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.bid, tc.ask, tc.lastTrade)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestNormalizeRoundsToThreeDecimals(t *testing.T) {
	got := Normalize(fp(0.4001), fp(0.4004), nil)
	if got != 0.4 {
		t.Fatalf("expected 0.400, got %v", got)
	}
}
