package common

import (
	"testing"
	"time"
)

func TestPluralizeFilms(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "пленок"},
		{1, "пленка"},
		{3, "пленки"},
		{5, "пленок"},
		{11, "пленок"},
		{12, "пленок"},
		{21, "пленка"},
		{22, "пленки"},
		{111, "пленок"},
		{-1, "пленка"},
	}
	for _, tc := range tests {
		if got := PluralizeFilms(tc.n); got != tc.want {
			t.Fatalf("PluralizeFilms(%d)=%q want %q", tc.n, got, tc.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{2350, "2 350"},
		{1000000, "1 000 000"},
		{-4005, "-4 005"},
	}
	for _, tc := range tests {
		if got := FormatNumber(tc.n); got != tc.want {
			t.Fatalf("FormatNumber(%d)=%q want %q", tc.n, got, tc.want)
		}
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(1.0+0.1, 2); got != 1.1 {
		t.Fatalf("got %v want 1.1", got)
	}
	if got := RoundTo(0.1+0.2, 2); got != 0.3 {
		t.Fatalf("got %v want 0.3", got)
	}
	if got := RoundTo(52.349, 1); got != 52.3 {
		t.Fatalf("got %v want 52.3", got)
	}
}

func TestRoundIntHalfToEven(t *testing.T) {
	tests := []struct {
		x    float64
		want int64
	}{
		{2.5, 2},
		{3.5, 4},
		{44.9, 45},
		{-0.4, 0},
	}
	for _, tc := range tests {
		if got := RoundInt(tc.x); got != tc.want {
			t.Fatalf("RoundInt(%v)=%d want %d", tc.x, got, tc.want)
		}
	}
}

func TestAddRatingFloor(t *testing.T) {
	r := 0.3
	for i := 0; i < 10; i++ {
		r = AddRating(r, -0.1, 0.1)
	}
	if r != 0.1 {
		t.Fatalf("rating fell to %v, want floor 0.1", r)
	}
}

func TestRandRangeBounds(t *testing.T) {
	rnd := NewLockedRand(42)
	for i := 0; i < 1000; i++ {
		v := RandRange(rnd, 5, 10)
		if v < 5 || v > 10 {
			t.Fatalf("RandRange out of bounds: %d", v)
		}
	}
	if got := RandRange(rnd, 7, 7); got != 7 {
		t.Fatalf("degenerate range got %d", got)
	}
}

func TestFormatWait(t *testing.T) {
	if got := FormatWait(9*time.Minute + 5*time.Second); got != "9м 05с" {
		t.Fatalf("got %q", got)
	}
	if got := FormatWait(-time.Second); got != "0м 00с" {
		t.Fatalf("got %q", got)
	}
}

func TestParseArgs(t *testing.T) {
	if slot, err := ParseSlot("2"); err != nil || slot != 1 {
		t.Fatalf("ParseSlot(2) = %d, %v", slot, err)
	}
	for _, bad := range []string{"0", "-1", "x", ""} {
		if _, err := ParseSlot(bad); err != ErrInvalidSlot {
			t.Fatalf("ParseSlot(%q) err = %v", bad, err)
		}
	}
	if p, err := ParsePercent("2,5%"); err != nil || p != 2.5 {
		t.Fatalf("ParsePercent = %v, %v", p, err)
	}
	for _, bad := range []string{"101", "0", "-5", "NaN", "nan", "Inf", "+Inf", "-Inf", "1e400"} {
		if _, err := ParsePercent(bad); err != ErrInvalidPercent {
			t.Fatalf("ParsePercent(%q): expected ErrInvalidPercent, got %v", bad, err)
		}
	}
	name, desc := SplitTitle([]string{"Кофейня", "у", "дома", "|", "Варим", "кофе."})
	if name != "Кофейня у дома" || desc != "Варим кофе." {
		t.Fatalf("SplitTitle = %q / %q", name, desc)
	}
}
