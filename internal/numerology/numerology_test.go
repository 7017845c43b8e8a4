package numerology_test

import (
	"testing"
	"time"

	"github.com/trieuvy/aria/backend/internal/numerology"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReduce(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{5, 5},
		{15, 6},
		{29, 11},
		{38, 11},
		{99, 9},
		{100, 1},
		{11, 11},
		{22, 22},
		{33, 33},
		{44, 8},
	}

	for _, tc := range cases {
		if got := numerology.Reduce(tc.in); got != tc.want {
			t.Errorf("Reduce(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMasterNumberConstants(t *testing.T) {
	for _, n := range []int{
		numerology.MasterEleven,
		numerology.MasterTwentyTwo,
		numerology.MasterThirtyThree,
	} {
		if got := numerology.Reduce(n); got != n {
			t.Errorf("Reduce(%d) = %d, master numbers are terminal", n, got)
		}
	}
	if numerology.MasterThirtyThree != 33 {
		t.Errorf("MasterThirtyThree = %d, want 33", numerology.MasterThirtyThree)
	}
}

func TestReduceIdempotentAndBounded(t *testing.T) {
	valid := func(n int) bool {
		return (n >= 1 && n <= 9) || n == 11 || n == 22 || n == 33
	}

	for n := 1; n <= 5000; n++ {
		got := numerology.Reduce(n)
		if !valid(got) {
			t.Fatalf("Reduce(%d) = %d, outside {1..9, 11, 22, 33}", n, got)
		}
		if again := numerology.Reduce(got); again != got {
			t.Fatalf("Reduce not idempotent for %d: %d then %d", n, got, again)
		}
	}
}

func TestLifePath(t *testing.T) {
	cases := []struct {
		birth time.Time
		want  int
	}{
		// month 5, day 15 -> 6, year 1990 -> 19 -> 1; 5+6+1 = 12 -> 3
		{date(1990, time.May, 15), 3},
		// month 9, day 2, year 1979 -> 26 -> 8; 9+2+8 = 19 -> 10 -> 1
		{date(1979, time.September, 2), 1},
	}

	for _, tc := range cases {
		if got := numerology.LifePath(tc.birth); got != tc.want {
			t.Errorf("LifePath(%s) = %d, want %d", tc.birth.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestBirthdayPreservesMasterNumbers(t *testing.T) {
	cases := []struct {
		day  int
		want int
	}{
		{11, 11},
		{22, 22},
		{29, 11},
		{15, 6},
		{5, 5},
	}

	for _, tc := range cases {
		got := numerology.Birthday(date(1990, time.May, tc.day))
		if got != tc.want {
			t.Errorf("Birthday(day=%d) = %d, want %d", tc.day, got, tc.want)
		}
	}
}

func TestExpression(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		// J=1 O=6 H=8 N=5 S=1 M=4 I=9 T=2 H=8 -> 44 -> 8
		{"John Smith", 8},
		// case and punctuation must not change the result
		{"john  smith!", 8},
		{"JOHN SMITH", 8},
	}

	for _, tc := range cases {
		if got := numerology.Expression(tc.name); got != tc.want {
			t.Errorf("Expression(%q) = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestSoulUrge(t *testing.T) {
	// vowels O=6 and I=9 -> 15 -> 6
	if got := numerology.SoulUrge("John Smith"); got != 6 {
		t.Errorf("SoulUrge(John Smith) = %d, want 6", got)
	}
	// no vowels at all still reduces cleanly
	if got := numerology.SoulUrge("Ng"); got != 0 {
		t.Errorf("SoulUrge(Ng) = %d, want 0", got)
	}
}

func TestPersonalYear(t *testing.T) {
	// month 5, day 15 -> 6, year 2025 -> 9; 5+6+9 = 20 -> 2
	if got := numerology.PersonalYear(date(1990, time.May, 15), 2025); got != 2 {
		t.Errorf("PersonalYear = %d, want 2", got)
	}
}
