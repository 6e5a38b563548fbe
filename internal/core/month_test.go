package core

import "testing"

func TestCompareMonths(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"2019-01", "2019-02", -1},
		{"2019-12", "2019-02", 1},
		{"Feb 2019", "Jan 2020", -1},
		{"February 2019", "January 2019", 1},
		{"9", "10", -1},
		{"12", "2", 1},
		{"01/2020", "12/2019", 1},
		{"2019-01", "2019-01", 0},
		{"spring", "autumn", 1},
		{"2019-01", "5", -1},
		{"12", "2019-01", 1},
		{"2019-01", "", -1},
		{"", "spring", -1},
		{"spring", "2019-01", 1},
		{"7", "summer", -1},
		{"2019-01", "Jan 2019", -1},
		{"Jan 2019", "2019-01", 1},
	}
	for _, tc := range cases {
		if got := CompareMonths(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareMonths(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCompareMonths_TotalOrder(t *testing.T) {
	labels := []string{"12/2019", "1/2020", "11/20", "2019-01", "Jan 2019", "5", "05", "", " ", "spring", "2018/12", "202001"}
	for _, a := range labels {
		if got := CompareMonths(a, a); got != 0 {
			t.Fatalf("CompareMonths(%q, %q) = %d, want 0", a, a, got)
		}
		for _, b := range labels {
			ab, ba := CompareMonths(a, b), CompareMonths(b, a)
			if ab != -ba {
				t.Fatalf("CompareMonths not antisymmetric for %q, %q: %d, %d", a, b, ab, ba)
			}
			for _, c := range labels {
				if ab < 0 && CompareMonths(b, c) < 0 && CompareMonths(a, c) >= 0 {
					t.Fatalf("CompareMonths not transitive: %q < %q < %q but not %q < %q", a, b, c, a, c)
				}
			}
		}
	}
}
