package eta

import "testing"

func TestMinutes(t *testing.T) {
	cases := []struct {
		dist, speed float64
		want        int
	}{
		{0, 30, 0},
		{10, 30, 20},
		{0.76, 30, 2},
		{0.2, 30, 0},
		{15, 0, 30},
	}
	for _, c := range cases {
		if got := Minutes(c.dist, c.speed); got != c.want {
			t.Fatalf("Minutes(%v, %v) = %d, want %d", c.dist, c.speed, got, c.want)
		}
	}
}
