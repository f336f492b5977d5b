package coords

import (
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMultiplyOrder(t *testing.T) {
	// scale first, then translate
	m := Scale(2, 3).Multiply(Translate(10, 20))
	p := m.Transform(Point{X: 1, Y: 1})
	if !near(p.X, 12) || !near(p.Y, 23) {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestInverse(t *testing.T) {
	m := Rotate(math.Pi / 6).Multiply(Scale(2, 0.5)).Multiply(Translate(5, -7))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := inv.Transform(m.Transform(Point{X: 3, Y: 4}))
	if !near(p.X, 3) || !near(p.Y, 4) {
		t.Fatalf("round trip failed: %+v", p)
	}
	if _, err := Scale(0, 1).Inverse(); err == nil {
		t.Fatalf("expected singular matrix error")
	}
}

func TestNormRect(t *testing.T) {
	r := NormRect(612, 792, 0, 0)
	if r.LLX != 0 || r.URY != 792 || r.Width() != 612 || r.Empty() {
		t.Fatalf("unexpected rect %+v", r)
	}
	if !NormRect(0, 0, 0, 10).Empty() {
		t.Fatalf("zero width rect should be empty")
	}
}
