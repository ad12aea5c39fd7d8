package clockwrap

import "testing"

func TestMask32(t *testing.T) {
	tests := []struct {
		in   int64
		want uint32
	}{
		{0, 0},
		{100, 100},
		{0x100000000, 0},        // exactly one wrap
		{0x100000064, 100},      // one wrap plus 100
		{-1, 0xFFFFFFFF},        // negative wraps to top of range
	}
	for _, tt := range tests {
		if got := Mask32(tt.in); got != tt.want {
			t.Errorf("Mask32(%d) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestWindowContainsNoWrap(t *testing.T) {
	w := Window{Lo: 1000, Hi: 2000}
	if !w.Contains(1500) {
		t.Error("expected 1500 to be contained")
	}
	if w.Contains(500) || w.Contains(2500) {
		t.Error("expected values outside [1000,2000] to be excluded")
	}
}

// TestWrapCorrectness matches spec.md S6: lo=0xFFFFFF00, hi=0x00000100.
func TestWrapCorrectness(t *testing.T) {
	w := Window{Lo: 0xFFFFFF00, Hi: 0x00000100}
	if !w.Wrapped() {
		t.Fatal("expected window to be detected as wrapped")
	}
	cases := []struct {
		ts   uint32
		want bool
	}{
		{0xFFFFFF80, true},
		{0x00000080, true},
		{0x80000000, false},
		{0xFFFFFF00, true}, // lower bound inclusive
		{0x00000100, true}, // upper bound inclusive
		{0x00000101, false},
		{0xFFFFFEFF, false},
	}
	for _, c := range cases {
		if got := w.Contains(c.ts); got != c.want {
			t.Errorf("Contains(%#x) = %v, want %v", c.ts, got, c.want)
		}
	}
}

func TestOverlapsNoWrap(t *testing.T) {
	a := Window{Lo: 100, Hi: 200}
	b := Window{Lo: 150, Hi: 300}
	if !Overlaps(a, b) {
		t.Error("expected overlapping windows to overlap")
	}
	c := Window{Lo: 300, Hi: 400}
	if Overlaps(a, c) {
		t.Error("expected disjoint windows to not overlap")
	}
}

// TestSessionWindowFromOffsetMatchesWorkedExample matches spec.md S4:
// start_time=1000ms, end_time=2000ms, offset_ms_avg=0 -> device window
// [1,000,000, 2,000,000].
func TestSessionWindowFromOffsetMatchesWorkedExample(t *testing.T) {
	w := SessionWindowFromOffset(1000, 2000, 0)
	if w.Lo != 1_000_000 || w.Hi != 2_000_000 {
		t.Errorf("SessionWindowFromOffset(1000, 2000, 0) = %+v, want {1000000 2000000}", w)
	}
}

func TestSessionWindowFromOffsetAppliesOffset(t *testing.T) {
	w := SessionWindowFromOffset(1000, 2000, 500)
	if w.Lo != 500_000 || w.Hi != 1_500_000 {
		t.Errorf("SessionWindowFromOffset(1000, 2000, 500) = %+v, want {500000 1500000}", w)
	}
}

func TestOverlapsWithWrap(t *testing.T) {
	wrapped := Window{Lo: 0xFFFFFF00, Hi: 0x00000100}
	touching := Window{Lo: 0x00000050, Hi: 0x00000090}
	if !Overlaps(wrapped, touching) {
		t.Error("expected the wrapped window to overlap a window inside its post-wrap half")
	}
	disjoint := Window{Lo: 0x70000000, Hi: 0x80000000}
	if Overlaps(wrapped, disjoint) {
		t.Error("expected no overlap with a window entirely in the middle of the cycle")
	}
	bothWrap := Window{Lo: 0xFFFFFE00, Hi: 0x00000050}
	if !Overlaps(wrapped, bothWrap) {
		t.Error("expected two wrapped windows sharing the pre-wrap tail to overlap")
	}
}
