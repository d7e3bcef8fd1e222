package worker

import "testing"

func TestClampProgress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   int
		want int
	}{
		{-10, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		if got := clampProgress(tc.in); got != tc.want {
			t.Fatalf("clampProgress(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestBatchProgress(t *testing.T) {
	t.Parallel()

	if got := BatchProgress(0, 10); got != 0 {
		t.Fatalf("expected 0%%, got %d", got)
	}
	if got := BatchProgress(5, 10); got != 50 {
		t.Fatalf("expected 50%%, got %d", got)
	}
	if got := BatchProgress(10, 10); got != 100 {
		t.Fatalf("expected 100%%, got %d", got)
	}
	if got := BatchProgress(20, 10); got != 100 {
		t.Fatalf("expected overshoot clamped to 100%%, got %d", got)
	}
	if got := BatchProgress(3, 0); got != 100 {
		t.Fatalf("expected 100%% for empty batch, got %d", got)
	}
}
