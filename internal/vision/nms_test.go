package vision

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	a := RawBox{CX: 50, CY: 50, W: 100, H: 100}
	b := RawBox{CX: 50, CY: 50, W: 100, H: 100}
	if got := IoU(a, b); math.Abs(float64(got-1)) > 1e-6 {
		t.Errorf("Identical boxes should have IoU 1, got %f", got)
	}

	c := RawBox{CX: 200, CY: 200, W: 50, H: 50}
	if got := IoU(a, c); got != 0 {
		t.Errorf("Disjoint boxes should have IoU 0, got %f", got)
	}

	// Half-overlapping boxes: intersection 50x100, union 150x100.
	d := RawBox{CX: 100, CY: 50, W: 100, H: 100}
	want := float32(50.0 / 150.0)
	if got := IoU(a, d); math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("Expected IoU %f, got %f", want, got)
	}
}

func TestSuppress_KeepsHigherConfidence(t *testing.T) {
	boxes := []RawBox{
		{CX: 100, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.4},
		{CX: 102, CY: 102, W: 80, H: 80, Class: 0, Confidence: 0.9},
	}

	kept := Suppress(boxes, 0.45)
	if len(kept) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 {
		t.Errorf("Expected the higher-confidence box to survive, got %f", kept[0].Confidence)
	}
}

func TestSuppress_PerClass(t *testing.T) {
	// Fully overlapping boxes of different classes never suppress each other.
	boxes := []RawBox{
		{CX: 100, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.9},
		{CX: 100, CY: 100, W: 80, H: 80, Class: 1, Confidence: 0.4},
	}

	kept := Suppress(boxes, 0.45)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 boxes across classes, got %d", len(kept))
	}
}

func TestSuppress_BelowThresholdKept(t *testing.T) {
	boxes := []RawBox{
		{CX: 100, CY: 100, W: 50, H: 50, Class: 0, Confidence: 0.9},
		{CX: 200, CY: 100, W: 50, H: 50, Class: 0, Confidence: 0.8},
	}

	kept := Suppress(boxes, 0.45)
	if len(kept) != 2 {
		t.Fatalf("Non-overlapping same-class boxes should both survive, got %d", len(kept))
	}
}

func TestSuppress_StableTieBreak(t *testing.T) {
	// Equal confidence: the box decoded first wins.
	first := RawBox{CX: 100, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.5}
	second := RawBox{CX: 104, CY: 104, W: 80, H: 80, Class: 0, Confidence: 0.5}

	kept := Suppress([]RawBox{first, second}, 0.45)
	if len(kept) != 1 {
		t.Fatalf("Expected 1 box, got %d", len(kept))
	}
	if kept[0].CX != first.CX {
		t.Errorf("Tie-break should keep the first decoded box, got cx %f", kept[0].CX)
	}
}

func TestSuppress_Chain(t *testing.T) {
	// A mid-confidence box suppressed by the best box must not take
	// a third box down with it.
	boxes := []RawBox{
		{CX: 100, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.9},
		{CX: 120, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.7}, // overlaps both
		{CX: 170, CY: 100, W: 80, H: 80, Class: 0, Confidence: 0.6}, // overlaps only the middle
	}

	kept := Suppress(boxes, 0.45)
	if len(kept) != 2 {
		t.Fatalf("Expected 2 boxes, got %d", len(kept))
	}
	if kept[0].Confidence != 0.9 || kept[1].Confidence != 0.6 {
		t.Errorf("Expected 0.9 and 0.6 to survive, got %+v", kept)
	}
}

func TestSuppress_Empty(t *testing.T) {
	if got := Suppress(nil, 0.45); len(got) != 0 {
		t.Errorf("Expected empty result, got %d", len(got))
	}

	one := []RawBox{{CX: 1, CY: 1, W: 2, H: 2, Class: 0, Confidence: 0.5}}
	if got := Suppress(one, 0.45); len(got) != 1 {
		t.Errorf("Single box should pass through, got %d", len(got))
	}
}
