package vision

import "sort"

// Suppress removes redundant overlapping boxes per class: within each
// class, boxes are taken in descending confidence order and any
// remaining box overlapping a selected one above the IoU threshold is
// discarded. Boxes of different classes never suppress each other.
// Ties on confidence keep the original decode order, so the result is
// deterministic for a given raw tensor.
func Suppress(boxes []RawBox, iouThreshold float32) []RawBox {
	if len(boxes) <= 1 {
		return boxes
	}

	byClass := make(map[int][]RawBox)
	classOrder := make([]int, 0)
	for _, box := range boxes {
		if _, seen := byClass[box.Class]; !seen {
			classOrder = append(classOrder, box.Class)
		}
		byClass[box.Class] = append(byClass[box.Class], box)
	}

	kept := make([]RawBox, 0, len(boxes))
	for _, class := range classOrder {
		kept = append(kept, suppressClass(byClass[class], iouThreshold)...)
	}
	return kept
}

func suppressClass(candidates []RawBox, iouThreshold float32) []RawBox {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	kept := make([]RawBox, 0, len(candidates))
	removed := make([]bool, len(candidates))
	for i, box := range candidates {
		if removed[i] {
			continue
		}
		kept = append(kept, box)
		for j := i + 1; j < len(candidates); j++ {
			if removed[j] {
				continue
			}
			if IoU(box, candidates[j]) > iouThreshold {
				removed[j] = true
			}
		}
	}
	return kept
}

// IoU computes the intersection-over-union of two boxes.
func IoU(a, b RawBox) float32 {
	ax1, ay1, ax2, ay2 := a.corners()
	bx1, by1, bx2, by2 := b.corners()

	ix1 := max(ax1, bx1)
	iy1 := max(ay1, by1)
	ix2 := min(ax2, bx2)
	iy2 := min(ay2, by2)

	iw := max(ix2-ix1, 0)
	ih := max(iy2-iy1, 0)
	inter := iw * ih

	areaA := (ax2 - ax1) * (ay2 - ay1)
	areaB := (bx2 - bx1) * (by2 - by1)

	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
