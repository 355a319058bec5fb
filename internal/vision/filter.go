package vision

// FilterParams are the candidate filter thresholds. Area is measured as
// a fraction of the letterboxed tensor area so it is independent of the
// source image resolution.
type FilterParams struct {
	ConfMin     float32
	AreaMinFrac float32
	TensorSide  int
	AllowClass  map[int]bool
}

// Filter drops candidates below the confidence threshold, below the
// minimum area fraction, or outside the label allow-list. The three
// predicates are independent, so evaluation order does not affect the
// result.
func Filter(boxes []RawBox, params FilterParams) []RawBox {
	tensorArea := float32(params.TensorSide) * float32(params.TensorSide)

	kept := make([]RawBox, 0, len(boxes))
	for _, box := range boxes {
		if box.Confidence < params.ConfMin {
			continue
		}
		if box.W*box.H/tensorArea < params.AreaMinFrac {
			continue
		}
		if !params.AllowClass[box.Class] {
			continue
		}
		kept = append(kept, box)
	}
	return kept
}
