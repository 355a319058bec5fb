package vision

import (
	"fmt"
	"math"
)

// Decode normalizes a raw detection tensor into candidate boxes.
// Attributes-major tensors are read transposed so the result is always
// boxes-major. Each box gets the argmax class and its score; raw logits
// are squashed through a sigmoid when the scores fall outside [0,1].
func Decode(raw *RawTensor, numClasses int) ([]RawBox, error) {
	if raw == nil {
		return nil, ErrUnsupportedOutputShape
	}
	if len(raw.Data) != raw.Dim0*raw.Dim1 {
		return nil, fmt.Errorf("%w: %dx%d does not match buffer length %d",
			ErrUnsupportedOutputShape, raw.Dim0, raw.Dim1, len(raw.Data))
	}

	layout := raw.Layout
	if layout == LayoutUnknown {
		var err error
		layout, err = ResolveLayout(raw.Dim0, raw.Dim1, numClasses)
		if err != nil {
			return nil, fmt.Errorf("%w: %dx%d with %d classes",
				ErrUnsupportedOutputShape, raw.Dim0, raw.Dim1, numClasses)
		}
	}

	var numBoxes int
	var at func(box, attr int) float32
	switch layout {
	case LayoutBoxesMajor:
		numBoxes = raw.Dim0
		at = func(box, attr int) float32 { return raw.Data[box*raw.Dim1+attr] }
	case LayoutAttrsMajor:
		numBoxes = raw.Dim1
		at = func(box, attr int) float32 { return raw.Data[attr*raw.Dim1+box] }
	default:
		return nil, ErrUnsupportedOutputShape
	}

	logits := scoresAreLogits(at, numBoxes, numClasses)

	boxes := make([]RawBox, 0, numBoxes)
	for i := 0; i < numBoxes; i++ {
		best := 0
		bestScore := float32(math.Inf(-1))
		for c := 0; c < numClasses; c++ {
			score := at(i, 4+c)
			if score > bestScore {
				bestScore = score
				best = c
			}
		}
		if logits {
			bestScore = sigmoid(bestScore)
		}

		boxes = append(boxes, RawBox{
			CX:         at(i, 0),
			CY:         at(i, 1),
			W:          at(i, 2),
			H:          at(i, 3),
			Class:      best,
			Confidence: bestScore,
		})
	}

	return boxes, nil
}

// scoresAreLogits reports whether the class scores look like raw logits
// rather than probabilities.
func scoresAreLogits(at func(box, attr int) float32, numBoxes, numClasses int) bool {
	for i := 0; i < numBoxes; i++ {
		for c := 0; c < numClasses; c++ {
			s := at(i, 4+c)
			if s > 1.5 || s < -0.5 {
				return true
			}
		}
	}
	return false
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
