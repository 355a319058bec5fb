package vision

import "strconv"

// Rescale maps boxes from letterboxed tensor space back to source image
// pixel space by inverting the preprocessing transform, clamping to the
// image bounds. Boxes collapsing to zero width or height after clamping
// are degenerate geometry and dropped silently.
func Rescale(boxes []RawBox, tf Transform, origW, origH int, labels []string) []Detection {
	detections := make([]Detection, 0, len(boxes))
	for _, box := range boxes {
		x1, y1, x2, y2 := box.corners()

		x1 = clamp((x1-tf.PadX)/tf.Scale, 0, float32(origW))
		x2 = clamp((x2-tf.PadX)/tf.Scale, 0, float32(origW))
		y1 = clamp((y1-tf.PadY)/tf.Scale, 0, float32(origH))
		y2 = clamp((y2-tf.PadY)/tf.Scale, 0, float32(origH))

		if x2-x1 <= 0 || y2-y1 <= 0 {
			continue
		}

		detections = append(detections, Detection{
			Label:      labelName(labels, box.Class),
			Confidence: box.Confidence,
			X1:         x1,
			Y1:         y1,
			X2:         x2,
			Y2:         y2,
		})
	}
	return detections
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func labelName(labels []string, class int) string {
	if class >= 0 && class < len(labels) {
		return labels[class]
	}
	// Unknown class index, fall back to the numeric id.
	return strconv.Itoa(class)
}
