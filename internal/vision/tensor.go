// Package vision implements the deterministic image-to-detections
// pipeline: letterbox preprocessing, raw model output decoding,
// candidate filtering, per-label non-maximum suppression and
// rescaling back to source image coordinates.
package vision

import "errors"

var (
	// ErrInvalidImage is returned when the source image cannot be preprocessed.
	ErrInvalidImage = errors.New("invalid image: zero width or height")

	// ErrUnsupportedOutputShape is returned when the model output tensor
	// matches neither known layout. It implies a model/config mismatch.
	ErrUnsupportedOutputShape = errors.New("unsupported model output shape")
)

// Tensor is a fixed-shape model input buffer: NCHW float32, batch 1,
// 3 channels, Side x Side pixels, values normalized to [0,1].
type Tensor struct {
	Data []float32
	Side int
}

// NewTensor allocates a tensor for the given square side.
func NewTensor(side int) *Tensor {
	return &Tensor{
		Data: make([]float32, 3*side*side),
		Side: side,
	}
}

// Transform records the letterbox mapping from source image space to
// tensor space. Rescale applies its inverse.
type Transform struct {
	Scale float32
	PadX  float32
	PadY  float32
}

// Layout describes the orientation of a raw detection tensor.
type Layout int

const (
	// LayoutUnknown means the orientation must be detected from the shape.
	LayoutUnknown Layout = iota
	// LayoutBoxesMajor is N boxes x (4+C) attributes.
	LayoutBoxesMajor
	// LayoutAttrsMajor is (4+C) attributes x N boxes.
	LayoutAttrsMajor
)

// RawTensor is the output of a model invocation, shape Dim0 x Dim1
// after stripping the batch dimension.
type RawTensor struct {
	Data   []float32
	Dim0   int
	Dim1   int
	Layout Layout
}

// ResolveLayout determines the tensor orientation for a model with the
// given class count. Resolved once per model load when the output shape
// is stable across calls; Decode falls back to it per frame otherwise.
func ResolveLayout(dim0, dim1, numClasses int) (Layout, error) {
	attrs := 4 + numClasses
	switch {
	case dim1 == attrs:
		return LayoutBoxesMajor, nil
	case dim0 == attrs:
		return LayoutAttrsMajor, nil
	default:
		return LayoutUnknown, ErrUnsupportedOutputShape
	}
}

// RawBox is a decoded candidate box in letterboxed tensor space,
// center/size form, with its best class and confidence.
type RawBox struct {
	CX, CY, W, H float32
	Class        int
	Confidence   float32
}

// corners returns the box as x1,y1,x2,y2.
func (b RawBox) corners() (float32, float32, float32, float32) {
	return b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2
}

// Detection is a final detection in source image pixel space.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float32 `json:"conf"`
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
}
