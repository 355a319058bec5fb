// Package model wraps the detection model behind a narrow invoker
// interface so the detection loop and tests never touch the runtime
// directly.
package model

import (
	"context"

	"github.com/mailcam/mailcam/internal/vision"
)

// Invoker runs the detection model over a preprocessed input tensor
// and returns the raw output tensor for decoding.
type Invoker interface {
	// Infer runs one forward pass. The returned tensor is owned by the
	// caller and stays valid after the next call.
	Infer(ctx context.Context, input *vision.Tensor) (*vision.RawTensor, error)

	// InputSide is the square input dimension the model expects.
	InputSide() int

	// NumClasses is the number of classes in the model output.
	NumClasses() int

	Close() error
}
